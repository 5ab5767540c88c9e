package domain

// Category is the classifier's verdict on a query.
type Category string

const (
	CategoryFAQ     Category = "FAQ"
	CategoryReport  Category = "REPORT"
	// CategoryUnknown is only recorded when no classification was obtained.
	CategoryUnknown Category = "UNKNOWN"
)

// RoutingDecision is derived from the classifier's raw answer for one query.
type RoutingDecision struct {
	Category      Category  `json:"category"`
	Role          AgentRole `json:"role"`
	Label         string    `json:"label"`
	AttachContext bool      `json:"attach_context"`
	// Fallback is set when the raw answer matched no keyword and the
	// default target was chosen.
	Fallback bool `json:"fallback"`
}

// RouteResult is what Route hands back to its caller. OK=false means no
// answer could be produced. Label still names the agent that failed when
// dispatch was attempted, and is empty when classification failed.
type RouteResult struct {
	Answer   string          `json:"answer,omitempty"`
	OK       bool            `json:"ok"`
	Label    string          `json:"label,omitempty"`
	Decision RoutingDecision `json:"decision"`
}

// SupportingContext is read-only reference text shared across queries.
type SupportingContext struct {
	Text   string
	Source string
}

// Empty reports whether there is no text to inject.
func (c SupportingContext) Empty() bool { return c.Text == "" }

// Len returns the character count of the text.
func (c SupportingContext) Len() int { return len([]rune(c.Text)) }
