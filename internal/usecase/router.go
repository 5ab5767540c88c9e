package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"agent-orchestrator/internal/domain"
	"agent-orchestrator/internal/infra/logger"
	"agent-orchestrator/internal/infra/metrics"
	"agent-orchestrator/internal/infra/tracer"
)

// Route outcomes, used as the "outcome" metric label.
const (
	OutcomeAnswered       = "answered"
	OutcomeClassifyFailed = "classify_failed"
	OutcomeDispatchFailed = "dispatch_failed"
	OutcomeRejected       = "rejected"
)

var (
	errClassifyFailed = errors.New("classifier agent returned no answer")
	errDispatchFailed = errors.New("answering agent returned no answer")
)

// RoutingRules are the classifier keywords and the labels handed back for
// each dispatch path. Keywords are matched case-insensitively as substrings.
type RoutingRules struct {
	FAQKeyword    string
	ReportKeyword string
	FAQLabel      string
	ReportsLabel  string
	FallbackLabel string
}

// DefaultRoutingRules returns the keywords and labels the remote classifier
// is prompted with.
func DefaultRoutingRules() RoutingRules {
	return RoutingRules{
		FAQKeyword:    "FAQ",
		ReportKeyword: "REPORTE",
		FAQLabel:      "FAQ",
		ReportsLabel:  "Reportes",
		FallbackLabel: "FAQ (por defecto)",
	}
}

func (r RoutingRules) withDefaults() RoutingRules {
	d := DefaultRoutingRules()
	if r.FAQKeyword == "" {
		r.FAQKeyword = d.FAQKeyword
	}
	if r.ReportKeyword == "" {
		r.ReportKeyword = d.ReportKeyword
	}
	if r.FAQLabel == "" {
		r.FAQLabel = d.FAQLabel
	}
	if r.ReportsLabel == "" {
		r.ReportsLabel = d.ReportsLabel
	}
	if r.FallbackLabel == "" {
		r.FallbackLabel = d.FallbackLabel
	}
	r.FAQKeyword = strings.ToUpper(r.FAQKeyword)
	r.ReportKeyword = strings.ToUpper(r.ReportKeyword)
	return r
}

// BuildClassificationPrompt wraps the user's query in the classifier prompt.
func BuildClassificationPrompt(query string) string {
	return "Clasifica esta consulta del usuario.\n\nCONSULTA: " + query + "\n¿Es FAQ o REPORTE?"
}

// Router classifies each query with the classifier agent and dispatches it
// to exactly one answering agent. Each step is attempted once.
type Router struct {
	invoker domain.AgentInvoker
	rules   RoutingRules
	logger  *slog.Logger
	metrics metrics.Recorder
}

// NewRouter creates a Router. Empty fields in rules take their defaults.
func NewRouter(invoker domain.AgentInvoker, rules RoutingRules, log *slog.Logger, rec metrics.Recorder) *Router {
	return &Router{
		invoker: invoker,
		rules:   rules.withDefaults(),
		logger:  logger.OrDiscard(log),
		metrics: metrics.OrNop(rec),
	}
}

// Rules returns the effective routing rules.
func (r *Router) Rules() RoutingRules { return r.rules }

// Classify maps the classifier's raw answer to a routing decision. The FAQ
// keyword is checked first; anything matching neither keyword falls back to
// the FAQ agent under the fallback label.
func (r *Router) Classify(raw string) domain.RoutingDecision {
	normalized := strings.ToUpper(strings.TrimSpace(raw))
	switch {
	case strings.Contains(normalized, r.rules.FAQKeyword):
		return domain.RoutingDecision{
			Category:      domain.CategoryFAQ,
			Role:          domain.RoleFAQ,
			Label:         r.rules.FAQLabel,
			AttachContext: true,
		}
	case strings.Contains(normalized, r.rules.ReportKeyword):
		return domain.RoutingDecision{
			Category: domain.CategoryReport,
			Role:     domain.RoleReports,
			Label:    r.rules.ReportsLabel,
		}
	default:
		return domain.RoutingDecision{
			Category:      domain.CategoryFAQ,
			Role:          domain.RoleFAQ,
			Label:         r.rules.FallbackLabel,
			AttachContext: true,
			Fallback:      true,
		}
	}
}

// Route classifies query and dispatches it. OK is false when either the
// classifier or the answering agent failed; the classifier failing means no
// answering agent is invoked.
func (r *Router) Route(ctx context.Context, query string, supporting domain.SupportingContext) domain.RouteResult {
	ctx, span := tracer.StartSpan(ctx, tracer.SpanRoute)
	defer span.End()

	if strings.TrimSpace(query) == "" {
		r.metrics.ObserveRoute(string(domain.CategoryUnknown), OutcomeRejected, false)
		tracer.RecordError(span, domain.ErrInvalidInput)
		return domain.RouteResult{}
	}

	raw, ok := r.invoker.Invoke(ctx, domain.RoleClassifier, BuildClassificationPrompt(query), domain.SupportingContext{})
	if !ok {
		r.logger.Warn("classification failed, query not dispatched")
		r.metrics.ObserveRoute(string(domain.CategoryUnknown), OutcomeClassifyFailed, false)
		tracer.RecordError(span, errClassifyFailed)
		return domain.RouteResult{}
	}

	decision := r.Classify(raw)
	span.SetAttributes(
		tracer.StringAttr("route.category", string(decision.Category)),
		tracer.StringAttr("route.role", string(decision.Role)),
		tracer.BoolAttr("route.fallback", decision.Fallback),
	)
	if decision.Fallback {
		r.logger.Info("classifier answer matched no keyword, using default agent",
			"classification", raw, "label", decision.Label)
	} else {
		r.logger.Debug("query classified", "category", decision.Category, "role", decision.Role)
	}

	var ctxText domain.SupportingContext
	if decision.AttachContext {
		ctxText = supporting
	}
	answer, ok := r.invoker.Invoke(ctx, decision.Role, query, ctxText)
	if !ok {
		r.metrics.ObserveRoute(string(decision.Category), OutcomeDispatchFailed, decision.Fallback)
		tracer.RecordError(span, errDispatchFailed)
		return domain.RouteResult{Label: decision.Label, Decision: decision}
	}

	r.metrics.ObserveRoute(string(decision.Category), OutcomeAnswered, decision.Fallback)
	tracer.SetOK(span)
	return domain.RouteResult{
		Answer:   answer,
		OK:       true,
		Label:    decision.Label,
		Decision: decision,
	}
}
