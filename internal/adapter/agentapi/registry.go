package agentapi

import (
	"fmt"
	"sort"
	"sync"

	"agent-orchestrator/internal/domain"
)

// Registry holds one AgentClient per role.
type Registry struct {
	mu      sync.RWMutex
	clients map[domain.AgentRole]domain.AgentClient
}

// NewRegistry creates an empty client registry.
func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[domain.AgentRole]domain.AgentClient),
	}
}

// Register adds a client for role. Returns error if role already registered.
func (r *Registry) Register(role domain.AgentRole, client domain.AgentClient) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.clients[role]; exists {
		return fmt.Errorf("agent client for role %q already registered", role)
	}
	r.clients[role] = client
	return nil
}

// Get retrieves the client for role.
func (r *Registry) Get(role domain.AgentRole) (domain.AgentClient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.clients[role]
	if !ok {
		return nil, domain.NewDomainError("Registry.Get", domain.ErrRoleNotConfigured, string(role))
	}
	return c, nil
}

// Roles returns the registered roles in sorted order.
func (r *Registry) Roles() []domain.AgentRole {
	r.mu.RLock()
	defer r.mu.RUnlock()

	roles := make([]domain.AgentRole, 0, len(r.clients))
	for role := range r.clients {
		roles = append(roles, role)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles
}
