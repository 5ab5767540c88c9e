package main

import (
	"context"
	"fmt"
	"log/slog"

	"agent-orchestrator/internal/adapter/agentapi"
	"agent-orchestrator/internal/adapter/docs"
	"agent-orchestrator/internal/adapter/gateway"
	"agent-orchestrator/internal/domain"
	"agent-orchestrator/internal/infra/config"
	"agent-orchestrator/internal/infra/metrics"
	"agent-orchestrator/internal/usecase"
	"agent-orchestrator/internal/usecase/scheduling"
)

// roleOrder is the order clients are built and registered in.
var roleOrder = []domain.AgentRole{domain.RoleClassifier, domain.RoleFAQ, domain.RoleReports}

// RuntimeComponents is the wired object graph for one process.
type RuntimeComponents struct {
	Metrics  *metrics.PrometheusRecorder
	Clients  *agentapi.Registry
	Breakers map[domain.AgentRole]*agentapi.CircuitBreakerClient
	Invoker  *usecase.Invoker
	Router   *usecase.Router
	Docs     domain.SupportingContext
	Sessions *usecase.SessionStore
}

// initRuntime builds clients, invoker, router and session store from cfg.
func initRuntime(cfg *config.Config, log *slog.Logger) (*RuntimeComponents, error) {
	comp := &RuntimeComponents{
		Clients:  agentapi.NewRegistry(),
		Breakers: make(map[domain.AgentRole]*agentapi.CircuitBreakerClient),
	}

	var rec metrics.Recorder = metrics.Nop{}
	if cfg.Metrics.Enabled {
		comp.Metrics = metrics.NewPrometheusRecorder()
		rec = comp.Metrics
	}

	httpClient := agentapi.NewHTTPClient(cfg.HTTP)
	for _, role := range roleOrder {
		var client domain.AgentClient = agentapi.NewClient(string(role), agentapi.ClientConfigFrom(cfg, httpClient), log, rec)
		if cfg.CircuitBreaker.Enabled {
			cb := agentapi.NewCircuitBreakerClient(string(role), client, cfg.CircuitBreaker, log)
			comp.Breakers[role] = cb
			client = cb
		}
		if err := comp.Clients.Register(role, client); err != nil {
			return nil, err
		}
	}

	identities := domain.StaticIdentities{
		domain.RoleClassifier: domain.AgentIdentity(cfg.Agents.ClassifierAPIKey),
		domain.RoleFAQ:        domain.AgentIdentity(cfg.Agents.FAQAPIKey),
		domain.RoleReports:    domain.AgentIdentity(cfg.Agents.ReportsAPIKey),
	}

	comp.Invoker = usecase.NewInvoker(comp.Clients, identities, cfg.Polling.MaxAttempts, log, rec)
	comp.Router = usecase.NewRouter(comp.Invoker, usecase.RoutingRules{
		FAQKeyword:    cfg.Routing.FAQKeyword,
		ReportKeyword: cfg.Routing.ReportKeyword,
		FAQLabel:      cfg.Routing.FAQLabel,
		ReportsLabel:  cfg.Routing.ReportsLabel,
		FallbackLabel: cfg.Routing.FallbackLabel,
	}, log, rec)
	comp.Docs = docs.Load(cfg.Docs.Path, log)
	comp.Sessions = usecase.NewSessionStore(cfg.Gateway.TeamPassword, cfg.Gateway.SessionTTL, log)

	return comp, nil
}

// breakerStates reports each role's breaker state for the status endpoint.
func (c *RuntimeComponents) breakerStates() map[string]string {
	out := make(map[string]string, len(c.Breakers))
	for role, cb := range c.Breakers {
		out[string(role)] = cb.State().String()
	}
	return out
}

// newGateway builds the HTTP gateway over comp.
func newGateway(cfg *config.Config, comp *RuntimeComponents, log *slog.Logger) *gateway.Server {
	deps := gateway.Deps{
		Router:      comp.Router,
		Auth:        comp.Sessions,
		Docs:        comp.Docs,
		BaseURL:     cfg.Agents.BaseURL,
		MissingKeys: cfg.MissingKeys(),
		MetricsPath: cfg.Metrics.Path,
	}
	if len(comp.Breakers) > 0 {
		deps.Breakers = comp.breakerStates
	}
	if comp.Metrics != nil {
		deps.Metrics = comp.Metrics.Handler()
	}
	return gateway.NewServer(deps, gateway.Options{
		Addr:           cfg.Gateway.Addr,
		RequestsPerMin: cfg.Gateway.RequestsPerMin,
		BurstSize:      cfg.Gateway.BurstSize,
		TrustedProxies: cfg.Gateway.TrustedProxies,
	}, log)
}

// newScheduler registers the housekeeping jobs with non-empty schedules.
func newScheduler(cfg *config.Config, comp *RuntimeComponents, log *slog.Logger) (*scheduling.Scheduler, error) {
	s := scheduling.NewScheduler(log)
	s.Register(scheduling.JobSessionReap, func(context.Context) error {
		log.Debug("sessions swept", "active", comp.Sessions.Active())
		return nil
	})
	s.Register(scheduling.JobBreakerReport, func(context.Context) error {
		for role, state := range comp.breakerStates() {
			if state != "closed" {
				log.Warn("agent circuit breaker not closed", "role", role, "state", state)
			}
		}
		return nil
	})

	tasks := []scheduling.Task{
		{Job: scheduling.JobSessionReap, Schedule: cfg.Maintenance.SessionReap},
		{Job: scheduling.JobBreakerReport, Schedule: cfg.Maintenance.BreakerReport},
	}
	for _, task := range tasks {
		if task.Schedule == "" {
			continue
		}
		if err := s.Add(task); err != nil {
			return nil, fmt.Errorf("maintenance: %w", err)
		}
	}
	return s, nil
}
