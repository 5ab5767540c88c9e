package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"agent-orchestrator/internal/infra/config"
	"agent-orchestrator/internal/infra/logger"
	"agent-orchestrator/internal/infra/tracer"
)

func main() {
	for i, arg := range os.Args[1:] {
		if arg == "--help" || arg == "-h" || (i == 0 && arg == "help") {
			showUsage()
			return
		}
	}

	cmd := "serve"
	args := positional(os.Args[1:])
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	var err error
	switch cmd {
	case "serve":
		err = runServe()
	case "ask":
		err = runAsk(args, os.Stdout)
	case "doctor":
		err = runDoctor(os.Stdout)
	case "encrypt":
		err = runEncrypt(args, os.Stdin, os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\nRun 'agent-orchestrator --help' for usage information.\n", cmd)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", cmd, err)
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`agent-orchestrator - routes questions to FAQ and report agents

USAGE:
    agent-orchestrator [COMMAND] [FLAGS]

COMMANDS:
    serve         Run the HTTP gateway (default)
    ask QUERY     Route a single query and print the answer
    doctor        Check keys, documentation and agent API reachability
    encrypt [VAL] Print an enc: value for config.yaml (passphrase from AGENTORCH_CONFIG_KEY)

FLAGS:
    -h, --help         Show this help message
    --config PATH      Config file path (default: ./config.yaml)

CONFIGURATION:
    Config file:  ./config.yaml (optional)
    Agent keys:   ORCHESTRATOR_API_KEY, FAQ_AGENT_API_KEY, REPORTS_AGENT_API_KEY
    Gateway:      TEAM_PASSWORD
    Overrides:    AGENTORCH_* variables

EXAMPLES:
    agent-orchestrator
    agent-orchestrator --config /etc/agent-orchestrator/config.yaml
    agent-orchestrator ask "¿Cómo funciona la integración con Salesforce?"
    agent-orchestrator doctor
    echo "$FAQ_KEY" | AGENTORCH_CONFIG_KEY=... agent-orchestrator encrypt`)
}

// configPath returns --config from the command line, then AGENTORCH_CONFIG,
// then ./config.yaml.
func configPath() string {
	for i, arg := range os.Args {
		if arg == "--config" && i+1 < len(os.Args) {
			return os.Args[i+1]
		}
		if v, ok := strings.CutPrefix(arg, "--config="); ok {
			return v
		}
	}
	if p := os.Getenv("AGENTORCH_CONFIG"); p != "" {
		return p
	}
	return "config.yaml"
}

// positional drops flags (and the --config value) from args.
func positional(args []string) []string {
	var out []string
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--config":
			i++
		case strings.HasPrefix(args[i], "-"):
		default:
			out = append(out, args[i])
		}
	}
	return out
}

func runServe() error {
	cfg, err := config.Load(configPath())
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer tracerShutdown(context.Background())

	if missing := cfg.MissingKeys(); len(missing) > 0 {
		log.Error("agent API keys missing, queries will be refused", "missing", missing)
	}
	if cfg.Gateway.TeamPassword == config.DefaultTeamPassword {
		log.Warn("gateway is using the default team password, set TEAM_PASSWORD")
	}

	comp, err := initRuntime(cfg, log)
	if err != nil {
		return fmt.Errorf("runtime: %w", err)
	}

	sched, err := newScheduler(cfg, comp, log)
	if err != nil {
		return err
	}
	sched.Start(ctx)
	defer sched.Stop()

	gw := newGateway(cfg, comp, log)
	if err := gw.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return gw.Stop(shutdownCtx)
}

// runAsk routes one query and writes "label\n\nanswer" to out.
func runAsk(args []string, out io.Writer) error {
	query := strings.TrimSpace(strings.Join(args, " "))
	if query == "" {
		return errors.New("usage: agent-orchestrator ask QUERY")
	}

	cfg, err := config.Load(configPath())
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if missing := cfg.MissingKeys(); len(missing) > 0 {
		return fmt.Errorf("missing agent API keys: %s", strings.Join(missing, ", "))
	}

	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	comp, err := initRuntime(cfg, log)
	if err != nil {
		return fmt.Errorf("runtime: %w", err)
	}

	res := comp.Router.Route(ctx, query, comp.Docs)
	if !res.OK {
		return errors.New("no answer could be obtained, try again")
	}
	fmt.Fprintf(out, "[%s]\n\n%s\n", res.Label, res.Answer)
	return nil
}
