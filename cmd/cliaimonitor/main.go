// Command cliaimonitor is the coordinator's CLI front-end and HTTP
// daemon (SPEC_FULL.md §4.17). With no subcommand it starts the HTTP
// API under the single-instance lock (A7); each subcommand instead
// runs one shot against a freshly built AppContext and exits, mirroring
// the teacher's cmd/dbctl convention of talking to the database
// directly rather than through the daemon.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/CLIAIMONITOR/internal/app"
	"github.com/CLIAIMONITOR/internal/config"
	"github.com/CLIAIMONITOR/internal/handlers"
	"github.com/CLIAIMONITOR/internal/instance"
	"github.com/CLIAIMONITOR/internal/orchestrator"
	"github.com/CLIAIMONITOR/internal/scoring"
	"github.com/CLIAIMONITOR/internal/server"
)

var configPath = flag.String("config", "./config.yaml", "path to the coordinator's YAML config file")

// strategyForVerb maps the CLI's coordination verbs onto Orchestrator
// strategies, per spec.md §6's exact command list.
var strategyForVerb = map[string]string{
	"research":  orchestrator.StrategyResearch,
	"implement": orchestrator.StrategyImplement,
	"review":    orchestrator.StrategyReviewBuild,
	"full":      orchestrator.StrategyFull,
	"team":      orchestrator.StrategyTeam,
	"auto":      orchestrator.StrategyAuto,
}

func main() {
	flag.Parse()
	os.Exit(run(flag.Args()))
}

func run(args []string) int {
	if len(args) == 0 {
		return cmdServe()
	}

	verb, rest := args[0], args[1:]

	if verb == "init" {
		return cmdInit()
	}
	if strategy, ok := strategyForVerb[verb]; ok {
		return cmdCoordinate(strategy, rest)
	}

	switch verb {
	case "status":
		return cmdStatus()
	case "history":
		return cmdHistory(rest)
	case "optimize":
		return cmdOptimize(rest)
	case "score":
		return cmdScore(rest)
	case "serve":
		return cmdServe()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", verb)
		printUsage()
		return 1
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: cliaimonitor <command> [args]")
	fmt.Fprintln(os.Stderr, "commands: init | research | implement | review | full | team | auto <task> |")
	fmt.Fprintln(os.Stderr, "          status | history [--limit N] | optimize [--dry-run|--apply] | score <query>")
}

func loadApp() (*app.AppContext, config.Config, error) {
	cfg := config.Load(*configPath)
	a, err := app.New(cfg)
	return a, cfg, err
}

// cmdInit creates the data directory and a default config file if one
// doesn't already exist, the way the teacher's -projects/-state flags
// bootstrap a fresh install.
func cmdInit() int {
	cfg := config.Default()

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create data directory: %v\n", err)
		return 1
	}

	if _, err := os.Stat(*configPath); err == nil {
		fmt.Printf("config already exists at %s, leaving it in place\n", *configPath)
	} else {
		data := fmt.Sprintf("data_dir: %s\nhttp_port: %d\nexecutor_workers: %d\n",
			cfg.DataDir, cfg.HTTPPort, cfg.ExecutorWorkers)
		if err := os.WriteFile(*configPath, []byte(data), 0644); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write config: %v\n", err)
			return 1
		}
		fmt.Printf("wrote default config to %s\n", *configPath)
	}

	st, err := app.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize data store: %v\n", err)
		return 1
	}
	defer st.Close()

	fmt.Printf("initialized coordinator data directory at %s\n", cfg.DataDir)
	return 0
}

func cmdCoordinate(strategy string, rest []string) int {
	task := strings.TrimSpace(strings.Join(rest, " "))
	if task == "" {
		fmt.Fprintln(os.Stderr, "a task description is required")
		return 1
	}

	a, _, err := loadApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start: %v\n", err)
		return 1
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	result, err := a.Orchestrator.Coordinate(ctx, task, strategy)
	if err != nil {
		fmt.Fprintf(os.Stderr, "coordination failed: %v\n", err)
		return 1
	}

	fmt.Printf("session %s (%s): %s\n", result.TaskID, result.Strategy, result.Status)
	fmt.Printf("  agents: %d/%d succeeded, cost: $%.4f, duration: %.1fs\n",
		result.Synthesis.Successful, result.Synthesis.Total, result.TotalCost, result.DurationSeconds)
	if result.Status == "failed" || result.Status == "cancelled" {
		return 1
	}
	return 0
}

func cmdStatus() int {
	a, _, err := loadApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start: %v\n", err)
		return 1
	}
	defer a.Close()

	active, err := a.Registry.GetActive()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read status: %v\n", err)
		return 1
	}

	fmt.Printf("%d active agent(s)\n", len(active))
	for _, agent := range active {
		fmt.Printf("  %s  task=%s  tier=%s  state=%s\n", agent.AgentID, agent.TaskID, agent.ModelTier, agent.State)
	}
	return 0
}

func cmdHistory(rest []string) int {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	limit := fs.Int("limit", 20, "maximum number of outcomes to print")
	if err := fs.Parse(rest); err != nil {
		return 1
	}

	a, _, err := loadApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start: %v\n", err)
		return 1
	}
	defer a.Close()

	rows, err := a.DB.Query(
		`SELECT session_id, outcome, dq_score, analyzed_at FROM outcomes ORDER BY analyzed_at DESC LIMIT ?`,
		*limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read history: %v\n", err)
		return 1
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var sessionID, outcome, analyzedAt string
		var dqScore float64
		if err := rows.Scan(&sessionID, &outcome, &dqScore, &analyzedAt); err != nil {
			fmt.Fprintf(os.Stderr, "failed to read history: %v\n", err)
			return 1
		}
		fmt.Printf("%s  %-10s  dq=%.3f  %s\n", sessionID, outcome, dqScore, analyzedAt)
		count++
	}
	fmt.Printf("%d outcome(s)\n", count)
	return 0
}

func cmdOptimize(rest []string) int {
	fs := flag.NewFlagSet("optimize", flag.ContinueOnError)
	apply := fs.Bool("apply", false, "apply proposed threshold changes")
	fs.Bool("dry-run", true, "show proposals without applying them (default)")
	if err := fs.Parse(rest); err != nil {
		return 1
	}

	a, _, err := loadApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start: %v\n", err)
		return 1
	}
	defer a.Close()

	proposals, err := a.Optimizer.Propose()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to compute proposals: %v\n", err)
		return 1
	}

	if len(proposals) == 0 {
		fmt.Println("no threshold changes proposed")
		return 0
	}

	for _, p := range proposals {
		fmt.Printf("%-24s %.3f -> %.3f (confidence=%.2f, evidence=%d, improvement=%.1f%%)\n",
			p.Parameter, p.CurrentValue, p.ProposedValue, p.Confidence, p.EvidenceCount, p.ImprovementPct)
	}

	if !*apply {
		fmt.Println("(dry run; pass -apply to persist these changes)")
		return 0
	}

	applied, err := a.Optimizer.Apply(proposals)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to apply proposals: %v\n", err)
		return 1
	}
	if applied {
		fmt.Println("applied")
	}
	return 0
}

func cmdScore(rest []string) int {
	query := strings.TrimSpace(strings.Join(rest, " "))
	if query == "" {
		fmt.Fprintln(os.Stderr, "a query is required")
		return 1
	}

	complexity := scoring.AnalyzeComplexity(query)
	tier := scoring.RecommendedTier(complexity)
	score := scoring.Score(complexity)

	fmt.Printf("complexity: %.3f\n", complexity)
	fmt.Printf("recommended tier: %s\n", tier)
	fmt.Printf("best tier by DQ score: %s (dq=%.3f, validity=%.3f, specificity=%.3f, correctness=%.3f)\n",
		score.Tier, score.DQScore, score.Validity, score.Specificity, score.Correctness)
	if scoring.IsActionable(score.DQScore) {
		fmt.Println("actionable: yes")
	} else {
		fmt.Println("actionable: no")
	}
	return 0
}

// cmdServe runs the HTTP API under the single-instance lock until
// interrupted.
func cmdServe() int {
	cfg := config.Load(*configPath)

	pidPath := filepath.Join(cfg.DataDir, "coordinator.pid")
	statePath := filepath.Join(cfg.DataDir, "coordinator.state.json")
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create data directory: %v\n", err)
		return 1
	}

	mgr := instance.NewManager(pidPath, statePath, cfg.HTTPPort)

	existing, err := mgr.CheckExistingInstance()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to check for an existing instance: %v\n", err)
		return 1
	}
	if existing != nil {
		resolver := instance.NewConflictResolver(mgr, instance.IsInteractive())
		if err := resolver.Resolve(existing); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			return 1
		}
	}

	if err := mgr.AcquireLock(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	defer mgr.ReleaseLock()

	port := mgr.GetPort()
	if !instance.IsPortAvailable(port) {
		found := instance.FindAvailablePort(port + 1)
		if found == 0 {
			fmt.Fprintln(os.Stderr, "no available port found")
			return 1
		}
		port = found
	}

	if err := mgr.WritePIDFile(os.Getpid(), port, cfg.DataDir); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write PID file: %v\n", err)
		return 1
	}
	defer mgr.RemovePIDFile()

	a, err := app.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start: %v\n", err)
		return 1
	}
	defer a.Close()

	router := mux.NewRouter()
	handlers.NewAPI(a).RegisterRoutes(router)

	httpServer := &http.Server{
		Addr:    ":" + strconv.Itoa(port),
		Handler: server.SecurityHeadersMiddleware(router),
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Printf("coordinator listening on :%d\n", port)
		errCh <- httpServer.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "server error: %v\n", err)
			return 1
		}
	case <-sigCh:
		fmt.Println("shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "shutdown error: %v\n", err)
			return 1
		}
	}
	return 0
}
