package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/stratforge/internal/automation"
	"github.com/hazyhaar/stratforge/internal/config"
	"github.com/hazyhaar/stratforge/internal/db"
	"github.com/hazyhaar/stratforge/internal/mcp"
	"github.com/hazyhaar/stratforge/internal/remediate"
	"github.com/hazyhaar/stratforge/internal/strategy"
	"github.com/hazyhaar/stratforge/internal/validate"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run-once":
		cmdRunOnce(os.Args[2:])
	case "run-forever":
		cmdRunForever(os.Args[2:])
	case "enqueue":
		cmdEnqueue(os.Args[2:])
	case "leaderboard":
		cmdLeaderboard(os.Args[2:])
	case "mcp":
		cmdMCP(os.Args[2:])
	case "version":
		fmt.Printf("stratforge %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`stratforge — automated strategy bias remediation pipeline

Usage:
  stratforge run-once [--config config.toml]
  stratforge run-forever [--config config.toml]
  stratforge enqueue --spec job.json [--priority N] [--max-retries N]
  stratforge leaderboard [--top N] [--family sma] [--status candidate]
  stratforge mcp [--config config.toml]
  stratforge version
  stratforge help

Commands:
  run-once     Claim and process a single queued job
  run-forever  Poll the queue and process jobs until interrupted
  enqueue      Add a strategy batch job to the queue
  leaderboard  Show the best variants ordered by score
  mcp          Serve the pipeline tools over MCP stdio
  version      Print version
  help         Show this help`)
}

func cmdRunOnce(args []string) {
	fs := flag.NewFlagSet("run-once", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config.toml")
	fs.Parse(args)

	cfg, database := mustOpen(*configPath)
	defer database.Close()

	controller := buildController(cfg, database)
	outcomes, err := controller.RunOnce(context.Background())
	if err == db.ErrNoJob {
		fmt.Println("no eligible jobs")
		return
	}
	if err != nil {
		log.Fatalf("processing job: %v", err)
	}
	for _, o := range outcomes {
		fmt.Printf("job_run=%d success=%v\n", o.JobRunID, o.Success)
	}
}

func cmdRunForever(args []string) {
	fs := flag.NewFlagSet("run-forever", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config.toml")
	fs.Parse(args)

	cfg, database := mustOpen(*configPath)
	defer database.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	controller := buildController(cfg, database)
	log.Printf("stratforge %s polling every %s", version, cfg.PollInterval())
	if err := controller.RunForever(ctx); err != nil && err != context.Canceled {
		log.Fatalf("controller: %v", err)
	}
	log.Println("shutting down")
}

func cmdEnqueue(args []string) {
	fs := flag.NewFlagSet("enqueue", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config.toml")
	specPath := fs.String("spec", "", "path to job specification JSON")
	priority := fs.Int("priority", 0, "claim priority, higher first")
	maxRetries := fs.Int("max-retries", 3, "retry budget before permanent failure")
	fs.Parse(args)

	if *specPath == "" {
		log.Fatal("--spec is required")
	}
	payload, err := os.ReadFile(*specPath)
	if err != nil {
		log.Fatalf("reading spec: %v", err)
	}
	if _, err := automation.ParseJobSpec(automation.JobTypeStrategyBatch, string(payload)); err != nil {
		log.Fatalf("invalid specification: %v", err)
	}

	_, database := mustOpen(*configPath)
	defer database.Close()

	jobID, err := database.EnqueueJob(automation.JobTypeStrategyBatch, string(payload), *priority, *maxRetries)
	if err != nil {
		log.Fatalf("enqueuing job: %v", err)
	}
	fmt.Printf("enqueued job %d\n", jobID)
}

func cmdLeaderboard(args []string) {
	fs := flag.NewFlagSet("leaderboard", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config.toml")
	top := fs.Int("top", 20, "max entries to show (0 = all)")
	family := fs.String("family", "", "filter by strategy family")
	status := fs.String("status", "", "filter by entry status")
	asJSON := fs.Bool("json", false, "emit JSON instead of a table")
	fs.Parse(args)

	_, database := mustOpen(*configPath)
	defer database.Close()

	rows, err := database.Leaderboard(*top, *family, *status)
	if err != nil {
		log.Fatalf("reading leaderboard: %v", err)
	}
	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rows); err != nil {
			log.Fatalf("encoding: %v", err)
		}
		return
	}
	if len(rows) == 0 {
		fmt.Println("leaderboard is empty")
		return
	}
	fmt.Printf("%-6s %-8s %-24s %-10s %8s %8s %8s\n",
		"RANK", "FAMILY", "STRATEGY", "STATUS", "SCORE", "SHARPE", "BIAS")
	for _, r := range rows {
		fmt.Printf("%-6d %-8s %-24s %-10s %8.3f %8.3f %8.4f\n",
			r.Rank, r.Family, r.StrategyName, r.Status, r.Score, r.SharpeRatio, r.BiasSelection)
	}
}

func cmdMCP(args []string) {
	fs := flag.NewFlagSet("mcp", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config.toml")
	fs.Parse(args)

	_, database := mustOpen(*configPath)
	defer database.Close()

	srv := mcp.NewServer(database, nil)
	if err := srv.Run(context.Background(), &sdkmcp.StdioTransport{}); err != nil {
		log.Fatalf("mcp server: %v", err)
	}
}

func mustOpen(configPath string) (*config.Config, *db.DB) {
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		log.Fatalf("opening database: %v", err)
	}
	return cfg, database
}

func buildController(cfg *config.Config, database *db.DB) *automation.Controller {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	factory, err := strategy.NewFactory(cfg.Automation.Workspace, cfg.Automation.OutputsDir)
	if err != nil {
		log.Fatalf("creating factory: %v", err)
	}
	engine, err := remediate.NewEngine(cfg.Automation.OutputsDir)
	if err != nil {
		log.Fatalf("creating remediation engine: %v", err)
	}
	validator := validate.NewRunnerValidator(cfg.Validator.RunnerPath, cfg.Automation.Workspace, cfg.ValidatorTimeout())
	runner := remediate.NewRunner(database, validator, engine, logger, cfg.Automation.MaxIterations)
	worker := automation.NewWorker(database, factory, runner, logger)
	return automation.NewController(database, worker, logger, cfg.PollInterval())
}
