package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	corecfg "github.com/lumenlake/sessionizer/internal/core/config"
	"github.com/lumenlake/sessionizer/internal/core/storage/postgres"
	"github.com/lumenlake/sessionizer/internal/migrations"
	"github.com/lumenlake/sessionizer/internal/query"
	"github.com/lumenlake/sessionizer/internal/run"
	"github.com/lumenlake/sessionizer/internal/server"
)

func main() {
	configPath := flag.String("config", "sessionizer.yaml", "Path to configuration file")
	processDate := flag.String("process-date", "", "Business date of the batch to process (YYYY-MM-DD)")
	firstRun := flag.Bool("first-run", false, "Bootstrap mode: full load, no lookback merge")
	serve := flag.Bool("serve", false, "Run the ops HTTP server instead of a one-shot batch run")
	flag.Parse()

	// 0. Initialize Logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// 1. Load Configuration
	cfg, err := corecfg.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	slog.Info("Loaded config", "config", cfg)

	// 2. Initialize Storage (PostgreSQL)
	rawStore, err := postgres.NewAdapter(
		cfg.Database.DSN,
		cfg.Database.MaxOpenConns,
		cfg.Database.MaxIdleConns,
	)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer rawStore.Close()

	// 2.1. Run Database Migrations
	if err := migrations.RunMigrations(rawStore.DB(), cfg.Database.AutoMigrate); err != nil {
		slog.Error("Failed to run database migrations", "error", err)
		os.Exit(1)
	}

	sessionStore := postgres.NewSessionAdapter(rawStore.DB())

	// 3. Initialize the batch job
	job := run.NewJob(rawStore, sessionStore, cfg.Run, cfg.Profiles)

	if !*serve {
		runOnce(job, *processDate, *firstRun)
		return
	}

	// 4. Ops server mode: run trigger/status + session query API
	tracker := run.NewTracker()
	handler := query.NewHandler(query.NewService(sessionStore), job, tracker)

	srv := server.New(fmtAddr(cfg.Server.Host, cfg.Server.Port), rawStore.DB(), cfg.Server.Mode)
	handler.RegisterRoutes(srv.Engine)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Signal handler triggers the shutdown sequence below.
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		slog.Info("Signal received, shutting down...")
		cancel()
	}()

	// HTTP server blocks until ctx is cancelled.
	if err := srv.Run(ctx); err != nil {
		slog.Error("Server stopped with error", "error", err)
	}

	slog.Info("Shutdown complete")
}

// runOnce executes a single batch run and exits non-zero on failure, so the
// orchestrator sees a clear success/failure signal.
func runOnce(job *run.Job, processDate string, firstRun bool) {
	if processDate == "" {
		slog.Error("Missing required -process-date (YYYY-MM-DD)")
		os.Exit(1)
	}

	day, err := time.Parse("2006-01-02", processDate)
	if err != nil {
		slog.Error("Invalid -process-date", "value", processDate, "error", err)
		os.Exit(1)
	}

	summary, err := job.Run(context.Background(), run.Params{
		ProcessDate: day,
		FirstRun:    firstRun,
	})
	if err != nil {
		slog.Error("Session run failed", "process_date", processDate, "error", err)
		os.Exit(1)
	}

	slog.Info("Session run succeeded",
		"process_date", processDate,
		"output_rows", summary.OutputRows,
		"elapsed", summary.Elapsed,
	)
}

func fmtAddr(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}
