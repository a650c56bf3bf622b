package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/cmd/orchestrator/handlers"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/internal/uuidutil"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/orchestrator"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/process"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/report"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/scenario"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/telemetry"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the report viewer and run API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(flagConfig)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			return runServer(cfg)
		},
	}
}

func newHashTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-token <token>",
		Short: "Print the bcrypt hash to set as server.api_token_hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := handlers.HashToken(args[0])
			if err != nil {
				return fmt.Errorf("failed to hash token: %w", err)
			}
			printMessage(hash)
			return nil
		},
	}
}

func runServer(cfg *Config) error {
	ctx := context.Background()

	log := newLogger(cfg)
	log.Info(ctx, "starting server", map[string]interface{}{
		"version": Version,
		"commit":  Commit,
		"date":    BuildDate,
	})

	shutdownTracing, err := telemetry.Init(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.Endpoint)
	if err != nil {
		return fmt.Errorf("failed to initialise tracing: %w", err)
	}
	defer shutdownTracing(context.Background())

	a, err := newApp(ctx, cfg, log, appOptions{history: true, events: true})
	if err != nil {
		return err
	}
	defer a.Close()

	sc, err := loadScenario(cfg.Scenario)
	if err != nil {
		return fmt.Errorf("failed to load scenario: %w", err)
	}

	runCtx, cancelRuns := context.WithCancel(ctx)
	runner := &backgroundRunner{base: runCtx, app: a, scenario: sc}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      newRouter(a, runner),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info(ctx, "server listening", map[string]interface{}{
			"address": addr,
		})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(ctx, "server error", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info(ctx, "shutting down server", nil)

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	cancelRuns()
	runner.Wait()

	log.Info(ctx, "server stopped", nil)
	return nil
}

func newRouter(a *app, runner handlers.Runner) *mux.Router {
	router := mux.NewRouter()
	router.Use(handlers.RequestLogger(a.log))

	router.HandleFunc("/health", handlers.NewHealthHandler(Version, a.history != nil)).Methods("GET")
	router.Handle("/metrics", a.metrics.Handler()).Methods("GET")

	runHandler := handlers.NewRunHandler(a.history, runner, a.log)
	baselineHandler := handlers.NewBaselineHandler(a.reconciler, a.log)
	reportHandler := handlers.NewReportHandler(a.reports, a.log)

	apiRouter := router.PathPrefix("/api/v1").Subrouter()
	apiRouter.HandleFunc("/runs", runHandler.List).Methods("GET")
	apiRouter.Handle("/runs", handlers.NewTokenAuth(a.cfg.Server.APITokenHash, a.log).Handler(http.HandlerFunc(runHandler.Create))).Methods("POST")
	apiRouter.HandleFunc("/runs/{id}", runHandler.GetByID).Methods("GET")
	apiRouter.HandleFunc("/baselines", baselineHandler.List).Methods("GET")
	apiRouter.HandleFunc("/reports", reportHandler.List).Methods("GET")

	router.HandleFunc("/reports/{key:.+}", reportHandler.Get).Methods("GET")

	return router
}

// backgroundRunner runs one orchestration at a time outside the request.
type backgroundRunner struct {
	base     context.Context
	app      *app
	scenario *scenario.Scenario

	mu      sync.Mutex
	running bool
	wg      sync.WaitGroup
}

func (r *backgroundRunner) Start(ctx context.Context, kinds []report.TargetKind) (string, error) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return "", handlers.ErrRunInProgress
	}
	r.running = true
	r.mu.Unlock()

	procs := &process.Group{}
	targets, err := r.app.buildTargets(procs)
	if err != nil {
		r.finish()
		return "", err
	}

	runID := uuidutil.NewRunID().String()
	orch := orchestrator.New(orchestrator.Config{
		Targets:         targets,
		Writer:          r.app.writer,
		History:         r.app.history,
		Events:          r.app.events,
		Metrics:         r.app.metrics,
		MetricsTextfile: r.app.cfg.Metrics.Textfile,
		Processes:       procs,
		Snapshot:        r.app.snapshot(r.scenario.Name),
		NewRunID:        func() string { return runID },
	}, r.app.newCoordinator(), r.app.log)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.finish()

		outcome, err := orch.Run(r.base, kinds, r.scenario)
		fields := map[string]interface{}{
			"run_id":  runID,
			"success": outcome.Success(),
		}
		if err != nil {
			fields["error"] = err.Error()
			r.app.log.Error(r.base, "background run failed", fields)
			return
		}
		r.app.log.Info(r.base, "background run finished", fields)
	}()

	return runID, nil
}

func (r *backgroundRunner) finish() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
}

// Wait blocks until the current run, if any, has finished.
func (r *backgroundRunner) Wait() {
	r.wg.Wait()
}
