package main

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/nats-io/nats.go"
	"gorm.io/gorm"

	"github.com/hairizuan-noorazman/screenshot-orchestrator/baseline"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/browser"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/capture"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/database"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/events"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/executor"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/history"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/logger"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/metrics"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/orchestrator"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/process"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/report"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/scenario"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/storage"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/target"
)

// portPlaceholder in web.app_command is replaced by the web port.
const portPlaceholder = "{port}"

// app holds the collaborators shared by the subcommands.
type app struct {
	cfg        *Config
	log        logger.Logger
	artifacts  storage.BlobStorage
	baselines  storage.BlobStorage
	reports    storage.BlobStorage
	comparator baseline.Comparator
	reconciler *baseline.Reconciler
	writer     *report.Writer
	metrics    *metrics.Recorder
	events     events.Publisher
	history    history.Store
	closers    []func()
}

// appOptions selects the optional collaborators a command needs.
type appOptions struct {
	history bool
	events  bool
}

func newLogger(cfg *Config) logger.Logger {
	return logger.NewLogrusLogger(cfg.Log.Level, cfg.Log.Format)
}

// storageConfig maps a local directory or an s3 prefix onto a storage.Config.
func storageConfig(cfg StorageConfig, dir, prefix string) storage.Config {
	return storage.Config{
		Type:          cfg.Type,
		BaseDir:       dir,
		Bucket:        cfg.S3Bucket,
		Region:        cfg.S3Region,
		Prefix:        prefix,
		Endpoint:      cfg.S3Endpoint,
		PresignExpiry: cfg.S3PresignExpiry,
	}
}

func newApp(ctx context.Context, cfg *Config, log logger.Logger, opts appOptions) (*app, error) {
	a := &app{cfg: cfg, log: log, metrics: metrics.NewRecorder(), events: events.Noop{}}

	var err error
	a.artifacts, err = storage.New(ctx, storageConfig(cfg.Storage, cfg.Storage.OutputDir, cfg.Storage.ArtifactsPrefix))
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact storage: %w", err)
	}
	a.baselines, err = storage.New(ctx, storageConfig(cfg.Storage, cfg.Storage.BaselineDir, cfg.Storage.BaselinePrefix))
	if err != nil {
		return nil, fmt.Errorf("failed to open baseline storage: %w", err)
	}
	a.reports, err = storage.New(ctx, storageConfig(cfg.Storage, cfg.Reports.Dir, cfg.Storage.ReportsPrefix))
	if err != nil {
		return nil, fmt.Errorf("failed to open report storage: %w", err)
	}

	a.comparator, err = baseline.NewComparator(cfg.Baseline.Comparator, cfg.Baseline.Threshold, cfg.Baseline.Tolerance)
	if err != nil {
		return nil, err
	}
	a.reconciler = baseline.NewReconciler(a.artifacts, a.baselines, a.comparator, log)
	a.writer = report.NewWriter(a.reports, cfg.Reports.VisualDir, log)

	if opts.history && cfg.Database.Enabled {
		store, closeDB, err := openHistory(cfg.Database, log)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.history = store
		a.closers = append(a.closers, closeDB)
	}

	if opts.events && cfg.Events.NATSURL != "" {
		pub, err := events.NewNATSPublisher(cfg.Events.NATSURL, cfg.Events.SubjectPrefix, nats.Name("screenshot-orchestrator"))
		if err != nil {
			// Events are optional; a missing broker never blocks a run.
			log.Warn(ctx, "event publishing disabled", map[string]interface{}{
				"url":   cfg.Events.NATSURL,
				"error": err.Error(),
			})
		} else {
			a.events = pub
			a.closers = append(a.closers, pub.Close)
		}
	}

	return a, nil
}

// Close releases the database connection and the event publisher.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func databaseConfig(cfg DatabaseConfig) database.Config {
	return database.Config{
		Type:         cfg.Type,
		Path:         cfg.Path,
		Host:         cfg.Host,
		Port:         cfg.Port,
		User:         cfg.User,
		Password:     cfg.Password,
		Database:     cfg.Database,
		MaxOpenConns: cfg.MaxOpenConns,
		MaxIdleConns: cfg.MaxIdleConns,
	}
}

// connectDatabase opens the configured database and applies the embedded migrations.
func connectDatabase(cfg DatabaseConfig) (*gorm.DB, func(), error) {
	dbCfg := databaseConfig(cfg)
	db, err := database.Connect(dbCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	closeDB := func() { sqlDB.Close() }

	if err := database.RunMigrations(sqlDB, dbCfg.Dialect(), ""); err != nil {
		closeDB()
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return db, closeDB, nil
}

func openHistory(cfg DatabaseConfig, log logger.Logger) (history.Store, func(), error) {
	db, closeDB, err := connectDatabase(cfg)
	if err != nil {
		return nil, nil, err
	}
	return history.NewSQLStore(db, log), closeDB, nil
}

func (a *app) newExecutor() *executor.Executor {
	return executor.New(a.log,
		executor.WithSettle(a.cfg.Capture.Settle),
		executor.WithActionTimeout(a.cfg.Capture.ActionTimeout),
		executor.WithFailureHook(func(action scenario.Action, err error) {
			a.metrics.ActionFailed(string(action.Kind))
		}),
	)
}

func (a *app) newCoordinator() *orchestrator.Coordinator {
	return orchestrator.NewCoordinator(orchestrator.CoordinatorConfig{
		Executor:       a.newExecutor(),
		Capturer:       capture.NewService(a.artifacts, a.log, capture.WithSelectorTimeout(a.cfg.Capture.SelectorTimeout)),
		Reconciler:     a.reconciler,
		Writer:         a.writer,
		Events:         a.events,
		Metrics:        a.metrics,
		AcquireTimeout: a.cfg.Capture.AcquireTimeout,
	}, a.log)
}

func webTargetConfig(cfg WebConfig) target.WebConfig {
	web := target.DefaultWebConfig(cfg.Port)
	web.URL = cfg.URL
	web.AppCommand = expandPort(cfg.AppCommand, cfg.Port)
	web.AppDir = cfg.AppDir
	web.ReadyLine = cfg.ReadyLine
	web.ErrorMarker = cfg.ErrorMarker
	web.StartupTimeout = cfg.StartupTimeout
	web.NavigateTimeout = cfg.NavigateTimeout
	web.ReadySelector = cfg.ReadySelector
	web.ReadySelectorTimeout = cfg.ReadySelectorTimeout
	web.RenderDelay = cfg.RenderDelay
	web.Driver = cfg.Driver
	web.Browser = browser.Options{
		Headless: cfg.Headless,
		Width:    cfg.Width,
		Height:   cfg.Height,
		ExecPath: cfg.ExecPath,
	}
	return web
}

func expandPort(argv []string, port int) []string {
	out := make([]string, len(argv))
	for i, arg := range argv {
		out[i] = strings.ReplaceAll(arg, portPlaceholder, strconv.Itoa(port))
	}
	return out
}

// buildTargets creates every target implementation. Processes started by the web
// target are registered in procs.
func (a *app) buildTargets(procs *process.Group) (map[report.TargetKind]target.Target, error) {
	launcher, err := browser.NewLauncher(a.cfg.Web.Driver)
	if err != nil {
		return nil, err
	}

	android := target.AndroidConfig{
		DevicesCommand: a.cfg.Android.DevicesCommand,
		DriveCommand:   a.cfg.Android.DriveCommand,
		Timeout:        a.cfg.Android.Timeout,
		Device:         a.cfg.Android.Device,
	}
	integration := target.IntegrationConfig{
		Command: a.cfg.Integration.Command,
		Timeout: a.cfg.Integration.Timeout,
	}
	hosted := target.HostedConfig{
		Service: a.cfg.Hosted.Service,
		Devices: a.cfg.Hosted.Devices,
		Delay:   a.cfg.Hosted.Delay,
	}

	return map[report.TargetKind]target.Target{
		report.TargetWeb:         target.NewWeb(webTargetConfig(a.cfg.Web), launcher, procs, a.log),
		report.TargetAndroid:     target.NewAndroid(android, process.NewExecRunner(a.cfg.Android.Dir, a.log), a.log),
		report.TargetIntegration: target.NewIntegration(integration, process.NewExecRunner(a.cfg.Integration.Dir, a.log)),
		report.TargetHosted:      target.NewHosted(hosted),
	}, nil
}

// snapshot records the effective configuration in the consolidated report.
func (a *app) snapshot(scenarioName string) report.ConfigSnapshot {
	return report.ConfigSnapshot{
		WebPort:       a.cfg.Web.Port,
		WebURL:        webTargetConfig(a.cfg.Web).PageURL(),
		AndroidDevice: a.cfg.Android.Device,
		Scenario:      scenarioName,
		Comparator:    a.comparator.Name(),
		OutputDir:     a.location(a.cfg.Storage.OutputDir, a.cfg.Storage.ArtifactsPrefix),
		BaselineDir:   a.location(a.cfg.Storage.BaselineDir, a.cfg.Storage.BaselinePrefix),
		ReportsDir:    a.location(a.cfg.Reports.Dir, a.cfg.Storage.ReportsPrefix),
	}
}

func (a *app) location(dir, prefix string) string {
	if strings.EqualFold(a.cfg.Storage.Type, "s3") {
		return "s3://" + path.Join(a.cfg.Storage.S3Bucket, prefix)
	}
	return filepath.Clean(dir)
}

// loadScenario reads the scenario file, falling back to the built-in web scenario.
func loadScenario(p string) (*scenario.Scenario, error) {
	if p == "" {
		return scenario.DefaultWeb(), nil
	}
	return scenario.Load(p)
}
