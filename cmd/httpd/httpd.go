// Package httpd implements the serve command: it wires the orchestrator
// together and runs the HTTP API, the execution workers, and the
// maintenance sweeps until interrupted.
package httpd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/goharvest/internal/api"
	"github.com/jonesrussell/goharvest/internal/config"
	"github.com/jonesrussell/goharvest/internal/executor"
	"github.com/jonesrussell/goharvest/internal/extractor"
	"github.com/jonesrussell/goharvest/internal/logger"
	"github.com/jonesrussell/goharvest/internal/maintenance"
	"github.com/jonesrussell/goharvest/internal/pool"
	"github.com/jonesrussell/goharvest/internal/scheduler"
	"github.com/jonesrussell/goharvest/internal/session"
	"github.com/jonesrussell/goharvest/internal/storage"
	"github.com/jonesrussell/goharvest/internal/store"
)

// Command returns the httpd command.
func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "httpd",
		Short: "Start the orchestrator: HTTP API, workers, and sweeps",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgFile, _ := cmd.Flags().GetString("config")
			debug, _ := cmd.Flags().GetBool("debug")
			return run(cmd.Context(), cfgFile, debug)
		},
	}
}

func run(ctx context.Context, cfgFile string, debug bool) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if debug {
		cfg.App.Debug = true
		cfg.Logger.Level = "debug"
	}

	log, err := logger.New(&logger.Config{
		Level:       cfg.Logger.Level,
		Development: cfg.App.Environment == "development",
		Encoding:    cfg.Logger.Encoding,
	})
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}

	deps, cleanup, err := build(cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	return serve(ctx, cfg, deps, log)
}

// components holds everything the serve loop needs.
type components struct {
	executor *executor.Executor
	server   *api.Server
	runner   *maintenance.Runner
}

// build wires the orchestrator from configuration.
func build(cfg *config.Config, log logger.Interface) (*components, func(), error) {
	cleanup := func() {}

	var endpoints []string
	if cfg.Pool.ResourceFile != "" {
		loaded, err := pool.LoadEndpoints(cfg.Pool.ResourceFile)
		if err != nil {
			return nil, cleanup, fmt.Errorf("load resource file: %w", err)
		}
		endpoints = loaded
	} else {
		log.Warn("no resource file configured, pool starts empty")
	}

	p, err := pool.New(endpoints, pool.Config{
		BaseCooldown: cfg.Pool.BaseCooldown,
		MaxCooldown:  cfg.Pool.MaxCooldown,
	}, log)
	if err != nil {
		return nil, cleanup, fmt.Errorf("create pool: %w", err)
	}

	// Authentication is an external flow: credential blobs are provisioned
	// into the credential dir out of band and picked up from disk.
	sessions, err := session.NewManager(session.Config{
		MinHealthThreshold: cfg.Session.MinHealthThreshold,
		RefreshWindow:      cfg.Session.RefreshWindow,
		RotationInterval:   cfg.Session.RotationInterval,
		CredentialDir:      cfg.Session.CredentialDir,
	}, nil, log)
	if err != nil {
		return nil, cleanup, fmt.Errorf("create session manager: %w", err)
	}

	sched, err := scheduler.New(scheduler.Config{
		StalenessThreshold: cfg.Scheduler.StalenessThreshold,
		CoolOffWindow:      cfg.Scheduler.CoolOffWindow,
		Importance:         cfg.Scheduler.Importance,
	}, log)
	if err != nil {
		return nil, cleanup, fmt.Errorf("create scheduler: %w", err)
	}

	taskStore, storeCleanup, err := buildStore(cfg, log)
	if err != nil {
		return nil, cleanup, err
	}
	cleanup = storeCleanup

	sink, err := buildSink(cfg, log)
	if err != nil {
		return nil, cleanup, err
	}

	exec, err := executor.New(executor.Config{
		MaxRetries:       cfg.Executor.MaxRetries,
		MaxExecutionTime: cfg.Executor.MaxExecutionTime,
		Workers:          cfg.Executor.Workers,
		AccountKey:       cfg.Session.AccountKey,
	}, executor.Dependencies{
		Pool:      p,
		Sessions:  sessions,
		Scheduler: sched,
		Store:     taskStore,
		Extractor: extractor.NewPageExtractor(extractor.DefaultConfig(), log),
		Sink:      sink,
		Logger:    log,
	})
	if err != nil {
		return nil, cleanup, fmt.Errorf("create executor: %w", err)
	}

	router := api.SetupRouter(log,
		api.NewTasksHandler(sched, taskStore),
		api.NewStatusHandler(p, sessions, sched),
	)

	return &components{
		executor: exec,
		server:   api.NewServer(cfg.Server, router, log),
		runner:   maintenance.NewRunner(cfg.Maintenance.Schedule, sched, sessions, p, log),
	}, cleanup, nil
}

// buildStore creates the configured task store backend.
func buildStore(cfg *config.Config, log logger.Interface) (store.TaskStore, func(), error) {
	if cfg.Store.Backend == "redis" {
		rs, err := store.NewRedisStore(store.RedisConfig{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
			Prefix:   cfg.Store.Redis.Prefix,
		})
		if err != nil {
			return nil, func() {}, fmt.Errorf("create redis store: %w", err)
		}
		log.Info("task store ready", "backend", "redis", "addr", cfg.Store.Redis.Addr)
		return rs, func() { _ = rs.Close() }, nil
	}

	log.Info("task store ready", "backend", "memory")
	return store.NewMemoryStore(), func() {}, nil
}

// buildSink creates the result sink, falling back to a noop when the
// Elasticsearch sink is disabled.
func buildSink(cfg *config.Config, log logger.Interface) (storage.ResultSink, error) {
	if !cfg.Elasticsearch.Enabled {
		log.Info("result sink disabled, results will be discarded")
		return storage.NewNoOpSink(), nil
	}

	sink, err := storage.NewESSink(storage.ESConfig{
		Addresses:             cfg.Elasticsearch.Addresses,
		Username:              cfg.Elasticsearch.Username,
		Password:              cfg.Elasticsearch.Password,
		APIKey:                cfg.Elasticsearch.APIKey,
		CloudID:               cfg.Elasticsearch.CloudID,
		IndexPrefix:           cfg.Elasticsearch.IndexPrefix,
		TLSInsecureSkipVerify: cfg.Elasticsearch.TLSInsecureSkipVerify,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("create result sink: %w", err)
	}
	return sink, nil
}

// serve runs all components until the context is cancelled or a signal
// arrives.
func serve(ctx context.Context, cfg *config.Config, c *components, log logger.Interface) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := c.runner.Start(); err != nil {
		return fmt.Errorf("start maintenance: %w", err)
	}
	defer c.runner.Stop()

	workersDone := make(chan struct{})
	go func() {
		defer close(workersDone)
		c.executor.Run(ctx)
	}()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- c.server.Start()
	}()

	log.Info("orchestrator running",
		"address", cfg.Server.Address,
		"workers", cfg.Executor.Workers,
	)

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return err
		}
	}

	if err := c.server.Stop(context.Background()); err != nil {
		log.Error("server shutdown failed", "error", err.Error())
	}
	<-workersDone
	return nil
}
