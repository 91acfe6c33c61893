package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/zaryabnaqvi/InSoctor-sub000/internal/cache"
	"github.com/zaryabnaqvi/InSoctor-sub000/internal/config"
	"github.com/zaryabnaqvi/InSoctor-sub000/internal/database"
	"github.com/zaryabnaqvi/InSoctor-sub000/internal/datasource"
	"github.com/zaryabnaqvi/InSoctor-sub000/internal/engine"
	"github.com/zaryabnaqvi/InSoctor-sub000/internal/handlers"
	"github.com/zaryabnaqvi/InSoctor-sub000/internal/logging"
	"github.com/zaryabnaqvi/InSoctor-sub000/internal/messaging"
	natsclient "github.com/zaryabnaqvi/InSoctor-sub000/internal/messaging/nats"
	"github.com/zaryabnaqvi/InSoctor-sub000/internal/middleware"
	"github.com/zaryabnaqvi/InSoctor-sub000/internal/models"
	"github.com/zaryabnaqvi/InSoctor-sub000/internal/natshandler"
	"github.com/zaryabnaqvi/InSoctor-sub000/internal/repository"
	"github.com/zaryabnaqvi/InSoctor-sub000/internal/scheduler"
	"github.com/zaryabnaqvi/InSoctor-sub000/internal/server"
	"github.com/zaryabnaqvi/InSoctor-sub000/internal/service"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format).
		With(logging.Service("reports"))
	logging.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("Report service failed", logging.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *logging.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, err := openRepository(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer repo.Close()

	registry, err := buildRegistry(cfg, logger)
	if err != nil {
		return err
	}

	var resultCache *cache.ResultCache
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("invalid redis url: %w", err)
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn("Redis unreachable, result cache will miss", logging.Error(err))
		}
		resultCache = cache.NewResultCache(redisClient, true, cfg.Redis.CacheTTL)
	}
	registry.Wrap(func(source models.DataSource, a datasource.Adapter) datasource.Adapter {
		a = datasource.Instrumented(source, a)
		if resultCache != nil {
			a = datasource.Cached(source, a, resultCache, logger.Logger)
		}
		return a
	})
	logger.Info("Data sources registered", "sources", registry.Sources())

	var broker *natsclient.Client
	if cfg.NATS.Enabled {
		natsCfg := natsclient.DefaultConfig()
		natsCfg.URL = cfg.NATS.URL
		natsCfg.MaxReconnects = cfg.NATS.MaxReconnects
		natsCfg.ReconnectWait = cfg.NATS.ReconnectWait
		broker, err = natsclient.NewClient(natsCfg, logger.Logger)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		defer broker.Drain()
	}

	templates := service.NewTemplateService(repo)
	seeded, err := templates.SeedPredefinedTemplates(ctx)
	if err != nil {
		return fmt.Errorf("failed to seed predefined templates: %w", err)
	}
	logger.Info("Predefined templates ready", "seeded", seeded)

	planner := engine.NewPlanner(registry, cfg.Engine.DefaultLimit)
	executor := engine.NewExecutor(planner, engine.ExecutorConfig{
		MaxConcurrency: cfg.Engine.MaxConcurrency,
		WidgetTimeout:  cfg.Engine.WidgetTimeout,
	}, logger)

	reportCfg := service.ReportServiceConfig{
		TimestampField: cfg.Engine.TimestampField,
		Logger:         logger,
	}
	if broker != nil {
		reportCfg.Publisher = broker
	}
	reports := service.NewReportService(templates, repo, registry, planner, executor, reportCfg)

	if broker != nil {
		jobs := natshandler.NewHandler(broker, reports, logger)
		if err := jobs.Start(); err != nil {
			return fmt.Errorf("failed to start NATS handler: %w", err)
		}
		defer jobs.Stop()
	}

	if cfg.Scheduler.Enabled {
		schedCfg := scheduler.Config{
			CheckInterval: cfg.Scheduler.CheckInterval,
			MinInterval:   cfg.Scheduler.MinInterval,
			Logger:        logger,
		}
		if broker != nil {
			schedCfg.Publisher = broker
		}
		sched := scheduler.NewScheduler(reports, repo, schedCfg)
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		defer sched.Stop()
	}

	handler := handlers.NewHandler(templates, reports, registry, logger)
	handler.AddReadinessCheck("database", repo)
	if redisClient != nil {
		handler.AddReadinessCheck("redis", handlers.PingerFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}))
	}
	if broker != nil {
		handler.AddReadinessCheck("nats", handlers.PingerFunc(func(ctx context.Context) error {
			if status := messaging.CheckClientHealth(ctx, broker); !status.Healthy() {
				return errors.New(status.Error)
			}
			return nil
		}))
	}

	if cfg.Auth.JWTSecret == "" {
		logger.Warn("No JWT secret configured, trusting the " + middleware.UserIDHeader + " header")
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.NewRouter(handler, middleware.NewAuthenticator(cfg.Auth.JWTSecret), logger),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Report service listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.WriteTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("Server stopped gracefully")
	return nil
}

func openRepository(ctx context.Context, cfg *config.Config, logger *logging.Logger) (repository.Repository, error) {
	if cfg.Database.URL == "" {
		logger.Warn("No database.url configured, templates and reports are kept in memory")
		return repository.NewInMemoryRepository(), nil
	}

	logger.Info("Running database migrations...", "path", cfg.Database.MigrationsPath)
	if err := database.Migrate(cfg.Database.URL, cfg.Database.MigrationsPath); err != nil {
		return nil, err
	}
	logger.Info("Database migrations completed")

	repo, err := repository.NewPostgresRepository(ctx, cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	return repo, nil
}

// buildRegistry registers demo adapters first so any enabled real source
// replaces its demo counterpart.
func buildRegistry(cfg *config.Config, logger *logging.Logger) (*datasource.Registry, error) {
	registry := datasource.NewRegistry()
	ds := cfg.DataSources
	tsField := cfg.Engine.TimestampField

	if ds.Demo.Enabled {
		datasource.RegisterDemo(registry, datasource.DemoConfig{
			Seed:           ds.Demo.Seed,
			Count:          ds.Demo.Count,
			Window:         ds.Demo.Window,
			TimestampField: tsField,
		})
		logger.Info("Demo data sources enabled", "seed", ds.Demo.Seed, "count", ds.Demo.Count)
	}

	if ds.WazuhIndexer.Enabled {
		indexerCfg := datasource.WazuhIndexerConfig{
			URL:            ds.WazuhIndexer.URL,
			Username:       ds.WazuhIndexer.Username,
			Password:       ds.WazuhIndexer.Password,
			Insecure:       ds.WazuhIndexer.Insecure,
			Index:          ds.WazuhIndexer.Index,
			Size:           ds.WazuhIndexer.Size,
			TimestampField: tsField,
		}
		client, err := datasource.NewWazuhIndexerClient(indexerCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create Wazuh indexer client: %w", err)
		}
		registry.Register(models.SourceWazuhAlerts, datasource.NewWazuhAlertsAdapter(client, indexerCfg))
	}

	if ds.WazuhAPI.Enabled {
		client := datasource.NewWazuhAPIClient(datasource.WazuhAPIConfig{
			URL:            ds.WazuhAPI.URL,
			Username:       ds.WazuhAPI.Username,
			Password:       ds.WazuhAPI.Password,
			Insecure:       ds.WazuhAPI.Insecure,
			Timeout:        ds.WazuhAPI.Timeout,
			PageSize:       ds.WazuhAPI.PageSize,
			MaxItems:       ds.WazuhAPI.MaxItems,
			TimestampField: tsField,
		})
		registry.Register(models.SourceWazuhAgents, datasource.NewWazuhAgentsAdapter(client, tsField))
		registry.Register(models.SourceWazuhRules, datasource.NewWazuhRulesAdapter(client, tsField))
	}

	if ds.IRIS.Enabled {
		registry.Register(models.SourceIRISCases, datasource.NewIRISCasesAdapter(datasource.IRISConfig{
			URL:            ds.IRIS.URL,
			APIKey:         ds.IRIS.APIKey,
			Insecure:       ds.IRIS.Insecure,
			Timeout:        ds.IRIS.Timeout,
			TimestampField: tsField,
		}))
	}

	if len(registry.Sources()) == 0 {
		logger.Warn("No data sources enabled, report generation will be rejected")
	}
	return registry, nil
}
