// Package app assembles the service: configuration, logging, storage, the
// remote clients, both pipeline orchestrators, and the HTTP server lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"

	"github.com/socialads/notegen/internal/api"
	"github.com/socialads/notegen/internal/config"
	"github.com/socialads/notegen/internal/database"
	"github.com/socialads/notegen/internal/image"
	"github.com/socialads/notegen/internal/jobstore"
	"github.com/socialads/notegen/internal/llm"
	"github.com/socialads/notegen/internal/logger"
	"github.com/socialads/notegen/internal/metrics"
	"github.com/socialads/notegen/internal/pipeline"
	"github.com/socialads/notegen/internal/prompts"
	"github.com/socialads/notegen/internal/redis"
	"github.com/socialads/notegen/internal/retry"
	"github.com/socialads/notegen/internal/search"
	"github.com/socialads/notegen/internal/trending"
)

// DefaultShutdownTimeout bounds graceful HTTP shutdown.
const DefaultShutdownTimeout = 30 * time.Second

// App holds the assembled service.
type App struct {
	config      *config.Config
	logger      logger.Logger
	db          *sqlx.DB
	redisClient *goredis.Client
	httpServer  *http.Server
	version     string
}

// Options configures App creation.
type Options struct {
	ConfigPath string
	Version    string
}

// New loads configuration and wires every component. The returned App owns
// the database and Redis connections until Close.
func New(opts Options) (*App, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	appLogger, err := logger.NewLogger(cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	appLogger = appLogger.With(
		logger.String("service", "notegen"),
		logger.String("version", opts.Version),
	)

	db, err := database.Connect(database.Config{
		Host:     cfg.Database.Host,
		Port:     strconv.Itoa(cfg.Database.Port),
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
	})
	if err != nil {
		_ = appLogger.Sync()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	schemaVersion, err := database.RunMigrations(db)
	if err != nil {
		db.Close()
		_ = appLogger.Sync()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	appLogger.Info("database ready", logger.Int("schema_version", int(schemaVersion)))

	redisClient, err := redis.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		db.Close()
		_ = appLogger.Sync()
		return nil, err
	}

	a := &App{
		config:      cfg,
		logger:      appLogger,
		db:          db,
		redisClient: redisClient,
		version:     opts.Version,
	}

	if err := a.buildServer(); err != nil {
		a.closeQuietly()
		return nil, err
	}

	return a, nil
}

// buildServer constructs the clients, orchestrators, and HTTP server.
func (a *App) buildServer() error {
	cfg := a.config

	llmClient, err := llm.NewClient(llm.Config{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.Model,
		Timeout: cfg.LLM.Timeout,
	}, a.logger)
	if err != nil {
		return fmt.Errorf("create llm client: %w", err)
	}

	searchClient, err := search.NewClient(search.Config{
		URL:     cfg.Search.URL,
		APIKey:  cfg.Search.APIKey,
		Count:   cfg.Search.Count,
		Timeout: cfg.Search.Timeout,
	}, a.logger)
	if err != nil {
		return fmt.Errorf("create search client: %w", err)
	}

	jobStore := jobstore.NewStore(a.redisClient, a.logger)
	imager, err := image.NewGenerator(image.Config{
		BaseURL:      cfg.Image.BaseURL,
		Token:        cfg.Image.Token,
		ResultPrefix: cfg.Image.ResultPrefix,
		Mode:         image.Mode(cfg.Image.Mode),
		Width:        cfg.Image.Width,
		Height:       cfg.Image.Height,
		Scale:        cfg.Image.Scale,
		PollInterval: cfg.Image.PollInterval,
		MaxPolls:     cfg.Image.MaxPolls,
		Timeout:      cfg.Image.Timeout,
	}, jobStore, rand.IntN, a.logger)
	if err != nil {
		return fmt.Errorf("create image generator: %w", err)
	}

	catalog, err := prompts.Catalog()
	if err != nil {
		return fmt.Errorf("load selling point catalog: %w", err)
	}

	consumePolicy, err := pipeline.ParseConsumePolicy(cfg.Pipeline.ConsumeOnFailure)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	tracker := metrics.NewTracker(registry)

	taskRepo := database.NewTaskRepository(a.db)

	noteOrch, err := pipeline.NewOrchestrator(pipeline.Deps{
		Source:  database.NewNoteRepository(a.db),
		Sink:    taskRepo,
		LLM:     llmClient,
		Search:  searchClient,
		Imager:  imager,
		Catalog: catalog,
		Metrics: tracker,
		Logger:  a.logger,
	}, pipeline.Options{
		Platform:             "xhs",
		MaxCandidateAttempts: cfg.Pipeline.MaxCandidateAttempts,
		CandidatePause:       cfg.Pipeline.CandidatePause,
		StageRetry:           retryConfig(cfg),
		ConsumeOnFailure:     consumePolicy,
	})
	if err != nil {
		return fmt.Errorf("create note pipeline: %w", err)
	}

	var trendingOrch api.Generator
	if cfg.Trending.Enabled {
		trendingSource, srcErr := trending.NewSource(trending.Config{
			URL:     cfg.Trending.URL,
			Timeout: cfg.Trending.Timeout,
		}, database.NewSeedRepository(a.db), a.logger)
		if srcErr != nil {
			return fmt.Errorf("create trending source: %w", srcErr)
		}

		orch, orchErr := pipeline.NewOrchestrator(pipeline.Deps{
			Source:  trendingSource,
			Sink:    taskRepo,
			LLM:     llmClient,
			Catalog: catalog,
			Metrics: tracker,
			Logger:  a.logger,
		}, pipeline.Options{
			Platform:             "toutiao",
			MaxCandidateAttempts: cfg.Pipeline.MaxCandidateAttempts,
			CandidatePause:       cfg.Pipeline.CandidatePause,
			StageRetry:           retryConfig(cfg),
			ConsumeOnFailure:     consumePolicy,
			SkipSearch:           true,
			SkipImage:            true,
		})
		if orchErr != nil {
			return fmt.Errorf("create trending pipeline: %w", orchErr)
		}
		trendingOrch = orch
	}

	router := api.NewRouter(api.Deps{
		NoteGenerator:     noteOrch,
		TrendingGenerator: trendingOrch,
		DBPing:            a.db.PingContext,
		RedisPing:         func(ctx context.Context) error { return a.redisClient.Ping(ctx).Err() },
		Metrics:           registry,
		Logger:            a.logger,
	}, api.Config{
		Debug:       cfg.Debug,
		CORSOrigins: cfg.Server.CORSOrigins,
	})

	a.httpServer = &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router.SetupRoutes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return nil
}

func retryConfig(cfg *config.Config) retry.Config {
	return retry.Config{
		MaxRetries: cfg.Pipeline.MaxRetries,
		Delay:      cfg.Pipeline.RetryDelay,
		Policy:     retry.PolicyFixed,
	}
}

// Run starts the HTTP server and blocks until a shutdown signal arrives or
// the server fails.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		a.logger.Info("starting http server",
			logger.String("address", a.config.Server.Address),
			logger.Bool("debug", a.config.Debug),
			logger.Bool("trending_enabled", a.config.Trending.Enabled),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		a.logger.Info("shutting down", logger.String("signal", sig.String()))
	case <-ctx.Done():
		a.logger.Info("shutting down", logger.String("reason", "context cancelled"))
	case err := <-serverErr:
		a.logger.Error("http server failed", logger.Error(err))
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", logger.Error(err))
		return err
	}

	a.logger.Info("service stopped")
	return nil
}

// Close releases the database and Redis connections.
func (a *App) Close() error {
	a.closeQuietly()
	return a.logger.Sync()
}

func (a *App) closeQuietly() {
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("failed to close redis client", logger.Error(err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close database", logger.Error(err))
		}
	}
}

// Logger returns the application logger.
func (a *App) Logger() logger.Logger {
	return a.logger
}
