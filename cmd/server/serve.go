package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/Priya8975/envelope-relay/internal/api"
	"github.com/Priya8975/envelope-relay/internal/config"
	"github.com/Priya8975/envelope-relay/internal/engine"
	"github.com/Priya8975/envelope-relay/internal/envelope"
	"github.com/Priya8975/envelope-relay/internal/store"
	ws "github.com/Priya8975/envelope-relay/internal/websocket"
	"github.com/Priya8975/envelope-relay/internal/worker"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server and dispatch worker",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Database.AutoMigrate {
		if err := store.RunMigrations(cfg.Database.URL); err != nil {
			return err
		}
		logger.Info("database migrations applied")
	}

	pgStore, err := store.NewPostgres(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer pgStore.Close()
	logger.Info("connected to PostgreSQL")

	checks := map[string]api.HealthCheck{"postgres": pgStore.Ping}

	var redisStore *store.RedisStore
	if needsRedis(cfg) {
		redisStore, err = store.NewRedis(ctx, store.RedisOptions{
			URL:          cfg.Redis.URL,
			PoolSize:     cfg.Redis.PoolSize,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err != nil {
			return err
		}
		defer redisStore.Close()
		checks["redis"] = redisStore.Ping
		logger.Info("connected to Redis")
	}

	var queue worker.Queue = worker.NewMemoryQueue()
	if cfg.Queue.Backend == config.QueueRedis {
		queue = worker.NewRedisQueue(redisStore.Client(), cfg.Queue.Key)
	}

	hub := ws.NewHub(logger)
	ch := channels{feed: hub}

	var breaker *engine.CircuitBreaker
	if cfg.CircuitBreaker.Enabled {
		breaker = engine.NewCircuitBreaker(redisStore.Client(), cfg.CircuitBreaker.Threshold, cfg.CircuitBreaker.Cooldown, logger)
		ch.breaker = breaker
	}

	if cfg.NATS.Enabled() {
		nc, err := nats.Connect(cfg.NATS.URL,
			nats.Name("envelope-relay"),
			nats.MaxReconnects(cfg.NATS.MaxReconnects),
			nats.ReconnectWait(cfg.NATS.ReconnectWait),
		)
		if err != nil {
			return fmt.Errorf("connecting to NATS: %w", err)
		}
		defer nc.Drain()
		ch.publisher = nc
		checks["nats"] = func(context.Context) error {
			if !nc.IsConnected() {
				return errors.New(nc.Status().String())
			}
			return nil
		}
		logger.Info("connected to NATS", "url", cfg.NATS.URL)
	}

	registry, err := buildRegistry(cfg, ch, logger)
	if err != nil {
		return err
	}
	dispatcher := worker.NewDispatcher(queue, registry, cfg.Dispatch.SendTimeout, logger)

	decoder := envelope.NewDecoder(
		envelope.WithMaxSize(cfg.Ingest.MaxDecompressedBytes),
		envelope.WithEncodings(cfg.Ingest.Encodings...),
	)

	deps := api.Deps{
		Projects:  pgStore,
		Users:     pgStore,
		Envelopes: pgStore,
		Stats:     pgStore,
		Ingest:    engine.NewIngestService(decoder, pgStore, logger),
		Scheduler: engine.NewScheduler(queue, logger),
		Limits: api.IngestLimits{
			MaxBodyBytes: cfg.Ingest.MaxBodyBytes,
			RateLimit:    cfg.Ingest.RateLimit,
			RetryAfter:   cfg.Ingest.RateWindow,
		},
		Pipeline:     dispatcher,
		Hub:          hub,
		HealthChecks: checks,
		DSNScheme:    cfg.Server.PublicScheme,
		DSNHost:      cfg.Server.PublicHost,
		Logger:       logger,
	}
	if breaker != nil {
		deps.Circuits = breaker
	}
	if redisStore != nil {
		deps.Redis = redisStore
	}
	if cfg.Ingest.RateLimit > 0 {
		deps.Limiter = engine.NewRateLimiter(redisStore.Client(), cfg.Ingest.RateWindow, logger)
	}

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      api.NewRouter(deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})

	g.Go(func() error {
		return dispatcher.Run(gctx)
	})

	g.Go(func() error {
		logger.Info("server starting", "addr", server.Addr, "queue", cfg.Queue.Backend)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped", slog.Duration("shutdown_timeout", cfg.Server.ShutdownTimeout))
	return nil
}

func needsRedis(cfg *config.Config) bool {
	return cfg.Queue.Backend == config.QueueRedis ||
		cfg.CircuitBreaker.Enabled ||
		cfg.Ingest.RateLimit > 0
}

// openStore connects to Postgres for one-shot commands.
func openStore(ctx context.Context, cfg *config.Config) (*store.PostgresStore, error) {
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	return store.NewPostgres(ctx, cfg.Database.URL)
}
