package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kirinyoku/bustix/internal/auth"
	"github.com/kirinyoku/bustix/internal/broker"
	"github.com/kirinyoku/bustix/internal/config"
	"github.com/kirinyoku/bustix/internal/credential"
	"github.com/kirinyoku/bustix/internal/postgres"
	postgresrepo "github.com/kirinyoku/bustix/internal/repository/postgres"
	redisrepo "github.com/kirinyoku/bustix/internal/repository/redis"
	"github.com/kirinyoku/bustix/internal/service"
	"github.com/kirinyoku/bustix/internal/tracing"
	httpgin "github.com/kirinyoku/bustix/internal/transport/http/gin"
	"github.com/redis/go-redis/v9"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/sync/errgroup"
)

const serviceName = "bustix"

type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	httpServer *http.Server

	pool   *pgxpool.Pool
	rdb    *redis.Client
	pubsub *redisrepo.RoutesPubSub
	hub    *httpgin.RouteHub
	events *broker.EventPublisher
	tracer *sdktrace.TracerProvider
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if cfg.Ticket.InsecureSecret {
		logger.Warn("TICKET_SIGNING_SECRET is not set, signing tickets with the public development secret")
	}

	a := &App{cfg: cfg, logger: logger}

	// Tracing
	if cfg.Tracing.JaegerEndpoint != "" {
		tp, err := tracing.Init(ctx, serviceName, cfg.Tracing.JaegerEndpoint)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tracing: %w", err)
		}
		a.tracer = tp
	}

	// Initialize dependencies
	pool, err := postgres.New(ctx, postgres.Config{
		DSN:      cfg.Postgres.DSN(),
		MaxConns: cfg.Postgres.MaxConns,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize postgres: %w", err)
	}
	a.pool = pool

	rdb, err := redisrepo.NewClient(ctx, redisrepo.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize redis: %w", err)
	}
	a.rdb = rdb

	// Initialize repositories
	store := postgresrepo.NewStore(pool)
	if err := store.Migrate(ctx); err != nil {
		a.closeClients()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	cache := redisrepo.NewCache(rdb, 30*time.Second)
	a.pubsub = redisrepo.NewRoutesPubSub(rdb)
	limiter := redisrepo.NewSlidingWindowLimiter(rdb, "bookings", cfg.Booking.RateLimit, cfg.Booking.RateWindow)
	idempotencyStore := redisrepo.NewIdempotencyStore(rdb, 24*time.Hour, time.Minute)

	var producer *broker.Producer
	if len(cfg.Kafka.Brokers) > 0 {
		producer = broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TicketTopic)
	} else {
		logger.Info("KAFKA_BROKERS is empty, lifecycle events are only logged")
	}
	a.events = broker.NewEventPublisher(producer, logger)

	codec := credential.New(credential.Config{
		Secret: cfg.Ticket.SigningSecret,
		TTL:    cfg.Ticket.CredentialTTL,
	})

	// Initialize services
	services := service.NewServices(service.Repositories{
		Tx:       store,
		Routes:   store.Routes(),
		Bookings: store.Bookings(),
		Tickets:  store.Tickets(),
	}, codec, service.Deps{
		Cache:    cache,
		Notifier: a.pubsub,
		Events:   a.events,
		Limiter:  limiter,
		Logger:   logger,
	}, service.Config{
		Location: cfg.Ticket.Location,
	})

	// Initialize Gin router
	a.hub = httpgin.NewRouteHub()
	router := httpgin.NewRouter(services, httpgin.RouterDeps{
		Auth:        auth.NewManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
		Idempotency: idempotencyStore,
		Hub:         a.hub,
		Health:      store.Ping,
		Location:    cfg.Ticket.Location,
	}, logger)

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return a, nil
}

func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)

	// Start HTTP server
	g.Go(func() error {
		a.logger.Info("HTTP server listening", "host", a.cfg.Server.Host, "port", a.cfg.Server.Port)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		return nil
	})

	// Feed route changes from Redis into SSE clients
	g.Go(func() error {
		err := a.pubsub.Subscribe(gCtx, a.hub.Broadcast)
		if err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Error("route change subscription stopped", slog.Any("error", err))
		}
		return nil
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gCtx.Done()
		a.logger.Info("shutting down HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.httpServer.Shutdown(ctx)
	})

	err := g.Wait()
	a.close()

	return err
}

func (a *App) close() {
	if err := a.events.Close(); err != nil {
		a.logger.Warn("failed to close event publisher", slog.Any("error", err))
	}

	if a.tracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.logger.Warn("failed to flush traces", slog.Any("error", err))
		}
	}

	a.closeClients()
}

func (a *App) closeClients() {
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
