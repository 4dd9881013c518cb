package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/NeFoRMaLiK-pixel/upcontacts/internal/auth"
	"github.com/NeFoRMaLiK-pixel/upcontacts/internal/cache"
	"github.com/NeFoRMaLiK-pixel/upcontacts/internal/config"
	"github.com/NeFoRMaLiK-pixel/upcontacts/internal/event"
	handler "github.com/NeFoRMaLiK-pixel/upcontacts/internal/handler/http"
	"github.com/NeFoRMaLiK-pixel/upcontacts/internal/mail"
	"github.com/NeFoRMaLiK-pixel/upcontacts/internal/mail/logsender"
	"github.com/NeFoRMaLiK-pixel/upcontacts/internal/mail/smtp"
	"github.com/NeFoRMaLiK-pixel/upcontacts/internal/repository/postgres"
	"github.com/NeFoRMaLiK-pixel/upcontacts/internal/service"
	"github.com/NeFoRMaLiK-pixel/upcontacts/internal/storage"
	"github.com/NeFoRMaLiK-pixel/upcontacts/internal/storage/memory"
	"github.com/NeFoRMaLiK-pixel/upcontacts/internal/storage/s3"
	"github.com/NeFoRMaLiK-pixel/upcontacts/migrations"
	"github.com/NeFoRMaLiK-pixel/upcontacts/pkg/breaker"
	"github.com/NeFoRMaLiK-pixel/upcontacts/pkg/database"
	"github.com/NeFoRMaLiK-pixel/upcontacts/pkg/health"
	pkgkafka "github.com/NeFoRMaLiK-pixel/upcontacts/pkg/kafka"
	"github.com/NeFoRMaLiK-pixel/upcontacts/pkg/middleware"
	"github.com/NeFoRMaLiK-pixel/upcontacts/pkg/tracing"
)

// App wires together all dependencies and runs the contacts API.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	redis          *redis.Client
	producer       *pkgkafka.Producer
	dlq            *pkgkafka.DLQProducer
	bus            *event.LocalBus
	consumers      []*pkgkafka.Consumer
	httpServer     *http.Server
	tracerShutdown func(context.Context) error

	// background bounds the rate limiter cleanup goroutines.
	background context.Context
	stop       context.CancelFunc
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a := &App{cfg: cfg, logger: logger}
	a.background, a.stop = context.WithCancel(context.Background())

	ok := false
	defer func() {
		if !ok {
			a.closeResources()
		}
	}()

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    cfg.ServiceName,
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		Insecure:       cfg.IsDevelopment(),
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	a.tracerShutdown = tracerShutdown

	// Initialize PostgreSQL connection pool.
	pgCfg := cfg.Postgres()
	a.pool, err = database.NewPostgresPool(ctx, &pgCfg, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)
	if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, a.pool, cfg.ServiceName); err != nil {
		logger.Warn("pool metrics not registered", slog.String("error", err.Error()))
	}

	// Run database migrations.
	if err := database.RunMigrations(ctx, a.pool, migrations.FS, logger); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations completed")

	// Configure slow query logging.
	if cfg.SlowQueryThreshold > 0 {
		database.SetSlowQueryLogging(cfg.SlowQueryThreshold, logger)
	}

	// Redis user cache. The API keeps working without it.
	var userCache *cache.UserCache
	if cfg.RedisEnabled {
		client, err := database.NewRedisClient(ctx, cfg.Redis())
		if err != nil {
			logger.Warn("redis unavailable, user cache disabled", slog.String("error", err.Error()))
		} else {
			a.redis = client
			userCache = cache.NewUserCache(client, cfg.CacheUserTTL)
			logger.Info("connected to Redis")
		}
	}

	// Outgoing mail.
	var sender mail.Sender
	if cfg.SMTPHost != "" {
		sender = smtp.New(smtp.Config{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			Timeout:  cfg.SMTPTimeout,
		})
	} else {
		sender = logsender.New(logger)
	}
	sender = mail.WithBreaker(sender, breaker.New(breaker.DefaultConfig("mail"), logger))
	logger.Info("mail sender initialized", slog.String("sender", sender.Name()))

	// Avatar storage.
	var (
		avatars storage.Storage
		media   handler.MediaSource
	)
	if cfg.S3Bucket != "" {
		s3Store, err := s3.New(ctx, s3.Config{
			Bucket:       cfg.S3Bucket,
			Region:       cfg.S3Region,
			Endpoint:     cfg.S3Endpoint,
			PublicURL:    cfg.S3PublicURL,
			UsePathStyle: cfg.S3UsePathStyle,
		})
		if err != nil {
			return nil, fmt.Errorf("init s3 storage: %w", err)
		}
		avatars = s3Store
		logger.Info("avatar storage initialized", slog.String("bucket", cfg.S3Bucket))
	} else {
		memStore := memory.New(cfg.AppPublicURL)
		avatars, media = memStore, memStore
		logger.Info("avatar storage initialized in memory")
	}
	avatars = storage.WithBreaker(avatars, breaker.New(breaker.DefaultConfig("avatar-storage"), logger))

	// Domain events: Kafka when enabled, otherwise dispatched in-process.
	notifier := event.NewConsumerHandler(sender, cfg.AppPublicURL, logger)
	var publisher event.Publisher
	if cfg.KafkaEnabled {
		a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		publisher = a.producer
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))

		opts := event.ConsumerOptions{Brokers: cfg.KafkaBrokers, GroupID: cfg.KafkaConsumerGroup}
		if a.redis != nil {
			opts.Store = pkgkafka.NewRedisIdempotencyStore(a.redis, "upcontacts:processed:", 24*time.Hour)
		} else {
			opts.Store = pkgkafka.NewMemoryIdempotencyStore(24 * time.Hour)
		}
		if cfg.KafkaDLQEnabled {
			a.dlq = pkgkafka.NewDLQProducer(cfg.KafkaBrokers, logger)
			opts.DLQ = a.dlq
		}
		a.consumers = event.NewConsumers(opts, notifier, logger)
	} else {
		a.bus = event.NewLocalBus(logger)
		event.SubscribeLocal(a.bus, notifier)
		publisher = a.bus
		logger.Info("kafka disabled, dispatching events in-process")
	}
	eventProducer := event.NewProducer(publisher, logger)

	// Build the dependency graph.
	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTAccessExpiry, cfg.JWTRefreshExpiry)
	userRepo := postgres.NewUserRepository(a.pool)
	contactRepo := postgres.NewContactRepository(a.pool)
	refreshTokenRepo := postgres.NewRefreshTokenRepository(a.pool)

	// A typed nil *cache.UserCache would not compare equal to nil inside
	// the service, so the interface stays unset without Redis.
	var authCache service.UserCache
	var redisPinger handler.Pinger
	if userCache != nil {
		authCache = userCache
		redisPinger = userCache
	} else if cfg.RedisEnabled {
		redisPinger = disconnected{}
	}

	authService := service.NewAuthService(userRepo, refreshTokenRepo, jwtManager, authCache, eventProducer, avatars,
		service.AuthOptions{
			RequireVerifiedEmail: cfg.AuthRequireVerifiedEmail,
			ResetTTL:             cfg.PasswordResetTTL,
		}, logger)
	contactService := service.NewContactService(contactRepo, eventProducer, logger)

	// Health checks.
	healthHandler := health.NewHandler()
	healthHandler.Register("postgres", database.PingCheck(a.pool))
	if userCache != nil {
		healthHandler.RegisterOptional("redis", userCache.Ping)
	}
	if a.producer != nil {
		healthHandler.RegisterOptional("kafka", a.producer.Ping)
	}

	cors := middleware.CORSConfig{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowCredentials: cfg.CORSAllowCredentials,
	}

	// HTTP router.
	router := handler.NewRouter(a.background, handler.RouterConfig{
		ServiceName: cfg.ServiceName,
		Auth:        authService,
		Contacts:    contactService,
		Health:      healthHandler,
		Redis:       redisPinger,
		Media:       media,
		CORS:        cors,
		ContactCreate: middleware.RateLimitConfig{
			Name:           "contact_create",
			Requests:       cfg.RateLimitContactCreate,
			Period:         cfg.RateLimitPeriod,
			TrustedProxies: cfg.TrustedProxyCIDRs,
		},
		PprofAllowedCIDRs: cfg.PprofAllowedCIDRs,
		Logger:            logger,
	})

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      35 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ok = true
	return a, nil
}

// Run starts the HTTP server and Kafka consumers, then blocks until the
// context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	// Start Kafka consumers.
	for _, consumer := range a.consumers {
		c := consumer
		go func() {
			if err := c.Start(ctx); err != nil {
				a.logger.Error("kafka consumer error", slog.String("error", err.Error()))
			}
		}()
	}

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		_ = a.Shutdown()
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components in the correct order:
// 1. HTTP server (drain in-flight requests)
// 2. Kafka consumers
// 3. Tracer (flush pending spans from drained requests)
// 4. Event publisher (Kafka producer or in-process bus)
// 5. Redis and PostgreSQL
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	// 1. Drain in-flight HTTP requests (5s budget).
	httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// 2. Stop consuming before the mail path goes away.
	for _, consumer := range a.consumers {
		if err := consumer.Close(); err != nil {
			a.logger.Error("kafka consumer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	// 3. Flush pending spans after HTTP drain so in-flight request spans are captured.
	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
		a.tracerShutdown = nil
	}

	// 4 and 5.
	errs = append(errs, a.closeResources()...)

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

// closeResources releases everything NewApp may have opened. It is safe to
// call on a partially built App.
func (a *App) closeResources() []error {
	var errs []error

	if a.stop != nil {
		a.stop()
	}
	if a.tracerShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := a.tracerShutdown(ctx); err != nil {
			errs = append(errs, err)
		}
		a.tracerShutdown = nil
	}
	if a.bus != nil {
		if err := a.bus.Close(); err != nil {
			a.logger.Error("event bus close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
		a.bus = nil
	}
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
		a.producer = nil
	}
	if a.dlq != nil {
		if err := a.dlq.Close(); err != nil {
			a.logger.Error("kafka dlq producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
		a.dlq = nil
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
		a.redis = nil
	}
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}

	return errs
}

// disconnected reports Redis as down when it was enabled but unreachable at
// startup.
type disconnected struct{}

func (disconnected) Ping(context.Context) error {
	return errors.New("redis not connected")
}
