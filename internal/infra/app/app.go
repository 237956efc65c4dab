package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/beridzemate00/codereview/internal/core/port"
	"github.com/beridzemate00/codereview/internal/infra/config"
	"github.com/beridzemate00/codereview/internal/infra/database"
	kafkainfra "github.com/beridzemate00/codereview/internal/infra/kafka"
	"github.com/beridzemate00/codereview/internal/infra/logger"
	"github.com/beridzemate00/codereview/internal/infra/notify"
	redisinfra "github.com/beridzemate00/codereview/internal/infra/redis"
	"github.com/beridzemate00/codereview/internal/infra/security"
	"github.com/beridzemate00/codereview/internal/infra/telemetry"
	postgresrepo "github.com/beridzemate00/codereview/internal/repository/postgres"
	redisrepo "github.com/beridzemate00/codereview/internal/repository/redis"
	"github.com/beridzemate00/codereview/internal/transport/http/middleware"
	"github.com/beridzemate00/codereview/internal/transport/http/routes"
	"github.com/beridzemate00/codereview/internal/usecase"
)

const shutdownTimeout = 10 * time.Second

type Application struct {
	cfg        *config.AppConfig
	engine     *gin.Engine
	logger     *zap.Logger
	pool       *pgxpool.Pool
	redis      *redisinfra.Client
	producer   *kafkainfra.Producer
	tracer     *telemetry.TracerProvider
	dispatcher *notify.Dispatcher
	resets     *usecase.ResetTokenStore
	metrics    *telemetry.AuthMetrics
}

func New(ctx context.Context, cfg *config.AppConfig) (_ *Application, err error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &Application{cfg: cfg, logger: log}
	defer func() {
		if err != nil {
			a.close(context.Background())
		}
	}()

	a.tracer, err = telemetry.NewTracerProvider(ctx, cfg.Telemetry, log)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	if cfg.Postgres.AutoMigrate {
		if err := migrate(cfg.Postgres, log); err != nil {
			return nil, err
		}
	}

	a.pool, err = database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	if cfg.Redis.Enabled {
		a.redis, err = redisinfra.NewClient(ctx, cfg.Redis, log)
		if err != nil {
			return nil, fmt.Errorf("init redis: %w", err)
		}
	}

	a.metrics, err = telemetry.NewAuthMetrics(prometheus.DefaultRegisterer)
	if err != nil {
		return nil, fmt.Errorf("init auth metrics: %w", err)
	}
	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{})
	if err != nil {
		return nil, fmt.Errorf("init http metrics: %w", err)
	}

	hasher, err := security.NewArgon2Hasher(security.Argon2Config{
		Memory:      cfg.Argon2.Memory,
		Iterations:  cfg.Argon2.Iterations,
		Parallelism: cfg.Argon2.Parallelism,
		SaltLength:  cfg.Argon2.SaltLength,
		KeyLength:   cfg.Argon2.KeyLength,
	})
	if err != nil {
		return nil, fmt.Errorf("init password hasher: %w", err)
	}

	secrets, err := security.NewSecretGenerator(security.DefaultSecretBytes)
	if err != nil {
		return nil, fmt.Errorf("init secret generator: %w", err)
	}

	sessions, err := security.NewSessionIssuer(cfg.Session.SigningSecret, cfg.Session.Issuer, cfg.Session.TTL)
	if err != nil {
		return nil, fmt.Errorf("init session issuer: %w", err)
	}

	var resetRepo port.ResetRequestRepository
	switch cfg.Reset.Store {
	case config.ResetStoreRedis:
		resetRepo = redisrepo.NewResetRequestRepository(a.redis.Client(), cfg.Redis.KeyPrefix)
	default:
		resetRepo = postgresrepo.NewResetRequestRepository(a.pool)
	}
	log.Info("reset request store selected", zap.String("store", cfg.Reset.Store))

	a.resets = usecase.NewResetTokenStore(resetRepo, secrets, log,
		usecase.WithReservationLease(cfg.Reset.ReservationLease),
		usecase.WithRetention(cfg.Reset.Retention),
	)

	notifier, err := a.buildNotifier(cfg, log)
	if err != nil {
		return nil, err
	}

	a.dispatcher = notify.NewDispatcher(notify.DispatcherOptions{
		Workers:    cfg.Notify.Workers,
		QueueSize:  cfg.Notify.QueueSize,
		JobTimeout: cfg.Notify.JobTimeout,
		Drops:      a.metrics,
	}, log)

	authService, err := usecase.NewAuthService(usecase.AuthDependencies{
		Accounts:   postgresrepo.NewAccountRepository(a.pool),
		Resets:     a.resets,
		Hasher:     hasher,
		Sessions:   sessions,
		Notifier:   notifier,
		Background: a.dispatcher,
		Passwords: security.NewPolicyValidator(security.PasswordPolicy{
			MinLength:        cfg.Password.MinLength,
			MaxLength:        cfg.Password.MaxLength,
			MinStrengthScore: cfg.Password.MinStrengthScore,
		}),
		Logger:  log,
		Metrics: a.metrics,
		Tracer:  a.tracer.Tracer(telemetry.TracerName),
	}, usecase.AuthSettings{
		FrontendBaseURL: cfg.App.FrontendBaseURL,
		DevMode:         cfg.App.DevMode,
		NotifyTimeout:   cfg.Reset.NotifyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("init auth service: %w", err)
	}

	deps := routes.Dependencies{
		Config:      cfg,
		Logger:      log,
		Auth:        authService,
		HTTPMetrics: httpMetrics,
		Tracer:      a.tracer.Tracer(telemetry.TracerName + "/http"),
		Database:    a.pool,
	}
	if a.redis != nil {
		deps.Cache = a.redis
	}
	a.engine = routes.Register(deps)

	return a, nil
}

func (a *Application) buildNotifier(cfg *config.AppConfig, log *zap.Logger) (port.Notifier, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		log.Info("kafka brokers not configured, notifications are only logged")
		return notify.NewLogNotifier(log, cfg.App.DevMode), nil
	}

	producer, err := kafkainfra.NewProducer(cfg.Kafka, log)
	if err != nil {
		return nil, fmt.Errorf("init kafka producer: %w", err)
	}
	a.producer = producer
	log.Info("kafka notifier initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
	return kafkainfra.NewNotifier(producer, cfg.App, log), nil
}

func migrate(cfg config.PostgresSettings, log *zap.Logger) error {
	m, err := database.NewMigrator(database.DSN(cfg))
	if err != nil {
		return fmt.Errorf("init migrator: %w", err)
	}
	defer func() {
		if err := m.Close(); err != nil {
			log.Warn("close migrator", zap.Error(err))
		}
	}()

	if err := m.Up(); err != nil {
		return err
	}
	version, dirty, err := m.Version()
	if err != nil {
		return err
	}
	log.Info("database migrated", zap.Uint("version", version), zap.Bool("dirty", dirty))
	return nil
}

// Run serves HTTP and purges expired reset requests until ctx is cancelled
// or the server fails, then shuts everything down.
func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting codereview auth API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
		zap.Bool("dev_mode", a.cfg.App.DevMode),
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("run server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		runJanitor(gctx, a.cfg.Reset.PurgeInterval, a.resets.Purge, a.metrics, a.logger)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	})

	err := g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	a.close(shutdownCtx)

	return err
}

// close releases resources in reverse dependency order. Queued notifications
// are drained before the producer goes away.
func (a *Application) close(ctx context.Context) {
	if a.dispatcher != nil {
		if err := a.dispatcher.Close(ctx); err != nil {
			a.logger.Warn("drain notifications", zap.Error(err))
		}
	}
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Warn("close kafka producer", zap.Error(err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("close redis", zap.Error(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if err := a.tracer.Shutdown(ctx); err != nil {
		a.logger.Warn("shutdown tracer", zap.Error(err))
	}
}

type purgeRecorder interface {
	Purged(n int64)
}

// runJanitor calls purge every interval until ctx is done. A non-positive
// interval disables it.
func runJanitor(ctx context.Context, interval time.Duration, purge func(context.Context) (int64, error), rec purgeRecorder, log *zap.Logger) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := purge(ctx)
			if err != nil {
				if ctx.Err() == nil {
					log.Warn("purge expired reset requests", zap.Error(err))
				}
				continue
			}
			rec.Purged(n)
		}
	}
}
