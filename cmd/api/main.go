package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/mukund1606/taxmann-project/internal/api/http"
	"github.com/mukund1606/taxmann-project/internal/api/http/handlers"
	"github.com/mukund1606/taxmann-project/internal/auth"
	"github.com/mukund1606/taxmann-project/internal/classifier"
	"github.com/mukund1606/taxmann-project/internal/config"
	"github.com/mukund1606/taxmann-project/internal/events"
	"github.com/mukund1606/taxmann-project/internal/messaging"
	"github.com/mukund1606/taxmann-project/internal/observability"
	"github.com/mukund1606/taxmann-project/internal/persistence"
	"github.com/mukund1606/taxmann-project/internal/repository"
	"github.com/mukund1606/taxmann-project/internal/service"
	"github.com/mukund1606/taxmann-project/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis, err := persistence.NewRedis(ctx, cfg.Redis, logger)
	if err != nil {
		logger.Fatal("invalid redis configuration", zap.Error(err))
	}
	defer redis.Close()

	readiness := map[string]handlers.Pinger{"redis": redis}

	var (
		accounts repository.AccountStores
		tickets  repository.TicketRepository
		history  repository.TicketHistoryRepository
	)
	if pg.Configured() {
		pool := pg.PoolHandle()
		accounts = repository.NewAccountStores(pool)
		tickets = repository.NewTicketRepository(pool)
		history = repository.NewTicketHistoryRepository(pool)
		readiness["postgres"] = pg
	} else {
		accounts = repository.NewMemoryAccountStores()
		tickets = repository.NewMemoryTicketRepository()
		history = repository.NewMemoryTicketHistoryRepository()
	}

	cipher, err := auth.NewPasswordCipher(cfg.Auth)
	if err != nil {
		logger.Fatal("failed to init password cipher", zap.Error(err))
	}
	tokens := auth.NewTokenManager(cfg.Auth.SessionSecret, cfg.Auth.SessionTTL())
	metrics := observability.NewMetrics()

	dispatcher := events.NewInMemoryDispatcher()
	var (
		publisher service.EventPublisher
		notifier  *worker.NotificationWorker
	)
	if cfg.Notification.AMQPURL != "" {
		conn, pub, err := messaging.Dial(cfg.Notification.AMQPURL, cfg.Notification.Exchange)
		if err != nil {
			logger.Warn("event broker unavailable; events will only be logged", zap.Error(err))
		} else {
			defer conn.Close() //nolint:errcheck
			notifier = worker.NewNotificationWorker(pub, cfg.Notification.QueueSize, logger)
			notifier.Start()
			publisher = notifier
		}
	}
	worker.StartNotificationWorker(service.NewNotificationService(dispatcher, publisher, logger))

	authService := service.NewAuthService(service.AuthDependencies{
		Accounts: accounts,
		Cipher:   cipher,
		Tokens:   tokens,
		Metrics:  metrics,
		Logger:   logger,
	})
	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:  tickets,
		HistoryRepo: history,
		Dispatcher:  dispatcher,
		Metrics:     metrics,
		Logger:      logger,
	})

	if cfg.Auth.BootstrapAdminEnabled() {
		_, _, err := authService.EnsureAdmin(ctx, service.RegisterInput{
			Name:     cfg.Auth.BootstrapAdminName,
			Email:    cfg.Auth.BootstrapAdminEmail,
			Password: cfg.Auth.BootstrapAdminPassword,
		})
		if err != nil {
			logger.Fatal("failed to bootstrap admin account", zap.Error(err))
		}
	}

	var predictor handlers.CategoryPredictor
	if client := classifier.New(cfg.Classifier, logger); client != nil {
		predictor = client
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		BodyLimit:    1 << 20,
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, readiness),
		Session:        handlers.NewSessionHandler(authService, cfg.App.Env == "production"),
		Tickets:        handlers.NewTicketsHandler(ticketService, predictor),
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
		SignInLimiter: auth.NewSignInLimiter(redis.Handle(), cfg.Auth.SignInRateCapacity,
			cfg.Auth.SignInRateWindow(), logger),
		Metrics: metrics,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}
	if notifier != nil {
		drainCtx, drainCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := notifier.Stop(drainCtx); err != nil {
			logger.Warn("notification queue not drained", zap.Error(err))
		}
		drainCancel()
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
