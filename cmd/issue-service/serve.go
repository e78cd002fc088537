package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/issue-service/internal/api/http"
	"github.com/spec-kit/issue-service/internal/api/http/handlers"
	"github.com/spec-kit/issue-service/internal/auth"
	"github.com/spec-kit/issue-service/internal/config"
	"github.com/spec-kit/issue-service/internal/events"
	"github.com/spec-kit/issue-service/internal/observability"
	"github.com/spec-kit/issue-service/internal/payment"
	"github.com/spec-kit/issue-service/internal/persistence"
	"github.com/spec-kit/issue-service/internal/repository"
	"github.com/spec-kit/issue-service/internal/repository/memory"
	"github.com/spec-kit/issue-service/internal/service"
	"github.com/spec-kit/issue-service/internal/worker"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE:  runServe,
	}
}

type repositories struct {
	issues      repository.IssueRepository
	timeline    repository.TimelineRepository
	assignments repository.AssignmentRepository
	users       repository.UserRepository
	payments    repository.PaymentRepository
}

func newRepositories(pg *persistence.Postgres) repositories {
	pool := pg.PoolHandle()
	if pool == nil {
		store := memory.NewStore()
		return repositories{
			issues:      store.Issues(),
			timeline:    store.Timeline(),
			assignments: store.Assignments(),
			users:       store.Users(),
			payments:    store.Payments(),
		}
	}
	return repositories{
		issues:      repository.NewIssueRepository(pool),
		timeline:    repository.NewTimelineRepository(pool),
		assignments: repository.NewAssignmentRepository(pool),
		users:       repository.NewUserRepository(pool),
		payments:    repository.NewPaymentRepository(pool),
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	repos := newRepositories(pg)
	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()

	var (
		locker    persistence.Locker
		publisher events.Publisher
	)
	if redis != nil {
		locker = persistence.NewRedisLocker(redis, "issue-service:")
		publisher = events.NewRedisStreamPublisher(redis.Client, cfg.Events.Stream)
	} else {
		locker = persistence.NewLocalLocker()
	}

	notifications := service.NewNotificationService(dispatcher, logger)
	notificationWorker := worker.StartNotificationWorker(ctx, notifications, publisher, logger, 0)
	defer notificationWorker.Stop()

	var processor payment.Processor
	if cfg.Payment.StripeSecretKey != "" {
		processor = payment.NewStripeProcessor(payment.StripeConfig{
			SecretKey:     cfg.Payment.StripeSecretKey,
			WebhookSecret: cfg.Payment.StripeWebhookSecret,
			MaxRetries:    cfg.Payment.MaxRetries,
		}, logger)
	} else {
		logger.Warn("STRIPE_SECRET_KEY not provided; payments disabled")
		processor = payment.NewDisabledProcessor()
	}

	timeline := service.NewTimelineService(repos.issues, repos.timeline)
	issueService := service.NewIssueService(service.IssueDependencies{
		IssueRepo:      repos.issues,
		AssignmentRepo: repos.assignments,
		Timeline:       timeline,
		Dispatcher:     dispatcher,
		Logger:         logger,
		FreeIssueLimit: cfg.Policy.FreeIssueLimit,
		BoostPrice:     cfg.Payment.BoostAmount,
	})
	assignmentService := service.NewAssignmentService(service.AssignmentDependencies{
		IssueRepo:      repos.issues,
		AssignmentRepo: repos.assignments,
		UserRepo:       repos.users,
		Timeline:       timeline,
		Dispatcher:     dispatcher,
		Logger:         logger,
	})
	userService := service.NewUserService(repos.users)
	paymentService := service.NewPaymentService(service.PaymentDependencies{
		PaymentRepo: repos.payments,
		IssueRepo:   repos.issues,
		UserRepo:    repos.users,
		Timeline:    timeline,
		Processor:   processor,
		Locker:      locker,
		Dispatcher:  dispatcher,
		Metrics:     metrics,
		Logger:      logger,
		Config:      cfg.Payment,
	})

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTLMinutes)
	authMiddleware := auth.NewAuthMiddleware(tokens, repos.users)

	dependencies := map[string]handlers.Pinger{}
	if pg.PoolHandle() != nil {
		dependencies["postgres"] = pg
	}
	if redis != nil {
		dependencies["redis"] = redis
	}

	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: true,
		Immutable:             true,
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, metrics, dependencies),
		Users:          handlers.NewUsersHandler(userService),
		Issues:         handlers.NewIssuesHandler(issueService, timeline),
		Staff:          handlers.NewStaffHandler(issueService, assignmentService),
		Admin:          handlers.NewAdminHandler(issueService, assignmentService, userService),
		Payments:       handlers.NewPaymentsHandler(paymentService),
		AuthMiddleware: authMiddleware,
	})

	listenErr := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.App.Addr()), zap.String("env", cfg.App.Env))
		listenErr <- app.Listen(cfg.App.Addr())
	}()

	select {
	case err := <-listenErr:
		return fmt.Errorf("fiber listen: %w", err)
	case sig := <-shutdownSignal():
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		logger.Warn("graceful shutdown incomplete", zap.Error(err))
	}
	return nil
}

func shutdownSignal() <-chan os.Signal {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	return sigCh
}
