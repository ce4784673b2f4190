package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/frahmantamala/stay-booking/internal"
	"github.com/frahmantamala/stay-booking/internal/booking"
	bookingpg "github.com/frahmantamala/stay-booking/internal/booking/postgres"
	calendarpg "github.com/frahmantamala/stay-booking/internal/calendar/postgres"
	"github.com/frahmantamala/stay-booking/internal/core/events"
	"github.com/frahmantamala/stay-booking/internal/identity"
	"github.com/frahmantamala/stay-booking/internal/notification"
	"github.com/frahmantamala/stay-booking/internal/payment"
	paymentpg "github.com/frahmantamala/stay-booking/internal/payment/postgres"
	"github.com/frahmantamala/stay-booking/internal/paymentprovider"
	"github.com/frahmantamala/stay-booking/internal/scheduler"
	"github.com/frahmantamala/stay-booking/internal/transport"
	"github.com/frahmantamala/stay-booking/internal/transport/rest"
	"github.com/frahmantamala/stay-booking/pkg/logger"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config             *internal.Config
	DB                 *sqlx.DB
	GormDB             *gorm.DB
	Router             *chi.Mux
	Logger             *slog.Logger
	NotificationClient *notification.Client
	BookingHandler     *booking.Handler
	PaymentHandler     *payment.Handler
	WebhookHandler     *payment.WebhookHandler
	SchedulerHandler   *scheduler.Handler
	IdentityProvider   identity.Provider
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	rest.RegisterAllRoutes(
		deps.Router,
		deps.DB.DB,
		deps.Config,
		deps.IdentityProvider,
		deps.BookingHandler,
		deps.PaymentHandler,
		deps.WebhookHandler,
		deps.SchedulerHandler,
		deps.Logger,
	)

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	deps.Logger.Info("starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:         addr,
		Handler:      deps.Router,
		ReadTimeout:  deps.Config.Server.ReadTimeout,
		WriteTimeout: deps.Config.Server.WriteTimeout,
		IdleTimeout:  deps.Config.Server.IdleTimeout,
	}

	// Signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		deps.Logger.Info("received signal, shutting down...", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			deps.Logger.Error("server shutdown error", "error", err)
		}
		deps.NotificationClient.Shutdown()
		if err := deps.DB.Close(); err != nil {
			deps.Logger.Error("database close error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			deps.Logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}

	deps.Logger.Info("server stopped")
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(config.Observability.Logging.Level, config.Observability.Logging.Format)
	lg := logger.LoggerWrapper()

	db, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// GORM rides on the pgx pool sqlx already opened; one pool, one ping.
	gormDB, err := gorm.Open(gormpostgres.New(gormpostgres.Config{Conn: db.DB}), &gorm.Config{
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open gorm connection: %w", err)
	}

	eventBus := events.NewEventBus(lg)

	notificationClient := notification.NewClient(notification.Config{
		GatewayURL:     config.Notification.GatewayURL,
		APIKey:         config.Notification.APIKey,
		MaxWorkers:     config.Notification.MaxWorkers,
		JobQueueSize:   config.Notification.JobQueueSize,
		WorkerPoolSize: config.Notification.WorkerPoolSize,
	}, lg)
	notification.NewEventHandler(notificationClient, lg).RegisterHandlers(eventBus)

	var identityProvider identity.Provider
	if config.Identity.ProviderURL != "" {
		identityProvider = identity.NewHTTPProvider(config.Identity.ProviderURL, config.Identity.VerifyTimeout, lg)
	} else {
		lg.Warn("no identity provider configured, accepting any positive user id")
		identityProvider = identity.NoopProvider{}
	}

	calendarRepo := calendarpg.NewCalendarRepository(gormDB)
	bookingRepo := bookingpg.NewBookingRepository(gormDB, calendarRepo)
	paymentRepo := paymentpg.NewPaymentRepository(gormDB, calendarRepo, config.Payment.MaxTxRetries)

	providerClient := paymentprovider.NewClient(paymentprovider.Config{
		BaseURL: config.Payment.ProviderURL,
		APIKey:  config.Payment.APIKey,
		Timeout: config.Payment.Timeout(),
	}, lg)

	paymentService := payment.NewService(paymentRepo, bookingRepo, providerClient, eventBus, config.Payment.Timeout(), lg)

	bookingService := booking.NewService(bookingRepo, paymentService, eventBus, booking.ServiceConfig{
		PaymentWindow: config.Booking.Window(),
		MaxNights:     config.Booking.MaxNights,
		MaxGuests:     config.Booking.MaxGuests,
	}, lg)

	schedulerService := scheduler.NewService(bookingRepo, paymentRepo, eventBus, scheduler.Config{
		TickInterval:   config.Scheduler.Tick(),
		ReminderWindow: config.Scheduler.Reminder(),
		BatchSize:      config.Scheduler.BatchSize,
	}, lg)

	baseHandler := transport.NewBaseHandler(lg)

	return &Dependencies{
		Config:             config,
		Logger:             lg,
		DB:                 db,
		GormDB:             gormDB,
		Router:             chi.NewRouter(),
		NotificationClient: notificationClient,
		BookingHandler:     booking.NewHandler(bookingService),
		PaymentHandler:     payment.NewHandler(paymentService),
		WebhookHandler:     payment.NewWebhookHandler(baseHandler, paymentService, lg),
		SchedulerHandler:   scheduler.NewHandler(schedulerService),
		IdentityProvider:   identityProvider,
	}, nil
}

// initDB initializes the database connection
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// verify connection; close underlying *sql.DB on failure
	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return dbConn, nil
}
