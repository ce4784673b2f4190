package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"

	bookingpg "github.com/frahmantamala/stay-booking/internal/booking/postgres"
	calendarpg "github.com/frahmantamala/stay-booking/internal/calendar/postgres"
	"github.com/frahmantamala/stay-booking/internal/core/events"
	"github.com/frahmantamala/stay-booking/internal/notification"
	paymentpg "github.com/frahmantamala/stay-booking/internal/payment/postgres"
	"github.com/frahmantamala/stay-booking/internal/scheduler"
	"github.com/frahmantamala/stay-booking/pkg/logger"
)

var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Run the payment deadline scheduler",
	Long:  `Run the background loop that expires unpaid bookings and sends payment reminders.`,
	Run: func(cmd *cobra.Command, args []string) {
		startScheduler()
	},
}

func startScheduler() {
	config, err := loadConfig(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(config.Observability.Logging.Level, config.Observability.Logging.Format)
	lg := logger.LoggerWrapper()

	db, err := initDB(config.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	gormDB, err := gorm.Open(gormpostgres.New(gormpostgres.Config{Conn: db.DB}), &gorm.Config{
		TranslateError: true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open gorm connection: %v\n", err)
		os.Exit(1)
	}

	eventBus := events.NewEventBus(lg)

	notificationClient := notification.NewClient(notification.Config{
		GatewayURL:     config.Notification.GatewayURL,
		APIKey:         config.Notification.APIKey,
		MaxWorkers:     config.Notification.MaxWorkers,
		JobQueueSize:   config.Notification.JobQueueSize,
		WorkerPoolSize: config.Notification.WorkerPoolSize,
	}, lg)
	defer notificationClient.Shutdown()
	notification.NewEventHandler(notificationClient, lg).RegisterHandlers(eventBus)

	calendarRepo := calendarpg.NewCalendarRepository(gormDB)
	bookingRepo := bookingpg.NewBookingRepository(gormDB, calendarRepo)
	paymentRepo := paymentpg.NewPaymentRepository(gormDB, calendarRepo, config.Payment.MaxTxRetries)

	svc := scheduler.NewService(bookingRepo, paymentRepo, eventBus, scheduler.Config{
		TickInterval:   config.Scheduler.Tick(),
		ReminderWindow: config.Scheduler.Reminder(),
		BatchSize:      config.Scheduler.BatchSize,
	}, lg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		lg.Info("received signal, stopping scheduler", "signal", sig)
		cancel()
	}()

	svc.Run(ctx)
}
