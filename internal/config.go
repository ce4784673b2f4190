package internal

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"http_server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Booking       BookingConfig       `mapstructure:"booking"`
	Payment       PaymentConfig       `mapstructure:"payment"`
	Scheduler     SchedulerConfig     `mapstructure:"scheduler"`
	Notification  NotificationConfig  `mapstructure:"notification"`
	Identity      IdentityConfig      `mapstructure:"identity"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	BaseURL           string        `mapstructure:"base_url"`
	AllowedOrigins    string        `mapstructure:"allowed_origins"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"required,min=1"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"required,min=1"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" validate:"required,min=1m"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time" validate:"required,min=1m"`
	Source          string        `mapstructure:"source"`
}

type BookingConfig struct {
	// PaymentWindow is how long a guest has to pay the reservation amount
	// after the host accepts.
	PaymentWindow time.Duration `mapstructure:"payment_window"`
	MaxNights     int           `mapstructure:"max_nights"`
	MaxGuests     int           `mapstructure:"max_guests"`
}

type PaymentConfig struct {
	ProviderURL   string        `mapstructure:"provider_url" validate:"required,url"`
	APIKey        string        `mapstructure:"api_key"`
	ChargeTimeout time.Duration `mapstructure:"charge_timeout"`
	MaxTxRetries  int           `mapstructure:"max_tx_retries"`
}

type SchedulerConfig struct {
	TickInterval   time.Duration `mapstructure:"tick_interval"`
	ReminderWindow time.Duration `mapstructure:"reminder_window"`
	BatchSize      int           `mapstructure:"batch_size"`
}

type NotificationConfig struct {
	GatewayURL     string `mapstructure:"gateway_url"`
	APIKey         string `mapstructure:"api_key"`
	MaxWorkers     int    `mapstructure:"max_workers"`
	JobQueueSize   int    `mapstructure:"job_queue_size"`
	WorkerPoolSize int    `mapstructure:"worker_pool_size"`
}

type IdentityConfig struct {
	ProviderURL   string        `mapstructure:"provider_url"`
	VerifyTimeout time.Duration `mapstructure:"verify_timeout"`
}

type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"required,oneof=json text"`
}

// ----------------- DEFAULTS -----------------

const (
	DefaultPaymentWindow  = 6 * time.Hour
	DefaultReminderWindow = 30 * time.Minute
	DefaultTickInterval   = time.Minute
	DefaultChargeTimeout  = 30 * time.Second
	DefaultMaxTxRetries   = 3
)

func (c *BookingConfig) Window() time.Duration {
	if c.PaymentWindow <= 0 {
		return DefaultPaymentWindow
	}
	return c.PaymentWindow
}

func (c *SchedulerConfig) Tick() time.Duration {
	if c.TickInterval <= 0 {
		return DefaultTickInterval
	}
	return c.TickInterval
}

func (c *SchedulerConfig) Reminder() time.Duration {
	if c.ReminderWindow <= 0 {
		return DefaultReminderWindow
	}
	return c.ReminderWindow
}

func (c *PaymentConfig) Timeout() time.Duration {
	if c.ChargeTimeout <= 0 {
		return DefaultChargeTimeout
	}
	return c.ChargeTimeout
}

func (c *PaymentConfig) TxRetries() int {
	if c.MaxTxRetries <= 0 {
		return DefaultMaxTxRetries
	}
	return c.MaxTxRetries
}

// ----------------- ENV LOADING -----------------

// LoadConfigFromEnv builds the config from environment variables, used for
// container deployments where no config file is mounted.
func LoadConfigFromEnv() *Config {
	return &Config{
		Server: ServerConfig{
			Port:              getEnvAsInt("HTTP_PORT", 8080),
			BaseURL:           getEnv("BASE_URL", "http://localhost:8080"),
			AllowedOrigins:    getEnv("ALLOWED_ORIGINS", "*"),
			ReadHeaderTimeout: getEnvAsDuration("READ_HEADER_TIMEOUT", 5*time.Second),
			ReadTimeout:       getEnvAsDuration("READ_TIMEOUT", 15*time.Second),
			IdleTimeout:       getEnvAsDuration("IDLE_TIMEOUT", 60*time.Second),
			WriteTimeout:      getEnvAsDuration("WRITE_TIMEOUT", 15*time.Second),
		},
		Database: DatabaseConfig{
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvAsDuration("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
			Source:          getEnv("DATABASE_URL", ""),
		},
		Booking: BookingConfig{
			PaymentWindow: getEnvAsDuration("BOOKING_PAYMENT_WINDOW", DefaultPaymentWindow),
			MaxNights:     getEnvAsInt("BOOKING_MAX_NIGHTS", 90),
			MaxGuests:     getEnvAsInt("BOOKING_MAX_GUESTS", 16),
		},
		Payment: PaymentConfig{
			ProviderURL:   getEnv("PAYMENT_PROVIDER_URL", ""),
			APIKey:        getEnv("PAYMENT_API_KEY", ""),
			ChargeTimeout: getEnvAsDuration("PAYMENT_CHARGE_TIMEOUT", DefaultChargeTimeout),
			MaxTxRetries:  getEnvAsInt("PAYMENT_MAX_TX_RETRIES", DefaultMaxTxRetries),
		},
		Scheduler: SchedulerConfig{
			TickInterval:   getEnvAsDuration("SCHEDULER_TICK_INTERVAL", DefaultTickInterval),
			ReminderWindow: getEnvAsDuration("SCHEDULER_REMINDER_WINDOW", DefaultReminderWindow),
			BatchSize:      getEnvAsInt("SCHEDULER_BATCH_SIZE", 100),
		},
		Notification: NotificationConfig{
			GatewayURL:     getEnv("NOTIFICATION_GATEWAY_URL", ""),
			APIKey:         getEnv("NOTIFICATION_API_KEY", ""),
			MaxWorkers:     getEnvAsInt("NOTIFICATION_MAX_WORKERS", 10),
			JobQueueSize:   getEnvAsInt("NOTIFICATION_JOB_QUEUE_SIZE", 100),
			WorkerPoolSize: getEnvAsInt("NOTIFICATION_WORKER_POOL_SIZE", 10),
		},
		Identity: IdentityConfig{
			ProviderURL:   getEnv("IDENTITY_PROVIDER_URL", ""),
			VerifyTimeout: getEnvAsDuration("IDENTITY_VERIFY_TIMEOUT", 5*time.Second),
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "json"),
			},
		},
	}
}

// ----------------- HELPERS -----------------

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultVal
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	var errs []string

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	if err := c.Payment.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("payment config: %v", err))
	}

	if err := c.Scheduler.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("scheduler config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.AllowedOrigins != "" {
		origins := strings.Split(c.AllowedOrigins, ",")
		for _, origin := range origins {
			origin = strings.TrimSpace(origin)
			if origin == "*" {
				continue
			}
			if _, err := url.Parse(origin); err != nil {
				return fmt.Errorf("invalid allowed origin %s: %w", origin, err)
			}
		}
	}
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *DatabaseConfig) Validate() error {
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return c.Source
}

func (c *PaymentConfig) Validate() error {
	if c.ProviderURL == "" {
		return errors.New("provider_url is required")
	}
	if _, err := url.Parse(c.ProviderURL); err != nil {
		return fmt.Errorf("invalid provider_url: %w", err)
	}
	return nil
}

func (c *SchedulerConfig) Validate() error {
	if c.TickInterval < 0 {
		return errors.New("tick_interval cannot be negative")
	}
	if c.ReminderWindow < 0 {
		return errors.New("reminder_window cannot be negative")
	}
	return nil
}
