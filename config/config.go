package config

import (
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Database configuration
	DatabaseURL string

	// Scheduler configuration
	BatchLimit        int           // max user prefs scanned per tick (0 = no limit)
	WorkerCount       int           // concurrent per-user summary flows
	GraceWindow       time.Duration // how long past summary_time a user stays due (0 = until local midnight)
	StaleRunThreshold time.Duration // running runs older than this are reported as stuck
	DaemonSchedule    string        // cron expression for daemon mode ticks

	// Content generation
	SummaryFlowURL string        // HTTP endpoint of the summary generation flow
	FlowTimeout    time.Duration // per-user generation deadline

	// Delivery
	OutboxBatchSize     int           // pending entries drained per tick
	MaxDeliveryAttempts int           // attempt ceiling per entry per drain
	DeliveryTimeout     time.Duration // per-attempt send deadline

	// SMS channel (Twilio)
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string

	// Discord channel
	DiscordToken string

	// Push channel (AMQP)
	AMQPURL      string
	PushExchange string

	// Environment
	Environment string // "development", "production" or "test"
}

var (
	instance *Config
	once     sync.Once
)

// Get returns the global configuration instance
func Get() *Config {
	once.Do(func() {
		var err error
		instance, err = load()
		if err != nil {
			panic(fmt.Sprintf("failed to load config: %v", err))
		}
	})
	return instance
}

// load loads configuration from the environment, with an optional .env file
func load() (*Config, error) {
	// Missing .env is fine; real deployments set the environment directly
	_ = godotenv.Load()

	config := &Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),

		// Scheduler defaults
		BatchLimit:        500,
		WorkerCount:       4,
		GraceWindow:       0,
		StaleRunThreshold: 30 * time.Minute,
		DaemonSchedule:    "*/10 * * * *",

		SummaryFlowURL: os.Getenv("SUMMARY_FLOW_URL"),
		FlowTimeout:    2 * time.Minute,

		OutboxBatchSize:     100,
		MaxDeliveryAttempts: 3,
		DeliveryTimeout:     15 * time.Second,

		TwilioAccountSID: os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:  os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFromNumber: os.Getenv("TWILIO_FROM_NUMBER"),

		DiscordToken: os.Getenv("DISCORD_TOKEN"),

		AMQPURL:      os.Getenv("AMQP_URL"),
		PushExchange: os.Getenv("PUSH_EXCHANGE"),

		Environment: os.Getenv("ENVIRONMENT"),
	}

	if limit := os.Getenv("SUMMARY_BATCH_LIMIT"); limit != "" {
		if parsed, err := strconv.Atoi(limit); err == nil {
			config.BatchLimit = parsed
		}
	}
	if workers := os.Getenv("WORKER_COUNT"); workers != "" {
		if parsed, err := strconv.Atoi(workers); err == nil && parsed > 0 {
			config.WorkerCount = parsed
		}
	}
	if grace := os.Getenv("SUMMARY_GRACE_WINDOW"); grace != "" {
		if parsed, err := time.ParseDuration(grace); err == nil {
			config.GraceWindow = parsed
		}
	}
	if stale := os.Getenv("STALE_RUN_THRESHOLD"); stale != "" {
		if parsed, err := time.ParseDuration(stale); err == nil {
			config.StaleRunThreshold = parsed
		}
	}
	if schedule := os.Getenv("DAEMON_SCHEDULE"); schedule != "" {
		config.DaemonSchedule = schedule
	}
	if timeout := os.Getenv("FLOW_TIMEOUT"); timeout != "" {
		if parsed, err := time.ParseDuration(timeout); err == nil {
			config.FlowTimeout = parsed
		}
	}
	if size := os.Getenv("OUTBOX_BATCH_SIZE"); size != "" {
		if parsed, err := strconv.Atoi(size); err == nil && parsed > 0 {
			config.OutboxBatchSize = parsed
		}
	}
	if attempts := os.Getenv("MAX_DELIVERY_ATTEMPTS"); attempts != "" {
		if parsed, err := strconv.Atoi(attempts); err == nil && parsed > 0 {
			config.MaxDeliveryAttempts = parsed
		}
	}
	if timeout := os.Getenv("DELIVERY_TIMEOUT"); timeout != "" {
		if parsed, err := time.ParseDuration(timeout); err == nil {
			config.DeliveryTimeout = parsed
		}
	}
	if config.PushExchange == "" {
		config.PushExchange = "digido.summaries"
	}

	if config.Environment == "" {
		config.Environment = "development"
	}

	if config.Environment != "test" {
		if config.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required")
		}
		if config.SummaryFlowURL == "" {
			return nil, fmt.Errorf("SUMMARY_FLOW_URL is required")
		}
	}

	return config, nil
}
