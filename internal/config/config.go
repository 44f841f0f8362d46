package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"emission-service/internal/models"
	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	DB struct {
		Driver   string
		DSN      string
		Timeout  time.Duration
		MaxConns int32
	}
	API struct {
		Port     string
		BasePath string
	}
	Auth struct {
		JWTSecret string
		TokenTTL  time.Duration
	}
	Emission struct {
		Threshold float64
	}
	Ingest struct {
		Workers     int
		QueueSize   int
		MaxAttempts int
		RetryDelay  time.Duration
		File        string
	}
	Kafka struct {
		Broker  string
		Topic   string
		GroupID string
	}
	Telegram struct {
		BotToken    string
		ChatID      int64
		RateLimit   int
		MinSeverity models.Severity
	}
	Notification struct {
		QueueSize  int
		MaxWorkers int
	}
	Log struct {
		Dir   string
		Level string
	}
}

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Load reads .env if present, then environment variables, applies defaults,
// and returns a Config.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("failed to load .env file: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from the process environment only.
func FromEnv() (Config, error) {
	var cfg Config
	p := &parser{}

	// Database settings
	cfg.DB.Driver = strings.ToLower(os.Getenv("DB_DRIVER"))
	cfg.DB.DSN = os.Getenv("DB_DSN")
	cfg.DB.Timeout = p.duration("DB_TIMEOUT", 5*time.Second)
	cfg.DB.MaxConns = int32(p.int("DB_MAX_CONNS", 10))

	// API settings
	cfg.API.Port = os.Getenv("API_PORT")
	cfg.API.BasePath = os.Getenv("API_BASE_PATH")

	// Auth settings
	cfg.Auth.JWTSecret = os.Getenv("AUTH_JWT_SECRET")
	cfg.Auth.TokenTTL = p.duration("AUTH_TOKEN_TTL", 24*time.Hour)

	cfg.Emission.Threshold = p.float("EMISSION_THRESHOLD", 1000)

	// Ingestion settings
	cfg.Ingest.Workers = p.int("INGEST_WORKERS", 4)
	cfg.Ingest.QueueSize = p.int("INGEST_QUEUE_SIZE", 100)
	cfg.Ingest.MaxAttempts = p.int("INGEST_MAX_ATTEMPTS", 3)
	cfg.Ingest.RetryDelay = p.duration("INGEST_RETRY_DELAY", 200*time.Millisecond)
	cfg.Ingest.File = os.Getenv("INGEST_FILE")

	// Kafka settings
	cfg.Kafka.Broker = os.Getenv("KAFKA_BROKER")
	cfg.Kafka.Topic = os.Getenv("KAFKA_TOPIC")
	cfg.Kafka.GroupID = os.Getenv("KAFKA_GROUP_ID")

	// Telegram settings
	cfg.Telegram.BotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	cfg.Telegram.ChatID = int64(p.int("TELEGRAM_CHAT_ID", 0))
	cfg.Telegram.RateLimit = p.int("TELEGRAM_RATE_LIMIT", 1)
	cfg.Telegram.MinSeverity = models.Severity(strings.ToLower(os.Getenv("TELEGRAM_MIN_SEVERITY")))

	// Notification worker settings
	cfg.Notification.QueueSize = p.int("NOTIFY_QUEUE_SIZE", 100)
	cfg.Notification.MaxWorkers = p.int("NOTIFY_WORKERS", 2)

	cfg.Log.Dir = os.Getenv("LOG_DIR")
	cfg.Log.Level = os.Getenv("LOG_LEVEL")

	if len(p.invalid) > 0 {
		return Config{}, fmt.Errorf("invalid configurations: %v", p.invalid)
	}

	// Apply defaults
	if cfg.DB.Driver == "" {
		cfg.DB.Driver = DriverPostgres
	}
	if cfg.API.Port == "" {
		cfg.API.Port = ":8080"
	}
	if cfg.API.BasePath == "" {
		cfg.API.BasePath = "/api"
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "sensor_readings"
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = "emission-service"
	}
	if cfg.Telegram.MinSeverity == "" {
		cfg.Telegram.MinSeverity = models.SeverityHigh
	}
	if cfg.Log.Dir == "" {
		cfg.Log.Dir = "logs"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	// Validate required settings
	missing := []string{}
	if cfg.Auth.JWTSecret == "" {
		missing = append(missing, "AUTH_JWT_SECRET")
	}
	if cfg.DB.Driver == DriverPostgres && cfg.DB.DSN == "" {
		missing = append(missing, "DB_DSN")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required configurations: %v", missing)
	}

	switch {
	case cfg.DB.Driver != DriverPostgres && cfg.DB.Driver != DriverMemory:
		return Config{}, fmt.Errorf("DB_DRIVER must be %q or %q, got %q", DriverPostgres, DriverMemory, cfg.DB.Driver)
	case cfg.Emission.Threshold < 0:
		return Config{}, fmt.Errorf("EMISSION_THRESHOLD must not be negative")
	case cfg.Telegram.MinSeverity.Rank() == 0:
		return Config{}, fmt.Errorf("TELEGRAM_MIN_SEVERITY %q is not a severity", cfg.Telegram.MinSeverity)
	}
	return cfg, nil
}

// TelegramEnabled reports whether operator notifications are configured.
func (c Config) TelegramEnabled() bool {
	return c.Telegram.BotToken != "" && c.Telegram.ChatID != 0
}

// KafkaEnabled reports whether the broker source is configured.
func (c Config) KafkaEnabled() bool {
	return c.Kafka.Broker != ""
}

type parser struct {
	invalid []string
}

func (p *parser) int(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.invalid = append(p.invalid, key)
		return def
	}
	return n
}

func (p *parser) float(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.invalid = append(p.invalid, key)
		return def
	}
	return f
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		p.invalid = append(p.invalid, key)
		return def
	}
	return d
}
