package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Port      string
	DBUrl     string
	JWTSecret string
	AppEnv    string
	LogLevel  string

	DBMaxConns int32
	DBMinConns int32

	GymTimezone        string
	Location           *time.Location
	CancelRefundWindow time.Duration
	PreventOverlap     bool
	TxMaxRetries       int

	AbsenceSweepEnabled   bool
	AbsenceSweepSchedule  string
	AbsenceSweepBatchSize int

	RedisURL          string
	BookingRateLimit  int
	BookingRateWindow time.Duration

	RabbitMQURL    string
	EventsExchange string
}

func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}
	return Load(viper.New())
}

// Load reads the configuration from the environment through v. It does not
// touch .env files so tests can drive it with their own environment.
func Load(v *viper.Viper) (*Config, error) {
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("PORT", "8080")
	v.SetDefault("APP_ENV", "production")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("GYM_TIMEZONE", "UTC")
	v.SetDefault("CANCEL_REFUND_WINDOW", "24h")
	v.SetDefault("PREVENT_OVERLAP", true)
	v.SetDefault("TX_MAX_RETRIES", 3)
	v.SetDefault("ABSENCE_SWEEP_ENABLED", true)
	v.SetDefault("ABSENCE_SWEEP_SCHEDULE", "*/15 * * * *")
	v.SetDefault("ABSENCE_SWEEP_BATCH_SIZE", 500)
	v.SetDefault("BOOKING_RATE_LIMIT", 20)
	v.SetDefault("BOOKING_RATE_WINDOW", "1m")
	v.SetDefault("EVENTS_EXCHANGE", "class_booking")

	_ = v.BindEnv("DB_URL", "DB_URL", "DATABASE_URL")
	_ = v.BindEnv("JWT_SECRET")
	_ = v.BindEnv("REDIS_URL")
	_ = v.BindEnv("RABBITMQ_URL")

	jwtSecret := strings.TrimSpace(v.GetString("JWT_SECRET"))
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	dbURL := strings.TrimSpace(v.GetString("DB_URL"))
	if dbURL == "" {
		return nil, fmt.Errorf("DB_URL is required")
	}

	timezone := strings.TrimSpace(v.GetString("GYM_TIMEZONE"))
	location, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid GYM_TIMEZONE %q: %w", timezone, err)
	}

	refundWindow := v.GetDuration("CANCEL_REFUND_WINDOW")
	if refundWindow <= 0 {
		return nil, fmt.Errorf("CANCEL_REFUND_WINDOW must be positive")
	}

	batchSize := v.GetInt("ABSENCE_SWEEP_BATCH_SIZE")
	if batchSize <= 0 {
		return nil, fmt.Errorf("ABSENCE_SWEEP_BATCH_SIZE must be positive")
	}

	retries := v.GetInt("TX_MAX_RETRIES")
	if retries < 0 {
		retries = 0
	}

	return &Config{
		Port:                  v.GetString("PORT"),
		DBUrl:                 dbURL,
		JWTSecret:             jwtSecret,
		AppEnv:                normalizeEnv(v.GetString("APP_ENV")),
		LogLevel:              strings.ToLower(strings.TrimSpace(v.GetString("LOG_LEVEL"))),
		DBMaxConns:            v.GetInt32("DB_MAX_CONNS"),
		DBMinConns:            v.GetInt32("DB_MIN_CONNS"),
		GymTimezone:           timezone,
		Location:              location,
		CancelRefundWindow:    refundWindow,
		PreventOverlap:        v.GetBool("PREVENT_OVERLAP"),
		TxMaxRetries:          retries,
		AbsenceSweepEnabled:   v.GetBool("ABSENCE_SWEEP_ENABLED"),
		AbsenceSweepSchedule:  strings.TrimSpace(v.GetString("ABSENCE_SWEEP_SCHEDULE")),
		AbsenceSweepBatchSize: batchSize,
		RedisURL:              strings.TrimSpace(v.GetString("REDIS_URL")),
		BookingRateLimit:      v.GetInt("BOOKING_RATE_LIMIT"),
		BookingRateWindow:     v.GetDuration("BOOKING_RATE_WINDOW"),
		RabbitMQURL:           strings.TrimSpace(v.GetString("RABBITMQ_URL")),
		EventsExchange:        strings.TrimSpace(v.GetString("EVENTS_EXCHANGE")),
	}, nil
}

func normalizeEnv(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "dev", "develop", "development", "local":
		return "development"
	case "prod", "production":
		return "production"
	case "stage", "staging":
		return "staging"
	case "test", "testing":
		return "test"
	default:
		return strings.ToLower(strings.TrimSpace(value))
	}
}

func (c *Config) IsDevelopment() bool {
	return c != nil && c.AppEnv == "development"
}
