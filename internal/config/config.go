package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	ServiceName string
	ServicePort int
	Database    DatabaseConfig
	RabbitMQ    RabbitMQConfig
	Energy      EnergySyncConfig
	Weather     WeatherSyncConfig
	HTTPTimeout time.Duration
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	URL string
}

// RabbitMQConfig holds the optional sync-event publishing settings.
// Publishing is disabled entirely when URL is empty.
type RabbitMQConfig struct {
	URL        string
	Exchange   string
	RoutingKey string
}

// EnergySyncConfig holds the consumption-sync schedule and gap-fill settings
type EnergySyncConfig struct {
	Enabled  bool
	Cron     string
	Timezone string
	// AvailabilityLagDays is how far behind "today" the provider publishes
	// settled data.
	AvailabilityLagDays int
	// DefaultLookbackDays bounds the initial sync window for a metering
	// point with no stored data yet.
	DefaultLookbackDays int
	ProviderBaseURL     string
	TokenTTL            time.Duration
}

// WeatherSyncConfig holds the weather-sync schedule, guard, and backfill settings
type WeatherSyncConfig struct {
	Enabled             bool
	Cron                string
	Timezone            string
	AvailabilityLagDays int
	DefaultLookbackDays int
	ProviderBaseURL     string
	// OverlapGuardWindow is how long an in_progress sync-log row blocks a
	// new sync for the same location.
	OverlapGuardWindow time.Duration
	BackfillBatchDays  int
	BackfillBatchDelay time.Duration
	DefaultLatitude    float64
	DefaultLongitude   float64
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		ServiceName: getEnv("SERVICE_NAME", "energy-sync"),
		ServicePort: getEnvAsInt("SERVICE_PORT", 8082),
		Database: DatabaseConfig{
			URL: getEnv("DATABASE_URL", ""),
		},
		RabbitMQ: RabbitMQConfig{
			URL:        getEnv("RABBITMQ_URL", ""),
			Exchange:   getEnv("RABBITMQ_SYNC_EXCHANGE", "energy-sync.events.exchange"),
			RoutingKey: getEnv("RABBITMQ_SYNC_ROUTING_KEY", "sync.completed"),
		},
		Energy: EnergySyncConfig{
			Enabled:             getEnvAsBool("ENERGY_SYNC_ENABLED", true),
			Cron:                getEnv("ENERGY_SYNC_CRON", "0 * * * *"),
			Timezone:            getEnv("ENERGY_SYNC_TIMEZONE", "UTC"),
			AvailabilityLagDays: getEnvAsInt("ENERGY_AVAILABILITY_LAG_DAYS", 2),
			DefaultLookbackDays: getEnvAsInt("ENERGY_DEFAULT_LOOKBACK_DAYS", 30),
			ProviderBaseURL:     getEnv("ENERGY_PROVIDER_BASE_URL", "https://api.energidata.example/customerapi"),
			TokenTTL:            getEnvAsDuration("ENERGY_TOKEN_TTL", 50*time.Minute),
		},
		Weather: WeatherSyncConfig{
			Enabled:             getEnvAsBool("WEATHER_SYNC_ENABLED", true),
			Cron:                getEnv("WEATHER_SYNC_CRON", "30 * * * *"),
			Timezone:            getEnv("WEATHER_SYNC_TIMEZONE", "UTC"),
			AvailabilityLagDays: getEnvAsInt("WEATHER_AVAILABILITY_LAG_DAYS", 1),
			DefaultLookbackDays: getEnvAsInt("WEATHER_DEFAULT_LOOKBACK_DAYS", 7),
			ProviderBaseURL:     getEnv("WEATHER_PROVIDER_BASE_URL", "https://archive-api.open-meteo.com"),
			OverlapGuardWindow:  getEnvAsDuration("WEATHER_OVERLAP_GUARD_WINDOW", time.Hour),
			BackfillBatchDays:   getEnvAsInt("WEATHER_BACKFILL_BATCH_DAYS", 365),
			BackfillBatchDelay:  getEnvAsDuration("WEATHER_BACKFILL_BATCH_DELAY", 2*time.Second),
			DefaultLatitude:     getEnvAsFloat("WEATHER_DEFAULT_LATITUDE", 55.6761),
			DefaultLongitude:    getEnvAsFloat("WEATHER_DEFAULT_LONGITUDE", 12.5683),
		},
		HTTPTimeout: getEnvAsDuration("PROVIDER_HTTP_TIMEOUT", 30*time.Second),
	}

	// Validate required fields
	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required but not set in environment variables")
	}
	if cfg.Energy.AvailabilityLagDays < 0 {
		return nil, fmt.Errorf("ENERGY_AVAILABILITY_LAG_DAYS must not be negative")
	}
	if cfg.Energy.DefaultLookbackDays <= 0 {
		return nil, fmt.Errorf("ENERGY_DEFAULT_LOOKBACK_DAYS must be positive")
	}
	if cfg.Weather.BackfillBatchDays <= 0 || cfg.Weather.BackfillBatchDays > 365 {
		return nil, fmt.Errorf("WEATHER_BACKFILL_BATCH_DAYS must be between 1 and 365 (provider request-size limit)")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
