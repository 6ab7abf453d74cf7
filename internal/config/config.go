package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	DatabaseURL string

	RegistryBaseURL string
	RegistryTimeout time.Duration

	ModelBaseURL    string
	ModelID         string
	ModelTimeout    time.Duration
	MaxTokens       int
	Temperature     float64
	ConversationTTL time.Duration

	ClinicName        string
	ClinicOpenHour    int
	ClinicCloseHour   int
	ClinicSlotMinutes int
	ClinicClosedDay   int // weekday number, 0=Sunday
	MaxAdvanceDays    int
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8000"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		RegistryBaseURL: getEnv("REGISTRY_BASE_URL", "http://localhost:3001"),
		RegistryTimeout: getEnvAsDuration("REGISTRY_TIMEOUT", 10*time.Second),

		ModelBaseURL:    getEnv("MODEL_BASE_URL", "http://localhost:8080"),
		ModelID:         getEnv("MODEL_ID", "gpt2-tb-structured"),
		ModelTimeout:    getEnvAsDuration("MODEL_TIMEOUT", 30*time.Second),
		MaxTokens:       getEnvAsInt("MAX_TOKENS", 80),
		Temperature:     getEnvAsFloat("TEMPERATURE", 0.7),
		ConversationTTL: getEnvAsDuration("CONVERSATION_TTL", time.Hour),

		ClinicName:        getEnv("CLINIC_NAME", "CAÑADA DEL CARMEN"),
		ClinicOpenHour:    getEnvAsInt("CLINIC_OPEN_HOUR", 7),
		ClinicCloseHour:   getEnvAsInt("CLINIC_CLOSE_HOUR", 19),
		ClinicSlotMinutes: getEnvAsInt("CLINIC_SLOT_MINUTES", 30),
		ClinicClosedDay:   getEnvAsInt("CLINIC_CLOSED_DAY", 0),
		MaxAdvanceDays:    getEnvAsInt("MAX_ADVANCE_DAYS", 90),
	}
}

// IsProduction reports whether the service is running in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
