// Package config loads server configuration from the environment and an
// optional .env file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Port         string
	DBPath       string
	LogLevel     string
	IsProduction bool

	AccrualEnabled     bool
	AccrualInterval    time.Duration
	AccrualConcurrency int
	CarryForwardCap    float64
	RetryAttempts      int

	KafkaBrokers []string // empty = events are only logged
	KafkaTopic   string

	CORSOrigins    []string
	LeaveTypesFile string // empty = built-in catalog
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("DB_PATH", "./leave.db")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("IS_PRODUCTION", false)
	v.SetDefault("ACCRUAL_ENABLED", true)
	v.SetDefault("ACCRUAL_INTERVAL", "1h")
	v.SetDefault("ACCRUAL_CONCURRENCY", 4)
	v.SetDefault("CARRY_FORWARD_CAP", 10)
	v.SetDefault("RETRY_ATTEMPTS", 3)
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("KAFKA_TOPIC", "leave-events")
	v.SetDefault("CORS_ORIGINS", "*")
	v.SetDefault("LEAVE_TYPES_FILE", "")
}

// LoadConfig loads configuration from environment variables and .env file if present.
func LoadConfig() (*Config, error) {
	// Attempt to load .env file, ignore error if it doesn't exist
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Port:               v.GetString("PORT"),
		DBPath:             v.GetString("DB_PATH"),
		LogLevel:           strings.ToLower(v.GetString("LOG_LEVEL")),
		IsProduction:       v.GetBool("IS_PRODUCTION"),
		AccrualEnabled:     v.GetBool("ACCRUAL_ENABLED"),
		AccrualConcurrency: v.GetInt("ACCRUAL_CONCURRENCY"),
		CarryForwardCap:    v.GetFloat64("CARRY_FORWARD_CAP"),
		RetryAttempts:      v.GetInt("RETRY_ATTEMPTS"),
		KafkaBrokers:       splitList(v.GetString("KAFKA_BROKERS")),
		KafkaTopic:         v.GetString("KAFKA_TOPIC"),
		CORSOrigins:        splitList(v.GetString("CORS_ORIGINS")),
		LeaveTypesFile:     v.GetString("LEAVE_TYPES_FILE"),
	}

	interval, err := time.ParseDuration(v.GetString("ACCRUAL_INTERVAL"))
	if err != nil {
		return nil, fmt.Errorf("invalid ACCRUAL_INTERVAL %q: %w", v.GetString("ACCRUAL_INTERVAL"), err)
	}
	cfg.AccrualInterval = interval

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the server cannot start with.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT must not be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH must not be empty")
	}
	if c.AccrualInterval <= 0 {
		return fmt.Errorf("ACCRUAL_INTERVAL must be positive, got %s", c.AccrualInterval)
	}
	if c.AccrualConcurrency < 1 {
		return fmt.Errorf("ACCRUAL_CONCURRENCY must be at least 1, got %d", c.AccrualConcurrency)
	}
	if c.CarryForwardCap < 0 {
		return fmt.Errorf("CARRY_FORWARD_CAP must not be negative, got %v", c.CarryForwardCap)
	}
	if c.RetryAttempts < 1 {
		return fmt.Errorf("RETRY_ATTEMPTS must be at least 1, got %d", c.RetryAttempts)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be debug, info, warn or error, got %q", c.LogLevel)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
