// Package config reads server configuration from environment
// variables, with a .env file loaded when present.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds application configuration.
type Config struct {
	ListenAddr     string
	DatabasePath   string
	MarketDataPath string
	ScriptPath     string // optional; the built-in script is used when empty
	TickPeriod     time.Duration
	InitialBalance decimal.Decimal
	BaselineCost   decimal.Decimal
	LookbackLimit  int
	LogLevel       string
	LogPretty      bool
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		ListenAddr:     getEnv("LISTEN_ADDR", ":8080"),
		DatabasePath:   getEnv("DATABASE_PATH", "./data/highscores.db"),
		MarketDataPath: getEnv("MARKET_DATA_PATH", "./data/coindata.json"),
		ScriptPath:     getEnv("SCRIPT_PATH", ""),
		TickPeriod:     getEnvAsDuration("TICK_PERIOD", time.Second),
		InitialBalance: getEnvAsDecimal("INITIAL_BALANCE", decimal.NewFromInt(50000)),
		BaselineCost:   getEnvAsDecimal("BASELINE_COST", decimal.NewFromInt(100)),
		LookbackLimit:  getEnvAsInt("EVENT_LOOKBACK", 32),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogPretty:      getEnvAsBool("LOG_PRETTY", true),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks if required configuration is present.
func (c *Config) Validate() error {
	if c.MarketDataPath == "" {
		return fmt.Errorf("MARKET_DATA_PATH is required")
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH is required")
	}
	if c.TickPeriod <= 0 {
		return fmt.Errorf("TICK_PERIOD must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return defaultValue
}
