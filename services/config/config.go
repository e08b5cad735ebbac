package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type ServerConfig struct {
	HTTPPort int
}

type ClickHouseConfig struct {
	Addr     string
	Database string
	Table    string
	User     string
	Password string
}

type Config struct {
	Environment string
	Server      ServerConfig
	ClickHouse  ClickHouseConfig
}

// Load reads configuration from the environment, with an optional .env
// file for local runs.
func Load() (*Config, error) {
	_ = godotenv.Load()

	port, err := strconv.Atoi(getEnv("HTTP_PORT", "8080"))
	if err != nil {
		return nil, fmt.Errorf("invalid HTTP_PORT: %w", err)
	}

	return &Config{
		Environment: getEnv("ENVIRONMENT", "dev"),
		Server:      ServerConfig{HTTPPort: port},
		ClickHouse: ClickHouseConfig{
			Addr:     getEnv("CLICKHOUSE_ADDR", "localhost:9000"),
			Database: getEnv("CH_DATABASE", "backtest"),
			Table:    getEnv("CH_TABLE", "daily_bars"),
			User:     getEnv("CH_USER", "default"),
			Password: getEnv("CH_PASSWORD", ""),
		},
	}, nil
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
