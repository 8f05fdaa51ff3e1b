// Package config loads daemon settings from the environment and an optional
// .env file.
package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// DefaultHTTPAddr is the documented fixed port of the local sync service.
const DefaultHTTPAddr = ":8787"

// Config holds every tunable of the daemon.
type Config struct {
	DBPath   string
	HTTPAddr string

	NATSURL          string
	NATSName         string
	DiscoveryTimeout time.Duration
	SendTimeout      time.Duration

	RedisURL string

	// RateLimit is requests per second for the HTTP service; 0 disables it.
	RateLimit int
	RateBurst int

	SNSRegion    string
	SNSTargetARN string

	Timezone  string
	LogLevel  string
	LogFormat string
}

// Load reads envFile (if present) into the environment and builds a Config.
// A missing env file is not an error.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	return &Config{
		DBPath:           GetEnvAsString("HYDROSYNC_DB", defaultDBPath()),
		HTTPAddr:         GetEnvAsString("HYDROSYNC_HTTP_ADDR", DefaultHTTPAddr),
		NATSURL:          GetEnvAsString("HYDROSYNC_NATS_URL", "nats://127.0.0.1:4222"),
		NATSName:         GetEnvAsString("HYDROSYNC_NATS_NAME", "hydrosync"),
		DiscoveryTimeout: GetEnvAsDuration("HYDROSYNC_DISCOVERY_TIMEOUT", 300*time.Millisecond),
		SendTimeout:      GetEnvAsDuration("HYDROSYNC_SEND_TIMEOUT", 2*time.Second),
		RedisURL:         GetEnvAsString("HYDROSYNC_REDIS_URL", ""),
		RateLimit:        GetEnvAsInt("HYDROSYNC_RATE_LIMIT", 0),
		RateBurst:        GetEnvAsInt("HYDROSYNC_RATE_BURST", 20),
		SNSRegion:        GetEnvAsString("AWS_REGION", "us-east-1"),
		SNSTargetARN:     GetEnvAsString("HYDROSYNC_SNS_TARGET_ARN", ""),
		Timezone:         GetEnvAsString("HYDROSYNC_TZ", ""),
		LogLevel:         GetEnvAsString("HYDROSYNC_LOG_LEVEL", "info"),
		LogFormat:        GetEnvAsString("HYDROSYNC_LOG_FORMAT", "text"),
	}, nil
}

// Location resolves Timezone, defaulting to the process's local zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

func defaultDBPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".hydrosync", "hydrosync.db")
}

// GetEnvAsInt gets environment variable as int with default value
func GetEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// GetEnvAsDuration gets environment variable as duration with default value
func GetEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// GetEnvAsString gets environment variable as string with default value
func GetEnvAsString(key string, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
