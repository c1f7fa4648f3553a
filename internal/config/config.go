package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port           string
	Env            string
	GinMode        string
	DatabaseURL    string
	EnableDB       bool
	AnalysisDelay  time.Duration
	CatalogPath    string
	MaxUploadBytes int64
	StaticRoot     string
}

const (
	defaultAnalysisDelay  = 3 * time.Second
	defaultMaxUploadBytes = 10 << 20
)

// Load reads configuration from the environment, after applying a .env file
// when one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Env:         getEnv("APP_ENV", "production"),
		GinMode:     getEnv("GIN_MODE", "release"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		EnableDB:    strings.EqualFold(getEnv("ENABLE_DB", "false"), "true"),
		CatalogPath: os.Getenv("CONDITION_CATALOG_PATH"),
		StaticRoot:  os.Getenv("STATIC_ROOT"),
	}

	if cfg.EnableDB && cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required when ENABLE_DB=true")
	}

	delay, err := getEnvAsDuration("ANALYSIS_DELAY", defaultAnalysisDelay)
	if err != nil {
		return nil, err
	}
	if delay <= 0 {
		return nil, fmt.Errorf("ANALYSIS_DELAY must be positive, got %s", delay)
	}
	cfg.AnalysisDelay = delay

	maxUpload, err := getEnvAsInt64("MAX_UPLOAD_BYTES", defaultMaxUploadBytes)
	if err != nil {
		return nil, err
	}
	if maxUpload <= 0 {
		return nil, fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", maxUpload)
	}
	cfg.MaxUploadBytes = maxUpload

	return cfg, nil
}

func (c *Config) Development() bool {
	return strings.EqualFold(c.Env, "development")
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func getEnvAsInt64(key string, fallback int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}
