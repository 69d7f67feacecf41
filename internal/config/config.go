package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/W-VNT/conciergeos-sub004/internal/feed"
)

const PROD_STRING = "prod"

// Config holds all application configuration loaded from environment.
type Config struct {
	IsProduction      bool
	ProdOrigins       string
	HTTPAddr          string
	StoreDriver       string // "postgres" or "memory"
	DBDSN             string
	JWTSecret         string
	JWTAccessTokenTTL time.Duration

	// Sync settings.
	SyncSchedule         string // cron expression, default for all sources
	SyncFetchTimeout     time.Duration
	AutoResolveConflicts bool
	CalendarTimezone     *time.Location

	// Sources are the provisioned channel-calendar feeds, loaded from the
	// YAML file at FEEDS_FILE.
	Sources []feed.Source
}

type feedsFile struct {
	Sources []feed.Source `yaml:"sources"`
}

// Load loads configuration from .env (optional) and environment variables,
// then reads the feed provisioning file.
func Load() (*Config, error) {
	// Load .env file if it exists
	err := godotenv.Load()
	if err != nil {
		log.Printf("failed to load .env file: %v", err)
	}

	cfg := &Config{}

	cfg.ProdOrigins = getEnv("PROD_ORIGINS", "")

	appEnvStr := getEnv("APP_ENV", "dev")
	cfg.IsProduction = appEnvStr == PROD_STRING

	cfg.HTTPAddr = getEnv("HTTP_ADDR", ":8080")

	cfg.StoreDriver = getEnv("STORE_DRIVER", "postgres")
	switch cfg.StoreDriver {
	case "postgres":
		cfg.DBDSN = os.Getenv("DB_DSN")
		if cfg.DBDSN == "" {
			return nil, fmt.Errorf("DB_DSN is required when STORE_DRIVER=postgres")
		}
	case "memory":
		// No DSN needed; bookings live in process memory. Dev only.
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	ttlStr := getEnv("JWT_ACCESS_TOKEN_TTL", "15m")
	ttl, err := time.ParseDuration(ttlStr)
	if err != nil {
		return nil, fmt.Errorf("invalid JWT_ACCESS_TOKEN_TTL: %w", err)
	}
	cfg.JWTAccessTokenTTL = ttl

	cfg.SyncSchedule = getEnv("SYNC_SCHEDULE", "*/15 * * * *")

	timeoutStr := getEnv("SYNC_FETCH_TIMEOUT", "15s")
	timeout, err := time.ParseDuration(timeoutStr)
	if err != nil {
		return nil, fmt.Errorf("invalid SYNC_FETCH_TIMEOUT: %w", err)
	}
	cfg.SyncFetchTimeout = timeout

	cfg.AutoResolveConflicts, err = getEnvAsBool("SYNC_AUTO_RESOLVE_CONFLICTS", false)
	if err != nil {
		return nil, err
	}

	// All feed dates are compared in one reference timezone so ranges from
	// heterogeneous sources line up on the same calendar days.
	tzName := getEnv("CALENDAR_TIMEZONE", "UTC")
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, fmt.Errorf("invalid CALENDAR_TIMEZONE %q: %w", tzName, err)
	}
	cfg.CalendarTimezone = loc

	feedsPath := getEnv("FEEDS_FILE", "feeds.yaml")
	sources, err := loadFeeds(feedsPath)
	if err != nil {
		return nil, err
	}
	cfg.Sources = sources

	return cfg, nil
}

// loadFeeds reads the feed provisioning file. A missing file is not an error:
// the service then runs with staff bookings only.
func loadFeeds(path string) ([]feed.Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("feeds file %s not found; running without external sources", path)
			return nil, nil
		}
		return nil, fmt.Errorf("read feeds file %s failed: %w", path, err)
	}

	var f feedsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse feeds file %s failed: %w", path, err)
	}

	seen := make(map[string]struct{}, len(f.Sources))
	for _, src := range f.Sources {
		if src.ID == "" || src.ResourceID == "" || src.URL == "" {
			return nil, fmt.Errorf("feeds file %s: every source needs id, resource_id and url", path)
		}
		if _, dup := seen[src.ID]; dup {
			return nil, fmt.Errorf("feeds file %s: duplicate source id %q", path, src.ID)
		}
		seen[src.ID] = struct{}{}
	}

	return f.Sources, nil
}

// getEnv returns the value of the environment variable if set,
// otherwise returns the provided default value.
func getEnv(key, defaultValue string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean.
func getEnvAsBool(key string, defaultValue bool) (bool, error) {
	valStr := getEnv(key, "")
	if valStr == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(valStr)
	if err != nil {
		return false, fmt.Errorf("env %s value %q is not a valid boolean: %w", key, valStr, err)
	}

	return val, nil
}
