package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"
)

// Source kinds accepted by SOURCE_KIND.
const (
	SourceFile     = "file"
	SourcePostgres = "postgres"
	SourceSQLite   = "sqlite"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Record source.
	SourceKind    string
	DataPath      string
	WatchDebounce time.Duration
	DatabaseURL   string
	PollInterval  time.Duration

	StatsCacheSize int

	// Reload notifications. Each sink is enabled when its address is set.
	KafkaBrokers []string
	KafkaTopic   string
	NATSURL      string
	NATSSubject  string
}

// Load reads configuration from environment variables, applying defaults where
// unset. A .env file in the working directory is loaded first if present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	debounce, err := parsePositiveDuration("WATCH_DEBOUNCE", "250ms")
	if err != nil {
		return nil, err
	}

	pollInterval, err := parsePositiveDuration("POLL_INTERVAL", "30s")
	if err != nil {
		return nil, err
	}

	cacheSize, err := parseStatsCacheSize()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		SourceKind:    strings.ToLower(sharedcfg.EnvOrDefault("SOURCE_KIND", SourceFile)),
		DataPath:      sharedcfg.EnvOrDefault("DATA_PATH", "public/data/ltv.json"),
		WatchDebounce: debounce,
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		PollInterval:  pollInterval,

		StatsCacheSize: cacheSize,

		KafkaBrokers: sharedcfg.ParseBrokers(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:   sharedcfg.EnvOrDefault("KAFKA_TOPIC", "ltv-snapshots"),
		NATSURL:      os.Getenv("NATS_URL"),
		NATSSubject:  sharedcfg.EnvOrDefault("NATS_SUBJECT", "ltv.snapshots"),
	}

	switch cfg.SourceKind {
	case SourceFile:
		if cfg.DataPath == "" {
			return nil, errors.New("DATA_PATH is required for the file source")
		}
	case SourcePostgres, SourceSQLite:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required for the %s source", cfg.SourceKind)
		}
	default:
		return nil, fmt.Errorf("invalid SOURCE_KIND %q: want file, postgres or sqlite", cfg.SourceKind)
	}

	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaTopic == "" {
		return nil, errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}

	return cfg, nil
}

// KafkaEnabled reports whether reload notifications go to Kafka.
func (c *Config) KafkaEnabled() bool { return len(c.KafkaBrokers) > 0 }

// NATSEnabled reports whether reload notifications go to NATS.
func (c *Config) NATSEnabled() bool { return c.NATSURL != "" }

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseStatsCacheSize() (int, error) {
	s := os.Getenv("STATS_CACHE_SIZE")
	if s == "" {
		return 256, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, errors.New("invalid STATS_CACHE_SIZE")
	}
	return n, nil
}
