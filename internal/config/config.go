package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port string

	// Session cookie signing
	SessionSecret string
	SessionMaxAge time.Duration

	// Pending booking store
	StoreBackend  string // "sqlite" or "memory"
	SQLiteDBPath  string
	PendingTTL    time.Duration
	PurgeInterval time.Duration

	// Classifier service
	ClassifierURL string

	// Training corpus
	CorpusBackend string // "csv" or "sheets"
	CorpusPath    string

	// AMQP (optional; empty URL disables retrain events)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Retrain worker
	RetrainBatchSize int
}

func Load() *Config {
	return &Config{
		Port: getEnv("PORT", "8082"),

		SessionSecret: getEnv("SESSION_SECRET", ""),
		SessionMaxAge: getEnvDuration("SESSION_MAX_AGE", 30*time.Minute),

		StoreBackend:  getEnv("STORE_BACKEND", "sqlite"),
		SQLiteDBPath:  getEnv("SQLITE_DB_PATH", "./data/bookings.db"),
		PendingTTL:    getEnvDuration("PENDING_TTL", 24*time.Hour),
		PurgeInterval: getEnvDuration("PURGE_INTERVAL", 10*time.Minute),

		ClassifierURL: getEnv("CLASSIFIER_URL", "http://localhost:5000"),

		CorpusBackend: getEnv("CORPUS_BACKEND", "csv"),
		CorpusPath:    getEnv("CORPUS_PATH", "./data/trainingset.csv"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "buchungen"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "training_examples"),

		RetrainBatchSize: getEnvInt("RETRAIN_BATCH_SIZE", 25),
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	var errs []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errs = append(errs, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	// The signing secret must come from the environment; a hard-coded
	// fallback would make every deployment share a key.
	if strings.TrimSpace(c.SessionSecret) == "" {
		errs = append(errs, "SESSION_SECRET must be set")
	}
	if c.SessionMaxAge < time.Minute {
		errs = append(errs, fmt.Sprintf("invalid session max age %v: must be at least 1 minute", c.SessionMaxAge))
	}

	switch c.StoreBackend {
	case "sqlite":
		if c.SQLiteDBPath == "" {
			errs = append(errs, "SQLite database path cannot be empty when using sqlite backend")
		} else if dir := filepath.Dir(c.SQLiteDBPath); dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errs = append(errs, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	case "memory":
	default:
		errs = append(errs, fmt.Sprintf("invalid store backend '%s': must be one of [sqlite memory]", c.StoreBackend))
	}

	if c.PendingTTL < time.Minute {
		errs = append(errs, fmt.Sprintf("invalid pending TTL %v: must be at least 1 minute", c.PendingTTL))
	}
	if c.PurgeInterval < time.Second {
		errs = append(errs, fmt.Sprintf("invalid purge interval %v: must be at least 1 second", c.PurgeInterval))
	}

	if parsed, err := url.Parse(c.ClassifierURL); err != nil || parsed.Scheme == "" || parsed.Host == "" {
		errs = append(errs, fmt.Sprintf("invalid classifier URL '%s'", c.ClassifierURL))
	}

	switch c.CorpusBackend {
	case "csv":
		if c.CorpusPath == "" {
			errs = append(errs, "corpus path cannot be empty when using csv backend")
		}
	case "sheets":
	default:
		errs = append(errs, fmt.Sprintf("invalid corpus backend '%s': must be one of [csv sheets]", c.CorpusBackend))
	}

	if c.AMQPURL != "" {
		if parsed, err := url.Parse(c.AMQPURL); err != nil {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsed.Scheme != "amqp" && parsed.Scheme != "amqps" {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsed.Scheme))
		}
		if c.AMQPExchange == "" {
			errs = append(errs, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errs = append(errs, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.RetrainBatchSize < 1 {
		errs = append(errs, fmt.Sprintf("invalid retrain batch size %d: must be at least 1", c.RetrainBatchSize))
	} else if c.RetrainBatchSize > 10000 {
		errs = append(errs, fmt.Sprintf("invalid retrain batch size %d: must be at most 10000", c.RetrainBatchSize))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
