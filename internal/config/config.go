package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Config carries the process-level settings for the server and migrator.
// All values come from the environment; a .env file is loaded first when
// present so local runs need no exported variables.
type Config struct {
	HTTPAddr     string   // address the HTTP harness binds to
	DatabaseURL  string   // empty selects the in-memory store
	KafkaBrokers []string // empty selects the noop publisher
	LogLevel     string   // zap level name: debug, info, warn, error
}

// Load reads the environment, after loading .env if one exists.
func Load() Config {
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	return Config{
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		KafkaBrokers: splitList(os.Getenv("KAFKA_BROKERS")),
		LogLevel:     getenv("LOG_LEVEL", "info"),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}

	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}

	return out
}
