package config

import (
	"log"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// Config holds the runner's environment configuration. Command-line flags
// override these values.
type Config struct {
	// Data
	DataDir     string
	ResultsDir  string
	FilterTable string

	// Infrastructure
	RedisAddr     string
	RedisPassword string
	SQLitePath    string
	MetricsAddr   string

	LogLevel string

	// Batch
	Workers int
	Tickers string // comma-separated, e.g. "AAPL,MSFT"
}

// Load reads configuration from environment variables with sensible defaults.
// Empty RedisAddr, SQLitePath or MetricsAddr disable that sink.
func Load() *Config {
	return &Config{
		DataDir:     getEnv("DATA_DIR", "data"),
		ResultsDir:  getEnv("RESULTS_DIR", "results"),
		FilterTable: getEnv("FILTER_TABLE", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", ""),
		MetricsAddr:   getEnv("METRICS_ADDR", ""),

		LogLevel: getEnv("LOG_LEVEL", "info"),

		Workers: getEnvInt("WORKERS", runtime.NumCPU()),
		Tickers: getEnv("TICKERS", ""),
	}
}

// ParseTickers splits Tickers into upper-cased symbols, dropping blanks and
// duplicates while keeping first-seen order.
func (c *Config) ParseTickers() []string {
	return SplitList(c.Tickers)
}

// SplitList parses a comma-separated symbol list.
func SplitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	seen := make(map[string]bool, len(parts))
	for _, p := range parts {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Printf("[config] skipping invalid %s value: %q", key, v)
		return fallback
	}
	return n
}
