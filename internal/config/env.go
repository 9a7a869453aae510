package config

import (
	"os"
	"strconv"
	"strings"
)

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overlays environment overrides on a loaded config.
func ApplyEnv(cfg Config, lookup LookupFunc) Config {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	cfg.Gateway.Environment = envOrDefault(lookup, "MCPGATE_ENVIRONMENT", cfg.Gateway.Environment)
	cfg.Storage.DatabaseURL = envOrDefault(lookup, "MCPGATE_DATABASE_URL", cfg.Storage.DatabaseURL)
	cfg.Events.ClickHouseDSN = envOrDefault(lookup, "CLICKHOUSE_DSN", cfg.Events.ClickHouseDSN)
	cfg.Logging.Level = strings.ToLower(envOrDefault(lookup, "MCPGATE_LOG_LEVEL", cfg.Logging.Level))
	if secs := envOrDefaultInt(lookup, "MCPGATE_SCAN_TIMEOUT", 0); secs > 0 {
		cfg.Scan.Timeout = strconv.Itoa(secs) + "s"
	}
	if n := envOrDefaultInt(lookup, "MCPGATE_MAX_CONCURRENT_SCANS", 0); n > 0 {
		cfg.Scan.MaxConcurrentScans = n
	}
	return cfg
}

func envOrDefault(lookup LookupFunc, key, defaultVal string) string {
	if v, ok := lookup(key); ok && v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultInt(lookup LookupFunc, key string, defaultVal int) int {
	if v, ok := lookup(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}
