package config

import (
	"fmt"
	"strings"
	"time"
)

var allowedLogLevels = map[string]struct{}{
	"debug": {},
	"info":  {},
	"warn":  {},
	"error": {},
}

var allowedLogFormats = map[string]struct{}{
	"json": {},
	"text": {},
}

var knownStages = map[string]struct{}{
	"static":         {},
	"dependency":     {},
	"code_quality":   {},
	"file_structure": {},
}

func Validate(cfg Config) error {
	if cfg.Version != SchemaVersion {
		return fmt.Errorf("DOC_CONFIG_VERSION: unsupported version %d", cfg.Version)
	}
	if strings.TrimSpace(cfg.Gateway.HTTPAddr) == "" {
		return fmt.Errorf("DOC_CONFIG_GATEWAY: missing http_addr")
	}
	if d, err := time.ParseDuration(cfg.Scan.Timeout); err != nil || d <= 0 {
		return fmt.Errorf("DOC_CONFIG_SCAN: invalid timeout %q", cfg.Scan.Timeout)
	}
	if d, err := time.ParseDuration(cfg.Scan.CloneTimeout); err != nil || d <= 0 {
		return fmt.Errorf("DOC_CONFIG_SCAN: invalid clone_timeout %q", cfg.Scan.CloneTimeout)
	}
	if cfg.Scan.RiskThreshold < 0 || cfg.Scan.RiskThreshold > 100 {
		return fmt.Errorf("DOC_CONFIG_SCAN: risk_threshold must be within 0..100, got %d", cfg.Scan.RiskThreshold)
	}
	if cfg.Scan.MaxConcurrentScans < 1 {
		return fmt.Errorf("DOC_CONFIG_SCAN: max_concurrent_scans must be positive, got %d", cfg.Scan.MaxConcurrentScans)
	}
	for _, s := range cfg.Scan.DisabledStages {
		if _, ok := knownStages[s]; !ok {
			return fmt.Errorf("DOC_CONFIG_SCAN: unknown stage %q", s)
		}
	}
	for _, d := range cfg.Trust.TrustedDomains {
		if strings.Trim(strings.TrimSpace(d), "*/") == "" {
			return fmt.Errorf("SEC_CONFIG_TRUST: empty trusted domain")
		}
	}
	if cfg.Storage.Root == "" {
		return fmt.Errorf("DOC_CONFIG_STORAGE: missing storage root")
	}
	if cfg.Manifests.Official == "" || cfg.Manifests.Community == "" {
		return fmt.Errorf("DOC_CONFIG_MANIFESTS: missing manifest file names")
	}
	if cfg.Manifests.Official == cfg.Manifests.Community {
		return fmt.Errorf("DOC_CONFIG_MANIFESTS: official and community manifests must differ")
	}
	if _, ok := allowedLogLevels[cfg.Logging.Level]; !ok {
		return fmt.Errorf("DOC_CONFIG_LOGGING: invalid level %q", cfg.Logging.Level)
	}
	if _, ok := allowedLogFormats[cfg.Logging.Format]; !ok {
		return fmt.Errorf("DOC_CONFIG_LOGGING: invalid format %q", cfg.Logging.Format)
	}
	return nil
}

// ScanTimeout returns the parsed scan deadline. Validate guarantees it parses.
func (c ScanConfig) ScanTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		return 300 * time.Second
	}
	return d
}

func (c ScanConfig) CloneDeadline() time.Duration {
	d, err := time.ParseDuration(c.CloneTimeout)
	if err != nil || d <= 0 {
		return 60 * time.Second
	}
	return d
}
