package config

import "mcpgate/internal/trust"

func Normalize(cfg Config) Config {
	if cfg.Version == 0 {
		cfg.Version = SchemaVersion
	}
	if cfg.Gateway.Environment == "" {
		cfg.Gateway.Environment = "development"
	}
	if cfg.Gateway.HTTPAddr == "" {
		cfg.Gateway.HTTPAddr = ":8080"
	}
	if cfg.Scan.Timeout == "" {
		cfg.Scan.Timeout = DefaultScanTimeout
	}
	if cfg.Scan.CloneTimeout == "" {
		cfg.Scan.CloneTimeout = DefaultCloneTimeout
	}
	if cfg.Scan.RiskThreshold == 0 {
		cfg.Scan.RiskThreshold = DefaultRiskThreshold
	}
	if cfg.Scan.MaxConcurrentScans == 0 {
		cfg.Scan.MaxConcurrentScans = DefaultMaxConcurrent
	}
	if cfg.Trust.TrustedDomains == nil {
		cfg.Trust.TrustedDomains = append([]string(nil), trust.DefaultTrustedDomains...)
	}
	if cfg.Trust.PublicHosts == nil {
		cfg.Trust.PublicHosts = append([]string(nil), trust.DefaultPublicHosts...)
	}
	if cfg.Storage.Root == "" {
		cfg.Storage.Root = "~/.mcpgate"
	}
	if cfg.Manifests.Official == "" {
		cfg.Manifests.Official = "official.json"
	}
	if cfg.Manifests.Community == "" {
		cfg.Manifests.Community = "community.json"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	return cfg
}
