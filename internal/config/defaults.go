package config

import "mcpgate/internal/trust"

const (
	SchemaVersion = 1

	DefaultScanTimeout   = "300s"
	DefaultCloneTimeout  = "60s"
	DefaultRiskThreshold = 50
	DefaultMaxConcurrent = 5
)

// DefaultConfig returns a fully-populated v1 config document.
func DefaultConfig() Config {
	return Config{
		Version: SchemaVersion,
		Gateway: GatewayConfig{
			Environment:    "development",
			HTTPAddr:       ":8080",
			GRPCAddr:       ":50061",
			WatchManifests: true,
		},
		Scan: ScanConfig{
			Enabled:            true,
			Timeout:            DefaultScanTimeout,
			CloneTimeout:       DefaultCloneTimeout,
			RiskThreshold:      DefaultRiskThreshold,
			MaxConcurrentScans: DefaultMaxConcurrent,
			SandboxEnabled:     true,
		},
		Trust: TrustConfig{
			TrustedDomains: append([]string(nil), trust.DefaultTrustedDomains...),
			PublicHosts:    append([]string(nil), trust.DefaultPublicHosts...),
		},
		Storage: StorageConfig{
			Root: "~/.mcpgate",
		},
		Manifests: ManifestsConfig{
			Official:  "official.json",
			Community: "community.json",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
