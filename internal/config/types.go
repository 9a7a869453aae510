package config

// Config is the frozen v1 gateway schema.
type Config struct {
	Version   int             `toml:"version"`
	Gateway   GatewayConfig   `toml:"gateway"`
	Scan      ScanConfig      `toml:"scan"`
	Trust     TrustConfig     `toml:"trust"`
	Storage   StorageConfig   `toml:"storage"`
	Manifests ManifestsConfig `toml:"manifests"`
	Events    EventsConfig    `toml:"events"`
	Logging   LoggingConfig   `toml:"logging"`
}

type GatewayConfig struct {
	Environment    string `toml:"environment" json:"environment"`
	HTTPAddr       string `toml:"http_addr" json:"httpAddr"`
	GRPCAddr       string `toml:"grpc_addr,omitempty" json:"grpcAddr,omitempty"`
	AdminTokenHash string `toml:"admin_token_hash,omitempty" json:"-"`
	WatchManifests bool   `toml:"watch_manifests" json:"watchManifests"`
}

type ScanConfig struct {
	Enabled            bool     `toml:"enabled" json:"enabled"`
	Timeout            string   `toml:"timeout" json:"timeout"`
	CloneTimeout       string   `toml:"clone_timeout" json:"cloneTimeout"`
	RiskThreshold      int      `toml:"risk_threshold" json:"riskThreshold"`
	MaxConcurrentScans int      `toml:"max_concurrent_scans" json:"maxConcurrentScans"`
	SandboxEnabled     bool     `toml:"sandbox_enabled" json:"sandboxEnabled"`
	DisabledStages     []string `toml:"disabled_stages,omitempty" json:"disabledStages,omitempty"`
	StaticCommand      []string `toml:"static_command,omitempty" json:"staticCommand,omitempty"`
}

type TrustConfig struct {
	TrustedDomains []string `toml:"trusted_domains" json:"trustedDomains"`
	PublicHosts    []string `toml:"public_hosts" json:"publicHosts"`
}

type StorageConfig struct {
	Root        string `toml:"root"`
	DatabaseURL string `toml:"database_url,omitempty"`
}

type ManifestsConfig struct {
	Dir       string `toml:"dir,omitempty"`
	Official  string `toml:"official"`
	Community string `toml:"community"`
}

type EventsConfig struct {
	ClickHouseDSN string `toml:"clickhouse_dsn,omitempty"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}
