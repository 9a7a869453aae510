package config

// Build metadata, set with -ldflags "-X mcpgate/internal/config.Version=...".
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)
