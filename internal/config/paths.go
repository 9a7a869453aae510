package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".mcpgate/config.toml"
	}
	return filepath.Join(home, ".mcpgate", "config.toml")
}

func ExpandPath(path string) (string, error) {
	if path == "" {
		return "", errors.New("empty path")
	}
	if path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return home, nil
	}
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~/")), nil
	}
	return path, nil
}

func ResolveStorageRoot(cfg Config) (string, error) {
	expanded, err := ExpandPath(cfg.Storage.Root)
	if err != nil {
		return "", err
	}
	return filepath.Clean(expanded), nil
}

// ResolveManifestDir defaults to <storage root>/manifests.
func ResolveManifestDir(cfg Config) (string, error) {
	if cfg.Manifests.Dir != "" {
		expanded, err := ExpandPath(cfg.Manifests.Dir)
		if err != nil {
			return "", err
		}
		return filepath.Clean(expanded), nil
	}
	root, err := ResolveStorageRoot(cfg)
	if err != nil {
		return "", err
	}
	return filepath.Join(root, "manifests"), nil
}

// ManifestPaths returns the official and community manifest file paths.
func ManifestPaths(cfg Config) (official, community string, err error) {
	dir, err := ResolveManifestDir(cfg)
	if err != nil {
		return "", "", err
	}
	return resolveIn(dir, cfg.Manifests.Official), resolveIn(dir, cfg.Manifests.Community), nil
}

func resolveIn(dir, name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(dir, name)
}
