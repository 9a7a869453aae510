package doctor

import (
	"context"
	"errors"
	"os"
	"os/exec"

	"mcpgate/internal/config"
	"mcpgate/internal/manifest"
)

type Finding struct {
	Code    string `json:"code"`
	Level   string `json:"level"`
	Message string `json:"message"`
}

type ManifestStatus struct {
	Group   manifest.Group `json:"group"`
	Path    string         `json:"path"`
	Entries int            `json:"entries"`
	Enabled int            `json:"enabled"`
}

type Report struct {
	Healthy   bool             `json:"healthy"`
	Findings  []Finding        `json:"findings"`
	Manifests []ManifestStatus `json:"manifests,omitempty"`
}

// Pinger is satisfied by the provider store.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Service struct {
	ConfigPath string
	Store      Pinger
	// LookPath defaults to exec.LookPath.
	LookPath func(string) (string, error)
}

func (s *Service) Run(ctx context.Context) Report {
	findings := []Finding{}
	var cfg config.Config
	cfgOK := false
	if _, err := os.Stat(s.ConfigPath); err != nil {
		findings = append(findings, Finding{Code: "DOC_CONFIG_MISSING", Level: "error", Message: err.Error()})
	} else if loaded, err := config.Load(s.ConfigPath); err != nil {
		findings = append(findings, Finding{Code: "DOC_CONFIG_INVALID", Level: "error", Message: err.Error()})
	} else {
		cfg, cfgOK = loaded, true
	}

	if s.Store == nil {
		findings = append(findings, Finding{Code: "DOC_STORE_UNAVAILABLE", Level: "error", Message: "store not opened"})
	} else if err := s.Store.Ping(ctx); err != nil {
		findings = append(findings, Finding{Code: "DOC_STORE_UNAVAILABLE", Level: "error", Message: err.Error()})
	}

	var manifests []ManifestStatus
	if cfgOK {
		manifests, findings = s.checkManifests(cfg, findings)
		findings = s.checkScanning(cfg, findings)
		if cfg.Gateway.AdminTokenHash == "" {
			findings = append(findings, Finding{Code: "DOC_ADMIN_OPEN", Level: "warn", Message: "admin routes accept unauthenticated requests"})
		}
	}

	healthy := true
	for _, f := range findings {
		if f.Level == "error" {
			healthy = false
			break
		}
	}
	return Report{Healthy: healthy, Findings: findings, Manifests: manifests}
}

func (s *Service) checkManifests(cfg config.Config, findings []Finding) ([]ManifestStatus, []Finding) {
	official, community, err := config.ManifestPaths(cfg)
	if err != nil {
		return nil, append(findings, Finding{Code: "DOC_MANIFEST_PATH", Level: "error", Message: err.Error()})
	}
	out := []ManifestStatus{}
	for _, m := range []struct {
		group manifest.Group
		path  string
	}{{manifest.GroupOfficial, official}, {manifest.GroupCommunity, community}} {
		f, err := manifest.Load(m.path)
		if errors.Is(err, os.ErrNotExist) {
			findings = append(findings, Finding{Code: "DOC_MANIFEST_MISSING", Level: "warn", Message: m.path + " does not exist"})
			continue
		}
		if err == nil {
			err = f.Check()
		}
		if err != nil {
			findings = append(findings, Finding{Code: "DOC_MANIFEST_INVALID", Level: "error", Message: err.Error()})
			continue
		}
		st := ManifestStatus{Group: m.group, Path: m.path, Entries: len(f.MCPs)}
		for _, e := range f.MCPs {
			if e.Enabled {
				st.Enabled++
			}
		}
		out = append(out, st)
	}
	return out, findings
}

func (s *Service) checkScanning(cfg config.Config, findings []Finding) []Finding {
	if !cfg.Scan.Enabled {
		return append(findings, Finding{Code: "DOC_SCAN_DISABLED", Level: "warn", Message: "security scanning is disabled; community providers stay PENDING"})
	}
	lookPath := s.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	if _, err := lookPath("git"); err != nil {
		findings = append(findings, Finding{Code: "DOC_GIT_MISSING", Level: "warn", Message: "git not found on PATH; scans will fail closed"})
	}
	if len(cfg.Scan.StaticCommand) > 0 {
		if _, err := lookPath(cfg.Scan.StaticCommand[0]); err != nil {
			findings = append(findings, Finding{Code: "DOC_ANALYZER_MISSING", Level: "warn", Message: cfg.Scan.StaticCommand[0] + " not found on PATH"})
		}
	}
	return findings
}
