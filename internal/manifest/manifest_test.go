package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mcpgate/internal/tools"
	"mcpgate/internal/trust"
)

func sampleFile() *File {
	f := New(GroupCommunity)
	e := NewEntry(GroupCommunity, "https://github.com/acme/weather-mcp", "weather", "Weather lookups")
	e.EnvRequired = []string{"WEATHER_KEY"}
	e.Endpoint = "http://localhost:9000/mcp"
	e.Tools = []tools.Spec{{Name: "forecast", Params: map[string]tools.Param{"city": {Type: "string", Required: true}}}}
	_ = f.Add("weather", e)
	return f
}

func TestCodecRoundTripAllFormats(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"community.json", "community.toml", "community.yaml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			if err := Save(path, sampleFile()); err != nil {
				t.Fatalf("save failed: %v", err)
			}
			got, err := Load(path)
			if err != nil {
				t.Fatalf("load failed: %v", err)
			}
			if got.TrustLevel != trust.Community {
				t.Fatalf("expected community trust level, got %q", got.TrustLevel)
			}
			e := got.MCPs["weather"]
			if e == nil || e.URL != "https://github.com/acme/weather-mcp" || !e.SecurityScan || e.RiskLimit() != 30 {
				t.Fatalf("unexpected entry after round trip: %+v", e)
			}
			if len(e.Tools) != 1 || !e.Tools[0].Params["city"].Required {
				t.Fatalf("expected declared tools preserved, got %+v", e.Tools)
			}
		})
	}
}

func TestLoadOriginalJSONShape(t *testing.T) {
	path := filepath.Join(t.TempDir(), "official.json")
	doc := `{
  "name": "Official MCPs",
  "description": "trusted",
  "trust_level": "OFFICIAL",
  "mcps": {
    "git": {"url": "https://github.com/anthropics/mcp-git", "name": "git", "description": "Git tools",
            "enabled": true, "auto_approve": true, "_note": "legacy field"}
  }
}`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	f, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if err := f.Check(); err != nil {
		t.Fatalf("expected valid manifest, got %v", err)
	}
	e := f.MCPs["git"]
	if !e.SandboxEnabled() || e.RiskLimit() != DefaultMaxRiskScore {
		t.Fatalf("expected defaults for sandbox and risk limit, got %+v", e)
	}
}

func TestLoadMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestEnsureCreatesEmptyManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "community.json")
	f, err := Ensure(path, GroupCommunity)
	if err != nil {
		t.Fatalf("ensure failed: %v", err)
	}
	if f.TrustLevel != trust.Community || len(f.MCPs) != 0 {
		t.Fatalf("unexpected ensured manifest %+v", f)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected file written: %v", err)
	}
}

func TestCheckRejectsBadEntries(t *testing.T) {
	bad := 120
	cases := map[string]*File{
		"bad trust":  {TrustLevel: "TRUSTED", MCPs: map[string]*Entry{}},
		"no url":     {TrustLevel: trust.Official, MCPs: map[string]*Entry{"x": {Name: "x"}}},
		"no name":    {TrustLevel: trust.Official, MCPs: map[string]*Entry{"x": {URL: "https://github.com/a/b"}}},
		"risk range": {TrustLevel: trust.Official, MCPs: map[string]*Entry{"x": {URL: "u", Name: "x", MaxRiskScore: &bad}}},
		"bad tool":   {TrustLevel: trust.Official, MCPs: map[string]*Entry{"x": {URL: "u", Name: "x", Tools: []tools.Spec{{Name: ""}}}}},
	}
	for name, f := range cases {
		t.Run(name, func(t *testing.T) {
			if err := f.Check(); !errors.Is(err, ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestLookupByKeyThenName(t *testing.T) {
	f := sampleFile()
	if key, _, ok := f.Lookup("weather"); !ok || key != "weather" {
		t.Fatalf("expected lookup by key")
	}
	f.MCPs["weather"].Name = "Weather Tools"
	if key, _, ok := f.Lookup("Weather Tools"); !ok || key != "weather" {
		t.Fatalf("expected lookup by name")
	}
	if _, _, ok := f.Lookup("nope"); ok {
		t.Fatalf("expected miss")
	}
}

func TestAddRejectsDuplicates(t *testing.T) {
	f := sampleFile()
	if err := f.Add("weather", Entry{URL: "https://github.com/x/y"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected duplicate key error, got %v", err)
	}
	if err := f.Add("other", Entry{URL: "https://github.com/acme/weather-mcp"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected duplicate url error, got %v", err)
	}
}

func TestNewEntryDefaults(t *testing.T) {
	c := NewEntry(GroupCommunity, "u", "n", "d")
	if c.Enabled || !c.SecurityScan || c.AutoApprove || c.RiskLimit() != 30 || !c.SandboxEnabled() {
		t.Fatalf("unexpected community defaults %+v", c)
	}
	o := NewEntry(GroupOfficial, "u", "n", "d")
	if o.Enabled || !o.AutoApprove || o.RiskLimit() != DefaultMaxRiskScore {
		t.Fatalf("unexpected official defaults %+v", o)
	}
}

func TestApproveStampsRFC3339(t *testing.T) {
	e := &Entry{}
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("x", 3600))
	e.Approve("alice", "reviewed", at)
	if e.ApprovedAt != "2026-03-01T11:00:00Z" || e.ApprovedBy != "alice" || e.ApprovalNote != "reviewed" {
		t.Fatalf("unexpected approval fields %+v", e)
	}
}

func TestKeyFromURL(t *testing.T) {
	cases := map[string]string{
		"https://github.com/acme/Weather-MCP.git": "weather-mcp",
		"git@github.com:acme/tool.git":            "tool",
		"https://gitlab.com/acme/tool/":           "tool",
		"":                                        "unknown-mcp",
	}
	for in, want := range cases {
		if got := KeyFromURL(in); got != want {
			t.Fatalf("KeyFromURL(%q): expected %q got %q", in, want, got)
		}
	}
}

func TestValidatePolicy(t *testing.T) {
	bad := 150
	f := New(GroupCommunity)
	f.MCPs["ok"] = &Entry{URL: "https://github.com/a/ok", Name: "ok", Description: "d", SecurityScan: true}
	f.MCPs["noscan"] = &Entry{URL: "https://github.com/a/noscan", Name: "noscan", Description: "d", AutoApprove: true}
	f.MCPs["badurl"] = &Entry{URL: "http://example.com/x", Name: "badurl", Description: "d", SecurityScan: true}
	f.MCPs["risk"] = &Entry{URL: "https://github.com/a/risk", Name: "risk", Description: "d", SecurityScan: true, MaxRiskScore: &bad}
	f.MCPs["enabled"] = &Entry{URL: "https://github.com/a/en", Name: "enabled", Description: "d", SecurityScan: true, Enabled: true, ApprovedAt: "yesterday"}

	r := Validate("community.json", f, false)
	errs := joinIssues(r.Errors)
	for _, want := range []string{"noscan - community entry must have security_scan", "noscan - community entry cannot have auto_approve", "badurl - url must be", "risk - max_risk_score"} {
		if !strings.Contains(errs, want) {
			t.Fatalf("expected error %q in %s", want, errs)
		}
	}
	if strings.Contains(errs, "ok -") || strings.Contains(errs, "enabled -") {
		t.Fatalf("unexpected errors %s", errs)
	}
	warns := joinIssues(r.Warnings)
	if !strings.Contains(warns, "enabled - enabled community entry should carry approval metadata") || !strings.Contains(warns, "not RFC3339") {
		t.Fatalf("expected approval warnings, got %s", warns)
	}

	strict := Validate("community.json", f, true)
	if !strings.Contains(joinIssues(strict.Errors), "enabled - enabled but not approved") {
		t.Fatalf("expected strict approval error")
	}
}

func TestValidateOfficialWarnsWithoutScan(t *testing.T) {
	f := New(GroupOfficial)
	f.MCPs["git"] = &Entry{URL: "https://github.com/anthropics/git", Name: "git", Description: "d", AutoApprove: true}
	r := Validate("official.json", f, true)
	if !r.OK() || len(r.Warnings) != 1 {
		t.Fatalf("expected one warning and no errors, got %+v", r)
	}
}

func joinIssues(issues []Issue) string {
	parts := make([]string, 0, len(issues))
	for _, i := range issues {
		parts = append(parts, i.String())
	}
	return strings.Join(parts, "\n")
}
