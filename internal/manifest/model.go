package manifest

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"mcpgate/internal/tools"
	"mcpgate/internal/trust"
)

const DefaultMaxRiskScore = 50

// Group identifies one of the two manifest files.
type Group string

const (
	GroupOfficial  Group = "official"
	GroupCommunity Group = "community"
)

// Groups lists manifest groups in load order.
var Groups = []Group{GroupOfficial, GroupCommunity}

func ParseGroup(s string) (Group, error) {
	switch Group(strings.ToLower(strings.TrimSpace(s))) {
	case GroupOfficial:
		return GroupOfficial, nil
	case GroupCommunity:
		return GroupCommunity, nil
	default:
		return "", fmt.Errorf("%w: unknown manifest group %q", ErrValidation, s)
	}
}

// TrustLevel is the level every entry of the group inherits.
func (g Group) TrustLevel() trust.Level {
	if g == GroupCommunity {
		return trust.Community
	}
	return trust.Official
}

// File is one declarative manifest of provider entries.
type File struct {
	Name        string            `json:"name" toml:"name" yaml:"name"`
	Description string            `json:"description" toml:"description" yaml:"description"`
	TrustLevel  trust.Level       `json:"trust_level" toml:"trust_level" yaml:"trust_level"`
	MCPs        map[string]*Entry `json:"mcps" toml:"mcps" yaml:"mcps"`
}

// Entry declares one provider. Pointer fields distinguish "unset" from zero.
type Entry struct {
	URL          string       `json:"url" toml:"url" yaml:"url"`
	Name         string       `json:"name" toml:"name" yaml:"name"`
	Description  string       `json:"description" toml:"description" yaml:"description"`
	Enabled      bool         `json:"enabled" toml:"enabled" yaml:"enabled"`
	Tags         []string     `json:"tags,omitempty" toml:"tags,omitempty" yaml:"tags,omitempty"`
	Capabilities []string     `json:"capabilities,omitempty" toml:"capabilities,omitempty" yaml:"capabilities,omitempty"`
	Sandbox      *bool        `json:"sandbox,omitempty" toml:"sandbox,omitempty" yaml:"sandbox,omitempty"`
	MaxRiskScore *int         `json:"max_risk_score,omitempty" toml:"max_risk_score,omitempty" yaml:"max_risk_score,omitempty"`
	SecurityScan bool         `json:"security_scan" toml:"security_scan" yaml:"security_scan"`
	AutoApprove  bool         `json:"auto_approve" toml:"auto_approve" yaml:"auto_approve"`
	EnvRequired  []string     `json:"env_required,omitempty" toml:"env_required,omitempty" yaml:"env_required,omitempty"`
	Endpoint     string       `json:"endpoint,omitempty" toml:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Transport    string       `json:"transport,omitempty" toml:"transport,omitempty" yaml:"transport,omitempty"`
	Tools        []tools.Spec `json:"tools,omitempty" toml:"tools,omitempty" yaml:"tools,omitempty"`
	ApprovedBy   string       `json:"approved_by,omitempty" toml:"approved_by,omitempty" yaml:"approved_by,omitempty"`
	ApprovedAt   string       `json:"approved_at,omitempty" toml:"approved_at,omitempty" yaml:"approved_at,omitempty"`
	ApprovalNote string       `json:"approval_note,omitempty" toml:"approval_note,omitempty" yaml:"approval_note,omitempty"`
}

// SandboxEnabled defaults to true.
func (e Entry) SandboxEnabled() bool {
	return e.Sandbox == nil || *e.Sandbox
}

// RiskLimit returns max_risk_score, defaulting to 50.
func (e Entry) RiskLimit() int {
	if e.MaxRiskScore == nil {
		return DefaultMaxRiskScore
	}
	return *e.MaxRiskScore
}

// Approve stamps the approval audit fields.
func (e *Entry) Approve(by, note string, at time.Time) {
	e.ApprovedBy = by
	e.ApprovedAt = at.UTC().Format(time.RFC3339)
	e.ApprovalNote = note
}

func New(g Group) *File {
	f := &File{TrustLevel: g.TrustLevel(), MCPs: map[string]*Entry{}}
	switch g {
	case GroupCommunity:
		f.Name = "Community MCPs"
		f.Description = "Publicly hosted providers that require a security scan before approval"
	default:
		f.Name = "Official MCPs"
		f.Description = "Providers from trusted publishers"
	}
	return f
}

// Keys returns entry keys in stable order.
func (f *File) Keys() []string {
	keys := make([]string, 0, len(f.MCPs))
	for k := range f.MCPs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Lookup finds an entry by key first, then by display name.
func (f *File) Lookup(name string) (string, *Entry, bool) {
	if e, ok := f.MCPs[name]; ok && e != nil {
		return name, e, true
	}
	for _, k := range f.Keys() {
		if e := f.MCPs[k]; e != nil && e.Name == name {
			return k, e, true
		}
	}
	return "", nil, false
}

// Add inserts a new entry. Duplicate keys or URLs are rejected.
func (f *File) Add(key string, e Entry) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("%w: entry key is required", ErrValidation)
	}
	if f.MCPs == nil {
		f.MCPs = map[string]*Entry{}
	}
	if _, ok := f.MCPs[key]; ok {
		return fmt.Errorf("%w: entry %q already exists", ErrValidation, key)
	}
	for k, existing := range f.MCPs {
		if existing != nil && e.URL != "" && existing.URL == e.URL {
			return fmt.Errorf("%w: url %s already declared by %q", ErrValidation, e.URL, k)
		}
	}
	f.MCPs[key] = &e
	return nil
}

// NewEntry builds an entry for the group with conservative defaults. New
// entries start disabled; community entries always require a scan.
func NewEntry(g Group, url, name, description string) Entry {
	sandbox := true
	e := Entry{
		URL:         url,
		Name:        name,
		Description: description,
		Sandbox:     &sandbox,
	}
	if g == GroupCommunity {
		limit := 30
		e.MaxRiskScore = &limit
		e.SecurityScan = true
		e.AutoApprove = false
	} else {
		limit := DefaultMaxRiskScore
		e.MaxRiskScore = &limit
		e.AutoApprove = true
	}
	return e
}

// KeyFromURL derives a manifest key from the last path segment of a repository URL.
func KeyFromURL(url string) string {
	u := strings.TrimRight(strings.TrimSpace(url), "/")
	if i := strings.LastIndexAny(u, "/:"); i >= 0 {
		u = u[i+1:]
	}
	u = strings.TrimSuffix(u, ".git")
	u = strings.ToLower(u)
	if u == "" {
		return "unknown-mcp"
	}
	return u
}
