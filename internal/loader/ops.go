package loader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"mcpgate/internal/audit"
	"mcpgate/internal/manifest"
	"mcpgate/internal/store"
	"mcpgate/internal/trust"
)

type located struct {
	group manifest.Group
	path  string
	file  *manifest.File
	key   string
	entry *manifest.Entry
}

// find looks an entry up by key, then by name, in the official manifest before the community one.
func (l *Loader) find(name string) (located, error) {
	name = strings.TrimSpace(name)
	for _, g := range manifest.Groups {
		f, err := l.readManifest(g)
		if err != nil {
			return located{}, err
		}
		if f == nil {
			continue
		}
		if key, e, ok := f.Lookup(name); ok {
			return located{group: g, path: l.paths[g], file: f, key: key, entry: e}, nil
		}
	}
	return located{}, fmt.Errorf("%w: no manifest entry named %q", ErrNotFound, name)
}

// Enable marks the entry enabled, registers it if needed, and reloads the registry.
func (l *Loader) Enable(ctx context.Context, name string) (EntryResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	loc, err := l.find(name)
	if err != nil {
		return EntryResult{}, err
	}
	if !loc.entry.Enabled {
		loc.entry.Enabled = true
		if err := manifest.Save(loc.path, loc.file); err != nil {
			return EntryResult{}, err
		}
	}
	res := l.loadEntry(ctx, loc.group, loc.file.TrustLevel, loc.key, *loc.entry)
	l.auditLog(audit.Event{
		Operation: audit.OpEnable,
		Target:    string(loc.group) + "/" + loc.key,
		Status:    strings.ToLower(string(res.Status)),
		Message:   res.Error,
		Fields:    map[string]string{"provider_id": res.ProviderID},
	})
	if err := l.reload(ctx); err != nil {
		return res, err
	}
	if res.Error != "" {
		return res, fmt.Errorf("enable %s: %s", loc.key, res.Error)
	}
	return res, nil
}

// Disable marks the entry disabled and removes its provider and scan history.
func (l *Loader) Disable(ctx context.Context, name string) (EntryResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	loc, err := l.find(name)
	if err != nil {
		return EntryResult{}, err
	}
	if loc.entry.Enabled {
		loc.entry.Enabled = false
		if err := manifest.Save(loc.path, loc.file); err != nil {
			return EntryResult{}, err
		}
	}
	res := EntryResult{Key: loc.key, Group: string(loc.group), Name: loc.entry.Name}
	p, err := l.store.FindBySource(ctx, loc.entry.URL)
	switch {
	case err == nil:
		if err := l.store.DeleteProvider(ctx, p.ID); err != nil {
			return res, err
		}
		res.ProviderID = p.ID
	case !errors.Is(err, store.ErrNotFound):
		return res, err
	}
	l.auditLog(audit.Event{
		Operation: audit.OpDisable,
		Target:    string(loc.group) + "/" + loc.key,
		Status:    "ok",
		Fields:    map[string]string{"provider_id": res.ProviderID},
	})
	return res, l.reload(ctx)
}

// Approve stamps approval metadata on a manifest entry. It does not change provider status.
func (l *Loader) Approve(name, approvedBy, note string) (Summary, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	approvedBy = strings.TrimSpace(approvedBy)
	if approvedBy == "" {
		return Summary{}, fmt.Errorf("%w: approver is required", manifest.ErrValidation)
	}
	loc, err := l.find(name)
	if err != nil {
		return Summary{}, err
	}
	loc.entry.Approve(approvedBy, note, l.now())
	if err := manifest.Save(loc.path, loc.file); err != nil {
		return Summary{}, err
	}
	l.auditLog(audit.Event{
		Operation: audit.OpApprove,
		Actor:     approvedBy,
		Target:    string(loc.group) + "/" + loc.key,
		Status:    "ok",
		Fields:    map[string]string{"note": note},
	})
	l.logger.Info("manifest entry approved", zap.String("key", loc.key), zap.String("by", approvedBy))
	return summarize(loc.group, loc.file.TrustLevel, loc.key, loc.entry), nil
}

// Plan reports what LoadAll would do for every enabled entry in scope. Nothing is written.
func (l *Loader) Plan(ctx context.Context, scope Scope) ([]EntryResult, error) {
	out := []EntryResult{}
	for _, g := range scope.groups() {
		f, err := l.readManifest(g)
		if err != nil {
			return out, err
		}
		if f == nil {
			continue
		}
		for _, key := range f.Keys() {
			e := f.MCPs[key]
			if !e.Enabled {
				continue
			}
			res := EntryResult{Key: key, Group: string(g), Name: e.Name}
			if p, err := l.store.FindBySource(ctx, e.URL); err == nil {
				res.ProviderID, res.Status, res.Existing = p.ID, p.Status, true
				res.Action = ActionExisting
			} else {
				res.Action = action(f.TrustLevel, *e)
				if res.Action == ActionScan && l.scanner == nil {
					res.Action = ActionHold
				}
			}
			out = append(out, res)
		}
	}
	return out, nil
}

// Summary is the listing view of one manifest entry.
type Summary struct {
	Key          string       `json:"key"`
	Group        string       `json:"group"`
	Name         string       `json:"name"`
	URL          string       `json:"url"`
	Description  string       `json:"description,omitempty"`
	Enabled      bool         `json:"enabled"`
	TrustLevel   trust.Level  `json:"trust_level"`
	SecurityScan bool         `json:"security_scan"`
	AutoApprove  bool         `json:"auto_approve"`
	MaxRiskScore int          `json:"max_risk_score"`
	Tags         []string     `json:"tags,omitempty"`
	ApprovedBy   string       `json:"approved_by,omitempty"`
	ApprovedAt   string       `json:"approved_at,omitempty"`
	ProviderID   string       `json:"provider_id,omitempty"`
	Status       trust.Status `json:"status,omitempty"`
}

type Listing struct {
	Official  []Summary `json:"official"`
	Community []Summary `json:"community"`
}

func summarize(g manifest.Group, level trust.Level, key string, e *manifest.Entry) Summary {
	return Summary{
		Key:          key,
		Group:        string(g),
		Name:         e.Name,
		URL:          e.URL,
		Description:  e.Description,
		Enabled:      e.Enabled,
		TrustLevel:   level,
		SecurityScan: e.SecurityScan,
		AutoApprove:  e.AutoApprove,
		MaxRiskScore: e.RiskLimit(),
		Tags:         e.Tags,
		ApprovedBy:   e.ApprovedBy,
		ApprovedAt:   e.ApprovedAt,
	}
}

// List returns entry summaries per manifest, annotated with stored provider status.
func (l *Loader) List(ctx context.Context) (Listing, error) {
	out := Listing{Official: []Summary{}, Community: []Summary{}}
	for _, g := range manifest.Groups {
		f, err := l.readManifest(g)
		if err != nil {
			return out, err
		}
		if f == nil {
			continue
		}
		for _, key := range f.Keys() {
			s := summarize(g, f.TrustLevel, key, f.MCPs[key])
			if p, err := l.store.FindBySource(ctx, s.URL); err == nil {
				s.ProviderID, s.Status = p.ID, p.Status
			}
			if g == manifest.GroupCommunity {
				out.Community = append(out.Community, s)
			} else {
				out.Official = append(out.Official, s)
			}
		}
	}
	return out, nil
}

// AddEntry appends a new entry to a group's manifest, creating the file if needed.
// An empty key is derived from the URL.
func (l *Loader) AddEntry(g manifest.Group, key string, e manifest.Entry) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	path := l.paths[g]
	if path == "" {
		return "", fmt.Errorf("%w: no manifest configured for %s", manifest.ErrValidation, g)
	}
	f, err := manifest.Ensure(path, g)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(key) == "" {
		key = manifest.KeyFromURL(e.URL)
	}
	if strings.TrimSpace(e.Name) == "" {
		e.Name = key
	}
	if err := f.Add(key, e); err != nil {
		return "", err
	}
	if err := f.Check(); err != nil {
		return "", err
	}
	if err := manifest.Save(path, f); err != nil {
		return "", err
	}
	l.auditLog(audit.Event{
		Operation: audit.OpAddEntry,
		Target:    string(g) + "/" + key,
		Status:    "ok",
		Fields:    map[string]string{"url": e.URL},
	})
	return key, nil
}

// Validate runs the policy gate over both manifests. A missing manifest is a warning.
func (l *Loader) Validate(strict bool) manifest.Report {
	var report manifest.Report
	for _, g := range manifest.Groups {
		path := l.paths[g]
		label := manifestLabel(path)
		f, err := manifest.Load(path)
		if err != nil {
			issue := manifest.Issue{File: label, Message: err.Error()}
			if errors.Is(err, os.ErrNotExist) {
				issue.Message = "manifest not found"
				report.Warnings = append(report.Warnings, issue)
			} else {
				report.Errors = append(report.Errors, issue)
			}
			continue
		}
		report.Merge(manifest.Validate(label, f, strict))
	}
	if report.Errors == nil {
		report.Errors = []manifest.Issue{}
	}
	if report.Warnings == nil {
		report.Warnings = []manifest.Issue{}
	}
	return report
}
