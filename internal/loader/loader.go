package loader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"mcpgate/internal/audit"
	"mcpgate/internal/events"
	"mcpgate/internal/manifest"
	"mcpgate/internal/security"
	"mcpgate/internal/store"
	"mcpgate/internal/trust"
)

var ErrNotFound = errors.New("MAN_NOT_FOUND")

// Scope selects which manifests a load covers.
type Scope string

const (
	ScopeAll       Scope = "all"
	ScopeOfficial  Scope = "official"
	ScopeCommunity Scope = "community"
)

func ParseScope(s string) (Scope, error) {
	switch Scope(strings.ToLower(strings.TrimSpace(s))) {
	case "", ScopeAll:
		return ScopeAll, nil
	case ScopeOfficial:
		return ScopeOfficial, nil
	case ScopeCommunity:
		return ScopeCommunity, nil
	default:
		return "", fmt.Errorf("%w: unknown scope %q", manifest.ErrValidation, s)
	}
}

func (s Scope) groups() []manifest.Group {
	switch s {
	case ScopeOfficial:
		return []manifest.Group{manifest.GroupOfficial}
	case ScopeCommunity:
		return []manifest.Group{manifest.GroupCommunity}
	default:
		return manifest.Groups
	}
}

// Scanner evaluates a source location. It must not return until its workspace is gone.
type Scanner interface {
	Scan(ctx context.Context, location, providerID string) security.ScanResult
}

// ProviderStore is the persistence the loader writes through.
type ProviderStore interface {
	CreateProvider(ctx context.Context, p *store.Provider) error
	FindBySource(ctx context.Context, location string) (store.Provider, error)
	UpdateStatus(ctx context.Context, id string, status trust.Status) error
	DeleteProvider(ctx context.Context, id string) error
	RecordScan(ctx context.Context, rec *store.ScanRecord) error
}

// Reloader rebuilds the tool index after the store changes.
type Reloader interface {
	Initialize(ctx context.Context) error
	Stats() (providerCount, toolCount int)
}

type Options struct {
	OfficialPath  string
	CommunityPath string
	Store         ProviderStore
	Registry      Reloader
	// Scanner is nil when scanning is disabled; entries that need a scan then stay PENDING.
	Scanner            Scanner
	MaxConcurrentScans int
	Audit              *audit.Logger
	Events             events.Writer
	Logger             *zap.Logger
}

// Loader turns declarative manifests into persisted, scanned providers.
type Loader struct {
	mu      sync.Mutex
	paths   map[manifest.Group]string
	store   ProviderStore
	reg     Reloader
	scanner Scanner
	limit   int
	audit   *audit.Logger
	events  events.Writer
	logger  *zap.Logger
	now     func() time.Time
}

func New(opts Options) *Loader {
	l := &Loader{
		paths: map[manifest.Group]string{
			manifest.GroupOfficial:  opts.OfficialPath,
			manifest.GroupCommunity: opts.CommunityPath,
		},
		store:   opts.Store,
		reg:     opts.Registry,
		scanner: opts.Scanner,
		limit:   opts.MaxConcurrentScans,
		audit:   opts.Audit,
		events:  opts.Events,
		logger:  opts.Logger,
		now:     time.Now,
	}
	if l.limit <= 0 {
		l.limit = 5
	}
	if l.logger == nil {
		l.logger = zap.NewNop()
	}
	if l.events == nil {
		l.events = events.NewLogWriter(l.logger)
	}
	return l
}

// Path returns the manifest file for a group.
func (l *Loader) Path(g manifest.Group) string {
	return l.paths[g]
}

// EntryResult reports what a load did with one manifest entry.
type EntryResult struct {
	Key        string       `json:"key"`
	Group      string       `json:"group"`
	Name       string       `json:"name"`
	ProviderID string       `json:"provider_id,omitempty"`
	Status     trust.Status `json:"status,omitempty"`
	RiskScore  *int         `json:"risk_score,omitempty"`
	Existing   bool         `json:"existing,omitempty"`
	Action     string       `json:"action,omitempty"`
	Error      string       `json:"error,omitempty"`
}

type LoadResult struct {
	ProvidersLoaded int           `json:"providers_loaded"`
	ToolsAvailable  int           `json:"tools_available"`
	Entries         []EntryResult `json:"entries"`
}

// LoadAll registers every enabled entry in scope that is not yet stored, then
// reloads the registry. Bad manifests and failing entries are logged and skipped.
func (l *Loader) LoadAll(ctx context.Context, scope Scope) (LoadResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var (
		resMu   sync.Mutex
		results []EntryResult
	)
	var g errgroup.Group
	g.SetLimit(l.limit)
	for _, grp := range scope.groups() {
		f, err := l.readManifest(grp)
		if err != nil {
			l.logger.Warn("manifest skipped", zap.String("group", string(grp)), zap.Error(err))
			continue
		}
		if f == nil {
			continue
		}
		for _, key := range f.Keys() {
			entry := *f.MCPs[key]
			if !entry.Enabled {
				continue
			}
			level := f.TrustLevel
			g.Go(func() error {
				res := l.loadEntry(ctx, grp, level, key, entry)
				resMu.Lock()
				results = append(results, res)
				resMu.Unlock()
				return nil
			})
		}
	}
	_ = g.Wait()

	sort.Slice(results, func(i, j int) bool {
		if results[i].Group != results[j].Group {
			return results[i].Group > results[j].Group
		}
		return results[i].Key < results[j].Key
	})
	if results == nil {
		results = []EntryResult{}
	}
	out := LoadResult{Entries: results}
	if err := l.reload(ctx); err != nil {
		return out, err
	}
	out.ProvidersLoaded, out.ToolsAvailable = l.reg.Stats()
	l.logger.Info("manifests loaded",
		zap.String("scope", string(scope)),
		zap.Int("entries", len(results)),
		zap.Int("providers_loaded", out.ProvidersLoaded),
		zap.Int("tools_available", out.ToolsAvailable))
	return out, nil
}

// readManifest returns nil without error when the manifest file does not exist.
func (l *Loader) readManifest(g manifest.Group) (*manifest.File, error) {
	path := l.paths[g]
	if path == "" {
		return nil, nil
	}
	f, err := manifest.Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	if err := f.Check(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

func (l *Loader) loadEntry(ctx context.Context, g manifest.Group, level trust.Level, key string, e manifest.Entry) EntryResult {
	res := EntryResult{Key: key, Group: string(g), Name: e.Name}
	existing, err := l.store.FindBySource(ctx, e.URL)
	switch {
	case err == nil:
		res.ProviderID, res.Status, res.Existing = existing.ID, existing.Status, true
		return res
	case !errors.Is(err, store.ErrNotFound):
		l.logger.Error("lookup provider", zap.String("key", key), zap.Error(err))
		res.Error = err.Error()
		return res
	}

	p := providerFromEntry(g, level, key, e)
	if err := l.store.CreateProvider(ctx, p); err != nil {
		l.logger.Error("create provider", zap.String("key", key), zap.String("url", e.URL), zap.Error(err))
		res.Error = err.Error()
		return res
	}
	res.ProviderID = p.ID
	res.Status = trust.StatusPending

	status, scan := l.decide(ctx, p, level, e)
	if scan != nil {
		score := scan.RiskScore
		res.RiskScore = &score
	}
	if status != trust.StatusPending || scan != nil {
		if err := l.store.UpdateStatus(ctx, p.ID, status); err != nil {
			l.logger.Error("update provider status", zap.String("provider_id", p.ID), zap.Error(err))
			res.Error = err.Error()
			if scan != nil {
				res.Status = l.resetPending(ctx, p.ID)
			}
			return res
		}
	}
	res.Status = status
	l.logger.Info("manifest entry registered",
		zap.String("key", key),
		zap.String("group", string(g)),
		zap.String("provider_id", p.ID),
		zap.String("status", string(status)))
	return res
}

// Planned actions for an entry that is not stored yet.
const (
	ActionExisting = "existing"
	ActionApprove  = "approve"
	ActionScan     = "scan"
	ActionHold     = "hold"
)

// action applies the approval rules for a new entry at the given trust level.
func action(level trust.Level, e manifest.Entry) string {
	switch {
	case level.BypassesScan() && e.AutoApprove:
		return ActionApprove
	case level == trust.Community || e.SecurityScan:
		return ActionScan
	case level == trust.Verified && e.AutoApprove:
		return ActionApprove
	default:
		return ActionHold
	}
}

// decide moves a freshly created PENDING provider on. A scan is returned when one was run.
func (l *Loader) decide(ctx context.Context, p *store.Provider, level trust.Level, e manifest.Entry) (trust.Status, *security.ScanResult) {
	switch action(level, e) {
	case ActionApprove:
		return trust.StatusApproved, nil
	case ActionScan:
		return l.scanProvider(ctx, p, e.RiskLimit())
	default:
		return trust.StatusPending, nil
	}
}

func (l *Loader) scanProvider(ctx context.Context, p *store.Provider, riskLimit int) (trust.Status, *security.ScanResult) {
	if l.scanner == nil {
		l.logger.Warn("scanning disabled, provider left pending", zap.String("provider_id", p.ID), zap.String("url", p.SourceLocation))
		return trust.StatusPending, nil
	}
	if err := l.store.UpdateStatus(ctx, p.ID, trust.StatusScanning); err != nil {
		l.logger.Error("mark provider scanning", zap.String("provider_id", p.ID), zap.Error(err))
		return trust.StatusPending, nil
	}
	res := l.scanner.Scan(ctx, p.SourceLocation, p.ID)
	rec := store.NewScanRecord(res)
	if err := l.store.RecordScan(ctx, &rec); err != nil {
		// without a persisted result the provider cannot be approved
		l.logger.Error("persist scan result", zap.String("provider_id", p.ID), zap.Error(err))
		return trust.StatusPending, &res
	}
	l.events.Write(events.ScanEvent(res))

	status := trust.StatusRejected
	switch {
	case res.Passed && res.RiskScore <= riskLimit:
		status = trust.StatusApproved
	case res.FailClosed:
		status = trust.StatusFailed
	}
	l.auditLog(audit.Event{
		Operation: audit.OpScan,
		Target:    p.SourceLocation,
		Status:    strings.ToLower(string(status)),
		Message:   res.Summary(),
		Fields: map[string]string{
			"provider_id": p.ID,
			"risk_score":  strconv.Itoa(res.RiskScore),
			"risk_limit":  strconv.Itoa(riskLimit),
		},
	})
	return status, &res
}

// resetPending moves a provider whose final status could not be written out of
// SCANNING, so a later enable or load can pick it up again.
func (l *Loader) resetPending(ctx context.Context, id string) trust.Status {
	if err := l.store.UpdateStatus(context.WithoutCancel(ctx), id, trust.StatusPending); err != nil {
		l.logger.Error("reset provider to pending", zap.String("provider_id", id), zap.Error(err))
		return trust.StatusScanning
	}
	return trust.StatusPending
}

func providerFromEntry(g manifest.Group, level trust.Level, key string, e manifest.Entry) *store.Provider {
	names := make([]string, 0, len(e.Tools))
	for _, s := range e.Tools {
		names = append(names, s.Name)
	}
	sort.Strings(names)
	name := e.Name
	if name == "" {
		name = key
	}
	return &store.Provider{
		SourceLocation: e.URL,
		Name:           name,
		TrustLevel:     level,
		Status:         trust.StatusPending,
		Config: map[string]any{
			"sandbox":        e.SandboxEnabled(),
			"max_risk_score": e.RiskLimit(),
			"tags":           e.Tags,
			"capabilities":   e.Capabilities,
			"auto_approve":   e.AutoApprove,
			"security_scan":  e.SecurityScan,
			"endpoint":       e.Endpoint,
			"transport":      e.Transport,
		},
		Metadata: map[string]any{
			"added_via":    "manifest:" + string(g),
			"manifest_key": key,
			"env_required": e.EnvRequired,
			"description":  e.Description,
		},
		ToolNames: names,
		Tools:     e.Tools,
	}
}

func (l *Loader) reload(ctx context.Context) error {
	if l.reg == nil {
		return nil
	}
	if err := l.reg.Initialize(ctx); err != nil {
		return fmt.Errorf("reload registry: %w", err)
	}
	return nil
}

func (l *Loader) auditLog(ev audit.Event) {
	if err := l.audit.Log(ev); err != nil {
		l.logger.Warn("audit write failed", zap.String("operation", ev.Operation), zap.Error(err))
	}
}

func manifestLabel(path string) string {
	return filepath.Base(path)
}
