package registry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"mcpgate/internal/config"
	"mcpgate/internal/store"
	"mcpgate/internal/tools"
	"mcpgate/internal/trust"
)

var (
	ErrNotFound           = errors.New("REG_NOT_FOUND")
	ErrNotExecutable      = errors.New("REG_NOT_EXECUTABLE")
	ErrMissingEnvironment = errors.New("REG_MISSING_ENV")
	ErrInvalidParams      = errors.New("REG_INVALID_PARAMS")
)

// KindExternal marks providers materialized from the store.
const KindExternal = "external"

// ProviderStore is the part of the store the registry reads and updates.
type ProviderStore interface {
	ListProviders(ctx context.Context, statuses ...trust.Status) ([]store.Provider, error)
	UpdateStatus(ctx context.Context, id string, status trust.Status) error
	RefreshProvider(ctx context.Context, p *store.Provider, from ...trust.Status) (bool, error)
}

type Options struct {
	Store  ProviderStore
	Logger *zap.Logger
	// Dialer reaches external providers that declare an endpoint.
	Dialer tools.Dialer
	Lookup func(string) (string, bool)
	// Internal and Custom default to the compiled tables when nil.
	Internal []tools.Definition
	Custom   []tools.Definition
}

// Registry indexes callable tools. Rebuilds are serialized, reads are lock-free.
type Registry struct {
	mu       sync.Mutex
	current  atomic.Pointer[snapshot]
	store    ProviderStore
	logger   *zap.Logger
	dialer   tools.Dialer
	lookup   func(string) (string, bool)
	internal []tools.Definition
	custom   []tools.Definition
	gen      uint64
}

func New(opts Options) *Registry {
	r := &Registry{
		store:    opts.Store,
		logger:   opts.Logger,
		dialer:   opts.Dialer,
		lookup:   opts.Lookup,
		internal: opts.Internal,
		custom:   opts.Custom,
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	if r.lookup == nil {
		r.lookup = os.LookupEnv
	}
	if r.dialer == nil {
		r.dialer = tools.MCPDialer{ClientName: "mcpgate", ClientVersion: config.Version}
	}
	if r.internal == nil {
		r.internal = tools.Internal()
	}
	if r.custom == nil {
		r.custom = tools.Custom()
	}
	r.current.Store(newBuilder(r.logger, 0).finish())
	return r
}

// Initialize rebuilds the index from the compiled tables and the store, then
// publishes it. On a store read failure the previous index stays in place.
func (r *Registry) Initialize(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	b := newBuilder(r.logger, r.gen+1)
	for _, d := range r.internal {
		r.addDefinition(b, d)
	}
	for _, d := range r.custom {
		r.addDefinition(b, d)
	}
	if r.store != nil {
		recs, err := r.store.ListProviders(ctx, trust.StatusActive, trust.StatusApproved)
		if err != nil {
			return fmt.Errorf("REG_LOAD: list providers: %w", err)
		}
		for i := range recs {
			r.addStored(ctx, b, &recs[i])
		}
	}
	snap := b.finish()
	r.gen = snap.generation
	r.current.Store(snap)
	r.logger.Info("registry initialized",
		zap.Int("providers", len(snap.providers)),
		zap.Int("tools", len(snap.toolList)),
		zap.Int("warnings", len(snap.warnings)))
	return nil
}

func (r *Registry) addDefinition(b *builder, d tools.Definition) {
	bound := make([]boundTool, 0, len(d.Tools))
	for _, t := range d.Tools {
		schema, err := tools.Compile(t.Spec)
		if err != nil {
			// compiled tables are covered by tests; a bad entry only drops that tool
			r.logger.Error("builtin tool failed to compile", zap.String("provider", d.ID()), zap.Error(err))
			continue
		}
		bound = append(bound, boundTool{schema: schema, handler: t.Handler})
	}
	b.add(Provider{
		ID:             d.ID(),
		Name:           d.Name,
		Description:    d.Description,
		SourceLocation: trust.BuiltinSource,
		TrustLevel:     trust.Internal,
		Status:         trust.StatusActive,
		Kind:           d.Kind,
		EnvRequired:    d.EnvRequired,
		EnvAvailable:   len(r.missingEnv(d.EnvRequired)) == 0,
	}, bound)
}

func (r *Registry) addStored(ctx context.Context, b *builder, rec *store.Provider) {
	bound, err := r.buildExternal(rec)
	if err != nil {
		r.logger.Warn("provider failed to build",
			zap.String("provider_id", rec.ID),
			zap.String("name", rec.Name),
			zap.Error(err))
		if uerr := r.store.UpdateStatus(ctx, rec.ID, trust.StatusFailed); uerr != nil {
			r.logger.Error("mark provider failed", zap.String("provider_id", rec.ID), zap.Error(uerr))
		}
		return
	}
	env := rec.MetadataStrings("env_required")
	available := len(r.missingEnv(env)) == 0

	changed := false
	if rec.Status == trust.StatusApproved {
		rec.Status = trust.StatusActive
		changed = true
	}
	if prev, ok := rec.Metadata["env_available"].(bool); !ok || prev != available {
		if rec.Metadata == nil {
			rec.Metadata = map[string]any{}
		}
		rec.Metadata["env_available"] = available
		changed = true
	}
	names := make([]string, 0, len(bound))
	for _, bt := range bound {
		names = append(names, bt.schema.Spec().Name)
	}
	sort.Strings(names)
	if !slices.Equal(names, []string(rec.ToolNames)) {
		rec.ToolNames = names
		changed = true
	}
	if changed {
		// The row may have been removed or demoted since ListProviders.
		ok, err := r.store.RefreshProvider(ctx, rec, trust.StatusApproved, trust.StatusActive)
		switch {
		case err != nil:
			r.logger.Error("persist provider after load", zap.String("provider_id", rec.ID), zap.Error(err))
		case !ok:
			r.logger.Info("provider changed during load, skipped", zap.String("provider_id", rec.ID))
			return
		}
	}

	b.add(Provider{
		ID:             rec.ID,
		Name:           rec.Name,
		SourceLocation: rec.SourceLocation,
		TrustLevel:     rec.TrustLevel,
		Status:         rec.Status,
		Kind:           KindExternal,
		EnvRequired:    env,
		EnvAvailable:   available,
	}, bound)
}

// buildExternal compiles declared tools. Without an endpoint the tools are
// indexed but not executable.
func (r *Registry) buildExternal(rec *store.Provider) ([]boundTool, error) {
	endpoint := strings.TrimSpace(rec.ConfigString("endpoint"))
	transport := rec.ConfigString("transport")

	specs := append([]tools.Spec(nil), rec.Tools...)
	declared := map[string]bool{}
	for _, s := range specs {
		declared[s.Name] = true
	}
	for _, name := range rec.ToolNames {
		if !declared[name] {
			specs = append(specs, tools.Spec{Name: name})
			declared[name] = true
		}
	}

	bound := make([]boundTool, 0, len(specs))
	for _, s := range specs {
		schema, err := tools.Compile(s)
		if err != nil {
			return nil, err
		}
		var h tools.Handler
		if endpoint != "" {
			h = tools.Remote(r.dialer, endpoint, transport, s.Name)
		}
		bound = append(bound, boundTool{schema: schema, handler: h})
	}
	return bound, nil
}

func (r *Registry) missingEnv(names []string) []string {
	var missing []string
	for _, n := range names {
		if v, ok := r.lookup(n); !ok || strings.TrimSpace(v) == "" {
			missing = append(missing, n)
		}
	}
	return missing
}

func (r *Registry) snapshot() *snapshot {
	return r.current.Load()
}

// ListTools returns every dispatchable tool sorted by name.
func (r *Registry) ListTools() []Tool {
	return slices.Clone(r.snapshot().toolList)
}

// ListProviders returns the providers of the current index sorted by name.
func (r *Registry) ListProviders() []Provider {
	snap := r.snapshot()
	out := make([]Provider, len(snap.providers))
	for i, p := range snap.providers {
		p.EnvRequired = slices.Clone(p.EnvRequired)
		p.ToolNames = slices.Clone(p.ToolNames)
		out[i] = p
	}
	return out
}

// Tool looks up one tool by name.
func (r *Registry) Tool(name string) (Tool, bool) {
	e, ok := r.snapshot().tools[name]
	if !ok {
		return Tool{}, false
	}
	return e.tool, true
}

// Warnings returns the collisions recorded by the last rebuild.
func (r *Registry) Warnings() []Warning {
	return slices.Clone(r.snapshot().warnings)
}

// Generation increases on every successful rebuild.
func (r *Registry) Generation() uint64 {
	return r.snapshot().generation
}

func (r *Registry) BuiltAt() time.Time {
	return r.snapshot().builtAt
}

// Stats returns the number of indexed providers and tools.
func (r *Registry) Stats() (providerCount, toolCount int) {
	snap := r.snapshot()
	return len(snap.providers), len(snap.toolList)
}

// CallTool resolves name in the current index and invokes it outside any lock.
func (r *Registry) CallTool(ctx context.Context, name string, params map[string]any) (any, error) {
	e, ok := r.snapshot().tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: tool %q", ErrNotFound, name)
	}
	if e.handler == nil {
		return nil, fmt.Errorf("%w: tool %q from provider %s has no invoker", ErrNotExecutable, name, e.tool.ProviderID)
	}
	if missing := r.missingEnv(e.env); len(missing) > 0 {
		return nil, fmt.Errorf("%w: tool %q requires %s", ErrMissingEnvironment, name, strings.Join(missing, ", "))
	}
	if params == nil {
		params = map[string]any{}
	}
	prepared, err := e.schema.Prepare(params)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}
	out, err := e.handler(ctx, prepared)
	if err != nil && errors.Is(err, tools.ErrInvalidParams) {
		return nil, fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}
	return out, err
}
