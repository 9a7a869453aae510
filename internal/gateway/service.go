package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"mcpgate/internal/audit"
	"mcpgate/internal/events"
	"mcpgate/internal/loader"
	"mcpgate/internal/manifest"
	"mcpgate/internal/registry"
	"mcpgate/internal/security"
	"mcpgate/internal/store"
	"mcpgate/internal/tools"
	"mcpgate/internal/trust"
)

// Result is the structured reply of every gateway operation. Failures carry
// success=false, an error message and a code; no Go error crosses this boundary.
type Result map[string]any

func (r Result) OK() bool {
	ok, _ := r["success"].(bool)
	return ok
}

// Code returns the error code of a failed result.
func (r Result) Code() string {
	c, _ := r["code"].(string)
	return c
}

const codeTimeout = "GW_TIMEOUT"

var errValidation = errors.New("GW_VALIDATION")

// codes are matched in order; the first sentinel in the chain names the failure.
var codes = []error{
	registry.ErrNotFound,
	registry.ErrNotExecutable,
	registry.ErrMissingEnvironment,
	registry.ErrInvalidParams,
	loader.ErrNotFound,
	manifest.ErrValidation,
	store.ErrNotFound,
	store.ErrDuplicate,
	store.ErrInvalid,
	store.ErrPersistence,
	security.ErrScanTimeout,
	security.ErrScanError,
	tools.ErrRemoteTool,
	tools.ErrBackend,
	errValidation,
}

func errorCode(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return codeTimeout
	}
	for _, sentinel := range codes {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return "GW_INTERNAL"
}

func failure(err error) Result {
	return Result{"success": false, "error": err.Error(), "code": errorCode(err)}
}

// ProviderStore is the store surface the gateway uses directly.
type ProviderStore interface {
	CreateProvider(ctx context.Context, p *store.Provider) error
	ListProviders(ctx context.Context, statuses ...trust.Status) ([]store.Provider, error)
	DeleteProvider(ctx context.Context, id string) error
}

// Scanner runs an ad-hoc scan.
type Scanner interface {
	Scan(ctx context.Context, location, providerID string) security.ScanResult
}

type Options struct {
	Registry       *registry.Registry
	Loader         *loader.Loader
	Store          ProviderStore
	Scanner        Scanner
	Classifier     *trust.Classifier
	Events         events.Writer
	Audit          *audit.Logger
	Logger         *zap.Logger
	Environment    string
	SandboxEnabled bool
}

// Service routes calls to the registry and delegates configuration to the loader.
type Service struct {
	reg         *registry.Registry
	loader      *loader.Loader
	store       ProviderStore
	scanner     Scanner
	classifier  *trust.Classifier
	events      events.Writer
	audit       *audit.Logger
	logger      *zap.Logger
	environment string
	sandbox     bool
}

func NewService(opts Options) *Service {
	s := &Service{
		reg:         opts.Registry,
		loader:      opts.Loader,
		store:       opts.Store,
		scanner:     opts.Scanner,
		classifier:  opts.Classifier,
		events:      opts.Events,
		audit:       opts.Audit,
		logger:      opts.Logger,
		environment: opts.Environment,
		sandbox:     opts.SandboxEnabled,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.events == nil {
		s.events = events.NewLogWriter(s.logger)
	}
	if s.classifier == nil {
		s.classifier = trust.NewClassifier(trust.DefaultTrustedDomains, trust.DefaultPublicHosts)
	}
	if s.environment == "" {
		s.environment = "development"
	}
	return s
}

func (s *Service) Registry() *registry.Registry { return s.reg }

// Call invokes a tool. A positive timeout bounds the invocation.
func (s *Service) Call(ctx context.Context, tool string, params map[string]any, timeoutSeconds float64) Result {
	started := time.Now()
	if timeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(timeoutSeconds*float64(time.Second)))
		defer cancel()
	}
	info, known := s.reg.Tool(tool)
	out, err := s.reg.CallTool(ctx, tool, params)
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
		err = fmt.Errorf("tool %s: %w", tool, ctxErr)
	}
	s.events.Write(events.CallEvent(tool, info.ProviderID, started, err))
	var res Result
	if err != nil {
		s.logger.Warn("tool call failed", zap.String("tool", tool), zap.Error(err))
		res = failure(err)
	} else {
		res = Result{"success": true, "result": out}
	}
	if known {
		res["tool_info"] = map[string]any{
			"name":               info.Name,
			"owning_provider_id": info.ProviderID,
			"provider_name":      info.ProviderName,
			"trust_level":        info.TrustLevel,
		}
	}
	return res
}

func (s *Service) ListTools() Result {
	list := s.reg.ListTools()
	return Result{"success": true, "tools": list, "total": len(list)}
}

// ListProviders merges indexed providers with every stored record, deduplicated by id.
func (s *Service) ListProviders(ctx context.Context) Result {
	providers := s.reg.ListProviders()
	seen := make(map[string]struct{}, len(providers))
	for _, p := range providers {
		seen[p.ID] = struct{}{}
	}
	if s.store != nil {
		recs, err := s.store.ListProviders(ctx)
		if err != nil {
			return failure(err)
		}
		for _, rec := range recs {
			if _, ok := seen[rec.ID]; ok {
				continue
			}
			available, _ := rec.Metadata["env_available"].(bool)
			names := []string(rec.ToolNames)
			if names == nil {
				names = []string{}
			}
			providers = append(providers, registry.Provider{
				ID:             rec.ID,
				Name:           rec.Name,
				SourceLocation: rec.SourceLocation,
				TrustLevel:     rec.TrustLevel,
				Status:         rec.Status,
				Kind:           registry.KindExternal,
				EnvRequired:    rec.MetadataStrings("env_required"),
				EnvAvailable:   available,
				ToolNames:      names,
			})
		}
	}
	return Result{"success": true, "providers": providers, "total": len(providers)}
}

// AddProviderRequest registers a provider outside the manifests.
type AddProviderRequest struct {
	URL        string       `json:"url"`
	Name       string       `json:"name,omitempty"`
	TrustLevel string       `json:"trust_level,omitempty"`
	Endpoint   string       `json:"endpoint,omitempty"`
	Transport  string       `json:"transport,omitempty"`
	Tools      []tools.Spec `json:"tools,omitempty"`
	AddedVia   string       `json:"-"`
}

// AddProvider persists a provider. Sources that classify as COMMUNITY start
// PENDING whatever trust level the caller asks for; all others start APPROVED.
func (s *Service) AddProvider(ctx context.Context, req AddProviderRequest) Result {
	url := strings.TrimSpace(req.URL)
	if url == "" {
		return failure(fmt.Errorf("%w: url is required", errValidation))
	}
	classified := s.classifier.Classify(url)
	level := classified
	if strings.TrimSpace(req.TrustLevel) != "" {
		parsed, err := trust.ParseLevel(req.TrustLevel)
		if err != nil {
			return failure(fmt.Errorf("%w: %v", errValidation, err))
		}
		level = parsed
	}
	if level == trust.Internal && url != trust.BuiltinSource {
		return failure(fmt.Errorf("%w: INTERNAL trust cannot be assigned to remote source %s", errValidation, url))
	}
	// A caller cannot lift a community source out of review.
	if classified == trust.Community {
		level = trust.Community
	}
	for _, spec := range req.Tools {
		if err := spec.Validate(); err != nil {
			return failure(fmt.Errorf("%w: %v", errValidation, err))
		}
	}
	status := trust.StatusApproved
	if level == trust.Community {
		status = trust.StatusPending
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = nameFromURL(url)
	}
	via := req.AddedVia
	if via == "" {
		via = "api"
	}
	names := make([]string, 0, len(req.Tools))
	for _, spec := range req.Tools {
		names = append(names, spec.Name)
	}
	p := &store.Provider{
		SourceLocation: url,
		Name:           name,
		TrustLevel:     level,
		Status:         status,
		Config:         map[string]any{"endpoint": req.Endpoint, "transport": req.Transport},
		Metadata:       map[string]any{"added_via": via},
		ToolNames:      names,
		Tools:          req.Tools,
	}
	if err := s.store.CreateProvider(ctx, p); err != nil {
		return failure(err)
	}
	s.auditLog(audit.Event{
		Operation: audit.OpAddProvider,
		Target:    url,
		Status:    strings.ToLower(string(status)),
		Fields:    map[string]string{"provider_id": p.ID, "trust_level": string(level), "added_via": via},
	})
	if err := s.reg.Initialize(ctx); err != nil {
		s.logger.Error("registry reload after add failed", zap.Error(err))
	}
	msg := fmt.Sprintf("provider %s registered as %s", name, status)
	if status == trust.StatusPending {
		msg = fmt.Sprintf("provider %s registered as PENDING, a security scan and approval are required", name)
	}
	return Result{
		"success":     true,
		"provider_id": p.ID,
		"status":      status,
		"trust_level": level,
		"message":     msg,
	}
}

// nameFromURL returns the last path segment without ".git".
func nameFromURL(url string) string {
	u := strings.TrimRight(url, "/")
	if i := strings.LastIndexAny(u, "/:"); i >= 0 {
		u = u[i+1:]
	}
	u = strings.TrimSuffix(u, ".git")
	if u == "" {
		return "unknown-mcp"
	}
	return u
}

func (s *Service) RemoveProvider(ctx context.Context, id string) Result {
	if err := s.store.DeleteProvider(ctx, id); err != nil {
		return failure(err)
	}
	s.auditLog(audit.Event{Operation: audit.OpRemoveProvider, Target: id, Status: "ok"})
	if err := s.reg.Initialize(ctx); err != nil {
		s.logger.Error("registry reload after remove failed", zap.Error(err))
	}
	return Result{"success": true, "message": "provider " + id + " removed"}
}

func (s *Service) Health() Result {
	providers, toolCount := s.reg.Stats()
	return Result{
		"status":             "healthy",
		"providers_loaded":   providers,
		"tools_available":    toolCount,
		"environment":        s.environment,
		"sandboxing_enabled": s.sandbox,
	}
}

func (s *Service) ConfigList(ctx context.Context) Result {
	listing, err := s.loader.List(ctx)
	if err != nil {
		return failure(err)
	}
	return Result{"success": true, "official": listing.Official, "community": listing.Community}
}

func (s *Service) ConfigLoad(ctx context.Context, scope string) Result {
	sc, err := loader.ParseScope(scope)
	if err != nil {
		return failure(err)
	}
	res, err := s.loader.LoadAll(ctx, sc)
	if err != nil {
		return failure(err)
	}
	return Result{
		"success":          true,
		"providers_loaded": res.ProvidersLoaded,
		"tools_available":  res.ToolsAvailable,
		"entries":          res.Entries,
	}
}

func (s *Service) ConfigEnable(ctx context.Context, name string) Result {
	res, err := s.loader.Enable(ctx, name)
	if err != nil {
		return failure(err)
	}
	return Result{"success": true, "entry": res, "message": "enabled " + res.Key}
}

func (s *Service) ConfigDisable(ctx context.Context, name string) Result {
	res, err := s.loader.Disable(ctx, name)
	if err != nil {
		return failure(err)
	}
	return Result{"success": true, "entry": res, "message": "disabled " + res.Key}
}

// Scan runs an ad-hoc scan. Nothing is persisted.
func (s *Service) Scan(ctx context.Context, url string) Result {
	url = strings.TrimSpace(url)
	if url == "" {
		return failure(fmt.Errorf("%w: url is required", errValidation))
	}
	if s.scanner == nil {
		return failure(fmt.Errorf("%w: scanning is disabled", errValidation))
	}
	res := s.scanner.Scan(ctx, url, "")
	s.events.Write(events.ScanEvent(res))
	return Result{"success": true, "scan": res}
}

func (s *Service) auditLog(ev audit.Event) {
	if err := s.audit.Log(ev); err != nil {
		s.logger.Warn("audit write failed", zap.String("operation", ev.Operation), zap.Error(err))
	}
}
