package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"mcpgate/internal/audit"
	"mcpgate/internal/config"
	"mcpgate/internal/doctor"
	"mcpgate/internal/events"
	"mcpgate/internal/gateway"
	"mcpgate/internal/loader"
	"mcpgate/internal/logging"
	"mcpgate/internal/manifest"
	"mcpgate/internal/registry"
	"mcpgate/internal/security"
	"mcpgate/internal/source"
	storepkg "mcpgate/internal/store"
	"mcpgate/internal/tools"
	"mcpgate/internal/trust"
)

type Options struct {
	ConfigPath string
	// Lookup defaults to os.LookupEnv.
	Lookup config.LookupFunc
	// Logger replaces the configured process logger.
	Logger *zap.Logger
	// Scanner replaces the git-backed scanner.
	Scanner loader.Scanner
	// Internal and Custom replace the compiled provider tables.
	Internal []tools.Definition
	Custom   []tools.Definition
}

type Service struct {
	ConfigPath  string
	Config      config.Config
	StorageRoot string

	Logger   *zap.Logger
	Store    *storepkg.Store
	Registry *registry.Registry
	Loader   *loader.Loader
	Gateway  *gateway.Service
	Doctor   *doctor.Service
	Audit    *audit.Logger
	Events   events.Writer

	scanner loader.Scanner
}

func New(opts Options) (*Service, error) {
	configPath := opts.ConfigPath
	if configPath == "" {
		configPath = config.DefaultConfigPath()
	}
	lookup := opts.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	cfg, err := config.Resolve(configPath, lookup)
	if err != nil {
		return nil, err
	}
	root, err := config.ResolveStorageRoot(cfg)
	if err != nil {
		return nil, err
	}
	if err := storepkg.EnsureLayout(root); err != nil {
		return nil, err
	}
	manifestDir, err := config.ResolveManifestDir(cfg)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(manifestDir, 0o755); err != nil {
		return nil, err
	}
	official, community, err := config.ManifestPaths(cfg)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		if logger, err = logging.New(cfg.Logging); err != nil {
			return nil, err
		}
	}
	st, err := storepkg.Open(storepkg.Options{
		DatabaseURL: cfg.Storage.DatabaseURL,
		SQLitePath:  storepkg.DatabasePath(root),
		Logger:      logger.Named("store"),
	})
	if err != nil {
		return nil, err
	}
	auditLog := audit.New(storepkg.AuditPath(root))
	sink := events.Open(cfg.Events.ClickHouseDSN, logger.Named("events"))

	scanner := opts.Scanner
	if scanner == nil && cfg.Scan.Enabled {
		scanner = security.NewScanner(cfg.Scan, security.Options{
			Cloner:        source.NewGitCloner(),
			WorkspaceRoot: storepkg.WorkspaceRoot(root),
			Logger:        logger.Named("scanner"),
		})
	}

	reg := registry.New(registry.Options{
		Store:    st,
		Logger:   logger.Named("registry"),
		Lookup:   lookup,
		Internal: opts.Internal,
		Custom:   opts.Custom,
	})
	ld := loader.New(loader.Options{
		OfficialPath:       official,
		CommunityPath:      community,
		Store:              st,
		Registry:           reg,
		Scanner:            scanner,
		MaxConcurrentScans: cfg.Scan.MaxConcurrentScans,
		Audit:              auditLog,
		Events:             sink,
		Logger:             logger.Named("loader"),
	})
	gwOpts := gateway.Options{
		Registry:       reg,
		Loader:         ld,
		Store:          st,
		Classifier:     trust.NewClassifier(cfg.Trust.TrustedDomains, cfg.Trust.PublicHosts),
		Events:         sink,
		Audit:          auditLog,
		Logger:         logger.Named("gateway"),
		Environment:    cfg.Gateway.Environment,
		SandboxEnabled: cfg.Scan.SandboxEnabled,
	}
	if scanner != nil {
		gwOpts.Scanner = scanner
	}
	return &Service{
		ConfigPath:  configPath,
		Config:      cfg,
		StorageRoot: root,
		Logger:      logger,
		Store:       st,
		Registry:    reg,
		Loader:      ld,
		Gateway:     gateway.NewService(gwOpts),
		Doctor:      &doctor.Service{ConfigPath: configPath, Store: st},
		Audit:       auditLog,
		Events:      sink,
		scanner:     scanner,
	}, nil
}

// Close flushes events and releases the store.
func (s *Service) Close() error {
	s.Events.Close()
	_ = s.Logger.Sync()
	return s.Store.Close()
}

// Initialize builds the registry from the store.
func (s *Service) Initialize(ctx context.Context) error {
	return s.Registry.Initialize(ctx)
}

// Serve loads every enabled manifest entry, then runs the gateway until ctx ends.
func (s *Service) Serve(ctx context.Context, ready func(httpAddr, grpcAddr string)) error {
	if _, err := s.Loader.LoadAll(ctx, loader.ScopeAll); err != nil {
		s.Logger.Warn("initial manifest load failed", zap.Error(err))
	}
	var watch []string
	if s.Config.Gateway.WatchManifests {
		watch = []string{s.Loader.Path(manifest.GroupOfficial), s.Loader.Path(manifest.GroupCommunity)}
	}
	return gateway.Serve(ctx, s.Gateway, gateway.ServeOptions{
		HTTPAddr:       s.Config.Gateway.HTTPAddr,
		GRPCAddr:       s.Config.Gateway.GRPCAddr,
		AdminTokenHash: s.Config.Gateway.AdminTokenHash,
		WatchPaths:     watch,
		Reload:         s.reload,
		Logger:         s.Logger.Named("serve"),
		Ready:          ready,
	})
}

func (s *Service) reload(ctx context.Context) error {
	_, err := s.Loader.LoadAll(ctx, loader.ScopeAll)
	return err
}

// Load registers manifest entries in scope. A dry run only reports the plan.
func (s *Service) Load(ctx context.Context, scope string, dryRun bool) (loader.LoadResult, error) {
	sc, err := loader.ParseScope(scope)
	if err != nil {
		return loader.LoadResult{}, err
	}
	if dryRun {
		plan, err := s.Loader.Plan(ctx, sc)
		return loader.LoadResult{Entries: plan}, err
	}
	return s.Loader.LoadAll(ctx, sc)
}

// ListEntries returns manifest summaries filtered by group and enabled state.
func (s *Service) ListEntries(ctx context.Context, group string, enabledOnly bool) ([]loader.Summary, error) {
	listing, err := s.Loader.List(ctx)
	if err != nil {
		return nil, err
	}
	var all []loader.Summary
	switch strings.ToLower(strings.TrimSpace(group)) {
	case "":
		all = append(listing.Official, listing.Community...)
	case string(manifest.GroupOfficial):
		all = listing.Official
	case string(manifest.GroupCommunity):
		all = listing.Community
	default:
		return nil, fmt.Errorf("%w: unknown group %q", manifest.ErrValidation, group)
	}
	out := make([]loader.Summary, 0, len(all))
	for _, e := range all {
		if enabledOnly && !e.Enabled {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

type AddEntryRequest struct {
	Group       string
	Key         string
	URL         string
	Name        string
	Description string
}

// AddEntry appends a disabled entry with group defaults to a manifest.
func (s *Service) AddEntry(req AddEntryRequest) (string, error) {
	g := manifest.GroupCommunity
	if strings.TrimSpace(req.Group) != "" {
		parsed, err := manifest.ParseGroup(req.Group)
		if err != nil {
			return "", err
		}
		g = parsed
	}
	if strings.TrimSpace(req.URL) == "" {
		return "", fmt.Errorf("%w: url is required", manifest.ErrValidation)
	}
	e := manifest.NewEntry(g, req.URL, req.Name, req.Description)
	return s.Loader.AddEntry(g, req.Key, e)
}

// Status combines diagnostics with the live index.
type Status struct {
	doctor.Report
	ProvidersLoaded int                `json:"providers_loaded"`
	ToolsAvailable  int                `json:"tools_available"`
	Providers       map[string]int     `json:"providers_by_status"`
	Warnings        []registry.Warning `json:"warnings,omitempty"`
	ScansRecorded   int64              `json:"scans_recorded"`
	ScanningEnabled bool               `json:"scanning_enabled"`
	RecentAudit     []audit.Event      `json:"recent_audit,omitempty"`
}

func (s *Service) Status(ctx context.Context) Status {
	out := Status{Report: s.Doctor.Run(ctx), Providers: map[string]int{}, ScanningEnabled: s.scanner != nil}
	if err := s.Registry.Initialize(ctx); err != nil {
		out.Findings = append(out.Findings, doctor.Finding{Code: "DOC_REGISTRY_LOAD", Level: "error", Message: err.Error()})
		out.Healthy = false
	}
	out.ProvidersLoaded, out.ToolsAvailable = s.Registry.Stats()
	out.Warnings = s.Registry.Warnings()
	if recs, err := s.Store.ListProviders(ctx); err == nil {
		for _, p := range recs {
			out.Providers[string(p.Status)]++
		}
	}
	if n, err := s.Store.CountScans(ctx); err == nil {
		out.ScansRecorded = n
	}
	if tail, err := s.Audit.Tail(5); err == nil {
		out.RecentAudit = tail
	}
	return out
}

// SetAdminToken stores the bcrypt hash of token. An empty token disables admin auth.
func (s *Service) SetAdminToken(token string) error {
	hash := ""
	if token != "" {
		blob, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("DOC_CONFIG_ADMIN: %w", err)
		}
		hash = string(blob)
	}
	return s.mutateConfig(func(cfg *config.Config) error {
		return config.SetAdminTokenHash(cfg, hash)
	})
}

// AddTrustedDomain returns false when the domain was already trusted.
func (s *Service) AddTrustedDomain(domain string) (bool, error) {
	changed := false
	err := s.mutateConfig(func(cfg *config.Config) error {
		var err error
		changed, err = config.AddTrustedDomain(cfg, domain)
		return err
	})
	return changed, err
}

func (s *Service) RemoveTrustedDomain(domain string) error {
	return s.mutateConfig(func(cfg *config.Config) error {
		return config.RemoveTrustedDomain(cfg, domain)
	})
}

func (s *Service) TrustedDomains() []string {
	out := append([]string(nil), s.Config.Trust.TrustedDomains...)
	sort.Strings(out)
	return out
}

// mutateConfig edits the file on disk, not the env-resolved copy in memory.
func (s *Service) mutateConfig(fn func(*config.Config) error) error {
	cfg, err := config.Load(s.ConfigPath)
	if err != nil {
		return err
	}
	if err := fn(&cfg); err != nil {
		return err
	}
	if err := config.Save(s.ConfigPath, cfg); err != nil {
		return err
	}
	s.Config.Trust = cfg.Trust
	s.Config.Gateway.AdminTokenHash = cfg.Gateway.AdminTokenHash
	return nil
}

// DefaultApprover is $USER, falling back to the home directory name.
func DefaultApprover() string {
	if u := strings.TrimSpace(os.Getenv("USER")); u != "" {
		return u
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Base(home)
	}
	return ""
}
