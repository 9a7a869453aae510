package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"mcpgate/internal/config"
	"mcpgate/internal/loader"
	"mcpgate/internal/manifest"
	"mcpgate/internal/trust"
)

func noEnv(string) (string, bool) { return "", false }

func newTestService(t *testing.T, mutate func(*config.Config)) *Service {
	t.Helper()
	root := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Storage.Root = filepath.Join(root, "data")
	cfg.Scan.Enabled = false
	cfg.Gateway.GRPCAddr = ""
	cfg.Gateway.WatchManifests = false
	if mutate != nil {
		mutate(&cfg)
	}
	path := filepath.Join(root, "config.toml")
	if err := config.Save(path, cfg); err != nil {
		t.Fatalf("save config failed: %v", err)
	}
	svc, err := New(Options{ConfigPath: path, Lookup: noEnv, Logger: zap.NewNop()})
	if err != nil {
		t.Fatalf("new service failed: %v", err)
	}
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func writeOfficial(t *testing.T, svc *Service, key string, enabled bool) {
	t.Helper()
	f := manifest.New(manifest.GroupOfficial)
	e := manifest.NewEntry(manifest.GroupOfficial, "https://github.com/acme/"+key, key, key+" tools")
	e.Enabled = enabled
	if err := f.Add(key, e); err != nil {
		t.Fatalf("add entry failed: %v", err)
	}
	if err := manifest.Save(svc.Loader.Path(manifest.GroupOfficial), f); err != nil {
		t.Fatalf("save manifest failed: %v", err)
	}
}

func TestNewPreparesLayout(t *testing.T) {
	svc := newTestService(t, nil)
	if _, err := os.Stat(svc.StorageRoot); err != nil {
		t.Fatalf("expected storage root to exist: %v", err)
	}
	if _, err := os.Stat(filepath.Dir(svc.Loader.Path(manifest.GroupCommunity))); err != nil {
		t.Fatalf("expected manifest dir to exist: %v", err)
	}
	if svc.scanner != nil {
		t.Fatalf("expected no scanner when scanning is disabled")
	}
	if err := svc.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}
	if providers, toolCount := svc.Registry.Stats(); providers == 0 || toolCount == 0 {
		t.Fatalf("expected compiled providers to be indexed, got %d/%d", providers, toolCount)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("version = 9\n"), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if _, err := New(Options{ConfigPath: path, Lookup: noEnv, Logger: zap.NewNop()}); err == nil {
		t.Fatalf("expected invalid config to fail")
	}
}

func TestLoadDryRunDoesNotRegister(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	writeOfficial(t, svc, "git-tools", true)

	plan, err := svc.Load(ctx, "official", true)
	if err != nil {
		t.Fatalf("dry run failed: %v", err)
	}
	if len(plan.Entries) != 1 || plan.Entries[0].Action != loader.ActionApprove {
		t.Fatalf("expected one approve action, got %+v", plan.Entries)
	}
	stored, err := svc.Store.ListProviders(ctx)
	if err != nil {
		t.Fatalf("list providers failed: %v", err)
	}
	if len(stored) != 0 {
		t.Fatalf("expected dry run to leave the store empty, got %d", len(stored))
	}

	res, err := svc.Load(ctx, "official", false)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(res.Entries) != 1 || res.Entries[0].Status != trust.StatusApproved {
		t.Fatalf("expected approved entry, got %+v", res.Entries)
	}
	stored, _ = svc.Store.ListProviders(ctx)
	if len(stored) != 1 || stored[0].Status != trust.StatusActive {
		t.Fatalf("expected one active provider, got %+v", stored)
	}

	if _, err := svc.Load(ctx, "everything", false); err == nil {
		t.Fatalf("expected unknown scope to fail")
	}
}

func TestListEntriesFilters(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	writeOfficial(t, svc, "git-tools", false)
	if _, err := svc.AddEntry(AddEntryRequest{URL: "https://github.com/acme/notes-mcp", Description: "notes"}); err != nil {
		t.Fatalf("add entry failed: %v", err)
	}

	all, err := svc.ListEntries(ctx, "", false)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected two entries, got %d", len(all))
	}
	community, err := svc.ListEntries(ctx, "Community", false)
	if err != nil {
		t.Fatalf("list community failed: %v", err)
	}
	if len(community) != 1 || community[0].Key != "notes-mcp" {
		t.Fatalf("expected notes-mcp in community, got %+v", community)
	}
	enabled, _ := svc.ListEntries(ctx, "", true)
	if len(enabled) != 0 {
		t.Fatalf("expected no enabled entries, got %d", len(enabled))
	}
	if _, err := svc.ListEntries(ctx, "partners", false); !errors.Is(err, manifest.ErrValidation) {
		t.Fatalf("expected validation error for unknown group, got %v", err)
	}
}

func TestAddEntryValidation(t *testing.T) {
	svc := newTestService(t, nil)
	if _, err := svc.AddEntry(AddEntryRequest{}); !errors.Is(err, manifest.ErrValidation) {
		t.Fatalf("expected missing url error, got %v", err)
	}
	if _, err := svc.AddEntry(AddEntryRequest{Group: "partners", URL: "https://github.com/acme/x"}); err == nil {
		t.Fatalf("expected unknown group error")
	}
	key, err := svc.AddEntry(AddEntryRequest{Group: "official", Key: "search", URL: "https://github.com/acme/search-mcp"})
	if err != nil {
		t.Fatalf("add official failed: %v", err)
	}
	if key != "search" {
		t.Fatalf("expected explicit key, got %q", key)
	}
	if _, err := svc.AddEntry(AddEntryRequest{Group: "official", Key: "search", URL: "https://github.com/acme/search-mcp"}); err == nil {
		t.Fatalf("expected duplicate key error")
	}
}

func TestStatusSummarizesRegistry(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	writeOfficial(t, svc, "git-tools", true)
	if _, err := svc.Load(ctx, "all", false); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if _, err := svc.AddEntry(AddEntryRequest{URL: "https://github.com/acme/notes-mcp", Description: "notes"}); err != nil {
		t.Fatalf("add entry failed: %v", err)
	}
	st := svc.Status(ctx)
	if st.ScanningEnabled {
		t.Fatalf("expected scanning disabled")
	}
	if st.Providers[string(trust.StatusActive)] != 1 {
		t.Fatalf("expected one active provider, got %+v", st.Providers)
	}
	if st.ProvidersLoaded == 0 || st.ToolsAvailable == 0 {
		t.Fatalf("expected loaded counters, got %+v", st)
	}
	if len(st.RecentAudit) == 0 {
		t.Fatalf("expected recent audit events")
	}
}

func TestConfigMutationsPersist(t *testing.T) {
	svc := newTestService(t, nil)

	changed, err := svc.AddTrustedDomain("gitlab.com/acme")
	if err != nil || !changed {
		t.Fatalf("expected domain to be added, got %v %v", changed, err)
	}
	changed, err = svc.AddTrustedDomain("gitlab.com/acme")
	if err != nil || changed {
		t.Fatalf("expected second add to be a no-op, got %v %v", changed, err)
	}
	if err := svc.SetAdminToken("s3cret"); err != nil {
		t.Fatalf("set admin token failed: %v", err)
	}

	onDisk, err := config.Load(svc.ConfigPath)
	if err != nil {
		t.Fatalf("reload config failed: %v", err)
	}
	found := false
	for _, d := range onDisk.Trust.TrustedDomains {
		if d == "gitlab.com/acme" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected trusted domain on disk, got %v", onDisk.Trust.TrustedDomains)
	}
	if !strings.HasPrefix(onDisk.Gateway.AdminTokenHash, "$2") || svc.Config.Gateway.AdminTokenHash != onDisk.Gateway.AdminTokenHash {
		t.Fatalf("expected bcrypt hash in memory and on disk")
	}

	if err := svc.RemoveTrustedDomain("gitlab.com/acme"); err != nil {
		t.Fatalf("remove domain failed: %v", err)
	}
	for _, d := range svc.TrustedDomains() {
		if d == "gitlab.com/acme" {
			t.Fatalf("expected domain to be removed")
		}
	}
	if err := svc.SetAdminToken(""); err != nil {
		t.Fatalf("clear admin token failed: %v", err)
	}
	if svc.Config.Gateway.AdminTokenHash != "" {
		t.Fatalf("expected admin token cleared")
	}
}

func TestServeAnswersHealthUntilCancelled(t *testing.T) {
	svc := newTestService(t, func(c *config.Config) {
		c.Gateway.HTTPAddr = "127.0.0.1:0"
		c.Gateway.GRPCAddr = "127.0.0.1:0"
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var status int
	var grpcAddr string
	err := svc.Serve(ctx, func(httpAddr, g string) {
		grpcAddr = g
		resp, err := http.Get("http://" + httpAddr + "/health")
		if err == nil {
			status = resp.StatusCode
			_ = resp.Body.Close()
		}
		cancel()
	})
	if err != nil {
		t.Fatalf("serve failed: %v", err)
	}
	if status != http.StatusOK {
		t.Fatalf("expected 200 from /health, got %d", status)
	}
	if grpcAddr == "" {
		t.Fatalf("expected grpc health listener address")
	}
}

func TestDefaultApprover(t *testing.T) {
	t.Setenv("USER", "carol")
	if got := DefaultApprover(); got != "carol" {
		t.Fatalf("expected carol, got %q", got)
	}
}
