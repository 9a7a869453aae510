package security

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"mcpgate/internal/config"
)

// Analyzer is one scan stage run against a cloned workspace.
type Analyzer interface {
	Name() string
	Run(ctx context.Context, workspace string) (vulns []Vulnerability, raw string, err error)
}

// Cloner fetches a source location into dir.
type Cloner interface {
	Clone(ctx context.Context, location, dir string) error
}

type revisioner interface {
	Revision(ctx context.Context, dir string) (string, error)
}

type Options struct {
	Cloner        Cloner
	WorkspaceRoot string
	Logger        *zap.Logger
	// Analyzers replaces the default stages when set.
	Analyzers []Analyzer
}

// Scanner clones a source into a private workspace and runs every enabled stage.
type Scanner struct {
	cloner        Cloner
	workspaceRoot string
	timeout       time.Duration
	cloneTimeout  time.Duration
	threshold     int
	analyzers     []Analyzer
	disabled      map[string]bool
	logger        *zap.Logger
	now           func() time.Time
}

// DefaultAnalyzers returns the four built-in stages in execution order.
func DefaultAnalyzers(cfg config.ScanConfig) []Analyzer {
	return []Analyzer{
		&StaticAnalyzer{Command: cfg.StaticCommand},
		&DependencyAnalyzer{},
		&CodeQualityAnalyzer{},
		&FileStructureAnalyzer{},
	}
}

func NewScanner(cfg config.ScanConfig, opts Options) *Scanner {
	disabled := make(map[string]bool, len(cfg.DisabledStages))
	for _, s := range cfg.DisabledStages {
		disabled[s] = true
	}
	analyzers := opts.Analyzers
	if analyzers == nil {
		analyzers = DefaultAnalyzers(cfg)
	}
	threshold := cfg.RiskThreshold
	if threshold <= 0 {
		threshold = DefaultRiskThreshold
	}
	root := opts.WorkspaceRoot
	if root == "" {
		root = os.TempDir()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scanner{
		cloner:        opts.Cloner,
		workspaceRoot: root,
		timeout:       cfg.ScanTimeout(),
		cloneTimeout:  cfg.CloneDeadline(),
		threshold:     threshold,
		analyzers:     analyzers,
		disabled:      disabled,
		logger:        logger,
		now:           time.Now,
	}
}

func (s *Scanner) Threshold() int { return s.threshold }

// Scan never returns an error. Failures before analysis produce a fail-closed
// result with risk 100 and a single scan_error finding.
func (s *Scanner) Scan(ctx context.Context, location, providerID string) ScanResult {
	start := s.now()
	res := ScanResult{
		ProviderID:     providerID,
		SourceLocation: location,
		StageDetails:   map[string]string{},
		ScannedAt:      start.UTC(),
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if s.cloner == nil {
		return s.failClosed(res, start, "clone", fmt.Errorf("%w: no cloner configured", ErrScanError))
	}
	if err := os.MkdirAll(s.workspaceRoot, 0o755); err != nil {
		return s.failClosed(res, start, "workspace", fmt.Errorf("%w: %v", ErrScanError, err))
	}
	dir, err := os.MkdirTemp(s.workspaceRoot, "scan-*")
	if err != nil {
		return s.failClosed(res, start, "workspace", fmt.Errorf("%w: %v", ErrScanError, err))
	}
	defer os.RemoveAll(dir)

	repo := filepath.Join(dir, "repo")
	cloneCtx, cancelClone := context.WithTimeout(ctx, s.cloneTimeout)
	err = s.cloner.Clone(cloneCtx, location, repo)
	cloneErr := cloneCtx.Err()
	cancelClone()
	if err != nil {
		if cloneErr != nil || ctx.Err() != nil {
			return s.failClosed(res, start, "clone", fmt.Errorf("%w: clone of %s exceeded deadline", ErrScanTimeout, location))
		}
		return s.failClosed(res, start, "clone", fmt.Errorf("%w: clone failed: %v", ErrScanError, err))
	}
	if r, ok := s.cloner.(revisioner); ok {
		if rev, err := r.Revision(ctx, repo); err == nil {
			res.StageDetails["revision"] = rev
		}
	}

	var vulns []Vulnerability
	last := "analysis"
	for _, a := range s.analyzers {
		name := a.Name()
		if s.disabled[name] {
			res.StageDetails[name] = "skipped"
			continue
		}
		if ctx.Err() != nil {
			return s.failClosed(res, start, name, fmt.Errorf("%w: scan exceeded %s", ErrScanTimeout, s.timeout))
		}
		found, raw, err := runStage(ctx, a, repo)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				return s.failClosed(res, start, name, fmt.Errorf("%w: scan exceeded %s", ErrScanTimeout, s.timeout))
			}
			s.logger.Warn("scan stage failed", zap.String("stage", name), zap.String("source", location), zap.Error(err))
			vulns = append(vulns, Vulnerability{Category: CategoryScanError, Severity: SeverityHigh, Message: err.Error(), Location: name})
			res.StageDetails[name] = "error: " + err.Error()
			continue
		}
		vulns = append(vulns, found...)
		res.StageDetails[name] = raw
		last = name
	}
	// A stage that ignores ctx can still overrun; its findings do not count.
	if ctx.Err() != nil {
		return s.failClosed(res, start, last, fmt.Errorf("%w: scan exceeded %s", ErrScanTimeout, s.timeout))
	}

	res.Vulnerabilities = vulns
	res.RiskScore = RiskScore(vulns)
	res.Passed = Passed(res.RiskScore, s.threshold, vulns)
	res.Duration = s.now().Sub(start)
	s.logger.Info("scan complete",
		zap.String("source", location),
		zap.String("provider_id", providerID),
		zap.Int("risk_score", res.RiskScore),
		zap.Int("findings", len(vulns)),
		zap.Bool("passed", res.Passed),
		zap.Duration("duration", res.Duration))
	return res
}

func runStage(ctx context.Context, a Analyzer, workspace string) (vulns []Vulnerability, raw string, err error) {
	defer func() {
		if r := recover(); r != nil {
			vulns, raw = nil, ""
			err = fmt.Errorf("%w: stage %s panicked: %v", ErrScanError, a.Name(), r)
		}
	}()
	return a.Run(ctx, workspace)
}

func (s *Scanner) failClosed(res ScanResult, start time.Time, stage string, err error) ScanResult {
	res.Vulnerabilities = []Vulnerability{{
		Category: CategoryScanError,
		Severity: SeverityHigh,
		Message:  err.Error(),
		Location: stage,
	}}
	res.StageDetails[stage] = "error: " + err.Error()
	res.RiskScore = maxRisk
	res.Passed = false
	res.FailClosed = true
	res.Duration = s.now().Sub(start)
	s.logger.Warn("scan failed closed",
		zap.String("source", res.SourceLocation),
		zap.String("provider_id", res.ProviderID),
		zap.String("stage", stage),
		zap.Error(err))
	return res
}
