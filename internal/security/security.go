package security

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

var (
	ErrScanTimeout = errors.New("SEC_SCAN_TIMEOUT")
	ErrScanError   = errors.New("SEC_SCAN_ERROR")
)

// Severity is the collapsed three-level finding severity.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// ParseSeverity folds tool-specific severities onto low, medium and high.
// Unknown values are treated as high.
func ParseSeverity(s string) Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "info", "low", "undefined":
		return SeverityLow
	case "medium", "moderate":
		return SeverityMedium
	default:
		return SeverityHigh
	}
}

func (s *Severity) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*s = ParseSeverity(raw)
	return nil
}

// Category names the analyzer stage that produced a finding.
type Category string

const (
	CategoryStatic        Category = "static"
	CategoryDependency    Category = "dependency"
	CategoryCodeQuality   Category = "code_quality"
	CategoryFileStructure Category = "file_structure"
	CategoryScanError     Category = "scan_error"
)

type Vulnerability struct {
	Category Category `json:"category"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	Location string   `json:"location,omitempty"`
}

// ScanResult is one immutable evaluation of a source location.
type ScanResult struct {
	ProviderID      string            `json:"provider_id"`
	SourceLocation  string            `json:"source_location"`
	RiskScore       int               `json:"risk_score"`
	Vulnerabilities []Vulnerability   `json:"vulnerabilities"`
	StageDetails    map[string]string `json:"stage_details,omitempty"`
	Passed          bool              `json:"passed"`
	FailClosed      bool              `json:"fail_closed,omitempty"`
	ScannedAt       time.Time         `json:"scanned_at"`
	Duration        time.Duration     `json:"duration"`
}

// HighCount returns the number of high severity findings.
func (r ScanResult) HighCount() int {
	n := 0
	for _, v := range r.Vulnerabilities {
		if v.Severity == SeverityHigh {
			n++
		}
	}
	return n
}

// Summary renders a one-line description for logs and CLI output.
func (r ScanResult) Summary() string {
	verdict := "failed"
	if r.Passed {
		verdict = "passed"
	}
	return fmt.Sprintf("%s: risk %d, %d finding(s), %d high", verdict, r.RiskScore, len(r.Vulnerabilities), r.HighCount())
}

func SafeJoin(base, rel string) (string, error) {
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("SEC_PATH_TRAVERSAL: absolute path not allowed")
	}
	cleanRel := filepath.Clean(rel)
	if cleanRel == ".." || strings.HasPrefix(cleanRel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("SEC_PATH_TRAVERSAL: path escapes base")
	}
	joined := filepath.Join(base, cleanRel)
	baseClean := filepath.Clean(base)
	joinedClean := filepath.Clean(joined)
	if joinedClean != baseClean {
		prefix := baseClean + string(filepath.Separator)
		if !strings.HasPrefix(joinedClean, prefix) {
			return "", fmt.Errorf("SEC_PATH_TRAVERSAL: path escapes base")
		}
	}
	return joinedClean, nil
}

// symlinkEscapes reports whether the symlink at path resolves outside base.
// Dangling links are treated as escaping.
func symlinkEscapes(base, path string) bool {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return true
	}
	baseResolved, err := filepath.EvalSymlinks(base)
	if err != nil {
		baseResolved = filepath.Clean(base)
	}
	rel, err := filepath.Rel(baseResolved, resolved)
	if err != nil {
		return true
	}
	return rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
