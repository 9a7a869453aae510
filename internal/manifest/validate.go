package manifest

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"mcpgate/internal/tools"
	"mcpgate/internal/trust"
)

var ErrValidation = errors.New("MAN_VALIDATION")

var allowedURLPrefixes = []string{"https://github.com/", "https://gitlab.com/"}

// Issue is one validation finding.
type Issue struct {
	File    string `json:"file"`
	Entry   string `json:"entry,omitempty"`
	Message string `json:"message"`
}

func (i Issue) String() string {
	if i.Entry == "" {
		return i.File + ": " + i.Message
	}
	return i.File + ":" + i.Entry + " - " + i.Message
}

// Report collects errors and warnings across manifests.
type Report struct {
	Errors   []Issue `json:"errors"`
	Warnings []Issue `json:"warnings"`
}

func (r Report) OK() bool { return len(r.Errors) == 0 }

func (r *Report) Merge(o Report) {
	r.Errors = append(r.Errors, o.Errors...)
	r.Warnings = append(r.Warnings, o.Warnings...)
}

// Check enforces the structural rules the loader depends on.
func (f *File) Check() error {
	if f == nil {
		return fmt.Errorf("%w: empty manifest", ErrValidation)
	}
	if _, err := trust.ParseLevel(string(f.TrustLevel)); err != nil {
		return fmt.Errorf("%w: invalid trust_level %q", ErrValidation, f.TrustLevel)
	}
	for _, key := range f.Keys() {
		if err := f.MCPs[key].check(key); err != nil {
			return err
		}
	}
	return nil
}

func (e *Entry) check(key string) error {
	if e == nil {
		return fmt.Errorf("%w: entry %q is empty", ErrValidation, key)
	}
	if strings.TrimSpace(e.URL) == "" {
		return fmt.Errorf("%w: entry %q missing url", ErrValidation, key)
	}
	if strings.TrimSpace(e.Name) == "" {
		return fmt.Errorf("%w: entry %q missing name", ErrValidation, key)
	}
	if e.MaxRiskScore != nil && (*e.MaxRiskScore < 0 || *e.MaxRiskScore > 100) {
		return fmt.Errorf("%w: entry %q max_risk_score must be within 0..100", ErrValidation, key)
	}
	for _, s := range e.Tools {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("%w: entry %q: %v", ErrValidation, key, err)
		}
	}
	return nil
}

// Validate applies the commit-time policy gate to one manifest. In strict
// mode enabled community entries without approval metadata are errors.
func Validate(label string, f *File, strict bool) Report {
	var r Report
	errorf := func(entry, format string, args ...any) {
		r.Errors = append(r.Errors, Issue{File: label, Entry: entry, Message: fmt.Sprintf(format, args...)})
	}
	warnf := func(entry, format string, args ...any) {
		r.Warnings = append(r.Warnings, Issue{File: label, Entry: entry, Message: fmt.Sprintf(format, args...)})
	}
	if f == nil {
		errorf("", "manifest is empty")
		return r
	}
	if strings.TrimSpace(f.Name) == "" {
		errorf("", "missing required field 'name'")
	}
	level, err := trust.ParseLevel(string(f.TrustLevel))
	if err != nil {
		errorf("", "invalid trust_level %q", f.TrustLevel)
		return r
	}
	for _, key := range f.Keys() {
		e := f.MCPs[key]
		if e == nil {
			errorf(key, "entry is empty")
			continue
		}
		name := key
		if e.Name != "" {
			name = e.Name
		}
		for _, req := range [][2]string{{"url", e.URL}, {"name", e.Name}, {"description", e.Description}} {
			if strings.TrimSpace(req[1]) == "" {
				errorf(name, "missing required field '%s'", req[0])
			}
		}
		if e.URL != "" && !hasAllowedPrefix(e.URL) {
			errorf(name, "url must be a GitHub or GitLab https repository")
		}
		if e.MaxRiskScore != nil && (*e.MaxRiskScore < 0 || *e.MaxRiskScore > 100) {
			errorf(name, "max_risk_score must be an integer 0-100")
		}
		for _, s := range e.Tools {
			if err := s.Validate(); err != nil {
				errorf(name, "%v", err)
			}
		}
		if t := strings.ToLower(strings.TrimSpace(e.Transport)); t != "" && t != tools.TransportSSE && t != tools.TransportStreamableHTTP {
			warnf(name, "unknown transport %q, streamable_http will be used", e.Transport)
		}
		if e.ApprovedAt != "" {
			if _, err := time.Parse(time.RFC3339, e.ApprovedAt); err != nil {
				warnf(name, "approved_at %q is not RFC3339", e.ApprovedAt)
			}
		}
		switch level {
		case trust.Community:
			if !e.SecurityScan {
				errorf(name, "community entry must have security_scan: true")
			}
			if e.AutoApprove {
				errorf(name, "community entry cannot have auto_approve: true")
			}
			if !e.SandboxEnabled() {
				warnf(name, "community entry should use sandbox: true")
			}
			if e.Enabled && (e.ApprovedBy == "" || e.ApprovedAt == "") {
				if strict {
					errorf(name, "enabled but not approved (missing approved_by or approved_at)")
				} else {
					warnf(name, "enabled community entry should carry approval metadata")
				}
			}
		case trust.Official:
			if !e.SecurityScan {
				warnf(name, "official entry is not security scanned")
			}
		}
	}
	return r
}

func hasAllowedPrefix(url string) bool {
	for _, p := range allowedURLPrefixes {
		if strings.HasPrefix(url, p) {
			return true
		}
	}
	return false
}
