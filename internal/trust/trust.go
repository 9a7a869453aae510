package trust

import (
	"fmt"
	"net/url"
	"strings"
)

// BuiltinSource is the source location reserved for compiled-in providers.
const BuiltinSource = "builtin"

// Level is the coarse trust classification of a provider.
type Level string

const (
	Official  Level = "OFFICIAL"
	Verified  Level = "VERIFIED"
	Community Level = "COMMUNITY"
	Internal  Level = "INTERNAL"
)

// ParseLevel converts a case-insensitive level name to its typed value.
func ParseLevel(s string) (Level, error) {
	switch Level(strings.ToUpper(strings.TrimSpace(s))) {
	case Official:
		return Official, nil
	case Verified:
		return Verified, nil
	case Community:
		return Community, nil
	case Internal:
		return Internal, nil
	default:
		return "", fmt.Errorf("SEC_TRUST_LEVEL: unknown trust level %q", s)
	}
}

// BypassesScan reports whether providers at this level may skip scanning
// when their manifest entry asks for auto approval.
func (l Level) BypassesScan() bool {
	return l == Official || l == Internal
}

// Status is a provider's position in the approval lifecycle.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusScanning Status = "SCANNING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
	StatusActive   Status = "ACTIVE"
	StatusFailed   Status = "FAILED"
)

// ParseStatus converts a case-insensitive status name to its typed value.
func ParseStatus(s string) (Status, error) {
	switch Status(strings.ToUpper(strings.TrimSpace(s))) {
	case StatusPending:
		return StatusPending, nil
	case StatusScanning:
		return StatusScanning, nil
	case StatusApproved:
		return StatusApproved, nil
	case StatusRejected:
		return StatusRejected, nil
	case StatusActive:
		return StatusActive, nil
	case StatusFailed:
		return StatusFailed, nil
	default:
		return "", fmt.Errorf("SEC_TRUST_STATUS: unknown status %q", s)
	}
}

// Loadable reports whether the registry should materialize providers in this status.
func (s Status) Loadable() bool {
	return s == StatusApproved || s == StatusActive
}

// Terminal reports whether the status only changes on resubmission.
func (s Status) Terminal() bool {
	return s == StatusRejected || s == StatusFailed
}

var (
	DefaultTrustedDomains = []string{"github.com/anthropics/*", "anthropic.com", "modelcontextprotocol.io"}
	DefaultPublicHosts    = []string{"github.com", "gitlab.com", "bitbucket.org"}
)

// Classifier maps source locations to trust levels.
type Classifier struct {
	trusted []string
	public  map[string]struct{}
}

func NewClassifier(trustedDomains, publicHosts []string) *Classifier {
	c := &Classifier{public: map[string]struct{}{}}
	for _, d := range trustedDomains {
		d = strings.TrimRight(strings.TrimSpace(d), "*")
		d = strings.TrimRight(d, "/")
		if d == "" {
			continue
		}
		c.trusted = append(c.trusted, strings.ToLower(d))
	}
	for _, h := range publicHosts {
		h = strings.ToLower(strings.TrimSpace(h))
		if h != "" {
			c.public[h] = struct{}{}
		}
	}
	return c
}

// Classify never fails. Locations that cannot be parsed classify as Verified.
func (c *Classifier) Classify(location string) Level {
	loc := strings.ToLower(strings.TrimSpace(location))
	if loc == BuiltinSource {
		return Internal
	}
	if loc == "" {
		return Verified
	}
	for _, t := range c.trusted {
		if strings.Contains(loc, t) {
			return Official
		}
	}
	if _, ok := c.public[hostOf(loc)]; ok {
		return Community
	}
	return Verified
}

func hostOf(loc string) string {
	if !strings.Contains(loc, "://") {
		// scp-like git locations: git@github.com:org/repo.git
		if at := strings.Index(loc, "@"); at >= 0 {
			loc = loc[at+1:]
		}
		if idx := strings.IndexAny(loc, ":/"); idx >= 0 {
			return strings.TrimPrefix(loc[:idx], "www.")
		}
		return strings.TrimPrefix(loc, "www.")
	}
	u, err := url.Parse(loc)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}
