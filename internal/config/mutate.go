package config

import (
	"fmt"
	"strings"
)

// AddTrustedDomain appends a trusted domain or path prefix.
// Returns true when the config was changed.
func AddTrustedDomain(cfg *Config, domain string) (bool, error) {
	if cfg == nil {
		return false, fmt.Errorf("SEC_CONFIG_TRUST: nil config")
	}
	domain = strings.TrimSpace(domain)
	if strings.Trim(domain, "*/") == "" {
		return false, fmt.Errorf("SEC_CONFIG_TRUST: empty trusted domain")
	}
	for _, existing := range cfg.Trust.TrustedDomains {
		if strings.EqualFold(existing, domain) {
			return false, nil
		}
	}
	cfg.Trust.TrustedDomains = append(cfg.Trust.TrustedDomains, domain)
	*cfg = Normalize(*cfg)
	return true, Validate(*cfg)
}

func RemoveTrustedDomain(cfg *Config, domain string) error {
	if cfg == nil {
		return fmt.Errorf("SEC_CONFIG_TRUST: nil config")
	}
	for i, existing := range cfg.Trust.TrustedDomains {
		if strings.EqualFold(existing, strings.TrimSpace(domain)) {
			cfg.Trust.TrustedDomains = append(cfg.Trust.TrustedDomains[:i], cfg.Trust.TrustedDomains[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("SEC_CONFIG_TRUST: trusted domain %q not found", domain)
}

// SetAdminTokenHash stores a bcrypt hash for the admin API token. An empty hash disables admin auth.
func SetAdminTokenHash(cfg *Config, hash string) error {
	if cfg == nil {
		return fmt.Errorf("DOC_CONFIG_GATEWAY: nil config")
	}
	if hash != "" && !strings.HasPrefix(hash, "$2") {
		return fmt.Errorf("DOC_CONFIG_GATEWAY: admin token hash is not a bcrypt hash")
	}
	cfg.Gateway.AdminTokenHash = hash
	return nil
}
