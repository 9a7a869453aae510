package store

import (
	"time"

	"gorm.io/datatypes"

	"mcpgate/internal/security"
	"mcpgate/internal/tools"
	"mcpgate/internal/trust"
)

// Provider is the persisted record of a registered tool provider.
type Provider struct {
	ID             string                          `json:"id" gorm:"primaryKey;type:varchar(64)"`
	SourceLocation string                          `json:"source_location" gorm:"uniqueIndex;not null"`
	Name           string                          `json:"name" gorm:"not null"`
	TrustLevel     trust.Level                     `json:"trust_level" gorm:"type:varchar(16);not null"`
	Status         trust.Status                    `json:"status" gorm:"type:varchar(16);index;not null"`
	Config         datatypes.JSONMap               `json:"config"`
	Metadata       datatypes.JSONMap               `json:"metadata"`
	ToolNames      datatypes.JSONSlice[string]     `json:"tool_names"`
	Tools          datatypes.JSONSlice[tools.Spec] `json:"tools,omitempty"`
	CreatedAt      time.Time                       `json:"created_at"`
	UpdatedAt      time.Time                       `json:"updated_at"`
}

func (Provider) TableName() string { return "providers" }

// ConfigString returns a string setting, or "" when absent.
func (p Provider) ConfigString(key string) string {
	if v, ok := p.Config[key].(string); ok {
		return v
	}
	return ""
}

// ConfigInt returns an integer setting. JSON round-trips numbers as float64.
func (p Provider) ConfigInt(key string, def int) int {
	switch v := p.Config[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

// MetadataStrings returns a string list from metadata, tolerating []any after a JSON round trip.
func (p Provider) MetadataStrings(key string) []string {
	switch v := p.Metadata[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// ScanRecord is one immutable security evaluation.
type ScanRecord struct {
	ID              string                                    `json:"id" gorm:"primaryKey;type:varchar(64)"`
	ProviderID      string                                    `json:"provider_id" gorm:"index;not null"`
	SourceLocation  string                                    `json:"source_location"`
	RiskScore       int                                       `json:"risk_score"`
	Vulnerabilities datatypes.JSONSlice[security.Vulnerability] `json:"vulnerabilities"`
	StageDetails    datatypes.JSONMap                         `json:"stage_details"`
	Passed          bool                                      `json:"passed"`
	ScannedAt       time.Time                                 `json:"scanned_at" gorm:"index"`
	DurationMS      int64                                     `json:"duration_ms"`
}

func (ScanRecord) TableName() string { return "security_scans" }

// NewScanRecord copies a scan result into its persisted form.
func NewScanRecord(res security.ScanResult) ScanRecord {
	details := datatypes.JSONMap{}
	for k, v := range res.StageDetails {
		details[k] = v
	}
	return ScanRecord{
		ProviderID:      res.ProviderID,
		SourceLocation:  res.SourceLocation,
		RiskScore:       res.RiskScore,
		Vulnerabilities: datatypes.NewJSONSlice(res.Vulnerabilities),
		StageDetails:    details,
		Passed:          res.Passed,
		ScannedAt:       res.ScannedAt,
		DurationMS:      res.Duration.Milliseconds(),
	}
}
