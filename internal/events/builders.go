package events

import (
	"time"

	"github.com/google/uuid"

	"mcpgate/internal/security"
)

// ScanEvent summarizes a scan result.
func ScanEvent(res security.ScanResult) *Event {
	meta := map[string]string{}
	if rev := res.StageDetails["revision"]; rev != "" {
		meta["revision"] = rev
	}
	if res.FailClosed {
		meta["fail_closed"] = "true"
	}
	return &Event{
		EventID:        uuid.NewString(),
		Kind:           KindScan,
		Timestamp:      res.ScannedAt,
		ProviderID:     res.ProviderID,
		SourceLocation: res.SourceLocation,
		Success:        res.Passed,
		RiskScore:      int32(res.RiskScore),
		Findings:       int32(len(res.Vulnerabilities)),
		LatencyMs:      float32(res.Duration) / float32(time.Millisecond),
		Metadata:       meta,
	}
}

// CallEvent records one tool invocation.
func CallEvent(tool, providerID string, started time.Time, err error) *Event {
	e := &Event{
		EventID:    uuid.NewString(),
		Kind:       KindCall,
		Timestamp:  started.UTC(),
		ProviderID: providerID,
		ToolName:   tool,
		Success:    err == nil,
		LatencyMs:  float32(time.Since(started)) / float32(time.Millisecond),
	}
	if err != nil {
		e.Error = err.Error()
	}
	return e
}
