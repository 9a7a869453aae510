package events

import (
	"time"

	"go.uber.org/zap"
)

const (
	KindScan = "scan"
	KindCall = "call"
)

// Writer records gateway events. Write must never block the caller.
type Writer interface {
	Write(event *Event)
	Close()
}

// Event is one scan completion or tool invocation.
type Event struct {
	EventID        string
	Kind           string
	Timestamp      time.Time
	ProviderID     string
	SourceLocation string
	ToolName       string
	Success        bool
	Error          string
	RiskScore      int32
	Findings       int32
	LatencyMs      float32
	Metadata       map[string]string
}

// Open returns a ClickHouse writer when dsn is set and reachable, otherwise a log writer.
func Open(dsn string, logger *zap.Logger) Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dsn == "" {
		logger.Info("no clickhouse dsn set, using log writer")
		return NewLogWriter(logger)
	}
	w, err := NewClickHouseWriter(dsn, logger)
	if err != nil {
		logger.Warn("clickhouse connection failed, falling back to log writer", zap.Error(err))
		return NewLogWriter(logger)
	}
	logger.Info("clickhouse writer connected")
	return w
}

// LogWriter is the fallback Writer for local development.
type LogWriter struct {
	logger *zap.Logger
}

func NewLogWriter(logger *zap.Logger) *LogWriter {
	return &LogWriter{logger: logger}
}

func (w *LogWriter) Write(event *Event) {
	w.logger.Info("gateway_event",
		zap.String("event_id", event.EventID),
		zap.String("kind", event.Kind),
		zap.String("provider_id", event.ProviderID),
		zap.String("source", event.SourceLocation),
		zap.String("tool_name", event.ToolName),
		zap.Bool("success", event.Success),
		zap.String("error", event.Error),
		zap.Int32("risk_score", event.RiskScore),
		zap.Int32("findings", event.Findings),
		zap.Float32("latency_ms", event.LatencyMs),
	)
}

func (w *LogWriter) Close() {}
