// File path: internal/common/log.go
package common

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

const defaultLogHistory = 500

var (
	logger     *slog.Logger
	loggerOnce sync.Once
	sink       = newLogSink(defaultLogHistory)
)

// LogEntry represents a captured log record emitted via the common logger.
type LogEntry struct {
	Time       time.Time              `json:"time"`
	Level      string                 `json:"level"`
	Message    string                 `json:"message"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

// Logger returns a singleton slog logger configured via the LOG_LEVEL
// environment variable. Messages follow the "component: message" convention
// used throughout the engine.
func Logger() *slog.Logger {
	loggerOnce.Do(func() {
		level := slog.LevelInfo
		switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
		baseHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
		logger = slog.New(&capturingHandler{handler: baseHandler, sink: sink})
	})
	return logger
}

// LogEntries returns a copy of the captured log history. Dispatcher fallback
// decisions are diagnosed from this history after the fact.
func LogEntries() []LogEntry {
	if sink == nil {
		return nil
	}
	return sink.entries()
}

type capturingHandler struct {
	handler slog.Handler
	sink    *logSink
}

func (h *capturingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

func (h *capturingHandler) Handle(ctx context.Context, record slog.Record) error {
	err := h.handler.Handle(ctx, record)
	if h.sink != nil {
		h.sink.capture(record)
	}
	return err
}

func (h *capturingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &capturingHandler{handler: h.handler.WithAttrs(attrs), sink: h.sink}
}

func (h *capturingHandler) WithGroup(name string) slog.Handler {
	return &capturingHandler{handler: h.handler.WithGroup(name), sink: h.sink}
}

type logSink struct {
	mu      sync.RWMutex
	max     int
	history []LogEntry
}

func newLogSink(max int) *logSink {
	if max <= 0 {
		max = defaultLogHistory
	}
	return &logSink{max: max}
}

func (s *logSink) capture(record slog.Record) {
	rec := record.Clone()
	entry := LogEntry{
		Time:    rec.Time.UTC(),
		Level:   strings.ToLower(rec.Level.String()),
		Message: rec.Message,
	}
	if entry.Time.IsZero() {
		entry.Time = time.Now().UTC()
	}
	rec.Attrs(func(a slog.Attr) bool {
		if entry.Attributes == nil {
			entry.Attributes = make(map[string]interface{})
		}
		entry.Attributes[a.Key] = a.Value.Any()
		return true
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, entry)
	if len(s.history) > s.max {
		s.history = s.history[len(s.history)-s.max:]
	}
}

func (s *logSink) entries() []LogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.history) == 0 {
		return nil
	}
	out := make([]LogEntry, len(s.history))
	copy(out, s.history)
	return out
}
