// Package enginelog implements execctx.Logger over stdlib log/slog (see
// DESIGN.md's standard-library justification: no third-party logger
// appears anywhere in the retrieved corpus for a comparable role).
package enginelog

import (
	"log/slog"
	"os"
)

// SlogLogger adapts a *slog.Logger to execctx.Logger, attributing every
// line with stepId/blockType the way the engine's dispatcher names them.
type SlogLogger struct {
	logger *slog.Logger
}

// New builds a SlogLogger over handler; a nil handler means JSON lines on
// os.Stderr.
func New(handler slog.Handler) *SlogLogger {
	if handler == nil {
		handler = slog.NewJSONHandler(os.Stderr, nil)
	}
	return &SlogLogger{logger: slog.New(handler)}
}

func (l *SlogLogger) with(stepID, blockType string, attrs []any) []any {
	return append([]any{"stepId", stepID, "blockType", blockType}, attrs...)
}

func (l *SlogLogger) Debug(stepID, blockType, msg string, attrs ...any) {
	l.logger.Debug(msg, l.with(stepID, blockType, attrs)...)
}

func (l *SlogLogger) Info(stepID, blockType, msg string, attrs ...any) {
	l.logger.Info(msg, l.with(stepID, blockType, attrs)...)
}

func (l *SlogLogger) Warn(stepID, blockType, msg string, attrs ...any) {
	l.logger.Warn(msg, l.with(stepID, blockType, attrs)...)
}

func (l *SlogLogger) Error(stepID, blockType, msg string, attrs ...any) {
	l.logger.Error(msg, l.with(stepID, blockType, attrs)...)
}
