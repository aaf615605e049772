// Package logger defines the logging contract used across the engine.
// Implementations live in infra/logger so core packages stay free of
// logging-library imports.
package logger

// Logger exposes logging methods for common severity levels.
type Logger interface {
	Debugf(format string, args ...any)
	// Debugw logs a message with structured fields.
	Debugw(msg string, fields map[string]any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// Nop discards all log output. Useful default for tests and optional deps.
type Nop struct{}

func (Nop) Debugf(string, ...any) {}

func (Nop) Debugw(string, map[string]any) {}

func (Nop) Infof(string, ...any) {}

func (Nop) Warnf(string, ...any) {}

func (Nop) Errorf(string, ...any) {}
