// Package logger provides structured, component-tagged logging on top of
// log/slog. Call sites pass a component name, a message, and an optional
// field map, mirroring the shape used throughout this codebase's turn
// engine, channels, and tools.
package logger

import (
	"log/slog"
	"os"
)

var base = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
	Level: slog.LevelInfo,
}))

// SetLevel adjusts the minimum level emitted. Debug mode enables DebugCF output.
func SetLevel(level slog.Level) {
	base = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func attrs(component string, fields map[string]interface{}) []any {
	out := make([]any, 0, 2+2*len(fields))
	out = append(out, "component", component)
	for k, v := range fields {
		out = append(out, k, v)
	}
	return out
}

// DebugCF logs at debug level with a component tag and field map.
func DebugCF(component, msg string, fields map[string]interface{}) {
	base.Debug(msg, attrs(component, fields)...)
}

// InfoCF logs at info level with a component tag and field map.
func InfoCF(component, msg string, fields map[string]interface{}) {
	base.Info(msg, attrs(component, fields)...)
}

// WarnCF logs at warn level with a component tag and field map.
func WarnCF(component, msg string, fields map[string]interface{}) {
	base.Warn(msg, attrs(component, fields)...)
}

// ErrorCF logs at error level with a component tag and field map.
func ErrorCF(component, msg string, fields map[string]interface{}) {
	base.Error(msg, attrs(component, fields)...)
}
