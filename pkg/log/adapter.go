// Package log provides logging utilities for the PesaGate service.
// It includes a Zap logger wrapper with Kratos adapter and automatic field sanitization.
package log

import (
	"fmt"

	"github.com/go-kratos/kratos/v2/log"
	"go.uber.org/zap"
)

// KratosAdapter adapts Zap logger to Kratos log.Logger interface
type KratosAdapter struct {
	zapLogger *zap.Logger
}

// NewKratosAdapter creates a new Kratos adapter for Zap logger
func NewKratosAdapter(zapLogger *zap.Logger) log.Logger {
	return &KratosAdapter{
		zapLogger: zapLogger,
	}
}

// Log implements Kratos log.Logger interface
func (a *KratosAdapter) Log(level log.Level, keyvals ...interface{}) error {
	if len(keyvals) == 0 {
		return nil
	}

	// Extract fields from keyvals. The "msg" pair becomes the zap
	// message rather than a field.
	msg := ""
	fields := make([]zap.Field, 0, len(keyvals)/2)

	for i := 0; i < len(keyvals); i += 2 {
		if i+1 < len(keyvals) {
			key := fmt.Sprint(keyvals[i])
			value := keyvals[i+1]

			if key == "msg" {
				msg = fmt.Sprint(value)
				continue
			}

			// Apply sanitization for string values and use type-specific zap field constructors
			if strValue, ok := value.(string); ok {
				sanitized := SanitizeField(key, strValue)
				fields = append(fields, zap.String(key, sanitized))
			} else {
				// For non-string types, use zap.Any
				fields = append(fields, zap.Any(key, value))
			}
		}
	}

	// Map Kratos log level to Zap methods
	switch level {
	case log.LevelDebug:
		a.zapLogger.Debug(msg, fields...)
	case log.LevelInfo:
		a.zapLogger.Info(msg, fields...)
	case log.LevelWarn:
		a.zapLogger.Warn(msg, fields...)
	case log.LevelError:
		a.zapLogger.Error(msg, fields...)
	case log.LevelFatal:
		a.zapLogger.Fatal(msg, fields...)
	default:
		a.zapLogger.Info(msg, fields...)
	}

	return nil
}
