package log

import (
	"fmt"

	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

// emojiMap maps a log "type" field to the emoji prefixed to console output.
var emojiMap = map[string]string{
	"api":          "🔗",
	"auth":         "🔓",
	"request":      "🌐",
	"success":      "✅",
	"error":        "❌",
	"warning":      "⚠️",
	"database":     "💾",
	"redis":        "📦",
	"rate_limit":   "🚦",
	"payment":      "💳",
	"provider":     "🏦",
	"refund":       "💸",
	"circuit":      "🔌",
	"healing":      "🩹",
	"failover":     "🔀",
	"health":       "🩺",
	"reconcile":    "🔄",
	"webhook":      "📨",
	"scheduler":    "🎯",
	"gateway":      "🚪",
	"startup":      "🚀",
	"performance":  "⏱️",
	"audit":        "📋",
	"security":     "🔒",
	"slow_request": "🐌",
	"cache_stats":  "🧹",
}

// statusEmoji returns an emoji for an HTTP status code.
func statusEmoji(status int) string {
	if status >= 500 {
		return "🔴"
	} else if status >= 400 {
		return "🟠"
	} else if status >= 300 {
		return "🟡"
	}
	return "🟢"
}

// EmojiConsoleEncoder wraps the standard ConsoleEncoder and prefixes each
// entry's message with an emoji chosen from the "type" field.
type EmojiConsoleEncoder struct {
	zapcore.Encoder
	config zapcore.EncoderConfig
}

// NewEmojiConsoleEncoder creates a console encoder with emoji prefixes.
func NewEmojiConsoleEncoder(cfg zapcore.EncoderConfig) zapcore.Encoder {
	return &EmojiConsoleEncoder{
		Encoder: zapcore.NewConsoleEncoder(cfg),
		config:  cfg,
	}
}

// EncodeEntry encodes a log entry, adding the emoji prefix.
func (enc *EmojiConsoleEncoder) EncodeEntry(entry zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	var logType string
	var status int64

	for _, field := range fields {
		if field.Key == "type" && field.Type == zapcore.StringType {
			logType = field.String
		} else if field.Key == "status" && (field.Type == zapcore.Int64Type || field.Type == zapcore.Int32Type) {
			status = field.Integer
		}
	}

	// Emoji selection priority:
	// 1. HTTP status code (if present)
	// 2. type field mapping
	// 3. log level default
	emoji := ""
	if status > 0 {
		emoji = statusEmoji(int(status))
	} else if logType != "" {
		if e, ok := emojiMap[logType]; ok {
			emoji = e
		}
	}

	if emoji == "" {
		switch entry.Level {
		case zapcore.ErrorLevel, zapcore.DPanicLevel, zapcore.PanicLevel, zapcore.FatalLevel:
			emoji = "❌"
		case zapcore.WarnLevel:
			emoji = "⚠️"
		case zapcore.InfoLevel:
			emoji = "ℹ️"
		case zapcore.DebugLevel:
			emoji = "🐛"
		}
	}

	if emoji != "" {
		entry.Message = emoji + " " + entry.Message
	}

	return enc.Encoder.EncodeEntry(entry, fields)
}

// Clone clones the encoder (used internally by Zap).
func (enc *EmojiConsoleEncoder) Clone() zapcore.Encoder {
	return &EmojiConsoleEncoder{
		Encoder: enc.Encoder.Clone(),
		config:  enc.config,
	}
}

// AddEmojiToMap registers a custom emoji mapping for a log type.
func AddEmojiToMap(logType, emoji string) {
	emojiMap[logType] = emoji
}

// GetEmojiMap returns a copy of the current emoji mapping.
func GetEmojiMap() map[string]string {
	result := make(map[string]string, len(emojiMap))
	for k, v := range emojiMap {
		result[k] = v
	}
	return result
}

// formatDuration renders a millisecond duration in a compact form.
// Examples: 1ms, 150ms, 2.5s
func formatDuration(ms int64) string {
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	seconds := float64(ms) / 1000.0
	return fmt.Sprintf("%.1fs", seconds)
}
