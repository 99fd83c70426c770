package log

import (
	"context"
	"fmt"

	"github.com/go-kratos/kratos/v2/log"
)

// LogHelper extends the Kratos log.Helper with domain-specific methods.
// Each method tags the entry with a "type" field, which drives the emoji
// mapping in EmojiConsoleEncoder.
type LogHelper struct {
	*log.Helper
}

// NewLogHelper creates the enhanced log helper.
func NewLogHelper(logger log.Logger) *LogHelper {
	return &LogHelper{
		Helper: log.NewHelper(logger),
	}
}

// API logs API-related events (emoji: 🔗)
func (h *LogHelper) API(msg string, kvs ...interface{}) {
	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs, "type", "api")
	h.Infow(allKvs...)
}

// Auth logs authentication events (emoji: 🔓)
func (h *LogHelper) Auth(msg string, kvs ...interface{}) {
	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs, "type", "auth")
	h.Infow(allKvs...)
}

// Payment logs payment lifecycle events (emoji: 💳)
func (h *LogHelper) Payment(msg string, kvs ...interface{}) {
	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs, "type", "payment")
	h.Infow(allKvs...)
}

// Provider logs provider adapter events (emoji: 🏦)
func (h *LogHelper) Provider(msg string, kvs ...interface{}) {
	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs, "type", "provider")
	h.Infow(allKvs...)
}

// Refund logs refund events (emoji: 💸)
func (h *LogHelper) Refund(msg string, kvs ...interface{}) {
	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs, "type", "refund")
	h.Infow(allKvs...)
}

// Circuit logs circuit breaker state changes (emoji: 🔌)
func (h *LogHelper) Circuit(msg string, kvs ...interface{}) {
	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs, "type", "circuit")
	h.Warnw(allKvs...)
}

// Healing logs self-healer activity (emoji: 🩹)
func (h *LogHelper) Healing(msg string, kvs ...interface{}) {
	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs, "type", "healing")
	h.Infow(allKvs...)
}

// Failover logs backup provider redirection (emoji: 🔀)
func (h *LogHelper) Failover(msg string, kvs ...interface{}) {
	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs, "type", "failover")
	h.Warnw(allKvs...)
}

// Health logs health check activity (emoji: 🩺)
func (h *LogHelper) Health(msg string, kvs ...interface{}) {
	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs, "type", "health")
	h.Debugw(allKvs...)
}

// Reconcile logs pending-transaction reconciliation (emoji: 🔄)
func (h *LogHelper) Reconcile(msg string, kvs ...interface{}) {
	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs, "type", "reconcile")
	h.Infow(allKvs...)
}

// Request logs HTTP requests (emoji: 🌐, or by status code)
func (h *LogHelper) Request(method, url string, status int, durationMs int64, kvs ...interface{}) {
	msg := fmt.Sprintf("%s %s - %d (%s)", method, url, status, formatDuration(durationMs))
	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs,
		"type", "request",
		"method", method,
		"url", url,
		"status", status,
		"duration_ms", durationMs,
	)
	h.Infow(allKvs...)
}

// RateLimit logs rate limiting events (emoji: 🚦)
func (h *LogHelper) RateLimit(msg string, kvs ...interface{}) {
	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs, "type", "rate_limit")
	h.Warnw(allKvs...)
}

// Success logs successful operations (emoji: ✅)
func (h *LogHelper) Success(msg string, kvs ...interface{}) {
	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs, "type", "success")
	h.Infow(allKvs...)
}

// Database logs database operations (emoji: 💾)
func (h *LogHelper) Database(msg string, kvs ...interface{}) {
	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs, "type", "database")
	h.Debugw(allKvs...)
}

// Redis logs Redis operations (emoji: 📦)
func (h *LogHelper) Redis(msg string, kvs ...interface{}) {
	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs, "type", "redis")
	h.Debugw(allKvs...)
}

// Scheduler logs background job activity (emoji: 🎯)
func (h *LogHelper) Scheduler(msg string, kvs ...interface{}) {
	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs, "type", "scheduler")
	h.Infow(allKvs...)
}

// Gateway logs gateway routing decisions (emoji: 🚪)
func (h *LogHelper) Gateway(msg string, kvs ...interface{}) {
	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs, "type", "gateway")
	h.Infow(allKvs...)
}

// Startup logs service startup events (emoji: 🚀)
func (h *LogHelper) Startup(msg string, kvs ...interface{}) {
	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs, "type", "startup")
	h.Infow(allKvs...)
}

// Audit logs audit trail entries (emoji: 📋)
func (h *LogHelper) Audit(msg string, kvs ...interface{}) {
	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs, "type", "audit")
	h.Infow(allKvs...)
}

// Security logs security events (emoji: 🔒)
func (h *LogHelper) Security(msg string, kvs ...interface{}) {
	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs, "type", "security")
	h.Warnw(allKvs...)
}

// PaymentCompleted logs a finalized payment with its routing outcome.
func (h *LogHelper) PaymentCompleted(reference, provider, status string, durationMs int64, kvs ...interface{}) {
	msg := fmt.Sprintf("Payment %s via %s - %s (%s)", reference, provider, status, formatDuration(durationMs))
	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs,
		"reference", reference,
		"provider", provider,
		"payment_status", status,
		"duration_ms", durationMs,
		"type", "payment",
	)
	h.Infow(allKvs...)
}

// ========== Context-aware methods ==========
// These extract tracing information (Request ID, caller, provider) from
// the Context automatically.

// SlowRequest warns about a request exceeding a latency threshold (emoji: 🐌)
func (h *LogHelper) SlowRequest(ctx context.Context, method, url string, duration, threshold int64, kvs ...interface{}) {
	reqCtx := GetRequestContext(ctx)

	msg := fmt.Sprintf("[%s] Slow request detected | %s %s | %dms (threshold: %dms)",
		reqCtx.RequestID, method, url, duration, threshold)

	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs,
		"request_id", reqCtx.RequestID,
		"caller", reqCtx.Caller,
		"method", method,
		"url", url,
		"duration_ms", duration,
		"threshold_ms", threshold,
		"type", "slow_request",
	)
	h.Warnw(allKvs...)
}

// RequestWithContext logs an HTTP request with tracing fields and flags
// slow requests automatically (threshold 1000ms).
func (h *LogHelper) RequestWithContext(ctx context.Context, method, url string, status int, durationMs int64, kvs ...interface{}) {
	reqCtx := GetRequestContext(ctx)

	msg := fmt.Sprintf("%s %s - %d (%dms) | RequestID: %s",
		method, url, status, durationMs, reqCtx.RequestID)

	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs,
		"type", "request",
		"request_id", reqCtx.RequestID,
		"caller", reqCtx.Caller,
		"provider", reqCtx.Provider,
		"method", method,
		"url", url,
		"status", status,
		"duration_ms", durationMs,
	)
	h.Infow(allKvs...)

	if durationMs > 1000 {
		h.SlowRequest(ctx, method, url, durationMs, 1000)
	}
}

// CacheStats logs cache hit statistics (emoji: 🧹)
func (h *LogHelper) CacheStats(ctx context.Context, cacheName string, size, maxSize, hits, misses, evictions int64, kvs ...interface{}) {
	var hitRate float64
	total := hits + misses
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	msg := fmt.Sprintf("Cache stats - %s | Size: %d/%d, Hit Rate: %.2f%%, Evictions: %d",
		cacheName, size, maxSize, hitRate, evictions)

	allKvs := append([]interface{}{"msg", msg}, kvs...)
	allKvs = append(allKvs,
		"cache_name", cacheName,
		"size", size,
		"max_size", maxSize,
		"hits", hits,
		"misses", misses,
		"evictions", evictions,
		"hit_rate", fmt.Sprintf("%.2f%%", hitRate),
		"total_requests", total,
		"type", "cache_stats",
	)
	h.Infow(allKvs...)
}

// APIWithContext logs an API event with the request ID prefixed.
func (h *LogHelper) APIWithContext(ctx context.Context, msg string, kvs ...interface{}) {
	reqCtx := GetRequestContext(ctx)

	fullMsg := fmt.Sprintf("[%s] %s", reqCtx.RequestID, msg)

	allKvs := append([]interface{}{"msg", fullMsg}, kvs...)
	allKvs = append(allKvs,
		"request_id", reqCtx.RequestID,
		"caller", reqCtx.Caller,
		"type", "api",
	)
	h.Infow(allKvs...)
}
