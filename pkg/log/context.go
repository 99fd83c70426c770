package log

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// contextKey is the private key type used to store RequestContext.
type contextKey string

const requestContextKey contextKey = "pesagate_request_context"

// RequestContext carries request tracing information through a Context
// across functions and layers.
type RequestContext struct {
	RequestID string    // short unique request ID (10 chars, e.g. mgrn0zfqda)
	Caller    string    // name of the API key the request authenticated with
	Provider  string    // payment provider handling the request, if known
	Reference string    // merchant payment reference, if known
	StartTime time.Time // request start time
	Metadata  map[string]interface{}
}

var (
	randSource = rand.NewSource(time.Now().UnixNano())
	randMutex  sync.Mutex
	// base36 charset (lowercase letters + digits)
	base36Chars = "0123456789abcdefghijklmnopqrstuvwxyz"
)

// GenerateRequestID returns a 10-character random request ID.
// Format: lowercase letters and digits, e.g. mgrn0zfqda.
func GenerateRequestID() string {
	randMutex.Lock()
	defer randMutex.Unlock()

	b := make([]byte, 10)
	for i := range b {
		b[i] = base36Chars[randSource.Int63()%36]
	}
	return string(b)
}

// WithRequestContext injects a RequestContext into the Context.
// Usually called from middleware so the whole request lifecycle carries
// the same tracing information.
func WithRequestContext(ctx context.Context, requestID, caller string) context.Context {
	reqCtx := &RequestContext{
		RequestID: requestID,
		Caller:    caller,
		StartTime: time.Now(),
		Metadata:  make(map[string]interface{}),
	}
	return context.WithValue(ctx, requestContextKey, reqCtx)
}

// GetRequestContext extracts the RequestContext from a Context.
// Returns a default empty RequestContext when absent.
func GetRequestContext(ctx context.Context) *RequestContext {
	if ctx == nil {
		return &RequestContext{
			RequestID: "unknown",
			Metadata:  make(map[string]interface{}),
		}
	}

	if reqCtx, ok := ctx.Value(requestContextKey).(*RequestContext); ok {
		return reqCtx
	}

	return &RequestContext{
		RequestID: "unknown",
		Metadata:  make(map[string]interface{}),
	}
}

// GetRequestID extracts the Request ID from a Context.
func GetRequestID(ctx context.Context) string {
	return GetRequestContext(ctx).RequestID
}

// GetCaller extracts the caller key name from a Context.
func GetCaller(ctx context.Context) string {
	return GetRequestContext(ctx).Caller
}

// SetProvider records the provider handling the request, once routing
// has decided it.
func SetProvider(ctx context.Context, provider string) {
	GetRequestContext(ctx).Provider = provider
}

// SetReference records the merchant payment reference for the request.
func SetReference(ctx context.Context, reference string) {
	GetRequestContext(ctx).Reference = reference
}

// SetMetadata adds extra tracing information to the RequestContext.
func SetMetadata(ctx context.Context, key string, value interface{}) {
	reqCtx := GetRequestContext(ctx)
	if reqCtx.Metadata == nil {
		reqCtx.Metadata = make(map[string]interface{})
	}
	reqCtx.Metadata[key] = value
}

// GetMetadata reads extra tracing information from the RequestContext.
func GetMetadata(ctx context.Context, key string) (interface{}, bool) {
	reqCtx := GetRequestContext(ctx)
	if reqCtx.Metadata == nil {
		return nil, false
	}
	value, ok := reqCtx.Metadata[key]
	return value, ok
}

// GetElapsedTime returns how long the request has been running, in
// milliseconds.
func GetElapsedTime(ctx context.Context) int64 {
	reqCtx := GetRequestContext(ctx)
	if reqCtx.StartTime.IsZero() {
		return 0
	}
	return time.Since(reqCtx.StartTime).Milliseconds()
}
