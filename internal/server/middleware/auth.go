// Package middleware provides HTTP middleware for authentication,
// logging and request processing.
package middleware

import (
	"context"
	"crypto/subtle"
	"strings"
	"time"

	pkglog "PesaGate/pkg/log"

	kerrors "github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/middleware"
	"github.com/go-kratos/kratos/v2/transport"
	"github.com/go-kratos/kratos/v2/transport/http"
)

// Auth returns an HTTP middleware that enforces the gateway API key.
// /healthz and /metrics never pass through here: they are mounted as
// raw handlers outside the middleware chain.
// The key is accepted as "Authorization: Bearer {key}" or as an
// X-API-Key header. With no key configured the gateway runs open, for
// sandboxes; every authenticated request is logged with a masked key.
func Auth(apiKey string, logger *pkglog.LogHelper) middleware.Middleware {
	return func(handler middleware.Handler) middleware.Handler {
		return func(ctx context.Context, req interface{}) (interface{}, error) {
			startTime := time.Now()

			var (
				presented string
				userAgent string
				path      string
			)

			if tr, ok := transport.FromServerContext(ctx); ok {
				if ht, ok := tr.(http.Transporter); ok {
					httpReq := ht.Request()
					path = httpReq.URL.Path

					authHeader := httpReq.Header.Get("Authorization")
					if authHeader != "" {
						presented = strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
					}
					if presented == "" {
						presented = httpReq.Header.Get("X-API-Key")
					}
					userAgent = httpReq.Header.Get("User-Agent")
				}
			}

			if apiKey != "" {
				if subtle.ConstantTimeCompare([]byte(presented), []byte(apiKey)) != 1 {
					logger.Security("Rejected request with invalid API key",
						"path", path,
						"user_agent", userAgent,
					)
					return nil, kerrors.New(401, "UNAUTHORIZED", "invalid or missing API key")
				}

				masked := maskAPIKey(presented)
				logger.Auth("Authenticated request ("+masked+") in "+formatDuration(time.Since(startTime).Milliseconds()),
					"api_key_masked", masked,
					"duration_ms", time.Since(startTime).Milliseconds(),
				)
				pkglog.SetMetadata(ctx, "api_key_masked", masked)
			}

			return handler(ctx, req)
		}
	}
}

// maskAPIKey shows only the first 8 characters of a key.
func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:8] + "***"
}

func formatDuration(ms int64) string {
	if ms < 1000 {
		return time.Duration(ms * int64(time.Millisecond)).String()
	}
	return time.Duration(ms * int64(time.Millisecond)).Round(100 * time.Millisecond).String()
}
