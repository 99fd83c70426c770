package middleware

import (
	"context"
	"strings"
	"time"

	pkglog "PesaGate/pkg/log"

	kerrors "github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/middleware"
	"github.com/go-kratos/kratos/v2/transport"
	"github.com/go-kratos/kratos/v2/transport/http"
)

// slowRequestThresholdMs flags requests that took suspiciously long.
// Mobile money providers regularly take seconds; ten is a problem.
const slowRequestThresholdMs = 10000

// Logging returns a middleware that logs every HTTP request with its
// method, path, status and duration, carrying a generated request ID
// through the context for the rest of the pipeline.
func Logging(logger *pkglog.LogHelper) middleware.Middleware {
	return func(handler middleware.Handler) middleware.Handler {
		return func(ctx context.Context, req interface{}) (interface{}, error) {
			startTime := time.Now()

			var (
				method    string
				path      string
				ip        string
				userAgent string
				requestID string
			)

			if tr, ok := transport.FromServerContext(ctx); ok {
				method = tr.Operation()
				path = tr.Operation()

				if ht, ok := tr.(http.Transporter); ok {
					httpReq := ht.Request()
					method = httpReq.Method
					path = httpReq.URL.Path
					if httpReq.URL.RawQuery != "" {
						path = path + "?" + httpReq.URL.RawQuery
					}

					ip = extractClientIP(httpReq)
					userAgent = httpReq.Header.Get("User-Agent")

					requestID = httpReq.Header.Get("X-Request-ID")
					if requestID == "" {
						requestID = pkglog.GenerateRequestID()
					}
				}
			}

			ctx = pkglog.WithRequestContext(ctx, requestID, "")

			reply, err := handler(ctx, req)

			duration := time.Since(startTime).Milliseconds()
			status := extractHTTPStatus(err)

			logger.RequestWithContext(ctx, method, path, status, duration,
				"ip", ip,
				"user_agent", userAgent,
			)

			if duration > slowRequestThresholdMs {
				logger.SlowRequest(ctx, method, path, duration, slowRequestThresholdMs)
			}

			return reply, err
		}
	}
}

// extractClientIP prefers proxy headers over the socket address.
// Priority: X-Real-IP > X-Forwarded-For > RemoteAddr.
func extractClientIP(req *http.Request) string {
	if ip := req.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}

	if forwarded := req.Header.Get("X-Forwarded-For"); forwarded != "" {
		ips := strings.Split(forwarded, ",")
		if len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}

	return req.RemoteAddr
}

// extractHTTPStatus maps an error to the HTTP status the client saw.
func extractHTTPStatus(err error) int {
	if err == nil {
		return 200
	}
	return int(kerrors.FromError(err).Code)
}
