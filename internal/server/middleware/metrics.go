package middleware

import (
	"context"
	"strconv"
	"strings"

	kerrors "github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/middleware"
	khttp "github.com/go-kratos/kratos/v2/transport/http"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts every request by route and HTTP status code.
func Metrics(requests *prometheus.CounterVec) middleware.Middleware {
	return func(handler middleware.Handler) middleware.Handler {
		return func(ctx context.Context, req interface{}) (interface{}, error) {
			route := "unknown"
			if ht, ok := khttp.RequestFromServerContext(ctx); ok {
				route = normalizeRoute(ht.URL.Path)
			}

			reply, err := handler(ctx, req)

			code := 200
			if err != nil {
				code = int(kerrors.FromError(err).Code)
			}
			requests.WithLabelValues(route, strconv.Itoa(code)).Inc()

			return reply, err
		}
	}
}

// normalizeRoute collapses transaction IDs and provider names embedded
// in the path so the route label stays low-cardinality.
func normalizeRoute(path string) string {
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		if isIDSegment(seg) {
			segments[i] = "{id}"
		}
	}
	return strings.Join(segments, "/")
}

func isIDSegment(seg string) bool {
	// UUIDs and purely numeric references.
	if len(seg) == 36 && strings.Count(seg, "-") == 4 {
		return true
	}
	if seg == "" {
		return false
	}
	for _, r := range seg {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
