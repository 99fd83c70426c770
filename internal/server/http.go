// Package server assembles the HTTP transport: middleware chain,
// service routes and the operational endpoints.
package server

import (
	"encoding/json"
	nethttp "net/http"

	"PesaGate/internal/conf"
	"PesaGate/internal/metrics"
	"PesaGate/internal/server/middleware"
	"PesaGate/internal/service"
	"PesaGate/pkg/health"
	pkglog "PesaGate/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware/recovery"
	"github.com/go-kratos/kratos/v2/transport/http"
	"github.com/google/wire"
)

// ProviderSet is server providers.
var ProviderSet = wire.NewSet(NewHTTPServer)

// NewHTTPServer new an HTTP server.
func NewHTTPServer(
	c *conf.Bootstrap,
	payment *service.PaymentService,
	resilience *service.ResilienceService,
	m *metrics.Metrics,
	monitor *health.Monitor,
	logger log.Logger,
) *http.Server {
	logHelper := pkglog.NewLogHelper(logger)

	apiKey := ""
	if c.Auth != nil {
		apiKey = c.Auth.ApiKey
	}

	var opts = []http.ServerOption{
		http.Middleware(
			recovery.Recovery(),
			middleware.Auth(apiKey, logHelper),
			middleware.Logging(logHelper),
			middleware.Metrics(m.RequestsTotal),
		),
	}
	httpConf := c.Server.Http
	if httpConf.Network != "" {
		opts = append(opts, http.Network(httpConf.Network))
	}
	if httpConf.Addr != "" {
		opts = append(opts, http.Address(httpConf.Addr))
	}
	if httpConf.Timeout != nil {
		opts = append(opts, http.Timeout(httpConf.Timeout.AsDuration()))
	}
	srv := http.NewServer(opts...)

	payment.RegisterRoutes(srv)
	resilience.RegisterRoutes(srv)

	srv.Handle("/metrics", m.Handler())
	srv.Handle("/healthz", healthzHandler(monitor))

	return srv
}

// healthzHandler reports liveness plus each provider probe result.
// The gateway itself is alive as long as it can answer; a failing
// provider degrades the body but not the status code, load balancers
// must not evict the gateway because Safaricom is down.
func healthzHandler(monitor *health.Monitor) nethttp.Handler {
	return nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		status := monitor.Status()
		overall := "ok"
		if !status.Healthy {
			overall = "degraded"
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(nethttp.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": overall,
			"checks": status.Checks,
		})
	})
}
