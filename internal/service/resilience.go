package service

import (
	"context"
	"strconv"

	"PesaGate/internal/biz"

	kerrors "github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	khttp "github.com/go-kratos/kratos/v2/transport/http"
)

// ResilienceService exposes provider health, recovery state and the
// healing event log for operators.
type ResilienceService struct {
	healer  *biz.SelfHealer
	limiter *biz.RateLimiterUseCase
	logger  *log.Helper
}

// NewResilienceService creates a new ResilienceService instance.
func NewResilienceService(healer *biz.SelfHealer, limiter *biz.RateLimiterUseCase, logger log.Logger) *ResilienceService {
	return &ResilienceService{
		healer:  healer,
		limiter: limiter,
		logger:  log.NewHelper(logger),
	}
}

// RegisterRoutes mounts the resilience endpoints on the HTTP server.
func (s *ResilienceService) RegisterRoutes(srv *khttp.Server) {
	r := srv.Route("/v1")
	r.GET("/providers", s.ListProviders)
	r.POST("/providers/{name}/reset-healing", s.ResetHealing)
	r.GET("/healing-events", s.ListHealingEvents)
}

// providerView is one provider's status plus its current in-flight
// payment count.
type providerView struct {
	biz.ProviderStatus
	InFlight int32 `json:"inFlight"`
}

type providersResponse struct {
	Providers []providerView      `json:"providers"`
	Stats     biz.SelfHealerStats `json:"stats"`
}

// ListProviders handles GET /v1/providers.
func (s *ResilienceService) ListProviders(ctx khttp.Context) error {
	h := ctx.Middleware(func(c context.Context, _ interface{}) (interface{}, error) {
		statuses := s.healer.GetStatus()

		views := make([]providerView, 0, len(statuses))
		for _, st := range statuses {
			views = append(views, providerView{
				ProviderStatus: st,
				InFlight:       s.limiter.InFlightCount(c, st.Provider),
			})
		}

		return providersResponse{
			Providers: views,
			Stats:     s.healer.GetStats(),
		}, nil
	})
	out, err := h(ctx, nil)
	if err != nil {
		return err
	}
	return ctx.Result(200, out.(providersResponse))
}

type resetHealingRequest struct {
	Operator string `json:"operator,omitempty"`
}

// ResetHealing handles POST /v1/providers/{name}/reset-healing. It
// zeroes the provider's healing budget so automated recovery can run
// again after an operator intervention.
func (s *ResilienceService) ResetHealing(ctx khttp.Context) error {
	name := ctx.Vars().Get("name")

	var req resetHealingRequest
	// Body is optional.
	_ = ctx.Bind(&req)
	operator := req.Operator
	if operator == "" {
		operator = "api"
	}

	h := ctx.Middleware(func(c context.Context, _ interface{}) (interface{}, error) {
		if _, ok := s.healer.GetRecoveryState(name); !ok {
			return nil, kerrors.New(404, "PROVIDER_NOT_FOUND", "provider "+name+" is not registered")
		}

		s.healer.ResetHealingAttempts(name, operator)
		s.logger.Infow("healing attempts reset via API",
			"provider", name,
			"operator", operator,
			"type", "healing")

		state, _ := s.healer.GetRecoveryState(name)
		return state, nil
	})
	out, err := h(ctx, &req)
	if err != nil {
		return err
	}
	return ctx.Result(200, out.(biz.RecoveryState))
}

// ListHealingEvents handles GET /v1/healing-events with optional
// provider and limit query parameters.
func (s *ResilienceService) ListHealingEvents(ctx khttp.Context) error {
	q := ctx.Query()

	limit := 0
	if v := q.Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			return kerrors.New(400, "INVALID_LIMIT", "limit must be a non-negative integer")
		}
		limit = parsed
	}

	h := ctx.Middleware(func(c context.Context, _ interface{}) (interface{}, error) {
		events := s.healer.GetHealingEvents(q.Get("provider"), limit)
		return map[string]any{
			"events": events,
			"count":  len(events),
		}, nil
	})
	out, err := h(ctx, nil)
	if err != nil {
		return err
	}
	return ctx.Result(200, out)
}
