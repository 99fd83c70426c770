package service

import (
	"context"
	"strconv"
	"time"

	"PesaGate/internal/biz"
	"PesaGate/internal/metrics"
	"PesaGate/internal/model"

	"github.com/go-kratos/kratos/v2/log"
	khttp "github.com/go-kratos/kratos/v2/transport/http"
)

// PaymentService exposes the payment lifecycle over HTTP.
type PaymentService struct {
	uc      *biz.PaymentUsecase
	metrics *metrics.Metrics
	logger  *log.Helper
}

// NewPaymentService creates a new PaymentService instance.
func NewPaymentService(uc *biz.PaymentUsecase, m *metrics.Metrics, logger log.Logger) *PaymentService {
	return &PaymentService{
		uc:      uc,
		metrics: m,
		logger:  log.NewHelper(logger),
	}
}

// RegisterRoutes mounts the payment endpoints on the HTTP server.
func (s *PaymentService) RegisterRoutes(srv *khttp.Server) {
	r := srv.Route("/v1")
	r.POST("/payments", s.InitiatePayment)
	r.GET("/payments", s.ListPayments)
	r.GET("/payments/{id}", s.GetPayment)
	r.POST("/payments/{id}/refund", s.RefundPayment)
}

// InitiatePayment handles POST /v1/payments.
func (s *PaymentService) InitiatePayment(ctx khttp.Context) error {
	var req model.PaymentRequest
	if err := ctx.Bind(&req); err != nil {
		return err
	}

	s.logger.Infow("InitiatePayment called",
		"reference", req.Reference,
		"provider", req.Provider,
		"currency", req.Currency)

	started := time.Now()
	h := ctx.Middleware(func(c context.Context, _ interface{}) (interface{}, error) {
		return s.uc.Initiate(c, &req)
	})
	out, err := h(ctx, &req)
	if err != nil {
		s.metrics.PaymentsTotal.WithLabelValues(orUnknown(req.Provider), "error").Inc()
		return err
	}
	resp := out.(*model.PaymentResponse)

	s.metrics.PaymentsTotal.WithLabelValues(resp.Provider, string(resp.Status)).Inc()
	s.metrics.PaymentDuration.WithLabelValues(resp.Provider).Observe(time.Since(started).Seconds())

	return ctx.Result(201, resp)
}

// GetPayment handles GET /v1/payments/{id}.
func (s *PaymentService) GetPayment(ctx khttp.Context) error {
	id := ctx.Vars().Get("id")

	h := ctx.Middleware(func(c context.Context, _ interface{}) (interface{}, error) {
		return s.uc.GetStatus(c, id)
	})
	out, err := h(ctx, id)
	if err != nil {
		return err
	}
	return ctx.Result(200, out.(*model.PaymentResponse))
}

// ListPayments handles GET /v1/payments with filter query parameters.
func (s *PaymentService) ListPayments(ctx khttp.Context) error {
	query := parseTransactionQuery(ctx)

	h := ctx.Middleware(func(c context.Context, _ interface{}) (interface{}, error) {
		return s.uc.List(c, query)
	})
	out, err := h(ctx, query)
	if err != nil {
		return err
	}
	return ctx.Result(200, out.(*model.TransactionHistory))
}

// RefundPayment handles POST /v1/payments/{id}/refund.
func (s *PaymentService) RefundPayment(ctx khttp.Context) error {
	var req model.RefundRequest
	if err := ctx.Bind(&req); err != nil {
		return err
	}
	req.TransactionID = ctx.Vars().Get("id")

	s.logger.Infow("RefundPayment called",
		"transaction_id", req.TransactionID,
		"amount", req.Amount.String())

	h := ctx.Middleware(func(c context.Context, _ interface{}) (interface{}, error) {
		return s.uc.Refund(c, &req)
	})
	out, err := h(ctx, &req)
	if err != nil {
		return err
	}
	resp := out.(*biz.RefundResponse)

	s.metrics.RefundsTotal.WithLabelValues(resp.Provider).Inc()
	return ctx.Result(200, resp)
}

func parseTransactionQuery(ctx khttp.Context) *model.TransactionQuery {
	q := ctx.Query()

	query := &model.TransactionQuery{
		Reference: q.Get("reference"),
		Provider:  q.Get("provider"),
		Status:    model.PaymentStatus(q.Get("status")),
	}
	if v := q.Get("limit"); v != "" {
		if limit, err := strconv.Atoi(v); err == nil {
			query.Limit = limit
		}
	}
	if v := q.Get("offset"); v != "" {
		if offset, err := strconv.Atoi(v); err == nil {
			query.Offset = offset
		}
	}
	if v := q.Get("start_date"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			query.StartDate = &t
		}
	}
	if v := q.Get("end_date"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			query.EndDate = &t
		}
	}
	return query
}

func orUnknown(provider string) string {
	if provider == "" {
		return "unknown"
	}
	return provider
}
