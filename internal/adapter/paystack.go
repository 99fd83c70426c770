package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"PesaGate/internal/conf"
	"PesaGate/internal/model"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/shopspring/decimal"
)

// PaystackAdapter integrates Paystack mobile money charges.
type PaystackAdapter struct {
	client    *Client
	secretKey string
	logger    *log.Helper
}

// NewPaystackAdapter builds the Paystack adapter from provider configuration.
func NewPaystackAdapter(cfg *conf.Provider, logger log.Logger) (*PaystackAdapter, error) {
	client, err := NewClient(model.ProviderPaystack, cfg.BaseUrl, cfg.ProxyUrl, cfg.Timeout)
	if err != nil {
		return nil, err
	}

	return &PaystackAdapter{
		client:    client,
		secretKey: cfg.ApiKey,
		logger:    log.NewHelper(logger),
	}, nil
}

func (a *PaystackAdapter) Name() string { return model.ProviderPaystack }

func (a *PaystackAdapter) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + a.secretKey}
}

type paystackEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type paystackChargeData struct {
	Reference       string `json:"reference"`
	Status          string `json:"status"`
	GatewayResponse string `json:"gateway_response"`
}

// paystackStatus maps Paystack charge states to the unified status set.
func paystackStatus(s string) model.PaymentStatus {
	switch s {
	case "success":
		return model.StatusSuccess
	case "failed":
		return model.StatusFailed
	case "abandoned":
		return model.StatusCancelled
	default:
		// pending, send_otp, pay_offline, processing
		return model.StatusPending
	}
}

// Initiate creates a mobile money charge. Paystack amounts are in the
// currency's minor unit.
func (a *PaystackAdapter) Initiate(ctx context.Context, req *model.PaymentRequest) (*InitiateResult, error) {
	email := req.Metadata["email"]
	if email == "" {
		email = req.PhoneNumber + "@pesagate.customer"
	}

	payload := map[string]interface{}{
		"amount":    req.Amount.Mul(decimal.NewFromInt(100)).Round(0).String(),
		"currency":  req.Currency,
		"email":     email,
		"reference": req.Reference,
		"mobile_money": map[string]string{
			"phone":    "+" + req.PhoneNumber,
			"provider": strings.ToLower(req.Metadata["network"]),
		},
	}

	status, body, err := a.client.PostJSON(ctx, "/charge", a.headers(), payload)
	if err != nil {
		return nil, err
	}
	if err := classifyStatus(a.Name(), status, string(body)); err != nil {
		return nil, err
	}

	var env paystackEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("paystack: invalid charge response: %w", err)
	}
	if !env.Status {
		return nil, &ProviderError{Provider: a.Name(), Reason: ErrInvalidRequest, Message: env.Message}
	}

	var data paystackChargeData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, fmt.Errorf("paystack: invalid charge data: %w", err)
	}

	return &InitiateResult{
		ProviderRef: data.Reference,
		Status:      paystackStatus(data.Status),
		Message:     env.Message,
	}, nil
}

// Status verifies a charge by reference.
func (a *PaystackAdapter) Status(ctx context.Context, providerRef string) (*StatusResult, error) {
	status, body, err := a.client.Get(ctx, "/transaction/verify/"+url.PathEscape(providerRef), a.headers())
	if err != nil {
		return nil, err
	}
	if err := classifyStatus(a.Name(), status, string(body)); err != nil {
		return nil, err
	}

	var env paystackEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("paystack: invalid verify response: %w", err)
	}
	if !env.Status {
		return nil, &ProviderError{Provider: a.Name(), Reason: ErrTransactionNotFound, Message: env.Message}
	}

	var data paystackChargeData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, fmt.Errorf("paystack: invalid verify data: %w", err)
	}

	return &StatusResult{
		Status:      paystackStatus(data.Status),
		ProviderRef: data.Reference,
		Message:     data.GatewayResponse,
	}, nil
}

// Refund requests a full or partial refund of a charge.
func (a *PaystackAdapter) Refund(ctx context.Context, providerRef string, amount decimal.Decimal, reason string) (*RefundResult, error) {
	payload := map[string]interface{}{
		"transaction":   providerRef,
		"amount":        amount.Mul(decimal.NewFromInt(100)).Round(0).String(),
		"merchant_note": reason,
	}

	status, body, err := a.client.PostJSON(ctx, "/refund", a.headers(), payload)
	if err != nil {
		return nil, err
	}
	if err := classifyStatus(a.Name(), status, string(body)); err != nil {
		return nil, err
	}

	var env paystackEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("paystack: invalid refund response: %w", err)
	}
	if !env.Status {
		return nil, &ProviderError{Provider: a.Name(), Reason: ErrInvalidRequest, Message: env.Message}
	}

	return &RefundResult{
		RefundRef: providerRef,
		Status:    model.StatusPending,
		Message:   env.Message,
	}, nil
}

// HealthCheck lists one transaction to confirm API reachability and
// credentials.
func (a *PaystackAdapter) HealthCheck(ctx context.Context) error {
	status, body, err := a.client.Get(ctx, "/transaction?perPage=1", a.headers())
	if err != nil {
		return err
	}
	return classifyStatus(a.Name(), status, string(body))
}
