package adapter

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"PesaGate/internal/conf"
	"PesaGate/internal/model"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MTNAdapter integrates MTN Mobile Money through the MoMo Collections API.
type MTNAdapter struct {
	client          *Client
	apiUser         string
	apiKey          string
	subscriptionKey string
	environment     string
	logger          *log.Helper

	tokenMu     sync.Mutex
	accessToken string
	tokenExpiry time.Time

	now func() time.Time
}

// NewMTNAdapter builds the MTN MoMo adapter from provider configuration.
// Expects extra keys "subscription_key" and optionally "environment"
// (defaults to sandbox).
func NewMTNAdapter(cfg *conf.Provider, logger log.Logger) (*MTNAdapter, error) {
	client, err := NewClient(model.ProviderMTN, cfg.BaseUrl, cfg.ProxyUrl, cfg.Timeout)
	if err != nil {
		return nil, err
	}

	env := cfg.Extra["environment"]
	if env == "" {
		env = "sandbox"
	}

	return &MTNAdapter{
		client:          client,
		apiUser:         cfg.ApiKey,
		apiKey:          cfg.ApiSecret,
		subscriptionKey: cfg.Extra["subscription_key"],
		environment:     env,
		logger:          log.NewHelper(logger),
		now:             time.Now,
	}, nil
}

func (a *MTNAdapter) Name() string { return model.ProviderMTN }

type mtnTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// token returns a cached bearer token, refreshing it when expired.
func (a *MTNAdapter) token(ctx context.Context) (string, error) {
	a.tokenMu.Lock()
	defer a.tokenMu.Unlock()

	if a.accessToken != "" && a.now().Before(a.tokenExpiry) {
		return a.accessToken, nil
	}

	basic := base64.StdEncoding.EncodeToString([]byte(a.apiUser + ":" + a.apiKey))
	status, body, err := a.client.PostJSON(ctx, "/collection/token/", map[string]string{
		"Authorization":             "Basic " + basic,
		"Ocp-Apim-Subscription-Key": a.subscriptionKey,
	}, nil)
	if err != nil {
		return "", err
	}
	if err := classifyStatus(a.Name(), status, string(body)); err != nil {
		return "", err
	}

	var tok mtnTokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", fmt.Errorf("mtn: invalid token response: %w", err)
	}
	if tok.AccessToken == "" {
		return "", &ProviderError{Provider: a.Name(), Reason: ErrAuthFailed, Message: "empty access token"}
	}

	a.accessToken = tok.AccessToken
	expiry := time.Duration(tok.ExpiresIn) * time.Second
	if expiry <= time.Minute {
		expiry = time.Hour
	}
	a.tokenExpiry = a.now().Add(expiry - time.Minute)

	return a.accessToken, nil
}

func (a *MTNAdapter) momoHeaders(token string) map[string]string {
	return map[string]string{
		"Authorization":             "Bearer " + token,
		"Ocp-Apim-Subscription-Key": a.subscriptionKey,
		"X-Target-Environment":      a.environment,
	}
}

// Initiate submits a request-to-pay. MoMo identifies the transaction by a
// caller-generated UUID passed in X-Reference-Id.
func (a *MTNAdapter) Initiate(ctx context.Context, req *model.PaymentRequest) (*InitiateResult, error) {
	tok, err := a.token(ctx)
	if err != nil {
		return nil, err
	}

	referenceID := uuid.NewString()

	payload := map[string]interface{}{
		"amount":     req.Amount.String(),
		"currency":   req.Currency,
		"externalId": req.Reference,
		"payer": map[string]string{
			"partyIdType": "MSISDN",
			"partyId":     req.PhoneNumber,
		},
		"payerMessage": req.Description,
		"payeeNote":    req.Reference,
	}

	headers := a.momoHeaders(tok)
	headers["X-Reference-Id"] = referenceID

	status, body, err := a.client.PostJSON(ctx, "/collection/v1_0/requesttopay", headers, payload)
	if err != nil {
		return nil, err
	}
	// MoMo answers 202 Accepted on success.
	if err := classifyStatus(a.Name(), status, string(body)); err != nil {
		return nil, err
	}

	a.logger.Debugf("mtn request-to-pay accepted: reference_id=%s reference=%s", referenceID, req.Reference)

	return &InitiateResult{
		ProviderRef: referenceID,
		Status:      model.StatusPending,
	}, nil
}

type mtnStatusResponse struct {
	Status string `json:"status"`
	Reason struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"reason"`
}

// Status queries a request-to-pay by its reference UUID.
func (a *MTNAdapter) Status(ctx context.Context, providerRef string) (*StatusResult, error) {
	tok, err := a.token(ctx)
	if err != nil {
		return nil, err
	}

	status, body, err := a.client.Get(ctx, "/collection/v1_0/requesttopay/"+providerRef, a.momoHeaders(tok))
	if err != nil {
		return nil, err
	}
	if err := classifyStatus(a.Name(), status, string(body)); err != nil {
		return nil, err
	}

	var resp mtnStatusResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("mtn: invalid status response: %w", err)
	}

	result := &StatusResult{ProviderRef: providerRef, Message: resp.Reason.Message}
	switch resp.Status {
	case "SUCCESSFUL":
		result.Status = model.StatusSuccess
	case "FAILED":
		result.Status = model.StatusFailed
		if resp.Reason.Code == "PAYER_NOT_FOUND" || resp.Reason.Code == "NOT_ENOUGH_FUNDS" {
			result.Message = resp.Reason.Code
		}
	case "REJECTED":
		result.Status = model.StatusCancelled
	default:
		// PENDING, ONGOING
		result.Status = model.StatusPending
	}

	return result, nil
}

// Refund submits a MoMo refund referencing the original request-to-pay.
func (a *MTNAdapter) Refund(ctx context.Context, providerRef string, amount decimal.Decimal, reason string) (*RefundResult, error) {
	tok, err := a.token(ctx)
	if err != nil {
		return nil, err
	}

	refundID := uuid.NewString()

	payload := map[string]interface{}{
		"amount":              amount.String(),
		"referenceIdToRefund": providerRef,
		"payerMessage":        reason,
	}

	headers := a.momoHeaders(tok)
	headers["X-Reference-Id"] = refundID

	status, body, err := a.client.PostJSON(ctx, "/disbursement/v1_0/refund", headers, payload)
	if err != nil {
		return nil, err
	}
	if err := classifyStatus(a.Name(), status, string(body)); err != nil {
		return nil, err
	}

	return &RefundResult{
		RefundRef: refundID,
		Status:    model.StatusPending,
	}, nil
}

// HealthCheck probes the token endpoint, bypassing the cache.
func (a *MTNAdapter) HealthCheck(ctx context.Context) error {
	basic := base64.StdEncoding.EncodeToString([]byte(a.apiUser + ":" + a.apiKey))
	status, body, err := a.client.PostJSON(ctx, "/collection/token/", map[string]string{
		"Authorization":             "Basic " + basic,
		"Ocp-Apim-Subscription-Key": a.subscriptionKey,
	}, nil)
	if err != nil {
		return err
	}
	return classifyStatus(a.Name(), status, string(body))
}
