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
	"github.com/shopspring/decimal"
)

// MpesaAdapter integrates Safaricom M-Pesa through the Daraja API
// (STK push).
type MpesaAdapter struct {
	client      *Client
	consumerKey string
	secret      string
	shortcode   string
	passkey     string
	callbackURL string
	logger      *log.Helper

	tokenMu     sync.Mutex
	accessToken string
	tokenExpiry time.Time

	now func() time.Time
}

// NewMpesaAdapter builds the M-Pesa adapter from provider configuration.
// Expects extra keys "shortcode" and "passkey".
func NewMpesaAdapter(cfg *conf.Provider, logger log.Logger) (*MpesaAdapter, error) {
	client, err := NewClient(model.ProviderMpesa, cfg.BaseUrl, cfg.ProxyUrl, cfg.Timeout)
	if err != nil {
		return nil, err
	}

	return &MpesaAdapter{
		client:      client,
		consumerKey: cfg.ApiKey,
		secret:      cfg.ApiSecret,
		shortcode:   cfg.Extra["shortcode"],
		passkey:     cfg.Extra["passkey"],
		callbackURL: cfg.Extra["callback_url"],
		logger:      log.NewHelper(logger),
		now:         time.Now,
	}, nil
}

func (a *MpesaAdapter) Name() string { return model.ProviderMpesa }

type mpesaTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

// token returns a cached OAuth token, refreshing it when expired.
func (a *MpesaAdapter) token(ctx context.Context) (string, error) {
	a.tokenMu.Lock()
	defer a.tokenMu.Unlock()

	if a.accessToken != "" && a.now().Before(a.tokenExpiry) {
		return a.accessToken, nil
	}

	basic := base64.StdEncoding.EncodeToString([]byte(a.consumerKey + ":" + a.secret))
	status, body, err := a.client.Get(ctx, "/oauth/v1/generate?grant_type=client_credentials", map[string]string{
		"Authorization": "Basic " + basic,
	})
	if err != nil {
		return "", err
	}
	if err := classifyStatus(a.Name(), status, string(body)); err != nil {
		return "", err
	}

	var tok mpesaTokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", fmt.Errorf("mpesa: invalid token response: %w", err)
	}
	if tok.AccessToken == "" {
		return "", &ProviderError{Provider: a.Name(), Reason: ErrAuthFailed, Message: "empty access token"}
	}

	a.accessToken = tok.AccessToken
	// Daraja tokens last 3599s; refresh a minute early.
	a.tokenExpiry = a.now().Add(58 * time.Minute)

	return a.accessToken, nil
}

type mpesaSTKRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            string `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type mpesaSTKResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

// Initiate fires an STK push to the customer's phone. The payment stays
// pending until the customer confirms on-device.
func (a *MpesaAdapter) Initiate(ctx context.Context, req *model.PaymentRequest) (*InitiateResult, error) {
	tok, err := a.token(ctx)
	if err != nil {
		return nil, err
	}

	ts := a.now().Format("20060102150405")
	password := base64.StdEncoding.EncodeToString([]byte(a.shortcode + a.passkey + ts))

	payload := mpesaSTKRequest{
		BusinessShortCode: a.shortcode,
		Password:          password,
		Timestamp:         ts,
		TransactionType:   "CustomerPayBillOnline",
		Amount:            req.Amount.Round(0).String(),
		PartyA:            req.PhoneNumber,
		PartyB:            a.shortcode,
		PhoneNumber:       req.PhoneNumber,
		CallBackURL:       a.callbackURL,
		AccountReference:  req.Reference,
		TransactionDesc:   req.Description,
	}

	status, body, err := a.client.PostJSON(ctx, "/mpesa/stkpush/v1/processrequest", bearer(tok), payload)
	if err != nil {
		return nil, err
	}
	if err := classifyStatus(a.Name(), status, string(body)); err != nil {
		return nil, err
	}

	var resp mpesaSTKResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("mpesa: invalid STK response: %w", err)
	}
	if resp.ResponseCode != "0" {
		return nil, &ProviderError{Provider: a.Name(), Reason: ErrInvalidRequest, Message: resp.ResponseDescription}
	}

	a.logger.Debugf("mpesa STK push accepted: checkout=%s reference=%s", resp.CheckoutRequestID, req.Reference)

	return &InitiateResult{
		ProviderRef: resp.CheckoutRequestID,
		Status:      model.StatusPending,
		Message:     resp.CustomerMessage,
	}, nil
}

type mpesaQueryResponse struct {
	ResponseCode        string `json:"ResponseCode"`
	ResultCode          string `json:"ResultCode"`
	ResultDesc          string `json:"ResultDesc"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseDescription string `json:"ResponseDescription"`
}

// Status queries an STK push by checkout request ID.
func (a *MpesaAdapter) Status(ctx context.Context, providerRef string) (*StatusResult, error) {
	tok, err := a.token(ctx)
	if err != nil {
		return nil, err
	}

	ts := a.now().Format("20060102150405")
	password := base64.StdEncoding.EncodeToString([]byte(a.shortcode + a.passkey + ts))

	payload := map[string]string{
		"BusinessShortCode": a.shortcode,
		"Password":          password,
		"Timestamp":         ts,
		"CheckoutRequestID": providerRef,
	}

	status, body, err := a.client.PostJSON(ctx, "/mpesa/stkpushquery/v1/query", bearer(tok), payload)
	if err != nil {
		return nil, err
	}
	if err := classifyStatus(a.Name(), status, string(body)); err != nil {
		return nil, err
	}

	var resp mpesaQueryResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("mpesa: invalid query response: %w", err)
	}

	result := &StatusResult{ProviderRef: providerRef, Message: resp.ResultDesc}
	switch resp.ResultCode {
	case "0":
		result.Status = model.StatusSuccess
	case "1032": // cancelled by user
		result.Status = model.StatusCancelled
	case "": // still processing
		result.Status = model.StatusPending
	default:
		result.Status = model.StatusFailed
	}

	return result, nil
}

// Refund reverses a completed payment through the Daraja reversal API.
func (a *MpesaAdapter) Refund(ctx context.Context, providerRef string, amount decimal.Decimal, reason string) (*RefundResult, error) {
	tok, err := a.token(ctx)
	if err != nil {
		return nil, err
	}

	payload := map[string]string{
		"CommandID":              "TransactionReversal",
		"TransactionID":          providerRef,
		"Amount":                 amount.Round(0).String(),
		"ReceiverParty":          a.shortcode,
		"RecieverIdentifierType": "11",
		"Remarks":                reason,
	}

	status, body, err := a.client.PostJSON(ctx, "/mpesa/reversal/v1/request", bearer(tok), payload)
	if err != nil {
		return nil, err
	}
	if err := classifyStatus(a.Name(), status, string(body)); err != nil {
		return nil, err
	}

	var resp mpesaSTKResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("mpesa: invalid reversal response: %w", err)
	}
	if resp.ResponseCode != "0" {
		return nil, &ProviderError{Provider: a.Name(), Reason: ErrInvalidRequest, Message: resp.ResponseDescription}
	}

	return &RefundResult{
		RefundRef: resp.CheckoutRequestID,
		Status:    model.StatusPending,
		Message:   resp.ResponseDescription,
	}, nil
}

// HealthCheck probes the OAuth token endpoint, bypassing the token cache.
func (a *MpesaAdapter) HealthCheck(ctx context.Context) error {
	basic := base64.StdEncoding.EncodeToString([]byte(a.consumerKey + ":" + a.secret))
	status, body, err := a.client.Get(ctx, "/oauth/v1/generate?grant_type=client_credentials", map[string]string{
		"Authorization": "Basic " + basic,
	})
	if err != nil {
		return err
	}
	return classifyStatus(a.Name(), status, string(body))
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}
