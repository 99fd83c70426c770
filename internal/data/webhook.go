package data

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"PesaGate/internal/conf"
	"PesaGate/internal/model"

	"github.com/go-kratos/kratos/v2/log"
)

// WebhookService delivers resilience events to an operator-configured
// endpoint. The self-healer publishes through this interface and never
// blocks on delivery.
type WebhookService interface {
	NotifyCircuitBroken(ctx context.Context, event *model.CircuitBrokenEvent) error
	NotifyCircuitRecovered(ctx context.Context, event *model.CircuitRecoveredEvent) error
	NotifyFailover(ctx context.Context, event *model.FailoverEvent) error
}

// NewWebhookService selects the HTTP implementation when a webhook URL
// is configured, otherwise a log-only noop.
func NewWebhookService(c *conf.Bootstrap, logger log.Logger) WebhookService {
	if c != nil && c.Gateway != nil && c.Gateway.WebhookUrl != "" {
		return NewHTTPWebhookService(c.Gateway.WebhookUrl, logger)
	}
	return NewNoopWebhookService(logger)
}

// NoopWebhookService only logs events. Used when no webhook URL is
// configured.
type NoopWebhookService struct {
	logger *log.Helper
}

// NewNoopWebhookService creates a new noop webhook service
func NewNoopWebhookService(logger log.Logger) *NoopWebhookService {
	return &NoopWebhookService{
		logger: log.NewHelper(logger),
	}
}

// NotifyCircuitBroken logs circuit broken event
func (s *NoopWebhookService) NotifyCircuitBroken(ctx context.Context, event *model.CircuitBrokenEvent) error {
	s.logger.Infow("circuit broken (webhook disabled)",
		"provider", event.Provider,
		"failure_count", event.FailureCount,
		"broken_at", event.BrokenAt)
	return nil
}

// NotifyCircuitRecovered logs circuit recovered event
func (s *NoopWebhookService) NotifyCircuitRecovered(ctx context.Context, event *model.CircuitRecoveredEvent) error {
	s.logger.Infow("circuit recovered (webhook disabled)",
		"provider", event.Provider,
		"healing_attempts", event.HealingAttempts,
		"recovered_at", event.RecoveredAt)
	return nil
}

// NotifyFailover logs failover event
func (s *NoopWebhookService) NotifyFailover(ctx context.Context, event *model.FailoverEvent) error {
	s.logger.Infow("failover signaled (webhook disabled)",
		"provider", event.Provider,
		"target_backup", event.TargetBackup,
		"signaled_at", event.SignaledAt)
	return nil
}

// HTTPWebhookService POSTs events as JSON to the configured URL.
type HTTPWebhookService struct {
	url    string
	client *http.Client
	logger *log.Helper
}

// NewHTTPWebhookService creates a webhook service posting to url.
func NewHTTPWebhookService(url string, logger log.Logger) *HTTPWebhookService {
	return &HTTPWebhookService{
		url: url,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: log.NewHelper(logger),
	}
}

// webhookPayload is the envelope posted for every event kind.
type webhookPayload struct {
	Event     string      `json:"event"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// NotifyCircuitBroken posts a circuit broken event
func (s *HTTPWebhookService) NotifyCircuitBroken(ctx context.Context, event *model.CircuitBrokenEvent) error {
	return s.post(ctx, "circuit.broken", event)
}

// NotifyCircuitRecovered posts a circuit recovered event
func (s *HTTPWebhookService) NotifyCircuitRecovered(ctx context.Context, event *model.CircuitRecoveredEvent) error {
	return s.post(ctx, "circuit.recovered", event)
}

// NotifyFailover posts a failover event
func (s *HTTPWebhookService) NotifyFailover(ctx context.Context, event *model.FailoverEvent) error {
	return s.post(ctx, "provider.failover", event)
}

func (s *HTTPWebhookService) post(ctx context.Context, eventType string, data interface{}) error {
	payload := webhookPayload{
		Event:     eventType,
		Timestamp: time.Now(),
		Data:      data,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Warnw("webhook delivery failed", "event", eventType, "error", err)
		return fmt.Errorf("webhook delivery failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		s.logger.Warnw("webhook endpoint rejected event", "event", eventType, "status", resp.StatusCode)
		return fmt.Errorf("webhook endpoint returned status %d", resp.StatusCode)
	}

	s.logger.Debugw("webhook delivered", "event", eventType)
	return nil
}
