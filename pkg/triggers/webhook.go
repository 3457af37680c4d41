package triggers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dukex/stride/pkg/models"
	"github.com/xeipuuv/gojsonschema"
)

const webhookSource = "webhook"

const (
	MessageWebhookNotFound    = "Webhook not found"
	MessageInvalidSignature   = "Invalid webhook signature"
	MessageInvalidPayload     = "Invalid webhook payload"
	MessageTransformFailed    = "Webhook transform failed"
	MessageWebhookProcessed   = "Webhook processed"
	MessageWebhookHandlerFail = "Webhook processed with handler errors"
)

var (
	ErrWebhookExists   = errors.New("webhook already registered")
	ErrEmptyWebhookID  = errors.New("webhook id is required")
	ErrSchemaViolation = errors.New("payload does not match schema")
)

// Transformer turns a verified webhook payload into event data and, when the
// payload identifies one, a user.
type Transformer func(payload map[string]any, headers map[string]string) (map[string]any, *models.UserContext, error)

// Webhook is an inbound endpoint. An empty Secret disables signature checks; a
// nil Schema disables payload validation.
type Webhook struct {
	Secret    string
	Transform Transformer
	Schema    map[string]any
	// EventType defaults to WebhookEventType(id).
	EventType string
}

type WebhookResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// WebhookEventType is the event type a webhook emits unless configured otherwise.
func WebhookEventType(id string) string {
	return "webhook:" + id
}

func (m *Manager) RegisterWebhook(id string, webhook Webhook) error {
	if id == "" {
		return ErrEmptyWebhookID
	}

	if webhook.EventType == "" {
		webhook.EventType = WebhookEventType(id)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.webhooks[id]; exists {
		return fmt.Errorf("%w: %s", ErrWebhookExists, id)
	}

	m.webhooks[id] = webhook

	m.logger.Info("webhook registered", "webhook_id", id, "event_type", webhook.EventType, "signed", webhook.Secret != "")

	return nil
}

func (m *Manager) UnregisterWebhook(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.webhooks[id]; exists {
		delete(m.webhooks, id)
		m.logger.Info("webhook unregistered", "webhook_id", id)
	}
}

// Webhook returns the registered webhook with the given id.
func (m *Manager) Webhook(id string) (Webhook, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	w, ok := m.webhooks[id]

	return w, ok
}

// HandleWebhook verifies, validates and transforms payload, then triggers the
// webhook's event with source "webhook". Header names are matched case-insensitively.
func (m *Manager) HandleWebhook(ctx context.Context, id string, headers map[string]string, payload []byte) WebhookResponse {
	logger := m.logger.With("webhook_id", id)

	webhook, ok := m.Webhook(id)
	if !ok {
		logger.WarnContext(ctx, "unknown webhook")
		return WebhookResponse{Success: false, Message: MessageWebhookNotFound}
	}

	if !m.VerifyRequest(webhook.Secret, headers, payload) {
		logger.WarnContext(ctx, "webhook signature rejected", "signature_present", headerValue(headers, SignatureHeaders...) != "")
		return WebhookResponse{Success: false, Message: MessageInvalidSignature}
	}

	body, err := decodePayload(payload)
	if err != nil {
		logger.WarnContext(ctx, "webhook payload is not JSON", "error", err)
		return WebhookResponse{Success: false, Message: MessageInvalidPayload}
	}

	if webhook.Schema != nil {
		if err := validateSchema(webhook.Schema, body); err != nil {
			logger.WarnContext(ctx, "webhook payload rejected by schema", "error", err)
			return WebhookResponse{Success: false, Message: MessageInvalidPayload + ": " + err.Error()}
		}
	}

	data, user := body, (*models.UserContext)(nil)

	if webhook.Transform != nil {
		data, user, err = webhook.Transform(body, headers)
		if err != nil {
			logger.ErrorContext(ctx, "webhook transform failed", "error", err)
			return WebhookResponse{Success: false, Message: MessageTransformFailed}
		}
	}

	if err := m.TriggerEvent(ctx, webhook.EventType, data, user, webhookSource); err != nil {
		return WebhookResponse{Success: true, Message: MessageWebhookHandlerFail}
	}

	return WebhookResponse{Success: true, Message: MessageWebhookProcessed}
}

// VerifyRequest checks the signature header of a request against secret. An
// empty secret accepts every request.
func (m *Manager) VerifyRequest(secret string, headers map[string]string, payload []byte) bool {
	if secret == "" {
		return true
	}

	signature := headerValue(headers, SignatureHeaders...)

	return signature != "" && m.verifier.Verify(secret, payload, signature)
}

// decodePayload accepts an empty body, a JSON object, or any other JSON value,
// which is wrapped under "payload".
func decodePayload(payload []byte) (map[string]any, error) {
	if len(strings.TrimSpace(string(payload))) == 0 {
		return map[string]any{}, nil
	}

	var raw any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, err
	}

	if obj, ok := raw.(map[string]any); ok {
		return obj, nil
	}

	return map[string]any{"payload": raw}, nil
}

func validateSchema(schema map[string]any, data map[string]any) error {
	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schema), gojsonschema.NewGoLoader(data))
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}

	if result.Valid() {
		return nil
	}

	violations := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		violations = append(violations, desc.String())
	}

	return fmt.Errorf("%w: %s", ErrSchemaViolation, strings.Join(violations, "; "))
}

func headerValue(headers map[string]string, names ...string) string {
	for _, name := range names {
		for k, v := range headers {
			if strings.EqualFold(k, name) && v != "" {
				return v
			}
		}
	}

	return ""
}
