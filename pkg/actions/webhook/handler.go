// Package webhook delivers outbound HTTP callbacks for webhook actions.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukex/stride/pkg/actions"
	"github.com/dukex/stride/pkg/models"
	"github.com/dukex/stride/pkg/template"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	defaultTimeout     = 30 * time.Second
	maxResponseBody    = 1 << 20
	defaultContentType = "application/json"
)

var ErrUnexpectedStatus = errors.New("webhook returned non-success status")

type Response struct {
	ReceiptID  string    `json:"receipt_id"`
	URL        string    `json:"url"`
	StatusCode int       `json:"status_code"`
	Body       any       `json:"body,omitempty"`
	SentAt     time.Time `json:"sent_at"`
}

type Handler struct {
	client *http.Client
	clock  clockwork.Clock
	logger *slog.Logger
}

func NewHandler(clock clockwork.Clock, logger *slog.Logger) *Handler {
	return NewHandlerWithClient(&http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
		Timeout:   defaultTimeout,
	}, clock, logger)
}

func NewHandlerWithClient(client *http.Client, clock clockwork.Clock, logger *slog.Logger) *Handler {
	return &Handler{
		client: client,
		clock:  clock,
		logger: logger.With("module", "webhook_action"),
	}
}

// Execute posts the interpolated payload, with "event", "user" and "timestamp"
// injected, to config "url". Non-2xx responses are errors so the action can be retried.
func (h *Handler) Execute(ctx context.Context, config map[string]any, event models.EventContext, user *models.UserContext) (any, error) {
	rawURL, ok := actions.StringConfig(config, "url")
	if !ok {
		return nil, actions.MissingConfig("url")
	}

	url := template.Interpolate(rawURL, event, user)

	method, ok := actions.StringConfig(config, "method")
	if !ok {
		method = http.MethodPost
	}

	sentAt := h.clock.Now().UTC()

	body, err := json.Marshal(buildPayload(config, event, user, sentAt))
	if err != nil {
		return nil, fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build webhook request: %w", err)
	}

	req.Header.Set("Content-Type", defaultContentType)

	for k, v := range actions.MapConfig(config, "headers") {
		if s, ok := v.(string); ok {
			req.Header.Set(k, template.Interpolate(s, event, user))
		}
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("webhook request failed: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	result := Response{
		ReceiptID:  uuid.NewString(),
		URL:        url,
		StatusCode: resp.StatusCode,
		Body:       readBody(resp.Body),
		SentAt:     sentAt,
	}

	h.logger.InfoContext(ctx, "webhook delivered", "url", url, "status", resp.StatusCode, "receipt_id", result.ReceiptID)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return result, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	return result, nil
}

func buildPayload(config map[string]any, event models.EventContext, user *models.UserContext, ts time.Time) map[string]any {
	payload := map[string]any{}

	if raw := actions.MapConfig(config, "payload"); raw != nil {
		payload = template.InterpolateValue(raw, event, user).(map[string]any)
	}

	payload["event"] = event
	payload["user"] = user
	payload["timestamp"] = ts.Format(time.RFC3339)

	return payload
}

func readBody(r io.Reader) any {
	raw, err := io.ReadAll(io.LimitReader(r, maxResponseBody))
	if err != nil || len(raw) == 0 {
		return nil
	}

	var parsed any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return string(raw)
	}

	return parsed
}
