// Package triggers fans events out to registered handlers, turns inbound
// webhooks into events and emits the periodic system events.
package triggers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/stride/pkg/models"
	"github.com/dukex/stride/pkg/otelhelper"
	"github.com/dukex/stride/pkg/protocol"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const defaultFanOut = 16

type Manager struct {
	mu       sync.RWMutex
	handlers map[string][]protocol.EventHandler
	webhooks map[string]Webhook

	verifier SignatureVerifier
	clock    clockwork.Clock
	location *time.Location
	fanOut   int
	tracer   trace.Tracer
	logger   *slog.Logger

	runMu     sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	lastCheck time.Time
}

type Option func(*Manager)

// WithSignatureVerifier replaces the HMAC-SHA256 webhook verifier.
func WithSignatureVerifier(verifier SignatureVerifier) Option {
	return func(m *Manager) { m.verifier = verifier }
}

// WithLocation sets the timezone system events are computed in. Defaults to UTC.
func WithLocation(loc *time.Location) Option {
	return func(m *Manager) {
		if loc != nil {
			m.location = loc
		}
	}
}

// WithFanOut bounds how many handlers run at once for one event.
func WithFanOut(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.fanOut = n
		}
	}
}

func NewManager(clock clockwork.Clock, logger *slog.Logger, opts ...Option) *Manager {
	m := &Manager{
		handlers: make(map[string][]protocol.EventHandler),
		webhooks: make(map[string]Webhook),
		verifier: HMACVerifier{},
		clock:    clock,
		location: time.UTC,
		fanOut:   defaultFanOut,
		tracer:   otelhelper.Tracer("stride/triggers"),
		logger:   logger.With("module", "trigger_manager"),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// RegisterEventHandler appends handler to the handlers of eventType.
func (m *Manager) RegisterEventHandler(eventType string, handler protocol.EventHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.handlers[eventType] = append(m.handlers[eventType], handler)

	m.logger.Debug("event handler registered", "event_type", eventType, "handlers", len(m.handlers[eventType]))
}

// HasHandlers reports whether anything listens to eventType.
func (m *Manager) HasHandlers(eventType string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.handlers[eventType]) > 0
}

// TriggerEvent builds an event stamped with the current time and dispatches it.
func (m *Manager) TriggerEvent(
	ctx context.Context,
	eventType string,
	data map[string]any,
	user *models.UserContext,
	source string,
) error {
	if data == nil {
		data = map[string]any{}
	}

	return m.Dispatch(ctx, models.EventContext{
		EventType: eventType,
		EventData: data,
		Timestamp: m.clock.Now(),
		Source:    source,
		User:      user,
	})
}

// Dispatch hands event to every handler registered for its type. A failing or
// panicking handler does not affect the others; all failures come back joined.
func (m *Manager) Dispatch(ctx context.Context, event models.EventContext) error {
	m.mu.RLock()
	handlers := append([]protocol.EventHandler(nil), m.handlers[event.EventType]...)
	m.mu.RUnlock()

	logger := m.logger.With("event_type", event.EventType, "source", event.Source)

	if len(handlers) == 0 {
		logger.DebugContext(ctx, "no handlers for event")
		return nil
	}

	ctx, span := otelhelper.StartSpan(ctx, m.tracer, "trigger.dispatch",
		attribute.String(otelhelper.EventTypeKey, event.EventType),
		attribute.String(otelhelper.EventSourceKey, event.Source),
	)
	defer span.End()

	var (
		errMu sync.Mutex
		errs  []error
	)

	g := new(errgroup.Group)
	g.SetLimit(m.fanOut)

	for i, handler := range handlers {
		g.Go(func() error {
			if err := safeHandle(ctx, handler, event); err != nil {
				logger.ErrorContext(ctx, "event handler failed", "handler", i, "error", err)

				errMu.Lock()
				errs = append(errs, fmt.Errorf("handler %d: %w", i, err))
				errMu.Unlock()
			}

			return nil
		})
	}

	_ = g.Wait()

	err := errors.Join(errs...)
	otelhelper.SetError(span, err)

	logger.InfoContext(ctx, "event dispatched", "handlers", len(handlers), "failed", len(errs))

	return err
}

func safeHandle(ctx context.Context, handler protocol.EventHandler, event models.EventContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()

	return handler.Handle(ctx, event)
}
