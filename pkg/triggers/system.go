package triggers

import (
	"context"
	"time"
)

const systemSource = "system"

const (
	EventDailySummary  = "daily_summary"
	EventWeeklyReview  = "weekly_review"
	EventMonthlyReport = "monthly_report"
)

// CheckSystemEvents emits the calendar events due at now, evaluated in the
// manager's location, and returns their types. Nothing is due outside 00:00.
// A minute that was already checked is not emitted twice.
func (m *Manager) CheckSystemEvents(ctx context.Context, now time.Time) []string {
	now = now.In(m.location)
	if now.Hour() != 0 || now.Minute() != 0 {
		return nil
	}

	minute := now.Truncate(time.Minute)

	m.runMu.Lock()
	if m.lastCheck.Equal(minute) {
		m.runMu.Unlock()
		return nil
	}
	m.lastCheck = minute
	m.runMu.Unlock()

	due := []string{EventDailySummary}

	if now.Weekday() == time.Monday {
		due = append(due, EventWeeklyReview)
	}

	if now.Day() == 1 {
		due = append(due, EventMonthlyReport)
	}

	for _, eventType := range due {
		data := map[string]any{"date": now.Format(time.DateOnly)}

		if err := m.TriggerEvent(ctx, eventType, data, nil, systemSource); err != nil {
			m.logger.ErrorContext(ctx, "system event handlers failed", "event_type", eventType, "error", err)
		}
	}

	return due
}

// Start checks for system events once a minute until ctx is done or Stop is called.
// Calling Start on a running manager does nothing.
func (m *Manager) Start(ctx context.Context) {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	if m.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})

	ticker := m.clock.NewTicker(time.Minute)

	go func(done chan struct{}) {
		defer close(done)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.Chan():
				m.CheckSystemEvents(ctx, now)
			}
		}
	}(m.done)

	m.logger.Info("system event ticker started", "location", m.location.String())
}

// Stop halts the ticker started by Start and waits for it to exit.
func (m *Manager) Stop() {
	m.runMu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.runMu.Unlock()

	if cancel == nil {
		return
	}

	cancel()
	<-done

	m.logger.Info("system event ticker stopped")
}
