// Package conditions evaluates workflow condition sets against an event and a user.
package conditions

import (
	"log/slog"
	"math"
	"time"

	"github.com/dukex/stride/pkg/models"
	"github.com/dukex/stride/pkg/template"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/cast"
)

// NoWorkoutSentinel is reported by days_since_last_workout when the user has no recorded workout.
const NoWorkoutSentinel = 999

const day = 24 * time.Hour

type Evaluator struct {
	clock    clockwork.Clock
	location *time.Location
	logger   *slog.Logger
}

type Option func(*Evaluator)

// WithLocation sets the timezone used by date_range fields. Defaults to UTC.
func WithLocation(loc *time.Location) Option {
	return func(e *Evaluator) {
		if loc != nil {
			e.location = loc
		}
	}
}

func NewEvaluator(clock clockwork.Clock, logger *slog.Logger, opts ...Option) *Evaluator {
	e := &Evaluator{
		clock:    clock,
		location: time.UTC,
		logger:   logger.With("module", "condition_evaluator"),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Evaluate returns AND-group && OR-group. Either group is satisfied when empty.
func (e *Evaluator) Evaluate(conditions []models.WorkflowCondition, event models.EventContext, user *models.UserContext) bool {
	if len(conditions) == 0 {
		return true
	}

	andOK := true
	orOK := true
	orSeen := false

	for _, c := range conditions {
		if c.IsOr() {
			if !orSeen {
				orSeen = true
				orOK = false
			}

			if !orOK && e.EvaluateCondition(c, event, user) {
				orOK = true
			}

			continue
		}

		if andOK && !e.EvaluateCondition(c, event, user) {
			andOK = false
		}
	}

	return andOK && orOK
}

// EvaluateCondition resolves the field and applies the operator. It never panics;
// anything unresolvable fails the condition.
func (e *Evaluator) EvaluateCondition(c models.WorkflowCondition, event models.EventContext, user *models.UserContext) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("condition evaluation panicked", "field", c.Field, "type", c.Type, "panic", r)
			ok = false
		}
	}()

	actual := e.resolve(c, event, user)
	ok = Compare(c.Operator, actual, c.Value)

	e.logger.Debug("condition evaluated",
		"type", c.Type,
		"field", c.Field,
		"operator", c.Operator,
		"actual", actual,
		"expected", c.Value,
		"result", ok,
	)

	return ok
}

func (e *Evaluator) now() time.Time {
	return e.clock.Now().In(e.location)
}

func (e *Evaluator) resolve(c models.WorkflowCondition, event models.EventContext, user *models.UserContext) any {
	switch c.Type {
	case models.ConditionTypeUserProperty:
		return e.userProperty(c.Field, user)
	case models.ConditionTypeDateRange:
		return e.dateField(c.Field)
	case models.ConditionTypeDataCondition:
		v, _ := template.Lookup(event.EventData, c.Field)
		return v
	case models.ConditionTypeCustom:
		return e.customField(c.Field, user)
	default:
		return nil
	}
}

func (e *Evaluator) userProperty(field string, user *models.UserContext) any {
	if user == nil {
		return nil
	}

	switch field {
	case "days_since_last_workout":
		raw, ok := user.Property("lastWorkoutDate")
		if !ok {
			return NoWorkoutSentinel
		}

		last, err := cast.ToTimeE(raw)
		if err != nil || last.IsZero() {
			return NoWorkoutSentinel
		}

		return daysBetween(last, e.now())
	case "workouts_last_week":
		if v, ok := user.Property("workoutsLastWeek"); ok {
			return v
		}

		return 0
	}

	v, _ := template.ResolveUser(user, field)

	return v
}

func (e *Evaluator) dateField(field string) any {
	now := e.now()

	switch field {
	case "current_hour":
		return now.Hour()
	case "current_day":
		return int(now.Weekday())
	case "current_date":
		return now.Format(time.DateOnly)
	default:
		return nil
	}
}

func (e *Evaluator) customField(field string, user *models.UserContext) any {
	switch field {
	case "is_weekend":
		wd := e.now().Weekday()
		return wd == time.Saturday || wd == time.Sunday
	}

	if user == nil {
		return nil
	}

	switch field {
	case "subscription_active":
		return user.SubscriptionTier != "" && user.SubscriptionTier != models.SubscriptionFree
	case "account_age_days":
		if user.JoinedAt.IsZero() {
			return nil
		}

		return daysBetween(user.JoinedAt, e.now())
	case "streak_length":
		return numericProperty(user, "currentStreak")
	case "total_workouts":
		return numericProperty(user, "totalWorkouts")
	default:
		return nil
	}
}

func numericProperty(user *models.UserContext, key string) any {
	v, ok := user.Property(key)
	if !ok {
		return 0
	}

	return v
}

func daysBetween(from, to time.Time) int {
	return int(math.Floor(float64(to.Sub(from)) / float64(day)))
}
