package models

import "time"

// SubscriptionTier of a user account.
type SubscriptionTier string

const (
	SubscriptionFree    SubscriptionTier = "free"
	SubscriptionBasic   SubscriptionTier = "basic"
	SubscriptionPremium SubscriptionTier = "premium"
)

// EventContext is the trigger payload handed to every workflow run.
type EventContext struct {
	EventType string         `json:"event_type"`
	EventData map[string]any `json:"event_data"`
	Timestamp time.Time      `json:"timestamp"`
	Source    string         `json:"source"`
	User      *UserContext   `json:"user,omitempty"`
}

// UserContext is the user snapshot a workflow runs for.
type UserContext struct {
	UserID           string           `json:"user_id"`
	Email            string           `json:"email"`
	Name             string           `json:"name"`
	SubscriptionTier SubscriptionTier `json:"subscription_tier"`
	JoinedAt         time.Time        `json:"joined_at"`
	LastActiveAt     time.Time        `json:"last_active_at"`
	Properties       map[string]any   `json:"properties,omitempty"`
}

// Property returns a value from the user's free-form properties.
func (u *UserContext) Property(key string) (any, bool) {
	if u == nil || u.Properties == nil {
		return nil, false
	}

	v, ok := u.Properties[key]

	return v, ok
}

// Fields flattens the typed attributes into a map keyed by their JSON names.
func (u *UserContext) Fields() map[string]any {
	if u == nil {
		return nil
	}

	return map[string]any{
		"user_id":           u.UserID,
		"userId":            u.UserID,
		"email":             u.Email,
		"name":              u.Name,
		"subscription_tier": string(u.SubscriptionTier),
		"subscriptionTier":  string(u.SubscriptionTier),
		"joined_at":         u.JoinedAt,
		"joinedAt":          u.JoinedAt,
		"last_active_at":    u.LastActiveAt,
		"lastActiveAt":      u.LastActiveAt,
	}
}
