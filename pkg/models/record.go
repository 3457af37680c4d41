package models

import "time"

// ActionRecord is what a database action hands to its backing store.
type ActionRecord struct {
	ID         string         `json:"id"`
	Table      string         `json:"table"`
	Action     string         `json:"action"`
	Data       map[string]any `json:"data"`
	WorkflowID string         `json:"workflow_id,omitempty"`
	UserID     string         `json:"user_id,omitempty"`
	WrittenAt  time.Time      `json:"written_at"`
}
