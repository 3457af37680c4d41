package models

import "time"

type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
)

// IsTerminal reports whether no further transition is possible.
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusFailed || s == ExecutionStatusCancelled
}

type ActionStatus string

const (
	ActionStatusPending   ActionStatus = "pending"
	ActionStatusRunning   ActionStatus = "running"
	ActionStatusCompleted ActionStatus = "completed"
	ActionStatusFailed    ActionStatus = "failed"
	ActionStatusSkipped   ActionStatus = "skipped"
)

// WorkflowExecution records one run of a workflow for one event and user.
type WorkflowExecution struct {
	ID              string            `json:"id"`
	WorkflowID      string            `json:"workflow_id"`
	TriggeredBy     WorkflowTrigger   `json:"triggered_by"`
	Status          ExecutionStatus   `json:"status"`
	Context         EventContext      `json:"context"`
	ExecutedActions []ActionExecution `json:"executed_actions"`
	Error           string            `json:"error,omitempty"`
	StartedAt       time.Time         `json:"started_at"`
	CompletedAt     *time.Time        `json:"completed_at,omitempty"`
	Duration        time.Duration     `json:"duration"`
}

// Clone returns a copy that shares no slices with the receiver.
func (e *WorkflowExecution) Clone() *WorkflowExecution {
	if e == nil {
		return nil
	}

	c := *e
	c.TriggeredBy = e.TriggeredBy.Clone()
	c.ExecutedActions = append([]ActionExecution(nil), e.ExecutedActions...)

	if e.CompletedAt != nil {
		completedAt := *e.CompletedAt
		c.CompletedAt = &completedAt
	}

	return &c
}

// ActionExecution records the outcome of one action inside an execution.
type ActionExecution struct {
	ActionID   string        `json:"action_id"`
	Status     ActionStatus  `json:"status"`
	Result     any           `json:"result,omitempty"`
	Error      string        `json:"error,omitempty"`
	Attempts   int           `json:"attempts"`
	ExecutedAt time.Time     `json:"executed_at"`
	Duration   time.Duration `json:"duration"`
}
