package engine

import (
	"context"

	"github.com/dukex/stride/pkg/models"
	"github.com/qmuntal/stateless"
)

const (
	triggerStart    = "start"
	triggerComplete = "complete"
	triggerFail     = "fail"
	triggerCancel   = "cancel"
)

// newLifecycle drives execution.Status through
// pending -> running -> completed | failed | cancelled.
// Terminal states accept no trigger.
func newLifecycle(execution *models.WorkflowExecution) *stateless.StateMachine {
	sm := stateless.NewStateMachineWithExternalStorage(
		func(_ context.Context) (stateless.State, error) {
			return execution.Status, nil
		},
		func(_ context.Context, state stateless.State) error {
			execution.Status = state.(models.ExecutionStatus)
			return nil
		},
		stateless.FiringImmediate,
	)

	sm.Configure(models.ExecutionStatusPending).
		Permit(triggerStart, models.ExecutionStatusRunning).
		Permit(triggerCancel, models.ExecutionStatusCancelled)

	sm.Configure(models.ExecutionStatusRunning).
		Permit(triggerComplete, models.ExecutionStatusCompleted).
		Permit(triggerFail, models.ExecutionStatusFailed).
		Permit(triggerCancel, models.ExecutionStatusCancelled)

	sm.Configure(models.ExecutionStatusCompleted)
	sm.Configure(models.ExecutionStatusFailed)
	sm.Configure(models.ExecutionStatusCancelled)

	return sm
}
