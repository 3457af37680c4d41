package file

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dukex/stride/pkg/models"
	"github.com/dukex/stride/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testWorkflow(id string) *models.Workflow {
	return &models.Workflow{
		ID:   id,
		Name: "Inactivity nudge",
		Trigger: models.WorkflowTrigger{
			Type:   models.TriggerTypeSchedule,
			Config: map[string]any{"cron": "0 9 * * 1"},
		},
		Actions: []models.WorkflowAction{
			{ID: "notify", Type: models.ActionTypeNotification, Config: map[string]any{"message": "Hi {{user.name}}"}},
		},
		Enabled: true,
	}
}

func TestNewPersistence(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "/tmp/test", NewPersistence("/tmp/test").root)
	assert.Equal(t, "/tmp/test", NewPersistence("file:///tmp/test").root)
}

func TestPersistence_HealthCheck(t *testing.T) {
	t.Parallel()

	assert.NoError(t, NewPersistence(t.TempDir()).HealthCheck(t.Context()))
	assert.Error(t, NewPersistence(filepath.Join(t.TempDir(), "missing")).HealthCheck(t.Context()))
	assert.NoError(t, NewPersistence(t.TempDir()).Close(t.Context()))
}

func TestPersistence_SaveWorkflow(t *testing.T) {
	t.Parallel()

	testDir := t.TempDir()
	p := NewPersistence(testDir)

	workflow := testWorkflow("weekly-nudge")
	require.NoError(t, p.SaveWorkflow(t.Context(), workflow))

	assert.FileExists(t, filepath.Join(testDir, "workflows", "weekly-nudge.json"))
	assert.False(t, workflow.CreatedAt.IsZero())
	assert.False(t, workflow.UpdatedAt.IsZero())

	got, err := p.WorkflowByID(t.Context(), "weekly-nudge")
	require.NoError(t, err)
	assert.Equal(t, workflow.Name, got.Name)
	assert.Equal(t, "0 9 * * 1", got.Trigger.CronExpression())
	require.Len(t, got.Actions, 1)
	assert.Equal(t, models.ActionTypeNotification, got.Actions[0].Type)
}

func TestPersistence_SaveWorkflow_KeepsCreatedAt(t *testing.T) {
	t.Parallel()

	p := NewPersistence(t.TempDir())

	created := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	workflow := testWorkflow("keep")
	workflow.CreatedAt = created

	require.NoError(t, p.SaveWorkflow(t.Context(), workflow))

	assert.Equal(t, created, workflow.CreatedAt)
	assert.True(t, workflow.UpdatedAt.After(created))
}

func TestPersistence_WorkflowByID_NotFound(t *testing.T) {
	t.Parallel()

	p := NewPersistence(t.TempDir())

	for _, id := range []string{"missing", "../escape", ""} {
		_, err := p.WorkflowByID(t.Context(), id)
		assert.True(t, persistence.IsWorkflowNotFound(err), id)
	}
}

func TestPersistence_SaveWorkflow_InvalidID(t *testing.T) {
	t.Parallel()

	p := NewPersistence(t.TempDir())

	err := p.SaveWorkflow(t.Context(), testWorkflow("a/b"))
	assert.ErrorIs(t, err, persistence.ErrInvalidID)
}

func TestPersistence_Workflows(t *testing.T) {
	t.Parallel()

	p := NewPersistence(t.TempDir())

	empty, err := p.Workflows(t.Context())
	require.NoError(t, err)
	assert.Empty(t, empty)

	first := testWorkflow("b-first")
	first.CreatedAt = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	second := testWorkflow("a-second")
	second.CreatedAt = time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, p.SaveWorkflow(t.Context(), second))
	require.NoError(t, p.SaveWorkflow(t.Context(), first))

	workflows, err := p.Workflows(t.Context())
	require.NoError(t, err)
	require.Len(t, workflows, 2)
	assert.Equal(t, "b-first", workflows[0].ID)
	assert.Equal(t, "a-second", workflows[1].ID)
}

func TestPersistence_DeleteWorkflow(t *testing.T) {
	t.Parallel()

	p := NewPersistence(t.TempDir())

	require.NoError(t, p.SaveWorkflow(t.Context(), testWorkflow("gone")))
	require.NoError(t, p.DeleteWorkflow(t.Context(), "gone"))
	require.NoError(t, p.DeleteWorkflow(t.Context(), "gone"))

	_, err := p.WorkflowByID(t.Context(), "gone")
	assert.True(t, persistence.IsWorkflowNotFound(err))
}

func TestPersistence_CorruptFile(t *testing.T) {
	t.Parallel()

	testDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(testDir, "workflows"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(testDir, "workflows", "broken.json"), []byte("{"), 0o600))

	p := NewPersistence(testDir)

	_, err := p.WorkflowByID(t.Context(), "broken")
	require.Error(t, err)
	assert.False(t, persistence.IsWorkflowNotFound(err))

	_, err = p.Workflows(t.Context())
	assert.Error(t, err)
}

func TestPersistence_Users(t *testing.T) {
	t.Parallel()

	p := NewPersistence(t.TempDir())

	joined := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, p.SaveUser(t.Context(), &models.UserContext{
		UserID:           "u2",
		Email:            "b@example.com",
		SubscriptionTier: models.SubscriptionPremium,
		JoinedAt:         joined,
		Properties:       map[string]any{"currentStreak": 4},
	}))
	require.NoError(t, p.SaveUser(t.Context(), &models.UserContext{UserID: "u1", Email: "a@example.com"}))

	user, err := p.UserByID(t.Context(), "u2")
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionPremium, user.SubscriptionTier)
	assert.True(t, joined.Equal(user.JoinedAt))
	assert.EqualValues(t, 4, user.Properties["currentStreak"])

	users, err := p.Users(t.Context())
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "u1", users[0].UserID)

	_, err = p.UserByID(t.Context(), "nobody")
	assert.True(t, persistence.IsUserNotFound(err))
}
