package scheduler

import (
	"context"
	"fmt"
	"slices"

	"github.com/dukex/stride/pkg/models"
	"github.com/dukex/stride/pkg/persistence"
)

// StoreSelector selects every stored user, narrowed to the trigger's audience
// when one is configured.
type StoreSelector struct {
	users persistence.UserStore
}

func NewStoreSelector(users persistence.UserStore) *StoreSelector {
	return &StoreSelector{users: users}
}

func (s *StoreSelector) SelectUsers(ctx context.Context, workflow *models.Workflow) ([]*models.UserContext, error) {
	users, err := s.users.Users(ctx)
	if err != nil {
		return nil, fmt.Errorf("select users for %s: %w", workflow.ID, err)
	}

	audience := workflow.Trigger.Audience()
	if len(audience) == 0 {
		return users, nil
	}

	selected := make([]*models.UserContext, 0, len(users))

	for _, user := range users {
		if slices.Contains(audience, user.SubscriptionTier) {
			selected = append(selected, user)
		}
	}

	return selected, nil
}
