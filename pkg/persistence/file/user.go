package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/dukex/stride/pkg/models"
	"github.com/dukex/stride/pkg/persistence"
)

// UserRepository stores user profiles as JSON files.
type UserRepository struct {
	docs *documents
}

func NewUserRepository(root string) *UserRepository {
	return &UserRepository{docs: &documents{dir: filepath.Join(root, usersDir)}}
}

// GetAll returns every stored user ordered by id.
func (ur *UserRepository) GetAll(ctx context.Context) ([]*models.UserContext, error) {
	ids, err := ur.docs.ids()
	if err != nil {
		return nil, fmt.Errorf("failed to list user files: %w", err)
	}

	users := make([]*models.UserContext, 0, len(ids))

	for _, id := range ids {
		user, err := ur.GetByID(ctx, id)
		if err != nil {
			if persistence.IsUserNotFound(err) {
				continue
			}

			return nil, err
		}

		users = append(users, user)
	}

	return users, nil
}

func (ur *UserRepository) GetByID(_ context.Context, id string) (*models.UserContext, error) {
	var user models.UserContext

	err := ur.docs.read(id, &user)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, persistence.NewUserError("UserByID", id, persistence.ErrUserNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to fetch user %s: %w", id, err)
	}

	return &user, nil
}

func (ur *UserRepository) Save(_ context.Context, user *models.UserContext) error {
	if err := ur.docs.write(user.UserID, user); err != nil {
		return persistence.NewUserError("SaveUser", user.UserID, err)
	}

	return nil
}
