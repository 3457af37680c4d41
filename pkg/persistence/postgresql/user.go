package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/stride/pkg/models"
	"github.com/dukex/stride/pkg/persistence"
)

// UserRepository handles user profile database operations.
type UserRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewUserRepository(db *sql.DB, logger *slog.Logger) *UserRepository {
	return &UserRepository{db: db, logger: logger}
}

const selectUsers = `
	SELECT
		id
	  , email
	  , name
	  , subscription_tier
	  , joined_at
	  , last_active_at
	  , properties
	FROM stride_users
`

// GetAll returns every user ordered by id.
func (r *UserRepository) GetAll(ctx context.Context) ([]*models.UserContext, error) {
	rows, err := r.db.QueryContext(ctx, selectUsers+" ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	users := make([]*models.UserContext, 0)

	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}

		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}

	return users, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.UserContext, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx, selectUsers+" WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewUserError("UserByID", id, persistence.ErrUserNotFound)
		}

		return nil, fmt.Errorf("failed to scan user: %w", err)
	}

	return user, nil
}

// Save inserts the user or replaces every stored attribute.
func (r *UserRepository) Save(ctx context.Context, user *models.UserContext) error {
	if user.UserID == "" {
		return persistence.NewUserError("SaveUser", user.UserID, persistence.ErrInvalidID)
	}

	properties := user.Properties
	if properties == nil {
		properties = map[string]any{}
	}

	encoded, err := json.Marshal(properties)
	if err != nil {
		return fmt.Errorf("failed to marshal properties of user %s: %w", user.UserID, err)
	}

	tier := user.SubscriptionTier
	if tier == "" {
		tier = models.SubscriptionFree
	}

	query := `
		INSERT INTO stride_users (id, email, name, subscription_tier, joined_at, last_active_at, properties)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email
		  , name = EXCLUDED.name
		  , subscription_tier = EXCLUDED.subscription_tier
		  , joined_at = EXCLUDED.joined_at
		  , last_active_at = EXCLUDED.last_active_at
		  , properties = EXCLUDED.properties
	`

	_, err = r.db.ExecContext(ctx, query,
		user.UserID,
		user.Email,
		user.Name,
		string(tier),
		nullTime(user.JoinedAt),
		nullTime(user.LastActiveAt),
		encoded,
	)
	if err != nil {
		return persistence.NewUserError("SaveUser", user.UserID, err)
	}

	return nil
}

func scanUser(row rowScanner) (*models.UserContext, error) {
	var (
		user         models.UserContext
		tier         string
		joinedAt     sql.NullTime
		lastActiveAt sql.NullTime
		properties   []byte
	)

	err := row.Scan(&user.UserID, &user.Email, &user.Name, &tier, &joinedAt, &lastActiveAt, &properties)
	if err != nil {
		return nil, err
	}

	user.SubscriptionTier = models.SubscriptionTier(tier)

	if joinedAt.Valid {
		user.JoinedAt = joinedAt.Time.UTC()
	}

	if lastActiveAt.Valid {
		user.LastActiveAt = lastActiveAt.Time.UTC()
	}

	if len(properties) > 0 {
		if err := json.Unmarshal(properties, &user.Properties); err != nil {
			return nil, fmt.Errorf("failed to unmarshal properties: %w", err)
		}
	}

	return &user, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
