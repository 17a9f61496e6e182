package repository

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/davidleathers/clinic-security-monitor/internal/domain/behavior"
	"github.com/davidleathers/clinic-security-monitor/internal/domain/errors"
)

// UserRepository reads the account mirror maintained by the auth subsystem
type UserRepository struct {
	db querier
}

func NewUserRepository(db querier) *UserRepository {
	return &UserRepository{db: db}
}

var _ behavior.UserDirectory = (*UserRepository)(nil)

func (r *UserRepository) GetUser(ctx context.Context, id uuid.UUID) (*behavior.User, error) {
	var u behavior.User
	err := r.db.QueryRow(ctx,
		`SELECT id, email, timezone FROM security_users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Email, &u.Timezone)
	if err != nil {
		return nil, mapError(err, "failed to load user", errors.ErrUserNotFound)
	}
	return &u, nil
}

// FindUsersByEmail matches case-insensitively
func (r *UserRepository) FindUsersByEmail(ctx context.Context, email string) ([]*behavior.User, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, email, timezone FROM security_users WHERE lower(email) = $1 ORDER BY id`,
		strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, mapError(err, "failed to query users", nil)
	}
	defer rows.Close()

	var users []*behavior.User
	for rows.Next() {
		var u behavior.User
		if err := rows.Scan(&u.ID, &u.Email, &u.Timezone); err != nil {
			return nil, mapError(err, "failed to scan user", nil)
		}
		users = append(users, &u)
	}
	return users, mapError(rows.Err(), "failed to iterate users", nil)
}

// Upsert mirrors an account record
func (r *UserRepository) Upsert(ctx context.Context, u *behavior.User) error {
	tz := u.Timezone
	if tz == "" {
		tz = "UTC"
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO security_users (id, email, timezone)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email, timezone = EXCLUDED.timezone`,
		u.ID, strings.ToLower(strings.TrimSpace(u.Email)), tz)
	return mapError(err, "failed to upsert user", nil)
}
