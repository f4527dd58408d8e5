package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Avanquish/DoughNation-sub000/internal/domain"
)

type UserRepo struct {
	db *sql.DB
}

func NewUserRepo(db *sql.DB) *UserRepo {
	return &UserRepo{db: db}
}

var _ domain.UserRepository = (*UserRepo)(nil)

// Upsert records a user seen in a verified token. An empty name keeps the
// stored one.
func (r *UserRepo) Upsert(ctx context.Context, u *domain.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, name, role, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			role = excluded.role,
			name = CASE WHEN excluded.name <> '' THEN excluded.name ELSE users.name END
	`, u.ID, u.Name, string(u.Role), u.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

func (r *UserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	u := &domain.User{}
	var role string
	var at timestamp
	err := r.db.QueryRowContext(ctx, `SELECT id, name, role, created_at FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Name, &role, &at)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	u.Role = domain.Role(role)
	u.CreatedAt = at.Time
	return u, nil
}
