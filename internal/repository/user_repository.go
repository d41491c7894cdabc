package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/memo-service/internal/domain"
)

// UserRepository is the directory's backing store.
type UserRepository interface {
	Upsert(ctx context.Context, user *domain.User) error
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
}

type userRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a Postgres-backed implementation.
func NewUserRepository(pool *pgxpool.Pool) UserRepository {
	return &userRepository{pool: pool}
}

func (r *userRepository) Upsert(ctx context.Context, user *domain.User) error {
	const query = `
        INSERT INTO users (email, name, department, designation, status)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (email) DO UPDATE
            SET name=EXCLUDED.name, department=EXCLUDED.department,
                designation=EXCLUDED.designation, status=EXCLUDED.status, updated_at=NOW()
        RETURNING id, created_at, updated_at`

	if user.Status == "" {
		user.Status = domain.UserStatusActive
	}
	return r.pool.QueryRow(ctx, query,
		domain.NormalizeAddress(user.Email),
		user.Name,
		user.Department,
		user.Designation,
		user.Status,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	const query = `
        SELECT id, email, name, department, designation, status, created_at, updated_at
        FROM users WHERE email=$1`

	var user domain.User
	if err := r.pool.QueryRow(ctx, query, domain.NormalizeAddress(email)).Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.Department,
		&user.Designation,
		&user.Status,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &user, nil
}
