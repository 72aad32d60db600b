package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"

	"github.com/tasksched/tasksched/internal/domain"
)

const pgUniqueViolation = "23505"

const userColumns = `id, name, email, password_hash, auth_provider, provider_id, picture_url, created_at, updated_at`

// UserRepository handles identity row access.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByEmail retrieves a user by email. Emails are stored lowercased, so
// callers must normalize before lookup.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	var user domain.User
	err := r.db.GetContext(ctx, &user,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return &user, nil
}

// ExistsByEmail reports whether a user row exists for the email.
func (r *UserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM users WHERE email = $1)`, email)
	if err != nil {
		return false, fmt.Errorf("check email exists: %w", err)
	}
	return exists, nil
}

// Save inserts the user when it has no ID and updates it by ID otherwise.
// Inserting a duplicate email returns domain.ErrConflict.
func (r *UserRepository) Save(ctx context.Context, user domain.User) (*domain.User, error) {
	var result domain.User
	var err error

	if user.ID == 0 {
		err = r.db.QueryRowxContext(ctx,
			`INSERT INTO users (name, email, password_hash, auth_provider, provider_id, picture_url)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 RETURNING `+userColumns,
			user.Name, user.Email, user.PasswordHash, user.Provider, user.ProviderID, user.PictureURL,
		).StructScan(&result)
	} else {
		err = r.db.QueryRowxContext(ctx,
			`UPDATE users
			 SET name = $2, email = $3, password_hash = $4, auth_provider = $5,
			     provider_id = $6, picture_url = $7, updated_at = NOW()
			 WHERE id = $1
			 RETURNING `+userColumns,
			user.ID, user.Name, user.Email, user.PasswordHash, user.Provider, user.ProviderID, user.PictureURL,
		).StructScan(&result)
	}
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, fmt.Errorf("save user: %w", domain.ErrConflict)
		}
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("save user: %w", err)
	}
	return &result, nil
}

// UpsertByEmail atomically creates the user or, when the email is already
// taken, refreshes only the provider linkage fields of the existing row.
// Name and password hash of an existing account are left untouched, which is
// what keeps a linked password account loggable with its original password.
// The unique index on email makes concurrent first logins for the same
// address converge on one row instead of racing a read-then-write check.
func (r *UserRepository) UpsertByEmail(ctx context.Context, user domain.User) (*domain.User, error) {
	var result domain.User
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO users (name, email, password_hash, auth_provider, provider_id, picture_url)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (email)
		 DO UPDATE SET auth_provider = EXCLUDED.auth_provider,
		               provider_id = EXCLUDED.provider_id,
		               picture_url = EXCLUDED.picture_url,
		               updated_at = NOW()
		 RETURNING `+userColumns,
		user.Name, user.Email, user.PasswordHash, user.Provider, user.ProviderID, user.PictureURL,
	).StructScan(&result)
	if err != nil {
		return nil, fmt.Errorf("upsert user by email: %w", err)
	}
	return &result, nil
}
