package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"detectserver/internal/model"

	"github.com/mattn/go-sqlite3"
)

// UserRepository implements repository.UserRepository for SQLite.
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a new SQLite user repository.
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a user. A taken username yields model.ErrConflict.
func (r *UserRepository) Create(ctx context.Context, user *model.User) (int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.ModifiedAt = user.CreatedAt

	result, err := r.db.Conn().ExecContext(ctx, `
		INSERT INTO users (username, full_name, password_hash, created_at, modified_at)
		VALUES (?, ?, ?, ?, ?)
	`, user.Username, user.FullName, user.PasswordHash, user.CreatedAt.UTC(), user.ModifiedAt.UTC())
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return 0, fmt.Errorf("%w: username %q", model.ErrConflict, user.Username)
		}
		return 0, fmt.Errorf("failed to insert user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read user id: %w", err)
	}
	user.ID = id
	return id, nil
}

// GetByID retrieves a user by primary key.
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*model.User, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	row := r.db.Conn().QueryRowContext(ctx, `
		SELECT id, username, full_name, password_hash, created_at, modified_at
		FROM users WHERE id = ?
	`, id)
	return scanUser(row, fmt.Sprintf("id %d", id))
}

// GetByUsername retrieves a user by unique username.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	row := r.db.Conn().QueryRowContext(ctx, `
		SELECT id, username, full_name, password_hash, created_at, modified_at
		FROM users WHERE username = ?
	`, username)
	return scanUser(row, fmt.Sprintf("username %q", username))
}

// Delete removes a user; their detection history goes with them.
func (r *UserRepository) Delete(ctx context.Context, id int64) error {
	r.db.Lock()
	defer r.db.Unlock()

	result, err := r.db.Conn().ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: user id %d", model.ErrNotFound, id)
	}
	return nil
}

func scanUser(row *sql.Row, what string) (*model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Username, &u.FullName, &u.PasswordHash, &u.CreatedAt, &u.ModifiedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: user %s", model.ErrNotFound, what)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return &u, nil
}
