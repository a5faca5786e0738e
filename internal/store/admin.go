package store

import (
	"context"
	"database/sql"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/dukerupert/memberqr/internal/model"
)

type AdminStore struct {
	db *sql.DB
}

// NewAdminStore creates a new AdminStore.
func NewAdminStore(db *sql.DB) *AdminStore {
	return &AdminStore{db: db}
}

func (s *AdminStore) Create(ctx context.Context, username, password string) (*model.AdminUser, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO admin_users (username, password_hash) VALUES (?, ?)`,
		username, hash,
	)
	if err != nil {
		return nil, fmt.Errorf("insert admin: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *AdminStore) GetByID(ctx context.Context, id int64) (*model.AdminUser, error) {
	var a model.AdminUser
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, created_at FROM admin_users WHERE id = ?`, id,
	).Scan(&a.ID, &a.Username, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get admin: %w", err)
	}
	return &a, nil
}

// Verify reports whether username and password match an admin account.
func (s *AdminStore) Verify(ctx context.Context, username, password string) (bool, error) {
	var hash string
	err := s.db.QueryRowContext(ctx,
		`SELECT password_hash FROM admin_users WHERE username = ?`, username,
	).Scan(&hash)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get admin hash: %w", err)
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil, nil
}

// EnsureDefault creates the given admin account when no admin exists yet.
// It reports whether an account was created.
func (s *AdminStore) EnsureDefault(ctx context.Context, username, password string) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM admin_users`).Scan(&n); err != nil {
		return false, fmt.Errorf("count admins: %w", err)
	}
	if n > 0 {
		return false, nil
	}
	if _, err := s.Create(ctx, username, password); err != nil {
		return false, err
	}
	return true, nil
}
