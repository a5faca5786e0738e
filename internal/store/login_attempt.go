package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/memberqr/internal/model"
)

// timestampLayout matches SQLite's CURRENT_TIMESTAMP text form so that
// explicit timestamps compare correctly against column defaults.
const timestampLayout = "2006-01-02 15:04:05"

// LoginAttemptStore is the append-only member login audit log.
type LoginAttemptStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewLoginAttemptStore creates a new LoginAttemptStore.
func NewLoginAttemptStore(db *sql.DB) *LoginAttemptStore {
	return &LoginAttemptStore{db: db, now: time.Now}
}

func (s *LoginAttemptStore) Record(ctx context.Context, memberID string, success bool) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO login_attempts (member_id, attempted_at, success) VALUES (?, ?, ?)`,
		memberID, s.now().UTC().Format(timestampLayout), success,
	)
	if err != nil {
		return fmt.Errorf("record login attempt: %w", err)
	}
	return nil
}

// ListByMember returns a member's attempts, newest first.
func (s *LoginAttemptStore) ListByMember(ctx context.Context, memberID string, limit int) ([]model.LoginAttempt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, member_id, attempted_at, success FROM login_attempts
		 WHERE member_id = ? ORDER BY attempted_at DESC, id DESC LIMIT ?`,
		memberID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list login attempts: %w", err)
	}
	defer rows.Close()

	var attempts []model.LoginAttempt
	for rows.Next() {
		var a model.LoginAttempt
		if err := rows.Scan(&a.ID, &a.MemberID, &a.AttemptedAt, &a.Success); err != nil {
			return nil, fmt.Errorf("scan login attempt: %w", err)
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}
