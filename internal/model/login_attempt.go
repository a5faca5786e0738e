package model

import "time"

type LoginAttempt struct {
	ID          int64     `json:"id"`
	MemberID    string    `json:"member_id"`
	AttemptedAt time.Time `json:"attempted_at"`
	Success     bool      `json:"success"`
}

type AdminUser struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}
