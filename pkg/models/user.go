package models

import "time"

// User is an account owning folders and files.
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	QuotaTotal   int64     `json:"quota_total"`
	QuotaUsed    int64     `json:"quota_used"`
	IsAdmin      bool      `json:"is_admin"`
	CreatedAt    time.Time `json:"created_at"`
}
