package models

import "time"

// Share exposes one file version through an unguessable token.
type Share struct {
	ID        int64      `json:"id"`
	UserID    int64      `json:"user_id"`
	FileID    int64      `json:"file_id"`
	VersionID int64      `json:"version_id"`
	Token     string     `json:"token"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the share can no longer be downloaded at now.
func (s *Share) Expired(now time.Time) bool {
	return s.ExpiresAt != nil && !now.Before(*s.ExpiresAt)
}

// DownloadLogEntry is one attempt to download a shared version.
// FileName is filled from the share -> version -> file join when read back.
type DownloadLogEntry struct {
	ID           int64     `json:"id"`
	ShareID      int64     `json:"share_id"`
	VersionID    int64     `json:"version_id"`
	DownloadedAt time.Time `json:"downloaded_at"`
	IP           string    `json:"ip"`
	UserAgent    string    `json:"user_agent"`
	Success      bool      `json:"success"`
	FileName     string    `json:"file_name,omitempty"`
}
