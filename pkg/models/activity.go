package models

import (
	"encoding/json"
	"time"
)

// EventType discriminates activity events in their JSON form.
type EventType string

const (
	EventUpload   EventType = "upload"
	EventDownload EventType = "download"
)

// Event is one entry of the activity feed. The set of implementations is
// closed: UploadEvent and DownloadEvent.
type Event interface {
	Type() EventType
	OccurredAt() time.Time
	event()
}

// UploadEvent is a file the user uploaded.
type UploadEvent struct {
	ID       int64
	FileID   int64
	FileName string
	Size     int64
	At       time.Time
}

func (UploadEvent) Type() EventType         { return EventUpload }
func (e UploadEvent) OccurredAt() time.Time { return e.At }
func (UploadEvent) event()                  {}

func (e UploadEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type     EventType `json:"type"`
		ID       int64     `json:"id"`
		FileID   int64     `json:"file_id"`
		FileName string    `json:"file_name"`
		Size     int64     `json:"size"`
		At       time.Time `json:"at"`
	}{EventUpload, e.ID, e.FileID, e.FileName, e.Size, e.At})
}

// DownloadEvent is a download of one of the user's shares.
type DownloadEvent struct {
	ID        int64
	ShareID   int64
	VersionID int64
	FileName  string
	At        time.Time
	IP        string
	UserAgent string
	Success   bool
}

func (DownloadEvent) Type() EventType         { return EventDownload }
func (e DownloadEvent) OccurredAt() time.Time { return e.At }
func (DownloadEvent) event()                  {}

func (e DownloadEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type      EventType `json:"type"`
		ID        int64     `json:"id"`
		ShareID   int64     `json:"share_id"`
		VersionID int64     `json:"version_id"`
		FileName  string    `json:"file_name"`
		At        time.Time `json:"at"`
		IP        string    `json:"ip"`
		UserAgent string    `json:"user_agent"`
		Success   bool      `json:"success"`
	}{EventDownload, e.ID, e.ShareID, e.VersionID, e.FileName, e.At, e.IP, e.UserAgent, e.Success})
}

// ActivityFeed is the merged, newest-first activity of one user.
type ActivityFeed struct {
	UserID int64   `json:"user_id"`
	Count  int     `json:"count"`
	Events []Event `json:"events"`
}
