package models

import "time"

// File is the catalog record of an uploaded object.
// OriginalName is display data only; bytes live under StoredName.
type File struct {
	ID           int64     `json:"id"`
	UserID       int64     `json:"user_id"`
	FolderID     *int64    `json:"folder_id"`
	OriginalName string    `json:"original_name"`
	StoredName   string    `json:"stored_name"`
	Mime         string    `json:"mime"`
	Size         int64     `json:"size"`
	CreatedAt    time.Time `json:"created_at"`
}

// FileVersion records the bytes behind a file at one point in time.
type FileVersion struct {
	ID         int64     `json:"id"`
	FileID     int64     `json:"file_id"`
	Version    int       `json:"version"`
	StoredName string    `json:"stored_name"`
	Size       int64     `json:"size"`
	Checksum   string    `json:"checksum"`
	CreatedAt  time.Time `json:"created_at"`
}

// UploadResult is the body returned for a stored upload.
type UploadResult struct {
	Message    string `json:"message"`
	ID         int64  `json:"id"`
	Filename   string `json:"filename"`
	StoredName string `json:"stored_name"`
	Size       int64  `json:"size"`
}
