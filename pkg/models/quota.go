package models

// QuotaUsage is the storage position of one user.
type QuotaUsage struct {
	UserID         int64   `json:"user_id"`
	UsedBytes      int64   `json:"used_bytes"`
	TotalBytes     int64   `json:"total_bytes"`
	AvailableBytes int64   `json:"available_bytes"`
	PercentUsed    float64 `json:"percent_used"`
}

// Stats summarizes the whole vault for one caller.
type Stats struct {
	TotalSizeBytes int64 `json:"total_size_bytes"`
	QuotaBytes     int64 `json:"quota_bytes"`
	FileCount      int64 `json:"file_count"`
}
