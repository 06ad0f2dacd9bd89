// Package activity merges a user's uploads and share downloads into one feed.
package activity

import (
	"context"
	"fmt"
	"slices"

	"coffrefort/pkg/models"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Source reads the two event logs, each newest first.
type Source interface {
	RecentUploads(ctx context.Context, userID int64, limit int) ([]models.File, error)
	RecentDownloads(ctx context.Context, userID int64, limit int) ([]models.DownloadLogEntry, error)
}

type Aggregator struct {
	source Source
}

func NewAggregator(source Source) *Aggregator {
	return &Aggregator{source: source}
}

// Feed returns at most limit events of userID, newest first.
//
// Each log contributes at most limit rows, so the result is exact: any event
// in the global top limit is within the top limit of its own log.
func (a *Aggregator) Feed(ctx context.Context, userID int64, limit int) (*models.ActivityFeed, error) {
	limit = NormalizeLimit(limit)

	uploads, err := a.source.RecentUploads(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent uploads: %w", err)
	}
	downloads, err := a.source.RecentDownloads(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent downloads: %w", err)
	}

	events := Merge(uploads, downloads, limit)
	return &models.ActivityFeed{
		UserID: userID,
		Count:  len(events),
		Events: events,
	}, nil
}

// Merge tags both logs, sorts them newest first and keeps the first limit.
// Events with equal timestamps keep uploads before downloads.
func Merge(uploads []models.File, downloads []models.DownloadLogEntry, limit int) []models.Event {
	events := make([]models.Event, 0, len(uploads)+len(downloads))
	for _, file := range uploads {
		events = append(events, models.UploadEvent{
			ID:       file.ID,
			FileID:   file.ID,
			FileName: file.OriginalName,
			Size:     file.Size,
			At:       file.CreatedAt,
		})
	}
	for _, entry := range downloads {
		events = append(events, models.DownloadEvent{
			ID:        entry.ID,
			ShareID:   entry.ShareID,
			VersionID: entry.VersionID,
			FileName:  entry.FileName,
			At:        entry.DownloadedAt,
			IP:        entry.IP,
			UserAgent: entry.UserAgent,
			Success:   entry.Success,
		})
	}

	slices.SortStableFunc(events, func(a, b models.Event) int {
		return b.OccurredAt().Compare(a.OccurredAt())
	})

	if limit >= 0 && len(events) > limit {
		events = events[:limit]
	}
	return events
}

// NormalizeLimit maps values below 1 to DefaultLimit and caps at MaxLimit.
func NormalizeLimit(limit int) int {
	if limit < 1 {
		return DefaultLimit
	}
	return min(limit, MaxLimit)
}
