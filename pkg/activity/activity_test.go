package activity

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coffrefort/pkg/models"
)

type stubSource struct {
	uploads   []models.File
	downloads []models.DownloadLogEntry
	limits    []int
	err       error
}

func (s *stubSource) RecentUploads(_ context.Context, _ int64, limit int) ([]models.File, error) {
	s.limits = append(s.limits, limit)
	return head(s.uploads, limit), s.err
}

func (s *stubSource) RecentDownloads(_ context.Context, _ int64, limit int) ([]models.DownloadLogEntry, error) {
	s.limits = append(s.limits, limit)
	return head(s.downloads, limit), nil
}

func head[T any](items []T, limit int) []T {
	if len(items) > limit {
		return items[:limit]
	}
	return items
}

var base = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

func at(minutes int) time.Time {
	return base.Add(time.Duration(minutes) * time.Minute)
}

func TestFeedMergesAndTruncates(t *testing.T) {
	source := &stubSource{
		uploads: []models.File{
			{ID: 3, OriginalName: "c.pdf", Size: 30, CreatedAt: at(50)},
			{ID: 2, OriginalName: "b.png", Size: 20, CreatedAt: at(30)},
			{ID: 1, OriginalName: "a.jpg", Size: 10, CreatedAt: at(10)},
		},
		downloads: []models.DownloadLogEntry{
			{ID: 2, ShareID: 1, VersionID: 3, FileName: "c.pdf", DownloadedAt: at(40), Success: true},
			{ID: 1, ShareID: 1, VersionID: 1, FileName: "a.jpg", DownloadedAt: at(20), Success: false},
		},
	}

	feed, err := NewAggregator(source).Feed(context.Background(), 5, 4)
	require.NoError(t, err)

	assert.Equal(t, int64(5), feed.UserID)
	assert.Equal(t, 4, feed.Count)
	require.Len(t, feed.Events, 4)
	assert.Equal(t, []int{4, 4}, source.limits)

	for i := 1; i < len(feed.Events); i++ {
		assert.True(t, feed.Events[i-1].OccurredAt().After(feed.Events[i].OccurredAt()))
	}

	assert.Equal(t, models.EventUpload, feed.Events[0].Type())
	assert.Equal(t, models.EventDownload, feed.Events[1].Type())
	assert.Equal(t, models.EventUpload, feed.Events[2].Type())
	assert.Equal(t, models.EventDownload, feed.Events[3].Type())
	assert.Equal(t, at(20), feed.Events[3].OccurredAt(), "the oldest upload is dropped")
}

func TestFeedDefaultsLimit(t *testing.T) {
	source := &stubSource{}
	feed, err := NewAggregator(source).Feed(context.Background(), 1, 0)
	require.NoError(t, err)

	assert.Equal(t, []int{DefaultLimit, DefaultLimit}, source.limits)
	assert.Empty(t, feed.Events)
	assert.NotNil(t, feed.Events)

	data, err := json.Marshal(feed)
	require.NoError(t, err)
	assert.JSONEq(t, `{"user_id":1,"count":0,"events":[]}`, string(data))
}

func TestFeedSourceError(t *testing.T) {
	failure := errors.New("db down")
	_, err := NewAggregator(&stubSource{err: failure}).Feed(context.Background(), 1, 5)
	assert.ErrorIs(t, err, failure)
}

func TestMergeComparesInstants(t *testing.T) {
	paris := time.FixedZone("CET", 3600)
	uploads := []models.File{{ID: 1, CreatedAt: at(30).In(paris)}}
	downloads := []models.DownloadLogEntry{{ID: 1, DownloadedAt: at(45)}}

	events := Merge(uploads, downloads, 10)
	require.Len(t, events, 2)
	assert.Equal(t, models.EventDownload, events[0].Type())
}

func TestMergeTiesKeepUploadsFirst(t *testing.T) {
	uploads := []models.File{{ID: 1, CreatedAt: at(5)}}
	downloads := []models.DownloadLogEntry{{ID: 9, DownloadedAt: at(5)}}

	events := Merge(uploads, downloads, 10)
	require.Len(t, events, 2)
	assert.Equal(t, models.EventUpload, events[0].Type())
	assert.Equal(t, models.EventDownload, events[1].Type())
}

func TestNormalizeLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, NormalizeLimit(0))
	assert.Equal(t, DefaultLimit, NormalizeLimit(-3))
	assert.Equal(t, 1, NormalizeLimit(1))
	assert.Equal(t, 50, NormalizeLimit(50))
	assert.Equal(t, MaxLimit, NormalizeLimit(1000))
}
