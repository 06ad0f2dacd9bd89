package server

import (
	"context"
	"net/http"
	"strconv"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/labstack/echo/v4"

	"coffrefort/pkg/log"
)

const healthTimeout = 2 * time.Second

// HealthInfo is the body of GET /health.
type HealthInfo struct {
	Status         string       `json:"status"`
	Version        string       `json:"version"`
	Uptime         string       `json:"uptime"`
	UptimeSeconds  int64        `json:"uptime_seconds"`
	Database       string       `json:"database"`
	StorageBackend string       `json:"storage_backend,omitempty"`
	Storage        *StorageInfo `json:"storage,omitempty"`
}

// StorageInfo is the disk usage of the upload directory's filesystem.
type StorageInfo struct {
	Total     uint64 `json:"total"`
	Used      uint64 `json:"used"`
	Available uint64 `json:"available"`
	Human     string `json:"human"`
}

func (s *Server) health(ctx echo.Context) error {
	uptime := int64(time.Since(s.startedAt).Seconds())
	info := HealthInfo{
		Status:         "ok",
		Version:        s.version,
		Uptime:         formatUptime(uptime),
		UptimeSeconds:  uptime,
		Database:       "ok",
		StorageBackend: s.backend,
	}

	if s.uploadDir != "" {
		storage, err := getStorageInfo(s.uploadDir)
		if err != nil {
			log.Warn().Err(err).Str("upload_dir", s.uploadDir).Msg("Failed to read storage usage")
		} else {
			info.Storage = storage
		}
	}

	pingCtx, cancel := context.WithTimeout(ctx.Request().Context(), healthTimeout)
	defer cancel()

	if err := s.catalog.Ping(pingCtx); err != nil {
		log.Error().Err(err).Msg("Database health check failed")
		info.Status = "unavailable"
		info.Database = "error"
		return ctx.JSON(http.StatusServiceUnavailable, info)
	}

	return ctx.JSON(http.StatusOK, info)
}

func getStorageInfo(path string) (*StorageInfo, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return nil, err
	}

	blockSize := uint64(stat.Bsize) // #nosec G115 - syscall values are system dependent
	total := stat.Blocks * blockSize
	available := stat.Bavail * blockSize
	used := total - available

	return &StorageInfo{
		Total:     total,
		Used:      used,
		Available: available,
		Human:     humanize.IBytes(available) + " free of " + humanize.IBytes(total),
	}, nil
}

// formatUptime converts seconds to a short human-readable form.
func formatUptime(seconds int64) string {
	duration := time.Duration(seconds) * time.Second
	const hoursInDay = 24
	const minutesInHour = 60
	days := int(duration.Hours()) / hoursInDay
	hours := int(duration.Hours()) % hoursInDay
	minutes := int(duration.Minutes()) % minutesInHour

	switch {
	case days > 0:
		return strconv.Itoa(days) + "d " + strconv.Itoa(hours) + "h " + strconv.Itoa(minutes) + "m"
	case hours > 0:
		return strconv.Itoa(hours) + "h " + strconv.Itoa(minutes) + "m"
	default:
		return strconv.Itoa(minutes) + "m"
	}
}
