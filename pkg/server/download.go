package server

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"coffrefort/pkg/apperr"
	"coffrefort/pkg/log"
	"coffrefort/pkg/metrics"
	"coffrefort/pkg/objectstore"
)

// Download outcomes.
const (
	downloadSuccess  = "success"
	downloadNotFound = "not_found"
	downloadDenied   = "denied"
	downloadExpired  = "expired"
	downloadMissing  = "missing"
	downloadError    = "error"
)

func (s *Server) downloadFile(ctx echo.Context) error {
	file, _, err := s.loadFile(ctx)
	if err != nil {
		outcome := downloadError
		switch {
		case apperr.Is(err, apperr.KindNotFound):
			outcome = downloadNotFound
		case apperr.Is(err, apperr.KindForbidden):
			outcome = downloadDenied
		}
		s.metrics.ObserveDownload(metrics.DownloadOwner, outcome)
		return s.respondError(ctx, err)
	}

	reader, err := s.openObject(ctx, file.StoredName)
	if err != nil {
		s.metrics.ObserveDownload(metrics.DownloadOwner, outcomeOf(err))
		return s.respondError(ctx, err)
	}
	defer reader.Close()

	s.metrics.ObserveDownload(metrics.DownloadOwner, downloadSuccess)
	return streamAttachment(ctx, file.OriginalName, file.Mime, file.Size, reader)
}

// openObject opens stored bytes, reporting a missing object as a storage failure.
func (s *Server) openObject(ctx echo.Context, storedName string) (io.ReadCloser, error) {
	reader, err := s.store.Open(ctx.Request().Context(), storedName)
	if err == nil {
		return reader, nil
	}

	var notFoundErr objectstore.ObjectNotFoundError
	if errors.As(err, &notFoundErr) {
		return nil, apperr.StorageIO("file missing on storage", err).With("stored_name", storedName)
	}
	return nil, apperr.StorageIO("failed to read file", err)
}

func outcomeOf(err error) string {
	var notFoundErr objectstore.ObjectNotFoundError
	if errors.As(err, &notFoundErr) {
		return downloadMissing
	}
	return downloadError
}

func streamAttachment(ctx echo.Context, filename, contentType string, size int64, reader io.Reader) error {
	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": filename})
	if disposition == "" {
		disposition = "attachment"
	}

	header := ctx.Response().Header()
	header.Set(echo.HeaderContentDisposition, disposition)
	if size >= 0 {
		header.Set(echo.HeaderContentLength, strconv.FormatInt(size, 10))
	}
	if contentType == "" {
		contentType = echo.MIMEOctetStream
	}

	if err := ctx.Stream(http.StatusOK, contentType, reader); err != nil {
		log.Error().Err(err).Str("filename", filename).Msg("Failed to stream file")
		return err
	}
	return nil
}
