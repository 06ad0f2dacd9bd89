package upload

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"coffrefort/pkg/apperr"
	"coffrefort/pkg/catalog"
	"coffrefort/pkg/log"
	"coffrefort/pkg/models"
	"coffrefort/pkg/quota"
)

func (p *Pipeline) run(ctx context.Context, in Input) (*models.UploadResult, Outcome, error) {
	header, outcome, err := selectFile(in)
	if err != nil {
		return nil, outcome, err
	}

	src, err := header.Open()
	if err != nil {
		log.Error().Err(err).Str("filename", header.Filename).Msg("Failed to open uploaded file")
		return nil, OutcomeTransportError, transportError(err)
	}
	defer func() {
		if err := src.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close uploaded file")
		}
	}()

	if header.Size > MaxFileSize {
		return nil, OutcomeTooLarge, tooLargeError(nil).With("size", header.Size)
	}

	declared := DeclaredType(header.Header.Get("Content-Type"))
	if !Allowed(declared) {
		return nil, OutcomeUnsupportedType, apperr.Validation("unsupported file type", nil).
			With("received_type", declared).
			With("allowed_types", AllowedTypes())
	}
	if err := sniff(src, header.Filename, declared); err != nil {
		log.Error().Err(err).Str("filename", header.Filename).Msg("Failed to read uploaded file")
		return nil, OutcomeTransportError, transportError(err)
	}

	user, err := p.auth.Resolve(ctx, in.Authorization)
	if err != nil {
		return nil, OutcomeUnauthenticated, err
	}

	if err := p.quota.Admit(ctx, user.ID, header.Size); err != nil {
		var exceeded *quota.ExceededError
		if errors.As(err, &exceeded) {
			log.Info().Int64("user_id", user.ID).Int64("size", header.Size).
				Int64("used", exceeded.Used).Int64("quota", exceeded.Total).Msg("Upload rejected by quota")
			return nil, OutcomeQuotaExceeded, apperr.QuotaExceeded(err)
		}
		return nil, OutcomeCatalogError, apperr.Internal("failed to check quota", err)
	}

	folderID, err := p.targetFolder(ctx, in.Form)
	if err != nil {
		if apperr.Is(err, apperr.KindInternal) {
			return nil, OutcomeCatalogError, err
		}
		return nil, OutcomeInvalidFolder, err
	}

	storedName := StoredName(p.now(), p.newToken(), header.Filename)
	written, err := p.store.Put(ctx, storedName, src)
	if err != nil {
		log.Error().Err(err).Str("stored_name", storedName).Msg("Failed to store uploaded file")
		return nil, OutcomeStorageError, apperr.StorageIO("failed to store file", err)
	}

	file := &models.File{
		UserID:       user.ID,
		FolderID:     folderID,
		OriginalName: header.Filename,
		StoredName:   storedName,
		Mime:         declared,
		Size:         written.Size,
		CreatedAt:    p.now().UTC(),
	}
	if err := p.catalog.CreateFile(ctx, file); err != nil {
		p.discardBytes(storedName)
		return nil, OutcomeCatalogError, apperr.Internal("failed to save file metadata", err)
	}

	version := &models.FileVersion{
		FileID:     file.ID,
		Version:    1,
		StoredName: storedName,
		Size:       written.Size,
		Checksum:   written.SHA256,
		CreatedAt:  file.CreatedAt,
	}
	if err := p.catalog.CreateFileVersion(ctx, version); err != nil {
		if delErr := p.catalog.DeleteFile(context.WithoutCancel(ctx), file.ID); delErr != nil {
			log.Error().Err(delErr).Int64("file_id", file.ID).Msg("Failed to remove file row after version failure")
		}
		p.discardBytes(storedName)
		return nil, OutcomeCatalogError, apperr.Internal("failed to save file metadata", err)
	}

	if err := p.catalog.RefreshQuotaUsed(ctx, user.ID); err != nil {
		log.Warn().Err(err).Int64("user_id", user.ID).Msg("Failed to refresh quota usage")
	}

	log.Info().
		Int64("file_id", file.ID).
		Int64("user_id", user.ID).
		Str("stored_name", storedName).
		Int64("size", file.Size).
		Str("sha256", written.SHA256).
		Msg("File uploaded")

	return &models.UploadResult{
		Message:    SuccessMessage,
		ID:         file.ID,
		Filename:   file.OriginalName,
		StoredName: storedName,
		Size:       file.Size,
	}, OutcomeSuccess, nil
}

// selectFile applies the payload presence and transport gates.
func selectFile(in Input) (*multipart.FileHeader, Outcome, error) {
	var bodyErr *http.MaxBytesError
	if errors.As(in.FormErr, &bodyErr) {
		log.Warn().Int64("limit", bodyErr.Limit).Msg("Upload body over limit")
		return nil, OutcomeTooLarge, tooLargeError(in.FormErr)
	}

	if in.FormErr != nil && !errors.Is(in.FormErr, http.ErrNotMultipart) && !errors.Is(in.FormErr, http.ErrMissingBoundary) {
		log.Warn().Err(in.FormErr).Msg("Malformed multipart upload")
		return nil, OutcomeTransportError, transportError(in.FormErr)
	}

	if in.Form == nil || len(in.Form.File) == 0 {
		return nil, OutcomeNoFile, apperr.Validation("no file uploaded", in.FormErr)
	}

	headers := in.Form.File[FieldFile]
	if len(headers) == 0 {
		keys := make([]string, 0, len(in.Form.File))
		for key := range in.Form.File {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		return nil, OutcomeNoFile, apperr.Validation(fmt.Sprintf("no file with key %q found", FieldFile), nil).
			With("received_keys", keys)
	}
	return headers[0], OutcomeSuccess, nil
}

func tooLargeError(err error) *apperr.Error {
	return apperr.Validation(fmt.Sprintf("file too large (max %s)", humanize.IBytes(uint64(MaxFileSize))), err)
}

func transportError(err error) *apperr.Error {
	return apperr.Validation("upload error", err).With("error_message", err.Error())
}

// targetFolder reads the optional folder_id field. Absent means the root.
func (p *Pipeline) targetFolder(ctx context.Context, form *multipart.Form) (*int64, error) {
	var raw string
	for _, value := range form.Value[FieldFolderID] {
		if value = strings.TrimSpace(value); value != "" {
			raw = value
			break
		}
	}
	if raw == "" {
		return nil, nil
	}

	folderID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || folderID <= 0 {
		return nil, apperr.Validation("invalid folder_id", err).With("folder_id", raw)
	}

	exists, err := p.catalog.FolderExists(ctx, folderID)
	if err != nil {
		return nil, apperr.Internal("failed to check folder", err)
	}
	if !exists {
		return nil, apperr.NotFound("Folder", catalog.ErrFolderNotFound).With("folder_id", folderID)
	}
	return &folderID, nil
}

// discardBytes removes bytes whose catalog row could not be written.
func (p *Pipeline) discardBytes(storedName string) {
	if err := p.store.Delete(context.Background(), storedName); err != nil {
		log.Error().Err(err).Str("stored_name", storedName).Msg("Failed to remove orphaned upload")
	}
}
