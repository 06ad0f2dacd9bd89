// Package upload implements the quota-enforced upload pipeline.
//
// Each step of Run is a hard gate evaluated in a fixed order: payload
// presence, transport status, size, declared type, authentication, quota,
// target folder, and finally the write of bytes and catalog rows.
package upload

import (
	"context"
	"mime/multipart"
	"time"

	"github.com/google/uuid"

	"coffrefort/pkg/models"
	"coffrefort/pkg/objectstore"
)

const (
	FieldFile     = "file"
	FieldFolderID = "folder_id"

	// MaxFileSize is the largest accepted upload, 2 MiB.
	MaxFileSize int64 = 2 << 20

	// MaxBodySize caps the whole multipart body read for one upload.
	MaxBodySize int64 = 16 << 20

	SuccessMessage = "File uploaded successfully"
)

// Outcome labels how a pipeline run ended.
type Outcome string

const (
	OutcomeSuccess         Outcome = "success"
	OutcomeNoFile          Outcome = "no_file"
	OutcomeTransportError  Outcome = "transport_error"
	OutcomeTooLarge        Outcome = "too_large"
	OutcomeUnsupportedType Outcome = "unsupported_type"
	OutcomeUnauthenticated Outcome = "unauthenticated"
	OutcomeQuotaExceeded   Outcome = "quota_exceeded"
	OutcomeInvalidFolder   Outcome = "invalid_folder"
	OutcomeStorageError    Outcome = "storage_error"
	OutcomeCatalogError    Outcome = "catalog_error"
)

// Catalog is the metadata the pipeline reads and writes.
type Catalog interface {
	FolderExists(ctx context.Context, folderID int64) (bool, error)
	CreateFile(ctx context.Context, file *models.File) error
	CreateFileVersion(ctx context.Context, version *models.FileVersion) error
	DeleteFile(ctx context.Context, fileID int64) error
	RefreshQuotaUsed(ctx context.Context, userID int64) error
}

// Authenticator resolves the Authorization header to a user.
type Authenticator interface {
	Resolve(ctx context.Context, header string) (*models.User, error)
}

// Admitter checks that size more bytes fit under the user's quota.
type Admitter interface {
	Admit(ctx context.Context, userID, size int64) error
}

// Observer is told about every finished run.
type Observer interface {
	ObserveUpload(outcome string, size int64)
}

// Input is one upload request as seen by the HTTP layer.
type Input struct {
	// Form is the parsed multipart form, nil when parsing failed.
	Form *multipart.Form
	// FormErr is the error returned while parsing the form.
	FormErr error
	// Authorization is the raw Authorization header.
	Authorization string
}

type Options struct {
	Catalog       Catalog
	Store         objectstore.Store
	Authenticator Authenticator
	Quota         Admitter
	Observer      Observer
	Now           func() time.Time
	NewToken      func() string
}

// Pipeline runs uploads against a catalog and an object store.
type Pipeline struct {
	catalog  Catalog
	store    objectstore.Store
	auth     Authenticator
	quota    Admitter
	observer Observer
	now      func() time.Time
	newToken func() string
}

func New(opts Options) *Pipeline {
	pipeline := &Pipeline{
		catalog:  opts.Catalog,
		store:    opts.Store,
		auth:     opts.Authenticator,
		quota:    opts.Quota,
		observer: opts.Observer,
		now:      opts.Now,
		newToken: opts.NewToken,
	}
	if pipeline.now == nil {
		pipeline.now = time.Now
	}
	if pipeline.newToken == nil {
		pipeline.newToken = uuid.NewString
	}
	return pipeline
}

// Run processes one upload. Failures are *apperr.Error values.
func (p *Pipeline) Run(ctx context.Context, in Input) (*models.UploadResult, error) {
	result, outcome, err := p.run(ctx, in)
	if p.observer != nil {
		var size int64
		if result != nil {
			size = result.Size
		}
		p.observer.ObserveUpload(string(outcome), size)
	}
	return result, err
}
