// Package apperr carries request failures from the services to the HTTP layer
// together with the status code they must be reported with.
package apperr

import (
	"errors"
	"fmt"
	"maps"
	"net/http"
)

// Kind classifies an Error independently of its HTTP status.
type Kind string

const (
	KindValidation     Kind = "validation"
	KindAuthentication Kind = "authentication"
	KindNotFound       Kind = "not_found"
	KindQuotaExceeded  Kind = "quota_exceeded"
	KindConflict       Kind = "conflict"
	KindStorageIO      Kind = "storage_io"
	KindForbidden      Kind = "forbidden"
	KindGone           Kind = "gone"
	KindInternal       Kind = "internal"
)

// Error is a failure that knows how it is reported to the client.
// Details are merged into the JSON error body next to "error".
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Details map[string]interface{}
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// With returns a copy of e carrying an additional detail field.
func (e *Error) With(key string, value interface{}) *Error {
	clone := *e
	clone.Details = make(map[string]interface{}, len(e.Details)+1)
	maps.Copy(clone.Details, e.Details)
	clone.Details[key] = value
	return &clone
}

func New(kind Kind, status int, message string, err error) *Error {
	return &Error{
		Kind:    kind,
		Status:  status,
		Message: message,
		Err:     err,
	}
}

func Validation(message string, err error) *Error {
	return New(KindValidation, http.StatusBadRequest, message, err)
}

// Unauthorized is an authentication failure attributable to the caller.
func Unauthorized(message string, err error) *Error {
	return New(KindAuthentication, http.StatusUnauthorized, message, err)
}

// Misconfigured is an authentication failure caused by the server setup.
func Misconfigured(message string, err error) *Error {
	return New(KindAuthentication, http.StatusInternalServerError, message, err)
}

// UnknownPrincipal is a valid token whose subject has no user record.
func UnknownPrincipal(message string, err error) *Error {
	return New(KindAuthentication, http.StatusNotFound, message, err)
}

func NotFound(resource string, err error) *Error {
	return New(KindNotFound, http.StatusNotFound, resource+" not found", err)
}

func QuotaExceeded(err error) *Error {
	return New(KindQuotaExceeded, http.StatusRequestEntityTooLarge, "quota exceeded", err)
}

func Conflict(message string, err error) *Error {
	return New(KindConflict, http.StatusConflict, message, err)
}

func StorageIO(message string, err error) *Error {
	return New(KindStorageIO, http.StatusInternalServerError, message, err)
}

func Forbidden(message string) *Error {
	return New(KindForbidden, http.StatusForbidden, message, nil)
}

func Gone(message string) *Error {
	return New(KindGone, http.StatusGone, message, nil)
}

func Internal(message string, err error) *Error {
	return New(KindInternal, http.StatusInternalServerError, message, err)
}

// As extracts the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// Is reports whether err carries an *Error of the given kind.
func Is(err error, kind Kind) bool {
	appErr, ok := As(err)
	return ok && appErr.Kind == kind
}

// StatusOf returns the HTTP status for err, 500 for anything unclassified.
func StatusOf(err error) int {
	if appErr, ok := As(err); ok {
		return appErr.Status
	}
	return http.StatusInternalServerError
}
