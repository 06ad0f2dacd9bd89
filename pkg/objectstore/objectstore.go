// Package objectstore holds uploaded bytes under server-generated names.
package objectstore

import (
	"context"
	"io"
	"strings"
)

const maxNameLength = 255

// PutResult describes bytes written by Put.
type PutResult struct {
	Size   int64
	SHA256 string
}

// Store is a flat namespace of immutable objects.
type Store interface {
	// Put writes the reader's content under name. It fails with ObjectExistsError
	// when the name is taken and InvalidNameError when it is not a valid name.
	Put(ctx context.Context, name string, reader io.Reader) (*PutResult, error)

	// Open returns the content stored under name or ObjectNotFoundError.
	Open(ctx context.Context, name string) (io.ReadCloser, error)

	// Delete removes the object or returns ObjectNotFoundError.
	Delete(ctx context.Context, name string) error

	// Exists reports whether an object is stored under name.
	Exists(ctx context.Context, name string) (bool, error)
}

// ObjectExistsError is returned when writing to a name that is already used.
type ObjectExistsError struct {
	Name string
}

func (e ObjectExistsError) Error() string {
	return "object already exists"
}

// ObjectNotFoundError is returned when no object is stored under a name.
type ObjectNotFoundError struct {
	Name string
}

func (e ObjectNotFoundError) Error() string {
	return "object not found"
}

// InvalidNameError is returned for names that cannot be stored.
type InvalidNameError struct {
	Name string
}

func (e InvalidNameError) Error() string {
	return "invalid object name"
}

// ValidateName accepts flat names made of letters, digits, '.', '_' and '-'
// that do not start with a dot.
func ValidateName(name string) bool {
	if name == "" || len(name) > maxNameLength || strings.HasPrefix(name, ".") {
		return false
	}

	for _, char := range name {
		switch {
		case char >= 'a' && char <= 'z', char >= 'A' && char <= 'Z', char >= '0' && char <= '9':
		case char == '.', char == '_', char == '-':
		default:
			return false
		}
	}
	return true
}
