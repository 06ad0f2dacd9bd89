package upload

import (
	"io"
	"mime"
	"slices"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"coffrefort/pkg/log"
)

var allowedTypes = []string{
	"image/jpeg",
	"image/png",
	"image/webp",
	"image/jpg",
	"application/pdf",
	"application/doc",
	"application/docx",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

// AllowedTypes returns a copy of the accepted media types.
func AllowedTypes() []string {
	return slices.Clone(allowedTypes)
}

// Allowed reports whether a declared media type may be uploaded.
func Allowed(mediaType string) bool {
	return slices.Contains(allowedTypes, mediaType)
}

// DeclaredType normalizes a Content-Type header to its lower-case media type.
func DeclaredType(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType, _, _ = strings.Cut(contentType, ";")
	}
	return strings.ToLower(strings.TrimSpace(mediaType))
}

// sniff detects the content type from the first bytes of src and rewinds it.
// The declared type stays authoritative; a disagreement is only logged.
func sniff(src io.ReadSeeker, filename, declared string) error {
	detected, err := mimetype.DetectReader(src)
	if err != nil {
		return err
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return err
	}

	if !detected.Is(declared) {
		log.Warn().
			Str("filename", filename).
			Str("declared_type", declared).
			Str("detected_type", detected.String()).
			Msg("Declared content type differs from detected type")
	}
	return nil
}
