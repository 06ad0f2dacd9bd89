package upload

import (
	"fmt"
	"strings"
	"time"
)

const (
	storedNamePrefix  = "f_"
	storedNameLayout  = "20060102150405"
	maxSanitizedChars = 100
	fallbackName      = "file"
)

// StoredName builds the object store name of an upload:
// f_<UTC yyyymmddHHMMSS>_<token>_<sanitized original name>.
func StoredName(at time.Time, token, originalName string) string {
	return fmt.Sprintf("%s%s_%s_%s", storedNamePrefix, at.UTC().Format(storedNameLayout), token, SanitizeName(originalName))
}

// SanitizeName drops any directory part of name, replaces characters outside
// [A-Za-z0-9._-] with '_' and caps the result at 100 characters.
func SanitizeName(name string) string {
	if idx := strings.LastIndexAny(name, `/\`); idx >= 0 {
		name = name[idx+1:]
	}

	var builder strings.Builder
	for _, char := range name {
		if builder.Len() >= maxSanitizedChars {
			break
		}
		switch {
		case char >= 'a' && char <= 'z', char >= 'A' && char <= 'Z', char >= '0' && char <= '9':
			builder.WriteRune(char)
		case char == '.', char == '_', char == '-':
			builder.WriteRune(char)
		default:
			builder.WriteByte('_')
		}
	}

	sanitized := strings.Trim(builder.String(), ".")
	if sanitized == "" {
		return fallbackName
	}
	return sanitized
}
