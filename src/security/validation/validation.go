// src/security/validation/validation.go
package validation

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

var ErrValidationFailed = errors.New("validation failed")

// MaxExpressionBytes caps the serialized size of a transform expression.
// Expressions are admin input, but a megabyte of nested JSON is a mistake
// or an attack either way.
const MaxExpressionBytes = 16 * 1024

// MaxFieldNameLength bounds raw and canonical field names.
const MaxFieldNameLength = 128

// AllowedUploadContentTypes lists the client-declared MIME types accepted
// for raw data batch uploads.
var AllowedUploadContentTypes = map[string]bool{
	"application/json":         true,
	"text/csv":                 true,
	"application/csv":          true,
	"text/plain":               true,
	"application/vnd.ms-excel": true, // older Excel exports declare CSV this way
	"application/octet-stream": true, // generic fallback, parser enforces shape
}

// ValidateUploadContentType checks the Content-Type header declared for a
// raw data upload.
func ValidateUploadContentType(contentType string) error {
	base := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	if !AllowedUploadContentTypes[base] {
		return fmt.Errorf("%w: file type '%s' is not allowed for raw data upload", ErrValidationFailed, contentType)
	}
	return nil
}

// ValidateFieldName accepts the snake_case identifiers providers and the
// canonical catalogue use. Rejects empty names, oversized names and
// anything with characters outside [a-zA-Z0-9_.-].
func ValidateFieldName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: field name is empty", ErrValidationFailed)
	}
	if len(name) > MaxFieldNameLength {
		return fmt.Errorf("%w: field name exceeds %d characters", ErrValidationFailed, MaxFieldNameLength)
	}
	for _, r := range name {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '.' && r != '-' {
			return fmt.Errorf("%w: field name %q contains invalid character %q", ErrValidationFailed, name, r)
		}
	}
	return nil
}

// ValidateExpressionSize rejects oversized expression payloads before they
// reach the parser.
func ValidateExpressionSize(raw []byte) error {
	if len(raw) > MaxExpressionBytes {
		return fmt.Errorf("%w: transform expression exceeds %d bytes", ErrValidationFailed, MaxExpressionBytes)
	}
	return nil
}

// StripUnprintable removes non-printable characters, allowing common
// whitespace like space, tab, newline, and carriage return.
func StripUnprintable(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsPrint(r) || r == '\t' || r == '\n' || r == '\r' {
			return r
		}
		return -1
	}, s)
}
