package manifest

import (
	"errors"
	"fmt"

	"cuelang.org/go/cue/token"
)

// Error codes for manifest loading.
const (
	ErrCodeNotFound    = "E_NOT_FOUND"
	ErrCodeReadFailed  = "E_READ_FAILED"
	ErrCodeUnsupported = "E_UNSUPPORTED_FORMAT"
	ErrCodeDecode      = "E_DECODE"
	ErrCodeSchema      = "E_SCHEMA"
	ErrCodeInvalid     = "E_INVALID"
)

// LoadError represents an error that occurred while loading a manifest.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ValidationError is a single invalid field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors reports every invalid field found in a manifest.
type ValidationErrors []*ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 1 {
		return fmt.Sprintf("%s: %s", ErrCodeInvalid, e[0].Error())
	}
	return fmt.Sprintf("%s: %d problems, first: %s", ErrCodeInvalid, len(e), e[0].Error())
}

// ErrorCode extracts the manifest error code from err, or "" if none.
func ErrorCode(err error) string {
	var le *LoadError
	if errors.As(err, &le) {
		return le.Code
	}
	var ve ValidationErrors
	if errors.As(err, &ve) {
		return ErrCodeInvalid
	}
	return ""
}
