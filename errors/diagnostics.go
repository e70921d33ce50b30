package errors

import (
	"fmt"
	"strings"
)

// FieldError is a decode failure at a specific option path.
type FieldError struct {
	Path  string // dotted option path, e.g. "db.url" or "db.servers[0].host"
	Cause error
}

// NewFieldError creates a FieldError for path.
func NewFieldError(path string, cause error) *FieldError {
	return &FieldError{Path: path, Cause: cause}
}

func (e *FieldError) Error() string {
	if e.Path == "" {
		return e.Cause.Error()
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Cause.Error())
}

// Unwrap exposes the cause so errors.Is matches the error kind.
func (e *FieldError) Unwrap() error { return e.Cause }

// FieldErrors is a list of field errors collected from one decode.
type FieldErrors []*FieldError

func (l FieldErrors) Error() string {
	msgs := make([]string, len(l))
	for i, e := range l {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "; ")
}

// Is matches when any contained field error matches target.
func (l FieldErrors) Is(target error) bool {
	for _, e := range l {
		if Is(e, target) {
			return true
		}
	}
	return false
}

// AsFieldErrors flattens err into a list of field errors. Errors that are not
// field errors are returned as a single entry with an empty path.
func AsFieldErrors(err error) FieldErrors {
	if err == nil {
		return nil
	}
	var list FieldErrors
	if As(err, &list) {
		return list
	}
	var fe *FieldError
	if As(err, &fe) {
		return FieldErrors{fe}
	}
	return FieldErrors{{Cause: err}}
}

// ResolveError aggregates every diagnostic of a single failed resolve.
type ResolveError struct {
	Diagnostics FieldErrors
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("resolve failed with %d diagnostic(s): %s", len(e.Diagnostics), e.Diagnostics.Error())
}

// Is lets errors.Is(resolveErr, ErrMissingRequired) match any contained diagnostic.
func (e *ResolveError) Is(target error) bool {
	for _, d := range e.Diagnostics {
		if Is(d, target) {
			return true
		}
	}
	return false
}

// Lines renders one "<path>: <cause>" line per diagnostic, for the error stream.
func (e *ResolveError) Lines() []string {
	lines := make([]string, len(e.Diagnostics))
	for i, d := range e.Diagnostics {
		lines[i] = d.Error()
	}
	return lines
}
