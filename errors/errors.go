// Package errors provides error handling for plugcfg.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - User-facing hints
//
// It also defines the error kinds shared by the reader, registry, compiler
// and resolver. Concrete errors always wrap one of the kinds, so callers test
// with errors.Is:
//
//	if errors.Is(err, errors.ErrMissingRequired) {
//	    // tell the user which option to set
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
	Mark         = crdb.Mark
)

// User-facing messages and details
var (
	WithHint    = crdb.WithHint
	WithHintf   = crdb.WithHintf
	WithDetail  = crdb.WithDetail
	WithDetailf = crdb.WithDetailf
)

// Error inspection
var (
	Is             = crdb.Is
	IsAny          = crdb.IsAny
	As             = crdb.As
	Unwrap         = crdb.Unwrap
	UnwrapAll      = crdb.UnwrapAll
	GetAllHints    = crdb.GetAllHints
	GetAllDetails  = crdb.GetAllDetails
	FlattenHints   = crdb.FlattenHints
	FlattenDetails = crdb.FlattenDetails
)

// Error kinds. Wrap these with Wrapf to add context while preserving the kind.
var (
	// ErrMetadataMissing indicates no header block was recognized in a plugin file
	ErrMetadataMissing = New("metadata missing")

	// ErrMetadataMalformed indicates a header was found but a recognized key failed coercion
	ErrMetadataMalformed = New("metadata malformed")

	// ErrDuplicateID indicates two descriptors share an id
	ErrDuplicateID = New("duplicate id")

	// ErrUnknownID indicates a registry lookup of an absent descriptor
	ErrUnknownID = New("unknown id")

	// ErrUnknownPlugin indicates a snapshot lookup of an absent plugin
	ErrUnknownPlugin = New("unknown plugin")

	// ErrUnknownOption indicates a snapshot lookup of an absent option
	ErrUnknownOption = New("unknown option")

	// ErrInvalidScalar indicates a value could not be decoded as its declared type
	ErrInvalidScalar = New("invalid scalar")

	// ErrInvalidShape indicates a structurally invalid schema or a value of the wrong structure
	ErrInvalidShape = New("invalid shape")

	// ErrMissingRequired indicates a required field was absent across all layers
	ErrMissingRequired = New("missing required")

	// ErrUnionDiscriminatorMissing indicates a union input without its discriminator field
	ErrUnionDiscriminatorMissing = New("union discriminator missing")

	// ErrUnionVariantUnknown indicates a union discriminator naming no declared variant
	ErrUnionVariantUnknown = New("union variant unknown")

	// ErrDuplicatePathInLayer indicates a single layer defines the same option path twice
	ErrDuplicatePathInLayer = New("duplicate path in layer")

	// ErrDuplicateKey indicates a mapping input repeats a key
	ErrDuplicateKey = New("duplicate key")

	// ErrDuplicatePriority indicates two layers of one stack share a priority
	ErrDuplicatePriority = New("duplicate layer priority")

	// ErrSecretUnavailable indicates the secrets provider could not resolve a handle
	ErrSecretUnavailable = New("secret unavailable")
)

// IsNotFoundError reports whether err is any of the lookup-of-absent-key kinds.
func IsNotFoundError(err error) bool {
	return err != nil && IsAny(err, ErrUnknownID, ErrUnknownPlugin, ErrUnknownOption)
}
