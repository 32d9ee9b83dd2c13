// Package errors provides error handling for storyline.
//
// This package re-exports github.com/cockroachdb/errors, providing stack
// traces, wrapping with context and user-facing hints.
//
// Usage:
//
//	if err := load(root); err != nil {
//	    return errors.Wrapf(err, "failed to load entities under %s", root)
//	}
//
//	if errors.Is(err, errors.ErrUnknownResourceType) {
//	    // consumer asked for a resource type we do not serve
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
	WithHint  = crdb.WithHint
	WithHintf = crdb.WithHintf
)

// Error inspection
var (
	Is          = crdb.Is
	IsAny       = crdb.IsAny
	As          = crdb.As
	Unwrap      = crdb.Unwrap
	UnwrapAll   = crdb.UnwrapAll
	GetAllHints = crdb.GetAllHints
)

// Sentinel errors. Wrap these to add context while keeping errors.Is working.
var (
	// ErrNotFound indicates the requested entity, project or resource does not exist
	ErrNotFound = New("not found")

	// ErrInvalidRequest indicates the caller sent something malformed
	ErrInvalidRequest = New("invalid request")

	// ErrUnsupportedScheme indicates a resource URI with a scheme we do not serve
	ErrUnsupportedScheme = New("unsupported resource scheme")

	// ErrUnknownResourceType indicates a resource URI naming an unknown type
	ErrUnknownResourceType = New("unknown resource type")
)

// IsNotFoundError checks if an error is or wraps ErrNotFound
func IsNotFoundError(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// IsInvalidRequestError checks if an error is or wraps ErrInvalidRequest
func IsInvalidRequestError(err error) bool {
	return err != nil && Is(err, ErrInvalidRequest)
}

// NewNotFoundError creates a not-found error with a formatted message
func NewNotFoundError(format string, args ...interface{}) error {
	return Wrap(ErrNotFound, Newf(format, args...).Error())
}

// NewInvalidRequestError creates an invalid-request error with a formatted message
func NewInvalidRequestError(format string, args ...interface{}) error {
	return Wrap(ErrInvalidRequest, Newf(format, args...).Error())
}
