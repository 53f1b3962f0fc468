// Package errors provides error handling for briefing.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - Hints and details for user-facing messages
//   - Marking errors with a delivery category (see the sentinels below)
//
// Usage:
//
//	// Wrap with context
//	if err := store.SaveJob(job); err != nil {
//	    return errors.Wrap(err, "failed to save job")
//	}
//
//	// Categorize a transport failure while keeping its message
//	return errors.Mark(err, errors.ErrTransport)
//
//	// Check the category
//	if errors.Is(err, errors.ErrTransport) {
//	    // mark execution failed
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
	WithHint           = crdb.WithHint
	WithHintf          = crdb.WithHintf
	WithDetail         = crdb.WithDetail
	WithDetailf        = crdb.WithDetailf
	WithSecondaryError = crdb.WithSecondaryError
	CombineErrors      = crdb.CombineErrors
)

// Error inspection
var (
	Is             = crdb.Is
	IsAny          = crdb.IsAny
	As             = crdb.As
	Unwrap         = crdb.Unwrap
	UnwrapOnce     = crdb.UnwrapOnce
	UnwrapAll      = crdb.UnwrapAll
	GetAllHints    = crdb.GetAllHints
	GetAllDetails  = crdb.GetAllDetails
	FlattenHints   = crdb.FlattenHints
	FlattenDetails = crdb.FlattenDetails
)

// Assertions
var (
	AssertionFailedf = crdb.AssertionFailedf
)

// Generic sentinels, shared with the HTTP layer.
var (
	// ErrNotFound indicates the requested resource does not exist
	ErrNotFound = New("not found")

	// ErrInvalidRequest indicates the request was malformed or invalid
	ErrInvalidRequest = New("invalid request")

	// ErrConflict indicates a resource conflict (e.g., duplicate key)
	ErrConflict = New("resource conflict")
)

// Delivery error taxonomy.
//
// Hard errors (validation, content not found, transport, terminal state) stop an
// execution or a request. Soft errors (refresh, warehouse) are logged where they
// happen and the render continues with degraded data.
var (
	// ErrValidation marks job configuration problems caught before any execution.
	ErrValidation = New("validation failed")

	// ErrContentNotFound marks a dangling presentation or template reference.
	ErrContentNotFound = New("content not found")

	// ErrRefresh marks a data-bound element whose query failed during refresh.
	ErrRefresh = New("refresh failed")

	// ErrTransport marks a failed hand-off to the mail transport.
	ErrTransport = New("mail transport failed")

	// ErrWarehouse marks a failed warehouse query.
	ErrWarehouse = New("warehouse query failed")

	// ErrTerminalState is returned when a one-time job has already run.
	ErrTerminalState = New("job is in a terminal state")
)

// IsNotFoundError checks if an error is or wraps ErrNotFound or ErrContentNotFound.
func IsNotFoundError(err error) bool {
	return err != nil && IsAny(err, ErrNotFound, ErrContentNotFound)
}

// IsInvalidRequestError checks if an error is or wraps ErrInvalidRequest or ErrValidation
func IsInvalidRequestError(err error) bool {
	return err != nil && IsAny(err, ErrInvalidRequest, ErrValidation)
}

// NewNotFoundError creates a not-found error with a formatted message
func NewNotFoundError(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrNotFound)
}

// NewInvalidRequestError creates an invalid-request error with a formatted message
func NewInvalidRequestError(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrInvalidRequest)
}

// NewContentNotFoundError reports a missing presentation or template.
func NewContentNotFoundError(kind, id string) error {
	err := Mark(Newf("%s %s not found", kind, id), ErrContentNotFound)
	return WithHint(err, "the job references content that was deleted; edit the job to select another "+kind)
}
