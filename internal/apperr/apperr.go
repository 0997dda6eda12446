package apperr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind is the stable, machine-readable classification of a failure. Callers
// branch on the kind; the message names the offending product or lot so the
// request can be corrected and resubmitted.
type Kind string

const (
	KindNotFound            Kind = "not_found"
	KindAccessDenied        Kind = "access_denied"
	KindInvalidLine         Kind = "invalid_line"
	KindInsufficientStock   Kind = "insufficient_stock"
	KindInvalidState        Kind = "invalid_state_for_action"
	KindDestinationUnlinked Kind = "destination_unlinked"
	KindInternal            Kind = "internal"
)

type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(err error, kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), cause: err}
}

// KindOf extracts the kind from err, or KindInternal when err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
