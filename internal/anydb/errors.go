package anydb

import (
	"errors"
	"fmt"
)

// Kind classifies a gateway failure so callers can branch on the class of
// failure instead of matching message text.
type Kind string

const (
	// KindValidation indicates a required parameter was missing or malformed
	// before any network call was attempted.
	KindValidation Kind = "validation"
	// KindAuth indicates missing or rejected credentials.
	KindAuth Kind = "auth"
	// KindTransport indicates a network failure or timeout reaching AnyDB.
	KindTransport Kind = "transport"
	// KindUpstream indicates AnyDB answered with a non-2xx status.
	KindUpstream Kind = "upstream"
)

var (
	// ErrMissingAPIKey indicates no API key was supplied for the call.
	ErrMissingAPIKey = errors.New("missing AnyDB API key")
	// ErrMissingEmail indicates no user email was supplied for the call.
	ErrMissingEmail = errors.New("missing AnyDB user email")
)

// Error is the typed failure returned by every gateway operation.
type Error struct {
	Kind    Kind
	Op      string // gateway operation that failed, e.g. "get_record"
	Status  int    // HTTP status from AnyDB, 0 if the call never completed
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("anydb %s: %s (status %d)", e.Op, e.Message, e.Status)
	}
	return fmt.Sprintf("anydb %s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is a gateway error of the given kind.
func IsKind(err error, kind Kind) bool {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind == kind
	}
	return false
}

func validationError(op, message string) *Error {
	return &Error{Kind: KindValidation, Op: op, Message: message}
}

func authError(op string, err error) *Error {
	return &Error{Kind: KindAuth, Op: op, Message: err.Error(), Err: err}
}

func transportError(op string, err error) *Error {
	return &Error{Kind: KindTransport, Op: op, Message: err.Error(), Err: err}
}

func upstreamError(op string, status int, message string) *Error {
	return &Error{Kind: KindUpstream, Op: op, Status: status, Message: message}
}
