package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the requested entity was not found.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists indicates a unique constraint was violated.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInputShape means a batch body was not a JSON array.
	ErrInvalidInputShape = errors.New("invalid input shape")
	// ErrMissingField means a batch item lacks one of its required fields.
	ErrMissingField = errors.New("missing field")
	// ErrUnsupportedProperty means a batch item targets a property other than accepts_marketing.
	ErrUnsupportedProperty = errors.New("unsupported property")
	// ErrInvalidValue means a batch item's value is not one of the accepted literals.
	ErrInvalidValue = errors.New("invalid value")

	ErrMissingParameter  = errors.New("missing parameter")
	ErrInvalidSignature  = errors.New("invalid signature")
	ErrMissingCredential = errors.New("missing credential")
	ErrCustomerNotFound  = errors.New("customer not found")

	// ErrUpstreamAuth wraps failures of the authorization code exchange.
	ErrUpstreamAuth = errors.New("upstream auth error")
	// ErrUpstreamUpdate wraps failures of the consent update call.
	ErrUpstreamUpdate = errors.New("upstream update error")
	// ErrUpstream wraps read-side upstream failures (search, list).
	ErrUpstream = errors.New("upstream error")
)

// Error pairs one of the sentinel kinds above with a client-facing message.
type Error struct {
	Kind    error
	Message string
	Cause   error
}

// NewError builds an Error of the given kind.
func NewError(kind error, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

// Detail returns the cause's message, or the message itself when there is no cause.
func (e *Error) Detail() string {
	if e.Cause != nil {
		return e.Cause.Error()
	}
	return e.Message
}
