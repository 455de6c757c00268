package printer

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidStateValue = errors.New("invalid state value")
	ErrMalformedDocument = errors.New("malformed state document")
	ErrIdentityMismatch  = errors.New("unique name does not match printer")
	ErrPrinterNotFound   = errors.New("printer not found")
)

// InvalidStateValueError reports a connection status string outside the
// canonical set. Value is the text exactly as received.
type InvalidStateValueError struct {
	Value string
}

func (e *InvalidStateValueError) Error() string {
	return fmt.Sprintf("invalid connection status %q", e.Value)
}

func (e *InvalidStateValueError) Is(target error) bool {
	return target == ErrInvalidStateValue
}

// MalformedDocumentError reports a required field that is missing or has the
// wrong type. Err optionally carries a more specific cause such as
// ErrIdentityMismatch.
type MalformedDocumentError struct {
	Field  string
	Reason string
	Err    error
}

func (e *MalformedDocumentError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("malformed state document: %s", e.Reason)
	}
	return fmt.Sprintf("malformed state document: field %q %s", e.Field, e.Reason)
}

func (e *MalformedDocumentError) Is(target error) bool {
	return target == ErrMalformedDocument
}

func (e *MalformedDocumentError) Unwrap() error {
	return e.Err
}

func missingField(field string) error {
	return &MalformedDocumentError{Field: field, Reason: "is missing"}
}

func wrongType(field, want string) error {
	return &MalformedDocumentError{Field: field, Reason: "is not a " + want}
}
