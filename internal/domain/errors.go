package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Callers test kinds with errors.Is; stores and the engine wrap
// them with context using fmt.Errorf("...: %w", kind).
var (
	// ErrValidation marks a malformed or type-inconsistent payload. It never
	// accompanies a state mutation.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound marks a referenced transaction or account that does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized marks a caller that is not the owner of the resource.
	ErrUnauthorized = errors.New("not authorized")

	// ErrConflict marks a store-detected concurrent-write conflict. The write
	// it accompanies was not applied.
	ErrConflict = errors.New("concurrent write conflict")

	// ErrStoreUnavailable marks a transport or infrastructure failure. The
	// outcome of the write it accompanies is unknown.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// Reason is a machine-readable validation failure code.
type Reason string

const (
	ReasonUnknownType           Reason = "UNKNOWN_TYPE"
	ReasonAmountNotPositive     Reason = "AMOUNT_NOT_POSITIVE"
	ReasonAmountScale           Reason = "AMOUNT_SCALE"
	ReasonMissingSource         Reason = "MISSING_SOURCE_ACCOUNT"
	ReasonMissingDestination    Reason = "MISSING_DESTINATION_ACCOUNT"
	ReasonUnexpectedSource      Reason = "UNEXPECTED_SOURCE_ACCOUNT"
	ReasonUnexpectedDestination Reason = "UNEXPECTED_DESTINATION_ACCOUNT"
	ReasonSameAccount           Reason = "SAME_SOURCE_AND_DESTINATION"
	ReasonMissingCategory       Reason = "MISSING_CATEGORY"
	ReasonMissingID             Reason = "MISSING_TRANSACTION_ID"
	ReasonIDMismatch            Reason = "TRANSACTION_ID_MISMATCH"
	ReasonMissingUserID         Reason = "MISSING_USER_ID"
	ReasonInvalidMonth          Reason = "INVALID_MONTH"
)

// ValidationError carries the discriminated reason a payload was rejected.
type ValidationError struct {
	Reason Reason
	Field  string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed: %s (field %s)", e.Reason, e.Field)
}

// Unwrap lets errors.Is(err, ErrValidation) match.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// Invalid builds a ValidationError.
func Invalid(reason Reason, field string) error {
	return &ValidationError{Reason: reason, Field: field}
}

// ReasonOf extracts the validation reason from err, if any.
func ReasonOf(err error) (Reason, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Reason, true
	}
	return "", false
}
