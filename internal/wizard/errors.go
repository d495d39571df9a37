package wizard

import (
	"errors"
	"fmt"

	"github.com/roach88/claimwiz/internal/validate"
)

// ErrorCode categorizes rejected transitions.
type ErrorCode string

const (
	// ErrCodeInvalidStep indicates the requested step is outside [1, total].
	ErrCodeInvalidStep ErrorCode = "INVALID_STEP"

	// ErrCodeAtBoundary indicates previous on the first step or next on the
	// last step (the last step's next is the submit action).
	ErrCodeAtBoundary ErrorCode = "AT_BOUNDARY"

	// ErrCodeNotFinalStep indicates submit was requested before the last step.
	ErrCodeNotFinalStep ErrorCode = "NOT_FINAL_STEP"

	// ErrCodeValidationFailed indicates the active step's fields did not pass.
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"

	// ErrCodeAlreadySubmitted indicates the wizard is completed or a submit
	// is already in progress.
	ErrCodeAlreadySubmitted ErrorCode = "ALREADY_SUBMITTED"
)

// TransitionError is returned for every rejected transition. State is never
// mutated when a TransitionError is returned.
type TransitionError struct {
	Code      ErrorCode
	Message   string
	Requested int
	Current   int
	Total     int

	// Report holds the field failures for ErrCodeValidationFailed.
	Report validate.Report
}

// Error implements the error interface.
func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s (current=%d, total=%d)", e.Code, e.Message, e.Current, e.Total)
}

// IsTransitionError returns true if err is any rejected transition.
func IsTransitionError(err error) bool {
	var te *TransitionError
	return errors.As(err, &te)
}

// IsInvalidStep returns true if err is an out-of-range step request.
func IsInvalidStep(err error) bool {
	return hasCode(err, ErrCodeInvalidStep)
}

// IsAtBoundary returns true if err is a first/last step boundary rejection.
func IsAtBoundary(err error) bool {
	return hasCode(err, ErrCodeAtBoundary)
}

// ValidationReport extracts the field report from a validation rejection.
func ValidationReport(err error) (validate.Report, bool) {
	var te *TransitionError
	if errors.As(err, &te) && te.Code == ErrCodeValidationFailed {
		return te.Report, true
	}
	return validate.Report{}, false
}

func hasCode(err error, code ErrorCode) bool {
	var te *TransitionError
	if errors.As(err, &te) {
		return te.Code == code
	}
	return false
}
