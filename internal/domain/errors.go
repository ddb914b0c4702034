package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTransition         = errors.New("invalid transition")
	ErrNotAuthorized             = errors.New("not authorized")
	ErrNotFound                  = errors.New("not found")
	ErrConcurrentModification    = errors.New("concurrent modification")
	ErrOTPMismatch               = errors.New("otp mismatch")
	ErrOTPExpired                = errors.New("otp expired")
	ErrMissingPrice              = errors.New("missing final price")
	ErrRuleConflict              = errors.New("pricing rule conflict")
	ErrValidation                = errors.New("validation error")
	ErrAdminInterventionRequired = errors.New("admin intervention required")
)

// TransitionError reports an operation the current status does not permit.
type TransitionError struct {
	Op     Operation
	From   BookingStatus
	Reason string
}

func (e *TransitionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s not allowed from %s: %s", e.Op, e.From, e.Reason)
	}
	return fmt.Sprintf("%s not allowed from %s", e.Op, e.From)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// OTPError is returned when start-of-work verification fails.
// Remaining is the number of guesses left on the current code.
type OTPError struct {
	Err       error
	Remaining int
}

func (e *OTPError) Error() string {
	return fmt.Sprintf("%v (%d attempts remaining)", e.Err, e.Remaining)
}

func (e *OTPError) Unwrap() error { return e.Err }

func NotAuthorized(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotAuthorized, fmt.Sprintf(format, args...))
}

func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsConcurrentModification(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// RemainingAttempts extracts the attempt count from an OTP failure.
func RemainingAttempts(err error) (int, bool) {
	var otpErr *OTPError
	if errors.As(err, &otpErr) {
		return otpErr.Remaining, true
	}
	return 0, false
}
