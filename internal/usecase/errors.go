package usecase

import "errors"

var (
	// ErrValidation indicates missing or malformed input.
	ErrValidation = errors.New("validation failed")
	// ErrWeakPassword indicates the password does not meet the policy.
	ErrWeakPassword = errors.New("password does not meet policy")
	// ErrInvalidCredentials covers both an unknown email and a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrResetTokenInvalid covers unknown, expired and already used reset secrets.
	ErrResetTokenInvalid = errors.New("invalid or expired reset token")
	// ErrInvalidSession indicates a missing, malformed, forged or expired session credential.
	ErrInvalidSession = errors.New("invalid session")
	// ErrEmailTaken indicates the email already owns an account.
	ErrEmailTaken = errors.New("email already registered")
	// ErrAccountNotFound indicates the authenticated account no longer exists.
	ErrAccountNotFound = errors.New("account not found")
	// ErrReservationLost indicates a lapsed reservation was taken over by
	// another caller before it was consumed.
	ErrReservationLost = errors.New("reset reservation lost")
	// ErrUnavailable indicates a storage or delivery backend failure.
	ErrUnavailable = errors.New("service unavailable")
)

// ValidationError attaches a client-facing message to ErrValidation or
// ErrWeakPassword.
type ValidationError struct {
	Err     error
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func validationErr(message string) error {
	return &ValidationError{Err: ErrValidation, Message: message}
}

func weakPasswordErr(message string) error {
	return &ValidationError{Err: ErrWeakPassword, Message: message}
}

// ValidationMessage extracts the client-facing message, or "" when err
// carries none.
func ValidationMessage(err error) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Message
	}
	return ""
}
