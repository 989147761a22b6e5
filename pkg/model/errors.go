package model

import (
	"errors"
	"fmt"
)

// Error categories. Callers classify with errors.Is against these.
var (
	// ErrValidation is the parent of every input rejection raised before any I/O
	ErrValidation = errors.New("validation failed")

	// ErrNotFound reports a missing snapshot, backup or balance record
	ErrNotFound = errors.New("not found")

	// ErrUnavailable reports that the durable store could not serve the call.
	// It is never conflated with a zero balance.
	ErrUnavailable = errors.New("durable store unavailable")

	// ErrDecode reports a malformed snapshot blob or wire value
	ErrDecode = errors.New("decode failed")

	// ErrCompensationFailed means a transfer debited the sender, the credit failed
	// and the add-back failed as well. Funds are in limbo and operators must be alerted.
	ErrCompensationFailed = errors.New("transfer compensation failed")
)

// Validation errors
var (
	ErrInvalidAmount     = fmt.Errorf("%w: amount must be a positive finite number", ErrValidation)
	ErrOutOfBounds       = fmt.Errorf("%w: balance outside configured bounds", ErrValidation)
	ErrInsufficientFunds = fmt.Errorf("%w: insufficient funds", ErrValidation)
	ErrInvalidName       = fmt.Errorf("%w: invalid snapshot name", ErrValidation)
	ErrSamePlayer        = fmt.Errorf("%w: cannot transfer to the same player", ErrValidation)
	ErrInvalidPlayerID   = fmt.Errorf("%w: invalid player id", ErrValidation)
)

// Unavailable wraps a store failure so that errors.Is(err, ErrUnavailable) holds
// while the driver error stays inspectable.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}

// StoreError classifies a durable store failure. Domain errors pass through
// unchanged, everything else becomes ErrUnavailable.
func StoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{ErrNotFound, ErrValidation, ErrDecode, ErrUnavailable, ErrCompensationFailed} {
		if errors.Is(err, known) {
			return err
		}
	}
	return Unavailable(op, err)
}
