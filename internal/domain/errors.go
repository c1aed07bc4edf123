package domain

import (
	"errors"
	"fmt"
)

// Error classes. Every specific error below wraps exactly one of them so
// callers can branch with errors.Is on the class.
var (
	ErrConnection     = errors.New("connection error")
	ErrSubmission     = errors.New("submission error")
	ErrReconciliation = errors.New("reconciliation error")
	ErrValidation     = errors.New("validation error")
)

var (
	ErrNotConnected     = fmt.Errorf("%w: wallet not connected", ErrConnection)
	ErrUnknownConnector = fmt.Errorf("%w: no wallet connector available", ErrConnection)
	ErrRequestRejected  = fmt.Errorf("%w: connection request rejected", ErrConnection)
	ErrWrongNetwork     = fmt.Errorf("%w: wallet is on an unsupported network", ErrConnection)

	ErrSelfTip             = fmt.Errorf("%w: cannot tip yourself", ErrValidation)
	ErrNonPositiveAmount   = fmt.Errorf("%w: amount must be positive", ErrValidation)
	ErrInsufficientFunds   = fmt.Errorf("%w: insufficient funds", ErrValidation)
	ErrInvalidAddress      = fmt.Errorf("%w: invalid address", ErrValidation)
	ErrInvalidAvatarURL    = fmt.Errorf("%w: avatar must be an absolute http(s) URL", ErrValidation)
	ErrInvalidCategory     = fmt.Errorf("%w: unknown category", ErrValidation)
	ErrMissingName         = fmt.Errorf("%w: name is required", ErrValidation)
	ErrNotProfileOwner     = fmt.Errorf("%w: profile can only be edited by its owner", ErrValidation)
	ErrDuplicateSubmission = fmt.Errorf("%w: identical tip already submitted", ErrValidation)
	ErrInvalidTransition   = fmt.Errorf("%w: invalid status transition", ErrValidation)
)

// Submission wraps a failed allowance, approval or tip step.
func Submission(step string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrSubmission, step, err)
}

// Reconciliation wraps a failed receipt fetch for hash.
func Reconciliation(hash string, err error) error {
	return fmt.Errorf("%w: receipt %s: %v", ErrReconciliation, hash, err)
}
