package evidence

import (
	"errors"
	"fmt"

	"evidencevault/internal/integrity"
	"evidencevault/internal/policy"
)

var (
	// ErrNotFound reports an unknown evidence id or an item whose bytes are gone.
	ErrNotFound = errors.New("evidence not found")
	// ErrForbidden reports a policy denial. The denial is already in the ledger.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidTransition reports an illegal lifecycle change or status string.
	ErrInvalidTransition = policy.ErrInvalidTransition
	// ErrStorageFailure reports blob read or write I/O failure.
	ErrStorageFailure = errors.New("storage failure")
	// ErrIntegrityViolation reports stored bytes that no longer match their digest.
	ErrIntegrityViolation = integrity.ErrIntegrityViolation
	// ErrInvalidInput reports a malformed request.
	ErrInvalidInput = errors.New("invalid input")
)

// DeniedError carries the policy reason code of a denial.
type DeniedError struct {
	Op   policy.Operation
	Code policy.Code
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("%s %s: %s", ErrForbidden, e.Op, e.Code)
}

func (e *DeniedError) Unwrap() error { return ErrForbidden }

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

func storageFailure(err error) error {
	return fmt.Errorf("%w: %v", ErrStorageFailure, err)
}
