package model

import (
	"errors"
	"fmt"
)

var (
	ErrInput             = errors.New("invalid input")
	ErrProvider          = errors.New("provider unavailable")
	ErrAlignment         = errors.New("degenerate alignment graph")
	ErrOracleTimeout     = errors.New("oracle call timed out")
	ErrSchemaViolation   = errors.New("schema violation")
	ErrContentViolation  = errors.New("content violation")
	ErrAuditWrite        = errors.New("audit write failed")
	ErrInvalidTransition = errors.New("invalid review transition")
	ErrNotFound          = errors.New("not found")
)

// InputError rejects a single malformed clause or vector.
type InputError struct {
	ClauseID string
	Reason   string
}

func (e *InputError) Error() string {
	if e.ClauseID == "" {
		return fmt.Sprintf("invalid input: %s", e.Reason)
	}
	return fmt.Sprintf("invalid input for clause %s: %s", e.ClauseID, e.Reason)
}

func (e *InputError) Unwrap() error { return ErrInput }

// ProviderError excludes a clause whose embedding or index lookup failed.
type ProviderError struct {
	ClauseID string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider failed for clause %s: %v", e.ClauseID, e.Err)
}

func (e *ProviderError) Unwrap() []error { return []error{ErrProvider, e.Err} }
