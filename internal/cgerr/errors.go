// Package cgerr defines the error taxonomy shared across CivicGuard
// components. Callers use errors.As to branch on the error kind; none of
// these errors is retried automatically anywhere in the core.
package cgerr

import "fmt"

// AuthorizationError is returned when an identity is refused a privilege,
// e.g. an ADMIN profile requested for an email outside the allow-list.
type AuthorizationError struct {
	Email  string
	Reason string
}

func (e *AuthorizationError) Error() string {
	if e.Email != "" {
		return fmt.Sprintf("access denied: %s is not authorized for strategic command access", e.Email)
	}
	return "access denied: " + e.Reason
}

// ClassifierContractError is returned when the evidence engine produces a
// response that violates its schema contract: missing required fields,
// out-of-enum classifications, or unparseable output.
type ClassifierContractError struct {
	Reason string
}

func (e *ClassifierContractError) Error() string {
	return "classifier contract violation: " + e.Reason
}

// TransportError wraps a network or storage I/O failure.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// NotFoundError is returned when an operation targets a case id that does
// not exist in the store.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("case %q not found", e.ID)
}

// ValidationError is returned for a malformed case payload or a corrupted
// stored record.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return "invalid payload: " + e.Reason
}
