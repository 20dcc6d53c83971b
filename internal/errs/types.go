package errs

import (
	"errors"
	"fmt"
)

type ErrorMessage struct {
	Message string
}

func (e *ErrorMessage) Error() string { return e.Message }

type NotFoundError struct {
	ErrorMessage
}

type AlreadyExistsError struct {
	ErrorMessage
}

type ValidationError struct {
	ErrorMessage
}

type ForbiddenError struct {
	ErrorMessage
}

// AlreadyLinkedError is returned when a user with an active account link
// attempts to link another one.
type AlreadyLinkedError struct {
	ErrorMessage
}

// SyncInProgressError is returned when the per-user lease is held by another
// caller.
type SyncInProgressError struct {
	ErrorMessage
	Purpose string
}

// InvalidCredentialError means the provider rejected the stored access
// credential; the link needs to be re-established by the user.
type InvalidCredentialError struct {
	ErrorMessage
	Code string
}

type MalformedClassifierOutputError struct {
	ErrorMessage
	Reason string
}

type QuotaExhaustedError struct {
	ErrorMessage
}

// RenameIncompleteError reports a category rename whose ledger relabel did
// not fully apply.
type RenameIncompleteError struct {
	ErrorMessage
	OldName   string
	NewName   string
	Relabeled int
	Remaining int
}

type DatabaseError struct {
	ErrorMessage
	Operation string
	Err       error
}

func (e *DatabaseError) Unwrap() error { return e.Err }

type ExternalServiceError struct {
	ErrorMessage
	Service   string
	Transient bool
	Err       error
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

type EncryptionError struct {
	ErrorMessage
	Err error
}

func (e *EncryptionError) Unwrap() error { return e.Err }

func NewNotFoundError(message string) *NotFoundError {
	return &NotFoundError{
		ErrorMessage: ErrorMessage{Message: message},
	}
}

func NewAlreadyExistsError(message string) *AlreadyExistsError {
	return &AlreadyExistsError{
		ErrorMessage: ErrorMessage{Message: message},
	}
}

func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		ErrorMessage: ErrorMessage{Message: message},
	}
}

func NewForbiddenError(message string) *ForbiddenError {
	return &ForbiddenError{
		ErrorMessage: ErrorMessage{Message: message},
	}
}

func NewAlreadyLinkedError() *AlreadyLinkedError {
	return &AlreadyLinkedError{
		ErrorMessage: ErrorMessage{Message: "bank account already linked, limit 1 bank account per user"},
	}
}

func NewSyncInProgressError(purpose string) *SyncInProgressError {
	return &SyncInProgressError{
		ErrorMessage: ErrorMessage{Message: "sync already in progress"},
		Purpose:      purpose,
	}
}

func NewInvalidCredentialError(code string) *InvalidCredentialError {
	return &InvalidCredentialError{
		ErrorMessage: ErrorMessage{Message: "bank connection needs to be re-linked"},
		Code:         code,
	}
}

func NewMalformedClassifierOutputError(reason string) *MalformedClassifierOutputError {
	return &MalformedClassifierOutputError{
		ErrorMessage: ErrorMessage{Message: "malformed classifier output"},
		Reason:       reason,
	}
}

func NewQuotaExhaustedError() *QuotaExhaustedError {
	return &QuotaExhaustedError{
		ErrorMessage: ErrorMessage{Message: "chat limit reached, you have no prompts left"},
	}
}

func NewRenameIncompleteError(oldName, newName string, relabeled, unrelabeled int) *RenameIncompleteError {
	return &RenameIncompleteError{
		ErrorMessage: ErrorMessage{Message: fmt.Sprintf(
			"category renamed from %q to %q but %d ledger entries still carry the old name", oldName, newName, unrelabeled)},
		OldName:   oldName,
		NewName:   newName,
		Relabeled: relabeled,
		Remaining: unrelabeled,
	}
}

func NewDatabaseError(operation, message string, err error) *DatabaseError {
	return &DatabaseError{
		ErrorMessage: ErrorMessage{Message: fmt.Sprintf("%s: %v", message, err)},
		Operation:    operation,
		Err:          err,
	}
}

func NewExternalServiceError(service, message string, transient bool, err error) *ExternalServiceError {
	return &ExternalServiceError{
		ErrorMessage: ErrorMessage{Message: fmt.Sprintf("%s: %v", message, err)},
		Service:      service,
		Transient:    transient,
		Err:          err,
	}
}

func NewEncryptionError(message string, err error) *EncryptionError {
	return &EncryptionError{
		ErrorMessage: ErrorMessage{Message: fmt.Sprintf("%s: %v", message, err)},
		Err:          err,
	}
}

// ErrPaginationRestart signals that the provider's data changed mid-sync and
// pagination must restart from the cursor the sync began with.
var ErrPaginationRestart = errors.New("provider data changed during pagination")
