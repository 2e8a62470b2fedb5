package cherry

import (
	"errors"
	"fmt"
)

var (
	// ErrPolicyViolation is returned when a command is used in the wrong
	// channel, or by someone lacking the required role/permission
	ErrPolicyViolation = errors.New("policy violation")

	// ErrDuplicateResource is returned when creating something that
	// already exists (ex: a second ticket of the same category)
	ErrDuplicateResource = errors.New("duplicate resource")

	// ErrExternalService wraps failed discord or AI completion calls
	ErrExternalService = errors.New("external service failure")

	// ErrPersistence wraps failed document reads/writes
	ErrPersistence = errors.New("persistence failure")

	// ErrNotFound is returned when a referenced channel or entry is absent
	ErrNotFound = errors.New("not found")
)

const (
	msgGenericFailure   = "❌ An error occurred while executing this command."
	msgUnknownComponent = "⚠️ Unknown action."
)

// UserError pairs an error kind with the message shown to the user.
// Internal detail stays in Err and is only ever logged.
type UserError struct {
	Kind    error
	Message string
	Err     error
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *UserError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

func newUserError(kind error, message string) *UserError {
	return &UserError{Kind: kind, Message: message}
}

func policyViolation(message string) *UserError {
	return newUserError(ErrPolicyViolation, message)
}

func duplicateResource(message string) *UserError {
	return newUserError(ErrDuplicateResource, message)
}

func notFound(message string) *UserError {
	return newUserError(ErrNotFound, message)
}

// externalFailure wraps err as ErrExternalService, with the given
// user-facing message
func externalFailure(message string, err error) *UserError {
	return &UserError{Kind: ErrExternalService, Message: message, Err: err}
}

// userMessage returns the text that should be shown to the user for err
func userMessage(err error) string {
	var ue *UserError
	if errors.As(err, &ue) && ue.Message != "" {
		return ue.Message
	}
	return msgGenericFailure
}

// persistenceFailure wraps err as ErrPersistence, with the given
// user-facing message
func persistenceFailure(message string, err error) *UserError {
	return &UserError{Kind: ErrPersistence, Message: message, Err: err}
}
