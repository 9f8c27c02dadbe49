package app

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrEmptyTurn            = errors.New("message content and attachments are both empty")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrAttachmentNotFound   = errors.New("attachment not found")
	ErrUsernameExists       = errors.New("username already exists")
	ErrEmailExists          = errors.New("email already exists")
	ErrInvalidCredential    = errors.New("invalid username or password")
	ErrFileTooLarge         = errors.New("file exceeds the size limit")
	ErrUnsupportedFileType  = errors.New("unsupported file type")
)

// ProviderError wraps a failure that happened after the completion stream was
// opened. For streaming callers it is surfaced as an error event; for the
// synchronous endpoint it propagates as a regular error. Partial reports
// whether any assistant text was produced (and therefore persisted) before
// the failure.
type ProviderError struct {
	Err     error
	Partial bool
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("completion provider failed: %v", e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}
