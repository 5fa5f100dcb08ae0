package sharedplan

import (
	"errors"
	"fmt"
)

// Error kinds. Use errors.Is to classify a returned error.
var (
	ErrValidation = errors.New("validation failed")
	ErrForbidden  = errors.New("forbidden")
	ErrNotFound   = errors.New("not found")
)

// Storage-level conditions the Store reports to the service.
var (
	ErrDuplicateInvitation  = errors.New("pending invitation already exists")
	ErrInvitationNotPending = errors.New("invitation is not pending")
	ErrAlreadyMember        = errors.New("user is already a member")
)

// Error is a classified error whose message is safe to show to the caller.
type Error struct {
	Kind error
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func (e *Error) Unwrap() error { return e.Kind }

func invalid(format string, args ...any) error {
	return &Error{Kind: ErrValidation, Msg: fmt.Sprintf(format, args...)}
}

func forbidden(msg string) error {
	return &Error{Kind: ErrForbidden, Msg: msg}
}

func notFound(msg string) error {
	return &Error{Kind: ErrNotFound, Msg: msg}
}
