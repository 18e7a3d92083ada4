package domain

import (
	"errors"
	"fmt"
)

// Error kinds surfaced to callers. Concrete errors wrap one of these so
// transports can map them with errors.Is.
var (
	ErrUnauthenticated = errors.New("not authenticated")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrForbidden       = errors.New("forbidden")
	ErrInvalidInput    = errors.New("invalid input")
)

var (
	ErrTeamNotFound       = newError(ErrNotFound, "team not found")
	ErrBlobNotFound       = newError(ErrNotFound, "file not found")
	ErrAlreadyOnTeam      = newError(ErrConflict, "you must leave your current team before joining another")
	ErrCaptainCannotLeave = newError(ErrConflict, "team captain cannot leave the team")
	ErrNotTeamMember      = newError(ErrConflict, "you are not a member of this team")
	ErrCommentForbidden   = newError(ErrForbidden, "only team members can comment")
	ErrCaptainOnly        = newError(ErrForbidden, "only the team captain can change the team")
	ErrEmailTaken         = newError(ErrConflict, "email already registered")
	ErrBadCredentials     = newError(ErrUnauthenticated, "invalid email or password")
	ErrInvalidToken       = newError(ErrUnauthenticated, "invalid or expired token")
	ErrUploadUsed         = newError(ErrConflict, "upload target already used")
)

// Error carries a user-visible message and the kind it belongs to.
type Error struct {
	kind error
	msg  string
}

func newError(kind error, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

// Invalid builds an ErrInvalidInput error with a formatted message.
func Invalid(format string, args ...any) error {
	return newError(ErrInvalidInput, fmt.Sprintf(format, args...))
}

func (e *Error) Error() string { return e.msg }

// Unwrap exposes the kind for errors.Is.
func (e *Error) Unwrap() error { return e.kind }
