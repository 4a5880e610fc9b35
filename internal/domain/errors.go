package domain

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind - класс ошибки. Логика ленты работает только с классами,
// а не с кодами конкретного бэкенда.
type Kind string

const (
	KindUnknown          Kind = "UNKNOWN"
	KindNotAuthenticated Kind = "NOT_AUTHENTICATED"
	KindForbidden        Kind = "FORBIDDEN"
	KindUnavailable      Kind = "REMOTE_UNAVAILABLE"
	KindConflict         Kind = "CONFLICT"
	KindNotFound         Kind = "NOT_FOUND"
	KindInvalid          Kind = "VALIDATION_ERROR"
)

// Error - ошибка с классом.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is сравнивает ошибки по классу, поэтому errors.Is(err, ErrNotFound)
// срабатывает для любой ошибки NOT_FOUND.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrNotAuthenticated = &Error{Kind: KindNotAuthenticated, Message: "not authenticated"}
	ErrForbidden        = &Error{Kind: KindForbidden, Message: "forbidden"}
	ErrUnavailable      = &Error{Kind: KindUnavailable, Message: "remote unavailable"}
	ErrConflict         = &Error{Kind: KindConflict, Message: "already exists"}
	ErrNotFound         = &Error{Kind: KindNotFound, Message: "not found"}
	ErrInvalid          = &Error{Kind: KindInvalid, Message: "invalid input"}
)

func NewNotFoundError(resource string, id string) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s with id %s not found", resource, id)}
}

func NewValidationError(message string) *Error {
	return &Error{Kind: KindInvalid, Message: message}
}

func NewConflictError(resource string, err error) *Error {
	return &Error{Kind: KindConflict, Message: resource + " already exists", Err: err}
}

func NewUnavailableError(err error) *Error {
	return &Error{Kind: KindUnavailable, Message: "remote unavailable", Err: err}
}

func NewForbiddenError(message string) *Error {
	return &Error{Kind: KindForbidden, Message: message}
}

// KindOf классифицирует произвольную ошибку.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindUnavailable
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return KindUnavailable
	}
	return KindUnknown
}

// IsTransient сообщает, стоит ли показывать пользователю "попробуйте ещё раз".
func IsTransient(err error) bool {
	switch KindOf(err) {
	case KindUnavailable, KindUnknown:
		return true
	}
	return false
}
