package services

import "errors"

type ErrorCode string

const (
	ErrorInvalid      ErrorCode = "invalid"
	ErrorNotFound     ErrorCode = "not_found"
	ErrorConflict     ErrorCode = "conflict"
	ErrorEmptyScope   ErrorCode = "empty_scope"
	ErrorUnauthorized ErrorCode = "unauthorized"
	ErrorForbidden    ErrorCode = "forbidden"
)

type ServiceError struct {
	Code    ErrorCode
	Message string
}

func (e *ServiceError) Error() string { return e.Message }

func NewInvalidError(msg string) error  { return &ServiceError{Code: ErrorInvalid, Message: msg} }
func NewNotFoundError(msg string) error { return &ServiceError{Code: ErrorNotFound, Message: msg} }
func NewConflictError(msg string) error { return &ServiceError{Code: ErrorConflict, Message: msg} }

func NewUnauthorizedError(msg string) error {
	return &ServiceError{Code: ErrorUnauthorized, Message: msg}
}

func NewForbiddenError(msg string) error { return &ServiceError{Code: ErrorForbidden, Message: msg} }

func AsServiceError(err error) (*ServiceError, bool) {
	var se *ServiceError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// Named failure kinds of the engine. These are returned directly so callers
// can match them with errors.Is.
var (
	ErrCodeNotFound  = &ServiceError{Code: ErrorNotFound, Message: "access code not found"}
	ErrCodeInactive  = &ServiceError{Code: ErrorConflict, Message: "access code inactive"}
	ErrCodeExpired   = &ServiceError{Code: ErrorConflict, Message: "access code expired"}
	ErrCodeExhausted = &ServiceError{Code: ErrorConflict, Message: "access code exhausted"}

	ErrSessionNotFound   = &ServiceError{Code: ErrorNotFound, Message: "session not found"}
	ErrSessionCompleted  = &ServiceError{Code: ErrorConflict, Message: "session already completed"}
	ErrQuestionNotInList = &ServiceError{Code: ErrorConflict, Message: "question not in session question list"}

	ErrEmptyScope = &ServiceError{Code: ErrorEmptyScope, Message: "no completed sessions in scope"}
)
