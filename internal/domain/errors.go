package domain

import (
	"errors"
	"net/http"
)

// ErrorKind - класс ошибки шлюза. Определяет HTTP-статус и то, что видит клиент.
type ErrorKind string

const (
	KindAuthentication      ErrorKind = "authentication"
	KindAuthorization       ErrorKind = "authorization"
	KindRateLimit           ErrorKind = "rate_limit_exceeded"
	KindNoProvider          ErrorKind = "no_provider_available"
	KindProvider            ErrorKind = "provider_error"
	KindPolicyInconsistency ErrorKind = "policy_inconsistency"
	KindInfrastructure      ErrorKind = "infrastructure"
	KindValidation          ErrorKind = "validation"
	KindNotFound            ErrorKind = "not_found"
)

// Error - ошибка с классом и публичным сообщением. Err (внутренняя причина)
// наружу никогда не отдается, только логируется.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return string(e.Kind) + ": " + e.Message + ": " + e.Err.Error()
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is сравнивает по классу, чтобы errors.Is(err, ErrRateLimited) работал для любых экземпляров
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindRateLimit:
		return http.StatusTooManyRequests
	case KindNoProvider, KindProvider:
		return http.StatusBadGateway
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

var (
	ErrUnauthenticated     = &Error{Kind: KindAuthentication, Message: "Invalid or missing API key"}
	ErrForbidden           = &Error{Kind: KindAuthorization, Message: "Insufficient permissions"}
	ErrRateLimited         = &Error{Kind: KindRateLimit, Message: "Rate limit exceeded"}
	ErrNoProviderAvailable = &Error{Kind: KindNoProvider, Message: "No AI provider available"}
	ErrInfrastructure      = &Error{Kind: KindInfrastructure, Message: "Internal server error"}
	ErrNotFound            = &Error{Kind: KindNotFound, Message: "Not found"}
)

func NewError(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// Infra оборачивает сбой хранилища/сети в InfrastructureError
func Infra(cause error) *Error {
	return &Error{Kind: KindInfrastructure, Message: ErrInfrastructure.Message, Err: cause}
}

func Invalid(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

// PublicError превращает любую ошибку в (статус, сообщение) для клиента.
// Неклассифицированные ошибки становятся 500 без деталей.
func PublicError(err error) (int, string) {
	var e *Error
	if errors.As(err, &e) {
		return e.HTTPStatus(), e.Message
	}
	return http.StatusInternalServerError, ErrInfrastructure.Message
}
