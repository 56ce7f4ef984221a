package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ThrottleError - провайдер попросил подождать (429)
type ThrottleError struct {
	RetryAfter time.Duration
	Cause      error
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("throttled: retry after %v (cause: %v)", e.RetryAfter, e.Cause)
}

func (e *ThrottleError) Unwrap() error { return e.Cause }

// StatusError - провайдер ответил HTTP-ошибкой
type StatusError struct {
	StatusCode int
	Cause      error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("provider returned HTTP %d: %v", e.StatusCode, e.Cause)
}

func (e *StatusError) Unwrap() error { return e.Cause }

var ErrEmptyCompletion = errors.New("provider returned empty completion")

// retryable: сетевые сбои, 5xx, 408 и 429. Ошибки запроса (4xx), отмена и пустой ответ не повторяем.
func retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, ErrEmptyCompletion) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= http.StatusInternalServerError || se.StatusCode == http.StatusRequestTimeout
	}
	return true
}
