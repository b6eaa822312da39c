package remote

import (
	"errors"
	"fmt"
	"net/http"
)

// Failure classes. An *APIError matches the one its status maps to, so
// callers branch with errors.Is and never look at status codes.
var (
	ErrNetwork      = errors.New("network unreachable")
	ErrValidation   = errors.New("request rejected as invalid")
	ErrUnauthorized = errors.New("not authenticated")
	ErrForbidden    = errors.New("not allowed")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrRateLimited  = errors.New("rate limited")
	ErrServer       = errors.New("server error")
)

// APIError is a failure reported by the API, either through an HTTP status
// or a success:false envelope. Status is 0 in the latter case when the
// response itself was 2xx.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Status == 0 {
		return "api: " + e.Message
	}
	return fmt.Sprintf("api: %d %s", e.Status, e.Message)
}

func (e *APIError) Is(target error) bool {
	return target != nil && target == classify(e.Status)
}

func classify(status int) error {
	switch {
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return ErrValidation
	case status == http.StatusUnauthorized:
		return ErrUnauthorized
	case status == http.StatusForbidden:
		return ErrForbidden
	case status == http.StatusNotFound:
		return ErrNotFound
	case status == http.StatusConflict:
		return ErrConflict
	case status == http.StatusTooManyRequests:
		return ErrRateLimited
	case status >= 500:
		return ErrServer
	}
	return nil
}
