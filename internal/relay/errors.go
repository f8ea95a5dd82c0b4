// ABOUTME: Structured error taxonomy for relay operations
// ABOUTME: Callers see a kind and a safe message; the underlying cause stays server-side

package relay

import (
	"errors"
	"net/http"
)

// Kind classifies a relay failure
type Kind string

const (
	KindAuthenticationMissing  Kind = "AuthenticationMissing"
	KindAuthenticationInvalid  Kind = "AuthenticationInvalid"
	KindValidationFailed       Kind = "ValidationFailed"
	KindStorageUnavailable     Kind = "StorageUnavailable"
	KindUpstreamDeliveryFailed Kind = "UpstreamDeliveryFailed"
	KindNotConfigured          Kind = "NotConfigured"
	KindRateLimited            Kind = "RateLimited"
	KindNotFound               Kind = "NotFound"
	KindPermissionDenied       Kind = "PermissionDenied"
	KindInternal               Kind = "Internal"
)

// Error is returned by every Service operation that fails.
// Message is safe to show to clients; Err is for logs only.
type Error struct {
	Kind    Kind
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

func newError(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// KindOf returns the kind of a relay error, or KindInternal for anything else
func KindOf(err error) Kind {
	var rerr *Error
	if errors.As(err, &rerr) {
		return rerr.Kind
	}
	return KindInternal
}

// MessageOf returns the client-safe message for err
func MessageOf(err error) string {
	var rerr *Error
	if errors.As(err, &rerr) {
		return rerr.Message
	}
	return "internal error"
}

// HTTPStatus maps a kind onto a response status
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindAuthenticationMissing:
		return http.StatusUnauthorized
	case KindAuthenticationInvalid:
		return http.StatusForbidden
	case KindValidationFailed:
		return http.StatusBadRequest
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindNotFound:
		return http.StatusNotFound
	case KindPermissionDenied:
		return http.StatusForbidden
	case KindUpstreamDeliveryFailed:
		return http.StatusBadGateway
	case KindNotConfigured:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
