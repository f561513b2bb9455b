// Package pkg holds small cross-cutting helpers shared by every layer:
// a closed sentinel-error taxonomy and the REST response envelope built on
// top of it.
package pkg

import (
	"errors"
	"net/http"
)

// Sentinel errors every service returns. Callers compare with errors.Is;
// wrapping with fmt.Errorf("%w: ...") adds detail without losing the kind.
var (
	ErrNotFound      = errors.New("not found")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrForbidden     = errors.New("forbidden")
	ErrAlreadyExists = errors.New("already exists")
	ErrBadRequest    = errors.New("bad request")
	ErrConflict      = errors.New("conflict")
	ErrInternal      = errors.New("internal error")
)

// MapErrorToStatus maps a sentinel error (or a wrapped chain ending in one)
// to the HTTP status the REST surface should report.
func MapErrorToStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrAlreadyExists), errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// WSErrorCode is one of the stable WS error-frame discriminators.
type WSErrorCode string

const (
	CodeInvalidJSON       WSErrorCode = "INVALID_JSON"
	CodeNotAuthenticated  WSErrorCode = "NOT_AUTHENTICATED"
	CodeRateLimited       WSErrorCode = "RATE_LIMITED"
	CodeNotInServer       WSErrorCode = "NOT_IN_SERVER"
	CodeNotInChannel      WSErrorCode = "NOT_IN_CHANNEL"
	CodeChannelNotFound   WSErrorCode = "CHANNEL_NOT_FOUND"
	CodeNoPermission      WSErrorCode = "NO_PERMISSION"
	CodeChannelFull       WSErrorCode = "CHANNEL_FULL"
	CodeProducerLimit     WSErrorCode = "PRODUCER_LIMIT"
	CodeNotReady          WSErrorCode = "NOT_READY"
	CodeCannotConsume     WSErrorCode = "CANNOT_CONSUME"
	CodeChatTooLarge      WSErrorCode = "CHAT_TOO_LARGE"
	CodeUnknownMessage    WSErrorCode = "UNKNOWN_MESSAGE"
	CodeInternalError     WSErrorCode = "INTERNAL_ERROR"
)
