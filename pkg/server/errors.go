package server

import (
	"errors"
	"net/http"
)

var (
	ErrMissingClaim   = errors.New("missing session claim")
	ErrMissingKey     = errors.New("missing public key")
	ErrInvalidKey     = errors.New("invalid public key")
	ErrClaimRejected  = errors.New("session claim rejected")
	ErrKeyMismatch    = errors.New("public key does not match the session")
	ErrRoomNotFound   = errors.New("room not found")
	ErrRoomClosed     = errors.New("room closed")
	ErrRoomExists     = errors.New("room already has a host")
	ErrEncoding       = errors.New("no supported encoding")
	ErrTargetNotFound = errors.New("target peer not found")
	ErrNotHost        = errors.New("only the host can do that")
	ErrServerClosed   = errors.New("server closed")
)

// StatusCode maps a handshake error to the HTTP status returned before the
// websocket upgrade
func StatusCode(err error) int {
	switch {
	case errors.Is(err, ErrMissingClaim), errors.Is(err, ErrMissingKey), errors.Is(err, ErrInvalidKey):
		return http.StatusUnauthorized
	case errors.Is(err, ErrClaimRejected), errors.Is(err, ErrKeyMismatch):
		return http.StatusForbidden
	case errors.Is(err, ErrRoomNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrRoomClosed):
		return http.StatusGone
	case errors.Is(err, ErrRoomExists):
		return http.StatusConflict
	case errors.Is(err, ErrEncoding):
		return http.StatusNotAcceptable
	case errors.Is(err, ErrServerClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}
