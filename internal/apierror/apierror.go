// Package apierror maps internal failures onto the JSON error envelope
// returned by the admin API: {"success": false, "message": "..."}.
package apierror

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Kind classifies an error by how it is reported to clients.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindAuthentication
	KindAuthorization
	KindNotFound
	KindPersistence
)

// Status returns the HTTP status for k.
func (k Kind) Status() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindAuthorization:
		return "authorization"
	case KindNotFound:
		return "not_found"
	case KindPersistence:
		return "persistence"
	default:
		return "unknown"
	}
}

// Client-facing messages.
const (
	MsgMissingFields      = "Email dan password wajib diisi"
	MsgInvalidCredentials = "Email atau password salah"
	MsgUnauthorized       = "Unauthorized"
	MsgForbidden          = "Forbidden"
	MsgNotFound           = "Data tidak ditemukan"
	MsgServerError        = "Terjadi kesalahan pada server"
	MsgTooManyRequests    = "Terlalu banyak percobaan, silakan coba lagi nanti"
)

// Error carries a Kind, the message safe to show clients, and the internal
// cause which is only logged.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Kind.String() + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Kind.String() + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Validation returns a 400 error.
func Validation(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

// Authentication returns a 401 error.
func Authentication(message string) *Error {
	return &Error{Kind: KindAuthentication, Message: message}
}

// Authorization returns a 403 error.
func Authorization(message string) *Error {
	return &Error{Kind: KindAuthorization, Message: message}
}

// NotFound returns a 404 error.
func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

// Persistence wraps a storage failure as a 500 with the generic message.
func Persistence(err error) *Error {
	return &Error{Kind: KindPersistence, Message: MsgServerError, Err: err}
}

// Body is the error envelope.
type Body struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Respond aborts the request with the envelope for err. Errors that are not
// *Error are treated as persistence failures. 5xx causes are logged.
func Respond(c *gin.Context, err error) {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		apiErr = Persistence(err)
	}
	status := apiErr.Kind.Status()
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(c.Request.Context(), "request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"error", err)
	}
	c.AbortWithStatusJSON(status, Body{Success: false, Message: apiErr.Message})
}
