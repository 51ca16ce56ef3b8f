package auth

import (
	"fmt"
	"net/http"
)

// Role is an admin account's privilege level.
type Role string

const (
	RoleSuperAdmin Role = "super_admin"
	RoleAdmin      Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleSuperAdmin || r == RoleAdmin
}

// Principal is the authenticated caller of a request. It is derived from
// verified token claims after the session was confirmed to exist.
type Principal struct {
	UserID    string
	Email     string
	Role      Role
	SessionID string
}

// IsSuperAdmin reports whether the principal holds the super_admin role.
func (p *Principal) IsSuperAdmin() bool {
	return p != nil && p.Role == RoleSuperAdmin
}

// FailureReason classifies why a request could not be authorized.
type FailureReason string

const (
	ReasonNoToken        FailureReason = "no_token"
	ReasonInvalidToken   FailureReason = "invalid_token"
	ReasonSessionRevoked FailureReason = "session_revoked"
	ReasonForbidden      FailureReason = "forbidden"
)

// Failure is the error returned when a request is not authorized.
type Failure struct {
	Reason FailureReason
	Err    error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("authorization failed (%s): %v", f.Reason, f.Err)
	}
	return fmt.Sprintf("authorization failed (%s)", f.Reason)
}

func (f *Failure) Unwrap() error { return f.Err }

// StatusCode maps the failure to an HTTP status: 403 for forbidden, 401 otherwise.
func (f *Failure) StatusCode() int {
	if f.Reason == ReasonForbidden {
		return http.StatusForbidden
	}
	return http.StatusUnauthorized
}
