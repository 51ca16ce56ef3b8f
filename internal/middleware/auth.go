// Package middleware provides Gin HTTP middleware for authentication, authorization,
// rate limiting, security headers, and activity logging.
//
// Middleware ordering matters and is enforced in router.go:
//
//	Security → RequestID → Metrics → Logger → RateLimit (login) → Auth → Activity → Handler
//
// Rate limiting runs before the login handler so brute-force attempts are
// rejected before any bcrypt work. Auth populates the principal; the activity
// middleware reads it after the handler has run.
package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sports-federation/federation-portal/internal/apierror"
	"github.com/sports-federation/federation-portal/internal/audit"
	"github.com/sports-federation/federation-portal/internal/auth"
	"github.com/sports-federation/federation-portal/internal/telemetry"
)

// gin.Context keys populated for authenticated requests.
const (
	PrincipalKey = "principal"
	UserIDKey    = "user_id"
	SessionIDKey = "session_id"
	RoleKey      = "role"
)

// SessionChecker reports whether a session is still active.
type SessionChecker interface {
	Exists(ctx context.Context, sessionID string) (bool, error)
}

// Authenticator resolves the admin_token cookie into a Principal.
type Authenticator struct {
	codec       *auth.TokenCodec
	sessions    SessionChecker
	activity    *audit.Logger
	cookieName  string
	logFailures bool
}

// NewAuthenticator creates an Authenticator. activity may be nil; denials are
// then only counted in auth_failures_total.
func NewAuthenticator(codec *auth.TokenCodec, sessions SessionChecker, activity *audit.Logger, cookieName string, logFailures bool) *Authenticator {
	return &Authenticator{
		codec:       codec,
		sessions:    sessions,
		activity:    activity,
		cookieName:  cookieName,
		logFailures: logFailures,
	}
}

// Authenticate verifies the request's token cookie and confirms its session
// still exists. It returns an *auth.Failure for any authentication problem
// and an *apierror.Error when the session store cannot be reached.
func (a *Authenticator) Authenticate(r *http.Request) (*auth.Principal, error) {
	cookie, err := r.Cookie(a.cookieName)
	if err != nil || cookie.Value == "" {
		return nil, &auth.Failure{Reason: auth.ReasonNoToken}
	}

	claims, err := a.codec.Verify(cookie.Value)
	if err != nil {
		return nil, &auth.Failure{Reason: auth.ReasonInvalidToken, Err: err}
	}

	active, err := a.sessions.Exists(r.Context(), claims.SessionID)
	if err != nil {
		return nil, apierror.Persistence(fmt.Errorf("check session: %w", err))
	}
	if !active {
		return nil, &auth.Failure{Reason: auth.ReasonSessionRevoked}
	}

	return &auth.Principal{
		UserID:    claims.UserID,
		Email:     claims.Email,
		Role:      claims.Role,
		SessionID: claims.SessionID,
	}, nil
}

// RequireAuth aborts with 401 unless the request carries a valid token for an
// active session.
func (a *Authenticator) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := PrincipalFrom(c); ok {
			c.Next()
			return
		}
		principal, err := a.Authenticate(c.Request)
		if err != nil {
			a.deny(c, err)
			return
		}
		setPrincipal(c, principal)
		c.Next()
	}
}

// RequireSuperAdmin authenticates like RequireAuth and then aborts with 403
// unless the principal holds the super_admin role.
func (a *Authenticator) RequireSuperAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := PrincipalFrom(c)
		if !ok {
			var err error
			principal, err = a.Authenticate(c.Request)
			if err != nil {
				a.deny(c, err)
				return
			}
			setPrincipal(c, principal)
		}

		if !principal.IsSuperAdmin() {
			a.deny(c, &auth.Failure{Reason: auth.ReasonForbidden})
			return
		}
		c.Next()
	}
}

func (a *Authenticator) deny(c *gin.Context, err error) {
	var failure *auth.Failure
	if !errors.As(err, &failure) {
		apierror.Respond(c, err)
		return
	}

	telemetry.AuthFailuresTotal.WithLabelValues(string(failure.Reason)).Inc()

	action := audit.ActionUnauthorized
	message := apierror.MsgUnauthorized
	if failure.Reason == auth.ReasonForbidden {
		action = audit.ActionForbidden
		message = apierror.MsgForbidden
	}

	if a.logFailures {
		var actor *string
		if p, ok := PrincipalFrom(c); ok {
			actor = audit.StrPtr(p.UserID)
		}
		a.activity.Log(c.Request.Context(), audit.Entry{
			ActorID:    actor,
			Action:     action,
			EntityType: audit.EntityRequest,
			Metadata: map[string]interface{}{
				"reason": string(failure.Reason),
				"method": c.Request.Method,
				"path":   c.Request.URL.Path,
			},
			IPAddress: c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		})
	}

	c.AbortWithStatusJSON(failure.StatusCode(), apierror.Body{Success: false, Message: message})
}

func setPrincipal(c *gin.Context, p *auth.Principal) {
	c.Set(PrincipalKey, p)
	c.Set(UserIDKey, p.UserID)
	c.Set(SessionIDKey, p.SessionID)
	c.Set(RoleKey, string(p.Role))
}

// PrincipalFrom returns the principal stored by RequireAuth or RequireSuperAdmin.
func PrincipalFrom(c *gin.Context) (*auth.Principal, bool) {
	v, exists := c.Get(PrincipalKey)
	if !exists {
		return nil, false
	}
	p, ok := v.(*auth.Principal)
	return p, ok && p != nil
}
