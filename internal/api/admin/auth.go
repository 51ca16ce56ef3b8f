// auth.go implements HTTP handlers for admin email/password login, logout, and
// the current-user lookup.
package admin

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	validation "github.com/go-ozzo/ozzo-validation"

	"github.com/sports-federation/federation-portal/internal/apierror"
	"github.com/sports-federation/federation-portal/internal/audit"
	"github.com/sports-federation/federation-portal/internal/auth"
	"github.com/sports-federation/federation-portal/internal/db/models"
	"github.com/sports-federation/federation-portal/internal/middleware"
	"github.com/sports-federation/federation-portal/internal/sessions"
	"github.com/sports-federation/federation-portal/internal/telemetry"
)

// CredentialStore looks up admin accounts by email.
type CredentialStore interface {
	FindByEmail(ctx context.Context, email string) (*models.AdminUser, error)
}

// CookieSettings controls the admin_token cookie attributes.
type CookieSettings struct {
	Name   string
	Domain string
	Secure bool
}

// AuthHandlers handles authentication-related endpoints
type AuthHandlers struct {
	users     CredentialStore
	passwords *auth.PasswordVerifier
	codec     *auth.TokenCodec
	sessions  sessions.Store
	activity  *audit.Logger
	cookie    CookieSettings
}

// NewAuthHandlers creates a new AuthHandlers instance
func NewAuthHandlers(users CredentialStore, passwords *auth.PasswordVerifier, codec *auth.TokenCodec, store sessions.Store, activity *audit.Logger, cookie CookieSettings) *AuthHandlers {
	return &AuthHandlers{
		users:     users,
		passwords: passwords,
		codec:     codec,
		sessions:  store,
		activity:  activity,
		cookie:    cookie,
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r loginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required),
		validation.Field(&r.Password, validation.Required),
	)
}

type userResponse struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username,omitempty"`
	Role     string `json:"role"`
}

type loginResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	User    userResponse `json:"user"`
}

type meResponse struct {
	Success bool         `json:"success"`
	User    userResponse `json:"user"`
}

// @Summary      Admin login
// @Description  Verify email and password, create a session and set the admin_token cookie
// @Tags         Authentication
// @Accept       json
// @Produce      json
// @Param        body  body  loginRequest  true  "Credentials"
// @Success      200  {object}  loginResponse
// @Failure      400  {object}  apierror.Body  "Email dan password wajib diisi"
// @Failure      401  {object}  apierror.Body  "Email atau password salah"
// @Failure      429  {object}  apierror.Body  "Rate limit exceeded"
// @Failure      500  {object}  apierror.Body  "Terjadi kesalahan pada server"
// @Router       /api/auth/login [post]
// LoginHandler authenticates an administrator
// POST /api/auth/login
func (h *AuthHandlers) LoginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		// A malformed body is reported the same way as missing fields.
		var req loginRequest
		_ = c.ShouldBindJSON(&req)
		req.Email = strings.TrimSpace(req.Email)
		if err := req.Validate(); err != nil {
			telemetry.LoginAttemptsTotal.WithLabelValues("bad_request").Inc()
			apierror.Respond(c, apierror.Validation(apierror.MsgMissingFields))
			return
		}

		user, err := h.users.FindByEmail(ctx, req.Email)
		if err != nil {
			telemetry.LoginAttemptsTotal.WithLabelValues("error").Inc()
			apierror.Respond(c, apierror.Persistence(fmt.Errorf("find admin by email: %w", err)))
			return
		}

		if user == nil {
			h.passwords.VerifyMissing(req.Password)
			h.loginFailed(c, nil, req.Email, "user not found")
			return
		}

		if !h.passwords.Verify(req.Password, user.PasswordHash) {
			h.loginFailed(c, user, req.Email, "wrong password")
			return
		}

		sessionID, err := h.sessions.Create(ctx, user.ID, c.ClientIP(), c.Request.UserAgent())
		if err != nil {
			telemetry.LoginAttemptsTotal.WithLabelValues("error").Inc()
			apierror.Respond(c, apierror.Persistence(fmt.Errorf("create session: %w", err)))
			return
		}

		token, _, err := h.codec.Sign(auth.Claims{
			UserID:    user.ID,
			Email:     user.Email,
			Role:      auth.Role(user.Role),
			SessionID: sessionID,
		})
		if err != nil {
			if delErr := h.sessions.Delete(ctx, sessionID); delErr != nil {
				slog.Error("failed to discard session after signing error", "session_id", sessionID, "error", delErr)
			}
			telemetry.LoginAttemptsTotal.WithLabelValues("error").Inc()
			apierror.Respond(c, apierror.Persistence(err))
			return
		}

		h.setTokenCookie(c, token)
		telemetry.LoginAttemptsTotal.WithLabelValues("success").Inc()
		h.activity.Log(ctx, audit.Entry{
			ActorID:    audit.StrPtr(user.ID),
			Action:     audit.ActionLoginSuccess,
			EntityType: audit.EntityAdminUser,
			EntityID:   audit.StrPtr(user.ID),
			Metadata:   map[string]interface{}{"session_id": sessionID},
			IPAddress:  c.ClientIP(),
			UserAgent:  c.Request.UserAgent(),
		})

		c.JSON(http.StatusOK, loginResponse{
			Success: true,
			Message: "Login berhasil",
			User: userResponse{
				ID:       user.ID,
				Email:    user.Email,
				Username: user.Username,
				Role:     user.Role,
			},
		})
	}
}

// loginFailed records the failed attempt and answers with the generic 401.
// user is nil when the email did not resolve to an account.
func (h *AuthHandlers) loginFailed(c *gin.Context, user *models.AdminUser, email, reason string) {
	telemetry.LoginAttemptsTotal.WithLabelValues("invalid_credentials").Inc()

	entry := audit.Entry{
		Action:     audit.ActionLoginFailed,
		EntityType: audit.EntityAdminUser,
		Metadata:   map[string]interface{}{"reason": reason, "email": email},
		IPAddress:  c.ClientIP(),
		UserAgent:  c.Request.UserAgent(),
	}
	if user != nil {
		entry.ActorID = audit.StrPtr(user.ID)
		entry.EntityID = audit.StrPtr(user.ID)
	}
	h.activity.Log(c.Request.Context(), entry)

	apierror.Respond(c, apierror.Authentication(apierror.MsgInvalidCredentials))
}

// @Summary      Admin logout
// @Description  Revoke the session named by the admin_token cookie and clear the cookie. Always succeeds.
// @Tags         Authentication
// @Produce      json
// @Success      200  {object}  apierror.Body
// @Router       /api/auth/logout [post]
// LogoutHandler ends the caller's session
// POST /api/auth/logout
func (h *AuthHandlers) LogoutHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if cookie, err := c.Request.Cookie(h.cookie.Name); err == nil && cookie.Value != "" {
			h.revokeFromToken(c, cookie.Value)
		}

		h.clearTokenCookie(c)
		c.JSON(http.StatusOK, apierror.Body{Success: true, Message: "Logout berhasil"})
	}
}

// revokeFromToken deletes the session a token names. Expired tokens are
// accepted so their session rows can still be removed; forged or malformed
// ones are ignored.
func (h *AuthHandlers) revokeFromToken(c *gin.Context, token string) {
	ctx := c.Request.Context()

	claims, err := h.codec.VerifyIgnoringExpiry(token)
	if err != nil {
		slog.Debug("logout with unverifiable token", "error", err)
		return
	}

	if err := h.sessions.Delete(ctx, claims.SessionID); err != nil {
		slog.Error("failed to delete session on logout", "session_id", claims.SessionID, "error", err)
		return
	}
	telemetry.SessionsRevokedTotal.WithLabelValues("logout").Inc()

	h.activity.Log(ctx, audit.Entry{
		ActorID:    audit.StrPtr(claims.UserID),
		Action:     audit.ActionLogout,
		EntityType: audit.EntitySession,
		EntityID:   audit.StrPtr(claims.SessionID),
		IPAddress:  c.ClientIP(),
		UserAgent:  c.Request.UserAgent(),
	})
}

// @Summary      Current admin
// @Description  Return the authenticated administrator
// @Tags         Authentication
// @Produce      json
// @Success      200  {object}  meResponse
// @Failure      401  {object}  apierror.Body  "Unauthorized"
// @Router       /api/auth/me [get]
// MeHandler returns the principal resolved by RequireAuth
// GET /api/auth/me
func (h *AuthHandlers) MeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := middleware.PrincipalFrom(c)
		if !ok {
			apierror.Respond(c, apierror.Authentication(apierror.MsgUnauthorized))
			return
		}
		c.JSON(http.StatusOK, meResponse{
			Success: true,
			User: userResponse{
				ID:    p.UserID,
				Email: p.Email,
				Role:  string(p.Role),
			},
		})
	}
}

func (h *AuthHandlers) setTokenCookie(c *gin.Context, token string) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    token,
		Path:     "/",
		Domain:   h.cookie.Domain,
		MaxAge:   int(h.codec.TTL() / time.Second),
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// clearTokenCookie expires the cookie with the same attributes it was set with.
func (h *AuthHandlers) clearTokenCookie(c *gin.Context) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    "",
		Path:     "/",
		Domain:   h.cookie.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
