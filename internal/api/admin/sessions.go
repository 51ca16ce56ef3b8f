// sessions.go implements handlers for listing and revoking admin sessions.
package admin

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sports-federation/federation-portal/internal/apierror"
	"github.com/sports-federation/federation-portal/internal/audit"
	"github.com/sports-federation/federation-portal/internal/auth"
	"github.com/sports-federation/federation-portal/internal/db/models"
	"github.com/sports-federation/federation-portal/internal/middleware"
	"github.com/sports-federation/federation-portal/internal/sessions"
	"github.com/sports-federation/federation-portal/internal/telemetry"
)

// UserLookup loads admin accounts by id.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*models.AdminUser, error)
}

// SessionHandlers handles session management endpoints
type SessionHandlers struct {
	sessions sessions.Store
	users    UserLookup
	activity *audit.Logger
	tokenTTL time.Duration
	auth     *AuthHandlers
}

// NewSessionHandlers creates a new SessionHandlers instance. authHandlers is
// used to clear the cookie when callers revoke their own current session.
func NewSessionHandlers(store sessions.Store, users UserLookup, activity *audit.Logger, tokenTTL time.Duration, authHandlers *AuthHandlers) *SessionHandlers {
	return &SessionHandlers{
		sessions: store,
		users:    users,
		activity: activity,
		tokenTTL: tokenTTL,
		auth:     authHandlers,
	}
}

type sessionResponse struct {
	SessionID string    `json:"session_id"`
	IPAddress string    `json:"ip_address"`
	UserAgent string    `json:"user_agent"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Current   bool      `json:"current"`
}

// @Summary      List my sessions
// @Tags         Sessions
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "success, sessions: []sessionResponse"
// @Failure      401  {object}  apierror.Body  "Unauthorized"
// @Router       /api/admin/sessions [get]
// ListMySessionsHandler lists the caller's active sessions
// GET /api/admin/sessions
func (h *SessionHandlers) ListMySessionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, _ := middleware.PrincipalFrom(c)

		list, err := h.sessions.ListByUser(c.Request.Context(), p.UserID)
		if err != nil {
			apierror.Respond(c, apierror.Persistence(fmt.Errorf("list sessions: %w", err)))
			return
		}

		out := make([]sessionResponse, 0, len(list))
		for _, s := range list {
			out = append(out, sessionResponse{
				SessionID: s.SessionID,
				IPAddress: s.IPAddress,
				UserAgent: s.UserAgent,
				CreatedAt: s.CreatedAt,
				ExpiresAt: s.ExpiresAt(h.tokenTTL),
				Current:   s.SessionID == p.SessionID,
			})
		}

		c.JSON(http.StatusOK, gin.H{"success": true, "sessions": out})
	}
}

// @Summary      Revoke a session
// @Description  Revoke one session. Owners may revoke their own sessions; super admins may revoke any.
// @Tags         Sessions
// @Produce      json
// @Param        id  path  string  true  "Session ID"
// @Success      200  {object}  apierror.Body
// @Failure      403  {object}  apierror.Body  "Forbidden"
// @Failure      404  {object}  apierror.Body  "Data tidak ditemukan"
// @Router       /api/admin/sessions/{id} [delete]
// RevokeSessionHandler deletes a single session
// DELETE /api/admin/sessions/:id
func (h *SessionHandlers) RevokeSessionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		p, _ := middleware.PrincipalFrom(c)
		id := c.Param("id")

		session, err := h.sessions.Get(ctx, id)
		if err != nil {
			apierror.Respond(c, apierror.Persistence(fmt.Errorf("get session: %w", err)))
			return
		}
		if session == nil {
			apierror.Respond(c, apierror.NotFound(apierror.MsgNotFound))
			return
		}
		if session.UserID != p.UserID && !p.IsSuperAdmin() {
			telemetry.AuthFailuresTotal.WithLabelValues(string(auth.ReasonForbidden)).Inc()
			audit.MarkRecorded(c)
			h.activity.Log(ctx, audit.Entry{
				ActorID:    audit.StrPtr(p.UserID),
				Action:     audit.ActionForbidden,
				EntityType: audit.EntitySession,
				EntityID:   audit.StrPtr(id),
				Metadata: map[string]interface{}{
					"reason":   "not_session_owner",
					"owner_id": session.UserID,
				},
				IPAddress: c.ClientIP(),
				UserAgent: c.Request.UserAgent(),
			})
			apierror.Respond(c, apierror.Authorization(apierror.MsgForbidden))
			return
		}

		if err := h.sessions.Delete(ctx, id); err != nil {
			apierror.Respond(c, apierror.Persistence(fmt.Errorf("delete session: %w", err)))
			return
		}
		telemetry.SessionsRevokedTotal.WithLabelValues("single").Inc()

		audit.MarkRecorded(c)
		h.activity.Log(ctx, audit.Entry{
			ActorID:    audit.StrPtr(p.UserID),
			Action:     audit.ActionSessionRevoked,
			EntityType: audit.EntitySession,
			EntityID:   audit.StrPtr(id),
			Metadata:   map[string]interface{}{"owner_id": session.UserID},
			IPAddress:  c.ClientIP(),
			UserAgent:  c.Request.UserAgent(),
		})

		if id == p.SessionID && h.auth != nil {
			h.auth.clearTokenCookie(c)
		}
		c.JSON(http.StatusOK, apierror.Body{Success: true, Message: "Sesi berhasil dicabut"})
	}
}

// @Summary      Revoke all sessions of a user
// @Description  Force sign-out of an administrator. Requires super_admin.
// @Tags         Sessions
// @Produce      json
// @Param        id  path  string  true  "Admin user ID"
// @Success      200  {object}  map[string]interface{}  "success, message, count"
// @Failure      403  {object}  apierror.Body  "Forbidden"
// @Failure      404  {object}  apierror.Body  "Data tidak ditemukan"
// @Router       /api/admin/users/{id}/sessions [delete]
// RevokeUserSessionsHandler deletes every session of a user
// DELETE /api/admin/users/:id/sessions
func (h *SessionHandlers) RevokeUserSessionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		p, _ := middleware.PrincipalFrom(c)
		userID := c.Param("id")

		user, err := h.users.GetByID(ctx, userID)
		if err != nil {
			apierror.Respond(c, apierror.Persistence(fmt.Errorf("get admin user: %w", err)))
			return
		}
		if user == nil {
			apierror.Respond(c, apierror.NotFound(apierror.MsgNotFound))
			return
		}

		count, err := h.sessions.DeleteByUser(ctx, userID)
		if err != nil {
			apierror.Respond(c, apierror.Persistence(fmt.Errorf("delete user sessions: %w", err)))
			return
		}
		telemetry.SessionsRevokedTotal.WithLabelValues("user").Add(float64(count))

		audit.MarkRecorded(c)
		h.activity.Log(ctx, audit.Entry{
			ActorID:    audit.StrPtr(p.UserID),
			Action:     audit.ActionSessionsRevoked,
			EntityType: audit.EntityAdminUser,
			EntityID:   audit.StrPtr(userID),
			Metadata:   map[string]interface{}{"count": count},
			IPAddress:  c.ClientIP(),
			UserAgent:  c.Request.UserAgent(),
		})

		if userID == p.UserID && h.auth != nil {
			h.auth.clearTokenCookie(c)
		}
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": strconv.FormatInt(count, 10) + " sesi dicabut",
			"count":   count,
		})
	}
}
