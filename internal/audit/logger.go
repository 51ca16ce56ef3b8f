// Package audit records administrator activity. Every record is written to
// the activity_logs table and, when shippers are configured, copied to
// external destinations in the background.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sports-federation/federation-portal/internal/db/models"
	"github.com/sports-federation/federation-portal/internal/safego"
	"github.com/sports-federation/federation-portal/internal/telemetry"
)

// Activity actions recorded by the portal.
const (
	ActionLoginSuccess    = "Login Success"
	ActionLoginFailed     = "Login Failed"
	ActionLogout          = "Logout"
	ActionUnauthorized    = "Unauthorized Access"
	ActionForbidden       = "Access Forbidden"
	ActionSessionRevoked  = "Session Revoked"
	ActionSessionsRevoked = "Sessions Revoked"
)

// Entity types referenced by activity records.
const (
	EntityAdminUser = "admin_user"
	EntitySession   = "session"
	EntityRequest   = "request"
)

const writeTimeout = 5 * time.Second

// Writer persists activity records.
type Writer interface {
	Create(ctx context.Context, log *models.ActivityLog) error
}

// Entry describes one activity to record.
type Entry struct {
	ActorID    *string
	Action     string
	EntityType string
	EntityID   *string
	Metadata   map[string]interface{}
	IPAddress  string
	UserAgent  string
}

// Logger writes activity records. Recording never fails the caller: errors
// are logged and counted in activity_log_write_failures_total.
type Logger struct {
	writer  Writer
	shipper Shipper
	group   safego.Group
}

// NewLogger creates a Logger. shipper may be nil.
func NewLogger(writer Writer, shipper Shipper) *Logger {
	return &Logger{writer: writer, shipper: shipper}
}

// Log writes the entry. The write runs under a context detached from the
// request's cancellation so a client disconnect does not drop the record.
func (l *Logger) Log(ctx context.Context, e Entry) {
	if l == nil {
		return
	}

	log := &models.ActivityLog{
		ActorUserID: e.ActorID,
		Action:      e.Action,
		EntityType:  e.EntityType,
		EntityID:    e.EntityID,
		Metadata:    e.Metadata,
		IPAddress:   e.IPAddress,
		UserAgent:   e.UserAgent,
	}

	persisted := true
	if l.writer != nil {
		writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
		err := l.writer.Create(writeCtx, log)
		cancel()
		if err != nil {
			persisted = false
			telemetry.ActivityLogWriteFailuresTotal.Inc()
			slog.Error("failed to write activity log",
				"action", e.Action,
				"entity_type", e.EntityType,
				"error", err)
		}
	}

	if l.shipper == nil {
		return
	}
	entry := newShipEntry(log, persisted)
	l.group.Go("audit-ship", func() {
		shipCtx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		if err := l.shipper.Ship(shipCtx, entry); err != nil {
			slog.Warn("failed to ship activity log", "action", entry.Action, "error", err)
		}
	})
}

// Close waits for in-flight shipping to finish and closes the shipper.
func (l *Logger) Close(ctx context.Context) error {
	if l == nil {
		return nil
	}
	err := l.group.Wait(ctx)
	if l.shipper != nil {
		if cerr := l.shipper.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// StrPtr returns nil for an empty string, otherwise a pointer to s.
func StrPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

const recordedKey = "activity_recorded"

// MarkRecorded flags the request as having written its own activity record so
// the mutation middleware does not add a generic one.
func MarkRecorded(c *gin.Context) {
	c.Set(recordedKey, true)
}

// Recorded reports whether MarkRecorded was called for the request.
func Recorded(c *gin.Context) bool {
	return c.GetBool(recordedKey)
}
