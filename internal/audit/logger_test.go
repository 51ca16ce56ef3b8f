package audit_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sports-federation/federation-portal/internal/audit"
	"github.com/sports-federation/federation-portal/internal/db/models"
	"github.com/sports-federation/federation-portal/internal/telemetry"
)

type fakeWriter struct {
	mu      sync.Mutex
	logs    []*models.ActivityLog
	err     error
	ctxErrs []error
}

func (w *fakeWriter) Create(ctx context.Context, log *models.ActivityLog) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.ctxErrs = append(w.ctxErrs, ctx.Err())
	if w.err != nil {
		return w.err
	}
	log.ID = "log-1"
	log.CreatedAt = time.Now().UTC()
	w.logs = append(w.logs, log)
	return nil
}

type captureShipper struct {
	mu      sync.Mutex
	entries []*audit.ShipEntry
	closed  bool
}

func (s *captureShipper) Ship(_ context.Context, e *audit.ShipEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return nil
}

func (s *captureShipper) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func TestLogger_LogWritesEntry(t *testing.T) {
	w := &fakeWriter{}
	l := audit.NewLogger(w, nil)

	l.Log(context.Background(), audit.Entry{
		ActorID:    audit.StrPtr("user-1"),
		Action:     audit.ActionLoginSuccess,
		EntityType: audit.EntityAdminUser,
		EntityID:   audit.StrPtr("user-1"),
		IPAddress:  "10.0.0.1",
		UserAgent:  "test-agent",
	})

	require.Len(t, w.logs, 1)
	got := w.logs[0]
	assert.Equal(t, "Login Success", got.Action)
	assert.Equal(t, "admin_user", got.EntityType)
	require.NotNil(t, got.ActorUserID)
	assert.Equal(t, "user-1", *got.ActorUserID)
	assert.Equal(t, "10.0.0.1", got.IPAddress)
	assert.Equal(t, "test-agent", got.UserAgent)
}

func TestLogger_LogSurvivesCancelledRequest(t *testing.T) {
	w := &fakeWriter{}
	l := audit.NewLogger(w, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	l.Log(ctx, audit.Entry{Action: audit.ActionLogout, EntityType: audit.EntitySession})

	require.Len(t, w.logs, 1)
	assert.NoError(t, w.ctxErrs[0], "write context should not inherit request cancellation")
}

func TestLogger_LogFailureIsSwallowedAndCounted(t *testing.T) {
	w := &fakeWriter{err: errors.New("db down")}
	ship := &captureShipper{}
	l := audit.NewLogger(w, ship)

	before := testutil.ToFloat64(telemetry.ActivityLogWriteFailuresTotal)
	l.Log(context.Background(), audit.Entry{
		Action:     audit.ActionLoginFailed,
		EntityType: audit.EntityAdminUser,
		Metadata:   map[string]interface{}{"reason": "user not found"},
	})
	require.NoError(t, l.Close(context.Background()))

	assert.Equal(t, before+1, testutil.ToFloat64(telemetry.ActivityLogWriteFailuresTotal))
	require.Len(t, ship.entries, 1, "entry should still be shipped")
	assert.False(t, ship.entries[0].Persisted)
	assert.Empty(t, ship.entries[0].ActorUserID)
	assert.Equal(t, "user not found", ship.entries[0].Metadata["reason"])
}

func TestLogger_ShipsPersistedEntry(t *testing.T) {
	w := &fakeWriter{}
	ship := &captureShipper{}
	l := audit.NewLogger(w, ship)

	l.Log(context.Background(), audit.Entry{
		ActorID:    audit.StrPtr("user-9"),
		Action:     audit.ActionSessionsRevoked,
		EntityType: audit.EntityAdminUser,
		EntityID:   audit.StrPtr("user-9"),
	})
	require.NoError(t, l.Close(context.Background()))

	require.Len(t, ship.entries, 1)
	e := ship.entries[0]
	assert.True(t, e.Persisted)
	assert.Equal(t, "log-1", e.ID)
	assert.Equal(t, "user-9", e.ActorUserID)
	assert.Equal(t, "user-9", e.EntityID)
	assert.False(t, e.Timestamp.IsZero())
	assert.True(t, ship.closed)
}

func TestLogger_NilIsNoop(t *testing.T) {
	var l *audit.Logger
	l.Log(context.Background(), audit.Entry{Action: "x"})
	assert.NoError(t, l.Close(context.Background()))
}

func TestStrPtr(t *testing.T) {
	assert.Nil(t, audit.StrPtr(""))
	require.NotNil(t, audit.StrPtr("a"))
	assert.Equal(t, "a", *audit.StrPtr("a"))
}

func TestMarkRecorded(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.False(t, audit.Recorded(c))
	audit.MarkRecorded(c)
	assert.True(t, audit.Recorded(c))
}
