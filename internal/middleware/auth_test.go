package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sports-federation/federation-portal/internal/audit"
	"github.com/sports-federation/federation-portal/internal/auth"
	"github.com/sports-federation/federation-portal/internal/db/models"
	"github.com/sports-federation/federation-portal/internal/sessions"
	"github.com/sports-federation/federation-portal/internal/telemetry"
)

const testCookie = "admin_token"

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

type recordingWriter struct {
	mu   sync.Mutex
	logs []*models.ActivityLog
}

func (w *recordingWriter) Create(_ context.Context, log *models.ActivityLog) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.logs = append(w.logs, log)
	return nil
}

func (w *recordingWriter) actions() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.logs))
	for _, l := range w.logs {
		out = append(out, l.Action)
	}
	return out
}

type failingChecker struct{}

func (failingChecker) Exists(context.Context, string) (bool, error) {
	return false, errors.New("connection refused")
}

type authFixture struct {
	codec  *auth.TokenCodec
	store  *sessions.MemoryStore
	writer *recordingWriter
	authn  *Authenticator
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	codec := auth.NewTokenCodec([]byte("test-jwt-secret-that-is-32-chars!!"), time.Hour, "federation-portal")
	store := sessions.NewMemoryStore()
	writer := &recordingWriter{}
	return &authFixture{
		codec:  codec,
		store:  store,
		writer: writer,
		authn:  NewAuthenticator(codec, store, audit.NewLogger(writer, nil), testCookie, true),
	}
}

// issue creates a session and a token for it.
func (f *authFixture) issue(t *testing.T, userID string, role auth.Role) (token, sessionID string) {
	t.Helper()
	sessionID, err := f.store.Create(context.Background(), userID, "127.0.0.1", "test")
	require.NoError(t, err)
	token, _, err = f.codec.Sign(auth.Claims{
		UserID:    userID,
		Email:     userID + "@x.com",
		Role:      role,
		SessionID: sessionID,
	})
	require.NoError(t, err)
	return token, sessionID
}

func (f *authFixture) router(guard gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.GET("/protected", guard, func(c *gin.Context) {
		p, ok := PrincipalFrom(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"user_id":    p.UserID,
			"role":       c.GetString(RoleKey),
			"session_id": c.GetString(SessionIDKey),
		})
	})
	return r
}

func doCookieRequest(r *gin.Engine, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if token != "" {
		req.AddCookie(&http.Cookie{Name: testCookie, Value: token})
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

// ---------------------------------------------------------------------------
// Authenticate
// ---------------------------------------------------------------------------

func TestAuthenticate_Failures(t *testing.T) {
	f := newAuthFixture(t)
	valid, sid := f.issue(t, "user-1", auth.RoleAdmin)

	expiredCodec := auth.NewTokenCodec([]byte("test-jwt-secret-that-is-32-chars!!"), time.Hour, "federation-portal").
		WithClock(func() time.Time { return time.Now().Add(-2 * time.Hour) })
	expired, _, err := expiredCodec.Sign(auth.Claims{UserID: "user-1", SessionID: sid, Role: auth.RoleAdmin})
	require.NoError(t, err)

	otherCodec := auth.NewTokenCodec([]byte("another-secret-another-secret-xx"), time.Hour, "federation-portal")
	forged, _, err := otherCodec.Sign(auth.Claims{UserID: "user-1", SessionID: sid, Role: auth.RoleSuperAdmin})
	require.NoError(t, err)

	_, revokedSID := f.issue(t, "user-2", auth.RoleAdmin)
	revoked, _, err := f.codec.Sign(auth.Claims{UserID: "user-2", SessionID: revokedSID, Role: auth.RoleAdmin})
	require.NoError(t, err)
	require.NoError(t, f.store.Delete(context.Background(), revokedSID))

	cases := []struct {
		name   string
		token  string
		reason auth.FailureReason
		is     error
	}{
		{"no cookie", "", auth.ReasonNoToken, nil},
		{"garbage", "not-a-jwt", auth.ReasonInvalidToken, auth.ErrTokenMalformed},
		{"expired", expired, auth.ReasonInvalidToken, auth.ErrTokenExpired},
		{"wrong secret", forged, auth.ReasonInvalidToken, auth.ErrTokenSignature},
		{"revoked session", revoked, auth.ReasonSessionRevoked, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.token != "" {
				req.AddCookie(&http.Cookie{Name: testCookie, Value: tc.token})
			}
			p, err := f.authn.Authenticate(req)
			assert.Nil(t, p)
			var failure *auth.Failure
			require.ErrorAs(t, err, &failure)
			assert.Equal(t, tc.reason, failure.Reason)
			assert.Equal(t, http.StatusUnauthorized, failure.StatusCode())
			if tc.is != nil {
				assert.ErrorIs(t, err, tc.is)
				assert.ErrorIs(t, err, auth.ErrInvalidToken)
			}
		})
	}

	t.Run("valid", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: testCookie, Value: valid})
		p, err := f.authn.Authenticate(req)
		require.NoError(t, err)
		assert.Equal(t, "user-1", p.UserID)
		assert.Equal(t, "user-1@x.com", p.Email)
		assert.Equal(t, auth.RoleAdmin, p.Role)
		assert.Equal(t, sid, p.SessionID)
	})
}

func TestAuthenticate_StoreErrorIsServerError(t *testing.T) {
	f := newAuthFixture(t)
	token, _ := f.issue(t, "user-1", auth.RoleAdmin)
	authn := NewAuthenticator(f.codec, failingChecker{}, nil, testCookie, true)

	r := f.router(authn.RequireAuth())
	w := doCookieRequest(r, token)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Terjadi kesalahan pada server", decodeBody(t, w)["message"])
}

// ---------------------------------------------------------------------------
// RequireAuth / RequireSuperAdmin
// ---------------------------------------------------------------------------

func TestRequireAuth_NoCookie(t *testing.T) {
	f := newAuthFixture(t)
	before := testutil.ToFloat64(telemetry.AuthFailuresTotal.WithLabelValues("no_token"))

	w := doCookieRequest(f.router(f.authn.RequireAuth()), "")

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Unauthorized", body["message"])
	assert.Equal(t, before+1, testutil.ToFloat64(telemetry.AuthFailuresTotal.WithLabelValues("no_token")))
	assert.Equal(t, []string{audit.ActionUnauthorized}, f.writer.actions())
	assert.Nil(t, f.writer.logs[0].ActorUserID)
	assert.Equal(t, "no_token", f.writer.logs[0].Metadata["reason"])
}

func TestRequireAuth_ValidSetsContext(t *testing.T) {
	f := newAuthFixture(t)
	token, sid := f.issue(t, "user-1", auth.RoleAdmin)

	w := doCookieRequest(f.router(f.authn.RequireAuth()), token)

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "user-1", body["user_id"])
	assert.Equal(t, "admin", body["role"])
	assert.Equal(t, sid, body["session_id"])
	assert.Empty(t, f.writer.actions())
}

func TestRequireAuth_RevokedAfterLogout(t *testing.T) {
	f := newAuthFixture(t)
	token, sid := f.issue(t, "user-1", auth.RoleAdmin)
	r := f.router(f.authn.RequireAuth())

	require.Equal(t, http.StatusOK, doCookieRequest(r, token).Code)
	require.NoError(t, f.store.Delete(context.Background(), sid))
	assert.Equal(t, http.StatusUnauthorized, doCookieRequest(r, token).Code)
}

func TestRequireAuth_FailureLoggingDisabled(t *testing.T) {
	f := newAuthFixture(t)
	authn := NewAuthenticator(f.codec, f.store, audit.NewLogger(f.writer, nil), testCookie, false)

	w := doCookieRequest(f.router(authn.RequireAuth()), "bogus")

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, f.writer.actions())
}

func TestRequireSuperAdmin(t *testing.T) {
	f := newAuthFixture(t)
	adminToken, _ := f.issue(t, "admin-1", auth.RoleAdmin)
	superToken, _ := f.issue(t, "super-1", auth.RoleSuperAdmin)
	r := f.router(f.authn.RequireSuperAdmin())

	t.Run("admin is forbidden", func(t *testing.T) {
		w := doCookieRequest(r, adminToken)
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, "Forbidden", decodeBody(t, w)["message"])

		logs := f.writer.logs
		require.NotEmpty(t, logs)
		last := logs[len(logs)-1]
		assert.Equal(t, audit.ActionForbidden, last.Action)
		require.NotNil(t, last.ActorUserID)
		assert.Equal(t, "admin-1", *last.ActorUserID)
	})

	t.Run("super admin passes", func(t *testing.T) {
		w := doCookieRequest(r, superToken)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("anonymous is unauthorized", func(t *testing.T) {
		w := doCookieRequest(r, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestRequireSuperAdmin_AfterRequireAuth(t *testing.T) {
	f := newAuthFixture(t)
	token, _ := f.issue(t, "super-1", auth.RoleSuperAdmin)

	r := gin.New()
	group := r.Group("/", f.authn.RequireAuth())
	group.GET("/protected", f.authn.RequireSuperAdmin(), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	assert.Equal(t, http.StatusNoContent, doCookieRequest(r, token).Code)
}

func TestPrincipalFrom_Missing(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	_, ok := PrincipalFrom(c)
	assert.False(t, ok)

	c.Set(PrincipalKey, "not a principal")
	_, ok = PrincipalFrom(c)
	assert.False(t, ok)
}
