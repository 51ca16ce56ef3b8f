package admin

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sports-federation/federation-portal/internal/db/models"
	"github.com/sports-federation/federation-portal/internal/db/repositories"
)

type fakeActivityReader struct {
	filters repositories.ActivityFilters
	limit   int
	offset  int
	logs    []*models.ActivityLog
	total   int
	err     error
}

func (r *fakeActivityReader) List(_ context.Context, filters repositories.ActivityFilters, limit, offset int) ([]*models.ActivityLog, int, error) {
	r.filters, r.limit, r.offset = filters, limit, offset
	return r.logs, r.total, r.err
}

func (r *fakeActivityReader) Get(_ context.Context, id string) (*models.ActivityLog, error) {
	for _, l := range r.logs {
		if l.ID == id {
			return l, nil
		}
	}
	return nil, r.err
}

func newActivityRouter(reader *fakeActivityReader) *gin.Engine {
	h := NewActivityHandlers(reader)
	r := gin.New()
	r.GET("/api/admin/activity-logs", h.ListActivityLogsHandler())
	r.GET("/api/admin/activity-logs/:id", h.GetActivityLogHandler())
	return r
}

const logID = "6f1c3a0e-9b7d-4c55-8a8e-2c1d0f9e7a11"

func TestListActivityLogs_Defaults(t *testing.T) {
	reader := &fakeActivityReader{total: 0}
	w := do(newActivityRouter(reader), http.MethodGet, "/api/admin/activity-logs", "", "")

	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, []interface{}{}, body["data"])
	pagination := body["pagination"].(map[string]interface{})
	assert.Equal(t, float64(1), pagination["page"])
	assert.Equal(t, float64(20), pagination["per_page"])
	assert.Equal(t, 20, reader.limit)
	assert.Equal(t, 0, reader.offset)
	assert.Nil(t, reader.filters.Action)
}

func TestListActivityLogs_Filters(t *testing.T) {
	actor := "0d6f0a52-2b33-4a0c-9a43-5c8d2f7b9e01"
	reader := &fakeActivityReader{
		logs:  []*models.ActivityLog{{ID: logID, Action: "Login Failed", CreatedAt: time.Now()}},
		total: 41,
	}
	path := "/api/admin/activity-logs?actor_id=" + actor +
		"&action=Login%20Failed&entity_type=admin_user" +
		"&from=2026-01-01T00:00:00Z&to=2026-02-01T00:00:00Z&page=3&per_page=10"

	w := do(newActivityRouter(reader), http.MethodGet, path, "", "")

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NotNil(t, reader.filters.ActorUserID)
	assert.Equal(t, actor, *reader.filters.ActorUserID)
	require.NotNil(t, reader.filters.Action)
	assert.Equal(t, "Login Failed", *reader.filters.Action)
	require.NotNil(t, reader.filters.EntityType)
	assert.Equal(t, "admin_user", *reader.filters.EntityType)
	require.NotNil(t, reader.filters.From)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), reader.filters.From.UTC())
	require.NotNil(t, reader.filters.To)
	assert.Equal(t, 10, reader.limit)
	assert.Equal(t, 20, reader.offset)
	assert.Equal(t, float64(41), decode(t, w)["pagination"].(map[string]interface{})["total"])
}

func TestListActivityLogs_InvalidQuery(t *testing.T) {
	cases := map[string]string{
		"per_page too large": "?per_page=101",
		"bad from":           "?from=yesterday",
		"bad actor":          "?actor_id=not-a-uuid",
		"non numeric page":   "?page=abc",
		"page too large":     "?page=100001",
		"page overflows":     "?page=9223372036854775807&per_page=100",
	}
	for name, query := range cases {
		t.Run(name, func(t *testing.T) {
			w := do(newActivityRouter(&fakeActivityReader{}), http.MethodGet, "/api/admin/activity-logs"+query, "", "")
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, false, decode(t, w)["success"])
		})
	}
}

func TestListActivityLogs_LastPage(t *testing.T) {
	reader := &fakeActivityReader{}
	w := do(newActivityRouter(reader), http.MethodGet, "/api/admin/activity-logs?page=100000&per_page=100", "", "")

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 100, reader.limit)
	assert.Equal(t, 9999900, reader.offset)
}

func TestListActivityLogs_RepositoryError(t *testing.T) {
	w := do(newActivityRouter(&fakeActivityReader{err: errors.New("boom")}), http.MethodGet, "/api/admin/activity-logs", "", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Terjadi kesalahan pada server", decode(t, w)["message"])
}

func TestGetActivityLog(t *testing.T) {
	reader := &fakeActivityReader{logs: []*models.ActivityLog{{ID: logID, Action: "Logout"}}}
	r := newActivityRouter(reader)

	w := do(r, http.MethodGet, "/api/admin/activity-logs/"+logID, "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Logout", decode(t, w)["data"].(map[string]interface{})["action"])

	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/api/admin/activity-logs/not-a-uuid", "", "").Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/api/admin/activity-logs/0d6f0a52-2b33-4a0c-9a43-5c8d2f7b9e01", "", "").Code)
}
