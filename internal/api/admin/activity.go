// activity.go implements read-only handlers for the activity log.
package admin

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/google/uuid"

	"github.com/sports-federation/federation-portal/internal/apierror"
	"github.com/sports-federation/federation-portal/internal/db/models"
	"github.com/sports-federation/federation-portal/internal/db/repositories"
)

const (
	defaultPerPage = 20
	maxPerPage     = 100
	// maxPage keeps (page-1)*per_page well inside the OFFSET range.
	maxPage = 100000
)

// ActivityReader queries stored activity records.
type ActivityReader interface {
	List(ctx context.Context, filters repositories.ActivityFilters, limit, offset int) ([]*models.ActivityLog, int, error)
	Get(ctx context.Context, id string) (*models.ActivityLog, error)
}

// ActivityHandlers handles activity log endpoints
type ActivityHandlers struct {
	logs ActivityReader
}

// NewActivityHandlers creates a new ActivityHandlers instance
func NewActivityHandlers(logs ActivityReader) *ActivityHandlers {
	return &ActivityHandlers{logs: logs}
}

type activityQuery struct {
	ActorID    string `form:"actor_id"`
	Action     string `form:"action"`
	EntityType string `form:"entity_type"`
	From       string `form:"from"`
	To         string `form:"to"`
	Page       int    `form:"page"`
	PerPage    int    `form:"per_page"`
}

var isUUID = validation.By(func(value interface{}) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	if _, err := uuid.Parse(s); err != nil {
		return errors.New("must be a valid UUID")
	}
	return nil
})

func (q activityQuery) Validate() error {
	return validation.ValidateStruct(&q,
		validation.Field(&q.ActorID, isUUID),
		validation.Field(&q.Action, validation.Length(0, 100)),
		validation.Field(&q.EntityType, validation.Length(0, 50)),
		validation.Field(&q.From, validation.Date(time.RFC3339)),
		validation.Field(&q.To, validation.Date(time.RFC3339)),
		validation.Field(&q.Page, validation.Min(1), validation.Max(maxPage)),
		validation.Field(&q.PerPage, validation.Min(1), validation.Max(maxPerPage)),
	)
}

func (q activityQuery) filters() repositories.ActivityFilters {
	var f repositories.ActivityFilters
	if q.ActorID != "" {
		f.ActorUserID = &q.ActorID
	}
	if q.Action != "" {
		f.Action = &q.Action
	}
	if q.EntityType != "" {
		f.EntityType = &q.EntityType
	}
	if t, err := time.Parse(time.RFC3339, q.From); err == nil {
		f.From = &t
	}
	if t, err := time.Parse(time.RFC3339, q.To); err == nil {
		f.To = &t
	}
	return f
}

// @Summary      List activity logs
// @Description  Filterable, paginated activity log. Requires super_admin.
// @Tags         Activity
// @Produce      json
// @Param        actor_id     query  string  false  "Actor admin user ID"
// @Param        action       query  string  false  "Exact action, e.g. Login Failed"
// @Param        entity_type  query  string  false  "Entity type"
// @Param        from         query  string  false  "RFC3339 lower bound (inclusive)"
// @Param        to           query  string  false  "RFC3339 upper bound (inclusive)"
// @Param        page         query  int     false  "Page number (default 1)"
// @Param        per_page     query  int     false  "Items per page, max 100 (default 20)"
// @Success      200  {object}  map[string]interface{}  "success, data: []models.ActivityLog, pagination"
// @Failure      400  {object}  apierror.Body  "Invalid query"
// @Failure      403  {object}  apierror.Body  "Forbidden"
// @Router       /api/admin/activity-logs [get]
// ListActivityLogsHandler lists activity records
// GET /api/admin/activity-logs?action=Login%20Failed&page=1&per_page=20
func (h *ActivityHandlers) ListActivityLogsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		q := activityQuery{Page: 1, PerPage: defaultPerPage}
		if err := c.ShouldBindQuery(&q); err != nil {
			apierror.Respond(c, apierror.Validation("Parameter query tidak valid"))
			return
		}
		if err := q.Validate(); err != nil {
			apierror.Respond(c, apierror.Validation(err.Error()))
			return
		}

		if q.Page < 1 {
			q.Page = 1
		}
		if q.PerPage < 1 {
			q.PerPage = defaultPerPage
		}

		offset := (q.Page - 1) * q.PerPage
		logs, total, err := h.logs.List(c.Request.Context(), q.filters(), q.PerPage, offset)
		if err != nil {
			apierror.Respond(c, apierror.Persistence(fmt.Errorf("list activity logs: %w", err)))
			return
		}
		if logs == nil {
			logs = []*models.ActivityLog{}
		}

		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"data":    logs,
			"pagination": gin.H{
				"page":     q.Page,
				"per_page": q.PerPage,
				"total":    total,
			},
		})
	}
}

// @Summary      Get activity log
// @Tags         Activity
// @Produce      json
// @Param        id  path  string  true  "Activity log ID"
// @Success      200  {object}  map[string]interface{}  "success, data: models.ActivityLog"
// @Failure      404  {object}  apierror.Body  "Data tidak ditemukan"
// @Router       /api/admin/activity-logs/{id} [get]
// GetActivityLogHandler returns one activity record
// GET /api/admin/activity-logs/:id
func (h *ActivityHandlers) GetActivityLogHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if _, err := uuid.Parse(id); err != nil {
			apierror.Respond(c, apierror.NotFound(apierror.MsgNotFound))
			return
		}

		log, err := h.logs.Get(c.Request.Context(), id)
		if err != nil {
			apierror.Respond(c, apierror.Persistence(fmt.Errorf("get activity log: %w", err)))
			return
		}
		if log == nil {
			apierror.Respond(c, apierror.NotFound(apierror.MsgNotFound))
			return
		}

		c.JSON(http.StatusOK, gin.H{"success": true, "data": log})
	}
}
