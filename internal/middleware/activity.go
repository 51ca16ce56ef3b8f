// activity.go provides Gin middleware that records successful admin mutations
// that did not write their own activity record.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/sports-federation/federation-portal/internal/audit"
)

const adminPrefix = "/api/admin/"

// ActivityMiddleware logs successful POST/PUT/PATCH/DELETE requests as
// "<METHOD> <route>". Handlers that call audit.MarkRecorded are skipped.
func ActivityMiddleware(logger *audit.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if !isMutation(c.Request.Method) || audit.Recorded(c) {
			return
		}
		status := c.Writer.Status()
		if status < 200 || status >= 300 {
			return
		}

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}

		var actor *string
		if p, ok := PrincipalFrom(c); ok {
			actor = audit.StrPtr(p.UserID)
		}

		logger.Log(c.Request.Context(), audit.Entry{
			ActorID:    actor,
			Action:     c.Request.Method + " " + route,
			EntityType: entityTypeFromRoute(route),
			EntityID:   audit.StrPtr(c.Param("id")),
			Metadata: map[string]interface{}{
				"path":        c.Request.URL.Path,
				"status_code": status,
			},
			IPAddress: c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		})
	}
}

func isMutation(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// entityTypeFromRoute returns the first path segment under /api/admin/, or
// "request" for routes outside the admin group.
func entityTypeFromRoute(route string) string {
	rest, ok := strings.CutPrefix(route, adminPrefix)
	if !ok {
		return audit.EntityRequest
	}
	segment, _, _ := strings.Cut(rest, "/")
	if segment == "" || strings.HasPrefix(segment, ":") {
		return audit.EntityRequest
	}
	return segment
}
