package observability

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// unmatchedRoute labels requests that hit no registered route, so stray
// paths share one metric series.
const unmatchedRoute = "unmatched"

func routeLabel(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}
	return unmatchedRoute
}

// pollRoutes are polled by orchestrators and scrapers and log at debug.
var pollRoutes = map[string]bool{"/health": true, "/ready": true, "/metrics": true}

// AccessLog writes one line per admin request tagged with the node and the
// repository role being inspected.
func AccessLog(logger zerolog.Logger, node, role string) gin.HandlerFunc {
	logger = logger.With().Str("node", node).Str("role", role).Logger()
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		route := routeLabel(c)

		var event *zerolog.Event
		switch {
		case status >= 500:
			event = logger.Error()
		case status == 401 || status == 403:
			event = logger.Warn()
		case pollRoutes[route] && status < 400:
			event = logger.Debug()
		default:
			event = logger.Info()
		}
		if len(c.Errors) > 0 {
			event = event.Str("errors", c.Errors.String())
		}
		event.
			Str("method", c.Request.Method).
			Str("route", route).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Bool("bearer", strings.HasPrefix(c.GetHeader("Authorization"), "Bearer ")).
			Int("bytes", c.Writer.Size()).
			Msg("admin.request")
	}
}

// AccessMetrics counts admin requests per node and route pattern.
func AccessMetrics(node string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		RecordHTTPRequest(node, c.Request.Method, routeLabel(c), c.Writer.Status(), time.Since(start))
	}
}
