package observability

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// unmatchedRoute labels requests that hit no admin route, keeping label
// cardinality bounded.
const unmatchedRoute = "unmatched"

func adminRoute(c *gin.Context) string {
	if route := c.FullPath(); route != "" {
		return route
	}
	return unmatchedRoute
}

// RequestLogger logs each admin request. Successful scrapes and probes log
// at debug.
func RequestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		var event *zerolog.Event
		switch {
		case status >= 500:
			event = logger.Error()
		case status >= 400:
			event = logger.Warn().Str("url", c.Request.URL.Path)
		default:
			event = logger.Debug()
		}
		event.
			Str("route", adminRoute(c)).
			Str("method", c.Request.Method).
			Int("status", status).
			Dur("elapsed", time.Since(start)).
			Str("scraper", c.ClientIP()).
			Msg("admin request")
	}
}

func RequestMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		RecordHTTPRequest(c.Request.Method, adminRoute(c), c.Writer.Status(), time.Since(start))
	}
}
