package observability

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Route parameters that name a device or a stored SFP.
const (
	paramDevice = "ip"
	paramSFP    = "id"
)

// RequestLogger logs one line per request, tagged with the device or stored
// SFP the route addresses. Websocket upgrades log at info because they open
// a long-lived event stream.
func RequestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		event := logger.Debug()
		switch {
		case status >= 500:
			event = logger.Error()
		case status >= 400:
			event = logger.Warn()
		case status == http.StatusSwitchingProtocols:
			event = logger.Info()
		}
		if ip := c.Param(paramDevice); ip != "" {
			event = event.Str("device", ip)
		}
		if id := c.Param(paramSFP); id != "" {
			event = event.Str("sfp", id)
		}
		if len(c.Errors) > 0 {
			event = event.Str("error", c.Errors.String())
		}

		event.
			Str("method", c.Request.Method).
			Str("path", routePath(c)).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("observability.RequestLogger")
	}
}

// RequestMetricsMiddleware records requests by route template so device and
// SFP ids do not become label values.
func RequestMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		RecordHTTPRequest(c.Request.Method, routePath(c), c.Writer.Status(), time.Since(start))
	}
}

// routePath is the matched route template, or "unmatched" for 404s outside
// the route table.
func routePath(c *gin.Context) string {
	if path := c.FullPath(); path != "" {
		return path
	}
	return "unmatched"
}
