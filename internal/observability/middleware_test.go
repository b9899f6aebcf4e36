package observability

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/danmuck/sfpctl/internal/testutil/testlog"
)

func newTestRouter(buf *bytes.Buffer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	RegisterMetrics()
	r := gin.New()
	r.Use(RequestLogger(zerolog.New(buf).Level(zerolog.DebugLevel)))
	r.Use(RequestMetricsMiddleware())
	r.POST("/devices/:ip/clone", func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown destination"})
	})
	r.GET("/sfps/:id/memory", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{})
	})
	return r
}

func lastLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	var out map[string]any
	if err := json.Unmarshal(lines[len(lines)-1], &out); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	return out
}

func TestRequestLoggerTagsDeviceAndSFP(t *testing.T) {
	testlog.Start(t)
	var buf bytes.Buffer
	r := newTestRouter(&buf)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/devices/10.0.0.7/clone", nil))
	line := lastLine(t, &buf)
	if line["device"] != "10.0.0.7" || line["level"] != "warn" || line["path"] != "/devices/:ip/clone" {
		t.Fatalf("unexpected device log line %v", line)
	}

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/sfps/abc123/memory", nil))
	line = lastLine(t, &buf)
	if line["sfp"] != "abc123" || line["level"] != "debug" {
		t.Fatalf("unexpected sfp log line %v", line)
	}
	if _, ok := line["device"]; ok {
		t.Fatalf("sfp route should not carry a device field: %v", line)
	}
}

func TestRequestMetricsUseRouteTemplate(t *testing.T) {
	testlog.Start(t)
	var buf bytes.Buffer
	r := newTestRouter(&buf)
	counter := httpRequests.WithLabelValues(http.MethodPost, "/devices/:ip/clone", "404")
	before := testutil.ToFloat64(counter)
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/devices/10.0.0.8/clone", nil))
	if got := testutil.ToFloat64(counter) - before; got != 1 {
		t.Fatalf("expected one request recorded under the route template, got %v", got)
	}

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope", nil))
	if line := lastLine(t, &buf); line["path"] != "unmatched" {
		t.Fatalf("unmatched path logged as %v", line["path"])
	}
}
