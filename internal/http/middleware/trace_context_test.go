package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/lessonforge-backend/internal/observability"
	"github.com/yungbote/lessonforge-backend/internal/pkg/ctxutil"
)

func traceRouter(seen **ctxutil.TraceData) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AttachTraceContext())
	capture := func(c *gin.Context) {
		*seen = ctxutil.GetTraceData(c.Request.Context())
		c.Status(http.StatusOK)
	}
	r.GET("/x", capture)
	r.GET("/api/lessons/:id/status", capture)
	return r
}

func TestAttachTraceContextEchoesRequestID(t *testing.T) {
	var seen *ctxutil.TraceData
	r := traceRouter(&seen)

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Request-Id", "req-123")
	req.Header.Set("X-Trace-Id", "trace-abc")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, "req-123", rec.Header().Get("X-Request-Id"))
	assert.Equal(t, "trace-abc", rec.Header().Get("X-Trace-Id"))
	require.NotNil(t, seen)
	assert.Equal(t, "req-123", seen.RequestID)
	assert.Equal(t, "trace-abc", seen.TraceID)
	assert.Empty(t, seen.LessonID)
}

func TestAttachTraceContextRecordsLessonID(t *testing.T) {
	var seen *ctxutil.TraceData
	r := traceRouter(&seen)
	id := uuid.New()

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/lessons/"+id.String()+"/status", nil))
	require.NotNil(t, seen)
	assert.Equal(t, id.String(), seen.LessonID)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
	assert.NotEmpty(t, rec.Header().Get("X-Trace-Id"))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/lessons/not-a-uuid/status", nil))
	require.NotNil(t, seen)
	assert.Empty(t, seen.LessonID, "malformed ids are not recorded")
}

func TestMetricsSkipsScrapeAndLabelsUnmatched(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := observability.New()
	r := gin.New()
	r.Use(Metrics(m))
	r.GET("/metrics", gin.WrapH(m.Handler()))
	r.GET("/api/lessons", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/metrics", "/api/lessons", "/nope"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	routes := map[string]bool{}
	for _, mf := range families {
		if mf.GetName() != "lessongen_api_requests_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			for _, lp := range metric.GetLabel() {
				if lp.GetName() == "route" {
					routes[lp.GetValue()] = true
				}
			}
		}
	}
	assert.True(t, routes["/api/lessons"])
	assert.True(t, routes["unmatched"])
	assert.False(t, routes["/metrics"])
}
