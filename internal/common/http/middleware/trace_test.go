package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"codepad/internal/common/http/middleware"
	"codepad/pkg/utils/contextkey"

	"github.com/gin-gonic/gin"
)

// seenIDs is what a handler observed for one request.
type seenIDs struct {
	ginTrace, ginRequest string
	ctxTrace, ctxRequest string
}

func traceRouter(seen *seenIDs) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(middleware.TraceContextMiddleware(), middleware.AccessLogMiddleware())
	router.GET("/trace", func(c *gin.Context) {
		ctx := c.Request.Context()
		seen.ginTrace = c.GetString("trace_id")
		seen.ginRequest = c.GetString("request_id")
		seen.ctxTrace, _ = ctx.Value(contextkey.TraceID).(string)
		seen.ctxRequest, _ = ctx.Value(contextkey.RequestID).(string)
		c.Status(http.StatusNoContent)
	})
	return router
}

func TestTraceIDsPropagate(t *testing.T) {
	tests := []struct {
		name        string
		traceHeader string
		reqHeader   string
		keepTrace   bool
		keepRequest bool
	}{
		{name: "generated when absent"},
		{name: "kept when well formed", traceHeader: "trace-123", reqHeader: "req.7_a", keepTrace: true, keepRequest: true},
		{name: "replaced when malformed", traceHeader: "bad id\r\nx", reqHeader: "req-7", keepRequest: true},
		{name: "replaced when too long", traceHeader: strings.Repeat("a", 65), reqHeader: "req-8", keepRequest: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen seenIDs
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/trace", nil)
			if tt.traceHeader != "" {
				req.Header.Set("X-Trace-Id", tt.traceHeader)
			}
			if tt.reqHeader != "" {
				req.Header.Set("X-Request-Id", tt.reqHeader)
			}
			traceRouter(&seen).ServeHTTP(rec, req)

			if seen.ginTrace == "" || seen.ginTrace != seen.ctxTrace {
				t.Fatalf("trace id differs between gin and request context: %+v", seen)
			}
			if seen.ginRequest == "" || seen.ginRequest != seen.ctxRequest {
				t.Fatalf("request id differs between gin and request context: %+v", seen)
			}
			if got := seen.ginTrace == tt.traceHeader; got != tt.keepTrace {
				t.Fatalf("trace id kept = %v, want %v (%q)", got, tt.keepTrace, seen.ginTrace)
			}
			if got := seen.ginRequest == tt.reqHeader; got != tt.keepRequest {
				t.Fatalf("request id kept = %v, want %v (%q)", got, tt.keepRequest, seen.ginRequest)
			}
			if rec.Header().Get("X-Trace-Id") != seen.ginTrace || rec.Header().Get("X-Request-Id") != seen.ginRequest {
				t.Fatalf("response headers do not echo the ids")
			}
		})
	}
}
