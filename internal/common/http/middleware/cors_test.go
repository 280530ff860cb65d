package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"codepad/internal/common/http/middleware"

	"github.com/gin-gonic/gin"
)

func TestCORSMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(middleware.CORSMiddleware(middleware.CORSConfig{
		Enabled:        true,
		AllowedOrigins: []string{"https://pad.example.com"},
		AllowedMethods: []string{"GET", "POST"},
		MaxAge:         10 * time.Minute,
	}))
	router.POST("/run", func(c *gin.Context) { c.Status(http.StatusOK) })

	cases := []struct {
		name       string
		method     string
		origin     string
		wantStatus int
		wantAllow  string
	}{
		{name: "allowed preflight", method: http.MethodOptions, origin: "https://pad.example.com", wantStatus: http.StatusNoContent, wantAllow: "https://pad.example.com"},
		{name: "denied preflight", method: http.MethodOptions, origin: "https://evil.test", wantStatus: http.StatusForbidden},
		{name: "allowed request", method: http.MethodPost, origin: "https://pad.example.com", wantStatus: http.StatusOK, wantAllow: "https://pad.example.com"},
		{name: "no origin", method: http.MethodPost, wantStatus: http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(tc.method, "/run", nil)
			if tc.origin != "" {
				req.Header.Set("Origin", tc.origin)
			}
			router.ServeHTTP(rec, req)
			if rec.Code != tc.wantStatus {
				t.Fatalf("expected status %d, got %d", tc.wantStatus, rec.Code)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tc.wantAllow {
				t.Fatalf("expected allow origin %q, got %q", tc.wantAllow, got)
			}
			if tc.wantAllow != "" && rec.Header().Get("Access-Control-Max-Age") != "600" {
				t.Fatalf("expected max age header")
			}
		})
	}
}

func TestOriginAllowed(t *testing.T) {
	allowed := []string{"https://pad.example.com", "https://*.codepad.dev", " "}
	cases := map[string]bool{
		"https://pad.example.com":  true,
		"HTTPS://PAD.EXAMPLE.COM":  true,
		"https://play.codepad.dev": true,
		"https://codepad.dev":      false,
		"https://.codepad.dev":     false,
		"http://play.codepad.dev":  false,
		"https://codepad.dev.evil": false,
	}
	for origin, want := range cases {
		if got := middleware.OriginAllowed(origin, allowed); got != want {
			t.Fatalf("OriginAllowed(%q) = %v, want %v", origin, got, want)
		}
	}
	if !middleware.OriginAllowed("https://anything.test", []string{"*"}) {
		t.Fatalf("wildcard should allow every origin")
	}
}

func TestCORSDefaultsAndCredentials(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(middleware.CORSMiddleware(middleware.CORSConfig{
		Enabled:          true,
		AllowedOrigins:   []string{"*"},
		AllowCredentials: true,
	}))
	router.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "https://pad.example.com")
	router.ServeHTTP(rec, req)

	h := rec.Header()
	if h.Get("Access-Control-Allow-Origin") != "https://pad.example.com" {
		t.Fatalf("credentialed response must echo the origin, got %q", h.Get("Access-Control-Allow-Origin"))
	}
	if h.Get("Access-Control-Allow-Methods") != "GET, POST, PUT, DELETE" {
		t.Fatalf("unexpected default methods %q", h.Get("Access-Control-Allow-Methods"))
	}
	if h.Get("Access-Control-Expose-Headers") != "X-Trace-Id, X-Request-Id" {
		t.Fatalf("trace headers should be exposed, got %q", h.Get("Access-Control-Expose-Headers"))
	}
	if h.Get("Access-Control-Allow-Credentials") != "true" {
		t.Fatalf("expected credentials header")
	}
}
