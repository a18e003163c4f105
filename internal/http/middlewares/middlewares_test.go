package middlewares

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func okRouter(mw ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(mw...)
	r.Any("/x", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/docs", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestCORS(t *testing.T) {
	r := okRouter(CORSMiddleware([]string{"https://app.example"}))

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://app.example")
	w := serve(r, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example" {
		t.Fatalf("allowed origin not echoed, got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = serve(r, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unknown origin must not be allowed, got %q", got)
	}

	req = httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "https://app.example")
	w = serve(r, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("preflight: got %d, want 204", w.Code)
	}
}

func TestCORS_Wildcard(t *testing.T) {
	r := okRouter(CORSMiddleware([]string{"*"}))

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://anything.example")
	w := serve(r, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("got %q, want *", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "" {
		t.Fatalf("wildcard must not allow credentials, got %q", got)
	}
}

func TestRequireJSON(t *testing.T) {
	r := okRouter(RequireJSON())

	tests := []struct {
		method string
		ct     string
		want   int
	}{
		{http.MethodPost, "application/json", http.StatusOK},
		{http.MethodPost, "Application/JSON; charset=utf-8", http.StatusOK},
		{http.MethodPost, "text/plain", http.StatusUnsupportedMediaType},
		{http.MethodPost, "", http.StatusUnsupportedMediaType},
		{http.MethodGet, "", http.StatusOK},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(tt.method, "/x", strings.NewReader("{}"))
		if tt.ct != "" {
			req.Header.Set("Content-Type", tt.ct)
		}

		if w := serve(r, req); w.Code != tt.want {
			t.Fatalf("%s %q: got %d, want %d", tt.method, tt.ct, w.Code, tt.want)
		}
	}
}

func TestRequestID(t *testing.T) {
	r := okRouter(RequestID())

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Request-Id", "abc-123")
	if got := serve(r, req).Header().Get("X-Request-Id"); got != "abc-123" {
		t.Fatalf("incoming id not kept, got %q", got)
	}

	if got := serve(r, httptest.NewRequest(http.MethodGet, "/x", nil)).Header().Get("X-Request-Id"); got == "" {
		t.Fatal("expected a generated request id")
	}
}

func TestSecurityHeaders(t *testing.T) {
	r := okRouter(SecurityHeaders())

	w := serve(r, httptest.NewRequest(http.MethodGet, "/x", nil))
	if got := w.Header().Get("Content-Security-Policy"); got != defaultCSP {
		t.Fatalf("api CSP = %q", got)
	}
	if got := w.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Fatalf("X-Frame-Options = %q", got)
	}

	w = serve(r, httptest.NewRequest(http.MethodGet, "/docs", nil))
	if got := w.Header().Get("Content-Security-Policy"); got != swaggerCSP {
		t.Fatalf("docs CSP = %q", got)
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer abc", "abc", true},
		{"Bearer   ", "", false},
		{"Basic abc", "", false},
		{"", "", false},
	}

	gin.SetMode(gin.TestMode)

	for _, tt := range tests {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.header != "" {
			c.Request.Header.Set("Authorization", tt.header)
		}

		got, ok := BearerToken(c)
		if got != tt.want || ok != tt.ok {
			t.Fatalf("%q: got (%q, %v), want (%q, %v)", tt.header, got, ok, tt.want, tt.ok)
		}
	}
}
