package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func TestRequestIDMiddleware_GeneratesID(t *testing.T) {
	var captured string
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = RequestIDFromContext(r.Context())
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if captured == "" {
		t.Error("no request ID in context")
	}
	if rr.Header().Get("X-Request-ID") != captured {
		t.Error("response header does not match context value")
	}
}

func TestRequestIDMiddleware_PropagatesExisting(t *testing.T) {
	var captured string
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "upstream-id")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if captured != "upstream-id" {
		t.Errorf("request ID = %q, want upstream-id", captured)
	}
}

func TestHeaderIdentity(t *testing.T) {
	tests := []struct {
		name   string
		header map[string]string
		want   string
	}{
		{"user header", map[string]string{"X-User-ID": "u42"}, "u42"},
		{"bearer fallback", map[string]string{"Authorization": "Bearer tok-99"}, "tok-99"},
		{"user header wins", map[string]string{"X-User-ID": "u42", "Authorization": "Bearer tok-99"}, "u42"},
		{"non-bearer ignored", map[string]string{"Authorization": "Basic abc"}, ""},
		{"anonymous", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			if got := (HeaderIdentity{}).Resolve(req); got != tt.want {
				t.Errorf("Resolve = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIdentityMiddleware(t *testing.T) {
	var captured string
	handler := IdentityMiddleware(HeaderIdentity{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = UserIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-User-ID", "u1")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if captured != "u1" {
		t.Errorf("user = %q, want u1", captured)
	}

	captured = "sentinel"
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if captured != "" {
		t.Errorf("anonymous request: user = %q, want empty", captured)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := RecoveryMiddleware(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rr.Code)
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(1, zap.NewNop())

	release := make(chan struct{})
	started := make(chan struct{})
	blocked := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-release
	}))

	go func() {
		blocked.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	}()
	<-started

	// The single token is held; the next request must be rejected.
	rr := httptest.NewRecorder()
	rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).
		ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", rr.Code)
	}
	close(release)
}

func TestCORSMiddleware_Preflight(t *testing.T) {
	handler := CORSMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("preflight must not reach the handler")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodOptions, "/search", nil))

	if rr.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rr.Code)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS origin header")
	}
}

func TestRouterRoutes(t *testing.T) {
	d := newTestDeps()
	health := NewHealthHandler(zap.NewNop())
	router := NewRouter(d.handler, health, HeaderIdentity{}, zap.NewNop())

	tests := []struct {
		method string
		path   string
		status int
	}{
		{http.MethodGet, "/healthz", http.StatusOK},
		{http.MethodGet, "/readyz", http.StatusOK},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodGet, "/search?q=red", http.StatusOK},
		{http.MethodGet, "/api/v1/search?q=red", http.StatusOK},
		{http.MethodGet, "/api/v1/search/trending", http.StatusOK},
		{http.MethodGet, "/search/suggestions?q=red", http.StatusOK},
		{http.MethodGet, "/search/trending", http.StatusOK},
		{http.MethodGet, "/search/history", http.StatusUnauthorized},
		{http.MethodDelete, "/search/history", http.StatusUnauthorized},
		{http.MethodPost, "/search/track", http.StatusUnauthorized},
		{http.MethodGet, "/search/analytics", http.StatusUnauthorized},
		{http.MethodGet, "/nonexistent", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)
			if rr.Code != tt.status {
				t.Errorf("status = %d, want %d", rr.Code, tt.status)
			}
		})
	}
}

func TestHealthEndpoints(t *testing.T) {
	h := NewHealthHandler(zap.NewNop())

	rr := httptest.NewRecorder()
	h.Liveness(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Errorf("liveness status = %d, want 200", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.Readiness(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusOK {
		t.Errorf("readiness with no checks = %d, want 200", rr.Code)
	}
}
