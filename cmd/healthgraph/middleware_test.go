package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/healthgraph/api/handlers"
	"github.com/BaSui01/healthgraph/internal/ctxkeys"
	"github.com/BaSui01/healthgraph/testutil"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
}

func serve(h http.Handler, r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp handlers.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	return resp.Error.Code
}

func TestSecurityHeaders(t *testing.T) {
	w := serve(SecurityHeaders()(okHandler()), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", w.Header().Get("Referrer-Policy"))
	assert.Equal(t, "default-src 'none'", w.Header().Get("Content-Security-Policy"))
}

func TestChain_Order(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Chain(okHandler(), mark("outer"), mark("middle"), mark("inner"))
	serve(h, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, []string{"outer", "middle", "inner"}, order)
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = ctxkeys.RequestID(r.Context())
	}))

	t.Run("generated", func(t *testing.T) {
		w := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.NotEmpty(t, seen)
		assert.Equal(t, seen, w.Header().Get(RequestIDHeader))
	})

	t.Run("client supplied", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set(RequestIDHeader, "abc-123")
		w := serve(h, r)
		assert.Equal(t, "abc-123", seen)
		assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
	})
}

func TestRecovery(t *testing.T) {
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}), RequestID(), Recovery(zap.NewNop()))

	w := serve(h, httptest.NewRequest(http.MethodGet, "/api/v1/evidence", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "INTERNAL_ERROR", errorCode(t, w))
}

func TestAPIKeyAuth(t *testing.T) {
	h := APIKeyAuth([]string{"secret", "", "rotated"}, []string{"/health"}, zap.NewNop())(okHandler())

	tests := []struct {
		name   string
		path   string
		header map[string]string
		want   int
	}{
		{name: "missing key", path: "/api/v1/evidence", want: http.StatusUnauthorized},
		{name: "wrong key", path: "/api/v1/evidence", header: map[string]string{"X-API-Key": "nope"}, want: http.StatusUnauthorized},
		{name: "header key", path: "/api/v1/evidence", header: map[string]string{"X-API-Key": "secret"}, want: http.StatusOK},
		{name: "bearer key", path: "/api/v1/evidence", header: map[string]string{"Authorization": "Bearer secret"}, want: http.StatusOK},
		{name: "second key", path: "/api/v1/evidence", header: map[string]string{"X-API-Key": "rotated"}, want: http.StatusOK},
		{name: "key prefix", path: "/api/v1/evidence", header: map[string]string{"X-API-Key": "secre"}, want: http.StatusUnauthorized},
		{name: "key with suffix", path: "/api/v1/evidence", header: map[string]string{"X-API-Key": "secret2"}, want: http.StatusUnauthorized},
		{name: "empty bearer", path: "/api/v1/evidence", header: map[string]string{"Authorization": "Bearer "}, want: http.StatusUnauthorized},
		{name: "skip path", path: "/health", want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, tt.path, nil)
			for k, v := range tt.header {
				r.Header.Set(k, v)
			}
			w := serve(h, r)
			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusUnauthorized {
				assert.Equal(t, "UNAUTHORIZED", errorCode(t, w))
			}
		})
	}
}

func TestAPIKeyAuth_DisabledWithoutKeys(t *testing.T) {
	h := APIKeyAuth(nil, nil, zap.NewNop())(okHandler())
	w := serve(h, httptest.NewRequest(http.MethodPost, "/api/v1/answer", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimiter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := RateLimiter(ctx, 1, 2, zap.NewNop())(okHandler())
	request := func(ip string) int {
		r := httptest.NewRequest(http.MethodGet, "/api/v1/evidence", nil)
		r.RemoteAddr = ip + ":1234"
		return serve(h, r).Code
	}

	assert.Equal(t, http.StatusOK, request("10.0.0.1"))
	assert.Equal(t, http.StatusOK, request("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, request("10.0.0.1"))
	// 不同 IP 各自计数
	assert.Equal(t, http.StatusOK, request("10.0.0.2"))
	// 令牌按速率补充
	testutil.AssertEventuallyTrue(t, func() bool { return request("10.0.0.1") == http.StatusOK }, 3*time.Second)
}

func TestRateLimiter_Disabled(t *testing.T) {
	h := RateLimiter(context.Background(), 0, 0, zap.NewNop())(okHandler())
	for i := 0; i < 20; i++ {
		assert.Equal(t, http.StatusOK, serve(h, httptest.NewRequest(http.MethodGet, "/", nil)).Code)
	}
}

func TestCORS(t *testing.T) {
	h := CORS([]string{"https://app.example.com"})(okHandler())

	t.Run("allowed origin", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Origin", "https://app.example.com")
		w := serve(h, r)
		assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("preflight from unknown origin", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodOptions, "/", nil)
		r.Header.Set("Origin", "https://evil.example.com")
		w := serve(h, r)
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("preflight from allowed origin", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodOptions, "/", nil)
		r.Header.Set("Origin", "https://app.example.com")
		assert.Equal(t, http.StatusNoContent, serve(h, r).Code)
	})

	t.Run("same origin request", func(t *testing.T) {
		w := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

type recordedRequest struct {
	method, path string
	status       int
}

type fakeHTTPRecorder struct {
	mu   sync.Mutex
	reqs []recordedRequest
}

func (f *fakeHTTPRecorder) RecordHTTPRequest(method, path string, status int, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, recordedRequest{method, path, status})
}

func TestMetricsMiddleware(t *testing.T) {
	rec := &fakeHTTPRecorder{}
	h := MetricsMiddleware(rec)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	serve(h, httptest.NewRequest(http.MethodGet, "/api/v1/users/42/sessions", nil))

	require.Len(t, rec.reqs, 1)
	assert.Equal(t, recordedRequest{http.MethodGet, "/api/v1/users/:id/sessions", http.StatusNotFound}, rec.reqs[0])
}

func TestNormalizePath(t *testing.T) {
	tests := map[string]string{
		"/health":                     "/health",
		"/api/v1/evidence":            "/api/v1/evidence",
		"/api/v1/sessions":            "/api/v1/sessions",
		"/api/v1/users/42/ingest":     "/api/v1/users/:id/ingest",
		"/api/v1/sessions/7/messages": "/api/v1/sessions/:id/messages",
		"/api/v1/users/550e8400-e29b-41d4-a716-446655440000": "/api/v1/users/:id",
		"/api/v1/users/alice":                                "/api/v1/users/alice",
	}
	for in, want := range tests {
		assert.Equal(t, want, normalizePath(in), in)
	}
}
