package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/healthgraph/internal/ctxkeys"
	"github.com/BaSui01/healthgraph/types"
)

// =============================================================================
// 🧪 Common 函数测试
// =============================================================================

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp
}

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	WriteJSON(w, http.StatusAccepted, map[string]string{"message": "hello"})

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}

func TestWriteSuccess_CarriesRequestID(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r = r.WithContext(ctxkeys.WithRequestID(r.Context(), "req-42"))
	w := httptest.NewRecorder()

	WriteSuccess(w, r, map[string]string{"key": "value"})

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	assert.True(t, resp.Success)
	assert.Equal(t, "req-42", resp.RequestID)
	assert.Nil(t, resp.Error)
	assert.False(t, resp.Timestamp.IsZero())
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   types.ErrorCode
		retryable  bool
	}{
		{"explicit status", types.NewError(types.ErrInvalidRequest, "bad").WithHTTPStatus(http.StatusConflict), http.StatusConflict, types.ErrInvalidRequest, false},
		{"mapped validation", types.NewIngestValidation("bad date"), http.StatusBadRequest, types.ErrIngestValidation, false},
		{"mapped store", types.NewError(types.ErrStoreUnavailable, "down"), http.StatusServiceUnavailable, types.ErrStoreUnavailable, false},
		{"extraction", types.NewExtractionFailure("bad json", nil), http.StatusBadGateway, types.ErrExtractionFailure, true},
		{"wrapped typed", fmt.Errorf("retrieve: %w", types.NewStoreUnavailable("down", nil)), http.StatusServiceUnavailable, types.ErrStoreUnavailable, true},
		{"plain error", errors.New("boom"), http.StatusInternalServerError, types.ErrInternalError, false},
		{"deadline", fmt.Errorf("x: %w", context.DeadlineExceeded), http.StatusGatewayTimeout, types.ErrTimeout, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(w, httptest.NewRequest(http.MethodGet, "/", nil), tt.err, zap.NewNop())

			assert.Equal(t, tt.wantStatus, w.Code)
			resp := decodeResponse(t, w)
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, string(tt.wantCode), resp.Error.Code)
			assert.Equal(t, tt.retryable, resp.Error.Retryable)
		})
	}
}

func TestWriteError_HidesPlainErrorDetails(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, httptest.NewRequest(http.MethodGet, "/", nil), errors.New("password=hunter2"), nil)
	assert.NotContains(t, w.Body.String(), "hunter2")
}

func TestDecodeJSONBody(t *testing.T) {
	type body struct {
		Name string `json:"name"`
	}

	t.Run("valid", func(t *testing.T) {
		var dst body
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"alice"}`))
		w := httptest.NewRecorder()
		assert.True(t, DecodeJSONBody(w, r, &dst, nil))
		assert.Equal(t, "alice", dst.Name)
	})

	t.Run("unknown field", func(t *testing.T) {
		var dst body
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"nam":"alice"}`))
		w := httptest.NewRecorder()
		assert.False(t, DecodeJSONBody(w, r, &dst, nil))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("empty body", func(t *testing.T) {
		var dst body
		r := httptest.NewRequest(http.MethodPost, "/", http.NoBody)
		w := httptest.NewRecorder()
		assert.False(t, DecodeJSONBody(w, r, &dst, nil))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("too large", func(t *testing.T) {
		var dst body
		payload := `{"name":"` + strings.Repeat("a", maxBodyBytes) + `"}`
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(payload))
		w := httptest.NewRecorder()
		assert.False(t, DecodeJSONBody(w, r, &dst, nil))
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	})
}

func TestPathID(t *testing.T) {
	mux := http.NewServeMux()
	var got int64
	mux.HandleFunc("GET /items/{id}", func(w http.ResponseWriter, r *http.Request) {
		id, ok := PathID(w, r, "id", nil)
		if ok {
			got = id
			w.WriteHeader(http.StatusNoContent)
		}
	})

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/items/17", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, int64(17), got)

	for _, bad := range []string{"/items/abc", "/items/0", "/items/-3"} {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, bad, nil))
		assert.Equal(t, http.StatusBadRequest, w.Code, bad)
	}
}

func TestResponseWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := NewResponseWriter(rec)

	rw.WriteHeader(http.StatusTeapot)
	rw.WriteHeader(http.StatusOK)
	_, err := rw.Write([]byte("x"))
	require.NoError(t, err)

	assert.Equal(t, http.StatusTeapot, rw.StatusCode)
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Same(t, rec, rw.Unwrap())
}
