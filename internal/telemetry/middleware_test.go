package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/italolelis/imgbb_downloader/internal/logctx"
)

func TestGetStatusClass(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{http.StatusSwitchingProtocols, "1xx"},
		{http.StatusOK, "2xx"},
		{http.StatusFound, "3xx"},
		{http.StatusNotFound, "4xx"},
		{http.StatusBadGateway, "5xx"},
		{0, "unknown"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, getStatusClass(tt.code), "code %d", tt.code)
	}
}

func TestRequestID(t *testing.T) {
	var seen string

	h := RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = logctx.RequestID(r.Context())
	}))

	t.Run("generated", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs", nil))

		require.NotEmpty(t, seen)
		assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))
	})

	t.Run("propagated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
		req.Header.Set(RequestIDHeader, "upstream-1")

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, "upstream-1", seen)
		assert.Equal(t, "upstream-1", rec.Header().Get(RequestIDHeader))
	})
}

func TestHTTPMiddleware_PassesStatusThrough(t *testing.T) {
	for name, tel := range map[string]*Telemetry{"nil": nil, "disabled": {}} {
		t.Run(name, func(t *testing.T) {
			h := NewHTTPMiddleware(tel).Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusTeapot)
				_, _ = w.Write([]byte("short and stout"))
			}))

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/history", nil))

			assert.Equal(t, http.StatusTeapot, rec.Code)
			assert.Equal(t, "short and stout", rec.Body.String())
		})
	}
}

func TestHijack_UnsupportedWriter(t *testing.T) {
	rw := &metricsWriter{ResponseWriter: httptest.NewRecorder(), statusCode: http.StatusOK}

	_, _, err := rw.Hijack()
	assert.Error(t, err)

	sw := wrapResponseWriter(httptest.NewRecorder())

	_, _, err = sw.Hijack()
	assert.Error(t, err)
}

func TestNew_Disabled(t *testing.T) {
	tel, err := New(context.Background(), Config{Enabled: false})
	require.NoError(t, err)

	assert.NotNil(t, tel.Tracer())
	assert.Equal(t, http.DefaultTransport, tel.Transport(nil))
	assert.NoError(t, tel.Shutdown(context.Background()))
}
