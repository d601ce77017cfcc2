package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestGetRequestIDFromContext(t *testing.T) {
	t.Run("chi request id wins", func(t *testing.T) {
		ctx := context.WithValue(context.Background(), chimiddleware.RequestIDKey, "chi-1")
		ctx = WithRequestID(ctx, "manual-1")

		assert.Equal(t, "chi-1", GetRequestIDFromContext(ctx))
	})

	t.Run("falls back to manual id", func(t *testing.T) {
		assert.Equal(t, "manual-1", GetRequestIDFromContext(WithRequestID(context.Background(), "manual-1")))
	})

	t.Run("empty when absent", func(t *testing.T) {
		assert.Empty(t, GetRequestIDFromContext(context.Background()))
	})
}

func TestEchoRequestID(t *testing.T) {
	handler := chimiddleware.RequestID(EchoRequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
}

func TestRequestLogger(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantLevel zapcore.Level
	}{
		{"success logs at info", http.StatusOK, zapcore.InfoLevel},
		{"client error logs at info", http.StatusBadRequest, zapcore.InfoLevel},
		{"server error logs at warn", http.StatusServiceUnavailable, zapcore.WarnLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.DebugLevel)
			handler := RequestLogger(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{}`))
			}))

			req := httptest.NewRequest(http.MethodPost, "/api/v1/search/hybrid", nil)
			handler.ServeHTTP(httptest.NewRecorder(), req.WithContext(WithRequestID(req.Context(), "req-7")))

			require.Equal(t, 1, logs.Len())
			entry := logs.All()[0]
			assert.Equal(t, tt.wantLevel, entry.Level)
			fields := entry.ContextMap()
			assert.Equal(t, int64(tt.status), fields["status"])
			assert.Equal(t, "/api/v1/search/hybrid", fields["path"])
			assert.Equal(t, "req-7", fields["request_id"])
		})
	}
}
