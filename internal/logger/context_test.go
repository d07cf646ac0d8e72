package logger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerRoundtrip(t *testing.T) {
	logger := logrus.New()
	entry := logger.WithField("pipeline_id", "lum-1")

	ctx := WithLogger(context.Background(), entry)
	assert.Equal(t, "lum-1", FromContext(ctx).Data["pipeline_id"])

	// Without a stored entry a usable fallback comes back.
	assert.NotNil(t, FromContext(context.Background()))
}

func TestRequestIDRoundtrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-123")
	assert.Equal(t, "req-123", GetRequestID(ctx))
	assert.Empty(t, GetRequestID(context.Background()))
}

func TestWithRequest(t *testing.T) {
	logger := logrus.New()

	t.Run("KeepsCallerRequestID", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/v1/pipelines", nil)
		req.Header.Set("X-Request-ID", "caller-id")
		req.Header.Set("User-Agent", "visionpipe-dash/1.0")

		entry := WithRequest(logger, req)
		assert.Equal(t, "caller-id", entry.Data["request_id"])
		assert.Equal(t, "GET", entry.Data["method"])
		assert.Equal(t, "/api/v1/pipelines", entry.Data["path"])
		assert.Equal(t, "visionpipe-dash/1.0", entry.Data["user_agent"])
	})

	t.Run("GeneratesMissingRequestID", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/v1/pipelines", nil)
		entry := WithRequest(logger, req)
		assert.NotEmpty(t, entry.Data["request_id"])
	})
}

func TestRequestLoggerMiddleware(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	handler := RequestLoggerMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotNil(t, FromContext(r.Context()))
		assert.NotEmpty(t, GetRequestID(r.Context()))
		w.WriteHeader(http.StatusOK)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/api/v1/pipelines", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestResponseWriter(t *testing.T) {
	rw := NewResponseWriter(httptest.NewRecorder())
	assert.Equal(t, http.StatusOK, rw.StatusCode())

	rw.WriteHeader(http.StatusAccepted)
	assert.Equal(t, http.StatusAccepted, rw.StatusCode())

	// A second WriteHeader is dropped, matching net/http.
	rw.WriteHeader(http.StatusBadRequest)
	assert.Equal(t, http.StatusAccepted, rw.StatusCode())

	n, err := rw.Write([]byte("body"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestResponseWriter_ImplicitHeader(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := NewResponseWriter(rec)

	_, err := rw.Write([]byte("body"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rw.StatusCode())
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetRemoteIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{
			name:    "first forwarded entry is the client",
			headers: map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1, 10.0.0.2"},
			want:    "203.0.113.7",
		},
		{
			name:    "single forwarded entry",
			headers: map[string]string{"X-Forwarded-For": "203.0.113.7"},
			want:    "203.0.113.7",
		},
		{
			name:    "real ip header",
			headers: map[string]string{"X-Real-IP": "203.0.113.8"},
			want:    "203.0.113.8",
		},
		{
			name:    "remote addr with port stripped",
			headers: map[string]string{},
			want:    "192.0.2.1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = "192.0.2.1:1234"
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, getRemoteIP(req))
		})
	}
}
