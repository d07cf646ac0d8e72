package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(body))
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	server := newTestServer(t)

	handler := server.requestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("GeneratesID", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest("GET", "/api/v1/pipelines", nil))
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
	})

	t.Run("KeepsCallerID", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/v1/pipelines", nil)
		req.Header.Set("X-Request-ID", "caller-id")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		assert.Equal(t, "caller-id", rr.Header().Get("X-Request-ID"))
	})
}

func TestCORSMiddleware(t *testing.T) {
	server := newTestServer(t)
	handler := server.corsMiddleware(okHandler("ok"))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/api/v1/pipelines", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET, POST, PUT, DELETE, OPTIONS", rr.Header().Get("Access-Control-Allow-Methods"))

	// Preflight is answered without reaching the handler.
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("OPTIONS", "/api/v1/pipelines", nil))
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Empty(t, rr.Body.String())
}

func TestRecoveryMiddleware(t *testing.T) {
	server := newTestServer(t)

	handler := server.recoveryMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("detector blew up")
	}))

	rr := httptest.NewRecorder()
	require.NotPanics(t, func() {
		handler.ServeHTTP(rr, httptest.NewRequest("GET", "/api/v1/pipelines", nil))
	})
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestTimeoutMiddleware(t *testing.T) {
	server := newTestServer(t)
	timeoutMw := server.timeoutMiddleware(50 * time.Millisecond)

	t.Run("FastHandlerPasses", func(t *testing.T) {
		rr := httptest.NewRecorder()
		timeoutMw(okHandler("ok")).ServeHTTP(rr, httptest.NewRequest("GET", "/api/v1/pipelines", nil))
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "ok", rr.Body.String())
	})

	t.Run("SlowHandlerTimesOut", func(t *testing.T) {
		slow := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(150 * time.Millisecond)
			w.WriteHeader(http.StatusOK)
		})

		rr := httptest.NewRecorder()
		timeoutMw(slow).ServeHTTP(rr, httptest.NewRequest("GET", "/api/v1/pipelines", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
		assert.Contains(t, rr.Body.String(), "Request timeout")
	})

	t.Run("ProfilingExempt", func(t *testing.T) {
		// CPU profiles legitimately run longer than the request timeout.
		slow := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(100 * time.Millisecond)
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("profile data"))
		})

		rr := httptest.NewRecorder()
		timeoutMw(slow).ServeHTTP(rr, httptest.NewRequest("GET", "/debug/pprof/profile", nil))
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "profile data", rr.Body.String())
	})
}

func TestMetricsMiddleware(t *testing.T) {
	server := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		status int
	}{
		{"create pipeline", "POST", "/api/v1/pipelines", http.StatusCreated},
		{"stop pipeline", "DELETE", "/api/v1/pipelines/lum-1", http.StatusNoContent},
		{"server fault", "GET", "/api/v1/pipelines/boom", http.StatusInternalServerError},
		{"health skipped", "GET", "/health", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := server.metricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))

			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.status, rr.Code)
		})
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	server := newTestServer(t)
	handler := server.rateLimitMiddleware(okHandler("ok"))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/api/v1/pipelines", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}
