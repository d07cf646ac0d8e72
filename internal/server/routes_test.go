package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/ocellus/visionpipe/internal/errors"
	"github.com/ocellus/visionpipe/pkg/version"
)

func TestHandleVersion(t *testing.T) {
	server := newTestServer(t)

	rr := httptest.NewRecorder()
	server.handleVersion(rr, httptest.NewRequest("GET", "/version", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var info version.Info
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &info))
	assert.NotEmpty(t, info.Version)
	assert.NotEmpty(t, info.GoVersion)
}

func TestHandleRoot(t *testing.T) {
	server := newTestServer(t)

	rr := httptest.NewRecorder()
	server.handleRoot(rr, httptest.NewRequest("GET", "/", nil))

	require.Equal(t, http.StatusOK, rr.Code)

	var response map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
	assert.Equal(t, "visionpipe", response["service"])
	assert.Equal(t, "/api/v1", response["api"])
}

func TestHandlePipelinesPlaceholder(t *testing.T) {
	server := newTestServer(t)

	rr := httptest.NewRecorder()
	server.handlePipelinesPlaceholder(rr, httptest.NewRequest("GET", "/api/v1/pipelines", nil))

	require.Equal(t, http.StatusOK, rr.Code)

	var response map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
	assert.Contains(t, response["message"], "vision manager")
}

func TestWriteJSON(t *testing.T) {
	server := newTestServer(t)

	rr := httptest.NewRecorder()
	require.NoError(t, server.writeJSON(rr, http.StatusCreated, map[string]string{"id": "lum-1"}))

	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"id": "lum-1"}`, rr.Body.String())
}

func TestWriteError(t *testing.T) {
	server := newTestServer(t)

	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"validation", apperrors.NewValidationError("unknown detector"), http.StatusBadRequest},
		{"not found", apperrors.NewNotFoundError("pipeline lum-1"), http.StatusNotFound},
		{"unsupported input", apperrors.NewUnsupportedInputError("yuv422"), http.StatusUnsupportedMediaType},
		{"plain error", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			server.writeError(rr, httptest.NewRequest("GET", "/api/v1/pipelines", nil), tt.err)

			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
			assert.Contains(t, rr.Body.String(), "error")
		})
	}
}
