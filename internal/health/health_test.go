package health_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/book-expert/logger"
	"github.com/book-expert/picotts/internal/health"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T) *health.Server {
	t.Helper()

	log, err := logger.New(t.TempDir(), "health-test.log")
	require.NoError(t, err)

	t.Cleanup(func() { _ = log.Close() })

	return health.New(0, log)
}

func get(t *testing.T, handler http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, path, nil))

	return recorder
}

func TestHealthz_AlwaysOK(t *testing.T) {
	t.Parallel()

	server := newServer(t)

	recorder := get(t, server.Handler(), "/healthz")

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.JSONEq(t, `{"status":"ok"}`, recorder.Body.String())
}

func TestReadyz_FollowsReadiness(t *testing.T) {
	t.Parallel()

	server := newServer(t)
	handler := server.Handler()

	recorder := get(t, handler, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, recorder.Code)
	assert.JSONEq(t, `{"status":"not_ready"}`, recorder.Body.String())

	server.SetReady(true)

	recorder = get(t, handler, "/readyz")
	assert.Equal(t, http.StatusOK, recorder.Code)

	server.SetReady(false)

	recorder = get(t, handler, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, recorder.Code)
}

func TestUnknownPath(t *testing.T) {
	t.Parallel()

	recorder := get(t, newServer(t).Handler(), "/metrics")

	assert.Equal(t, http.StatusNotFound, recorder.Code)
}
