// internal/handler/device_handler_test.go
package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"calibrator-service/internal/fluke5440b"
	"calibrator-service/internal/service"
)

// deadBus satisfies the transport interface but is never opened; the driver
// stays disconnected, which is exactly what these tests exercise.
type deadBus struct{}

func (deadBus) Open(ctx context.Context) error               { return nil }
func (deadBus) Close() error                                 { return nil }
func (deadBus) IsOpen() bool                                 { return false }
func (deadBus) Write(ctx context.Context, data []byte) error { return nil }
func (deadBus) Read(ctx context.Context) ([]byte, error)     { return nil, nil }
func (deadBus) SerialPoll(ctx context.Context) (byte, error) { return 0, nil }
func (deadBus) Clear(ctx context.Context) error              { return nil }
func (deadBus) Local(ctx context.Context) error              { return nil }

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := zaptest.NewLogger(t)
	device := fluke5440b.New(deadBus{}, fluke5440b.Config{}, logger)
	events := service.NewEventBus(logger)
	operations := service.NewOperationService(device, events, logger)

	router := gin.New()
	v1 := router.Group("/api/v1")
	NewDeviceHandler(device, logger).RegisterRoutes(v1)
	NewOperationHandler(operations, logger).RegisterRoutes(v1)
	return router
}

func doRequest(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestDisconnectedDeviceReturns503(t *testing.T) {
	router := newTestRouter(t)

	for _, path := range []string{
		"/api/v1/device/state",
		"/api/v1/device/status",
		"/api/v1/device/output",
		"/api/v1/device/id",
	} {
		w := doRequest(router, http.MethodGet, path, "")
		assert.Equal(t, http.StatusServiceUnavailable, w.Code, path)
		assert.Contains(t, w.Body.String(), `"success":false`, path)
	}
}

func TestSetOutputRejectsMalformedBody(t *testing.T) {
	router := newTestRouter(t)

	w := doRequest(router, http.MethodPost, "/api/v1/device/output", `{"value":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSetOutputRejectsBeyondHardLimit(t *testing.T) {
	router := newTestRouter(t)

	// The ±1500 V hard limit is enforced before any bus traffic, so it
	// returns 400 even while the instrument is disconnected.
	w := doRequest(router, http.MethodPost, "/api/v1/device/output", `{"value":2000}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSetModeRejectsUnknownMode(t *testing.T) {
	router := newTestRouter(t)

	w := doRequest(router, http.MethodPost, "/api/v1/device/mode", `{"mode":"TURBO"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSetVoltageLimitRejectsTooManyValues(t *testing.T) {
	router := newTestRouter(t)

	w := doRequest(router, http.MethodPut, "/api/v1/device/voltage-limit",
		`{"limits":[1,2,3]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStartOperationRejectsUnknownType(t *testing.T) {
	router := newTestRouter(t)

	w := doRequest(router, http.MethodPost, "/api/v1/operations", `{"type":"DEGAUSS"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetOperationRejectsBadID(t *testing.T) {
	router := newTestRouter(t)

	w := doRequest(router, http.MethodGet, "/api/v1/operations/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetOperationNotFound(t *testing.T) {
	router := newTestRouter(t)

	w := doRequest(router, http.MethodGet,
		"/api/v1/operations/0c9cc8ad-5d86-4f48-8cb8-7f9d0b61a5b5", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestResponseEnvelope(t *testing.T) {
	router := newTestRouter(t)

	w := doRequest(router, http.MethodGet, "/api/v1/operations", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"success":true`)
	assert.Contains(t, w.Body.String(), `"timestamp"`)
}
