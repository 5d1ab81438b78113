// internal/handler/health_handler_test.go
package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mavgate/internal/config"
	"mavgate/internal/mavconn"
	"mavgate/internal/service"
)

func TestConnectionManagerCount(t *testing.T) {
	cm := NewConnectionManager()

	client := &Client{ID: "client-1", Send: make(chan []byte, 1)}
	cm.Register(client)
	require.Eventually(t, func() bool {
		return cm.Count() == 1
	}, time.Second, 5*time.Millisecond)

	cm.Unregister(client)
	require.Eventually(t, func() bool {
		return cm.Count() == 0
	}, time.Second, 5*time.Millisecond)
}

func TestHealthCheckReportsGatewayState(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	registry := mavconn.NewChannelRegistry(logger)
	reactor := mavconn.NewReactor(logger)
	t.Cleanup(reactor.Stop)

	factory := mavconn.NewFactory(registry, reactor, logger)
	gatewayCfg := &config.GatewayConfig{SystemID: 1, ComponentID: 240}
	svc := service.NewLinkService(factory, registry, gatewayCfg, logger)
	t.Cleanup(svc.Shutdown)

	cfg := &config.Config{
		App: config.AppConfig{Name: "mavgate", Version: "test"},
	}
	ws := NewWebSocketHandler(NewEventBus(logger), logger)
	h := NewHealthHandler(cfg, svc, ws, logger)

	router := gin.New()
	router.GET("/health", h.HealthCheck)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var health HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health.Status)

	channels, ok := health.Checks["channels"]
	require.True(t, ok)
	assert.Equal(t, float64(mavconn.MaxChannels), channels.Data["available"])

	stream, ok := health.Checks["event_stream"]
	require.True(t, ok)
	assert.Equal(t, float64(0), stream.Data["clients"])
}
