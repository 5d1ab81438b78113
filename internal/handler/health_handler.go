// internal/handler/health_handler.go
package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mavgate/internal/config"
	"mavgate/internal/mavconn"
	"mavgate/internal/service"
	"mavgate/internal/utils"
)

// HealthResponse represents the health check payload
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Service   string                 `json:"service"`
	Version   string                 `json:"version"`
	Checks    map[string]CheckResult `json:"checks"`
}

// CheckResult represents one health check outcome
type CheckResult struct {
	Status  string                 `json:"status"`
	Message string                 `json:"message,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

// HealthHandler handles health check requests
type HealthHandler struct {
	config      *config.Config
	linkService *service.LinkService
	ws          *WebSocketHandler
	logger      *utils.ServiceLogger
	startedAt   time.Time
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(config *config.Config, linkService *service.LinkService, ws *WebSocketHandler, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		config:      config,
		linkService: linkService,
		ws:          ws,
		logger:      utils.NewServiceLogger(logger, "health-handler"),
		startedAt:   time.Now(),
	}
}

// HealthCheck reports overall gateway health including channel availability
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	stats := h.linkService.Stats()

	health := &HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Service:   h.config.App.Name,
		Version:   h.config.App.Version,
		Checks:    make(map[string]CheckResult),
	}

	channelCheck := CheckResult{
		Status: "healthy",
		Data: map[string]interface{}{
			"available":    stats.ChannelsAvailable,
			"max_channels": mavconn.MaxChannels,
		},
	}
	if stats.ChannelsAvailable == 0 {
		health.Status = "degraded"
		channelCheck.Status = "degraded"
		channelCheck.Message = "all channels in use"
	}
	health.Checks["channels"] = channelCheck

	health.Checks["links"] = CheckResult{
		Status: "healthy",
		Data: map[string]interface{}{
			"open":           stats.Links,
			"uptime_seconds": int(time.Since(h.startedAt).Seconds()),
		},
	}

	health.Checks["event_stream"] = CheckResult{
		Status: "healthy",
		Data: map[string]interface{}{
			"clients": h.ws.ClientCount(),
		},
	}

	c.JSON(http.StatusOK, health)
}

// ReadinessCheck reports whether the gateway accepts requests
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ready",
		"timestamp": time.Now(),
	})
}

// LivenessCheck reports process liveness
func (h *HealthHandler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"timestamp": time.Now(),
	})
}
