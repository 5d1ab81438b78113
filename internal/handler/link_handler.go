// internal/handler/link_handler.go
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mavgate/internal/mavconn"
	"mavgate/internal/service"
	"mavgate/internal/utils"
)

// LinkHandler handles link management requests
type LinkHandler struct {
	linkService *service.LinkService
	logger      *utils.ServiceLogger
}

// OpenLinkRequest is the request body for opening a link
type OpenLinkRequest struct {
	URL string `json:"url" binding:"required"`
}

// NewLinkHandler creates a new link handler
func NewLinkHandler(linkService *service.LinkService, logger *zap.Logger) *LinkHandler {
	return &LinkHandler{
		linkService: linkService,
		logger:      utils.NewServiceLogger(logger, "link-handler"),
	}
}

// ListLinks returns every open link
func (h *LinkHandler) ListLinks(c *gin.Context) {
	links := h.linkService.ListLinks()
	utils.SuccessResponse(c, http.StatusOK, "Links retrieved", gin.H{
		"links": links,
		"count": len(links),
	})
}

// OpenLink opens a connection URL and returns the new link
func (h *LinkHandler) OpenLink(c *gin.Context) {
	var req OpenLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	info, err := h.linkService.OpenLink(req.URL)
	if err != nil {
		h.logger.Warn("Failed to open link", zap.String("url", req.URL), zap.Error(err))

		var devErr *mavconn.DeviceError
		switch {
		case errors.Is(err, mavconn.ErrChannelsExhausted):
			utils.ErrorResponse(c, http.StatusServiceUnavailable, "No free channels", err)
		case errors.As(err, &devErr):
			utils.ErrorResponse(c, http.StatusBadRequest, "Failed to open link", err)
		default:
			utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to open link", err)
		}
		return
	}

	utils.SuccessResponse(c, http.StatusCreated, "Link opened", info)
}

// GetLink returns a single link by ID
func (h *LinkHandler) GetLink(c *gin.Context) {
	info, err := h.linkService.GetLink(c.Param("link_id"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusNotFound, "Link not found", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Link retrieved", info)
}

// GetLinkStats returns statistics for a single link
func (h *LinkHandler) GetLinkStats(c *gin.Context) {
	info, err := h.linkService.GetLink(c.Param("link_id"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusNotFound, "Link not found", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Link statistics retrieved", info.Stats)
}

// CloseLink closes a link by ID
func (h *LinkHandler) CloseLink(c *gin.Context) {
	id := c.Param("link_id")
	if err := h.linkService.CloseLink(id); err != nil {
		if errors.Is(err, service.ErrLinkNotFound) {
			utils.ErrorResponse(c, http.StatusNotFound, "Link not found", err)
		} else {
			utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to close link", err)
		}
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Link closed", gin.H{"link_id": id})
}

// GetGatewayStats returns aggregate statistics across all links
func (h *LinkHandler) GetGatewayStats(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Gateway statistics retrieved", h.linkService.Stats())
}
