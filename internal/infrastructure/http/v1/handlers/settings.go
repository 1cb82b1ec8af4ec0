package handlers

import (
	"github.com/gin-gonic/gin"

	"tally/internal/domain/documents"
	"tally/internal/infrastructure/http/v1/dto"
)

// SettingsHandler exposes the company's posting configuration.
type SettingsHandler struct {
	*BaseHandler
	settings *documents.SettingsService
}

// NewSettingsHandler creates a new settings handler.
func NewSettingsHandler(base *BaseHandler, settings *documents.SettingsService) *SettingsHandler {
	return &SettingsHandler{BaseHandler: base, settings: settings}
}

// Get returns the posting settings for the company in context.
// GET /settings/posting
func (h *SettingsHandler) Get(c *gin.Context) {
	enabled, err := h.settings.AutoReduceStock(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.PostingSettingsResponse{AutoReduceStock: enabled})
}

// Update replaces the posting settings for the company in context.
// PUT /settings/posting
func (h *SettingsHandler) Update(c *gin.Context) {
	var req dto.UpdatePostingSettingsRequest
	if !h.BindJSON(c, &req) {
		return
	}

	if err := h.settings.SetAutoReduceStock(c.Request.Context(), *req.AutoReduceStock); err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.PostingSettingsResponse{AutoReduceStock: *req.AutoReduceStock})
}

// RegisterRoutes registers settings routes.
func (h *SettingsHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/posting", h.Get)
	rg.PUT("/posting", h.Update)
}
