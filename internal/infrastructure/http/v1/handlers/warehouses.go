package handlers

import (
	"github.com/gin-gonic/gin"

	"tally/internal/core/apperror"
	appctx "tally/internal/core/context"
	"tally/internal/core/id"
	"tally/internal/domain/catalogs/warehouse"
	"tally/internal/infrastructure/http/v1/dto"
)

// WarehouseHandler handles HTTP requests for the warehouse catalog and the
// allocation priority order.
type WarehouseHandler struct {
	*BaseHandler
	service *warehouse.Service
}

// NewWarehouseHandler creates a new warehouse handler.
func NewWarehouseHandler(base *BaseHandler, service *warehouse.Service) *WarehouseHandler {
	return &WarehouseHandler{BaseHandler: base, service: service}
}

// Create creates a warehouse.
// POST /warehouses
func (h *WarehouseHandler) Create(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.CreateWarehouseRequest
	if !h.BindJSON(c, &req) {
		return
	}

	w := warehouse.NewWarehouse(appctx.GetCompanyID(ctx), req.Code, req.Name)
	w.Address = req.Address

	if err := h.service.Create(ctx, w); err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, w.ID.String())
}

// Get retrieves a warehouse.
// GET /warehouses/:id
func (h *WarehouseHandler) Get(c *gin.Context) {
	whID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	w, err := h.service.GetByID(c.Request.Context(), whID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, w)
}

// List retrieves warehouses for the company.
// GET /warehouses
func (h *WarehouseHandler) List(c *gin.Context) {
	activeOnly := c.Query("activeOnly") == "true"

	whs, err := h.service.List(c.Request.Context(), activeOnly)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, gin.H{"items": whs})
}

// Update persists catalog field changes.
// PUT /warehouses/:id
func (h *WarehouseHandler) Update(c *gin.Context) {
	ctx := c.Request.Context()

	whID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	var req dto.UpdateWarehouseRequest
	if !h.BindJSON(c, &req) {
		return
	}

	w, err := h.service.GetByID(ctx, whID)
	if err != nil {
		h.Error(c, err)
		return
	}

	w.Name = req.Name
	w.Address = req.Address
	if req.IsActive != nil {
		w.IsActive = *req.IsActive
	}

	if err := h.service.Update(ctx, w); err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, w)
}

// SetMain moves the main flag to the given warehouse.
// POST /warehouses/:id/set-main
func (h *WarehouseHandler) SetMain(c *gin.Context) {
	whID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	if err := h.service.SetMain(c.Request.Context(), whID); err != nil {
		h.Error(c, err)
		return
	}
	h.Success(c, "main warehouse updated")
}

// GetPriorities returns the configured allocation order.
// GET /warehouses/priorities
func (h *WarehouseHandler) GetPriorities(c *gin.Context) {
	order, err := h.service.ResolveOrder(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}

	ids := make([]string, len(order))
	for i, whID := range order {
		ids[i] = whID.String()
	}
	h.OK(c, gin.H{"warehouseIds": ids})
}

// ReplacePriorities atomically swaps the allocation order as a whole list.
// PUT /warehouses/priorities
func (h *WarehouseHandler) ReplacePriorities(c *gin.Context) {
	var req dto.PriorityOrderRequest
	if !h.BindJSON(c, &req) {
		return
	}

	warehouseIDs := make([]id.ID, 0, len(req.WarehouseIDs))
	for _, raw := range req.WarehouseIDs {
		parsed, err := id.Parse(raw)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid warehouse id").WithDetail("value", raw))
			return
		}
		warehouseIDs = append(warehouseIDs, parsed)
	}

	order, err := h.service.ReplacePriorityOrder(c.Request.Context(), warehouseIDs)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, order)
}

// RegisterRoutes registers warehouse routes.
func (h *WarehouseHandler) RegisterRoutes(rg *gin.RouterGroup) {
	// Fixed paths before :id to avoid route capture.
	rg.GET("/priorities", h.GetPriorities)
	rg.PUT("/priorities", h.ReplacePriorities)

	rg.GET("", h.List)
	rg.POST("", h.Create)
	rg.GET("/:id", h.Get)
	rg.PUT("/:id", h.Update)
	rg.POST("/:id/set-main", h.SetMain)
}
