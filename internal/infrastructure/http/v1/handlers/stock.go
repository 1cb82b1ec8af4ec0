package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"tally/internal/core/apperror"
	"tally/internal/core/entity"
	"tally/internal/core/id"
	"tally/internal/domain/catalogs/warehouse"
	"tally/internal/domain/registers/stock"
	"tally/internal/infrastructure/http/v1/dto"
)

// StockHandler handles HTTP requests for the stock register.
type StockHandler struct {
	*BaseHandler
	service    *stock.Service
	warehouses *warehouse.Service
}

// NewStockHandler creates a new stock handler.
func NewStockHandler(base *BaseHandler, service *stock.Service, warehouses *warehouse.Service) *StockHandler {
	return &StockHandler{BaseHandler: base, service: service, warehouses: warehouses}
}

// Balances returns an item's balance in every company warehouse.
// GET /stock/items/:itemId/balances
func (h *StockHandler) Balances(c *gin.Context) {
	ctx := c.Request.Context()

	itemID, err := id.Parse(c.Param("itemId"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid item id"))
		return
	}

	whs, err := h.warehouses.List(ctx, false)
	if err != nil {
		h.Error(c, err)
		return
	}
	warehouseIDs := make([]id.ID, len(whs))
	for i, w := range whs {
		warehouseIDs[i] = w.ID
	}

	balances, err := h.service.BalancesForItem(ctx, itemID, warehouseIDs)
	if err != nil {
		h.Error(c, err)
		return
	}

	items := make([]dto.BalanceResponse, 0, len(warehouseIDs))
	for _, whID := range warehouseIDs {
		items = append(items, dto.BalanceResponse{
			ItemID:      itemID.String(),
			WarehouseID: whID.String(),
			Balance:     balances[whID],
		})
	}
	h.OK(c, gin.H{"items": items})
}

// Balance returns one (item, warehouse) balance.
// GET /stock/items/:itemId/warehouses/:warehouseId/balance
func (h *StockHandler) Balance(c *gin.Context) {
	itemID, err := id.Parse(c.Param("itemId"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid item id"))
		return
	}
	warehouseID, err := id.Parse(c.Param("warehouseId"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid warehouse id"))
		return
	}

	balance, err := h.service.Balance(c.Request.Context(), itemID, warehouseID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.BalanceResponse{
		ItemID:      itemID.String(),
		WarehouseID: warehouseID.String(),
		Balance:     balance,
	})
}

// Movements returns an item's movement history, newest first.
// GET /stock/items/:itemId/movements
func (h *StockHandler) Movements(c *gin.Context) {
	itemID, err := id.Parse(c.Param("itemId"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid item id"))
		return
	}

	var q dto.MovementHistoryQuery
	if !h.BindQuery(c, &q) {
		return
	}

	filter := stock.MovementFilter{
		Limit:  q.Limit,
		Offset: q.Offset,
	}
	if q.WarehouseID != "" {
		parsed, err := id.Parse(q.WarehouseID)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid warehouse id"))
			return
		}
		filter.WarehouseID = &parsed
	}
	if q.Event != "" {
		ev := entity.StockEvent(q.Event)
		if !ev.IsValid() {
			h.Error(c, apperror.NewValidation("unknown event").WithDetail("value", q.Event))
			return
		}
		filter.Event = &ev
	}
	if from := c.Query("dateFrom"); from != "" {
		if parsed, err := time.Parse(time.RFC3339, from); err == nil {
			filter.FromDate = &parsed
		}
	}
	if to := c.Query("dateTo"); to != "" {
		if parsed, err := time.Parse(time.RFC3339, to); err == nil {
			filter.ToDate = &parsed
		}
	}

	movements, err := h.service.MovementHistory(c.Request.Context(), itemID, filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, gin.H{"items": movements})
}

// RegisterRoutes registers stock register routes.
func (h *StockHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/items/:itemId/balances", h.Balances)
	rg.GET("/items/:itemId/warehouses/:warehouseId/balance", h.Balance)
	rg.GET("/items/:itemId/movements", h.Movements)
}
