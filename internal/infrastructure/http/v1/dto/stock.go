package dto

import (
	"tally/internal/core/types"
)

// StockLineRequest is one inventory demand line.
type StockLineRequest struct {
	ItemID   string         `json:"itemId" binding:"required"`
	Quantity types.Quantity `json:"quantity" binding:"required"`
}

// AllocationPreviewRequest previews warehouse splits for the given lines.
type AllocationPreviewRequest struct {
	Lines []StockLineRequest `json:"lines" binding:"required"`
}

// BalanceResponse is one (item, warehouse) balance.
type BalanceResponse struct {
	ItemID      string         `json:"itemId"`
	WarehouseID string         `json:"warehouseId"`
	Balance     types.Quantity `json:"balance"`
}

// MovementHistoryQuery filters an item's movement history.
type MovementHistoryQuery struct {
	ListQuery
	WarehouseID string `form:"warehouseId"`
	Event       string `form:"event"`
}
