package dto

// CreateWarehouseRequest creates a warehouse.
type CreateWarehouseRequest struct {
	Code    string `json:"code"`
	Name    string `json:"name" binding:"required"`
	Address string `json:"address"`
}

// UpdateWarehouseRequest updates catalog fields.
type UpdateWarehouseRequest struct {
	Name     string `json:"name" binding:"required"`
	Address  string `json:"address"`
	IsActive *bool  `json:"isActive"`
}

// PriorityOrderRequest replaces the allocation order as a whole list.
type PriorityOrderRequest struct {
	WarehouseIDs []string `json:"warehouseIds" binding:"required"`
}
