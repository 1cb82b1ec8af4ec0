// Package warehouse provides the Warehouse catalog and the per-company
// allocation priority order.
package warehouse

import (
	"context"

	"tally/internal/core/apperror"
	"tally/internal/core/entity"
	"tally/internal/core/id"
)

// Warehouse is a storage location stock can be allocated from.
type Warehouse struct {
	entity.BaseRecord

	// CompanyID is the owning tenant
	CompanyID string `db:"company_id" json:"companyId"`

	// Code is unique per company (WH-00001)
	Code string `db:"code" json:"code"`

	Name string `db:"name" json:"name"`

	// Address is the physical address
	Address string `db:"address" json:"address,omitempty"`

	// IsMain marks the company's main warehouse. Exactly one per company;
	// the main warehouse anchors the default allocation order.
	IsMain bool `db:"is_main" json:"isMain"`

	// IsActive indicates whether the warehouse is operational
	IsActive bool `db:"is_active" json:"isActive"`
}

// NewWarehouse creates an active warehouse for a company.
func NewWarehouse(companyID, code, name string) *Warehouse {
	return &Warehouse{
		BaseRecord: entity.NewBaseRecord(),
		CompanyID:  companyID,
		Code:       code,
		Name:       name,
		IsActive:   true,
	}
}

// Validate checks required fields.
func (w *Warehouse) Validate(ctx context.Context) error {
	if w.CompanyID == "" {
		return apperror.NewValidation("company is required").
			WithDetail("field", "companyId")
	}
	if w.Name == "" {
		return apperror.NewValidation("name is required").
			WithDetail("field", "name")
	}
	return nil
}

// PriorityOrder is the company's warehouse visit order for allocation.
// Position 0 is drawn from first; the last position absorbs any overflow.
type PriorityOrder struct {
	CompanyID    string  `json:"companyId"`
	WarehouseIDs []id.ID `json:"warehouseIds"`
}

// Validate rejects empty orders and duplicate warehouses.
func (p PriorityOrder) Validate() error {
	if len(p.WarehouseIDs) == 0 {
		return apperror.NewValidation("priority order must name at least one warehouse").
			WithDetail("field", "warehouseIds")
	}
	seen := make(map[id.ID]struct{}, len(p.WarehouseIDs))
	for _, wh := range p.WarehouseIDs {
		if id.IsNil(wh) {
			return apperror.NewValidation("priority order contains a nil warehouse id")
		}
		if _, dup := seen[wh]; dup {
			return apperror.NewValidation("priority order contains a duplicate warehouse").
				WithDetail("warehouseId", wh)
		}
		seen[wh] = struct{}{}
	}
	return nil
}
