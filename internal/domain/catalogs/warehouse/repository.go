package warehouse

import (
	"context"

	"tally/internal/core/id"
)

// Repository persists warehouses and the priority order.
type Repository interface {
	Create(ctx context.Context, w *Warehouse) error
	Update(ctx context.Context, w *Warehouse) error
	GetByID(ctx context.Context, whID id.ID) (*Warehouse, error)
	List(ctx context.Context, activeOnly bool) ([]*Warehouse, error)

	// GetMain returns the company's main warehouse, or NOT_FOUND.
	GetMain(ctx context.Context) (*Warehouse, error)

	// GetPriorityOrder returns the stored order. An empty order (never
	// configured) comes back with no warehouse ids, not an error.
	GetPriorityOrder(ctx context.Context) (PriorityOrder, error)

	// ReplacePriorityOrder atomically swaps the whole order: delete then
	// insert inside one transaction. Partial orders are never observable.
	ReplacePriorityOrder(ctx context.Context, order PriorityOrder) error
}
