package stock

import (
	"context"
	"time"

	"tally/internal/core/entity"
	"tally/internal/core/id"
	"tally/internal/core/types"
)

// MovementFilter narrows movement history queries.
type MovementFilter struct {
	WarehouseID *id.ID
	Event       *entity.StockEvent
	FromDate    *time.Time
	ToDate      *time.Time
	Limit       int
	Offset      int
}

// Repository persists the stock movement register. Rows are append-only;
// there is no update or delete path once a movement is committed.
type Repository interface {
	// LockItem serializes read-then-append windows on one (company, item)
	// for the rest of the current transaction. Callers must hold the lock
	// before reading balances they are about to allocate against.
	LockItem(ctx context.Context, itemID id.ID) error

	// CreateMovements batch inserts movements (COPY inside a transaction).
	CreateMovements(ctx context.Context, movements []entity.StockMovement) error

	// MovementsByDocument retrieves every movement a document caused,
	// in insertion order.
	MovementsByDocument(ctx context.Context, documentID id.ID) ([]entity.StockMovement, error)

	// Balance returns the running sum of quantity deltas for one
	// (item, warehouse) pair. May be negative.
	Balance(ctx context.Context, itemID, warehouseID id.ID) (types.Quantity, error)

	// BalancesForItem returns running sums for an item across the given
	// warehouses. Warehouses with no movements report zero.
	BalancesForItem(ctx context.Context, itemID id.ID, warehouseIDs []id.ID) (map[id.ID]types.Quantity, error)

	// MovementHistory returns movements for an item, newest first.
	MovementHistory(ctx context.Context, itemID id.ID, filter MovementFilter) ([]entity.StockMovement, error)
}
