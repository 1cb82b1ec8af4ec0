package entity

import (
	"time"

	"tally/internal/core/id"
	"tally/internal/core/types"
)

// StockEvent names the document event that caused a stock movement.
type StockEvent string

const (
	// StockEventReserve earmarks stock ahead of fulfilment.
	StockEventReserve StockEvent = "reserve"
	// StockEventReduce removes stock when a document commits (e.g. invoice paid).
	StockEventReduce StockEvent = "reduce"
	// StockEventRestore compensates earlier movements on cancellation.
	StockEventRestore StockEvent = "restore"
)

// IsValid reports whether the event is one of the known causes.
func (e StockEvent) IsValid() bool {
	switch e {
	case StockEventReserve, StockEventReduce, StockEventRestore:
		return true
	}
	return false
}

// StockMovement is one quantity change for an item in a warehouse, caused by
// exactly one document event. Movements are append-only: a warehouse balance
// is always the running sum of its movements, never a separately mutated
// counter, so the register and the balance cannot drift apart.
type StockMovement struct {
	// LineID is the unique identifier for this movement line (UUIDv7)
	LineID id.ID `db:"line_id" json:"lineId"`

	// CompanyID is the owning tenant
	CompanyID string `db:"company_id" json:"companyId"`

	// Dimensions
	ItemID      id.ID `db:"item_id" json:"itemId"`
	WarehouseID id.ID `db:"warehouse_id" json:"warehouseId"`

	// QuantityDelta is signed: negative for reduce, positive for restore/receipt.
	QuantityDelta types.Quantity `db:"quantity_delta" json:"quantityDelta"`

	// DocumentID is the document whose event caused this movement
	DocumentID id.ID `db:"document_id" json:"documentId"`

	// Event is the causing document event
	Event StockEvent `db:"event" json:"event"`

	// CreatedAt is when the movement was recorded
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// NewStockMovement creates a new stock movement line.
func NewStockMovement(companyID string, itemID, warehouseID id.ID, delta types.Quantity, documentID id.ID, event StockEvent) StockMovement {
	return StockMovement{
		LineID:        id.New(),
		CompanyID:     companyID,
		ItemID:        itemID,
		WarehouseID:   warehouseID,
		QuantityDelta: delta,
		DocumentID:    documentID,
		Event:         event,
		CreatedAt:     time.Now().UTC(),
	}
}

// Mirror returns the compensating movement for cancellation: same item and
// warehouse, negated delta, restore event. Restoring mirrors the exact path
// stock took, warehouse by warehouse, not just the net total.
func (m StockMovement) Mirror(documentID id.ID) StockMovement {
	return NewStockMovement(m.CompanyID, m.ItemID, m.WarehouseID, m.QuantityDelta.Neg(), documentID, StockEventRestore)
}
