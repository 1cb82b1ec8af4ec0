// Package documents adapts document lifecycle transitions onto the posting
// engine. The outer application (invoicing, payments, bank import) calls this
// boundary; documents themselves live outside the core and are referenced by
// id only.
package documents

import (
	"context"
	"time"

	"tally/internal/core/apperror"
	"tally/internal/core/entity"
	"tally/internal/core/id"
	"tally/internal/domain/allocation"
	"tally/internal/domain/ledger"
	"tally/internal/domain/posting"
)

// Document is the transition payload the outer application hands over:
// enough to build the ledger entries and the inventory demand, nothing more.
type Document struct {
	ID         id.ID                `json:"id"`
	Kind       ledger.ReferenceType `json:"kind"`
	Date       time.Time            `json:"date"`
	Entries    []ledger.EntryInput  `json:"entries"`
	StockLines []posting.StockLine  `json:"stockLines,omitempty"`
}

// Validate checks the transition payload before it reaches the engine.
func (d Document) Validate() error {
	if id.IsNil(d.ID) {
		return apperror.NewValidation("document id is required").
			WithDetail("field", "id")
	}
	if !d.Kind.IsValid() {
		return apperror.NewValidation("unknown document kind").
			WithDetail("field", "kind").
			WithDetail("value", string(d.Kind))
	}
	for i, line := range d.StockLines {
		if id.IsNil(line.ItemID) {
			return apperror.NewValidation("stock line item is required").
				WithDetail("lineNo", i+1)
		}
		if !line.Quantity.IsPositive() {
			return apperror.NewValidation("stock line quantity must be positive").
				WithDetail("lineNo", i+1).
				WithDetail("quantity", line.Quantity.String())
		}
	}
	return nil
}

// Dispatcher is the document lifecycle boundary.
type Dispatcher struct {
	engine *posting.Engine
}

// NewDispatcher creates a dispatcher over the posting engine.
func NewDispatcher(engine *posting.Engine) *Dispatcher {
	return &Dispatcher{engine: engine}
}

// PostDocument handles a committed document: post ledger, allocate and record
// stock in one atomic unit.
func (d *Dispatcher) PostDocument(ctx context.Context, doc Document) (*posting.Result, error) {
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return d.engine.PostDocument(ctx, posting.PostRequest{
		DocumentID:    doc.ID,
		ReferenceType: doc.Kind,
		Date:          doc.Date,
		Entries:       doc.Entries,
		StockLines:    doc.StockLines,
	})
}

// ReverseDocument handles a cancelled document: ledger reversal plus stock
// restore mirroring the original per-warehouse movements.
func (d *Dispatcher) ReverseDocument(ctx context.Context, kind ledger.ReferenceType, docID id.ID, reason string) (*posting.Result, error) {
	if !kind.IsValid() {
		return nil, apperror.NewValidation("unknown document kind").
			WithDetail("value", string(kind))
	}
	return d.engine.ReverseDocument(ctx, kind, docID, reason)
}

// ReconcileDocument handles an externally matched document.
func (d *Dispatcher) ReconcileDocument(ctx context.Context, kind ledger.ReferenceType, docID id.ID) (*ledger.Transaction, error) {
	if !kind.IsValid() {
		return nil, apperror.NewValidation("unknown document kind").
			WithDetail("value", string(kind))
	}
	return d.engine.ReconcileDocument(ctx, kind, docID)
}

// AllocateStock previews the warehouse split for the given demand without
// writing anything.
func (d *Dispatcher) AllocateStock(ctx context.Context, lines []posting.StockLine) ([]allocation.Plan, error) {
	return d.engine.AllocateStock(ctx, lines)
}

// RestoreStock compensates a document's outstanding movements without a
// ledger reversal.
func (d *Dispatcher) RestoreStock(ctx context.Context, docID id.ID) ([]entity.StockMovement, error) {
	return d.engine.RestoreStock(ctx, docID)
}
