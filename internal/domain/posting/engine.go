// Package posting coordinates document postings across the ledger and the
// stock register. One engine call is one atomic unit: the ledger posting and
// every stock movement it implies commit together or not at all.
package posting

import (
	"context"
	"time"

	"tally/internal/core/apperror"
	appctx "tally/internal/core/context"
	"tally/internal/core/entity"
	"tally/internal/core/id"
	"tally/internal/core/tx"
	"tally/internal/core/types"
	"tally/internal/domain/allocation"
	"tally/internal/domain/ledger"
	"tally/pkg/logger"
)

// LedgerStore is the slice of the ledger service the engine drives.
type LedgerStore interface {
	CreateDraft(ctx context.Context, in ledger.DraftInput) (*ledger.Transaction, error)
	Post(ctx context.Context, txID id.ID) (*ledger.Transaction, error)
	Reverse(ctx context.Context, txID id.ID, reason string) (*ledger.Transaction, error)
	Reconcile(ctx context.Context, txID id.ID) (*ledger.Transaction, error)
	GetActiveByReference(ctx context.Context, refType ledger.ReferenceType, refID string) (*ledger.Transaction, error)
}

// StockStore is the slice of the stock register service the engine drives.
type StockStore interface {
	LockItem(ctx context.Context, itemID id.ID) error
	RecordMovements(ctx context.Context, movements []entity.StockMovement) error
	BalancesForItem(ctx context.Context, itemID id.ID, warehouseIDs []id.ID) (map[id.ID]types.Quantity, error)
	MovementsByDocument(ctx context.Context, documentID id.ID) ([]entity.StockMovement, error)
}

// OrderResolver supplies the warehouse visit order for allocation.
type OrderResolver interface {
	ResolveOrder(ctx context.Context) ([]id.ID, error)
}

// Settings supplies the per-company posting configuration.
type Settings interface {
	AutoReduceStock(ctx context.Context) (bool, error)
}

// AuditRecord is the snapshot of one engine commit, kept append-only.
type AuditRecord struct {
	DocumentID    id.ID                  `json:"documentId"`
	Action        string                 `json:"action"`
	TransactionID id.ID                  `json:"transactionId,omitempty"`
	Entries       []ledger.Entry         `json:"entries,omitempty"`
	Movements     []entity.StockMovement `json:"movements,omitempty"`
	RecordedAt    time.Time              `json:"recordedAt"`
}

// AuditRecorder persists posting snapshots for later reconstruction.
type AuditRecorder interface {
	RecordPosting(ctx context.Context, rec AuditRecord) error
}

// StockLine is one inventory demand of a document being posted.
type StockLine struct {
	ItemID   id.ID          `json:"itemId"`
	Quantity types.Quantity `json:"quantity"`
}

// PostRequest describes a document transition that needs a posting.
type PostRequest struct {
	DocumentID    id.ID
	ReferenceType ledger.ReferenceType
	Date          time.Time
	Entries       []ledger.EntryInput
	StockLines    []StockLine
}

// Result is the committed outcome of a posting.
type Result struct {
	Transaction *ledger.Transaction    `json:"transaction"`
	Movements   []entity.StockMovement `json:"movements,omitempty"`
}

// Engine turns document transitions into atomic ledger + stock commits.
//
// The ledger and stock services run their own transactional sections; the
// engine opens the outer transaction and they join it through the context,
// so a failure anywhere rolls back the whole unit.
type Engine struct {
	ledger   LedgerStore
	stock    StockStore
	order    OrderResolver
	settings Settings
	audit    AuditRecorder
	txm      tx.Manager
}

// NewEngine creates a posting engine.
func NewEngine(l LedgerStore, s StockStore, order OrderResolver, settings Settings, audit AuditRecorder, txm tx.Manager) *Engine {
	return &Engine{
		ledger:   l,
		stock:    s,
		order:    order,
		settings: settings,
		audit:    audit,
		txm:      txm,
	}
}

// PostDocument posts the document's ledger transaction and, when the document
// kind moves inventory and auto_reduce_stock is enabled, plans and records the
// implied stock movements. One database transaction covers all of it.
func (e *Engine) PostDocument(ctx context.Context, req PostRequest) (*Result, error) {
	if id.IsNil(req.DocumentID) {
		return nil, apperror.NewValidation("document id is required")
	}

	moveStock := false
	if req.ReferenceType.MovesInventory() && len(req.StockLines) > 0 {
		auto, err := e.settings.AutoReduceStock(ctx)
		if err != nil {
			return nil, err
		}
		moveStock = auto
	}

	var result Result
	err := e.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		refID := req.DocumentID.String()

		existing, err := e.ledger.GetActiveByReference(ctx, req.ReferenceType, refID)
		if err != nil && !apperror.IsNotFound(err) {
			return err
		}
		if existing != nil {
			return apperror.NewConflict("document already has an active posting").
				WithDetail("transactionId", existing.ID)
		}

		draft, err := e.ledger.CreateDraft(ctx, ledger.DraftInput{
			Date:          req.Date,
			ReferenceType: req.ReferenceType,
			ReferenceID:   refID,
			Entries:       req.Entries,
		})
		if err != nil {
			return err
		}

		posted, err := e.ledger.Post(ctx, draft.ID)
		if err != nil {
			return err
		}
		result.Transaction = posted

		if moveStock {
			movements, err := e.planMovements(ctx, req)
			if err != nil {
				return err
			}
			if err := e.stock.RecordMovements(ctx, movements); err != nil {
				return err
			}
			result.Movements = movements
		}

		return e.audit.RecordPosting(ctx, AuditRecord{
			DocumentID:    req.DocumentID,
			Action:        "post",
			TransactionID: posted.ID,
			Entries:       posted.Entries,
			Movements:     result.Movements,
			RecordedAt:    time.Now().UTC(),
		})
	})
	if err != nil {
		logger.Warn(ctx, "document posting failed",
			"document_id", req.DocumentID,
			"reference_type", req.ReferenceType,
			"error", err,
		)
		return nil, err
	}

	logger.Info(ctx, "document posted",
		"document_id", req.DocumentID,
		"transaction_id", result.Transaction.ID,
		"movements", len(result.Movements),
	)
	return &result, nil
}

// planMovements allocates each stock line across warehouses and converts the
// plans into reduce movements (negative deltas). Each item is locked for the
// rest of the posting transaction before its balances are read: two
// concurrent postings of the same item serialize, so they never allocate
// against the same balance snapshot and drive a non-last warehouse negative.
func (e *Engine) planMovements(ctx context.Context, req PostRequest) ([]entity.StockMovement, error) {
	order, err := e.order.ResolveOrder(ctx)
	if err != nil {
		return nil, err
	}
	companyID := appctx.GetCompanyID(ctx)

	var movements []entity.StockMovement
	for _, line := range req.StockLines {
		if err := e.stock.LockItem(ctx, line.ItemID); err != nil {
			return nil, err
		}
		balances, err := e.stock.BalancesForItem(ctx, line.ItemID, order)
		if err != nil {
			return nil, err
		}
		plan, err := allocation.Split(line.Quantity, order, func(wh id.ID) types.Quantity {
			return balances[wh]
		})
		if err != nil {
			return nil, err
		}
		for _, pl := range plan.Lines {
			movements = append(movements, entity.NewStockMovement(
				companyID, line.ItemID, pl.WarehouseID,
				pl.Quantity.Neg(), req.DocumentID, entity.StockEventReduce,
			))
		}
	}
	return movements, nil
}

// AllocateStock previews how the given lines would be split across warehouses
// using current balances. Pure read; nothing is written.
func (e *Engine) AllocateStock(ctx context.Context, lines []StockLine) ([]allocation.Plan, error) {
	order, err := e.order.ResolveOrder(ctx)
	if err != nil {
		return nil, err
	}

	plans := make([]allocation.Plan, 0, len(lines))
	for _, line := range lines {
		balances, err := e.stock.BalancesForItem(ctx, line.ItemID, order)
		if err != nil {
			return nil, err
		}
		plan, err := allocation.Split(line.Quantity, order, func(wh id.ID) types.Quantity {
			return balances[wh]
		})
		if err != nil {
			return nil, err
		}
		plans = append(plans, plan)
	}
	return plans, nil
}

// ReverseDocument reverses the document's active ledger transaction and
// restores its stock, mirroring the exact per-warehouse path the original
// movements took. One atomic unit.
func (e *Engine) ReverseDocument(ctx context.Context, refType ledger.ReferenceType, documentID id.ID, reason string) (*Result, error) {
	var result Result
	err := e.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		active, err := e.ledger.GetActiveByReference(ctx, refType, documentID.String())
		if err != nil {
			return err
		}

		rev, err := e.ledger.Reverse(ctx, active.ID, reason)
		if err != nil {
			return err
		}
		result.Transaction = rev

		restores, err := e.restoreMovements(ctx, documentID)
		if err != nil {
			return err
		}
		if len(restores) > 0 {
			if err := e.stock.RecordMovements(ctx, restores); err != nil {
				return err
			}
			result.Movements = restores
		}

		return e.audit.RecordPosting(ctx, AuditRecord{
			DocumentID:    documentID,
			Action:        "reverse",
			TransactionID: rev.ID,
			Entries:       rev.Entries,
			Movements:     restores,
			RecordedAt:    time.Now().UTC(),
		})
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "document reversed",
		"document_id", documentID,
		"reversal_id", result.Transaction.ID,
		"restores", len(result.Movements),
	)
	return &result, nil
}

// RestoreStock compensates a document's outstanding stock movements without
// touching the ledger. Idempotent: a second call finds a zero net and writes
// nothing.
func (e *Engine) RestoreStock(ctx context.Context, documentID id.ID) ([]entity.StockMovement, error) {
	var restores []entity.StockMovement
	err := e.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		restores, err = e.restoreMovements(ctx, documentID)
		if err != nil {
			return err
		}
		if len(restores) == 0 {
			return nil
		}
		if err := e.stock.RecordMovements(ctx, restores); err != nil {
			return err
		}
		return e.audit.RecordPosting(ctx, AuditRecord{
			DocumentID: documentID,
			Action:     "restore",
			Movements:  restores,
			RecordedAt: time.Now().UTC(),
		})
	})
	if err != nil {
		return nil, err
	}
	return restores, nil
}

// restoreMovements computes the compensating restore set for a document:
// the negated net delta per (item, warehouse), preserving first-seen order.
// Mirroring nets rather than raw rows keeps restore idempotent when earlier
// restores already compensated part of the path. Every item touched by the
// document is locked before its net is computed, so two concurrent restores
// of the same document serialize and the loser sees the zero net.
func (e *Engine) restoreMovements(ctx context.Context, documentID id.ID) ([]entity.StockMovement, error) {
	recorded, err := e.stock.MovementsByDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}

	locked := make(map[id.ID]bool)
	for _, m := range recorded {
		if locked[m.ItemID] {
			continue
		}
		if err := e.stock.LockItem(ctx, m.ItemID); err != nil {
			return nil, err
		}
		locked[m.ItemID] = true
	}
	if len(locked) > 0 {
		// Rows appended by a posting that committed while we waited on the
		// locks must be part of the net.
		recorded, err = e.stock.MovementsByDocument(ctx, documentID)
		if err != nil {
			return nil, err
		}
	}

	type dim struct {
		item      id.ID
		warehouse id.ID
	}
	nets := make(map[dim]types.Quantity)
	var seen []dim
	for _, m := range recorded {
		d := dim{item: m.ItemID, warehouse: m.WarehouseID}
		if _, ok := nets[d]; !ok {
			seen = append(seen, d)
		}
		nets[d] += m.QuantityDelta
	}

	companyID := appctx.GetCompanyID(ctx)
	var restores []entity.StockMovement
	for _, d := range seen {
		net := nets[d]
		if net.IsZero() {
			continue
		}
		restores = append(restores, entity.NewStockMovement(
			companyID, d.item, d.warehouse, net.Neg(), documentID, entity.StockEventRestore,
		))
	}
	return restores, nil
}

// ReconcileDocument reconciles the document's active ledger transaction.
func (e *Engine) ReconcileDocument(ctx context.Context, refType ledger.ReferenceType, documentID id.ID) (*ledger.Transaction, error) {
	var reconciled *ledger.Transaction
	err := e.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		active, err := e.ledger.GetActiveByReference(ctx, refType, documentID.String())
		if err != nil {
			return err
		}
		reconciled, err = e.ledger.Reconcile(ctx, active.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return reconciled, nil
}
