package ledger

import (
	"context"
	"time"

	"tally/internal/core/id"
)

// ListFilter contains filtering options for transaction lists.
type ListFilter struct {
	ReferenceType *ReferenceType
	ReferenceID   *string
	Status        *Status
	Reconciled    *bool
	DateFrom      *time.Time
	DateTo        *time.Time
	Search        string

	OrderBy string
	Limit   int
	Offset  int
}

// ListResult contains paginated results.
type ListResult struct {
	Items      []*Transaction `json:"items"`
	TotalCount int64          `json:"totalCount"`
	Limit      int            `json:"limit"`
	Offset     int            `json:"offset"`
}

// Repository persists transactions and their entries.
// All reads and writes are scoped to the company carried in the context.
type Repository interface {
	// Create inserts a transaction with its entries.
	Create(ctx context.Context, t *Transaction) error

	// GetByID retrieves a transaction with entries.
	GetByID(ctx context.Context, txID id.ID) (*Transaction, error)

	// GetForUpdate retrieves a transaction with entries under a row lock.
	// Concurrent post/reverse/reconcile on one transaction serialize here.
	GetForUpdate(ctx context.Context, txID id.ID) (*Transaction, error)

	// UpdateState persists status, totals, reconciliation and reversal
	// linkage. Entries are never touched after the draft stage.
	UpdateState(ctx context.Context, t *Transaction) error

	// DeleteDraft removes a draft transaction and its entries.
	// Must fail if the row is no longer a draft.
	DeleteDraft(ctx context.Context, txID id.ID) error

	// GetActiveByReference returns the transaction currently in effect for a
	// document: status=posted, not reversed. At most one such row exists per
	// (reference_type, reference_id).
	GetActiveByReference(ctx context.Context, refType ReferenceType, refID string) (*Transaction, error)

	// List retrieves transactions with filtering and pagination.
	List(ctx context.Context, filter ListFilter) (ListResult, error)
}
