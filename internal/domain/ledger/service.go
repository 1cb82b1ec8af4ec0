package ledger

import (
	"context"
	"fmt"
	"time"

	"tally/internal/core/apperror"
	appctx "tally/internal/core/context"
	"tally/internal/core/entity"
	"tally/internal/core/id"
	"tally/internal/core/tx"
	"tally/pkg/logger"
)

// NumberPrefix is the sequence prefix for ledger transactions.
const NumberPrefix = "TXN"

// NumberSource generates sequential, per-company document numbers.
// Implemented by pkg/sequence; numbers are allocated transactionally
// alongside the insert, never from an in-memory counter.
type NumberSource interface {
	Next(ctx context.Context, prefix string, period time.Time) (string, error)
}

// Service provides the ledger store operations: createDraft, post, reverse,
// reconcile. Mutating operations run under the transaction manager and take a
// row lock on the target transaction, so two concurrent posts of the same
// transaction resolve to exactly one success and one typed failure.
type Service struct {
	repo    Repository
	numbers NumberSource
	txm     tx.Manager
}

// NewService creates a new ledger service.
func NewService(repo Repository, numbers NumberSource, txm tx.Manager) *Service {
	return &Service{
		repo:    repo,
		numbers: numbers,
		txm:     txm,
	}
}

// CreateDraft validates and stores a new draft transaction. Entries must be
// one-sided (exactly one of debit/credit non-zero) but the draft does not
// need to balance yet.
func (s *Service) CreateDraft(ctx context.Context, in DraftInput) (*Transaction, error) {
	companyID := appctx.GetCompanyID(ctx)
	if companyID == "" {
		return nil, apperror.NewUnauthorized("company scope required")
	}

	t := NewTransaction(companyID, in)
	if err := t.Validate(ctx); err != nil {
		return nil, err
	}

	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		number, err := s.numbers.Next(ctx, NumberPrefix, t.Date)
		if err != nil {
			return fmt.Errorf("generate number: %w", err)
		}
		t.Number = number

		if err := s.repo.Create(ctx, t); err != nil {
			return fmt.Errorf("create transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "transaction draft created", "id", t.ID, "number", t.Number)
	return t, nil
}

// Post flips a draft to posted. Fails with INVALID_STATE for non-drafts and
// IMBALANCED_ENTRIES when debits and credits disagree. Totals are recomputed
// from the entry set; stored or client-supplied totals are never trusted.
func (s *Service) Post(ctx context.Context, txID id.ID) (*Transaction, error) {
	var posted *Transaction
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		t, err := s.repo.GetForUpdate(ctx, txID)
		if err != nil {
			return err
		}

		if t.Status != StatusDraft {
			return apperror.NewInvalidState("post", string(t.Status))
		}

		for _, e := range t.Entries {
			if err := e.Validate(); err != nil {
				return err
			}
		}

		debit, credit := t.EntryTotals()
		if !debit.Equal(credit) {
			return apperror.NewImbalancedEntries(debit.String(), credit.String())
		}

		t.TotalDebit = debit
		t.TotalCredit = credit
		t.Status = StatusPosted
		t.Touch()

		if err := s.repo.UpdateState(ctx, t); err != nil {
			return fmt.Errorf("update transaction: %w", err)
		}
		posted = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "transaction posted",
		"id", posted.ID,
		"number", posted.Number,
		"total", posted.TotalDebit,
	)
	return posted, nil
}

// Reverse creates and posts an offsetting transaction whose entries mirror
// the original with debit/credit swapped, links it via reversed_by_id, and
// marks the original reversed. The original's entries are never edited; the
// audit trail stays append-only. At most one reversal per transaction.
func (s *Service) Reverse(ctx context.Context, txID id.ID, reason string) (*Transaction, error) {
	var reversal *Transaction
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		t, err := s.repo.GetForUpdate(ctx, txID)
		if err != nil {
			return err
		}

		if t.ReversedByID != nil || t.Status == StatusReversed {
			var by any
			if t.ReversedByID != nil {
				by = *t.ReversedByID
			}
			return apperror.NewAlreadyReversed(t.ID, by)
		}
		if t.Status != StatusPosted {
			return apperror.NewInvalidState("reverse", string(t.Status))
		}

		rev := &Transaction{
			CompanyID:     t.CompanyID,
			Date:          time.Now().UTC(),
			ReferenceType: t.ReferenceType,
			ReferenceID:   t.ID.String(),
			Status:        StatusPosted,
			TotalDebit:    t.TotalCredit,
			TotalCredit:   t.TotalDebit,
		}
		rev.BaseRecord = entity.NewBaseRecord()
		rev.Entries = t.MirrorEntries(rev.ID)

		number, err := s.numbers.Next(ctx, NumberPrefix, rev.Date)
		if err != nil {
			return fmt.Errorf("generate number: %w", err)
		}
		rev.Number = number

		if err := s.repo.Create(ctx, rev); err != nil {
			return fmt.Errorf("create reversal: %w", err)
		}

		t.Status = StatusReversed
		t.ReversedByID = &rev.ID
		t.ReversalReason = reason
		t.Touch()
		if err := s.repo.UpdateState(ctx, t); err != nil {
			return fmt.Errorf("link reversal: %w", err)
		}

		reversal = rev
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "transaction reversed",
		"id", txID,
		"reversal_id", reversal.ID,
		"reversal_number", reversal.Number,
	)
	return reversal, nil
}

// Reconcile marks a posted transaction as matched against an external record.
// Idempotent: reconciling twice succeeds and keeps is_reconciled true. The
// flag is monotonic; there is no un-reconcile operation.
func (s *Service) Reconcile(ctx context.Context, txID id.ID) (*Transaction, error) {
	var reconciled *Transaction
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		t, err := s.repo.GetForUpdate(ctx, txID)
		if err != nil {
			return err
		}

		if t.Status != StatusPosted {
			return apperror.NewInvalidState("reconcile", string(t.Status))
		}
		if t.IsReconciled {
			reconciled = t
			return nil
		}

		t.IsReconciled = true
		t.Touch()
		if err := s.repo.UpdateState(ctx, t); err != nil {
			return fmt.Errorf("update transaction: %w", err)
		}
		reconciled = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reconciled, nil
}

// DeleteDraft removes a transaction that never left the draft stage.
func (s *Service) DeleteDraft(ctx context.Context, txID id.ID) error {
	return s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		t, err := s.repo.GetForUpdate(ctx, txID)
		if err != nil {
			return err
		}
		if t.Status != StatusDraft {
			return apperror.NewInvalidState("delete", string(t.Status))
		}
		return s.repo.DeleteDraft(ctx, txID)
	})
}

// GetByID retrieves a transaction with entries.
func (s *Service) GetByID(ctx context.Context, txID id.ID) (*Transaction, error) {
	return s.repo.GetByID(ctx, txID)
}

// GetActiveByReference returns the transaction currently in effect for a
// document, or NOT_FOUND when none is posted and unreversed.
func (s *Service) GetActiveByReference(ctx context.Context, refType ReferenceType, refID string) (*Transaction, error) {
	return s.repo.GetActiveByReference(ctx, refType, refID)
}

// List retrieves transactions with filtering.
func (s *Service) List(ctx context.Context, filter ListFilter) (ListResult, error) {
	return s.repo.List(ctx, filter)
}
