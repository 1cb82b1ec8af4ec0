// Package ledger_repo provides the PostgreSQL implementation of the ledger
// repository. All queries are company-scoped through the context.
package ledger_repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"tally/internal/core/apperror"
	appctx "tally/internal/core/context"
	"tally/internal/core/id"
	"tally/internal/domain/ledger"
	"tally/internal/infrastructure/storage/postgres"
)

const (
	transactionsTable = "acc_transactions"
	entriesTable      = "acc_entries"
)

var transactionColumns = []string{
	"id", "version", "created_at", "updated_at", "created_by", "updated_by",
	"company_id", "number", "date", "reference_type", "reference_id",
	"status", "is_reconciled", "reversed_by_id", "reversal_reason",
	"total_debit", "total_credit",
}

var entryColumns = []string{
	"id", "transaction_id", "line_no", "account_id",
	"account_code", "account_name", "debit", "credit",
}

// TransactionRepo implements ledger.Repository.
type TransactionRepo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
}

var _ ledger.Repository = (*TransactionRepo)(nil)

// NewTransactionRepo creates a new ledger transaction repository.
func NewTransactionRepo(txManager *postgres.TxManager) *TransactionRepo {
	return &TransactionRepo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create inserts a transaction with its entries.
func (r *TransactionRepo) Create(ctx context.Context, t *ledger.Transaction) error {
	querier := r.txManager.GetQuerier(ctx)

	if t.CreatedBy == "" {
		t.CreatedBy = appctx.GetUserID(ctx)
		t.UpdatedBy = t.CreatedBy
	}

	q := r.builder.Insert(transactionsTable).
		Columns(transactionColumns...).
		Values(
			t.ID, t.Version, t.CreatedAt, t.UpdatedAt, t.CreatedBy, t.UpdatedBy,
			t.CompanyID, t.Number, t.Date, t.ReferenceType, t.ReferenceID,
			t.Status, t.IsReconciled, t.ReversedByID, t.ReversalReason,
			t.TotalDebit, t.TotalCredit,
		)
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}

	return r.insertEntries(ctx, t.Entries)
}

func (r *TransactionRepo) insertEntries(ctx context.Context, entries []ledger.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	q := r.builder.Insert(entriesTable).Columns(entryColumns...)
	for _, e := range entries {
		q = q.Values(
			e.ID, e.TransactionID, e.LineNo, e.AccountID,
			e.AccountCode, e.AccountName, e.Debit, e.Credit,
		)
	}
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert entries: %w", err)
	}
	querier := r.txManager.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert entries: %w", err)
	}
	return nil
}

// GetByID retrieves a transaction with entries.
func (r *TransactionRepo) GetByID(ctx context.Context, txID id.ID) (*ledger.Transaction, error) {
	return r.get(ctx, txID, false)
}

// GetForUpdate retrieves a transaction with entries under a row lock.
func (r *TransactionRepo) GetForUpdate(ctx context.Context, txID id.ID) (*ledger.Transaction, error) {
	return r.get(ctx, txID, true)
}

func (r *TransactionRepo) get(ctx context.Context, txID id.ID, forUpdate bool) (*ledger.Transaction, error) {
	q := r.builder.
		Select(transactionColumns...).
		From(transactionsTable).
		Where(squirrel.Eq{
			"id":         txID,
			"company_id": appctx.GetCompanyID(ctx),
		})
	if forUpdate {
		q = q.Suffix("FOR UPDATE")
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var t ledger.Transaction
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &t, sql, args...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NewNotFound("transaction", txID)
		}
		return nil, fmt.Errorf("get transaction: %w", err)
	}

	if err := r.loadEntries(ctx, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *TransactionRepo) loadEntries(ctx context.Context, t *ledger.Transaction) error {
	q := r.builder.
		Select(entryColumns...).
		From(entriesTable).
		Where(squirrel.Eq{"transaction_id": t.ID}).
		OrderBy("line_no")

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build entries query: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &t.Entries, sql, args...); err != nil {
		return fmt.Errorf("get entries: %w", err)
	}
	return nil
}

// UpdateState persists status, totals, reconciliation and reversal linkage
// with an optimistic version check. Entries are never touched here.
func (r *TransactionRepo) UpdateState(ctx context.Context, t *ledger.Transaction) error {
	q := r.builder.Update(transactionsTable).
		Set("version", t.Version).
		Set("updated_at", t.UpdatedAt).
		Set("updated_by", appctx.GetUserID(ctx)).
		Set("status", t.Status).
		Set("is_reconciled", t.IsReconciled).
		Set("reversed_by_id", t.ReversedByID).
		Set("reversal_reason", t.ReversalReason).
		Set("total_debit", t.TotalDebit).
		Set("total_credit", t.TotalCredit).
		Where(squirrel.Eq{
			"id":         t.ID,
			"company_id": appctx.GetCompanyID(ctx),
			"version":    t.Version - 1,
		})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	tag, err := querier.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewConflict("transaction was modified concurrently").
			WithDetail("id", t.ID)
	}
	return nil
}

// DeleteDraft removes a draft transaction and its entries. The status guard
// lives in the query itself: a row that already left the draft stage is not
// deleted.
func (r *TransactionRepo) DeleteDraft(ctx context.Context, txID id.ID) error {
	querier := r.txManager.GetQuerier(ctx)

	if _, err := querier.Exec(ctx,
		"DELETE FROM "+entriesTable+" WHERE transaction_id = $1", txID); err != nil {
		return fmt.Errorf("delete entries: %w", err)
	}

	tag, err := querier.Exec(ctx,
		"DELETE FROM "+transactionsTable+" WHERE id = $1 AND company_id = $2 AND status = $3",
		txID, appctx.GetCompanyID(ctx), ledger.StatusDraft)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewInvalidState("delete", "not draft")
	}
	return nil
}

// GetActiveByReference returns the posted, unreversed transaction for a
// document reference.
func (r *TransactionRepo) GetActiveByReference(ctx context.Context, refType ledger.ReferenceType, refID string) (*ledger.Transaction, error) {
	q := r.builder.
		Select(transactionColumns...).
		From(transactionsTable).
		Where(squirrel.Eq{
			"company_id":     appctx.GetCompanyID(ctx),
			"reference_type": refType,
			"reference_id":   refID,
			"status":         ledger.StatusPosted,
		}).
		Where("reversed_by_id IS NULL")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var t ledger.Transaction
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &t, sql, args...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NewNotFound("transaction", refID)
		}
		return nil, fmt.Errorf("get active transaction: %w", err)
	}

	if err := r.loadEntries(ctx, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// List retrieves transactions with filtering and pagination. Entries are not
// loaded for list views.
func (r *TransactionRepo) List(ctx context.Context, filter ledger.ListFilter) (ledger.ListResult, error) {
	result := ledger.ListResult{
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}

	base := r.builder.
		Select().
		From(transactionsTable).
		Where(squirrel.Eq{"company_id": appctx.GetCompanyID(ctx)})

	if filter.ReferenceType != nil {
		base = base.Where(squirrel.Eq{"reference_type": *filter.ReferenceType})
	}
	if filter.ReferenceID != nil {
		base = base.Where(squirrel.Eq{"reference_id": *filter.ReferenceID})
	}
	if filter.Status != nil {
		base = base.Where(squirrel.Eq{"status": *filter.Status})
	}
	if filter.Reconciled != nil {
		base = base.Where(squirrel.Eq{"is_reconciled": *filter.Reconciled})
	}
	if filter.DateFrom != nil {
		base = base.Where(squirrel.GtOrEq{"date": *filter.DateFrom})
	}
	if filter.DateTo != nil {
		base = base.Where(squirrel.LtOrEq{"date": *filter.DateTo})
	}
	if filter.Search != "" {
		base = base.Where(squirrel.ILike{"number": "%" + filter.Search + "%"})
	}

	querier := r.txManager.GetQuerier(ctx)

	countSQL, countArgs, err := base.Column("COUNT(*)").ToSql()
	if err != nil {
		return result, fmt.Errorf("build count: %w", err)
	}
	if err := querier.QueryRow(ctx, countSQL, countArgs...).Scan(&result.TotalCount); err != nil {
		return result, fmt.Errorf("count transactions: %w", err)
	}

	orderBy := filter.OrderBy
	if orderBy == "" {
		orderBy = "date DESC, number DESC"
	}
	q := base.Columns(transactionColumns...).OrderBy(orderBy)
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return result, fmt.Errorf("build list: %w", err)
	}
	if err := pgxscan.Select(ctx, querier, &result.Items, sql, args...); err != nil {
		return result, fmt.Errorf("list transactions: %w", err)
	}
	return result, nil
}
