// Package register_repo provides PostgreSQL implementations for register
// repositories.
package register_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	appctx "tally/internal/core/context"
	"tally/internal/core/entity"
	"tally/internal/core/id"
	"tally/internal/core/types"
	"tally/internal/domain/registers/stock"
	"tally/internal/infrastructure/storage/postgres"
)

const stockMovementsTable = "reg_stock_movements"

var movementColumns = []string{
	"line_id", "company_id", "item_id", "warehouse_id",
	"quantity_delta", "document_id", "event", "created_at",
}

// StockRepo implements stock.Repository. The table is append-only: no
// update or delete statements exist here, balances are always sums.
type StockRepo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
}

var _ stock.Repository = (*StockRepo)(nil)

// NewStockRepo creates a new stock register repository.
func NewStockRepo(txManager *postgres.TxManager) *StockRepo {
	return &StockRepo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// LockItem takes a transaction-scoped advisory lock on (company, item).
// The lock is released at commit or rollback, so it covers the whole
// read-balances-then-append window of the caller's transaction. Outside a
// transaction an advisory xact lock would release immediately, which would
// silently serialize nothing, so that is an error.
func (r *StockRepo) LockItem(ctx context.Context, itemID id.ID) error {
	tx := r.txManager.GetTx(ctx)
	if tx == nil {
		return fmt.Errorf("lock item: no transaction in context")
	}

	key := appctx.GetCompanyID(ctx) + ":" + itemID.String()
	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtextextended($1, 0))", key); err != nil {
		return fmt.Errorf("lock item %s: %w", itemID, err)
	}
	return nil
}

// CreateMovements batch inserts movements. Inside a transaction the COPY
// protocol is used; outside, a multi-row INSERT.
func (r *StockRepo) CreateMovements(ctx context.Context, movements []entity.StockMovement) error {
	if len(movements) == 0 {
		return nil
	}

	if tx := r.txManager.GetTx(ctx); tx != nil {
		inserter := postgres.NewBatchInserter(r.txManager)
		rows := make([][]any, 0, len(movements))
		for _, m := range movements {
			rows = append(rows, []any{
				m.LineID, m.CompanyID, m.ItemID, m.WarehouseID,
				m.QuantityDelta, m.DocumentID, m.Event, m.CreatedAt,
			})
		}
		if _, err := inserter.CopyFromSlice(ctx, stockMovementsTable, movementColumns, rows); err != nil {
			return fmt.Errorf("copy movements: %w", err)
		}
		return nil
	}

	q := r.builder.Insert(stockMovementsTable).Columns(movementColumns...)
	for _, m := range movements {
		q = q.Values(
			m.LineID, m.CompanyID, m.ItemID, m.WarehouseID,
			m.QuantityDelta, m.DocumentID, m.Event, m.CreatedAt,
		)
	}
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert movements: %w", err)
	}
	return nil
}

// MovementsByDocument retrieves a document's movements in insertion order.
func (r *StockRepo) MovementsByDocument(ctx context.Context, documentID id.ID) ([]entity.StockMovement, error) {
	q := r.builder.
		Select(movementColumns...).
		From(stockMovementsTable).
		Where(squirrel.Eq{
			"company_id":  appctx.GetCompanyID(ctx),
			"document_id": documentID,
		}).
		OrderBy("created_at", "line_id")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var movements []entity.StockMovement
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &movements, sql, args...); err != nil {
		return nil, fmt.Errorf("get movements: %w", err)
	}
	return movements, nil
}

// Balance returns SUM(quantity_delta) for one (item, warehouse) pair.
func (r *StockRepo) Balance(ctx context.Context, itemID, warehouseID id.ID) (types.Quantity, error) {
	q := r.builder.
		Select("COALESCE(SUM(quantity_delta), 0)").
		From(stockMovementsTable).
		Where(squirrel.Eq{
			"company_id":   appctx.GetCompanyID(ctx),
			"item_id":      itemID,
			"warehouse_id": warehouseID,
		})

	sql, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}

	var balance int64
	querier := r.txManager.GetQuerier(ctx)
	if err := querier.QueryRow(ctx, sql, args...).Scan(&balance); err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return types.NewQuantityFromInt64Scaled(balance), nil
}

// BalancesForItem returns sums grouped by warehouse for one item.
// Warehouses without movements report zero.
func (r *StockRepo) BalancesForItem(ctx context.Context, itemID id.ID, warehouseIDs []id.ID) (map[id.ID]types.Quantity, error) {
	balances := make(map[id.ID]types.Quantity, len(warehouseIDs))
	for _, wh := range warehouseIDs {
		balances[wh] = 0
	}
	if len(warehouseIDs) == 0 {
		return balances, nil
	}

	q := r.builder.
		Select("warehouse_id", "COALESCE(SUM(quantity_delta), 0) AS balance").
		From(stockMovementsTable).
		Where(squirrel.Eq{
			"company_id":   appctx.GetCompanyID(ctx),
			"item_id":      itemID,
			"warehouse_id": warehouseIDs,
		}).
		GroupBy("warehouse_id")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []struct {
		WarehouseID id.ID `db:"warehouse_id"`
		Balance     int64 `db:"balance"`
	}
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("get balances: %w", err)
	}

	for _, row := range rows {
		balances[row.WarehouseID] = types.NewQuantityFromInt64Scaled(row.Balance)
	}
	return balances, nil
}

// MovementHistory returns an item's movements, newest first.
func (r *StockRepo) MovementHistory(ctx context.Context, itemID id.ID, filter stock.MovementFilter) ([]entity.StockMovement, error) {
	q := r.builder.
		Select(movementColumns...).
		From(stockMovementsTable).
		Where(squirrel.Eq{
			"company_id": appctx.GetCompanyID(ctx),
			"item_id":    itemID,
		}).
		OrderBy("created_at DESC", "line_id DESC")

	if filter.WarehouseID != nil {
		q = q.Where(squirrel.Eq{"warehouse_id": *filter.WarehouseID})
	}
	if filter.Event != nil {
		q = q.Where(squirrel.Eq{"event": *filter.Event})
	}
	if filter.FromDate != nil {
		q = q.Where(squirrel.GtOrEq{"created_at": *filter.FromDate})
	}
	if filter.ToDate != nil {
		q = q.Where(squirrel.LtOrEq{"created_at": *filter.ToDate})
	}
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var movements []entity.StockMovement
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &movements, sql, args...); err != nil {
		return nil, fmt.Errorf("get movement history: %w", err)
	}
	return movements, nil
}
