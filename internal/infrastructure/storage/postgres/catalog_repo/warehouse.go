// Package catalog_repo provides PostgreSQL implementations for catalog
// repositories.
package catalog_repo

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
	"tally/internal/domain/catalogs/warehouse"
	"tally/internal/infrastructure/storage/postgres"
)

const (
	warehousesTable = "cat_warehouses"
	prioritiesTable = "cat_warehouse_priorities"
)

var warehouseColumns = []string{
	"id", "version", "created_at", "updated_at", "created_by", "updated_by",
	"company_id", "code", "name", "address", "is_main", "is_active",
}

// WarehouseRepo implements warehouse.Repository.
type WarehouseRepo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
}

var _ warehouse.Repository = (*WarehouseRepo)(nil)

// NewWarehouseRepo creates a new warehouse repository.
func NewWarehouseRepo(txManager *postgres.TxManager) *WarehouseRepo {
	return &WarehouseRepo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create inserts a warehouse.
func (r *WarehouseRepo) Create(ctx context.Context, w *warehouse.Warehouse) error {
	if w.CreatedBy == "" {
		w.CreatedBy = appctx.GetUserID(ctx)
		w.UpdatedBy = w.CreatedBy
	}

	q := r.builder.Insert(warehousesTable).
		Columns(warehouseColumns...).
		Values(
			w.ID, w.Version, w.CreatedAt, w.UpdatedAt, w.CreatedBy, w.UpdatedBy,
			w.CompanyID, w.Code, w.Name, w.Address, w.IsMain, w.IsActive,
		)
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert warehouse: %w", err)
	}
	return nil
}

// Update persists warehouse changes with an optimistic version check.
func (r *WarehouseRepo) Update(ctx context.Context, w *warehouse.Warehouse) error {
	q := r.builder.Update(warehousesTable).
		Set("version", w.Version).
		Set("updated_at", w.UpdatedAt).
		Set("updated_by", appctx.GetUserID(ctx)).
		Set("code", w.Code).
		Set("name", w.Name).
		Set("address", w.Address).
		Set("is_main", w.IsMain).
		Set("is_active", w.IsActive).
		Where(squirrel.Eq{
			"id":         w.ID,
			"company_id": appctx.GetCompanyID(ctx),
			"version":    w.Version - 1,
		})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	tag, err := querier.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update warehouse: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewConflict("warehouse was modified concurrently").
			WithDetail("id", w.ID)
	}
	return nil
}

// GetByID retrieves a warehouse.
func (r *WarehouseRepo) GetByID(ctx context.Context, whID id.ID) (*warehouse.Warehouse, error) {
	q := r.builder.
		Select(warehouseColumns...).
		From(warehousesTable).
		Where(squirrel.Eq{
			"id":         whID,
			"company_id": appctx.GetCompanyID(ctx),
		})

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var w warehouse.Warehouse
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &w, sql, args...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NewNotFound("warehouse", whID)
		}
		return nil, fmt.Errorf("get warehouse: %w", err)
	}
	return &w, nil
}

// List retrieves the company's warehouses ordered by code.
func (r *WarehouseRepo) List(ctx context.Context, activeOnly bool) ([]*warehouse.Warehouse, error) {
	q := r.builder.
		Select(warehouseColumns...).
		From(warehousesTable).
		Where(squirrel.Eq{"company_id": appctx.GetCompanyID(ctx)}).
		OrderBy("code")
	if activeOnly {
		q = q.Where(squirrel.Eq{"is_active": true})
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var warehouses []*warehouse.Warehouse
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &warehouses, sql, args...); err != nil {
		return nil, fmt.Errorf("list warehouses: %w", err)
	}
	return warehouses, nil
}

// GetMain returns the company's main warehouse.
func (r *WarehouseRepo) GetMain(ctx context.Context) (*warehouse.Warehouse, error) {
	q := r.builder.
		Select(warehouseColumns...).
		From(warehousesTable).
		Where(squirrel.Eq{
			"company_id": appctx.GetCompanyID(ctx),
			"is_main":    true,
		})

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var w warehouse.Warehouse
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &w, sql, args...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NewNotFound("warehouse", "main")
		}
		return nil, fmt.Errorf("get main warehouse: %w", err)
	}
	return &w, nil
}

// GetPriorityOrder returns the stored allocation order by position.
func (r *WarehouseRepo) GetPriorityOrder(ctx context.Context) (warehouse.PriorityOrder, error) {
	companyID := appctx.GetCompanyID(ctx)
	order := warehouse.PriorityOrder{CompanyID: companyID}

	q := r.builder.
		Select("warehouse_id").
		From(prioritiesTable).
		Where(squirrel.Eq{"company_id": companyID}).
		OrderBy("position")

	sql, args, err := q.ToSql()
	if err != nil {
		return order, fmt.Errorf("build query: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &order.WarehouseIDs, sql, args...); err != nil {
		return order, fmt.Errorf("get priority order: %w", err)
	}
	return order, nil
}

// ReplacePriorityOrder swaps the whole list: delete then insert. The service
// runs this inside a transaction, so a partial order is never observable.
func (r *WarehouseRepo) ReplacePriorityOrder(ctx context.Context, order warehouse.PriorityOrder) error {
	querier := r.txManager.GetQuerier(ctx)

	if _, err := querier.Exec(ctx,
		"DELETE FROM "+prioritiesTable+" WHERE company_id = $1", order.CompanyID); err != nil {
		return fmt.Errorf("clear priority order: %w", err)
	}

	q := r.builder.Insert(prioritiesTable).
		Columns("company_id", "position", "warehouse_id")
	for pos, whID := range order.WarehouseIDs {
		q = q.Values(order.CompanyID, pos, whID)
	}
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert priority order: %w", err)
	}
	return nil
}
