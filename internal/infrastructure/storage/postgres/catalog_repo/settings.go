package catalog_repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	appctx "tally/internal/core/context"
	"tally/internal/domain/documents"
	"tally/internal/infrastructure/storage/postgres"
)

const settingsTable = "sys_company_settings"

// SettingsRepo implements documents.SettingsRepository on a one-row-per-
// company settings table.
type SettingsRepo struct {
	txManager *postgres.TxManager
}

var _ documents.SettingsRepository = (*SettingsRepo)(nil)

// NewSettingsRepo creates a settings repository.
func NewSettingsRepo(txManager *postgres.TxManager) *SettingsRepo {
	return &SettingsRepo{txManager: txManager}
}

// AutoReduceStock reads the flag for the company in context. Companies
// without a settings row default to automatic reduction.
func (r *SettingsRepo) AutoReduceStock(ctx context.Context) (bool, error) {
	querier := r.txManager.GetQuerier(ctx)

	var enabled bool
	err := querier.QueryRow(ctx,
		"SELECT auto_reduce_stock FROM "+settingsTable+" WHERE company_id = $1",
		appctx.GetCompanyID(ctx),
	).Scan(&enabled)
	if errors.Is(err, pgx.ErrNoRows) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("get auto_reduce_stock: %w", err)
	}
	return enabled, nil
}

// SetAutoReduceStock upserts the flag for the company in context.
func (r *SettingsRepo) SetAutoReduceStock(ctx context.Context, enabled bool) error {
	querier := r.txManager.GetQuerier(ctx)
	_, err := querier.Exec(ctx, `
		INSERT INTO `+settingsTable+` (company_id, auto_reduce_stock)
		VALUES ($1, $2)
		ON CONFLICT (company_id) DO UPDATE SET auto_reduce_stock = $2`,
		appctx.GetCompanyID(ctx), enabled,
	)
	if err != nil {
		return fmt.Errorf("set auto_reduce_stock: %w", err)
	}
	return nil
}
