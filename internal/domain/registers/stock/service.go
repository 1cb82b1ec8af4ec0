// Package stock provides the stock movement register service.
//
// The register is append-only and never rejects a movement for insufficient
// balance: negative balances are allowed by design. Balances are running sums
// over movements, used for allocation planning only, never as a gate.
package stock

import (
	"context"
	"fmt"

	"tally/internal/core/apperror"
	"tally/internal/core/entity"
	"tally/internal/core/id"
	"tally/internal/core/types"
	"tally/pkg/logger"
)

// Service provides business operations for the stock register.
// Transactions are managed by the caller (the posting engine).
type Service struct {
	repo Repository
}

// NewService creates a new stock register service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// LockItem takes the per-(company, item) lock for the rest of the current
// transaction. The posting engine holds it across its read-balances-then-
// append window so concurrent allocations of the same item serialize.
func (s *Service) LockItem(ctx context.Context, itemID id.ID) error {
	return s.repo.LockItem(ctx, itemID)
}

// RecordMovements appends movements caused by a document event.
// Called during document posting within a transaction.
func (s *Service) RecordMovements(ctx context.Context, movements []entity.StockMovement) error {
	if len(movements) == 0 {
		return nil
	}

	for i, m := range movements {
		if m.QuantityDelta.IsZero() {
			return apperror.NewValidation(fmt.Sprintf("movement %d: quantity delta must be non-zero", i))
		}
		if !m.Event.IsValid() {
			return apperror.NewValidation(fmt.Sprintf("movement %d: unknown event %q", i, m.Event))
		}
		if id.IsNil(m.DocumentID) {
			return apperror.NewValidation(fmt.Sprintf("movement %d: document_id is required", i))
		}
	}

	if err := s.repo.CreateMovements(ctx, movements); err != nil {
		return fmt.Errorf("create movements: %w", err)
	}

	logger.Info(ctx, "recorded stock movements",
		"count", len(movements),
		"document_id", movements[0].DocumentID,
		"event", movements[0].Event,
	)
	return nil
}

// Balance returns the current balance for one (item, warehouse) pair.
func (s *Service) Balance(ctx context.Context, itemID, warehouseID id.ID) (types.Quantity, error) {
	return s.repo.Balance(ctx, itemID, warehouseID)
}

// BalancesForItem returns balances for an item across the given warehouses,
// in one query. Used by the allocation planner for its balance snapshot.
func (s *Service) BalancesForItem(ctx context.Context, itemID id.ID, warehouseIDs []id.ID) (map[id.ID]types.Quantity, error) {
	return s.repo.BalancesForItem(ctx, itemID, warehouseIDs)
}

// MovementsByDocument lists the movements a document caused, for restores
// and audit reconstruction.
func (s *Service) MovementsByDocument(ctx context.Context, documentID id.ID) ([]entity.StockMovement, error) {
	return s.repo.MovementsByDocument(ctx, documentID)
}

// MovementHistory returns movement history for an item.
func (s *Service) MovementHistory(ctx context.Context, itemID id.ID, filter MovementFilter) ([]entity.StockMovement, error) {
	return s.repo.MovementHistory(ctx, itemID, filter)
}
