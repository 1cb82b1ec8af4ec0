package warehouse

import (
	"context"
	"fmt"
	"time"

	"tally/internal/core/apperror"
	appctx "tally/internal/core/context"
	"tally/internal/core/id"
	"tally/internal/core/tx"
	"tally/pkg/logger"
)

// CodePrefix is the sequence prefix for warehouse codes.
const CodePrefix = "WH"

// CodeSource generates sequential per-company warehouse codes.
type CodeSource interface {
	Next(ctx context.Context, prefix string, period time.Time) (string, error)
}

// Service provides business logic for the warehouse catalog and the
// allocation priority order.
type Service struct {
	repo  Repository
	codes CodeSource
	txm   tx.Manager
}

// NewService creates a new warehouse service.
func NewService(repo Repository, codes CodeSource, txm tx.Manager) *Service {
	return &Service{
		repo:  repo,
		codes: codes,
		txm:   txm,
	}
}

// Create validates and stores a new warehouse, generating a code when the
// caller did not supply one.
func (s *Service) Create(ctx context.Context, w *Warehouse) error {
	if w.CompanyID == "" {
		w.CompanyID = appctx.GetCompanyID(ctx)
	}
	if err := w.Validate(ctx); err != nil {
		return err
	}

	return s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if w.Code == "" {
			code, err := s.codes.Next(ctx, CodePrefix, time.Now())
			if err != nil {
				return fmt.Errorf("generate code: %w", err)
			}
			w.Code = code
		}

		// The first warehouse of a company becomes main automatically.
		if !w.IsMain {
			if _, err := s.repo.GetMain(ctx); apperror.IsNotFound(err) {
				w.IsMain = true
			} else if err != nil {
				return err
			}
		}

		return s.repo.Create(ctx, w)
	})
}

// Update persists catalog field changes. The main flag is managed through
// SetMain, not here.
func (s *Service) Update(ctx context.Context, w *Warehouse) error {
	if err := w.Validate(ctx); err != nil {
		return err
	}
	w.Touch()
	return s.repo.Update(ctx, w)
}

// GetByID retrieves a warehouse.
func (s *Service) GetByID(ctx context.Context, whID id.ID) (*Warehouse, error) {
	return s.repo.GetByID(ctx, whID)
}

// List retrieves warehouses for the company.
func (s *Service) List(ctx context.Context, activeOnly bool) ([]*Warehouse, error) {
	return s.repo.List(ctx, activeOnly)
}

// GetMain returns the company's main warehouse.
func (s *Service) GetMain(ctx context.Context) (*Warehouse, error) {
	return s.repo.GetMain(ctx)
}

// SetMain moves the main flag to the given warehouse.
func (s *Service) SetMain(ctx context.Context, whID id.ID) error {
	return s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		next, err := s.repo.GetByID(ctx, whID)
		if err != nil {
			return err
		}
		if !next.IsActive {
			return apperror.NewValidation("main warehouse must be active").
				WithDetail("warehouseId", whID)
		}

		current, err := s.repo.GetMain(ctx)
		if err != nil && !apperror.IsNotFound(err) {
			return err
		}
		if current != nil && current.ID == next.ID {
			return nil
		}
		if current != nil {
			current.IsMain = false
			current.Touch()
			if err := s.repo.Update(ctx, current); err != nil {
				return err
			}
		}

		next.IsMain = true
		next.Touch()
		return s.repo.Update(ctx, next)
	})
}

// ReplacePriorityOrder atomically swaps the company's allocation order.
// Every warehouse in the order must exist and be active.
func (s *Service) ReplacePriorityOrder(ctx context.Context, warehouseIDs []id.ID) (PriorityOrder, error) {
	order := PriorityOrder{
		CompanyID:    appctx.GetCompanyID(ctx),
		WarehouseIDs: warehouseIDs,
	}
	if err := order.Validate(); err != nil {
		return PriorityOrder{}, err
	}

	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		for _, whID := range order.WarehouseIDs {
			w, err := s.repo.GetByID(ctx, whID)
			if err != nil {
				return err
			}
			if !w.IsActive {
				return apperror.NewValidation("priority order names an inactive warehouse").
					WithDetail("warehouseId", whID)
			}
		}
		return s.repo.ReplacePriorityOrder(ctx, order)
	})
	if err != nil {
		return PriorityOrder{}, err
	}

	logger.Info(ctx, "priority order replaced",
		"company_id", order.CompanyID,
		"warehouses", len(order.WarehouseIDs),
	)
	return order, nil
}

// ResolveOrder returns the warehouse visit order for allocation: the
// configured priority order with the main warehouse appended when missing,
// or just the main warehouse when no order was ever configured. Fails with
// PLANNING_FAILURE when the company has no warehouses at all.
func (s *Service) ResolveOrder(ctx context.Context) ([]id.ID, error) {
	order, err := s.repo.GetPriorityOrder(ctx)
	if err != nil {
		return nil, err
	}

	main, err := s.repo.GetMain(ctx)
	if err != nil {
		if apperror.IsNotFound(err) {
			if len(order.WarehouseIDs) > 0 {
				return order.WarehouseIDs, nil
			}
			return nil, apperror.NewPlanningFailure("company has no warehouses configured")
		}
		return nil, err
	}

	for _, wh := range order.WarehouseIDs {
		if wh == main.ID {
			return order.WarehouseIDs, nil
		}
	}
	return append(order.WarehouseIDs, main.ID), nil
}
