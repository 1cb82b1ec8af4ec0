package documents

import (
	"context"

	"tally/pkg/logger"
)

// SettingsRepository persists posting configuration for the company in
// context.
type SettingsRepository interface {
	// AutoReduceStock reports whether committed documents reduce stock
	// automatically. Companies without a settings row default to true.
	AutoReduceStock(ctx context.Context) (bool, error)

	// SetAutoReduceStock upserts the flag for the company.
	SetAutoReduceStock(ctx context.Context, enabled bool) error
}

// SettingsService exposes posting configuration to the engine and the API.
type SettingsService struct {
	repo SettingsRepository
}

// NewSettingsService creates a settings service.
func NewSettingsService(repo SettingsRepository) *SettingsService {
	return &SettingsService{repo: repo}
}

// AutoReduceStock reports whether stock is reduced on document commit.
func (s *SettingsService) AutoReduceStock(ctx context.Context) (bool, error) {
	return s.repo.AutoReduceStock(ctx)
}

// SetAutoReduceStock changes whether document commits reduce stock. The flag
// is read at posting time, so in-flight postings keep the value they started
// with.
func (s *SettingsService) SetAutoReduceStock(ctx context.Context, enabled bool) error {
	if err := s.repo.SetAutoReduceStock(ctx, enabled); err != nil {
		return err
	}
	logger.Info(ctx, "posting settings updated", "auto_reduce_stock", enabled)
	return nil
}
