package postgres

import (
	"context"
	"fmt"

	"tally/pkg/sequence"
)

// SequenceStore implements sequence.Store on sys_sequences. Counters are
// advanced with INSERT ... ON CONFLICT ... RETURNING so every increment is
// atomic; inside a posting transaction the row lock also serializes
// concurrent number takers.
type SequenceStore struct {
	txManager *TxManager
}

var _ sequence.Store = (*SequenceStore)(nil)

// NewSequenceStore creates a sequence store.
func NewSequenceStore(txManager *TxManager) *SequenceStore {
	return &SequenceStore{txManager: txManager}
}

// NextValue atomically increments and returns the counter for a key.
func (s *SequenceStore) NextValue(ctx context.Context, companyID, key string) (int64, error) {
	return s.advance(ctx, companyID, key, 1)
}

// NextRange advances the counter by n and returns the first reserved value.
func (s *SequenceStore) NextRange(ctx context.Context, companyID, key string, n int64) (int64, error) {
	last, err := s.advance(ctx, companyID, key, n)
	if err != nil {
		return 0, err
	}
	return last - n + 1, nil
}

func (s *SequenceStore) advance(ctx context.Context, companyID, key string, by int64) (int64, error) {
	querier := s.txManager.GetQuerier(ctx)

	var value int64
	err := querier.QueryRow(ctx, `
		INSERT INTO sys_sequences (company_id, key, current_val)
		VALUES ($1, $2, $3)
		ON CONFLICT (company_id, key)
		DO UPDATE SET current_val = sys_sequences.current_val + $3
		RETURNING current_val`,
		companyID, key, by,
	).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("advance sequence %s/%s: %w", companyID, key, err)
	}
	return value, nil
}
