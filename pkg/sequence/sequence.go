// Package sequence generates per-company sequential document numbers.
//
// Numbers are allocated from a database-backed counter, never from memory
// alone, so they stay monotonic per (company, prefix, period) across
// restarts and concurrent writers.
package sequence

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tally/internal/core/apperror"
	appctx "tally/internal/core/context"
)

// Strategy selects how counter values are obtained.
type Strategy int

const (
	// StrategyStrict takes one counter increment per number. Gap-free;
	// use for accounting documents.
	StrategyStrict Strategy = iota

	// StrategyCached reserves ranges of values in memory. Faster, but a
	// restart abandons the unused tail of the range, leaving gaps. Use for
	// internal documents only.
	StrategyCached
)

// ResetPeriod controls when the counter restarts from 1.
type ResetPeriod string

const (
	ResetYearly ResetPeriod = "year"
	ResetNever  ResetPeriod = "never"
)

// Options configures one sequence service.
type Options struct {
	Strategy    Strategy
	ResetPeriod ResetPeriod
	// PadWidth is the minimum counter width in the formatted number.
	PadWidth int
	// RangeSize is the reservation size for StrategyCached.
	RangeSize int64
}

// DefaultOptions returns the accounting defaults: strict, yearly reset,
// five-digit padding.
func DefaultOptions() Options {
	return Options{
		Strategy:    StrategyStrict,
		ResetPeriod: ResetYearly,
		PadWidth:    5,
		RangeSize:   50,
	}
}

// Store is the persistence contract, implemented on sys_sequences with
// INSERT ... ON CONFLICT ... RETURNING so increments are atomic.
type Store interface {
	// NextValue atomically increments and returns the counter for a key.
	NextValue(ctx context.Context, companyID, key string) (int64, error)

	// NextRange atomically advances the counter by n and returns the first
	// value of the reserved range.
	NextRange(ctx context.Context, companyID, key string, n int64) (int64, error)
}

type cachedRange struct {
	next int64
	end  int64 // exclusive
}

// Service formats numbers like TXN-2026-00042.
type Service struct {
	store Store
	opts  Options

	mu     sync.Mutex
	ranges map[string]*cachedRange
}

// New creates a sequence service.
func New(store Store, opts Options) *Service {
	if opts.PadWidth <= 0 {
		opts.PadWidth = 5
	}
	if opts.RangeSize <= 0 {
		opts.RangeSize = 50
	}
	return &Service{
		store:  store,
		opts:   opts,
		ranges: make(map[string]*cachedRange),
	}
}

// Next returns the next formatted number for the company in context.
func (s *Service) Next(ctx context.Context, prefix string, period time.Time) (string, error) {
	companyID := appctx.GetCompanyID(ctx)
	if companyID == "" {
		return "", apperror.NewUnauthorized("company scope required")
	}
	if period.IsZero() {
		period = time.Now().UTC()
	}

	key := s.key(prefix, period)

	var value int64
	var err error
	switch s.opts.Strategy {
	case StrategyCached:
		value, err = s.nextCached(ctx, companyID, key)
	default:
		value, err = s.store.NextValue(ctx, companyID, key)
	}
	if err != nil {
		return "", fmt.Errorf("next sequence value for %s: %w", key, err)
	}

	return s.format(prefix, period, value), nil
}

// key is the counter identity: prefix plus the reset-period component.
func (s *Service) key(prefix string, period time.Time) string {
	if s.opts.ResetPeriod == ResetYearly {
		return fmt.Sprintf("%s-%d", prefix, period.Year())
	}
	return prefix
}

func (s *Service) format(prefix string, period time.Time, value int64) string {
	if s.opts.ResetPeriod == ResetYearly {
		return fmt.Sprintf("%s-%d-%0*d", prefix, period.Year(), s.opts.PadWidth, value)
	}
	return fmt.Sprintf("%s-%0*d", prefix, s.opts.PadWidth, value)
}

func (s *Service) nextCached(ctx context.Context, companyID, key string) (int64, error) {
	cacheKey := companyID + "/" + key

	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.ranges[cacheKey]
	if r == nil || r.next >= r.end {
		first, err := s.store.NextRange(ctx, companyID, key, s.opts.RangeSize)
		if err != nil {
			return 0, err
		}
		r = &cachedRange{next: first, end: first + s.opts.RangeSize}
		s.ranges[cacheKey] = r
	}

	value := r.next
	r.next++
	return value, nil
}
