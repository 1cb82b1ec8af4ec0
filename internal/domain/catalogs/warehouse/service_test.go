package warehouse

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tally/internal/core/apperror"
	appctx "tally/internal/core/context"
	"tally/internal/core/id"
)

type fakeRepo struct {
	warehouses map[id.ID]*Warehouse
	order      PriorityOrder
	replaced   int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{warehouses: make(map[id.ID]*Warehouse)}
}

func cloneWarehouse(w *Warehouse) *Warehouse {
	c := *w
	return &c
}

func (r *fakeRepo) Create(_ context.Context, w *Warehouse) error {
	r.warehouses[w.ID] = cloneWarehouse(w)
	return nil
}

func (r *fakeRepo) Update(_ context.Context, w *Warehouse) error {
	if _, ok := r.warehouses[w.ID]; !ok {
		return apperror.NewNotFound("warehouse", w.ID)
	}
	r.warehouses[w.ID] = cloneWarehouse(w)
	return nil
}

func (r *fakeRepo) GetByID(_ context.Context, whID id.ID) (*Warehouse, error) {
	w, ok := r.warehouses[whID]
	if !ok {
		return nil, apperror.NewNotFound("warehouse", whID)
	}
	return cloneWarehouse(w), nil
}

func (r *fakeRepo) List(_ context.Context, activeOnly bool) ([]*Warehouse, error) {
	var out []*Warehouse
	for _, w := range r.warehouses {
		if activeOnly && !w.IsActive {
			continue
		}
		out = append(out, cloneWarehouse(w))
	}
	return out, nil
}

func (r *fakeRepo) GetMain(_ context.Context) (*Warehouse, error) {
	for _, w := range r.warehouses {
		if w.IsMain {
			return cloneWarehouse(w), nil
		}
	}
	return nil, apperror.NewNotFound("warehouse", "main")
}

func (r *fakeRepo) GetPriorityOrder(_ context.Context) (PriorityOrder, error) {
	return r.order, nil
}

func (r *fakeRepo) ReplacePriorityOrder(_ context.Context, order PriorityOrder) error {
	r.order = order
	r.replaced++
	return nil
}

type passTxManager struct{}

func (passTxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeCodes struct{ n int }

func (f *fakeCodes) Next(_ context.Context, prefix string, _ time.Time) (string, error) {
	f.n++
	return fmt.Sprintf("%s-%05d", prefix, f.n), nil
}

func newTestService() (*Service, *fakeRepo) {
	repo := newFakeRepo()
	return NewService(repo, &fakeCodes{}, passTxManager{}), repo
}

func testCtx() context.Context {
	return appctx.WithUser(context.Background(), &appctx.UserContext{
		UserID:    "user-1",
		CompanyID: "acme",
	})
}

func TestCreateFirstWarehouseBecomesMain(t *testing.T) {
	svc, _ := newTestService()
	ctx := testCtx()

	first := NewWarehouse("", "", "Main depot")
	require.NoError(t, svc.Create(ctx, first))
	assert.True(t, first.IsMain)
	assert.Equal(t, "WH-00001", first.Code)
	assert.Equal(t, "acme", first.CompanyID)

	second := NewWarehouse("", "", "Overflow")
	require.NoError(t, svc.Create(ctx, second))
	assert.False(t, second.IsMain)
	assert.Equal(t, "WH-00002", second.Code)
}

func TestCreateValidation(t *testing.T) {
	svc, _ := newTestService()

	err := svc.Create(testCtx(), NewWarehouse("", "", ""))
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
}

func TestSetMainMovesFlag(t *testing.T) {
	svc, repo := newTestService()
	ctx := testCtx()

	a := NewWarehouse("", "", "A")
	b := NewWarehouse("", "", "B")
	require.NoError(t, svc.Create(ctx, a))
	require.NoError(t, svc.Create(ctx, b))
	require.True(t, a.IsMain)

	require.NoError(t, svc.SetMain(ctx, b.ID))
	assert.False(t, repo.warehouses[a.ID].IsMain)
	assert.True(t, repo.warehouses[b.ID].IsMain)

	// Setting the current main again is a no-op.
	require.NoError(t, svc.SetMain(ctx, b.ID))
	assert.True(t, repo.warehouses[b.ID].IsMain)
}

func TestSetMainRejectsInactive(t *testing.T) {
	svc, repo := newTestService()
	ctx := testCtx()

	a := NewWarehouse("", "", "A")
	require.NoError(t, svc.Create(ctx, a))

	b := NewWarehouse("", "", "B")
	require.NoError(t, svc.Create(ctx, b))
	repo.warehouses[b.ID].IsActive = false

	err := svc.SetMain(ctx, b.ID)
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
}

func TestReplacePriorityOrder(t *testing.T) {
	svc, repo := newTestService()
	ctx := testCtx()

	a := NewWarehouse("", "", "A")
	b := NewWarehouse("", "", "B")
	require.NoError(t, svc.Create(ctx, a))
	require.NoError(t, svc.Create(ctx, b))

	order, err := svc.ReplacePriorityOrder(ctx, []id.ID{b.ID, a.ID})
	require.NoError(t, err)
	assert.Equal(t, []id.ID{b.ID, a.ID}, order.WarehouseIDs)
	assert.Equal(t, 1, repo.replaced)

	// Whole-list swap, not an incremental edit.
	_, err = svc.ReplacePriorityOrder(ctx, []id.ID{a.ID})
	require.NoError(t, err)
	assert.Equal(t, []id.ID{a.ID}, repo.order.WarehouseIDs)
	assert.Equal(t, 2, repo.replaced)
}

func TestReplacePriorityOrderValidation(t *testing.T) {
	svc, repo := newTestService()
	ctx := testCtx()

	a := NewWarehouse("", "", "A")
	require.NoError(t, svc.Create(ctx, a))

	t.Run("rejects empty order", func(t *testing.T) {
		_, err := svc.ReplacePriorityOrder(ctx, nil)
		require.Error(t, err)
	})

	t.Run("rejects duplicates", func(t *testing.T) {
		_, err := svc.ReplacePriorityOrder(ctx, []id.ID{a.ID, a.ID})
		require.Error(t, err)
	})

	t.Run("rejects unknown warehouse", func(t *testing.T) {
		_, err := svc.ReplacePriorityOrder(ctx, []id.ID{id.New()})
		require.Error(t, err)
		assert.True(t, apperror.IsNotFound(err))
	})

	t.Run("rejects inactive warehouse", func(t *testing.T) {
		b := NewWarehouse("", "", "B")
		require.NoError(t, svc.Create(ctx, b))
		repo.warehouses[b.ID].IsActive = false

		_, err := svc.ReplacePriorityOrder(ctx, []id.ID{a.ID, b.ID})
		require.Error(t, err)
		assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
	})
}

func TestResolveOrder(t *testing.T) {
	svc, _ := newTestService()
	ctx := testCtx()

	main := NewWarehouse("", "", "Main")
	a := NewWarehouse("", "", "A")
	b := NewWarehouse("", "", "B")
	require.NoError(t, svc.Create(ctx, main))
	require.NoError(t, svc.Create(ctx, a))
	require.NoError(t, svc.Create(ctx, b))

	t.Run("no configured order falls back to main", func(t *testing.T) {
		order, err := svc.ResolveOrder(ctx)
		require.NoError(t, err)
		assert.Equal(t, []id.ID{main.ID}, order)
	})

	t.Run("configured order including main used as-is", func(t *testing.T) {
		_, err := svc.ReplacePriorityOrder(ctx, []id.ID{a.ID, main.ID, b.ID})
		require.NoError(t, err)

		order, err := svc.ResolveOrder(ctx)
		require.NoError(t, err)
		assert.Equal(t, []id.ID{a.ID, main.ID, b.ID}, order)
	})

	t.Run("main appended when missing from order", func(t *testing.T) {
		_, err := svc.ReplacePriorityOrder(ctx, []id.ID{b.ID, a.ID})
		require.NoError(t, err)

		order, err := svc.ResolveOrder(ctx)
		require.NoError(t, err)
		assert.Equal(t, []id.ID{b.ID, a.ID, main.ID}, order)
	})
}

func TestResolveOrderNoWarehouses(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.ResolveOrder(testCtx())
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodePlanningFailure))
}
