package ledger

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
	"tally/internal/core/types"
)

// fakeRepo is an in-memory Repository.
type fakeRepo struct {
	transactions map[id.ID]*Transaction
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{transactions: make(map[id.ID]*Transaction)}
}

func cloneTx(t *Transaction) *Transaction {
	c := *t
	c.Entries = append([]Entry(nil), t.Entries...)
	if t.ReversedByID != nil {
		rid := *t.ReversedByID
		c.ReversedByID = &rid
	}
	return &c
}

func (r *fakeRepo) snapshot() map[id.ID]*Transaction {
	snap := make(map[id.ID]*Transaction, len(r.transactions))
	for k, v := range r.transactions {
		snap[k] = cloneTx(v)
	}
	return snap
}

func (r *fakeRepo) Create(_ context.Context, t *Transaction) error {
	r.transactions[t.ID] = cloneTx(t)
	return nil
}

func (r *fakeRepo) GetByID(_ context.Context, txID id.ID) (*Transaction, error) {
	t, ok := r.transactions[txID]
	if !ok {
		return nil, apperror.NewNotFound("transaction", txID)
	}
	return cloneTx(t), nil
}

func (r *fakeRepo) GetForUpdate(ctx context.Context, txID id.ID) (*Transaction, error) {
	return r.GetByID(ctx, txID)
}

func (r *fakeRepo) UpdateState(_ context.Context, t *Transaction) error {
	if _, ok := r.transactions[t.ID]; !ok {
		return apperror.NewNotFound("transaction", t.ID)
	}
	r.transactions[t.ID] = cloneTx(t)
	return nil
}

func (r *fakeRepo) DeleteDraft(_ context.Context, txID id.ID) error {
	delete(r.transactions, txID)
	return nil
}

func (r *fakeRepo) GetActiveByReference(_ context.Context, refType ReferenceType, refID string) (*Transaction, error) {
	for _, t := range r.transactions {
		if t.ReferenceType == refType && t.ReferenceID == refID &&
			t.Status == StatusPosted && t.ReversedByID == nil {
			return cloneTx(t), nil
		}
	}
	return nil, apperror.NewNotFound("transaction", refID)
}

func (r *fakeRepo) List(_ context.Context, _ ListFilter) (ListResult, error) {
	res := ListResult{}
	for _, t := range r.transactions {
		res.Items = append(res.Items, cloneTx(t))
	}
	res.TotalCount = int64(len(res.Items))
	return res, nil
}

// fakeTxManager snapshots the repo before each unit and restores it when the
// unit fails, mimicking a database rollback.
type fakeTxManager struct {
	repo *fakeRepo
}

func (m *fakeTxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	snap := m.repo.snapshot()
	if err := fn(ctx); err != nil {
		m.repo.transactions = snap
		return err
	}
	return nil
}

// fakeNumbers issues NUM-1, NUM-2, ...
type fakeNumbers struct{ n int }

func (f *fakeNumbers) Next(_ context.Context, prefix string, _ time.Time) (string, error) {
	f.n++
	return fmt.Sprintf("%s-%d", prefix, f.n), nil
}

func newTestService() (*Service, *fakeRepo) {
	repo := newFakeRepo()
	svc := NewService(repo, &fakeNumbers{}, &fakeTxManager{repo: repo})
	return svc, repo
}

func testCtx() context.Context {
	return appctx.WithUser(context.Background(), &appctx.UserContext{
		UserID:    "user-1",
		CompanyID: "acme",
	})
}

func balancedInput() DraftInput {
	return DraftInput{
		Date:          time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
		ReferenceType: ReferenceInvoice,
		ReferenceID:   id.New().String(),
		Entries: []EntryInput{
			{AccountID: id.New(), AccountCode: "1200", Debit: types.MustMoney("150.00")},
			{AccountID: id.New(), AccountCode: "4000", Credit: types.MustMoney("150.00")},
		},
	}
}

func TestCreateDraft(t *testing.T) {
	svc, repo := newTestService()
	ctx := testCtx()

	draft, err := svc.CreateDraft(ctx, balancedInput())
	require.NoError(t, err)

	assert.Equal(t, StatusDraft, draft.Status)
	assert.Equal(t, "TXN-1", draft.Number)
	assert.Equal(t, "acme", draft.CompanyID)
	assert.False(t, draft.IsReconciled)
	assert.Len(t, repo.transactions, 1)
}

func TestCreateDraftAllowsImbalance(t *testing.T) {
	svc, _ := newTestService()

	in := balancedInput()
	in.Entries[1].Credit = types.MustMoney("100.00")

	draft, err := svc.CreateDraft(testCtx(), in)
	require.NoError(t, err)
	assert.False(t, draft.IsBalanced())
}

func TestCreateDraftValidation(t *testing.T) {
	svc, _ := newTestService()
	ctx := testCtx()

	t.Run("requires company scope", func(t *testing.T) {
		_, err := svc.CreateDraft(context.Background(), balancedInput())
		require.Error(t, err)
		assert.True(t, apperror.HasCode(err, apperror.CodeUnauthorized))
	})

	t.Run("rejects two-sided entry", func(t *testing.T) {
		in := balancedInput()
		in.Entries[0].Credit = types.MustMoney("10.00")
		_, err := svc.CreateDraft(ctx, in)
		require.Error(t, err)
		assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
	})

	t.Run("rejects empty entry", func(t *testing.T) {
		in := balancedInput()
		in.Entries[0].Debit = types.ZeroMoney()
		_, err := svc.CreateDraft(ctx, in)
		require.Error(t, err)
	})

	t.Run("rejects negative amount", func(t *testing.T) {
		in := balancedInput()
		in.Entries[0].Debit = types.MustMoney("-5.00")
		_, err := svc.CreateDraft(ctx, in)
		require.Error(t, err)
	})

	t.Run("rejects no entries", func(t *testing.T) {
		in := balancedInput()
		in.Entries = nil
		_, err := svc.CreateDraft(ctx, in)
		require.Error(t, err)
	})

	t.Run("rejects unknown reference type", func(t *testing.T) {
		in := balancedInput()
		in.ReferenceType = "carrier_pigeon"
		_, err := svc.CreateDraft(ctx, in)
		require.Error(t, err)
	})
}

func TestPost(t *testing.T) {
	svc, _ := newTestService()
	ctx := testCtx()

	draft, err := svc.CreateDraft(ctx, balancedInput())
	require.NoError(t, err)

	posted, err := svc.Post(ctx, draft.ID)
	require.NoError(t, err)

	assert.Equal(t, StatusPosted, posted.Status)
	assert.True(t, posted.TotalDebit.Equal(types.MustMoney("150.00")))
	assert.True(t, posted.TotalCredit.Equal(types.MustMoney("150.00")))
}

func TestPostImbalancedLeavesDraft(t *testing.T) {
	svc, repo := newTestService()
	ctx := testCtx()

	in := balancedInput()
	in.Entries[1].Credit = types.MustMoney("100.00")
	draft, err := svc.CreateDraft(ctx, in)
	require.NoError(t, err)

	_, err = svc.Post(ctx, draft.ID)
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeImbalancedEntries))

	// Rolled back: still a draft, totals untouched.
	stored := repo.transactions[draft.ID]
	assert.Equal(t, StatusDraft, stored.Status)
	assert.True(t, stored.TotalDebit.IsZero())
}

func TestPostRequiresDraft(t *testing.T) {
	svc, _ := newTestService()
	ctx := testCtx()

	draft, err := svc.CreateDraft(ctx, balancedInput())
	require.NoError(t, err)
	_, err = svc.Post(ctx, draft.ID)
	require.NoError(t, err)

	_, err = svc.Post(ctx, draft.ID)
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidState))
}

func TestReverse(t *testing.T) {
	svc, repo := newTestService()
	ctx := testCtx()

	draft, err := svc.CreateDraft(ctx, balancedInput())
	require.NoError(t, err)
	posted, err := svc.Post(ctx, draft.ID)
	require.NoError(t, err)

	rev, err := svc.Reverse(ctx, posted.ID, "duplicate billing")
	require.NoError(t, err)

	// Reversal is an offsetting posted transaction with swapped sides.
	assert.Equal(t, StatusPosted, rev.Status)
	assert.Equal(t, posted.ID.String(), rev.ReferenceID)
	require.Len(t, rev.Entries, len(posted.Entries))
	for i, e := range rev.Entries {
		assert.True(t, e.Debit.Equal(posted.Entries[i].Credit), "entry %d debit", i)
		assert.True(t, e.Credit.Equal(posted.Entries[i].Debit), "entry %d credit", i)
		assert.Equal(t, posted.Entries[i].AccountID, e.AccountID)
	}

	// Original is linked, flipped to reversed, entries untouched.
	original := repo.transactions[posted.ID]
	assert.Equal(t, StatusReversed, original.Status)
	require.NotNil(t, original.ReversedByID)
	assert.Equal(t, rev.ID, *original.ReversedByID)
	assert.Equal(t, "duplicate billing", original.ReversalReason)
	assert.Equal(t, posted.Entries, original.Entries)
}

func TestReverseTwiceFails(t *testing.T) {
	svc, _ := newTestService()
	ctx := testCtx()

	draft, err := svc.CreateDraft(ctx, balancedInput())
	require.NoError(t, err)
	posted, err := svc.Post(ctx, draft.ID)
	require.NoError(t, err)

	_, err = svc.Reverse(ctx, posted.ID, "first")
	require.NoError(t, err)

	_, err = svc.Reverse(ctx, posted.ID, "second")
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeAlreadyReversed))
}

func TestReverseRequiresPosted(t *testing.T) {
	svc, _ := newTestService()
	ctx := testCtx()

	draft, err := svc.CreateDraft(ctx, balancedInput())
	require.NoError(t, err)

	_, err = svc.Reverse(ctx, draft.ID, "too early")
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidState))
}

func TestReconcile(t *testing.T) {
	svc, _ := newTestService()
	ctx := testCtx()

	draft, err := svc.CreateDraft(ctx, balancedInput())
	require.NoError(t, err)
	posted, err := svc.Post(ctx, draft.ID)
	require.NoError(t, err)

	first, err := svc.Reconcile(ctx, posted.ID)
	require.NoError(t, err)
	assert.True(t, first.IsReconciled)

	// Idempotent.
	second, err := svc.Reconcile(ctx, posted.ID)
	require.NoError(t, err)
	assert.True(t, second.IsReconciled)
}

func TestReconcileRequiresPosted(t *testing.T) {
	svc, _ := newTestService()
	ctx := testCtx()

	draft, err := svc.CreateDraft(ctx, balancedInput())
	require.NoError(t, err)

	_, err = svc.Reconcile(ctx, draft.ID)
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidState))
}

func TestReconcileRejectedAfterReversal(t *testing.T) {
	svc, _ := newTestService()
	ctx := testCtx()

	draft, err := svc.CreateDraft(ctx, balancedInput())
	require.NoError(t, err)
	posted, err := svc.Post(ctx, draft.ID)
	require.NoError(t, err)
	_, err = svc.Reverse(ctx, posted.ID, "void")
	require.NoError(t, err)

	_, err = svc.Reconcile(ctx, posted.ID)
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidState))
}

func TestDeleteDraft(t *testing.T) {
	svc, repo := newTestService()
	ctx := testCtx()

	draft, err := svc.CreateDraft(ctx, balancedInput())
	require.NoError(t, err)

	require.NoError(t, svc.DeleteDraft(ctx, draft.ID))
	assert.Empty(t, repo.transactions)
}

func TestDeleteDraftRejectsPosted(t *testing.T) {
	svc, _ := newTestService()
	ctx := testCtx()

	draft, err := svc.CreateDraft(ctx, balancedInput())
	require.NoError(t, err)
	_, err = svc.Post(ctx, draft.ID)
	require.NoError(t, err)

	err = svc.DeleteDraft(ctx, draft.ID)
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidState))
}

func TestGetActiveByReference(t *testing.T) {
	svc, _ := newTestService()
	ctx := testCtx()

	in := balancedInput()
	draft, err := svc.CreateDraft(ctx, in)
	require.NoError(t, err)

	// Draft is not active yet.
	_, err = svc.GetActiveByReference(ctx, in.ReferenceType, in.ReferenceID)
	require.Error(t, err)
	assert.True(t, apperror.IsNotFound(err))

	posted, err := svc.Post(ctx, draft.ID)
	require.NoError(t, err)

	active, err := svc.GetActiveByReference(ctx, in.ReferenceType, in.ReferenceID)
	require.NoError(t, err)
	assert.Equal(t, posted.ID, active.ID)

	// Reversed transactions stop being active.
	_, err = svc.Reverse(ctx, posted.ID, "void")
	require.NoError(t, err)
	_, err = svc.GetActiveByReference(ctx, in.ReferenceType, in.ReferenceID)
	require.Error(t, err)
	assert.True(t, apperror.IsNotFound(err))
}
