package posting

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tally/internal/core/apperror"
	appctx "tally/internal/core/context"
	"tally/internal/core/entity"
	"tally/internal/core/id"
	"tally/internal/core/types"
	"tally/internal/domain/ledger"
	"tally/internal/domain/registers/stock"
)

// --- in-memory world: ledger repo, stock repo, shared rollback ---

type memLedgerRepo struct {
	transactions map[id.ID]*ledger.Transaction
}

func newMemLedgerRepo() *memLedgerRepo {
	return &memLedgerRepo{transactions: make(map[id.ID]*ledger.Transaction)}
}

func cloneTx(t *ledger.Transaction) *ledger.Transaction {
	c := *t
	c.Entries = append([]ledger.Entry(nil), t.Entries...)
	if t.ReversedByID != nil {
		rid := *t.ReversedByID
		c.ReversedByID = &rid
	}
	return &c
}

func (r *memLedgerRepo) Create(_ context.Context, t *ledger.Transaction) error {
	r.transactions[t.ID] = cloneTx(t)
	return nil
}

func (r *memLedgerRepo) GetByID(_ context.Context, txID id.ID) (*ledger.Transaction, error) {
	t, ok := r.transactions[txID]
	if !ok {
		return nil, apperror.NewNotFound("transaction", txID)
	}
	return cloneTx(t), nil
}

func (r *memLedgerRepo) GetForUpdate(ctx context.Context, txID id.ID) (*ledger.Transaction, error) {
	return r.GetByID(ctx, txID)
}

func (r *memLedgerRepo) UpdateState(_ context.Context, t *ledger.Transaction) error {
	if _, ok := r.transactions[t.ID]; !ok {
		return apperror.NewNotFound("transaction", t.ID)
	}
	r.transactions[t.ID] = cloneTx(t)
	return nil
}

func (r *memLedgerRepo) DeleteDraft(_ context.Context, txID id.ID) error {
	delete(r.transactions, txID)
	return nil
}

func (r *memLedgerRepo) GetActiveByReference(_ context.Context, refType ledger.ReferenceType, refID string) (*ledger.Transaction, error) {
	for _, t := range r.transactions {
		if t.ReferenceType == refType && t.ReferenceID == refID &&
			t.Status == ledger.StatusPosted && t.ReversedByID == nil {
			return cloneTx(t), nil
		}
	}
	return nil, apperror.NewNotFound("transaction", refID)
}

func (r *memLedgerRepo) List(_ context.Context, _ ledger.ListFilter) (ledger.ListResult, error) {
	return ledger.ListResult{}, nil
}

type memStockRepo struct {
	movements  []entity.StockMovement
	failCreate bool

	// events records the order of register operations, so tests can assert
	// that items are locked before their balances are read.
	events []string
}

func (r *memStockRepo) LockItem(_ context.Context, itemID id.ID) error {
	r.events = append(r.events, "lock:"+itemID.String())
	return nil
}

func (r *memStockRepo) CreateMovements(_ context.Context, movements []entity.StockMovement) error {
	if r.failCreate {
		return errors.New("copy failed: connection reset")
	}
	r.events = append(r.events, "append")
	r.movements = append(r.movements, movements...)
	return nil
}

func (r *memStockRepo) MovementsByDocument(_ context.Context, documentID id.ID) ([]entity.StockMovement, error) {
	r.events = append(r.events, "read:"+documentID.String())
	var out []entity.StockMovement
	for _, m := range r.movements {
		if m.DocumentID == documentID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *memStockRepo) Balance(_ context.Context, itemID, warehouseID id.ID) (types.Quantity, error) {
	var sum types.Quantity
	for _, m := range r.movements {
		if m.ItemID == itemID && m.WarehouseID == warehouseID {
			sum += m.QuantityDelta
		}
	}
	return sum, nil
}

func (r *memStockRepo) BalancesForItem(ctx context.Context, itemID id.ID, warehouseIDs []id.ID) (map[id.ID]types.Quantity, error) {
	r.events = append(r.events, "balances:"+itemID.String())
	out := make(map[id.ID]types.Quantity, len(warehouseIDs))
	for _, wh := range warehouseIDs {
		b, _ := r.Balance(ctx, itemID, wh)
		out[wh] = b
	}
	return out, nil
}

func (r *memStockRepo) MovementHistory(_ context.Context, itemID id.ID, _ stock.MovementFilter) ([]entity.StockMovement, error) {
	return nil, nil
}

// memTxManager snapshots both stores before the outer unit and restores them
// when it fails. Nested units join the outer one the way the database
// transaction manager reuses the context transaction.
type memTxManager struct {
	ledger *memLedgerRepo
	stock  *memStockRepo
	depth  int
}

func (m *memTxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.depth > 0 {
		m.depth++
		err := fn(ctx)
		m.depth--
		return err
	}

	ledgerSnap := make(map[id.ID]*ledger.Transaction, len(m.ledger.transactions))
	for k, v := range m.ledger.transactions {
		ledgerSnap[k] = cloneTx(v)
	}
	stockSnap := append([]entity.StockMovement(nil), m.stock.movements...)

	m.depth++
	err := fn(ctx)
	m.depth--
	if err != nil {
		m.ledger.transactions = ledgerSnap
		m.stock.movements = stockSnap
		return err
	}
	return nil
}

type fakeNumbers struct{ n int }

func (f *fakeNumbers) Next(_ context.Context, prefix string, _ time.Time) (string, error) {
	f.n++
	return fmt.Sprintf("%s-%d", prefix, f.n), nil
}

type fakeOrder struct {
	order []id.ID
	err   error
}

func (f *fakeOrder) ResolveOrder(_ context.Context) ([]id.ID, error) { return f.order, f.err }

type fakeSettings struct{ autoReduce bool }

func (f *fakeSettings) AutoReduceStock(_ context.Context) (bool, error) { return f.autoReduce, nil }

type fakeAudit struct{ records []AuditRecord }

func (f *fakeAudit) RecordPosting(_ context.Context, rec AuditRecord) error {
	f.records = append(f.records, rec)
	return nil
}

type world struct {
	engine     *Engine
	ledgerRepo *memLedgerRepo
	stockRepo  *memStockRepo
	order      *fakeOrder
	settings   *fakeSettings
	audit      *fakeAudit
	main, whA  id.ID
}

func newWorld() *world {
	w := &world{
		ledgerRepo: newMemLedgerRepo(),
		stockRepo:  &memStockRepo{},
		settings:   &fakeSettings{autoReduce: true},
		audit:      &fakeAudit{},
		main:       id.New(),
		whA:        id.New(),
	}
	w.order = &fakeOrder{order: []id.ID{w.main, w.whA}}

	txm := &memTxManager{ledger: w.ledgerRepo, stock: w.stockRepo}
	ledgerSvc := ledger.NewService(w.ledgerRepo, &fakeNumbers{}, txm)
	stockSvc := stock.NewService(w.stockRepo)
	w.engine = NewEngine(ledgerSvc, stockSvc, w.order, w.settings, w.audit, txm)
	return w
}

func (w *world) seed(item id.ID, wh id.ID, q types.Quantity) {
	w.stockRepo.movements = append(w.stockRepo.movements,
		entity.NewStockMovement("acme", item, wh, q, id.New(), entity.StockEventRestore))
}

func qty(v float64) types.Quantity { return types.NewQuantityFromFloat64(v) }

func testCtx() context.Context {
	return appctx.WithUser(context.Background(), &appctx.UserContext{
		UserID:    "user-1",
		CompanyID: "acme",
	})
}

func invoiceRequest(item id.ID, quantity types.Quantity) PostRequest {
	return PostRequest{
		DocumentID:    id.New(),
		ReferenceType: ledger.ReferenceInvoice,
		Date:          time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
		Entries: []ledger.EntryInput{
			{AccountID: id.New(), Debit: types.MustMoney("200.00")},
			{AccountID: id.New(), Credit: types.MustMoney("200.00")},
		},
		StockLines: []StockLine{{ItemID: item, Quantity: quantity}},
	}
}

func TestPostDocument(t *testing.T) {
	w := newWorld()
	ctx := testCtx()

	item := id.New()
	w.seed(item, w.main, qty(5))
	w.seed(item, w.whA, qty(3))

	req := invoiceRequest(item, qty(10))
	res, err := w.engine.PostDocument(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, ledger.StatusPosted, res.Transaction.Status)

	// main gives its 5; the last warehouse takes the remaining 5 even though
	// it only holds 3.
	require.Len(t, res.Movements, 2)
	assert.Equal(t, w.main, res.Movements[0].WarehouseID)
	assert.Equal(t, qty(-5), res.Movements[0].QuantityDelta)
	assert.Equal(t, w.whA, res.Movements[1].WarehouseID)
	assert.Equal(t, qty(-5), res.Movements[1].QuantityDelta)
	for _, m := range res.Movements {
		assert.Equal(t, entity.StockEventReduce, m.Event)
		assert.Equal(t, req.DocumentID, m.DocumentID)
	}

	whABalance, err := w.stockRepo.Balance(ctx, item, w.whA)
	require.NoError(t, err)
	assert.Equal(t, qty(-2), whABalance)

	require.Len(t, w.audit.records, 1)
	assert.Equal(t, "post", w.audit.records[0].Action)
}

func TestPostDocumentAtomicity(t *testing.T) {
	w := newWorld()
	ctx := testCtx()

	item := id.New()
	w.seed(item, w.main, qty(5))
	seeded := len(w.stockRepo.movements)

	// The stock COPY blows up after the ledger transaction has been posted.
	w.stockRepo.failCreate = true

	_, err := w.engine.PostDocument(ctx, invoiceRequest(item, qty(2)))
	require.Error(t, err)

	// Everything rolled back: no ledger rows, no movements.
	assert.Empty(t, w.ledgerRepo.transactions)
	assert.Len(t, w.stockRepo.movements, seeded)
	assert.Empty(t, w.audit.records)
}

func TestPostDocumentImbalancedRollsBack(t *testing.T) {
	w := newWorld()
	ctx := testCtx()

	item := id.New()
	req := invoiceRequest(item, qty(1))
	req.Entries[1].Credit = types.MustMoney("100.00")

	_, err := w.engine.PostDocument(ctx, req)
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeImbalancedEntries))

	// The draft created on the way in is gone too.
	assert.Empty(t, w.ledgerRepo.transactions)
}

func TestPostDocumentSkipsStockWhenAutoReduceOff(t *testing.T) {
	w := newWorld()
	w.settings.autoReduce = false
	ctx := testCtx()

	res, err := w.engine.PostDocument(ctx, invoiceRequest(id.New(), qty(4)))
	require.NoError(t, err)

	assert.Empty(t, res.Movements)
	assert.Empty(t, w.stockRepo.movements)
}

func TestPostDocumentSkipsStockForNonInventoryKinds(t *testing.T) {
	w := newWorld()
	ctx := testCtx()

	req := invoiceRequest(id.New(), qty(4))
	req.ReferenceType = ledger.ReferenceManual
	req.StockLines = nil

	res, err := w.engine.PostDocument(ctx, req)
	require.NoError(t, err)
	assert.Empty(t, res.Movements)
}

func TestPostDocumentRejectsDuplicateActive(t *testing.T) {
	w := newWorld()
	ctx := testCtx()

	item := id.New()
	w.seed(item, w.main, qty(10))

	req := invoiceRequest(item, qty(1))
	_, err := w.engine.PostDocument(ctx, req)
	require.NoError(t, err)

	_, err = w.engine.PostDocument(ctx, req)
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeConflict))
}

func TestPostDocumentPlanningFailure(t *testing.T) {
	w := newWorld()
	w.order.order = nil
	ctx := testCtx()

	item := id.New()
	_, err := w.engine.PostDocument(ctx, invoiceRequest(item, qty(1)))
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodePlanningFailure))
	assert.Empty(t, w.ledgerRepo.transactions)
}

func TestReverseDocument(t *testing.T) {
	w := newWorld()
	ctx := testCtx()

	item := id.New()
	w.seed(item, w.main, qty(5))
	w.seed(item, w.whA, qty(3))

	req := invoiceRequest(item, qty(10))
	posted, err := w.engine.PostDocument(ctx, req)
	require.NoError(t, err)

	res, err := w.engine.ReverseDocument(ctx, ledger.ReferenceInvoice, req.DocumentID, "customer cancelled")
	require.NoError(t, err)

	// Restores mirror the original path warehouse by warehouse.
	require.Len(t, res.Movements, 2)
	byWarehouse := map[id.ID]types.Quantity{}
	for _, m := range res.Movements {
		assert.Equal(t, entity.StockEventRestore, m.Event)
		byWarehouse[m.WarehouseID] = m.QuantityDelta
	}
	assert.Equal(t, qty(5), byWarehouse[w.main])
	assert.Equal(t, qty(5), byWarehouse[w.whA])

	// Balances are back where they started.
	mainBal, _ := w.stockRepo.Balance(ctx, item, w.main)
	whABal, _ := w.stockRepo.Balance(ctx, item, w.whA)
	assert.Equal(t, qty(5), mainBal)
	assert.Equal(t, qty(3), whABal)

	// The original transaction is reversed and linked.
	original := w.ledgerRepo.transactions[posted.Transaction.ID]
	assert.Equal(t, ledger.StatusReversed, original.Status)
	require.NotNil(t, original.ReversedByID)
	assert.Equal(t, res.Transaction.ID, *original.ReversedByID)
}

func TestReverseDocumentTwiceFails(t *testing.T) {
	w := newWorld()
	ctx := testCtx()

	item := id.New()
	w.seed(item, w.main, qty(10))

	req := invoiceRequest(item, qty(2))
	_, err := w.engine.PostDocument(ctx, req)
	require.NoError(t, err)

	_, err = w.engine.ReverseDocument(ctx, ledger.ReferenceInvoice, req.DocumentID, "first")
	require.NoError(t, err)

	// The active transaction is gone, so a second reverse finds nothing.
	_, err = w.engine.ReverseDocument(ctx, ledger.ReferenceInvoice, req.DocumentID, "second")
	require.Error(t, err)
	assert.True(t, apperror.IsNotFound(err))
}

func TestRestoreStockIdempotent(t *testing.T) {
	w := newWorld()
	ctx := testCtx()

	item := id.New()
	w.seed(item, w.main, qty(10))

	req := invoiceRequest(item, qty(4))
	_, err := w.engine.PostDocument(ctx, req)
	require.NoError(t, err)

	restores, err := w.engine.RestoreStock(ctx, req.DocumentID)
	require.NoError(t, err)
	require.Len(t, restores, 1)
	assert.Equal(t, qty(4), restores[0].QuantityDelta)

	// The document's net is now zero; nothing more to restore.
	again, err := w.engine.RestoreStock(ctx, req.DocumentID)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestReconcileDocument(t *testing.T) {
	w := newWorld()
	ctx := testCtx()

	item := id.New()
	w.seed(item, w.main, qty(10))

	req := invoiceRequest(item, qty(1))
	_, err := w.engine.PostDocument(ctx, req)
	require.NoError(t, err)

	reconciled, err := w.engine.ReconcileDocument(ctx, ledger.ReferenceInvoice, req.DocumentID)
	require.NoError(t, err)
	assert.True(t, reconciled.IsReconciled)

	// Idempotent through the engine as well.
	reconciled, err = w.engine.ReconcileDocument(ctx, ledger.ReferenceInvoice, req.DocumentID)
	require.NoError(t, err)
	assert.True(t, reconciled.IsReconciled)
}

func eventIndex(events []string, event string) int {
	for i, e := range events {
		if e == event {
			return i
		}
	}
	return -1
}

func TestPostDocumentLocksItemBeforeAllocating(t *testing.T) {
	w := newWorld()
	ctx := testCtx()

	item := id.New()
	w.seed(item, w.main, qty(5))

	_, err := w.engine.PostDocument(ctx, invoiceRequest(item, qty(2)))
	require.NoError(t, err)

	// The item lock must be held before the balance snapshot is taken and
	// until the movements are appended, so two postings of the same item
	// cannot both allocate against the same snapshot.
	lock := eventIndex(w.stockRepo.events, "lock:"+item.String())
	balances := eventIndex(w.stockRepo.events, "balances:"+item.String())
	appendIdx := eventIndex(w.stockRepo.events, "append")
	require.NotEqual(t, -1, lock)
	require.NotEqual(t, -1, balances)
	require.NotEqual(t, -1, appendIdx)
	assert.Less(t, lock, balances)
	assert.Less(t, balances, appendIdx)
}

func TestRestoreStockLocksItemsBeforeNetting(t *testing.T) {
	w := newWorld()
	ctx := testCtx()

	item := id.New()
	w.seed(item, w.main, qty(10))

	req := invoiceRequest(item, qty(4))
	_, err := w.engine.PostDocument(ctx, req)
	require.NoError(t, err)

	w.stockRepo.events = nil
	_, err = w.engine.RestoreStock(ctx, req.DocumentID)
	require.NoError(t, err)

	// The net must be computed from a read taken after the item lock, so a
	// restore that committed while we waited on the lock is included and the
	// loser of a restore race writes nothing.
	lock := eventIndex(w.stockRepo.events, "lock:"+item.String())
	require.NotEqual(t, -1, lock)
	lastRead := -1
	for i, e := range w.stockRepo.events {
		if e == "read:"+req.DocumentID.String() {
			lastRead = i
		}
	}
	require.NotEqual(t, -1, lastRead)
	assert.Less(t, lock, lastRead)
	assert.Less(t, lastRead, eventIndex(w.stockRepo.events, "append"))
}

func TestAllocateStockPreviewTakesNoLocks(t *testing.T) {
	w := newWorld()
	ctx := testCtx()

	item := id.New()
	w.seed(item, w.main, qty(5))

	_, err := w.engine.AllocateStock(ctx, []StockLine{{ItemID: item, Quantity: qty(2)}})
	require.NoError(t, err)

	assert.Equal(t, -1, eventIndex(w.stockRepo.events, "lock:"+item.String()))
}

func TestAllocateStockPreviewWritesNothing(t *testing.T) {
	w := newWorld()
	ctx := testCtx()

	item := id.New()
	w.seed(item, w.main, qty(5))
	w.seed(item, w.whA, qty(3))
	before := len(w.stockRepo.movements)

	plans, err := w.engine.AllocateStock(ctx, []StockLine{{ItemID: item, Quantity: qty(10)}})
	require.NoError(t, err)
	require.Len(t, plans, 1)
	require.Len(t, plans[0].Lines, 2)
	assert.Equal(t, qty(5), plans[0].Lines[0].Quantity)
	assert.Equal(t, qty(5), plans[0].Lines[1].Quantity)

	assert.Len(t, w.stockRepo.movements, before)
	assert.Empty(t, w.ledgerRepo.transactions)
}
