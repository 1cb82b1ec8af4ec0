// Package ledger provides the double-entry transaction ledger.
// Transactions move draft -> posted -> reversed; posted rows are immutable
// except for the reversal linkage and the reconciliation flag.
package ledger

import (
	"context"
	"time"

	"tally/internal/core/apperror"
	"tally/internal/core/entity"
	"tally/internal/core/id"
	"tally/internal/core/types"
)

// Status is the lifecycle state of a transaction.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusPosted   Status = "posted"
	StatusReversed Status = "reversed"
)

// ReferenceType names the document kind a transaction was posted for.
type ReferenceType string

const (
	ReferenceInvoice         ReferenceType = "invoice"
	ReferencePayment         ReferenceType = "payment"
	ReferenceManual          ReferenceType = "manual"
	ReferenceBankImport      ReferenceType = "bank_import"
	ReferenceOpeningBalance  ReferenceType = "opening_balance"
	ReferenceTransfer        ReferenceType = "transfer"
	ReferenceCheque          ReferenceType = "cheque"
	ReferencePurchaseOrder   ReferenceType = "purchase_order"
	ReferenceSalesOrder      ReferenceType = "sales_order"
	ReferencePurchaseInvoice ReferenceType = "purchase_invoice"
)

// IsValid reports whether the reference type is known.
func (r ReferenceType) IsValid() bool {
	switch r {
	case ReferenceInvoice, ReferencePayment, ReferenceManual, ReferenceBankImport,
		ReferenceOpeningBalance, ReferenceTransfer, ReferenceCheque,
		ReferencePurchaseOrder, ReferenceSalesOrder, ReferencePurchaseInvoice:
		return true
	}
	return false
}

// MovesInventory reports whether committing a document of this kind
// implies stock movements (gated further by the auto_reduce_stock setting).
func (r ReferenceType) MovesInventory() bool {
	return r == ReferenceInvoice
}

// Transaction is a journal posting.
//
// Invariants:
//   - total_debit == total_credit for any posted transaction, enforced at post
//     time from the entry set (client-supplied totals are never trusted).
//   - A posted transaction is never mutated or deleted; a reversal inserts an
//     offsetting transaction and records the linkage on the original.
//   - At most one reversal per transaction (reversed_by_id set once).
type Transaction struct {
	entity.BaseRecord

	// CompanyID is the owning tenant
	CompanyID string `db:"company_id" json:"companyId"`

	// Number is unique and sequential per company (TXN-2026-00042)
	Number string `db:"number" json:"number"`

	// Date is the business date of the posting
	Date time.Time `db:"date" json:"date"`

	ReferenceType ReferenceType `db:"reference_type" json:"referenceType"`
	ReferenceID   string        `db:"reference_id" json:"referenceId,omitempty"`

	Status       Status `db:"status" json:"status"`
	IsReconciled bool   `db:"is_reconciled" json:"isReconciled"`

	// ReversedByID points to the offsetting transaction, once reversed
	ReversedByID *id.ID `db:"reversed_by_id" json:"reversedById,omitempty"`

	// ReversalReason is an optional operator note captured at reversal time
	ReversalReason string `db:"reversal_reason" json:"reversalReason,omitempty"`

	// Totals are recomputed from entries at post time
	TotalDebit  types.Money `db:"total_debit" json:"totalDebit"`
	TotalCredit types.Money `db:"total_credit" json:"totalCredit"`

	// Entries are the journal lines (owned by exactly this transaction)
	Entries []Entry `db:"-" json:"entries"`
}

// Entry is one line of a transaction. Exactly one of Debit/Credit is non-zero.
// Entries are immutable once their parent transaction is posted.
type Entry struct {
	ID            id.ID `db:"id" json:"id"`
	TransactionID id.ID `db:"transaction_id" json:"transactionId"`
	LineNo        int   `db:"line_no" json:"lineNo"`

	AccountID id.ID `db:"account_id" json:"accountId"`
	// Denormalized for display; accounts are referenced, never owned
	AccountCode string `db:"account_code" json:"accountCode,omitempty"`
	AccountName string `db:"account_name" json:"accountName,omitempty"`

	Debit  types.Money `db:"debit" json:"debit"`
	Credit types.Money `db:"credit" json:"credit"`
}

// EntryInput is the caller-supplied shape of a journal line.
type EntryInput struct {
	AccountID   id.ID       `json:"accountId"`
	AccountCode string      `json:"accountCode,omitempty"`
	AccountName string      `json:"accountName,omitempty"`
	Debit       types.Money `json:"debit"`
	Credit      types.Money `json:"credit"`
}

// DraftInput is the request shape for creating a draft transaction.
type DraftInput struct {
	Date          time.Time
	ReferenceType ReferenceType
	ReferenceID   string
	Entries       []EntryInput
}

// NewTransaction creates a draft transaction for a company.
func NewTransaction(companyID string, in DraftInput) *Transaction {
	t := &Transaction{
		BaseRecord:    entity.NewBaseRecord(),
		CompanyID:     companyID,
		Date:          in.Date,
		ReferenceType: in.ReferenceType,
		ReferenceID:   in.ReferenceID,
		Status:        StatusDraft,
		TotalDebit:    types.ZeroMoney(),
		TotalCredit:   types.ZeroMoney(),
	}
	if t.Date.IsZero() {
		t.Date = time.Now().UTC()
	}
	for i, e := range in.Entries {
		t.Entries = append(t.Entries, Entry{
			ID:            id.New(),
			TransactionID: t.ID,
			LineNo:        i + 1,
			AccountID:     e.AccountID,
			AccountCode:   e.AccountCode,
			AccountName:   e.AccountName,
			Debit:         e.Debit,
			Credit:        e.Credit,
		})
	}
	return t
}

// Validate checks draft invariants. Balance is NOT required here: drafts may
// be unbalanced while being edited; balance is enforced at post time only.
func (t *Transaction) Validate(ctx context.Context) error {
	if t.CompanyID == "" {
		return apperror.NewValidation("company is required").
			WithDetail("field", "companyId")
	}
	if !t.ReferenceType.IsValid() {
		return apperror.NewValidation("unknown reference type").
			WithDetail("field", "referenceType").
			WithDetail("value", string(t.ReferenceType))
	}
	if len(t.Entries) == 0 {
		return apperror.NewValidation("at least one entry is required").
			WithDetail("field", "entries")
	}
	for _, e := range t.Entries {
		if err := e.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks the one-sided entry rule: exactly one of debit/credit is
// non-zero, and neither is negative.
func (e *Entry) Validate() error {
	if id.IsNil(e.AccountID) {
		return apperror.NewValidation("account is required").
			WithDetail("field", "accountId").
			WithDetail("lineNo", e.LineNo)
	}
	if e.Debit.IsNegative() || e.Credit.IsNegative() {
		return apperror.NewValidation("entry amounts must not be negative").
			WithDetail("lineNo", e.LineNo)
	}
	debitSet := !e.Debit.IsZero()
	creditSet := !e.Credit.IsZero()
	if debitSet == creditSet {
		return apperror.NewValidation("entry must have exactly one of debit or credit").
			WithDetail("lineNo", e.LineNo)
	}
	return nil
}

// EntryTotals sums the entry set.
func (t *Transaction) EntryTotals() (debit, credit types.Money) {
	debit, credit = types.ZeroMoney(), types.ZeroMoney()
	for _, e := range t.Entries {
		debit = debit.Add(e.Debit)
		credit = credit.Add(e.Credit)
	}
	return debit, credit
}

// IsBalanced reports whether debits equal credits across the entry set.
func (t *Transaction) IsBalanced() bool {
	debit, credit := t.EntryTotals()
	return debit.Equal(credit)
}

// MirrorEntries returns the entry set with debit and credit swapped,
// attached to the given reversing transaction.
func (t *Transaction) MirrorEntries(reversalID id.ID) []Entry {
	mirrored := make([]Entry, len(t.Entries))
	for i, e := range t.Entries {
		mirrored[i] = Entry{
			ID:            id.New(),
			TransactionID: reversalID,
			LineNo:        e.LineNo,
			AccountID:     e.AccountID,
			AccountCode:   e.AccountCode,
			AccountName:   e.AccountName,
			Debit:         e.Credit,
			Credit:        e.Debit,
		}
	}
	return mirrored
}
