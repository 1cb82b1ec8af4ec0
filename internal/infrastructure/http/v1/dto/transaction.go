package dto

import (
	"time"

	"tally/internal/core/types"
)

// EntryRequest is one journal line in a draft.
type EntryRequest struct {
	AccountID   string      `json:"accountId" binding:"required"`
	AccountCode string      `json:"accountCode"`
	AccountName string      `json:"accountName"`
	Debit       types.Money `json:"debit"`
	Credit      types.Money `json:"credit"`
}

// CreateTransactionRequest creates a draft transaction.
type CreateTransactionRequest struct {
	Date          time.Time      `json:"date"`
	ReferenceType string         `json:"referenceType" binding:"required"`
	ReferenceID   string         `json:"referenceId"`
	Entries       []EntryRequest `json:"entries" binding:"required"`
}

// ReverseTransactionRequest carries the operator note for a reversal.
type ReverseTransactionRequest struct {
	Reason string `json:"reason"`
}

// TransactionListQuery filters the transaction list.
type TransactionListQuery struct {
	ListQuery
	ReferenceType string `form:"referenceType"`
	ReferenceID   string `form:"referenceId"`
	Status        string `form:"status"`
	Reconciled    *bool  `form:"reconciled"`
	DateFrom      string `form:"dateFrom" time_format:"2006-01-02"`
	DateTo        string `form:"dateTo" time_format:"2006-01-02"`
	Search        string `form:"search"`
}
