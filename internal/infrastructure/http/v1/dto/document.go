package dto

import (
	"time"
)

// PostDocumentRequest is a document transition that needs a posting.
type PostDocumentRequest struct {
	DocumentID string             `json:"documentId" binding:"required"`
	Kind       string             `json:"kind" binding:"required"`
	Date       time.Time          `json:"date"`
	Entries    []EntryRequest     `json:"entries" binding:"required"`
	StockLines []StockLineRequest `json:"stockLines"`
}

// ReverseDocumentRequest reverses a document's active posting.
type ReverseDocumentRequest struct {
	Kind   string `json:"kind" binding:"required"`
	Reason string `json:"reason"`
}

// ReconcileDocumentRequest reconciles a document's active posting.
type ReconcileDocumentRequest struct {
	Kind string `json:"kind" binding:"required"`
}
