package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"tally/internal/core/apperror"
	"tally/internal/core/id"
	"tally/internal/domain/documents"
	"tally/internal/domain/ledger"
	"tally/internal/domain/posting"
	"tally/internal/infrastructure/http/v1/dto"
)

// AuditReader reconstructs the posting snapshots recorded for a document.
type AuditReader interface {
	ByDocument(ctx context.Context, documentID id.ID) ([]posting.AuditRecord, error)
}

// DocumentHandler handles document lifecycle transitions: the outer
// application (invoicing, payments, bank import) drives postings through
// these endpoints.
type DocumentHandler struct {
	*BaseHandler
	dispatcher *documents.Dispatcher
	audit      AuditReader
}

// NewDocumentHandler creates a new document handler.
func NewDocumentHandler(base *BaseHandler, dispatcher *documents.Dispatcher, audit AuditReader) *DocumentHandler {
	return &DocumentHandler{BaseHandler: base, dispatcher: dispatcher, audit: audit}
}

// Post handles a committed document: ledger posting plus stock allocation in
// one atomic unit.
// POST /documents/post
func (h *DocumentHandler) Post(c *gin.Context) {
	var req dto.PostDocumentRequest
	if !h.BindJSON(c, &req) {
		return
	}

	docID, err := id.Parse(req.DocumentID)
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid document id"))
		return
	}

	entries := make([]ledger.EntryInput, 0, len(req.Entries))
	for i, e := range req.Entries {
		accountID, err := id.Parse(e.AccountID)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid account id").WithDetail("lineNo", i+1))
			return
		}
		entries = append(entries, ledger.EntryInput{
			AccountID:   accountID,
			AccountCode: e.AccountCode,
			AccountName: e.AccountName,
			Debit:       e.Debit,
			Credit:      e.Credit,
		})
	}

	stockLines, ok := h.parseStockLines(c, req.StockLines)
	if !ok {
		return
	}

	result, err := h.dispatcher.PostDocument(c.Request.Context(), documents.Document{
		ID:         docID,
		Kind:       ledger.ReferenceType(req.Kind),
		Date:       req.Date,
		Entries:    entries,
		StockLines: stockLines,
	})
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, result)
}

// Reverse handles a cancelled document: ledger reversal plus stock restore.
// POST /documents/:id/reverse
func (h *DocumentHandler) Reverse(c *gin.Context) {
	docID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid document id"))
		return
	}

	var req dto.ReverseDocumentRequest
	if !h.BindJSON(c, &req) {
		return
	}

	result, err := h.dispatcher.ReverseDocument(c.Request.Context(), ledger.ReferenceType(req.Kind), docID, req.Reason)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, result)
}

// Reconcile handles an externally matched document.
// POST /documents/:id/reconcile
func (h *DocumentHandler) Reconcile(c *gin.Context) {
	docID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid document id"))
		return
	}

	var req dto.ReconcileDocumentRequest
	if !h.BindJSON(c, &req) {
		return
	}

	t, err := h.dispatcher.ReconcileDocument(c.Request.Context(), ledger.ReferenceType(req.Kind), docID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, t)
}

// RestoreStock compensates a document's outstanding movements without a
// ledger reversal.
// POST /documents/:id/restore-stock
func (h *DocumentHandler) RestoreStock(c *gin.Context) {
	docID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid document id"))
		return
	}

	movements, err := h.dispatcher.RestoreStock(c.Request.Context(), docID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, gin.H{"movements": movements})
}

// AllocationPreview previews the warehouse split for the given demand
// without writing anything.
// POST /documents/allocation-preview
func (h *DocumentHandler) AllocationPreview(c *gin.Context) {
	var req dto.AllocationPreviewRequest
	if !h.BindJSON(c, &req) {
		return
	}

	lines, ok := h.parseStockLines(c, req.Lines)
	if !ok {
		return
	}
	if len(lines) == 0 {
		h.Error(c, apperror.NewValidation("at least one line is required"))
		return
	}

	plans, err := h.dispatcher.AllocateStock(c.Request.Context(), lines)
	if err != nil {
		h.Error(c, err)
		return
	}

	items := make([]gin.H, len(plans))
	for i, plan := range plans {
		items[i] = gin.H{
			"itemId": lines[i].ItemID.String(),
			"plan":   plan,
		}
	}
	h.OK(c, gin.H{"items": items})
}

func (h *DocumentHandler) parseStockLines(c *gin.Context, raw []dto.StockLineRequest) ([]posting.StockLine, bool) {
	lines := make([]posting.StockLine, 0, len(raw))
	for i, l := range raw {
		itemID, err := id.Parse(l.ItemID)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid item id").WithDetail("lineNo", i+1))
			return nil, false
		}
		lines = append(lines, posting.StockLine{
			ItemID:   itemID,
			Quantity: l.Quantity,
		})
	}
	return lines, true
}

// Audit returns every posting snapshot recorded for a document, oldest
// first: exactly which ledger entries and stock movements each transition
// wrote.
// GET /documents/:id/audit
func (h *DocumentHandler) Audit(c *gin.Context) {
	docID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid document id"))
		return
	}

	records, err := h.audit.ByDocument(c.Request.Context(), docID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, gin.H{"records": records})
}

// RegisterRoutes registers document lifecycle routes.
func (h *DocumentHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/post", h.Post)
	rg.POST("/allocation-preview", h.AllocationPreview)
	rg.POST("/:id/reverse", h.Reverse)
	rg.POST("/:id/reconcile", h.Reconcile)
	rg.POST("/:id/restore-stock", h.RestoreStock)
	rg.GET("/:id/audit", h.Audit)
}
