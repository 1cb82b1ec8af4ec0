package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"tally/internal/core/apperror"
	"tally/internal/core/id"
	"tally/internal/domain/ledger"
	"tally/internal/infrastructure/http/v1/dto"
)

// TransactionHandler handles HTTP requests for ledger transactions.
type TransactionHandler struct {
	*BaseHandler
	service *ledger.Service
}

// NewTransactionHandler creates a new transaction handler.
func NewTransactionHandler(base *BaseHandler, service *ledger.Service) *TransactionHandler {
	return &TransactionHandler{BaseHandler: base, service: service}
}

// Create creates a draft transaction.
// POST /transactions
func (h *TransactionHandler) Create(c *gin.Context) {
	var req dto.CreateTransactionRequest
	if !h.BindJSON(c, &req) {
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

	t, err := h.service.CreateDraft(c.Request.Context(), ledger.DraftInput{
		Date:          req.Date,
		ReferenceType: ledger.ReferenceType(req.ReferenceType),
		ReferenceID:   req.ReferenceID,
		Entries:       entries,
	})
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, t.ID.String())
}

// Get retrieves a transaction with entries.
// GET /transactions/:id
func (h *TransactionHandler) Get(c *gin.Context) {
	txID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	t, err := h.service.GetByID(c.Request.Context(), txID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, t)
}

// List retrieves transactions with filtering.
// GET /transactions
func (h *TransactionHandler) List(c *gin.Context) {
	var q dto.TransactionListQuery
	if !h.BindQuery(c, &q) {
		return
	}

	filter := ledger.ListFilter{
		Search:     q.Search,
		Reconciled: q.Reconciled,
		Limit:      q.Limit,
		Offset:     q.Offset,
	}
	if q.ReferenceType != "" {
		rt := ledger.ReferenceType(q.ReferenceType)
		filter.ReferenceType = &rt
	}
	if q.ReferenceID != "" {
		filter.ReferenceID = &q.ReferenceID
	}
	if q.Status != "" {
		st := ledger.Status(q.Status)
		filter.Status = &st
	}
	if q.DateFrom != "" {
		if parsed, err := time.Parse("2006-01-02", q.DateFrom); err == nil {
			filter.DateFrom = &parsed
		}
	}
	if q.DateTo != "" {
		if parsed, err := time.Parse("2006-01-02", q.DateTo); err == nil {
			filter.DateTo = &parsed
		}
	}

	result, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, result)
}

// Post flips a draft to posted.
// POST /transactions/:id/post
func (h *TransactionHandler) Post(c *gin.Context) {
	txID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	t, err := h.service.Post(c.Request.Context(), txID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, t)
}

// Reverse creates an offsetting transaction and marks the original reversed.
// POST /transactions/:id/reverse
func (h *TransactionHandler) Reverse(c *gin.Context) {
	txID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	var req dto.ReverseTransactionRequest
	if c.Request.ContentLength > 0 && !h.BindJSON(c, &req) {
		return
	}

	reversal, err := h.service.Reverse(c.Request.Context(), txID, req.Reason)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, reversal)
}

// Reconcile marks a posted transaction as externally matched.
// POST /transactions/:id/reconcile
func (h *TransactionHandler) Reconcile(c *gin.Context) {
	txID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	t, err := h.service.Reconcile(c.Request.Context(), txID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, t)
}

// Delete removes a draft transaction.
// DELETE /transactions/:id
func (h *TransactionHandler) Delete(c *gin.Context) {
	txID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	if err := h.service.DeleteDraft(c.Request.Context(), txID); err != nil {
		h.Error(c, err)
		return
	}
	h.NoContent(c)
}

// RegisterRoutes registers transaction routes.
func (h *TransactionHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.POST("", h.Create)
	rg.GET("/:id", h.Get)
	rg.DELETE("/:id", h.Delete)
	rg.POST("/:id/post", h.Post)
	rg.POST("/:id/reverse", h.Reverse)
	rg.POST("/:id/reconcile", h.Reconcile)
}
