package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"tradeledger/internal/core/apperror"
	"tradeledger/internal/domain/ledger"
	"tradeledger/internal/infrastructure/http/v1/dto"
)

// JournalHandler reads the accounting journal and the chart of accounts.
type JournalHandler struct {
	*BaseHandler
	ledger *ledger.Service
	now    func() time.Time
}

func NewJournalHandler(base *BaseHandler, journal *ledger.Service) *JournalHandler {
	return &JournalHandler{BaseHandler: base, ledger: journal, now: time.Now}
}

// Entries handles GET /journal/entries?reference=.
func (h *JournalHandler) Entries(c *gin.Context) {
	ref := c.Query("reference")
	if ref == "" {
		h.Error(c, apperror.NewValidation("reference is required"))
		return
	}
	entries, err := h.ledger.EntriesByReference(c.Request.Context(), ref)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, "", dto.FromEntries(ref, entries))
}

// Verify handles GET /journal/verify?from=&to=. Unbalanced batches answer
// with a consistency error listing them.
func (h *JournalHandler) Verify(c *gin.Context) {
	from, err := dto.ParseDate(c.Query("from"))
	if err != nil {
		h.Error(c, apperror.NewValidation(err.Error()))
		return
	}
	to, err := dto.ParseDate(c.Query("to"))
	if err != nil {
		h.Error(c, apperror.NewValidation(err.Error()))
		return
	}
	if to.IsZero() {
		to = h.now().UTC()
	}
	if to.Before(from) {
		h.Error(c, apperror.NewValidation("from must not be after to"))
		return
	}

	report, err := h.ledger.VerifyBalance(c.Request.Context(), from, to)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, "journal balanced", report)
}

// Accounts handles GET /accounts.
func (h *JournalHandler) Accounts(c *gin.Context) {
	accounts, err := h.ledger.Accounts(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}
	if accounts == nil {
		accounts = []ledger.Account{}
	}
	h.OK(c, "", accounts)
}

// UpsertAccount handles PUT /accounts.
func (h *JournalHandler) UpsertAccount(c *gin.Context) {
	var req dto.AccountRequest
	if !h.BindJSON(c, &req) {
		return
	}
	account := req.ToDomain()
	if err := h.ledger.UpsertAccount(c.Request.Context(), account); err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, "account saved", account)
}
