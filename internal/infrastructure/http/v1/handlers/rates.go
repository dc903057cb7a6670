package handlers

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"tradeledger/internal/core/apperror"
	"tradeledger/internal/domain/currency"
	"tradeledger/internal/infrastructure/http/v1/dto"
)

// RateHandler administers exchange rates.
type RateHandler struct {
	*BaseHandler
	rates *currency.Service
	now   func() time.Time
}

func NewRateHandler(base *BaseHandler, rates *currency.Service) *RateHandler {
	return &RateHandler{BaseHandler: base, rates: rates, now: time.Now}
}

// List handles GET /rates?source=&target=&active=&limit=.
func (h *RateHandler) List(c *gin.Context) {
	filter := currency.ListFilter{
		Source: c.Query("source"),
		Target: c.Query("target"),
	}
	if v := c.Query("active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			h.Error(c, apperror.NewValidation("active must be a boolean"))
			return
		}
		filter.ActiveOnly = active
	}
	if v := c.Query("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			h.Error(c, apperror.NewValidation("limit must be a positive integer"))
			return
		}
		filter.Limit = limit
	}

	rates, err := h.rates.ListRates(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	if rates == nil {
		rates = []currency.ExchangeRate{}
	}
	h.OK(c, "", rates)
}

// Upsert handles PUT /rates.
func (h *RateHandler) Upsert(c *gin.Context) {
	var req dto.RateRequest
	if !h.BindJSON(c, &req) {
		return
	}
	rate, err := decimal.NewFromString(req.Rate)
	if err != nil {
		h.Error(c, apperror.NewValidation("rate must be a decimal").WithDetail("rate", req.Rate))
		return
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}

	saved, err := h.rates.UpsertRate(c.Request.Context(), currency.ExchangeRate{
		Source:        req.Source,
		Target:        req.Target,
		Rate:          rate,
		EffectiveDate: req.EffectiveDate.Time,
		Active:        active,
	})
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, "rate saved", saved)
}

// Convert handles GET /rates/convert?amount=&from=&to=&date=. The date
// defaults to today.
func (h *RateHandler) Convert(c *gin.Context) {
	amount, err := decimal.NewFromString(c.Query("amount"))
	if err != nil {
		h.Error(c, apperror.NewValidation("amount must be a decimal").WithDetail("amount", c.Query("amount")))
		return
	}
	date, err := dto.ParseDate(c.Query("date"))
	if err != nil {
		h.Error(c, apperror.NewValidation(err.Error()))
		return
	}
	if date.IsZero() {
		date = h.now().UTC()
	}

	converted, quote, err := h.rates.Convert(c.Request.Context(), amount, c.Query("from"), c.Query("to"), date)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, "", dto.ConvertResponse{
		Amount:    amount.String(),
		Converted: converted.StringFixed(2),
		Quote:     quote,
	})
}
