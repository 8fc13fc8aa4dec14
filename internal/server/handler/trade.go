package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/predictcore/lmsrd/internal/domain"
	"github.com/predictcore/lmsrd/internal/lmsr"
)

// TradeService defines the methods that the trade handler requires from the
// service layer.
type TradeService interface {
	Buy(ctx context.Context, marketID string, outcome int, amountIn uint64) (domain.Trade, error)
	Quote(ctx context.Context, marketID string) (domain.Quote, error)
	ListTrades(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Trade, error)
}

// TradeHandler serves trade execution and quoting endpoints.
type TradeHandler struct {
	trades TradeService
	logger *slog.Logger
}

// NewTradeHandler creates a TradeHandler with the given service and logger.
func NewTradeHandler(trades TradeService, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{
		trades: trades,
		logger: logger,
	}
}

// buyRequest is the POST buy payload. Amount is in the settlement asset's
// smallest unit.
type buyRequest struct {
	Outcome  int    `json:"outcome"`
	AmountIn uint64 `json:"amount_in"`
}

// tradeView is the JSON shape of a journaled trade.
type tradeView struct {
	ID         string    `json:"id"`
	MarketID   string    `json:"market_id"`
	Outcome    int       `json:"outcome"`
	AmountIn   uint64    `json:"amount_in"`
	SharesOut  uint64    `json:"shares_out"`
	PriceAfter uint64    `json:"price_after"`
	CostAfter  uint64    `json:"cost_after"`
	CreatedAt  time.Time `json:"created_at"`
}

func tradeViewOf(t domain.Trade) tradeView {
	return tradeView{
		ID:         t.ID,
		MarketID:   t.MarketID,
		Outcome:    t.Outcome,
		AmountIn:   t.AmountIn,
		SharesOut:  t.SharesOut,
		PriceAfter: t.PriceAfter,
		CostAfter:  t.CostAfter,
		CreatedAt:  t.CreatedAt,
	}
}

// Buy executes a purchase on a market outcome.
// POST /api/markets/{id}/buy
func (h *TradeHandler) Buy(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	var req buyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	trade, err := h.trades.Buy(r.Context(), id, req.Outcome, req.AmountIn)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "market not found")
		case errors.Is(err, domain.ErrMarketExpired):
			writeError(w, http.StatusConflict, "market trading window has closed")
		case errors.Is(err, lmsr.ErrInvalidOutcomeIndex),
			errors.Is(err, lmsr.ErrDepositIsZero):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		case errors.Is(err, lmsr.ErrMathOverflow):
			writeError(w, http.StatusUnprocessableEntity, "trade exceeds numeric range")
		default:
			h.logger.ErrorContext(r.Context(), "handler: buy failed",
				slog.String("market_id", id),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to execute trade")
		}
		return
	}

	writeJSON(w, http.StatusCreated, tradeViewOf(trade))
}

// quoteResponse is the GET quote payload.
type quoteResponse struct {
	MarketID string    `json:"market_id"`
	Cost     uint64    `json:"cost"`
	Prices   []uint64  `json:"prices"`
	PriceSum uint64    `json:"price_sum"`
	TakenAt  time.Time `json:"taken_at"`
}

// Quote returns a read-only cost and price snapshot.
// GET /api/markets/{id}/quote
func (h *TradeHandler) Quote(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	quote, err := h.trades.Quote(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "market not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: quote failed",
			slog.String("market_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to quote market")
		return
	}

	writeJSON(w, http.StatusOK, quoteResponse{
		MarketID: quote.MarketID,
		Cost:     quote.Cost,
		Prices:   quote.Prices,
		PriceSum: quote.PriceSum,
		TakenAt:  quote.TakenAt,
	})
}

// listTradesResponse wraps the trade journal output.
type listTradesResponse struct {
	Trades []tradeView `json:"trades"`
	Limit  int         `json:"limit"`
	Offset int         `json:"offset"`
}

// ListTrades returns the trade journal for a market, newest first.
// GET /api/markets/{id}/trades
func (h *TradeHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	opts := parseListOpts(r)
	trades, err := h.trades.ListTrades(r.Context(), id, opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list trades failed",
			slog.String("market_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list trades")
		return
	}

	views := make([]tradeView, len(trades))
	for i, t := range trades {
		views[i] = tradeViewOf(t)
	}

	writeJSON(w, http.StatusOK, listTradesResponse{
		Trades: views,
		Limit:  opts.Limit,
		Offset: opts.Offset,
	})
}
