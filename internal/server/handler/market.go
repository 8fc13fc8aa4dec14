package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/predictcore/lmsrd/internal/domain"
	"github.com/predictcore/lmsrd/internal/lmsr"
	"github.com/predictcore/lmsrd/internal/service"
)

// MarketService defines the methods that the market handler requires from the
// service layer. It is declared locally so the handler package does not depend
// on the concrete service implementation.
type MarketService interface {
	Create(ctx context.Context, p service.CreateParams) (domain.Market, error)
	Get(ctx context.Context, id string) (domain.Market, error)
	List(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error)
	Count(ctx context.Context) (int64, error)
	Prices(ctx context.Context, id string) (domain.PriceSnapshot, error)
}

// MarketHandler serves market-related HTTP endpoints.
type MarketHandler struct {
	markets MarketService
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler with the given service and logger.
func NewMarketHandler(markets MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		markets: markets,
		logger:  logger,
	}
}

// marketView is the JSON shape of a market. The fixed-size state arrays are
// trimmed to the active outcome count on the way out.
type marketView struct {
	ID          string    `json:"id"`
	Label       string    `json:"label"`
	Admin       string    `json:"admin,omitempty"`
	Status      string    `json:"status"`
	Scale       uint64    `json:"scale"`
	NumOutcomes int       `json:"num_outcomes"`
	Reserves    []uint64  `json:"reserves"`
	Supplies    []uint64  `json:"supplies"`
	ResolveAt   time.Time `json:"resolve_at"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func viewOf(m domain.Market) marketView {
	n := int(m.State.NumOutcomes)
	return marketView{
		ID:          m.ID,
		Label:       m.Label,
		Admin:       m.Admin,
		Status:      string(m.Status),
		Scale:       m.State.Scale,
		NumOutcomes: n,
		Reserves:    append([]uint64(nil), m.State.Reserves[:n]...),
		Supplies:    append([]uint64(nil), m.State.Supplies[:n]...),
		ResolveAt:   m.ResolveAt,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

// createMarketRequest is the POST /api/markets payload.
type createMarketRequest struct {
	Label     string    `json:"label"`
	Admin     string    `json:"admin"`
	Outcomes  uint8     `json:"outcomes"`
	Scale     uint64    `json:"scale"`
	ResolveAt time.Time `json:"resolve_at"`
}

// CreateMarket creates a new market with a fresh all-zero state.
// POST /api/markets
func (h *MarketHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var req createMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	m, err := h.markets.Create(r.Context(), service.CreateParams{
		Label:     req.Label,
		Admin:     req.Admin,
		Outcomes:  req.Outcomes,
		Scale:     req.Scale,
		ResolveAt: req.ResolveAt,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidLabel),
			errors.Is(err, domain.ErrResolveTime),
			errors.Is(err, lmsr.ErrTooManyOutcomes),
			errors.Is(err, lmsr.ErrNotEnoughOutcomes),
			errors.Is(err, lmsr.ErrScaleIsZero):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			h.logger.ErrorContext(r.Context(), "handler: create market failed",
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to create market")
		}
		return
	}

	writeJSON(w, http.StatusCreated, viewOf(m))
}

// listMarketsResponse wraps the list endpoint output with metadata.
type listMarketsResponse struct {
	Markets []marketView `json:"markets"`
	Total   int64        `json:"total"`
	Limit   int          `json:"limit"`
	Offset  int          `json:"offset"`
}

// ListMarkets returns markets with pagination.
// GET /api/markets?limit=50&offset=0
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	markets, err := h.markets.List(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list markets failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list markets")
		return
	}

	total, err := h.markets.Count(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: count markets failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to count markets")
		return
	}

	views := make([]marketView, len(markets))
	for i, m := range markets {
		views[i] = viewOf(m)
	}

	writeJSON(w, http.StatusOK, listMarketsResponse{
		Markets: views,
		Total:   total,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	})
}

// GetMarket returns a single market by its ID.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	market, err := h.markets.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "market not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get market failed",
			slog.String("market_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get market")
		return
	}

	writeJSON(w, http.StatusOK, viewOf(market))
}

// pricesResponse is the GET prices payload.
type pricesResponse struct {
	MarketID string    `json:"market_id"`
	Prices   []uint64  `json:"prices"`
	Cost     uint64    `json:"cost"`
	TakenAt  time.Time `json:"taken_at"`
}

// GetPrices returns the cached (or freshly computed) price snapshot.
// GET /api/markets/{id}/prices
func (h *MarketHandler) GetPrices(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	snap, err := h.markets.Prices(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "market not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get prices failed",
			slog.String("market_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get prices")
		return
	}

	writeJSON(w, http.StatusOK, pricesResponse{
		MarketID: id,
		Prices:   snap.Prices,
		Cost:     snap.Cost,
		TakenAt:  snap.TakenAt,
	})
}

// priceResponse is the single-outcome GET price payload.
type priceResponse struct {
	MarketID string    `json:"market_id"`
	Outcome  int       `json:"outcome"`
	Price    uint64    `json:"price"`
	TakenAt  time.Time `json:"taken_at"`
}

// GetPrice returns the price of a single outcome.
// GET /api/markets/{id}/price/{index}
func (h *MarketHandler) GetPrice(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	index, err := strconv.Atoi(pathParam(r, "index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid outcome index")
		return
	}

	snap, err := h.markets.Prices(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "market not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get price failed",
			slog.String("market_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get price")
		return
	}

	if index < 0 || index >= len(snap.Prices) {
		writeError(w, http.StatusUnprocessableEntity, lmsr.ErrInvalidOutcomeIndex.Error())
		return
	}

	writeJSON(w, http.StatusOK, priceResponse{
		MarketID: id,
		Outcome:  index,
		Price:    snap.Prices[index],
		TakenAt:  snap.TakenAt,
	})
}
