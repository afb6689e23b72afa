package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/quantsource/internal/contracts"
	"github.com/wonny/quantsource/pkg/logger"
	"github.com/wonny/quantsource/pkg/redis"
)

// SpliceResponse is one splice adjustment in API responses
type SpliceResponse struct {
	Date           string  `json:"date"`
	CumulativeDiff float64 `json:"cumulative_diff"`
}

// SpliceHandler serves continuous-futures splice series
type SpliceHandler struct {
	store  contracts.SpliceStore
	cache  *redis.Cache
	ttl    time.Duration
	logger *logger.Logger
}

// NewSpliceHandler creates a new splice handler
func NewSpliceHandler(store contracts.SpliceStore, cache *redis.Cache, ttl time.Duration, log *logger.Logger) *SpliceHandler {
	return &SpliceHandler{
		store:  store,
		cache:  cache,
		ttl:    ttl,
		logger: log.WithField("handler", "splice"),
	}
}

// GetSymbols lists continuous symbols with roll history
// GET /api/splice
func (h *SpliceHandler) GetSymbols(w http.ResponseWriter, r *http.Request) {
	symbols, err := h.store.ContinuousSymbols(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to list continuous symbols")
		respondError(w, http.StatusInternalServerError, "Failed to list symbols")
		return
	}
	if symbols == nil {
		symbols = []string{}
	}
	respondData(w, symbols)
}

// GetSplice returns the cumulative roll adjustment series of a symbol
// GET /api/splice/{symbol}?from=2024-01-02&to=2024-06-28
func (h *SpliceHandler) GetSplice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	symbol := mux.Vars(r)["symbol"]

	from, to, err := dateRange(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	series, err := cached(ctx, h.cache, redis.SpliceKey(symbol), h.ttl, func() ([]SpliceResponse, error) {
		adjustments, err := h.store.SpliceSeries(ctx, symbol)
		if err != nil {
			return nil, err
		}
		out := make([]SpliceResponse, len(adjustments))
		for i, a := range adjustments {
			out[i] = SpliceResponse{Date: contracts.FormatDate(a.Date), CumulativeDiff: a.CumulativeDiff}
		}
		return out, nil
	})
	if err != nil {
		h.logger.WithError(err).WithField("symbol", symbol).Error("Failed to get splice series")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve splice series")
		return
	}
	if len(series) == 0 {
		respondError(w, http.StatusNotFound, "no splice series for symbol")
		return
	}

	result := make([]SpliceResponse, 0, len(series))
	for _, s := range series {
		if inRange(s.Date, from, to) {
			result = append(result, s)
		}
	}
	respondData(w, result)
}
