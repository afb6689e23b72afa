package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/quantsource/internal/adjust"
	"github.com/wonny/quantsource/internal/contracts"
	"github.com/wonny/quantsource/pkg/logger"
	"github.com/wonny/quantsource/pkg/redis"
)

// BarResponse is one bar in API responses
type BarResponse struct {
	Date      string  `json:"date"`
	PeriodKey string  `json:"period_key,omitempty"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	PreClose  float64 `json:"pre_close,omitempty"`
	Volume    int64   `json:"volume"`
	Amount    float64 `json:"amount"`
}

// FactorResponse is one factor breakpoint in API responses
type FactorResponse struct {
	Date   string  `json:"date"`
	Factor float64 `json:"factor"`
}

// BarsHandler serves bar series and adjustment factors
// ⭐ SSOT: 시세 조회 API 핸들러는 이 구조체에서만
type BarsHandler struct {
	store  contracts.Store
	cache  *redis.Cache
	ttl    time.Duration
	logger *logger.Logger
}

// NewBarsHandler creates a new bars handler
func NewBarsHandler(store contracts.Store, cache *redis.Cache, ttl time.Duration, log *logger.Logger) *BarsHandler {
	return &BarsHandler{
		store:  store,
		cache:  cache,
		ttl:    ttl,
		logger: log.WithField("handler", "bars"),
	}
}

// GetBars returns a bar series.
// Daily bars are forward-adjusted unless raw=true; weekly / monthly bars are stored adjusted.
// GET /api/bars/{instrument}/{granularity}?from=2024-01-02&to=2024-06-28&raw=true
func (h *BarsHandler) GetBars(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vars := mux.Vars(r)
	instrument := vars["instrument"]

	g, err := contracts.ParseGranularity(vars["granularity"])
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	from, to, err := dateRange(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	raw := g == contracts.Daily && r.URL.Query().Get("raw") == "true"

	load := func() ([]BarResponse, error) {
		bars, err := h.store.ListBars(ctx, instrument, g, time.Time{}, time.Time{})
		if err != nil {
			return nil, err
		}
		if g == contracts.Daily && !raw {
			points, err := h.store.Factors(ctx, instrument)
			if err != nil {
				return nil, err
			}
			bars = adjust.ApplyFactors(bars, points)
		}
		return barResponses(bars), nil
	}

	var series []BarResponse
	if raw {
		series, err = load()
	} else {
		series, err = cached(ctx, h.cache, redis.BarsKey(instrument, string(g)), h.ttl, load)
	}
	if err != nil {
		h.logger.WithError(err).WithFields(map[string]interface{}{
			"instrument":  instrument,
			"granularity": g,
		}).Error("Failed to get bars")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve bars")
		return
	}
	if len(series) == 0 {
		respondError(w, http.StatusNotFound, "no bars for instrument")
		return
	}

	result := make([]BarResponse, 0, len(series))
	for _, b := range series {
		if inRange(b.Date, from, to) {
			result = append(result, b)
		}
	}
	respondData(w, result)
}

// GetFactors returns the factor breakpoints of an instrument
// GET /api/factors/{instrument}
func (h *BarsHandler) GetFactors(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	instrument := mux.Vars(r)["instrument"]

	result, err := cached(ctx, h.cache, redis.FactorsKey(instrument), h.ttl, func() ([]FactorResponse, error) {
		points, err := h.store.Factors(ctx, instrument)
		if err != nil {
			return nil, err
		}
		out := make([]FactorResponse, len(points))
		for i, p := range points {
			out[i] = FactorResponse{Date: contracts.FormatDate(p.Date), Factor: p.Factor}
		}
		return out, nil
	})
	if err != nil {
		h.logger.WithError(err).WithField("instrument", instrument).Error("Failed to get factors")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve factors")
		return
	}
	if len(result) == 0 {
		respondError(w, http.StatusNotFound, "no factors for instrument")
		return
	}
	respondData(w, result)
}

// GetInstruments lists instruments with stored daily bars
// GET /api/instruments
func (h *BarsHandler) GetInstruments(w http.ResponseWriter, r *http.Request) {
	instruments, err := h.store.Instruments(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to list instruments")
		respondError(w, http.StatusInternalServerError, "Failed to list instruments")
		return
	}
	if instruments == nil {
		instruments = []string{}
	}
	respondData(w, instruments)
}

func barResponses(bars []contracts.Bar) []BarResponse {
	out := make([]BarResponse, len(bars))
	for i, b := range bars {
		out[i] = BarResponse{
			Date:      contracts.FormatDate(b.Date),
			PeriodKey: b.PeriodKey,
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			PreClose:  b.PreClose,
			Volume:    b.Volume,
			Amount:    b.Amount,
		}
	}
	return out
}
