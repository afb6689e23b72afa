package splice

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/quantsource/internal/contracts"
	"github.com/wonny/quantsource/internal/profile"
	"github.com/wonny/quantsource/pkg/logger"
)

// SymbolResult is the outcome for one continuous symbol
type SymbolResult struct {
	Symbol string  `json:"symbol"`
	Points int     `json:"points"`
	Rolls  []Roll  `json:"rolls"`
	Offset float64 `json:"offset,omitempty"`
	Error  string  `json:"error,omitempty"`
}

// Summary is the outcome of one splice batch
type Summary struct {
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Results    []SymbolResult `json:"results"`
}

// Failed counts symbols that could not be processed
func (s *Summary) Failed() int {
	n := 0
	for _, r := range s.Results {
		if r.Error != "" {
			n++
		}
	}
	return n
}

// Runner recomputes splice series for tracked continuous symbols
// 일봉 조정 파이프라인과 저장 키가 겹치지 않으므로 독립 실행 가능
type Runner struct {
	bars    contracts.BarStore
	splice  contracts.SpliceStore
	calc    *Calculator
	profile *profile.Profile
	logger  *logger.Logger
}

// NewRunner creates a runner; prof may be nil (no overrides, no offsets)
func NewRunner(bars contracts.BarStore, spliceStore contracts.SpliceStore, calc *Calculator, prof *profile.Profile, log *logger.Logger) *Runner {
	if prof == nil {
		prof = &profile.Profile{}
	}
	return &Runner{
		bars:    bars,
		splice:  spliceStore,
		calc:    calc,
		profile: prof,
		logger:  log.WithField("module", "splice_runner"),
	}
}

// Run processes the given symbols, or every tracked symbol when none are given.
// A failing symbol is recorded and the batch continues.
func (r *Runner) Run(ctx context.Context, symbols ...string) (*Summary, error) {
	if len(symbols) == 0 {
		symbols = r.profile.Symbols()
	}
	if len(symbols) == 0 {
		stored, err := r.splice.ContinuousSymbols(ctx)
		if err != nil {
			return nil, fmt.Errorf("list continuous symbols: %w", err)
		}
		symbols = stored
	}

	summary := &Summary{StartedAt: time.Now()}
	for _, sym := range symbols {
		if err := ctx.Err(); err != nil {
			summary.Results = append(summary.Results, SymbolResult{Symbol: sym, Error: err.Error()})
			continue
		}
		res, err := r.RunSymbol(ctx, sym)
		if err != nil {
			r.logger.WithError(err).WithField("symbol", sym).Error("Splice failed")
			res.Error = err.Error()
		}
		summary.Results = append(summary.Results, res)
	}
	summary.FinishedAt = time.Now()

	r.logger.WithFields(map[string]interface{}{
		"symbols":  len(symbols),
		"failed":   summary.Failed(),
		"duration": summary.FinishedAt.Sub(summary.StartedAt).String(),
	}).Info("Splice batch completed")

	return summary, ctx.Err()
}

// RunSymbol recomputes and replaces the splice series of one symbol
func (r *Runner) RunSymbol(ctx context.Context, symbol string) (SymbolResult, error) {
	res := SymbolResult{Symbol: symbol}

	// 1. 롤 이력 + 수동 보정
	records, err := r.splice.RollRecords(ctx, symbol)
	if err != nil {
		return res, err
	}
	if len(records) == 0 {
		return res, &contracts.DataGapError{Key: symbol, Date: time.Now(), Reason: "no roll history"}
	}
	records = r.applyOverrides(symbol, records)
	records = r.dropForeign(symbol, records)
	if len(records) == 0 {
		return res, &contracts.DataGapError{Key: symbol, Date: time.Now(), Reason: "no roll history for product " + Product(symbol)}
	}

	// 2. 참조 월물 일봉 종가
	closes := make(map[string][]contracts.Bar)
	for _, rec := range records {
		if _, ok := closes[rec.Contract]; ok {
			continue
		}
		bars, err := r.bars.ListBars(ctx, rec.Contract, contracts.Daily, time.Time{}, time.Time{})
		if err != nil {
			return res, err
		}
		closes[rec.Contract] = bars
	}
	for contract, bars := range closes {
		if len(bars) == 0 {
			delete(closes, contract)
		}
	}

	// 3. 누적 차익 + 오프셋
	series, rolls := r.calc.Compute(symbol, records, closes)
	res.Offset = r.profile.Offset(symbol)
	series = Shift(series, res.Offset)

	if err := r.splice.ReplaceSplice(ctx, symbol, series); err != nil {
		return res, err
	}

	res.Points = len(series)
	res.Rolls = rolls
	r.logger.WithFields(map[string]interface{}{
		"symbol": symbol,
		"points": res.Points,
		"rolls":  len(rolls),
		"offset": res.Offset,
	}).Info("Splice series replaced")
	return res, nil
}

// applyOverrides replaces the tracked contract on override dates
func (r *Runner) applyOverrides(symbol string, records []contracts.RollRecord) []contracts.RollRecord {
	overrides := r.profile.OverridesFor(symbol)
	if len(overrides) == 0 {
		return records
	}

	out := append([]contracts.RollRecord(nil), records...)
	for _, o := range overrides {
		date, err := contracts.ParseDate(o.Date)
		if err != nil {
			continue // Validate에서 이미 검증
		}
		contract, err := NormalizeContract(o.Contract)
		if err != nil {
			r.logger.WithError(err).WithField("symbol", symbol).Warn("Invalid override contract")
			continue
		}

		applied := false
		for i := range out {
			if out[i].Date.Equal(date) {
				out[i].Contract = contract
				applied = true
			}
		}
		if !applied {
			r.logger.WithFields(map[string]interface{}{
				"symbol": symbol,
				"date":   o.Date,
			}).Warn("Override date not in roll history")
		}
	}
	return out
}

// dropForeign removes records whose contract is not a month of symbol's product
func (r *Runner) dropForeign(symbol string, records []contracts.RollRecord) []contracts.RollRecord {
	out := records[:0:0]
	for _, rec := range records {
		if !BelongsTo(symbol, rec.Contract) {
			r.logger.WithFields(map[string]interface{}{
				"symbol":   symbol,
				"date":     contracts.FormatDate(rec.Date),
				"contract": rec.Contract,
			}).Warn("Roll record contract belongs to another product, skipped")
			continue
		}
		out = append(out, rec)
	}
	return out
}
