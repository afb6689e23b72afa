package adjust

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/wonny/quantsource/internal/contracts"
	"github.com/wonny/quantsource/pkg/config"
	"github.com/wonny/quantsource/pkg/logger"
)

// endOfTime is used to ask the store for the latest bar regardless of date
var endOfTime = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)

// Locker provides cross-process exclusion per instrument
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// Notifier is the alerting channel for run outcomes
type Notifier interface {
	CorporateAction(ctx context.Context, event contracts.CorporateAction) error
	RunCompleted(ctx context.Context, summary *contracts.RunSummary) error
}

// DefaultInstrumentTimeout bounds one instrument when Options leaves it unset
const DefaultInstrumentTimeout = 30 * time.Second

// Options holds engine tuning
type Options struct {
	Epsilon           float64
	OutOfOrderPolicy  string
	Workers           int
	InstrumentTimeout time.Duration
	MaxPerSecond      int
}

// OptionsFromConfig maps the adjust section of the config
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Epsilon:           cfg.Adjust.Epsilon,
		OutOfOrderPolicy:  cfg.Adjust.OutOfOrderPolicy,
		Workers:           cfg.Adjust.Workers,
		InstrumentTimeout: cfg.Adjust.InstrumentTimeout,
		MaxPerSecond:      cfg.Adjust.MaxPerSecond,
	}
}

// Engine runs the daily detect → factor → rollup pipeline
// ⭐ SSOT: 종목 하나의 일봉→factor→주봉/월봉 처리는 하나의 트랜잭션
type Engine struct {
	store    contracts.Store
	runs     contracts.RunStore
	calendar contracts.Calendar
	locker   Locker
	notifier Notifier

	detector *Detector
	ledger   *Ledger
	limiter  *rate.Limiter
	opts     Options
	logger   *logger.Logger
}

// NewEngine creates an engine over store
func NewEngine(store contracts.Store, opts Options, log *logger.Logger) *Engine {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.OutOfOrderPolicy == "" {
		opts.OutOfOrderPolicy = config.OutOfOrderRebuild
	}
	// ⭐ SSOT: 종목 처리는 항상 기한을 가짐 (무기한 락 대기 방지)
	if opts.InstrumentTimeout <= 0 {
		opts.InstrumentTimeout = DefaultInstrumentTimeout
	}

	e := &Engine{
		store:    store,
		detector: NewDetector(opts.Epsilon),
		ledger:   NewLedger(opts.Epsilon, log),
		opts:     opts,
		logger:   log.WithField("module", "adjust"),
	}
	if opts.MaxPerSecond > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(opts.MaxPerSecond), opts.MaxPerSecond)
	}
	return e
}

// SetRunStore enables run summary persistence
func (e *Engine) SetRunStore(rs contracts.RunStore) { e.runs = rs }

// SetCalendar enables stale-bar gap warnings
func (e *Engine) SetCalendar(c contracts.Calendar) { e.calendar = c }

// SetLocker enables per-instrument cross-process locking
func (e *Engine) SetLocker(l Locker) { e.locker = l }

// SetNotifier enables publishing of corporate actions and run summaries
func (e *Engine) SetNotifier(n Notifier) { e.notifier = n }

// instrumentJob is one unit of pool work
type instrumentJob struct {
	instrument string
	bars       []contracts.Bar // 날짜 오름차순, 비어있으면 전체 재계산
}

// Run processes a day's worth of daily bars across instruments.
// Per-instrument failures are reported in the summary, never returned.
func (e *Engine) Run(ctx context.Context, date time.Time, bars []contracts.Bar) (*contracts.RunSummary, error) {
	// 1. 종목별 그룹 + 날짜 정렬
	grouped := make(map[string][]contracts.Bar)
	for _, b := range bars {
		b.Granularity = contracts.Daily
		b.Date = contracts.TradingDate(b.Date)
		grouped[b.Instrument] = append(grouped[b.Instrument], b)
	}

	jobs := make([]instrumentJob, 0, len(grouped))
	for inst, list := range grouped {
		sort.SliceStable(list, func(i, j int) bool { return list[i].Date.Before(list[j].Date) })
		jobs = append(jobs, instrumentJob{instrument: inst, bars: list})
	}

	return e.runJobs(ctx, contracts.TradingDate(date), jobs)
}

// Rebuild recomputes factors and aggregates for the given instruments from stored dailies.
// An empty list rebuilds every stored instrument.
func (e *Engine) Rebuild(ctx context.Context, instruments ...string) (*contracts.RunSummary, error) {
	if len(instruments) == 0 {
		all, err := e.store.Instruments(ctx)
		if err != nil {
			return nil, fmt.Errorf("list instruments: %w", err)
		}
		instruments = all
	}

	jobs := make([]instrumentJob, len(instruments))
	for i, inst := range instruments {
		jobs[i] = instrumentJob{instrument: inst}
	}
	return e.runJobs(ctx, contracts.TradingDate(time.Now()), jobs)
}

func (e *Engine) runJobs(ctx context.Context, date time.Time, jobs []instrumentJob) (*contracts.RunSummary, error) {
	summary := &contracts.RunSummary{
		RunID:     uuid.NewString(),
		Date:      date,
		StartedAt: time.Now(),
	}

	e.logger.WithFields(map[string]interface{}{
		"run_id":      summary.RunID,
		"date":        contracts.FormatDate(date),
		"instruments": len(jobs),
		"workers":     e.opts.Workers,
	}).Info("Starting adjustment run")

	// 2. 워커 풀
	resultCh := make(chan contracts.InstrumentResult, len(jobs))
	jobCh := make(chan instrumentJob, len(jobs))

	var wg sync.WaitGroup
	for i := 0; i < e.opts.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			e.worker(ctx, workerID, jobCh, resultCh)
		}(i)
	}

	for _, j := range jobs {
		jobCh <- j
	}
	close(jobCh)

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	for r := range resultCh {
		summary.Results = append(summary.Results, r)
	}
	sort.Slice(summary.Results, func(i, j int) bool {
		return summary.Results[i].Instrument < summary.Results[j].Instrument
	})
	summary.FinishedAt = time.Now()

	e.logger.WithFields(map[string]interface{}{
		"run_id":            summary.RunID,
		"succeeded":         len(summary.Succeeded()),
		"failed":            len(summary.Failed()),
		"rebuilt":           summary.Count(contracts.OutcomeRebuilt),
		"corporate_actions": len(summary.CorporateActions()),
		"duration":          summary.Duration().String(),
	}).Info("Adjustment run completed")

	// 3. 요약 저장 / 알림 (실패해도 실행 결과는 유효)
	reportCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if e.runs != nil {
		if err := e.runs.SaveRun(reportCtx, summary); err != nil {
			e.logger.WithError(err).Error("Failed to save run summary")
		}
	}
	if e.notifier != nil {
		if err := e.notifier.RunCompleted(reportCtx, summary); err != nil {
			e.logger.WithError(err).Error("Failed to publish run summary")
		}
	}

	return summary, ctx.Err()
}

// worker processes instruments until jobCh closes
func (e *Engine) worker(ctx context.Context, workerID int, jobCh <-chan instrumentJob, resultCh chan<- contracts.InstrumentResult) {
	for job := range jobCh {
		if err := ctx.Err(); err != nil {
			resultCh <- failed(job.instrument, err)
			continue
		}
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				resultCh <- failed(job.instrument, err)
				continue
			}
		}

		res := e.processInstrument(ctx, job)
		if res.Outcome == contracts.OutcomeFailed {
			e.logger.WithFields(map[string]interface{}{
				"worker":     workerID,
				"instrument": job.instrument,
				"error":      res.Error,
				"retryable":  res.Retryable,
			}).Error("Instrument failed")
		} else {
			e.logger.WithFields(map[string]interface{}{
				"worker":     workerID,
				"instrument": job.instrument,
				"outcome":    res.Outcome,
			}).Debug("Instrument processed")
		}
		resultCh <- res
	}
}

func failed(instrument string, err error) contracts.InstrumentResult {
	return contracts.InstrumentResult{
		Instrument: instrument,
		Outcome:    contracts.OutcomeFailed,
		Error:      err.Error(),
		Retryable:  contracts.IsRetryable(err) || errors.Is(err, context.DeadlineExceeded),
	}
}

// processInstrument runs one instrument's pipeline under lock, timeout and transaction
func (e *Engine) processInstrument(ctx context.Context, job instrumentJob) contracts.InstrumentResult {
	ictx, cancel := context.WithTimeout(ctx, e.opts.InstrumentTimeout)
	defer cancel()

	if e.locker != nil {
		unlock, err := e.locker.Lock(ictx, "instrument:"+job.instrument)
		if err != nil {
			return failed(job.instrument, fmt.Errorf("lock: %w", err))
		}
		defer unlock()
	}

	res := contracts.InstrumentResult{Instrument: job.instrument}
	var actions []contracts.CorporateAction

	err := e.store.Atomic(ictx, func(tx contracts.Store) error {
		// 트랜잭션 재시도 시 누적값 초기화
		res.Outcome, res.CorporateAction, actions = "", false, nil

		if len(job.bars) == 0 {
			res.Outcome = contracts.OutcomeRebuilt
			return e.fullRebuild(ictx, tx, job.instrument)
		}

		for _, bar := range job.bars {
			out, action, err := e.applyBar(ictx, tx, bar)
			if err != nil {
				return err
			}
			res.Outcome = merge(res.Outcome, out)
			if action != nil {
				res.CorporateAction = true
				actions = append(actions, *action)
			}
		}
		return nil
	})
	if err != nil {
		return failed(job.instrument, err)
	}

	// 커밋 이후에만 알림
	if e.notifier != nil {
		for _, a := range actions {
			if err := e.notifier.CorporateAction(ctx, a); err != nil {
				e.logger.WithError(err).WithField("instrument", a.Instrument).Warn("Failed to publish corporate action")
			}
		}
	}
	return res
}

// merge keeps the most significant outcome across several bars
func merge(a, b contracts.Outcome) contracts.Outcome {
	rank := map[contracts.Outcome]int{
		"":                            0,
		contracts.OutcomeIncremental: 1,
		contracts.OutcomeSeeded:      2,
		contracts.OutcomeRebuilt:     3,
	}
	if rank[b] > rank[a] {
		return b
	}
	return a
}

// applyBar applies one daily bar inside the instrument transaction
func (e *Engine) applyBar(ctx context.Context, tx contracts.Store, bar contracts.Bar) (contracts.Outcome, *contracts.CorporateAction, error) {
	if err := bar.Validate(); err != nil {
		return "", nil, err
	}
	log := e.logger.WithFields(map[string]interface{}{
		"instrument": bar.Instrument,
		"date":       contracts.FormatDate(bar.Date),
	})

	// 1. 늦게 도착한 데이터 확인
	latest, err := tx.LastBar(ctx, bar.Instrument, contracts.Daily, endOfTime)
	if err != nil {
		return "", nil, err
	}
	if latest != nil && latest.Date.After(bar.Date) {
		ooo := &contracts.OutOfOrderDataError{Instrument: bar.Instrument, Date: bar.Date, LastStored: latest.Date}
		if e.opts.OutOfOrderPolicy == config.OutOfOrderReject {
			log.WithError(ooo).Warn("Rejected out-of-order bar, operator attention required")
			return "", nil, ooo
		}
		log.WithError(ooo).Warn("Out-of-order bar, forcing full rebuild")
		if err := tx.UpsertBar(ctx, bar); err != nil {
			return "", nil, err
		}
		return contracts.OutcomeRebuilt, nil, e.fullRebuild(ctx, tx, bar.Instrument)
	}

	// 2. 직전 일봉 + 권리락 판정
	prev, err := tx.LastBar(ctx, bar.Instrument, contracts.Daily, bar.Date.AddDate(0, 0, -1))
	if err != nil {
		return "", nil, err
	}
	e.checkGap(ctx, log, prev, bar)

	det, derr := e.detector.Detect(prev, bar)
	if derr != nil {
		log.WithError(derr).Warn("Pre-close divergence without usable ratio, treated as no event")
	}

	if err := tx.UpsertBar(ctx, bar); err != nil {
		return "", nil, err
	}

	// 3. 신규 상장: factor 1.0 시딩 + 주봉/월봉 새로 시작
	if det.NewListing {
		if err := tx.ReplaceFactors(ctx, bar.Instrument, e.ledger.Seed(bar.Instrument, bar.Date)); err != nil {
			return "", nil, err
		}
		for _, g := range contracts.AggregateGranularities {
			if err := tx.ReplaceSeries(ctx, bar.Instrument, g, []contracts.Bar{Open(g, bar)}); err != nil {
				return "", nil, err
			}
		}
		log.Info("New listing seeded")
		return contracts.OutcomeSeeded, nil, nil
	}

	var action *contracts.CorporateAction
	if det.Flagged {
		action = &contracts.CorporateAction{
			Instrument: bar.Instrument,
			Date:       bar.Date,
			PrevClose:  det.PrevClose,
			PreClose:   det.PreClose,
			Step:       det.Step,
		}
		log.WithFields(map[string]interface{}{
			"prev_close": det.PrevClose,
			"pre_close":  det.PreClose,
			"step":       det.Step,
		}).Info("Corporate action detected")
	}

	// 같은 날짜 재실행: 이전 실행 결과를 신뢰하지 않고 전체 재계산
	if latest != nil && latest.Date.Equal(bar.Date) {
		log.Info("Bar already stored for date, recomputing from history")
		return contracts.OutcomeRebuilt, action, e.fullRebuild(ctx, tx, bar.Instrument)
	}

	points, err := tx.Factors(ctx, bar.Instrument)
	if err != nil {
		return "", nil, err
	}

	// 4. 권리락: factor 갱신 + 주봉/월봉 전체 재계산
	if action != nil {
		updated, err := e.ledger.Append(points, bar.Instrument, bar.Date, det.Step)
		if err != nil {
			// 포인트 없음 → 전체 재계산
			return contracts.OutcomeRebuilt, action, e.fullRebuild(ctx, tx, bar.Instrument)
		}
		if err := tx.ReplaceFactors(ctx, bar.Instrument, updated); err != nil {
			return "", nil, err
		}
		return contracts.OutcomeRebuilt, action, e.rebuildAggregates(ctx, tx, bar.Instrument, updated)
	}

	if len(points) == 0 {
		gap := &contracts.DataGapError{Key: bar.Instrument, Date: bar.Date, Reason: "no factor points for existing history"}
		log.WithError(gap).Warn("Recomputing factors from stored history")
		return contracts.OutcomeRebuilt, nil, e.fullRebuild(ctx, tx, bar.Instrument)
	}

	// 5. 증분: 직전 일봉까지 반영된 집계만 extend / roll
	current := make(map[contracts.Granularity]*contracts.Bar, len(contracts.AggregateGranularities))
	for _, g := range contracts.AggregateGranularities {
		cur, err := tx.LastBar(ctx, bar.Instrument, g, endOfTime)
		if err != nil {
			return "", nil, err
		}
		if cur == nil || !cur.Date.Equal(prev.Date) {
			// 집계가 일봉과 어긋남 → 전체 재계산
			log.WithField("granularity", g).Debug("Aggregate not aligned with previous daily, rebuilding")
			return contracts.OutcomeRebuilt, nil, e.rebuildAggregates(ctx, tx, bar.Instrument, points)
		}
		current[g] = cur
	}

	adjusted := ApplyFactors([]contracts.Bar{bar}, points)[0]
	for _, g := range contracts.AggregateGranularities {
		next, tr := Step(g, current[g], adjusted)
		if err := tx.UpsertBar(ctx, next); err != nil {
			return "", nil, err
		}
		log.WithFields(map[string]interface{}{
			"granularity": g,
			"period":      next.PeriodKey,
			"transition":  tr,
		}).Debug("Aggregate updated")
	}
	return contracts.OutcomeIncremental, nil, nil
}

// checkGap warns when the previous stored bar is older than the previous trading day
func (e *Engine) checkGap(ctx context.Context, log *logger.Logger, prev *contracts.Bar, bar contracts.Bar) {
	if e.calendar == nil || prev == nil {
		return
	}
	ptd, err := e.calendar.PreviousTradingDay(ctx, bar.Date)
	if err != nil {
		log.WithError(err).Debug("Calendar lookup failed")
		return
	}
	if prev.Date.Before(ptd) {
		gap := &contracts.DataGapError{
			Key:    bar.Instrument,
			Date:   bar.Date,
			Reason: fmt.Sprintf("last stored bar %s, previous trading day %s", contracts.FormatDate(prev.Date), contracts.FormatDate(ptd)),
		}
		log.WithError(gap).Warn("Daily history gap (suspension or missing data)")
	}
}

// fullRebuild recomputes factors and aggregates from all stored dailies
func (e *Engine) fullRebuild(ctx context.Context, tx contracts.Store, instrument string) error {
	dailies, err := tx.ListBars(ctx, instrument, contracts.Daily, time.Time{}, time.Time{})
	if err != nil {
		return err
	}
	if len(dailies) == 0 {
		return &contracts.DataGapError{Key: instrument, Date: time.Now(), Reason: "no daily bars to rebuild from"}
	}

	points := e.ledger.Recompute(instrument, dailies)
	if err := tx.ReplaceFactors(ctx, instrument, points); err != nil {
		return err
	}
	return e.aggregateFrom(ctx, tx, instrument, dailies, points)
}

// rebuildAggregates rebuilds weekly/monthly series using the given factors
func (e *Engine) rebuildAggregates(ctx context.Context, tx contracts.Store, instrument string, points []contracts.FactorPoint) error {
	dailies, err := tx.ListBars(ctx, instrument, contracts.Daily, time.Time{}, time.Time{})
	if err != nil {
		return err
	}
	return e.aggregateFrom(ctx, tx, instrument, dailies, points)
}

func (e *Engine) aggregateFrom(ctx context.Context, tx contracts.Store, instrument string, dailies []contracts.Bar, points []contracts.FactorPoint) error {
	adjusted := ApplyFactors(dailies, points)
	for _, g := range contracts.AggregateGranularities {
		if err := tx.ReplaceSeries(ctx, instrument, g, Aggregate(g, adjusted)); err != nil {
			return err
		}
	}

	e.logger.WithFields(map[string]interface{}{
		"instrument": instrument,
		"dailies":    len(dailies),
		"breaks":     len(points),
	}).Info("Rebuilt factors and aggregates")
	return nil
}
