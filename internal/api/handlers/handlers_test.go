package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/quantsource/internal/contracts"
	"github.com/wonny/quantsource/internal/store/memstore"
	"github.com/wonny/quantsource/pkg/config"
	"github.com/wonny/quantsource/pkg/database"
	"github.com/wonny/quantsource/pkg/logger"
	"github.com/wonny/quantsource/pkg/redis"
)

const instrument = "600000.SH"

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func day(s string) time.Time {
	d, err := contracts.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func daily(date string, close, preClose float64) contracts.Bar {
	return contracts.Bar{
		Instrument: instrument, Granularity: contracts.Daily, Date: day(date),
		Open: close, High: close, Low: close, Close: close, PreClose: preClose,
		Volume: 1000, Amount: close * 1000,
	}
}

// seed: 2024-01-04 에 1:1 무상증자 (pre_close 5.5 vs prev close 11)
func seed(t *testing.T) *memstore.Store {
	t.Helper()
	ctx := context.Background()
	store := memstore.New()
	for _, b := range []contracts.Bar{
		daily("2024-01-02", 10, 10),
		daily("2024-01-03", 11, 10),
		daily("2024-01-04", 5.6, 5.5),
	} {
		require.NoError(t, store.UpsertBar(ctx, b))
	}
	require.NoError(t, store.UpsertBar(ctx, contracts.Bar{
		Instrument: instrument, Granularity: contracts.Weekly, Date: day("2024-01-04"), PeriodKey: "2024-W01",
		Open: 5, High: 5.6, Low: 5, Close: 5.6, Volume: 3000, Amount: 26600,
	}))
	require.NoError(t, store.ReplaceFactors(ctx, instrument, []contracts.FactorPoint{
		{Instrument: instrument, Date: day("2024-01-02"), Factor: 0.5},
		{Instrument: instrument, Date: day("2024-01-04"), Factor: 1.0},
	}))
	require.NoError(t, store.ReplaceRollRecords(ctx, "KQ.m@SHFE.rb", []contracts.RollRecord{
		{Symbol: "KQ.m@SHFE.rb", Date: day("2024-01-02"), Contract: "rb2405"},
	}))
	require.NoError(t, store.ReplaceSplice(ctx, "KQ.m@SHFE.rb", []contracts.SpliceAdjustment{
		{Symbol: "KQ.m@SHFE.rb", Date: day("2024-01-02"), CumulativeDiff: 0},
		{Symbol: "KQ.m@SHFE.rb", Date: day("2024-01-03"), CumulativeDiff: 12},
	}))
	return store
}

func disabledCache(t *testing.T) *redis.Cache {
	t.Helper()
	client, err := redis.New(&config.Config{Redis: config.RedisConfig{Enabled: false}})
	require.NoError(t, err)
	return redis.NewCache(client, "test")
}

func newRouter(t *testing.T, store *memstore.Store, cache *redis.Cache) *mux.Router {
	t.Helper()
	log := logger.Nop()
	bars := NewBarsHandler(store, cache, time.Minute, log)
	splice := NewSpliceHandler(store, cache, time.Minute, log)
	runs := NewRunsHandler(store, log)

	r := mux.NewRouter()
	r.HandleFunc("/api/instruments", bars.GetInstruments)
	r.HandleFunc("/api/bars/{instrument}/{granularity}", bars.GetBars)
	r.HandleFunc("/api/factors/{instrument}", bars.GetFactors)
	r.HandleFunc("/api/splice", splice.GetSymbols)
	r.HandleFunc("/api/splice/{symbol}", splice.GetSplice)
	r.HandleFunc("/api/runs", runs.GetRuns)
	return r
}

func get(t *testing.T, h http.Handler, path string) (int, envelope) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func TestGetBars_DailyAdjusted(t *testing.T) {
	for name, cache := range map[string]*redis.Cache{
		"no cache":       nil,
		"disabled redis": disabledCache(t),
	} {
		t.Run(name, func(t *testing.T) {
			code, env := get(t, newRouter(t, seed(t), cache), "/api/bars/600000.SH/daily")
			require.Equal(t, http.StatusOK, code)
			assert.True(t, env.Success)

			var bars []BarResponse
			require.NoError(t, json.Unmarshal(env.Data, &bars))
			require.Len(t, bars, 3)
			assert.Equal(t, "2024-01-02", bars[0].Date)
			assert.InDelta(t, 5.0, bars[0].Close, 1e-9)
			assert.InDelta(t, 5.5, bars[1].Close, 1e-9)
			assert.InDelta(t, 5.6, bars[2].Close, 1e-9)
			// 거래량은 조정하지 않음
			assert.Equal(t, int64(1000), bars[0].Volume)
		})
	}
}

func TestGetBars_Raw(t *testing.T) {
	code, env := get(t, newRouter(t, seed(t), nil), "/api/bars/600000.SH/daily?raw=true")
	require.Equal(t, http.StatusOK, code)

	var bars []BarResponse
	require.NoError(t, json.Unmarshal(env.Data, &bars))
	require.Len(t, bars, 3)
	assert.InDelta(t, 10.0, bars[0].Close, 1e-9)
	assert.InDelta(t, 11.0, bars[1].Close, 1e-9)
}

func TestGetBars_DateRange(t *testing.T) {
	code, env := get(t, newRouter(t, seed(t), nil), "/api/bars/600000.SH/daily?from=2024-01-03&to=20240103")
	require.Equal(t, http.StatusOK, code)

	var bars []BarResponse
	require.NoError(t, json.Unmarshal(env.Data, &bars))
	require.Len(t, bars, 1)
	assert.Equal(t, "2024-01-03", bars[0].Date)
}

func TestGetBars_Aggregate(t *testing.T) {
	code, env := get(t, newRouter(t, seed(t), nil), "/api/bars/600000.SH/week")
	require.Equal(t, http.StatusOK, code)

	var bars []BarResponse
	require.NoError(t, json.Unmarshal(env.Data, &bars))
	require.Len(t, bars, 1)
	assert.Equal(t, "2024-W01", bars[0].PeriodKey)
	assert.Equal(t, "2024-01-04", bars[0].Date)
}

func TestGetBars_Errors(t *testing.T) {
	router := newRouter(t, seed(t), nil)

	tests := []struct {
		name string
		path string
		code int
	}{
		{"unknown granularity", "/api/bars/600000.SH/hourly", http.StatusBadRequest},
		{"bad date", "/api/bars/600000.SH/daily?from=01/02/2024", http.StatusBadRequest},
		{"unknown instrument", "/api/bars/000001.SZ/daily", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, env := get(t, router, tt.path)
			assert.Equal(t, tt.code, code)
			assert.NotEmpty(t, env.Error)
		})
	}
}

func TestGetBars_StorageFailure(t *testing.T) {
	store := seed(t)
	store.FailOn("ListBars", errors.New("connection reset"))

	code, env := get(t, newRouter(t, store, nil), "/api/bars/600000.SH/daily")
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "Failed to retrieve bars", env.Error)
}

func TestGetFactors(t *testing.T) {
	router := newRouter(t, seed(t), disabledCache(t))

	code, env := get(t, router, "/api/factors/600000.SH")
	require.Equal(t, http.StatusOK, code)
	var factors []FactorResponse
	require.NoError(t, json.Unmarshal(env.Data, &factors))
	assert.Equal(t, []FactorResponse{
		{Date: "2024-01-02", Factor: 0.5},
		{Date: "2024-01-04", Factor: 1.0},
	}, factors)

	code, _ = get(t, router, "/api/factors/000001.SZ")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestGetInstruments(t *testing.T) {
	code, env := get(t, newRouter(t, seed(t), nil), "/api/instruments")
	require.Equal(t, http.StatusOK, code)

	var instruments []string
	require.NoError(t, json.Unmarshal(env.Data, &instruments))
	assert.Equal(t, []string{instrument}, instruments)
}

func TestGetSplice(t *testing.T) {
	router := newRouter(t, seed(t), nil)

	code, env := get(t, router, "/api/splice")
	require.Equal(t, http.StatusOK, code)
	var symbols []string
	require.NoError(t, json.Unmarshal(env.Data, &symbols))
	assert.Equal(t, []string{"KQ.m@SHFE.rb"}, symbols)

	code, env = get(t, router, "/api/splice/KQ.m@SHFE.rb?from=2024-01-03")
	require.Equal(t, http.StatusOK, code)
	var series []SpliceResponse
	require.NoError(t, json.Unmarshal(env.Data, &series))
	assert.Equal(t, []SpliceResponse{{Date: "2024-01-03", CumulativeDiff: 12}}, series)

	code, _ = get(t, router, "/api/splice/KQ.m@DCE.c")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestGetRuns(t *testing.T) {
	store := seed(t)
	ctx := context.Background()
	started := time.Date(2024, 1, 4, 18, 0, 0, 0, time.UTC)
	for i, id := range []string{"run-1", "run-2"} {
		require.NoError(t, store.SaveRun(ctx, &contracts.RunSummary{
			RunID:      id,
			Date:       day("2024-01-04").AddDate(0, 0, i),
			StartedAt:  started,
			FinishedAt: started.Add(1500 * time.Millisecond),
			Results: []contracts.InstrumentResult{
				{Instrument: instrument, Outcome: contracts.OutcomeRebuilt, CorporateAction: true},
				{Instrument: "000001.SZ", Outcome: contracts.OutcomeIncremental},
				{Instrument: "BROKEN", Outcome: contracts.OutcomeFailed, Error: "invalid close"},
			},
		}))
	}

	code, env := get(t, newRouter(t, store, nil), "/api/runs?limit=1")
	require.Equal(t, http.StatusOK, code)

	var runs []RunResponse
	require.NoError(t, json.Unmarshal(env.Data, &runs))
	require.Len(t, runs, 1)
	run := runs[0]
	assert.Equal(t, "run-2", run.RunID)
	assert.Equal(t, "2024-01-05", run.Date)
	assert.Equal(t, int64(1500), run.DurationMs)
	assert.Equal(t, 1, run.Rebuilt)
	assert.Equal(t, 1, run.Incremental)
	assert.Equal(t, []string{instrument}, run.CorporateActions)
	require.Len(t, run.Failed, 1)
	assert.Equal(t, "BROKEN", run.Failed[0].Instrument)
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(ctx context.Context) error { return f.err }

func TestGetHealth(t *testing.T) {
	tests := []struct {
		name   string
		checks map[string]Pinger
		code   int
		status string
	}{
		{"all up", map[string]Pinger{"database": fakePinger{}, "redis": fakePinger{}}, http.StatusOK, "ok"},
		{"database down", map[string]Pinger{"database": fakePinger{err: errors.New("refused")}}, http.StatusServiceUnavailable, "degraded"},
		{"no dependencies", nil, http.StatusOK, "ok"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(tt.checks, logger.Nop())
			rec := httptest.NewRecorder()
			h.GetHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tt.code, rec.Code)
			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.status, body["status"])
		})
	}
}

type fakePool struct {
	fakePinger
	maxConns int32
}

func (f fakePool) HealthCheck(ctx context.Context) (*database.HealthStatus, error) {
	status := &database.HealthStatus{Timestamp: time.Now()}
	if f.err != nil {
		status.Error = f.err.Error()
		return status, f.err
	}
	status.Healthy = true
	status.ResponseTime = 2 * time.Millisecond
	status.Stats = database.PoolStats{MaxConns: f.maxConns, IdleConns: 3}
	return status, nil
}

func TestGetHealthReportsPoolStats(t *testing.T) {
	tests := []struct {
		name    string
		pool    fakePool
		code    int
		healthy bool
	}{
		{"healthy pool", fakePool{maxConns: 10}, http.StatusOK, true},
		{"pool down", fakePool{fakePinger: fakePinger{err: errors.New("refused")}}, http.StatusServiceUnavailable, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(map[string]Pinger{"database": tt.pool, "redis": fakePinger{}}, logger.Nop())
			rec := httptest.NewRecorder()
			h.GetHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
			assert.Equal(t, tt.code, rec.Code)

			var body struct {
				Dependencies map[string]string                `json:"dependencies"`
				Details      map[string]database.HealthStatus `json:"details"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, "ok", body.Dependencies["redis"])
			require.Contains(t, body.Details, "database")
			assert.NotContains(t, body.Details, "redis")

			db := body.Details["database"]
			assert.Equal(t, tt.healthy, db.Healthy)
			if tt.healthy {
				assert.Equal(t, "ok", body.Dependencies["database"])
				assert.Equal(t, int32(10), db.Stats.MaxConns)
				assert.Equal(t, 2*time.Millisecond, db.ResponseTime)
			} else {
				assert.Equal(t, "down", body.Dependencies["database"])
				assert.Equal(t, "refused", db.Error)
			}
		})
	}
}
