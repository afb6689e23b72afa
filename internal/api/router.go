package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/wonny/quantsource/internal/api/handlers"
	"github.com/wonny/quantsource/pkg/logger"
	"github.com/wonny/quantsource/pkg/redis"
)

// Handlers groups the endpoint handlers mounted by NewRouter
type Handlers struct {
	Health *handlers.HealthHandler
	Bars   *handlers.BarsHandler
	Splice *handlers.SpliceHandler
	Runs   *handlers.RunsHandler
}

// NewRouter creates and configures the HTTP router
// ⭐ SSOT: 라우팅 설정은 이 함수에서만
func NewRouter(h Handlers, limiter *redis.RateLimiter, log *logger.Logger) http.Handler {
	r := mux.NewRouter()

	// Health check (rate limit 제외)
	r.HandleFunc("/health", h.Health.GetHealth).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()

	// Bars / factors
	api.HandleFunc("/instruments", h.Bars.GetInstruments).Methods("GET")
	api.HandleFunc("/bars/{instrument}/{granularity}", h.Bars.GetBars).Methods("GET")
	api.HandleFunc("/factors/{instrument}", h.Bars.GetFactors).Methods("GET")

	// Continuous futures
	api.HandleFunc("/splice", h.Splice.GetSymbols).Methods("GET")
	api.HandleFunc("/splice/{symbol}", h.Splice.GetSplice).Methods("GET")

	// Run history
	api.HandleFunc("/runs", h.Runs.GetRuns).Methods("GET")

	if limiter != nil {
		api.Use(rateLimitMiddleware(limiter, log))
	}

	// Apply middleware
	r.Use(loggingMiddleware(log))
	r.Use(recoveryMiddleware(log))
	r.Use(compressionMiddleware)

	return r
}
