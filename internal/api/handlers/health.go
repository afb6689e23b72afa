package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/wonny/quantsource/pkg/database"
	"github.com/wonny/quantsource/pkg/logger"
)

// Pinger is a dependency the health check probes
type Pinger interface {
	Ping(ctx context.Context) error
}

// PoolChecker is a dependency that also reports pool statistics (*database.DB)
type PoolChecker interface {
	Pinger
	HealthCheck(ctx context.Context) (*database.HealthStatus, error)
}

// HealthHandler reports service and dependency health
type HealthHandler struct {
	checks map[string]Pinger
	logger *logger.Logger
}

// NewHealthHandler creates a health handler probing the named dependencies
func NewHealthHandler(checks map[string]Pinger, log *logger.Logger) *HealthHandler {
	return &HealthHandler{
		checks: checks,
		logger: log.WithField("handler", "health"),
	}
}

// GetHealth returns 200 when every dependency answers, 503 otherwise
// GET /health
func (h *HealthHandler) GetHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	deps := make(map[string]string, len(h.checks))
	details := make(map[string]*database.HealthStatus)
	for name, p := range h.checks {
		var err error
		if pc, ok := p.(PoolChecker); ok {
			// 응답 시간 + 커넥션 풀 상태 포함
			details[name], err = pc.HealthCheck(ctx)
		} else {
			err = p.Ping(ctx)
		}
		if err != nil {
			h.logger.WithError(err).WithField("dependency", name).Warn("Health check failed")
			deps[name] = "down"
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "ok"
	}

	state := "ok"
	if status != http.StatusOK {
		state = "degraded"
	}
	body := map[string]interface{}{
		"status":       state,
		"service":      "quantsource-api",
		"dependencies": deps,
	}
	if len(details) > 0 {
		body["details"] = details
	}
	respondJSON(w, status, body)
}
