package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/wonny/quantsource/internal/contracts"
	"github.com/wonny/quantsource/pkg/redis"
)

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

func respondData(w http.ResponseWriter, data interface{}) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    data,
	})
}

// cached reads through the response cache (nil cache → fn 직접 호출)
func cached[T any](ctx context.Context, cache *redis.Cache, key string, ttl time.Duration, fn func() (T, error)) (T, error) {
	if cache == nil {
		return fn()
	}
	var out T
	err := cache.GetOrSet(ctx, key, &out, ttl, func() (interface{}, error) {
		return fn()
	})
	return out, err
}

// dateRange parses optional ?from= / ?to= bounds (zero = open)
func dateRange(r *http.Request) (from, to time.Time, err error) {
	q := r.URL.Query()
	if s := q.Get("from"); s != "" {
		if from, err = contracts.ParseDate(s); err != nil {
			return
		}
	}
	if s := q.Get("to"); s != "" {
		if to, err = contracts.ParseDate(s); err != nil {
			return
		}
	}
	return
}

func inRange(date string, from, to time.Time) bool {
	if !from.IsZero() && date < contracts.FormatDate(from) {
		return false
	}
	if !to.IsZero() && date > contracts.FormatDate(to) {
		return false
	}
	return true
}

// intParam parses a positive integer query parameter
func intParam(r *http.Request, name string, def int) int {
	if s := r.URL.Query().Get(name); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			return v
		}
	}
	return def
}
