package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/quantsource/internal/api"
	"github.com/wonny/quantsource/internal/api/handlers"
	"github.com/wonny/quantsource/pkg/redis"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "조회 API 서버 시작",
	Long: `읽기 전용 REST API 서버를 시작합니다.

Endpoints:
  GET /health                              - Health check (DB / Redis)
  GET /api/instruments                     - 종목 목록
  GET /api/bars/{instrument}/{granularity} - 일봉(수정) / 주봉 / 월봉
  GET /api/factors/{instrument}            - 수정계수
  GET /api/splice                          - 연속선물 목록
  GET /api/splice/{symbol}                 - 누적 롤 차익
  GET /api/runs                            - 최근 조정 실행 결과

클라이언트별 요청 한도 (API_RATE_LIMIT / API_RATE_WINDOW) 는 Redis 로 인스턴스 간 공유됩니다.

Example:
  go run ./cmd/quant api
  go run ./cmd/quant api --port 8080`,
	RunE: runAPIServer,
}

var (
	apiPort string
)

func init() {
	rootCmd.AddCommand(apiCmd)

	// Flags
	apiCmd.Flags().StringVar(&apiPort, "port", "", "API 서버 포트 (default is PORT)")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Quant Source API Server ===")

	d, err := setup()
	if err != nil {
		return err
	}
	defer d.Close()

	if apiPort != "" {
		d.cfg.Port = apiPort
	}

	log := d.log
	ttl := d.cfg.API.CacheTTL

	router := api.NewRouter(api.Handlers{
		Health: handlers.NewHealthHandler(map[string]handlers.Pinger{
			"database": d.db,
			"redis":    d.redis,
		}, log),
		Bars:   handlers.NewBarsHandler(d.store, d.cache, ttl, log),
		Splice: handlers.NewSpliceHandler(d.store, d.cache, ttl, log),
		Runs:   handlers.NewRunsHandler(d.store, log),
	}, redis.NewRateLimiter(d.redis, redisPrefix, d.cfg.API.RateLimit, d.cfg.API.RateWindow), log)

	server := api.New(d.cfg, log, router)

	go func() {
		if err := server.Start(); err != nil {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	log.Info("API server started successfully")
	fmt.Printf("\n✅ Server running on http://localhost:%s\n", d.cfg.Port)
	fmt.Println("\nPress Ctrl+C to stop")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("Server stopped")
	return nil
}
