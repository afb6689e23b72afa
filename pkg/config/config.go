package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Out-of-order daily bar policies
const (
	OutOfOrderRebuild = "rebuild" // 늦게 도착한 일봉 → 전체 재계산
	OutOfOrderReject  = "reject"  // 늦게 도착한 일봉 → 거부 (운영자 확인 필요)
)

// Config holds all configuration for the application
// ⭐ SSOT: 모든 환경변수는 여기서만 읽음
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// Database
	Database DatabaseConfig

	// Redis
	Redis RedisConfig

	// API
	API APIConfig

	// Downstream stores / channels
	ClickHouse ClickHouseConfig
	Kafka      KafkaConfig
	Export     ExportConfig

	// Engine
	Adjust    AdjustConfig
	Splice    SpliceConfig
	Scheduler SchedulerConfig

	// Logging
	LogLevel  string
	LogFormat string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// APIConfig holds read API configuration
type APIConfig struct {
	RateLimit  int           // 클라이언트당 요청 한도 (0 = 무제한)
	RateWindow time.Duration // 한도 집계 구간
	CacheTTL   time.Duration // 조회 응답 캐시 TTL
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// ClickHouseConfig holds the analytic store configuration
type ClickHouseConfig struct {
	DSN     string
	Enabled bool
}

// KafkaConfig holds the alerting channel configuration
type KafkaConfig struct {
	Brokers []string
	Topic   string
	Enabled bool
}

// ExportConfig holds file export configuration
type ExportConfig struct {
	Dir    string // parquet 출력 디렉토리
	RawDir string // 원천 일봉 CSV 디렉토리
}

// AdjustConfig holds corporate-action / rollup engine configuration
type AdjustConfig struct {
	Epsilon           float64       // |prev.close - new.pre_close| 허용 오차
	OutOfOrderPolicy  string        // rebuild | reject
	Workers           int           // 종목 병렬 처리 워커 수
	InstrumentTimeout time.Duration // 종목당 처리 제한 시간
	MaxPerSecond      int           // 초당 종목 처리 한도 (0 = 무제한)
	ProfilePath       string        // 연속선물 프로파일 YAML
}

// SpliceConfig holds continuous-futures splice configuration
type SpliceConfig struct {
	LookbackDays int // 공통 거래일 탐색 범위 (거래일 수)
}

// SchedulerConfig holds job scheduler configuration
type SchedulerConfig struct {
	MaxRetries int
	RetryDelay time.Duration
}

// Load reads configuration from environment variables
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	// Try multiple paths for .env file
	loadEnvFile()

	cfg := &Config{
		// Server
		Port: getEnv("PORT", "8089"),
		Env:  getEnv("ENV", "development"),

		// Database
		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 25),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 5),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		// Redis
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", true),
		},

		API: APIConfig{
			RateLimit:  getEnvAsInt("API_RATE_LIMIT", 120),
			RateWindow: getEnvAsDuration("API_RATE_WINDOW", "1m"),
			CacheTTL:   getEnvAsDuration("API_CACHE_TTL", "10m"),
		},

		ClickHouse: ClickHouseConfig{
			DSN:     getEnv("CLICKHOUSE_DSN", "clickhouse://localhost:9000/quant"),
			Enabled: getEnvAsBool("CLICKHOUSE_ENABLED", false),
		},

		Kafka: KafkaConfig{
			Brokers: getEnvAsList("KAFKA_BROKERS", "localhost:9092"),
			Topic:   getEnv("KAFKA_TOPIC", "quant.adjust.events"),
			Enabled: getEnvAsBool("KAFKA_ENABLED", false),
		},

		Export: ExportConfig{
			Dir:    getEnv("EXPORT_DIR", "data/export"),
			RawDir: getEnv("RAW_DIR", "data/raw"),
		},

		Adjust: AdjustConfig{
			Epsilon:           getEnvAsFloat("ADJUST_EPSILON", 0.0001),
			OutOfOrderPolicy:  getEnv("ADJUST_OUT_OF_ORDER_POLICY", OutOfOrderRebuild),
			Workers:           getEnvAsInt("ADJUST_WORKERS", 8),
			InstrumentTimeout: getEnvAsDuration("ADJUST_INSTRUMENT_TIMEOUT", "30s"),
			MaxPerSecond:      getEnvAsInt("ADJUST_MAX_RPS", 0),
			ProfilePath:       getEnv("ADJUST_PROFILE", "config/profile.yaml"),
		},

		Splice: SpliceConfig{
			LookbackDays: getEnvAsInt("SPLICE_LOOKBACK_DAYS", 10),
		},

		// 재시도는 다음 정기 실행이 담당 (기본 0)
		Scheduler: SchedulerConfig{
			MaxRetries: getEnvAsInt("SCHEDULER_MAX_RETRIES", 0),
			RetryDelay: getEnvAsDuration("SCHEDULER_RETRY_DELAY", "5m"),
		},

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if required configuration values are set
func (c *Config) validate() error {
	// Database URL is required
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	// Validate environment
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	if c.Adjust.Epsilon <= 0 {
		return fmt.Errorf("ADJUST_EPSILON must be positive")
	}

	if c.Adjust.OutOfOrderPolicy != OutOfOrderRebuild && c.Adjust.OutOfOrderPolicy != OutOfOrderReject {
		return fmt.Errorf("ADJUST_OUT_OF_ORDER_POLICY must be one of: %s, %s", OutOfOrderRebuild, OutOfOrderReject)
	}

	if c.Adjust.Workers < 1 {
		return fmt.Errorf("ADJUST_WORKERS must be at least 1")
	}

	// 락 TTL로도 쓰이므로 0(무기한) 불가
	if c.Adjust.InstrumentTimeout <= 0 {
		return fmt.Errorf("ADJUST_INSTRUMENT_TIMEOUT must be positive")
	}

	if c.API.RateLimit < 0 {
		return fmt.Errorf("API_RATE_LIMIT must be >= 0")
	}

	if c.Splice.LookbackDays < 1 {
		return fmt.Errorf("SPLICE_LOOKBACK_DAYS must be at least 1")
	}

	return nil
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	// Try paths in order of priority
	paths := []string{
		".env",         // Current directory
		"backend/.env", // From project root
	}

	// Also try relative to executable
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		// Fallback to default
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}

// getEnvAsList splits a comma-separated value, dropping empty items
func getEnvAsList(key, defaultValue string) []string {
	raw := getEnv(key, defaultValue)
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
