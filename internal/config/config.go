package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL       string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxIdleTime time.Duration
	DBConnMaxLifetime time.Duration
	DBConnectAttempts int
	DBConnectDelay    time.Duration
	DBQueryRetries    int
	DBQueryRetryDelay time.Duration

	// Parser（上流パースサービス）
	ParserBaseURL    string
	ParseTimeout     time.Duration
	ParseMaxRetries  int
	ParseBackoffBase time.Duration

	// Insights
	InsightTimeout time.Duration

	// Health
	HealthCheckTimeout time.Duration

	// Rate Limit
	RateLimitGeneral int
	RateLimitIngest  int

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.ParserBaseURL = os.Getenv("PARSER_BASE_URL")
	if cfg.ParserBaseURL == "" {
		missing = append(missing, "PARSER_BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.DBMaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", 20)
	cfg.DBMaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", 10)
	cfg.DBConnMaxIdleTime = getEnvDuration("DB_CONN_MAX_IDLE_TIME", 30*time.Second)
	cfg.DBConnMaxLifetime = getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute)
	cfg.DBConnectAttempts = getEnvInt("DB_CONNECT_ATTEMPTS", 5)
	cfg.DBConnectDelay = getEnvDuration("DB_CONNECT_DELAY", 5*time.Second)
	cfg.DBQueryRetries = getEnvInt("DB_QUERY_RETRIES", 3)
	cfg.DBQueryRetryDelay = getEnvDuration("DB_QUERY_RETRY_DELAY", 1*time.Second)

	// 上流はコールドスタートに数十秒かかることがあるため、タイムアウトは長めに取る
	cfg.ParseTimeout = getEnvDuration("PARSE_TIMEOUT", 2*time.Minute)
	cfg.ParseMaxRetries = getEnvInt("PARSE_MAX_RETRIES", 3)
	cfg.ParseBackoffBase = getEnvDuration("PARSE_BACKOFF_BASE", 2*time.Second)

	cfg.InsightTimeout = getEnvDuration("INSIGHT_TIMEOUT", 15*time.Second)
	cfg.HealthCheckTimeout = getEnvDuration("HEALTH_CHECK_TIMEOUT", 5*time.Second)

	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitIngest = getEnvInt("RATE_LIMIT_INGEST", 10)

	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
