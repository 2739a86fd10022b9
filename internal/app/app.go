package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hitoshi/lazyledger/internal/config"
	"github.com/hitoshi/lazyledger/internal/database"
	"github.com/hitoshi/lazyledger/internal/handler"
	"github.com/hitoshi/lazyledger/internal/ingest"
	"github.com/hitoshi/lazyledger/internal/logger"
	"github.com/hitoshi/lazyledger/internal/metrics"
	"github.com/hitoshi/lazyledger/internal/middleware"
	"github.com/hitoshi/lazyledger/internal/parser"
	"github.com/hitoshi/lazyledger/internal/rawentry"
	"github.com/hitoshi/lazyledger/internal/repository"
	"github.com/hitoshi/lazyledger/internal/transaction"
	"github.com/hitoshi/lazyledger/internal/webhook"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("parser_base_url", cfg.ParserBaseURL),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// DBへの接続確認が全試行失敗しても起動は継続し、劣化状態として
// /health から観測可能なまま残す（後続のリクエストはプールが再接続を試みる）。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL, database.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	connectCtx, connectCancel := context.WithCancel(context.Background())
	defer connectCancel()

	if !database.ConnectWithRetry(connectCtx, db, cfg.DBConnectAttempts, cfg.DBConnectDelay, slog.Default()) {
		// 致命扱いにしない。劣化状態で起動し、復旧はプールとヘルスチェックに委ねる
		slog.Warn("starting in degraded mode without confirmed database connection")
	}

	// 2. ゲートウェイとリポジトリの初期化
	gateway := database.NewGateway(db, cfg.DBQueryRetries, cfg.DBQueryRetryDelay, slog.Default())
	rawRepo := repository.NewPostgresRawEntryRepo(gateway)
	txRepo := repository.NewPostgresTransactionRepo(gateway)
	userRepo := repository.NewPostgresUserRepo(gateway)

	// 3. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 4. 上流クライアントの初期化
	// タイムアウトは試行ごとにcontextで制御するため、http.Client側では設定しない
	parserClient := parser.NewClient(&http.Client{}, cfg.ParserBaseURL, slog.Default())

	// 5. ドメインサービスの初期化
	ingestService := ingest.NewService(rawRepo, txRepo, parserClient, collector, slog.Default(), ingest.Config{
		ParseTimeout:     cfg.ParseTimeout,
		ParseMaxRetries:  cfg.ParseMaxRetries,
		ParseBackoffBase: cfg.ParseBackoffBase,
	})
	entryService := rawentry.NewService(rawRepo)
	txService := transaction.NewService(txRepo)
	webhookService := webhook.NewService(userRepo, collector, slog.Default())

	// 6. ルーターの構築
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	// configはreq/min単位なのでreq/secに変換する
	rateLimiterCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
	rateLimiterCfg.GeneralBurst = cfg.RateLimitGeneral
	rateLimiterCfg.IngestRate = rate.Limit(float64(cfg.RateLimitIngest) / 60.0)
	rateLimiterCfg.IngestBurst = cfg.RateLimitIngest

	rateLimiter := middleware.NewRateLimiter(rateLimiterCfg)
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,

		IngestService: ingestService,
		EntryService:  entryService,

		TransactionService: txService,

		WebhookService: webhookService,

		InsightFetcher: parserClient,
		InsightTimeout: cfg.InsightTimeout,

		DB:            db,
		ParserPinger:  parserClient,
		HealthTimeout: cfg.HealthCheckTimeout,

		MetricsHandler: metrics.Handler(registry),
	}

	router := handler.NewRouter(deps)

	// 7. HTTPサーバーの起動
	// WriteTimeoutは上流のパースタイムアウトより長く取る（取り込みリクエストが中断されないように）
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.ParseTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
// 207（劣化状態）はプロセス自体は応答しているため正常とみなす。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusMultiStatus {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
