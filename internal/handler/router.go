package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/lazyledger/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// 取り込みと生エントリ
	IngestService IngestServiceInterface
	EntryService  RawEntryServiceInterface

	// 取引
	TransactionService TransactionServiceInterface

	// Webhook
	WebhookService WebhookServiceInterface

	// インサイトプロキシ
	InsightFetcher InsightFetcher
	InsightTimeout time.Duration

	// ヘルスチェック
	DB            DBPinger
	ParserPinger  ParserPinger
	HealthTimeout time.Duration

	// メトリクス
	MetricsHandler http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	CORSMiddleware → RecoveryMiddleware → LoggingMiddleware → RateLimitMiddleware(GeneralMiddleware)
//
// 運用ルート（/health、/metrics）はレート制限の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	// 全ルートに効くミドルウェア
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(slog.Default()))

	recordHandler := NewRecordHandler(deps.IngestService, deps.EntryService)
	txHandler := NewTransactionHandler(deps.TransactionService)
	webhookHandler := NewWebhookHandler(deps.WebhookService)
	insightHandler := NewInsightHandler(deps.InsightFetcher, deps.InsightTimeout)
	healthHandler := NewHealthHandler(deps.DB, deps.ParserPinger, deps.HealthTimeout)

	// --- 運用ルート ---

	r.Get("/health", healthHandler.Check)
	r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)

	// --- APIルート ---
	// ミドルウェアスタック: RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// 生エントリと取り込み
		r.Route("/api/raw-records", func(r chi.Router) {
			// POST /api/raw-records - 取り込み（上流パース呼び出しを伴うため専用レート制限を追加）
			r.With(deps.RateLimiter.IngestMiddleware()).Post("/", recordHandler.Create)

			r.Get("/", recordHandler.List)
			r.Get("/last", recordHandler.Last)
			r.Delete("/{id}", recordHandler.Delete)
		})

		// 取引管理
		r.Route("/api/transactions", func(r chi.Router) {
			r.Get("/", txHandler.List)
			r.Post("/", txHandler.Create)
			r.Get("/user/{user_id}", txHandler.ListByUser)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", txHandler.Get)
				r.Put("/", txHandler.Update)
				r.Delete("/", txHandler.Delete)
			})
		})

		// 外部IdPからのWebhook
		r.Post("/api/webhook/clerk", webhookHandler.HandleClerk)

		// インサイトプロキシ
		r.Get("/api/insights/user/{id}/latest", insightHandler.Latest)
	})

	return r
}
