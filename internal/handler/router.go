package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MusabMahmoodh/review-pulse-sub001/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger

	// 連携
	IntegrationService IntegrationServiceInterface
	IntegrationConfig  IntegrationHandlerConfig

	// 同期
	SyncService SyncServiceInterface

	// レビュー
	ReviewService ReviewServiceInterface

	// メトリクス（/metrics）。nilの場合はルートを公開しない。
	MetricsHandler http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Logging
//
// 手動同期トリガー（POST /api/sync）にはアカウント別レート制限を追加する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))

	integrationHandler := NewIntegrationHandler(deps.IntegrationService, deps.IntegrationConfig)
	syncHandler := NewSyncHandler(deps.SyncService)
	reviewHandler := NewReviewHandler(deps.ReviewService)

	// ヘルスチェック
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	// OAuth連携フロー
	r.Route("/integrations/{platform}", func(r chi.Router) {
		r.Get("/connect", integrationHandler.Connect)
		r.Get("/callback", integrationHandler.Callback)
		r.Get("/status", integrationHandler.Status)
	})

	// 同期とレビュー照会
	r.Route("/api", func(r chi.Router) {
		if deps.RateLimiter != nil {
			r.With(deps.RateLimiter.SyncTriggerMiddleware()).Post("/sync", syncHandler.TriggerSync)
		} else {
			r.Post("/sync", syncHandler.TriggerSync)
		}
		r.Get("/reviews", reviewHandler.ListReviews)
	})

	// Prometheusスクレイプ
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	return r
}
