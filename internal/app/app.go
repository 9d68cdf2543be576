// Package app はアプリケーションの起動と依存関係のワイヤリングを行う。
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

	"github.com/MusabMahmoodh/review-pulse-sub001/internal/config"
	"github.com/MusabMahmoodh/review-pulse-sub001/internal/database"
	"github.com/MusabMahmoodh/review-pulse-sub001/internal/handler"
	"github.com/MusabMahmoodh/review-pulse-sub001/internal/integration"
	"github.com/MusabMahmoodh/review-pulse-sub001/internal/logger"
	"github.com/MusabMahmoodh/review-pulse-sub001/internal/metrics"
	"github.com/MusabMahmoodh/review-pulse-sub001/internal/middleware"
	"github.com/MusabMahmoodh/review-pulse-sub001/internal/platform"
	"github.com/MusabMahmoodh/review-pulse-sub001/internal/repository"
	"github.com/MusabMahmoodh/review-pulse-sub001/internal/security"
	reviewsync "github.com/MusabMahmoodh/review-pulse-sub001/internal/sync"
	"github.com/MusabMahmoodh/review-pulse-sub001/internal/worker/syncjob"
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
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	credRepo := repository.NewPostgresCredentialRepo(db)
	reviewRepo := repository.NewPostgresReviewRepo(db)

	// 3. セキュリティサービスの初期化
	cipher, err := security.NewTokenCipher(cfg.CredentialEncKey)
	if err != nil {
		return fmt.Errorf("failed to initialize token cipher: %w", err)
	}
	sanitizer := security.NewReviewSanitizer()

	// 4. メトリクスとプラットフォームアダプターの初期化
	promRegistry := prometheus.NewRegistry()
	collector := metrics.NewCollector(promRegistry)

	providerClient := &http.Client{Timeout: cfg.ProviderTimeout}
	registry := platform.NewRegistry(
		platform.NewGoogleAdapter(providerClient, slog.Default(), collector),
		platform.NewMetaAdapter(providerClient, slog.Default(), collector),
	)

	// 5. OAuth連携サービスの初期化
	states := integration.NewStateCodec(cfg.StateSigningSecret, cfg.StateTTL)
	googleConnector := integration.NewGoogleConnector(integration.GoogleConnectorConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
	}, providerClient)
	metaConnector := integration.NewMetaConnector(integration.MetaConnectorConfig{
		AppID:       cfg.MetaAppID,
		AppSecret:   cfg.MetaAppSecret,
		RedirectURL: cfg.MetaRedirectURL,
	}, providerClient)
	integrationService := integration.NewService(
		[]integration.Connector{googleConnector, metaConnector},
		states, cipher, credRepo, reviewRepo, cfg.DefaultTokenLifetime, slog.Default(),
	)

	// 6. 同期オーケストレーターの初期化
	orchestrator := reviewsync.NewOrchestrator(
		credRepo, reviewRepo, cipher, sanitizer, registry, collector, slog.Default(),
	)

	// 7. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitSync),
	)
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Logger:            slog.Default(),

		IntegrationService: integrationService,
		IntegrationConfig: handler.IntegrationHandlerConfig{
			FrontendURL: cfg.FrontendURL,
		},

		SyncService:   orchestrator,
		ReviewService: reviewRepo,

		MetricsHandler: metrics.Handler(promRegistry),
	}

	router := handler.NewRouter(deps)

	// 8. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
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

// runWorker はワーカーモードで起動する。
// DB接続を開き、期限切れ認証情報を対象としたレビュー同期スケジューラを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	// 2. リポジトリの初期化
	credRepo := repository.NewPostgresCredentialRepo(db)
	reviewRepo := repository.NewPostgresReviewRepo(db)

	// 3. セキュリティサービスの初期化
	cipher, err := security.NewTokenCipher(cfg.CredentialEncKey)
	if err != nil {
		return fmt.Errorf("failed to initialize token cipher: %w", err)
	}
	sanitizer := security.NewReviewSanitizer()

	// 4. メトリクスとプラットフォームアダプターの初期化
	collector := metrics.NewCollector(prometheus.NewRegistry())

	providerClient := &http.Client{Timeout: cfg.ProviderTimeout}
	registry := platform.NewRegistry(
		platform.NewGoogleAdapter(providerClient, slog.Default(), collector),
		platform.NewMetaAdapter(providerClient, slog.Default(), collector),
	)

	// 5. 同期オーケストレーターの初期化
	orchestrator := reviewsync.NewOrchestrator(
		credRepo, reviewRepo, cipher, sanitizer, registry, collector, slog.Default(),
	)

	// 6. スケジューラの構築
	scheduler := syncjob.NewScheduler(
		credRepo, orchestrator, slog.Default(), cfg.SyncInterval, cfg.SyncMaxConcurrent,
	)

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("sync_interval", cfg.SyncInterval),
		slog.Int("max_concurrent", cfg.SyncMaxConcurrent),
	)

	// 同期スケジューラをメインgoroutineで実行（ブロッキング）
	scheduler.Start(ctx)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("schema_version", uint64(version)),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
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
