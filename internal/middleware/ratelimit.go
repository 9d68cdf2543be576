package middleware

import (
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiterConfig はレート制限の設定を保持する。
type RateLimiterConfig struct {
	SyncRate        rate.Limit    // 同期トリガーのレート（req/sec）。10/60 = ~0.167 req/sec
	SyncBurst       int           // 同期トリガーのバーストサイズ
	CleanupInterval time.Duration // 期限切れエントリのクリーンアップ間隔
}

// NewRateLimiterConfig は同期トリガーのレート（req/min）から設定を生成する。
func NewRateLimiterConfig(syncPerMinute int) RateLimiterConfig {
	if syncPerMinute <= 0 {
		syncPerMinute = 10
	}
	return RateLimiterConfig{
		SyncRate:        rate.Limit(float64(syncPerMinute) / 60.0),
		SyncBurst:       syncPerMinute,
		CleanupInterval: 5 * time.Minute,
	}
}

// accountLimiter はアカウントごとのレートリミッターとアクセス時刻を保持する。
type accountLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter は手動同期トリガーのアカウント別レート制限を管理する。
// 同期はプロバイダーAPIのクォータを消費するため、アカウント単位で絞る。
type RateLimiter struct {
	config RateLimiterConfig

	mu       sync.RWMutex
	limiters map[string]*accountLimiter

	stopCh chan struct{}
}

// NewRateLimiter は新しいRateLimiterを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		config:   config,
		limiters: make(map[string]*accountLimiter),
		stopCh:   make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (rl *RateLimiter) Stop() {
	close(rl.stopCh)
}

// Allow は指定アカウントのリクエストを許可するかを返す。
func (rl *RateLimiter) Allow(accountID string) bool {
	return rl.getOrCreateLimiter(accountID).Allow()
}

// SyncTriggerMiddleware は手動同期トリガー用のレート制限ミドルウェアを返す。
// アカウントIDはクエリパラメータaccount_idから取得し、欠落時はリモート
// アドレスで代用する。
func (rl *RateLimiter) SyncTriggerMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.URL.Query().Get("account_id")
			if key == "" {
				key = r.RemoteAddr
			}

			if !rl.Allow(key) {
				writeRateLimitResponse(w, rl.config.SyncRate)
				slog.Warn("rate limit exceeded",
					slog.String("account_id", key),
					slog.String("limit_type", "sync_trigger"),
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// LimiterCount は現在管理されているリミッターのエントリ数を返す。
// テストおよびメトリクス用。
func (rl *RateLimiter) LimiterCount() int {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return len(rl.limiters)
}

// getOrCreateLimiter はアカウントのリミッターを取得または作成する。
func (rl *RateLimiter) getOrCreateLimiter(accountID string) *rate.Limiter {
	rl.mu.RLock()
	al, exists := rl.limiters[accountID]
	rl.mu.RUnlock()

	if exists {
		rl.mu.Lock()
		al.lastAccess = time.Now()
		rl.mu.Unlock()
		return al.limiter
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	// ダブルチェック
	if al, exists := rl.limiters[accountID]; exists {
		al.lastAccess = time.Now()
		return al.limiter
	}

	limiter := rate.NewLimiter(rl.config.SyncRate, rl.config.SyncBurst)
	rl.limiters[accountID] = &accountLimiter{
		limiter:    limiter,
		lastAccess: time.Now(),
	}

	return limiter
}

// cleanupLoop はバックグラウンドで期限切れエントリを定期的にクリーンアップする。
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup は最終アクセス時刻がCleanupIntervalの2倍を超えたエントリを削除する。
func (rl *RateLimiter) cleanup() {
	ttl := rl.config.CleanupInterval * 2

	now := time.Now()

	rl.mu.Lock()
	for accountID, al := range rl.limiters {
		if now.Sub(al.lastAccess) > ttl {
			delete(rl.limiters, accountID)
		}
	}
	rl.mu.Unlock()
}

// writeRateLimitResponse は429 Too Many Requestsレスポンスを書き込む。
// Retry-Afterヘッダーにはトークンが補充されるまでの推定秒数を設定する。
func writeRateLimitResponse(w http.ResponseWriter, r rate.Limit) {
	// Retry-Afterの算出: 1トークンが補充されるまでの秒数
	retryAfterSec := int(math.Ceil(1.0 / float64(r)))
	if retryAfterSec < 1 {
		retryAfterSec = 1
	}

	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)

	json.NewEncoder(w).Encode(map[string]string{
		"code":     "rate_limit_exceeded",
		"message":  "Too many requests. Please try again later.",
		"category": "system",
		"action":   "Please wait and retry after the specified time.",
	})
}
