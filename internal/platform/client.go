package platform

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/MusabMahmoodh/review-pulse-sub001/internal/model"
)

const (
	userAgent = "ReviewPulse/1.0 Review Sync"

	// maxAttempts は一時的なネットワークエラーに対する試行回数の上限。
	maxAttempts = 3
	// retryBaseDelay はリトライの基本待機時間。試行回数に比例して延びる。
	retryBaseDelay = 500 * time.Millisecond
	// maxResponseSize はプロバイダーレスポンスの最大読み取りサイズ（5MB）。
	maxResponseSize = 5 * 1024 * 1024
)

// getJSON はレート制限とリトライ付きでGETリクエストを実行し、
// レスポンスボディとHTTPステータスを返す。
// リトライ対象はネットワークエラーと429/5xxのみ。4xxはリトライしない
// （認証失効はリトライで回復しないため、分類は呼び出し元が行う）。
func getJSON(ctx context.Context, client *http.Client, limiter *rate.Limiter, logger *slog.Logger, rawURL string, header http.Header) ([]byte, int, error) {
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return nil, 0, fmt.Errorf("レート制限待機が中断されました: %w", err)
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, 0, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
		}
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Accept", "application/json")
		for k, vs := range header {
			for _, v := range vs {
				req.Header.Set(k, v)
			}
		}

		resp, err := client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("HTTPリクエストに失敗しました: %w", err)
			if !sleepBeforeRetry(ctx, attempt) {
				return nil, 0, lastErr
			}
			continue
		}

		body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		resp.Body.Close()
		if readErr != nil {
			lastErr = fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", readErr)
			if !sleepBeforeRetry(ctx, attempt) {
				return nil, 0, lastErr
			}
			continue
		}

		// 429/5xxはリトライ対象
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("プロバイダーがステータス %d を返しました", resp.StatusCode)
			if attempt < maxAttempts {
				logger.Warn("プロバイダー呼び出しをリトライします",
					slog.Int("http_status", resp.StatusCode),
					slog.Int("attempt", attempt),
				)
			}
			if !sleepBeforeRetry(ctx, attempt) {
				return body, resp.StatusCode, lastErr
			}
			continue
		}

		return body, resp.StatusCode, nil
	}

	return nil, 0, lastErr
}

// sleepBeforeRetry はリトライ前の待機を行う。
// コンテキストがキャンセルされた場合、または最終試行の場合はfalseを返す。
func sleepBeforeRetry(ctx context.Context, attempt int) bool {
	if attempt >= maxAttempts {
		return false
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(retryBaseDelay * time.Duration(attempt)):
		return true
	}
}

// classifyAuthStatus はHTTPステータスが認証失効を示す場合にErrAuthExpiredを返す。
func classifyAuthStatus(statusCode int) error {
	if statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden {
		return fmt.Errorf("%w: HTTPステータス %d", model.ErrAuthExpired, statusCode)
	}
	return nil
}
