// Package platform は外部レビュープラットフォームのアダプターを提供する。
// 各アダプターは復号済み認証情報を受け取り、プロバイダー固有の
// ページネーションとレスポンス形式を隠蔽して正規化済みレビューを返す。
// プロバイダー側の失敗は必ず「認証失効」か「一時的エラー」のどちらかに
// 分類される（model.ErrAuthExpiredか、それ以外のエラー）。
package platform

import (
	"context"
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/MusabMahmoodh/review-pulse-sub001/internal/model"
)

// Credential はアダプター呼び出しのためだけに復号された認証情報を表す。
// 永続化されることはなく、呼び出しの間だけメモリ上に存在する。
type Credential struct {
	AccountID           string
	ResourceID          string // ページ/ロケーション等のプロバイダーリソースID
	SecondaryResourceID string
	AccessToken         string
	RefreshToken        string
}

// ReviewAdapter はプラットフォーム別のレビュー取得インターフェース。
type ReviewAdapter interface {
	// Platform はアダプターが対応するプラットフォームを返す。
	Platform() model.Platform

	// FetchReviews はプロバイダーからレビューを取得して正規化する。
	// ページネーションはアダプターが所有する。sinceが指定された場合、
	// プロバイダーがサーバーサイドフィルタを持たなければクライアント側で
	// sinceより古いレビューを除外する。
	// 認証/権限エラーはmodel.ErrAuthExpiredでラップして返し、
	// それ以外の失敗（ネットワーク、不正なペイロード等）は一時的エラーとなる。
	FetchReviews(ctx context.Context, cred Credential, since *time.Time) ([]model.FetchedReview, error)
}

// StatusRecorder はプロバイダーAPIのHTTPステータスコード観測を記録する。
type StatusRecorder interface {
	RecordProviderStatus(platform model.Platform, statusCode int)
}

// nopStatusRecorder はメトリクス無効時のStatusRecorder実装。
type nopStatusRecorder struct{}

func (nopStatusRecorder) RecordProviderStatus(model.Platform, int) {}

// Registry はプラットフォームからアダプターへの閉じた対応表。
// 起動時に構築され、以降は読み取り専用。
type Registry struct {
	adapters map[model.Platform]ReviewAdapter
	order    []model.Platform
}

// NewRegistry は指定されたアダプター群からRegistryを生成する。
func NewRegistry(adapters ...ReviewAdapter) *Registry {
	r := &Registry{adapters: make(map[model.Platform]ReviewAdapter)}
	for _, a := range adapters {
		p := a.Platform()
		if _, exists := r.adapters[p]; exists {
			continue
		}
		r.adapters[p] = a
		r.order = append(r.order, p)
	}
	return r
}

// For は指定プラットフォームのアダプターを返す。
func (r *Registry) For(p model.Platform) (ReviewAdapter, bool) {
	a, ok := r.adapters[p]
	return a, ok
}

// Platforms は登録済みプラットフォームを登録順で返す。
func (r *Registry) Platforms() []model.Platform {
	out := make([]model.Platform, len(r.order))
	copy(out, r.order)
	return out
}

// FallbackReviewID はプロバイダーがネイティブIDを持たないレビューに対して
// 決定的なIDを導出する。同一レビューの再取得は常に同一IDとなるため、
// 再同期が冪等になる。
// 日時がパースできなかったレビュー同士が同一著者というだけで衝突しない
// よう、日時が欠落している場合のみ本文も識別子に混ぜる。日時を持つ
// レビューのIDは本文編集で変わらない（更新として扱われ続ける）。
func FallbackReviewID(platform model.Platform, resourceID string, reviewTime *time.Time, author, comment string) string {
	timeStr := ""
	if reviewTime != nil {
		timeStr = reviewTime.UTC().Format(time.RFC3339)
	}
	data := fmt.Sprintf("%s|%s|%s|%s", platform, resourceID, timeStr, author)
	if reviewTime == nil {
		data += "|" + comment
	}
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}

// filterSince はsinceより古いレビューを除外する。
// 日時がパースできなかったレビュー（ReviewDate == nil）は除外しない。
// 取込時に日時が補完されるため、取りこぼすよりは再取込の方が安全。
func filterSince(reviews []model.FetchedReview, since *time.Time) []model.FetchedReview {
	if since == nil {
		return reviews
	}
	filtered := make([]model.FetchedReview, 0, len(reviews))
	for _, rv := range reviews {
		if rv.ReviewDate != nil && rv.ReviewDate.Before(*since) {
			continue
		}
		filtered = append(filtered, rv)
	}
	return filtered
}
