package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/MusabMahmoodh/review-pulse-sub001/internal/model"
)

const (
	defaultMetaGraphBaseURL = "https://graph.facebook.com/v19.0"

	// metaPageLimit は1ページあたりの取得件数。
	metaPageLimit = 100
	// metaMaxPages はページネーションの暴走を防ぐ上限。
	// 上限到達は一時的エラーとして返し、部分結果で同期を完了させない。
	metaMaxPages = 100

	// metaTimeLayout はGraph APIのcreated_time形式（タイムゾーンにコロンなし）。
	metaTimeLayout = "2006-01-02T15:04:05-0700"
)

// Graph APIの認証系エラーコード。
// 102: セッション切れ、190: アクセストークン無効。
var metaAuthErrorCodes = map[int]bool{
	102: true,
	190: true,
}

// MetaAdapter はMeta（Facebookページ）のレビュー取得アダプター。
// ResourceIDにはページIDを想定し、AccessTokenにはページアクセストークンを使う。
type MetaAdapter struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
	recorder   StatusRecorder

	// テスト用にオーバーライド可能な設定
	baseURL  string
	maxPages int
}

// NewMetaAdapter はMetaAdapterを生成する。
// recorderがnilの場合、HTTPステータスの観測は記録しない。
func NewMetaAdapter(httpClient *http.Client, logger *slog.Logger, recorder StatusRecorder) *MetaAdapter {
	if recorder == nil {
		recorder = nopStatusRecorder{}
	}
	return &MetaAdapter{
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(5), 5),
		logger:     logger,
		recorder:   recorder,
		baseURL:    defaultMetaGraphBaseURL,
		maxPages:   metaMaxPages,
	}
}

// Platform はmodel.PlatformMetaを返す。
func (a *MetaAdapter) Platform() model.Platform {
	return model.PlatformMeta
}

// metaRatingsResponse は {page-id}/ratings エンドポイントのレスポンス。
type metaRatingsResponse struct {
	Data   []metaRating `json:"data"`
	Paging struct {
		Next string `json:"next"`
	} `json:"paging"`
	Error *metaGraphError `json:"error"`
}

// metaRating はFacebookページの推薦（レビュー）1件分。
type metaRating struct {
	CreatedTime string `json:"created_time"`
	Reviewer    struct {
		Name string `json:"name"`
		ID   string `json:"id"`
	} `json:"reviewer"`
	Rating             int    `json:"rating"`
	RecommendationType string `json:"recommendation_type"` // "positive" / "negative"
	ReviewText         string `json:"review_text"`
}

// metaGraphError はGraph APIのエラーペイロード。
type metaGraphError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    int    `json:"code"`
}

// FetchReviews はページの推薦を paging.next で全件取得する。
// Metaの推薦には安定したIDがないため、外部IDは常に決定的に導出する。
func (a *MetaAdapter) FetchReviews(ctx context.Context, cred Credential, since *time.Time) ([]model.FetchedReview, error) {
	q := url.Values{}
	q.Set("fields", "created_time,reviewer,rating,recommendation_type,review_text")
	q.Set("limit", fmt.Sprintf("%d", metaPageLimit))
	q.Set("access_token", cred.AccessToken)

	reqURL := fmt.Sprintf("%s/%s/ratings?%s", a.baseURL, url.PathEscape(cred.ResourceID), q.Encode())

	var all []model.FetchedReview

	for page := 0; page < a.maxPages; page++ {
		body, status, err := getJSON(ctx, a.httpClient, a.limiter, a.logger, reqURL, nil)
		if err != nil {
			return nil, fmt.Errorf("Metaレビューの取得に失敗しました: %w", err)
		}
		a.recorder.RecordProviderStatus(model.PlatformMeta, status)

		var resp metaRatingsResponse
		if jsonErr := json.Unmarshal(body, &resp); jsonErr != nil && status == http.StatusOK {
			return nil, fmt.Errorf("Metaレビューレスポンスのパースに失敗しました: %w", jsonErr)
		}

		if resp.Error != nil && metaAuthErrorCodes[resp.Error.Code] {
			return nil, fmt.Errorf("%w: Graph APIエラー code=%d: %s", model.ErrAuthExpired, resp.Error.Code, resp.Error.Message)
		}
		if authErr := classifyAuthStatus(status); authErr != nil {
			return nil, authErr
		}
		if status != http.StatusOK {
			if resp.Error != nil {
				return nil, fmt.Errorf("Graph APIがエラーを返しました (code=%d): %s", resp.Error.Code, resp.Error.Message)
			}
			return nil, fmt.Errorf("Graph APIがステータス %d を返しました", status)
		}

		for _, rt := range resp.Data {
			all = append(all, a.normalize(cred, rt))
		}

		next := resp.Paging.Next
		if next == "" {
			return filterSince(all, since), nil
		}
		// paging.nextは絶対URL。テスト時はベースURLに付け替える。
		reqURL = a.rewriteNextURL(next)
	}

	// 部分結果で同期を完了させるとウォーターマークが未取得分を
	// 追い越してしまうため、上限到達は一時的エラーとして失敗させる。
	a.logger.Error("Metaレビューのページネーションが上限に達しました",
		slog.String("resource_id", cred.ResourceID),
		slog.Int("max_pages", a.maxPages),
	)
	return nil, fmt.Errorf("Metaレビューのページネーションが上限 %dページに達しました", a.maxPages)
}

// rewriteNextURL はpaging.nextのホストをアダプターのベースURLに合わせる。
// 本番のGraph APIでは恒等変換となる。
func (a *MetaAdapter) rewriteNextURL(next string) string {
	if strings.HasPrefix(next, defaultMetaGraphBaseURL) {
		return a.baseURL + strings.TrimPrefix(next, defaultMetaGraphBaseURL)
	}
	parsed, err := url.Parse(next)
	if err != nil {
		return next
	}
	base, err := url.Parse(a.baseURL)
	if err != nil {
		return next
	}
	parsed.Scheme = base.Scheme
	parsed.Host = base.Host
	return parsed.String()
}

// normalize はMetaの推薦をFetchedReviewに変換する。
func (a *MetaAdapter) normalize(cred Credential, rt metaRating) model.FetchedReview {
	reviewDate := parseMetaTime(rt.CreatedTime)
	if reviewDate == nil && rt.CreatedTime != "" {
		a.logger.Warn("Metaレビューの日時をパースできませんでした",
			slog.String("resource_id", cred.ResourceID),
			slog.String("created_time", rt.CreatedTime),
		)
	}

	rating := rt.Rating
	if rating == 0 {
		// 星評価のない推薦はpositive/negativeのみを持つ
		switch rt.RecommendationType {
		case "positive":
			rating = 5
		case "negative":
			rating = 1
		}
	}

	author := rt.Reviewer.Name
	idSeed := author
	if rt.Reviewer.ID != "" {
		idSeed = rt.Reviewer.ID
	}

	return model.FetchedReview{
		ExternalID: FallbackReviewID(model.PlatformMeta, cred.ResourceID, reviewDate, idSeed, rt.ReviewText),
		Author:     author,
		Rating:     rating,
		Comment:    rt.ReviewText,
		ReviewDate: reviewDate,
	}
}

// parseMetaTime はGraph APIの日時形式をパースする。失敗時はRFC3339も試す。
func parseMetaTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	if t, err := time.Parse(metaTimeLayout, s); err == nil {
		return &t
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t
	}
	return nil
}

// compile-time interface check
var _ ReviewAdapter = (*MetaAdapter)(nil)
