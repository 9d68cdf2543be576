package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/MusabMahmoodh/review-pulse-sub001/internal/model"
)

const (
	defaultGoogleReviewsBaseURL = "https://mybusiness.googleapis.com/v4"

	// googlePageSize は1ページあたりの取得件数。APIの上限は50。
	googlePageSize = 50
	// googleMaxPages はページネーションの暴走を防ぐ上限。
	// 上限到達は一時的エラーとして返し、部分結果で同期を完了させない。
	googleMaxPages = 100
)

// GoogleAdapter はGoogleビジネスプロフィールのレビューAPIアダプター。
// ResourceIDには "accounts/{id}/locations/{id}" 形式のロケーション名を想定する。
type GoogleAdapter struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
	recorder   StatusRecorder

	// テスト用にオーバーライド可能な設定
	baseURL  string
	maxPages int
}

// NewGoogleAdapter はGoogleAdapterを生成する。
// レビューAPIのクォータに合わせ、毎秒5リクエストに抑える。
// recorderがnilの場合、HTTPステータスの観測は記録しない。
func NewGoogleAdapter(httpClient *http.Client, logger *slog.Logger, recorder StatusRecorder) *GoogleAdapter {
	if recorder == nil {
		recorder = nopStatusRecorder{}
	}
	return &GoogleAdapter{
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(5), 5),
		logger:     logger,
		recorder:   recorder,
		baseURL:    defaultGoogleReviewsBaseURL,
		maxPages:   googleMaxPages,
	}
}

// Platform はmodel.PlatformGoogleを返す。
func (a *GoogleAdapter) Platform() model.Platform {
	return model.PlatformGoogle
}

// googleReviewsResponse はレビュー一覧エンドポイントのレスポンス。
type googleReviewsResponse struct {
	Reviews       []googleReview `json:"reviews"`
	NextPageToken string         `json:"nextPageToken"`
}

// googleReview はGoogleのレビュー1件分。
type googleReview struct {
	ReviewID string `json:"reviewId"`
	Reviewer struct {
		DisplayName string `json:"displayName"`
	} `json:"reviewer"`
	StarRating string `json:"starRating"` // "ONE".."FIVE"
	Comment    string `json:"comment"`
	CreateTime string `json:"createTime"`
	UpdateTime string `json:"updateTime"`
}

// FetchReviews はロケーションの全レビューをページネーションで取得する。
// GoogleのレビューAPIはサーバーサイドの日時フィルタを持たないため、
// sinceによる絞り込みはクライアント側で行う。
func (a *GoogleAdapter) FetchReviews(ctx context.Context, cred Credential, since *time.Time) ([]model.FetchedReview, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+cred.AccessToken)

	var all []model.FetchedReview
	pageToken := ""

	for page := 0; page < a.maxPages; page++ {
		reqURL := fmt.Sprintf("%s/%s/reviews?pageSize=%d", a.baseURL, cred.ResourceID, googlePageSize)
		if pageToken != "" {
			reqURL += "&pageToken=" + url.QueryEscape(pageToken)
		}

		body, status, err := getJSON(ctx, a.httpClient, a.limiter, a.logger, reqURL, header)
		if err != nil {
			return nil, fmt.Errorf("Googleレビューの取得に失敗しました: %w", err)
		}
		a.recorder.RecordProviderStatus(model.PlatformGoogle, status)
		if authErr := classifyAuthStatus(status); authErr != nil {
			return nil, authErr
		}
		if status != http.StatusOK {
			return nil, fmt.Errorf("GoogleレビューAPIがステータス %d を返しました", status)
		}

		var resp googleReviewsResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("Googleレビューレスポンスのパースに失敗しました: %w", err)
		}

		for _, rv := range resp.Reviews {
			all = append(all, a.normalize(cred, rv))
		}

		if resp.NextPageToken == "" {
			return filterSince(all, since), nil
		}
		pageToken = resp.NextPageToken
	}

	// 部分結果で同期を完了させるとウォーターマークが未取得分を
	// 追い越してしまうため、上限到達は一時的エラーとして失敗させる。
	a.logger.Error("Googleレビューのページネーションが上限に達しました",
		slog.String("resource_id", cred.ResourceID),
		slog.Int("max_pages", a.maxPages),
	)
	return nil, fmt.Errorf("Googleレビューのページネーションが上限 %dページに達しました", a.maxPages)
}

// normalize はGoogleのレビューをFetchedReviewに変換する。
func (a *GoogleAdapter) normalize(cred Credential, rv googleReview) model.FetchedReview {
	reviewDate := parseGoogleTime(rv.CreateTime)
	if reviewDate == nil && rv.CreateTime != "" {
		a.logger.Warn("Googleレビューの日時をパースできませんでした",
			slog.String("resource_id", cred.ResourceID),
			slog.String("create_time", rv.CreateTime),
		)
	}

	externalID := rv.ReviewID
	if externalID == "" {
		externalID = FallbackReviewID(model.PlatformGoogle, cred.ResourceID, reviewDate, rv.Reviewer.DisplayName, rv.Comment)
	}

	return model.FetchedReview{
		ExternalID: externalID,
		Author:     rv.Reviewer.DisplayName,
		Rating:     starRatingToInt(rv.StarRating),
		Comment:    rv.Comment,
		ReviewDate: reviewDate,
	}
}

// starRatingToInt はGoogleの星評価列挙を整数（1-5）に変換する。
// 未知の値は0となる。
func starRatingToInt(s string) int {
	switch s {
	case "ONE":
		return 1
	case "TWO":
		return 2
	case "THREE":
		return 3
	case "FOUR":
		return 4
	case "FIVE":
		return 5
	default:
		return 0
	}
}

// parseGoogleTime はRFC3339形式の日時をパースする。失敗時はnilを返す。
func parseGoogleTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	return &t
}

// compile-time interface check
var _ ReviewAdapter = (*GoogleAdapter)(nil)
