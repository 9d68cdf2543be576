package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/MusabMahmoodh/review-pulse-sub001/internal/model"
)

const (
	defaultReviewLimit = 50
	maxReviewLimit     = 200
)

// ReviewServiceInterface はレビューハンドラーが必要とするサービスインターフェース。
type ReviewServiceInterface interface {
	// ListByAccount はレビュー一覧をreview_date降順で返す。
	ListByAccount(ctx context.Context, accountID string, platform model.Platform, cursor time.Time, limit int) ([]*model.ExternalReview, error)
}

// ReviewHandler は取り込み済みレビュー照会のHTTPハンドラー。
type ReviewHandler struct {
	service ReviewServiceInterface
}

// NewReviewHandler はReviewHandlerを生成する。
func NewReviewHandler(service ReviewServiceInterface) *ReviewHandler {
	return &ReviewHandler{service: service}
}

// reviewResponse はレビュー1件分のAPIレスポンス。
type reviewResponse struct {
	ID              string         `json:"id"`
	Platform        model.Platform `json:"platform"`
	ExternalID      string         `json:"external_id"`
	Author          string         `json:"author"`
	Rating          int            `json:"rating"`
	Comment         string         `json:"comment"`
	ReviewDate      time.Time      `json:"review_date"`
	IsDateEstimated bool           `json:"is_date_estimated"`
	SyncedAt        time.Time      `json:"synced_at"`
}

// listReviewsResponse はレビュー一覧のAPIレスポンス。
// next_cursorは次ページ取得用のreview_date。最終ページでは省略される。
type listReviewsResponse struct {
	Reviews    []reviewResponse `json:"reviews"`
	NextCursor *time.Time       `json:"next_cursor,omitempty"`
}

// ListReviews は取り込み済みレビューの一覧を返す。
// GET /api/reviews?account_id=xxx[&platform=google][&cursor=RFC3339][&limit=50]
func (h *ReviewHandler) ListReviews(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	accountID := query.Get("account_id")
	if accountID == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "MISSING_ACCOUNT_ID",
			Message:  "account_idパラメータが必要です。",
			Category: "validation",
			Action:   "account_idを指定してください。",
		})
		return
	}

	var platform model.Platform
	if raw := query.Get("platform"); raw != "" {
		p, err := model.ParsePlatform(raw)
		if err != nil {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidPlatformError(raw))
			return
		}
		platform = p
	}

	var cursor time.Time
	if raw := query.Get("cursor"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
				Code:     "INVALID_CURSOR",
				Message:  "cursorパラメータはRFC3339形式で指定してください。",
				Category: "validation",
				Action:   "前回レスポンスのnext_cursorをそのまま指定してください。",
			})
			return
		}
		cursor = t
	}

	limit := defaultReviewLimit
	if raw := query.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
				Code:     "INVALID_LIMIT",
				Message:  "limitパラメータは正の整数で指定してください。",
				Category: "validation",
				Action:   "1から200の範囲で指定してください。",
			})
			return
		}
		if n > maxReviewLimit {
			n = maxReviewLimit
		}
		limit = n
	}

	reviews, err := h.service.ListByAccount(r.Context(), accountID, platform, cursor, limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := listReviewsResponse{Reviews: make([]reviewResponse, 0, len(reviews))}
	for _, rv := range reviews {
		resp.Reviews = append(resp.Reviews, reviewResponse{
			ID:              rv.ID,
			Platform:        rv.Platform,
			ExternalID:      rv.ExternalID,
			Author:          rv.Author,
			Rating:          rv.Rating,
			Comment:         rv.Comment,
			ReviewDate:      rv.ReviewDate,
			IsDateEstimated: rv.IsDateEstimated,
			SyncedAt:        rv.SyncedAt,
		})
	}
	// limit件ちょうど返った場合のみ次ページがありうる
	if len(reviews) == limit {
		last := reviews[len(reviews)-1].ReviewDate
		resp.NextCursor = &last
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
