package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/MusabMahmoodh/review-pulse-sub001/internal/model"
)

// SyncServiceInterface は同期ハンドラーが必要とするサービスインターフェース。
type SyncServiceInterface interface {
	// SyncAccount は指定アカウントのレビュー同期を実行する。
	// platformsが空の場合は全プラットフォームを対象とする。
	SyncAccount(ctx context.Context, accountID string, platforms []model.Platform) *model.SyncReport
}

// SyncHandler は手動同期トリガーのHTTPハンドラー。
type SyncHandler struct {
	service SyncServiceInterface
}

// NewSyncHandler はSyncHandlerを生成する。
func NewSyncHandler(service SyncServiceInterface) *SyncHandler {
	return &SyncHandler{service: service}
}

// syncRequest は同期トリガーのリクエストボディ。
type syncRequest struct {
	AccountID string   `json:"account_id"`
	Platforms []string `json:"platforms"`
}

// TriggerSync は手動同期を実行する。
// POST /api/sync ボディ {"account_id": "...", "platforms": ["google"]}
// ボディが無い場合はクエリパラメータ account_id / platform も受け付ける。
// レスポンスはプラットフォーム別の取り込み結果レポート。同期の失敗は
// レポート内で表現され、HTTPステータスは200のままとなる。
func (h *SyncHandler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if r.Body != nil {
		// ボディ無しやクエリのみの呼び出しも許すため、デコード失敗は無視する。
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	accountID := req.AccountID
	if accountID == "" {
		accountID = r.URL.Query().Get("account_id")
	}
	if accountID == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "MISSING_ACCOUNT_ID",
			Message:  "account_idが必要です。",
			Category: "validation",
			Action:   "ボディまたはクエリでaccount_idを指定してください。",
		})
		return
	}

	rawPlatforms := req.Platforms
	if len(rawPlatforms) == 0 {
		if raw := r.URL.Query().Get("platform"); raw != "" {
			rawPlatforms = []string{raw}
		}
	}

	var platforms []model.Platform
	for _, raw := range rawPlatforms {
		platform, err := model.ParsePlatform(raw)
		if err != nil {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidPlatformError(raw))
			return
		}
		platforms = append(platforms, platform)
	}

	report := h.service.SyncAccount(r.Context(), accountID, platforms)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(report)
}
