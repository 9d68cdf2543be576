// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MusabMahmoodh/review-pulse-sub001/internal/integration"
	"github.com/MusabMahmoodh/review-pulse-sub001/internal/model"
)

// IntegrationServiceInterface は連携ハンドラーが必要とするサービスインターフェース。
type IntegrationServiceInterface interface {
	// BeginAuth はプラットフォームの認可URLを生成する。
	BeginAuth(platform model.Platform, accountID string) (string, error)
	// CompleteAuth はOAuthコールバックを検証し、認証情報を保存する。
	CompleteAuth(ctx context.Context, platform model.Platform, code, state string) (*model.IntegrationCredential, error)
	// Status は連携状態を返す。
	Status(ctx context.Context, accountID string, platform model.Platform) (*integration.ConnectionStatus, error)
}

// IntegrationHandlerConfig は連携ハンドラーの設定。
type IntegrationHandlerConfig struct {
	// FrontendURL はコールバック完了後のリダイレクト先。
	FrontendURL string
}

// IntegrationHandler はプラットフォーム連携のHTTPハンドラー。
type IntegrationHandler struct {
	service IntegrationServiceInterface
	config  IntegrationHandlerConfig
}

// NewIntegrationHandler はIntegrationHandlerを生成する。
func NewIntegrationHandler(service IntegrationServiceInterface, config IntegrationHandlerConfig) *IntegrationHandler {
	return &IntegrationHandler{
		service: service,
		config:  config,
	}
}

// connectResponse は連携開始のJSONレスポンス。
type connectResponse struct {
	AuthURL string `json:"auth_url"`
}

// callbackResponse は連携完了のJSONレスポンス。
type callbackResponse struct {
	Platform   model.Platform `json:"platform"`
	Connected  bool           `json:"connected"`
	ResourceID string         `json:"resource_id"`
}

// Connect はOAuthフローを開始する。
// GET /integrations/{platform}/connect?account_id=xxx
// format=json の場合はリダイレクトせず認可URLをJSONで返す。
func (h *IntegrationHandler) Connect(w http.ResponseWriter, r *http.Request) {
	platform, ok := parsePlatformParam(w, r)
	if !ok {
		return
	}

	accountID := r.URL.Query().Get("account_id")
	if accountID == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "MISSING_ACCOUNT_ID",
			Message:  "account_idパラメータが必要です。",
			Category: "validation",
			Action:   "account_idを指定してください。",
		})
		return
	}

	authURL, err := h.service.BeginAuth(platform, accountID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if r.URL.Query().Get("format") == "json" {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(connectResponse{AuthURL: authURL})
		return
	}

	http.Redirect(w, r, authURL, http.StatusTemporaryRedirect)
}

// Callback はOAuthコールバックを処理する。
// GET /integrations/{platform}/callback?code=xxx&state=yyy
// プロバイダーがエラーを返した場合はerrorパラメータが付く。
func (h *IntegrationHandler) Callback(w http.ResponseWriter, r *http.Request) {
	platform, ok := parsePlatformParam(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()

	// ユーザーが同意を拒否した場合など、プロバイダー側のエラーを先に処理する
	if providerErr := query.Get("error"); providerErr != "" {
		slog.Warn("プロバイダーが認可エラーを返しました",
			slog.String("platform", string(platform)),
			slog.String("provider_error", providerErr),
		)
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewProviderAuthError(providerErr))
		return
	}

	code := query.Get("code")
	if code == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewBadCallbackError("code"))
		return
	}
	state := query.Get("state")
	if state == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewBadCallbackError("state"))
		return
	}

	cred, err := h.service.CompleteAuth(r.Context(), platform, code, state)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if query.Get("format") == "json" || h.config.FrontendURL == "" {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(callbackResponse{
			Platform:   platform,
			Connected:  true,
			ResourceID: cred.ResourceID,
		})
		return
	}

	// フロントエンドにリダイレクト
	redirect := h.config.FrontendURL + "/integrations?connected=" + url.QueryEscape(string(platform))
	http.Redirect(w, r, redirect, http.StatusTemporaryRedirect)
}

// statusResponse は連携状態のJSONレスポンス。
type statusResponse struct {
	Platform     model.Platform `json:"platform"`
	Connected    bool           `json:"connected"`
	Status       string         `json:"status,omitempty"`
	ResourceID   string         `json:"resource_id,omitempty"`
	LastSyncedAt *time.Time     `json:"last_synced_at,omitempty"`
	TokenExpiry  *time.Time     `json:"token_expiry,omitempty"`
	ReviewCount  int            `json:"review_count"`
}

// Status は連携状態を返す。
// GET /integrations/{platform}/status?account_id=xxx
func (h *IntegrationHandler) Status(w http.ResponseWriter, r *http.Request) {
	platform, ok := parsePlatformParam(w, r)
	if !ok {
		return
	}

	accountID := r.URL.Query().Get("account_id")
	if accountID == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "MISSING_ACCOUNT_ID",
			Message:  "account_idパラメータが必要です。",
			Category: "validation",
			Action:   "account_idを指定してください。",
		})
		return
	}

	status, err := h.service.Status(r.Context(), accountID, platform)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(statusResponse{
		Platform:     status.Platform,
		Connected:    status.Connected,
		Status:       string(status.Status),
		ResourceID:   status.ResourceID,
		LastSyncedAt: status.LastSyncedAt,
		TokenExpiry:  status.TokenExpiry,
		ReviewCount:  status.ReviewCount,
	})
}

// parsePlatformParam はURLパラメータからプラットフォームを解決する。
// 未対応の値の場合はエラーレスポンスを書き込み、okにfalseを返す。
func parsePlatformParam(w http.ResponseWriter, r *http.Request) (model.Platform, bool) {
	raw := chi.URLParam(r, "platform")
	platform, err := model.ParsePlatform(raw)
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidPlatformError(raw))
		return "", false
	}
	return platform, true
}

// --- ヘルパー関数 ---

// apiErrorResponse は統一エラーフォーマットのレスポンス。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		statusCode := mapAPIErrorToHTTPStatus(apiErr)
		writeAPIErrorResponse(w, statusCode, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeBadCallback, model.ErrCodeInvalidPlatform, "MISSING_ACCOUNT_ID":
		return http.StatusBadRequest
	case model.ErrCodeInvalidState, model.ErrCodeProviderAuthError:
		return http.StatusUnauthorized
	case model.ErrCodeNoResourceFound:
		return http.StatusUnprocessableEntity
	case model.ErrCodeTokenExchangeFailed, model.ErrCodeSyncFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
