// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// 分類用センチネルエラー。
// アダプターはプロバイダー側の失敗をこの2種類のいずれかに必ず分類する。
var (
	// ErrAuthExpired はプロバイダーが認証/権限エラーを返したことを示す。
	// リトライでは回復せず、再認可が必要。
	ErrAuthExpired = errors.New("プロバイダー認証が失効しています")

	// ErrCrypto は認証情報の暗号化/復号の失敗を示す。
	// 鍵またはストレージの破損を意味するため、握りつぶしてはならない。
	ErrCrypto = errors.New("認証情報の暗号処理に失敗しました")
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, integration, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeBadCallback         = "BAD_CALLBACK"
	ErrCodeProviderAuthError   = "PROVIDER_AUTH_ERROR"
	ErrCodeTokenExchangeFailed = "TOKEN_EXCHANGE_FAILED"
	ErrCodeNoResourceFound     = "NO_RESOURCE_FOUND"
	ErrCodeInvalidPlatform     = "INVALID_PLATFORM"
	ErrCodeInvalidState        = "INVALID_STATE"
	ErrCodeSyncFailed          = "SYNC_FAILED"
)

// NewBadCallbackError はコールバックパラメータ不足エラーを生成する。
func NewBadCallbackError(missing string) *APIError {
	return &APIError{
		Code:     ErrCodeBadCallback,
		Message:  fmt.Sprintf("コールバックに必要なパラメータがありません: %s", missing),
		Category: "validation",
		Action:   "連携を最初からやり直してください。",
	}
}

// NewProviderAuthError はプロバイダー側OAuthエラーを生成する。
// ユーザーが同意を拒否した場合などに、プロバイダーのエラーをそのまま伝える。
func NewProviderAuthError(providerError string) *APIError {
	return &APIError{
		Code:     ErrCodeProviderAuthError,
		Message:  fmt.Sprintf("プロバイダーが認可エラーを返しました: %s", providerError),
		Category: "auth",
		Action:   "プロバイダー側で連携を許可した上で、再度お試しください。",
	}
}

// NewTokenExchangeFailedError はトークン交換失敗エラーを生成する。
func NewTokenExchangeFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeTokenExchangeFailed,
		Message:  "認可コードのトークン交換に失敗しました。",
		Category: "auth",
		Action:   "再度認可をやり直してください。問題が続く場合はアプリ設定を確認してください。",
	}
}

// NewNoResourceFoundError は接続可能なリソースが見つからないエラーを生成する。
// 認証自体は成功しているが、接続対象のページ/ロケーションが存在しない状態。
// トークン失敗とはユーザーの対処方法が異なるため区別する。
func NewNoResourceFoundError(platform Platform) *APIError {
	return &APIError{
		Code:     ErrCodeNoResourceFound,
		Message:  fmt.Sprintf("%s に接続可能なページ/ロケーションが見つかりませんでした。", platform),
		Category: "integration",
		Action:   "プロバイダー側でビジネスページまたはロケーションを作成してから再度連携してください。",
	}
}

// NewInvalidPlatformError は未対応プラットフォームエラーを生成する。
func NewInvalidPlatformError(platform string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidPlatform,
		Message:  fmt.Sprintf("未対応のプラットフォームです: %s", platform),
		Category: "validation",
		Action:   "platform には google または meta を指定してください。",
	}
}

// NewInvalidStateError は不正なstateパラメータのエラーを生成する。
func NewInvalidStateError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidState,
		Message:  "stateパラメータの検証に失敗しました。",
		Category: "auth",
		Action:   "連携を最初からやり直してください。",
	}
}
