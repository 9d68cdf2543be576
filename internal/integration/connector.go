// Package integration はレビュープラットフォームとのOAuth連携を提供する。
// 各プラットフォームのハンドシェイク（認可URL生成、コード交換、
// リソース解決）をConnectorインターフェースの背後に隠蔽する。
package integration

import (
	"context"
	"errors"

	"github.com/MusabMahmoodh/review-pulse-sub001/internal/model"
)

var (
	// ErrTokenExchange は認可コードのトークン交換失敗を示す。
	ErrTokenExchange = errors.New("token exchange failed")

	// ErrNoResource はトークン取得後にレビュー対象リソース
	// （ビジネスロケーションやFacebookページ）が見つからないことを示す。
	ErrNoResource = errors.New("no reviewable resource found")
)

// HandshakeResult はハンドシェイク完了時の成果物。
// トークンは平文のまま保持されるため、呼び出し側が速やかに暗号化して
// 永続化し、この構造体を破棄する責任を持つ。
type HandshakeResult struct {
	AccessToken         string
	RefreshToken        string
	ResourceID          string
	SecondaryResourceID string

	// ExpiresIn はトークン寿命（秒）。プロバイダーが返さない場合は0。
	ExpiresIn int
}

// Connector は1プラットフォーム分のOAuthハンドシェイクを実装する。
type Connector interface {
	// Platform はコネクターが対応するプラットフォームを返す。
	Platform() model.Platform

	// AuthURL は署名済みstateを埋め込んだ認可URLを生成する。
	AuthURL(state string) string

	// Complete は認可コードをトークンに交換し、レビュー対象リソースを
	// 解決する。交換失敗はErrTokenExchange、リソースなしはErrNoResourceを
	// ラップしたエラーを返す。
	Complete(ctx context.Context, code string) (*HandshakeResult, error)
}
