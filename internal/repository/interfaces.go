// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/MusabMahmoodh/review-pulse-sub001/internal/model"
)

// CredentialRepository は連携認証情報の永続化インターフェース。
// トークンは暗号文のみを保持し、平文がこの層を通過することはない。
type CredentialRepository interface {
	// FindByAccountAndPlatform は(account_id, platform)で認証情報を取得する。
	// 見つからない場合はnilを返す。
	FindByAccountAndPlatform(ctx context.Context, accountID string, platform model.Platform) (*model.IntegrationCredential, error)

	// Upsert は認証情報を作成または全フィールド上書きする。
	// マージはしない（OAuthハンドシェイクが常に完全なレコードを渡す）。
	Upsert(ctx context.Context, cred *model.IntegrationCredential) error

	// MarkExpired はstatusをexpiredに設定する。冪等（2回目以降は実質no-op）。
	MarkExpired(ctx context.Context, accountID string, platform model.Platform) error

	// TouchSyncedAt は同期ウォーターマークを前進させる。
	// 並行同期で古いタイムスタンプが後着しても、保存済みの値より
	// 過去には戻らない（ストレージ層でのmax更新）。
	TouchSyncedAt(ctx context.Context, accountID string, platform model.Platform, ts time.Time) error

	// ListDueForSync は同期が必要なactiveな認証情報を取得する。
	// last_synced_atがNULL（初回同期）またはstaleBeforeより古いものが対象。
	ListDueForSync(ctx context.Context, staleBefore time.Time) ([]*model.IntegrationCredential, error)
}

// ReviewRepository は正規化済みレビューの永続化インターフェース。
// (platform, account_id, external_id) の一意制約により冪等な取り込みを保証する。
type ReviewRepository interface {
	// Upsert はレビューを挿入または上書き更新する。
	// 新規挿入の場合はcreated=trueを返す。
	// 同一キーの再取り込みは可変フィールド（rating/comment等）の更新となり、
	// 重複行は作られない。
	Upsert(ctx context.Context, review *model.ExternalReview) (created bool, err error)

	// ListByAccount はアカウントのレビュー一覧をreview_date降順で返す。
	// platformが空の場合は全プラットフォームを対象とする。
	// cursorがゼロ値の場合は先頭から取得する。
	ListByAccount(ctx context.Context, accountID string, platform model.Platform, cursor time.Time, limit int) ([]*model.ExternalReview, error)

	// CountByAccountAndPlatform は(account_id, platform)のレビュー件数を返す。
	CountByAccountAndPlatform(ctx context.Context, accountID string, platform model.Platform) (int, error)
}
