// Package model はドメインモデルを定義する。
package model

import "time"

// ExternalReview は外部プラットフォームから取り込んだ正規化済みレビューを表す。
// (platform, account_id, external_id) の組で一意となり、再同期時は
// 既存行の上書き更新となる（重複行は作られない）。
type ExternalReview struct {
	ID              string
	AccountID       string
	Platform        Platform
	ExternalID      string // プロバイダーのレビューID、または決定的に導出したID
	Author          string
	Rating          int    // プロバイダーのネイティブスケール
	Comment         string // サニタイズ済み。空文字列の場合もある
	ReviewDate      time.Time
	IsDateEstimated bool // レビュー日時がパース不能で取込時刻を代用した場合true
	SyncedAt        time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// FetchedReview はアダプターが取得した未保存のレビューデータを表す。
// オーケストレーターがサニタイズと日時補完を行った後、永続化される。
type FetchedReview struct {
	ExternalID string
	Author     string
	Rating     int
	Comment    string     // 未サニタイズ
	ReviewDate *time.Time // パース不能の場合はnil
}

// SyncReason はプラットフォーム同期がスキップ/失敗した理由を表す。
type SyncReason string

const (
	// SyncReasonNotConnected は認証情報が存在しない状態。
	SyncReasonNotConnected SyncReason = "not_connected"
	// SyncReasonNeedsReauth は認証情報が失効しており再認可が必要な状態。
	SyncReasonNeedsReauth SyncReason = "needs_reauth"
	// SyncReasonTemporary は一時的な失敗。再試行で回復しうる。
	SyncReasonTemporary SyncReason = "temporary"
)

// PlatformSyncResult は1プラットフォーム分の同期結果を表す。
type PlatformSyncResult struct {
	Created int        `json:"created"`
	Updated int        `json:"updated"`
	Skipped bool       `json:"skipped"`
	Failed  bool       `json:"failed"`
	Reason  SyncReason `json:"reason,omitempty"`
}

// SyncReport は1回の同期呼び出しの全プラットフォーム集計結果を表す。
// あるプラットフォームの失敗は他のプラットフォームの結果に影響しない。
type SyncReport struct {
	AccountID string                          `json:"account_id"`
	StartedAt time.Time                       `json:"started_at"`
	Results   map[Platform]PlatformSyncResult `json:"results"`
}
