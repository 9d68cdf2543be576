// Package model はドメインモデルを定義する。
package model

import "fmt"

// Platform は外部レビュープラットフォームを表す型付き列挙。
// 文字列比較による動的ディスパッチを避け、対応プラットフォームの追加を
// コンパイル時にチェック可能にする。
type Platform string

const (
	// PlatformGoogle はGoogleビジネスプロフィールのレビューAPI。
	PlatformGoogle Platform = "google"
	// PlatformMeta はMeta Graph APIのページ評価。
	PlatformMeta Platform = "meta"
)

// AllPlatforms は対応している全プラットフォームを返す。
func AllPlatforms() []Platform {
	return []Platform{PlatformGoogle, PlatformMeta}
}

// ParsePlatform は文字列をPlatformに変換する。
// 未対応の値の場合はエラーを返す。
func ParsePlatform(s string) (Platform, error) {
	switch Platform(s) {
	case PlatformGoogle:
		return PlatformGoogle, nil
	case PlatformMeta:
		return PlatformMeta, nil
	default:
		return "", fmt.Errorf("未対応のプラットフォームです: %q", s)
	}
}
