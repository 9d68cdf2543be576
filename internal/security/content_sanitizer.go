// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ReviewSanitizerService は外部プラットフォームから取得したレビュー本文を
// 保存前にサニタイズし、ダッシュボード表示時のXSSリスクを排除する。
// レビュー本文はプレーンテキストとして扱うため、bluemondayの
// StrictPolicyで全タグを除去する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ReviewSanitizerService はレビューテキストのサニタイズ機能のインターフェースを定義する。
type ReviewSanitizerService interface {
	// Sanitize はレビュー本文・投稿者名からHTMLタグをすべて除去し、
	// 前後の空白をトリムしたプレーンテキストを返す。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// reviewSanitizer はReviewSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type reviewSanitizer struct {
	policy *bluemonday.Policy
}

// NewReviewSanitizer はReviewSanitizerServiceの新しいインスタンスを生成する。
// レビューはプレーンテキストとして保存するため、許可タグを持たない
// StrictPolicyを使用する。
func NewReviewSanitizer() *reviewSanitizer {
	return &reviewSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize はレビューテキストからHTMLタグを除去する。
// StrictPolicyはタグ除去時にエンティティをエスケープするため、
// 表示用の生テキストに戻してから返す。
func (s *reviewSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}
	cleaned := s.policy.Sanitize(raw)
	return strings.TrimSpace(html.UnescapeString(cleaned))
}

// compile-time interface check
var _ ReviewSanitizerService = (*reviewSanitizer)(nil)
