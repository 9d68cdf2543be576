// Package model はドメインモデルを定義する。
package model

import "time"

// CredentialStatus は連携認証情報の状態を表す。
type CredentialStatus string

const (
	// CredentialStatusActive は有効な認証情報。
	CredentialStatusActive CredentialStatus = "active"
	// CredentialStatusExpired は失効した認証情報。再認可が必要。
	CredentialStatusExpired CredentialStatus = "expired"
)

// IntegrationCredential は(アカウント, プラットフォーム)ごとの連携認証情報を表す。
// トークンは暗号文のままで保持し、平文はアダプター呼び出しの間だけ
// メモリ上に存在する。
type IntegrationCredential struct {
	ID                  string
	AccountID           string
	Platform            Platform
	ResourceID          string // プロバイダーが割り当てたリソースID（ページ/ロケーション等）
	SecondaryResourceID string // 連携された副リソースID（Instagramビジネスアカウント等）
	AccessTokenCipher   string // 暗号化済みアクセストークン
	RefreshTokenCipher  string // 暗号化済みリフレッシュ/長期トークン（プラットフォーム依存）
	TokenExpiry         time.Time
	LastSyncedAt        *time.Time // 同期ウォーターマーク。未同期の場合はnil
	Status              CredentialStatus
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// IsExpired は認証情報が失効扱いかどうかを返す。
// statusがexpiredの場合に加え、トークン有効期限を過ぎている場合もtrueとなる。
func (c *IntegrationCredential) IsExpired(now time.Time) bool {
	if c.Status == CredentialStatusExpired {
		return true
	}
	return !c.TokenExpiry.IsZero() && now.After(c.TokenExpiry)
}
