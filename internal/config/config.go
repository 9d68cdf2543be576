// Package config は環境変数ベースのアプリケーション設定を提供する。
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Credential Cipher
	// 32バイト鍵のhexエンコード（64文字）。欠落・不正な場合は起動時に失敗する。
	CredentialEncKey string

	// OAuth state署名
	StateSigningSecret string
	StateTTL           time.Duration

	// Google OAuth / レビューAPI
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	// Meta OAuth / Graph API
	MetaAppID       string
	MetaAppSecret   string
	MetaRedirectURL string

	// Sync
	SyncInterval      time.Duration // ワーカーの同期サイクル間隔
	SyncMaxConcurrent int           // 同時に同期する(アカウント, プラットフォーム)数の上限
	ProviderTimeout   time.Duration // プロバイダーHTTP呼び出しのタイムアウト

	// トークン有効期限が不明な場合に適用する保守的なデフォルト寿命
	DefaultTokenLifetime time.Duration

	// Rate Limit
	RateLimitSync int // 同期トリガーのレート（req/min）

	// Server
	ServerPort string
	BaseURL    string

	// OAuthコールバック完了後のリダイレクト先フロントエンド。
	// 空の場合はリダイレクトせずJSONを返す。
	FrontendURL string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
// CREDENTIAL_ENC_KEYの形式不正も起動エラーとする（フェイルファスト）。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.CredentialEncKey = os.Getenv("CREDENTIAL_ENC_KEY")
	if cfg.CredentialEncKey == "" {
		missing = append(missing, "CREDENTIAL_ENC_KEY")
	}

	cfg.StateSigningSecret = os.Getenv("STATE_SIGNING_SECRET")
	if cfg.StateSigningSecret == "" {
		missing = append(missing, "STATE_SIGNING_SECRET")
	}

	cfg.GoogleClientID = os.Getenv("GOOGLE_CLIENT_ID")
	if cfg.GoogleClientID == "" {
		missing = append(missing, "GOOGLE_CLIENT_ID")
	}

	cfg.GoogleClientSecret = os.Getenv("GOOGLE_CLIENT_SECRET")
	if cfg.GoogleClientSecret == "" {
		missing = append(missing, "GOOGLE_CLIENT_SECRET")
	}

	cfg.MetaAppID = os.Getenv("META_APP_ID")
	if cfg.MetaAppID == "" {
		missing = append(missing, "META_APP_ID")
	}

	cfg.MetaAppSecret = os.Getenv("META_APP_SECRET")
	if cfg.MetaAppSecret == "" {
		missing = append(missing, "META_APP_SECRET")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// 暗号鍵の形式検証（hex 64文字 = 32バイト）
	key, err := hex.DecodeString(cfg.CredentialEncKey)
	if err != nil {
		return nil, fmt.Errorf("CREDENTIAL_ENC_KEY is not valid hex: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("CREDENTIAL_ENC_KEY must be 32 bytes (64 hex chars), got %d bytes", len(key))
	}

	// Optional fields with defaults
	cfg.StateTTL = getEnvDuration("STATE_TTL", 10*time.Minute)
	cfg.GoogleRedirectURL = getEnvString("GOOGLE_REDIRECT_URL", cfg.BaseURL+"/integrations/google/callback")
	cfg.MetaRedirectURL = getEnvString("META_REDIRECT_URL", cfg.BaseURL+"/integrations/meta/callback")
	cfg.SyncInterval = getEnvDuration("SYNC_INTERVAL", time.Hour)
	cfg.SyncMaxConcurrent = getEnvInt("SYNC_MAX_CONCURRENT", 5)
	cfg.ProviderTimeout = getEnvDuration("PROVIDER_TIMEOUT", 15*time.Second)
	cfg.DefaultTokenLifetime = getEnvDuration("DEFAULT_TOKEN_LIFETIME", 60*24*time.Hour)
	cfg.RateLimitSync = getEnvInt("RATE_LIMIT_SYNC", 10)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.FrontendURL = getEnvString("FRONTEND_URL", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
