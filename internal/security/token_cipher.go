// Package security はアプリケーションのセキュリティ機能を提供する。
package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/MusabMahmoodh/review-pulse-sub001/internal/model"
)

// TokenCipherService はOAuthトークン素材の暗号化/復号機能のインターフェースを定義する。
// 鍵はプロセス起動時に1回だけ読み込み、プロセス生存期間中は読み取り専用で保持する。
// 暗号文はこの境界の外に平文として漏れてはならない。
type TokenCipherService interface {
	// Encrypt は平文をAES-256-GCMで暗号化し、base64(nonce || ciphertext || tag)を返す。
	Encrypt(plaintext string) (string, error)
	// Decrypt はEncryptが生成した暗号文を復号する。
	// 現在の鍵で生成されていない値（改ざん・鍵違い・破損）の場合は
	// model.ErrCryptoでラップしたエラーを返し、決して不正な平文を返さない。
	Decrypt(ciphertext string) (string, error)
}

// TokenCipher はAES-256-GCMによるTokenCipherServiceの実装。
type TokenCipher struct {
	aead cipher.AEAD
}

// NewTokenCipher はhexエンコードされた32バイト鍵からTokenCipherを生成する。
// 鍵が不正な場合はエラーを返す（起動時のフェイルファストを想定）。
func NewTokenCipher(keyHex string) (*TokenCipher, error) {
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("暗号鍵のhexデコードに失敗しました: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("暗号鍵は32バイトである必要があります: got %d bytes", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("AES暗号の初期化に失敗しました: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("GCMモードの初期化に失敗しました: %w", err)
	}

	return &TokenCipher{aead: aead}, nil
}

// Encrypt は平文をAES-256-GCMで暗号化する。
// 出力はbase64(nonce || ciphertext || tag)。
func (c *TokenCipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("nonceの生成に失敗しました: %w", err)
	}

	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt はEncryptが生成した暗号文を復号する。
// 失敗はすべてmodel.ErrCryptoでラップされる。GCMの認証タグ検証により
// 改ざんされた暗号文が不正な平文として通過することはない。
func (c *TokenCipher) Decrypt(ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: base64デコード失敗: %v", model.ErrCrypto, err)
	}

	nonceSize := c.aead.NonceSize()
	if len(raw) < nonceSize {
		return "", fmt.Errorf("%w: 暗号文が短すぎます", model.ErrCrypto)
	}

	nonce, sealed := raw[:nonceSize], raw[nonceSize:]
	plain, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrCrypto, err)
	}

	return string(plain), nil
}

// compile-time interface check
var _ TokenCipherService = (*TokenCipher)(nil)
