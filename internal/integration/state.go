package integration

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidState はstateの形式不正、署名不一致、期限切れを示す。
var ErrInvalidState = errors.New("invalid oauth state")

// StateCodec はOAuth stateトークンの生成と検証を行う。
// stateは "accountID.expiryUnix.hexHMAC" 形式で、HMAC-SHA256により
// 改ざんとアカウントIDの差し替えを防ぐ。サーバー側にセッションを
// 持たないため、コールバックはどのインスタンスでも検証できる。
type StateCodec struct {
	secret []byte
	ttl    time.Duration
}

// NewStateCodec はStateCodecを生成する。
func NewStateCodec(secret string, ttl time.Duration) *StateCodec {
	return &StateCodec{secret: []byte(secret), ttl: ttl}
}

// Encode はaccountIDを埋め込んだ署名付きstateを生成する。
func (c *StateCodec) Encode(accountID string) string {
	expiry := time.Now().Add(c.ttl).Unix()
	payload := fmt.Sprintf("%s.%d", accountID, expiry)
	return payload + "." + c.sign(payload)
}

// Decode はstateを検証し、埋め込まれたaccountIDを返す。
// 署名不一致・期限切れ・形式不正はすべてErrInvalidStateとなる。
func (c *StateCodec) Decode(state string) (string, error) {
	// accountIDに"."が含まれる可能性を考慮し、末尾から分割する
	lastDot := strings.LastIndex(state, ".")
	if lastDot < 0 {
		return "", ErrInvalidState
	}
	payload, mac := state[:lastDot], state[lastDot+1:]

	if !hmac.Equal([]byte(c.sign(payload)), []byte(mac)) {
		return "", ErrInvalidState
	}

	secondDot := strings.LastIndex(payload, ".")
	if secondDot < 0 {
		return "", ErrInvalidState
	}
	accountID, expiryStr := payload[:secondDot], payload[secondDot+1:]
	if accountID == "" {
		return "", ErrInvalidState
	}

	expiry, err := strconv.ParseInt(expiryStr, 10, 64)
	if err != nil {
		return "", ErrInvalidState
	}
	if time.Now().Unix() > expiry {
		return "", fmt.Errorf("%w: expired", ErrInvalidState)
	}

	return accountID, nil
}

func (c *StateCodec) sign(payload string) string {
	h := hmac.New(sha256.New, c.secret)
	h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil))
}
