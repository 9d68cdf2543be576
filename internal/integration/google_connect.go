package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/MusabMahmoodh/review-pulse-sub001/internal/model"
)

const (
	defaultGoogleAuthURL     = "https://accounts.google.com/o/oauth2/auth"
	defaultGoogleTokenURL    = "https://oauth2.googleapis.com/token"
	defaultGoogleAccountsURL = "https://mybusiness.googleapis.com/v4"

	// googleBusinessScope はビジネスプロフィール管理のスコープ。
	googleBusinessScope = "https://www.googleapis.com/auth/business.manage"
)

// GoogleConnectorConfig はGoogle連携コネクターの設定。
type GoogleConnectorConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// テスト用にオーバーライド可能なURL
	AuthURL     string
	TokenURL    string
	AccountsURL string
}

// GoogleConnector はGoogleビジネスプロフィールとのOAuthハンドシェイクを行う。
// トークン取得後、最初のビジネスアカウントの最初のロケーションを
// レビュー取得対象として解決する。
type GoogleConnector struct {
	config     GoogleConnectorConfig
	httpClient *http.Client
}

// NewGoogleConnector はGoogleConnectorを生成する。
func NewGoogleConnector(config GoogleConnectorConfig, httpClient *http.Client) *GoogleConnector {
	if config.AuthURL == "" {
		config.AuthURL = defaultGoogleAuthURL
	}
	if config.TokenURL == "" {
		config.TokenURL = defaultGoogleTokenURL
	}
	if config.AccountsURL == "" {
		config.AccountsURL = defaultGoogleAccountsURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &GoogleConnector{config: config, httpClient: httpClient}
}

// Platform はmodel.PlatformGoogleを返す。
func (c *GoogleConnector) Platform() model.Platform {
	return model.PlatformGoogle
}

// AuthURL はGoogleの認可URLを生成する。
// リフレッシュトークンを確実に得るためaccess_type=offlineとprompt=consentを付ける。
func (c *GoogleConnector) AuthURL(state string) string {
	params := url.Values{
		"client_id":     {c.config.ClientID},
		"redirect_uri":  {c.config.RedirectURL},
		"response_type": {"code"},
		"scope":         {googleBusinessScope},
		"state":         {state},
		"access_type":   {"offline"},
		"prompt":        {"consent"},
	}
	return c.config.AuthURL + "?" + params.Encode()
}

// googleTokenResponse はGoogleのトークンエンドポイントのレスポンス。
type googleTokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
}

// googleAccountsResponse はビジネスアカウント一覧のレスポンス。
type googleAccountsResponse struct {
	Accounts []struct {
		Name string `json:"name"` // "accounts/{id}"
	} `json:"accounts"`
}

// googleLocationsResponse はロケーション一覧のレスポンス。
type googleLocationsResponse struct {
	Locations []struct {
		Name string `json:"name"` // "accounts/{id}/locations/{id}"
	} `json:"locations"`
}

// Complete は認可コードをトークンに交換し、レビュー対象ロケーションを解決する。
func (c *GoogleConnector) Complete(ctx context.Context, code string) (*HandshakeResult, error) {
	tokenResp, err := c.exchangeToken(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenExchange, err)
	}

	locationName, err := c.resolveLocation(ctx, tokenResp.AccessToken)
	if err != nil {
		return nil, err
	}

	return &HandshakeResult{
		AccessToken:  tokenResp.AccessToken,
		RefreshToken: tokenResp.RefreshToken,
		ResourceID:   locationName,
		ExpiresIn:    tokenResp.ExpiresIn,
	}, nil
}

// exchangeToken は認可コードをアクセストークンに交換する。
func (c *GoogleConnector) exchangeToken(ctx context.Context, code string) (*googleTokenResponse, error) {
	data := url.Values{
		"code":          {code},
		"client_id":     {c.config.ClientID},
		"client_secret": {c.config.ClientSecret},
		"redirect_uri":  {c.config.RedirectURL},
		"grant_type":    {"authorization_code"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token exchange failed with status %d: %s", resp.StatusCode, string(body))
	}

	var tokenResp googleTokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}

	if tokenResp.AccessToken == "" {
		return nil, fmt.Errorf("empty access token in response")
	}

	return &tokenResp, nil
}

// resolveLocation は最初のビジネスアカウントの最初のロケーション名を返す。
func (c *GoogleConnector) resolveLocation(ctx context.Context, accessToken string) (string, error) {
	var accounts googleAccountsResponse
	if err := c.getJSON(ctx, c.config.AccountsURL+"/accounts", accessToken, &accounts); err != nil {
		return "", fmt.Errorf("failed to list business accounts: %w", err)
	}
	if len(accounts.Accounts) == 0 {
		return "", fmt.Errorf("%w: no business accounts", ErrNoResource)
	}

	accountName := accounts.Accounts[0].Name
	var locations googleLocationsResponse
	if err := c.getJSON(ctx, c.config.AccountsURL+"/"+accountName+"/locations", accessToken, &locations); err != nil {
		return "", fmt.Errorf("failed to list locations: %w", err)
	}
	if len(locations.Locations) == 0 {
		return "", fmt.Errorf("%w: account %s has no locations", ErrNoResource, accountName)
	}

	return locations.Locations[0].Name, nil
}

// getJSON はBearer認証付きGETを行い、レスポンスをデコードする。
func (c *GoogleConnector) getJSON(ctx context.Context, rawURL, accessToken string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// compile-time interface check
var _ Connector = (*GoogleConnector)(nil)
