package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/MusabMahmoodh/review-pulse-sub001/internal/model"
)

const (
	defaultMetaAuthURL  = "https://www.facebook.com/v19.0/dialog/oauth"
	defaultMetaGraphURL = "https://graph.facebook.com/v19.0"

	// metaScopes はページのレビュー読み取りに必要な権限。
	metaScopes = "pages_read_user_content,pages_show_list"
)

// MetaConnectorConfig はMeta連携コネクターの設定。
type MetaConnectorConfig struct {
	AppID       string
	AppSecret   string
	RedirectURL string

	// テスト用にオーバーライド可能なURL
	AuthURL  string
	GraphURL string
}

// MetaConnector はMeta（Facebookページ）とのOAuthハンドシェイクを行う。
// 短命のユーザートークンを長命トークンに交換した上で、最初の管理ページの
// ページアクセストークンをレビュー取得用の認証情報として解決する。
// ページにInstagramビジネスアカウントが紐付いていれば副リソースとして記録する。
type MetaConnector struct {
	config     MetaConnectorConfig
	httpClient *http.Client
}

// NewMetaConnector はMetaConnectorを生成する。
func NewMetaConnector(config MetaConnectorConfig, httpClient *http.Client) *MetaConnector {
	if config.AuthURL == "" {
		config.AuthURL = defaultMetaAuthURL
	}
	if config.GraphURL == "" {
		config.GraphURL = defaultMetaGraphURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &MetaConnector{config: config, httpClient: httpClient}
}

// Platform はmodel.PlatformMetaを返す。
func (c *MetaConnector) Platform() model.Platform {
	return model.PlatformMeta
}

// AuthURL はFacebookの認可ダイアログURLを生成する。
func (c *MetaConnector) AuthURL(state string) string {
	params := url.Values{
		"client_id":     {c.config.AppID},
		"redirect_uri":  {c.config.RedirectURL},
		"response_type": {"code"},
		"scope":         {metaScopes},
		"state":         {state},
	}
	return c.config.AuthURL + "?" + params.Encode()
}

// metaTokenResponse はGraph APIのトークンエンドポイントのレスポンス。
type metaTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// metaPage は /me/accounts が返す管理ページ1件分。
type metaPage struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	AccessToken string `json:"access_token"`

	InstagramBusinessAccount *struct {
		ID string `json:"id"`
	} `json:"instagram_business_account"`
}

// metaAccountsResponse は /me/accounts のレスポンス。
type metaAccountsResponse struct {
	Data []metaPage `json:"data"`
}

// Complete は認可コードを長命トークンに交換し、管理ページを解決する。
func (c *MetaConnector) Complete(ctx context.Context, code string) (*HandshakeResult, error) {
	// 1. 認可コードを短命ユーザートークンに交換
	shortLived, err := c.exchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenExchange, err)
	}

	// 2. 長命ユーザートークンに交換（約60日）
	longLived, err := c.exchangeLongLived(ctx, shortLived.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenExchange, err)
	}

	// 3. 管理ページの解決。ページアクセストークンをプライマリとして使い、
	//    長命ユーザートークンは再取得用にリフレッシュ枠へ保存する。
	page, err := c.resolvePage(ctx, longLived.AccessToken)
	if err != nil {
		return nil, err
	}

	result := &HandshakeResult{
		AccessToken:  page.AccessToken,
		RefreshToken: longLived.AccessToken,
		ResourceID:   page.ID,
		ExpiresIn:    longLived.ExpiresIn,
	}
	if page.InstagramBusinessAccount != nil {
		result.SecondaryResourceID = page.InstagramBusinessAccount.ID
	}
	return result, nil
}

// exchangeCode は認可コードを短命ユーザートークンに交換する。
func (c *MetaConnector) exchangeCode(ctx context.Context, code string) (*metaTokenResponse, error) {
	params := url.Values{
		"client_id":     {c.config.AppID},
		"client_secret": {c.config.AppSecret},
		"redirect_uri":  {c.config.RedirectURL},
		"code":          {code},
	}
	return c.fetchToken(ctx, c.config.GraphURL+"/oauth/access_token?"+params.Encode())
}

// exchangeLongLived は短命トークンを長命トークンに交換する。
func (c *MetaConnector) exchangeLongLived(ctx context.Context, shortLivedToken string) (*metaTokenResponse, error) {
	params := url.Values{
		"grant_type":        {"fb_exchange_token"},
		"client_id":         {c.config.AppID},
		"client_secret":     {c.config.AppSecret},
		"fb_exchange_token": {shortLivedToken},
	}
	return c.fetchToken(ctx, c.config.GraphURL+"/oauth/access_token?"+params.Encode())
}

func (c *MetaConnector) fetchToken(ctx context.Context, rawURL string) (*metaTokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}

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

	var tokenResp metaTokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}

	if tokenResp.AccessToken == "" {
		return nil, fmt.Errorf("empty access token in response")
	}

	return &tokenResp, nil
}

// resolvePage はユーザーが管理する最初のページを返す。
func (c *MetaConnector) resolvePage(ctx context.Context, userToken string) (*metaPage, error) {
	params := url.Values{
		"fields":       {"id,name,access_token,instagram_business_account"},
		"access_token": {userToken},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.GraphURL+"/me/accounts?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create accounts request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("accounts request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read accounts response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("accounts fetch failed with status %d: %s", resp.StatusCode, string(body))
	}

	var accounts metaAccountsResponse
	if err := json.Unmarshal(body, &accounts); err != nil {
		return nil, fmt.Errorf("failed to parse accounts response: %w", err)
	}

	if len(accounts.Data) == 0 {
		return nil, fmt.Errorf("%w: user manages no pages", ErrNoResource)
	}

	page := accounts.Data[0]
	if page.AccessToken == "" {
		return nil, fmt.Errorf("%w: page %s has no access token", ErrNoResource, page.ID)
	}
	return &page, nil
}

// compile-time interface check
var _ Connector = (*MetaConnector)(nil)
