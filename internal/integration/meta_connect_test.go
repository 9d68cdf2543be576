package integration

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

func TestMetaConnectorAuthURL(t *testing.T) {
	c := NewMetaConnector(MetaConnectorConfig{
		AppID:       "app-1",
		RedirectURL: "https://app.example.com/integrations/meta/callback",
	}, nil)

	parsed, err := url.Parse(c.AuthURL("signed-state"))
	if err != nil {
		t.Fatalf("認可URLのパースに失敗: %v", err)
	}

	q := parsed.Query()
	if q.Get("client_id") != "app-1" || q.Get("state") != "signed-state" {
		t.Errorf("認可URLのパラメータが不正: %v", q)
	}
	if q.Get("scope") != metaScopes {
		t.Errorf("scope = %s", q.Get("scope"))
	}
}

func TestMetaConnectorComplete(t *testing.T) {
	tokenCalls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls++
		q := r.URL.Query()
		if q.Get("fb_exchange_token") != "" {
			// 長命トークンへの交換
			if q.Get("grant_type") != "fb_exchange_token" || q.Get("fb_exchange_token") != "short-token" {
				t.Errorf("長命トークン交換のパラメータが不正: %v", q)
			}
			w.Write([]byte(`{"access_token": "long-token", "expires_in": 5183944}`))
			return
		}
		if q.Get("code") != "auth-code" {
			t.Errorf("code = %s", q.Get("code"))
		}
		w.Write([]byte(`{"access_token": "short-token", "expires_in": 3600}`))
	})
	mux.HandleFunc("/me/accounts", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("access_token"); got != "long-token" {
			t.Errorf("ページ解決は長命トークンを使う: got %s", got)
		}
		w.Write([]byte(`{"data": [
			{"id": "page-1", "name": "Store A", "access_token": "page-token-1",
			 "instagram_business_account": {"id": "ig-9"}},
			{"id": "page-2", "name": "Store B", "access_token": "page-token-2"}
		]}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	c := NewMetaConnector(MetaConnectorConfig{
		AppID:     "app-1",
		AppSecret: "secret-1",
		GraphURL:  server.URL,
	}, server.Client())

	result, err := c.Complete(context.Background(), "auth-code")
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	if tokenCalls != 2 {
		t.Errorf("短命・長命の2回のトークン交換を期待: got %d", tokenCalls)
	}
	if result.AccessToken != "page-token-1" {
		t.Errorf("ページアクセストークンを期待: %s", result.AccessToken)
	}
	if result.RefreshToken != "long-token" {
		t.Errorf("長命ユーザートークンをリフレッシュ枠に期待: %s", result.RefreshToken)
	}
	if result.ResourceID != "page-1" {
		t.Errorf("最初の管理ページを期待: %s", result.ResourceID)
	}
	if result.SecondaryResourceID != "ig-9" {
		t.Errorf("Instagramビジネスアカウントの記録を期待: %s", result.SecondaryResourceID)
	}
	if result.ExpiresIn != 5183944 {
		t.Errorf("ExpiresIn = %d", result.ExpiresIn)
	}
}

func TestMetaConnectorCompleteNoPages(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"access_token": "tok"}`))
	})
	mux.HandleFunc("/me/accounts", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data": []}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	c := NewMetaConnector(MetaConnectorConfig{GraphURL: server.URL}, server.Client())

	_, err := c.Complete(context.Background(), "auth-code")
	if !errors.Is(err, ErrNoResource) {
		t.Errorf("ErrNoResourceを期待: got %v", err)
	}
}

func TestMetaConnectorCompleteTokenExchangeFailed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": {"message": "Invalid code", "code": 100}}`))
	}))
	defer server.Close()

	c := NewMetaConnector(MetaConnectorConfig{GraphURL: server.URL}, server.Client())

	_, err := c.Complete(context.Background(), "bad-code")
	if !errors.Is(err, ErrTokenExchange) {
		t.Errorf("ErrTokenExchangeを期待: got %v", err)
	}
}
