package integration

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/MusabMahmoodh/review-pulse-sub001/internal/model"
)

// mockConnector はConnectorのモック。
type mockConnector struct {
	platform     model.Platform
	authURLFunc  func(state string) string
	completeFunc func(ctx context.Context, code string) (*HandshakeResult, error)
}

func (m *mockConnector) Platform() model.Platform { return m.platform }

func (m *mockConnector) AuthURL(state string) string {
	if m.authURLFunc != nil {
		return m.authURLFunc(state)
	}
	return "https://provider.example.com/auth?state=" + state
}

func (m *mockConnector) Complete(ctx context.Context, code string) (*HandshakeResult, error) {
	return m.completeFunc(ctx, code)
}

// mockCredRepo はCredentialRepositoryのモック。
type mockCredRepo struct {
	findFunc        func(ctx context.Context, accountID string, platform model.Platform) (*model.IntegrationCredential, error)
	upsertFunc      func(ctx context.Context, cred *model.IntegrationCredential) error
	markExpiredFunc func(ctx context.Context, accountID string, platform model.Platform) error
	touchFunc       func(ctx context.Context, accountID string, platform model.Platform, ts time.Time) error
	listDueFunc     func(ctx context.Context, staleBefore time.Time) ([]*model.IntegrationCredential, error)
}

func (m *mockCredRepo) FindByAccountAndPlatform(ctx context.Context, accountID string, platform model.Platform) (*model.IntegrationCredential, error) {
	if m.findFunc != nil {
		return m.findFunc(ctx, accountID, platform)
	}
	return nil, nil
}

func (m *mockCredRepo) Upsert(ctx context.Context, cred *model.IntegrationCredential) error {
	if m.upsertFunc != nil {
		return m.upsertFunc(ctx, cred)
	}
	return nil
}

func (m *mockCredRepo) MarkExpired(ctx context.Context, accountID string, platform model.Platform) error {
	if m.markExpiredFunc != nil {
		return m.markExpiredFunc(ctx, accountID, platform)
	}
	return nil
}

func (m *mockCredRepo) TouchSyncedAt(ctx context.Context, accountID string, platform model.Platform, ts time.Time) error {
	if m.touchFunc != nil {
		return m.touchFunc(ctx, accountID, platform, ts)
	}
	return nil
}

func (m *mockCredRepo) ListDueForSync(ctx context.Context, staleBefore time.Time) ([]*model.IntegrationCredential, error) {
	if m.listDueFunc != nil {
		return m.listDueFunc(ctx, staleBefore)
	}
	return nil, nil
}

// mockReviewRepo はReviewRepositoryのモック。
type mockReviewRepo struct {
	countFunc func(ctx context.Context, accountID string, platform model.Platform) (int, error)
}

func (m *mockReviewRepo) Upsert(ctx context.Context, review *model.ExternalReview) (bool, error) {
	return false, nil
}

func (m *mockReviewRepo) ListByAccount(ctx context.Context, accountID string, platform model.Platform, cursor time.Time, limit int) ([]*model.ExternalReview, error) {
	return nil, nil
}

func (m *mockReviewRepo) CountByAccountAndPlatform(ctx context.Context, accountID string, platform model.Platform) (int, error) {
	if m.countFunc != nil {
		return m.countFunc(ctx, accountID, platform)
	}
	return 0, nil
}

// mockCipher はTokenCipherServiceのモック。プレフィックスを付けるだけ。
type mockCipher struct {
	encryptErr error
}

func (m *mockCipher) Encrypt(plaintext string) (string, error) {
	if m.encryptErr != nil {
		return "", m.encryptErr
	}
	return "enc:" + plaintext, nil
}

func (m *mockCipher) Decrypt(ciphertext string) (string, error) {
	return ciphertext[len("enc:"):], nil
}

func newTestService(connector Connector, repo *mockCredRepo) *Service {
	return NewService(
		[]Connector{connector},
		NewStateCodec("test-secret", 10*time.Minute),
		&mockCipher{},
		repo,
		&mockReviewRepo{},
		60*24*time.Hour,
		slog.New(slog.NewJSONHandler(io.Discard, nil)),
	)
}

func TestServiceBeginAuth(t *testing.T) {
	connector := &mockConnector{platform: model.PlatformGoogle}
	svc := newTestService(connector, &mockCredRepo{})

	authURL, err := svc.BeginAuth(model.PlatformGoogle, "acc-1")
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	if authURL == "" {
		t.Fatal("認可URLが空です")
	}

	// stateがデコード可能であること
	state := authURL[len("https://provider.example.com/auth?state="):]
	got, err := svc.states.Decode(state)
	if err != nil || got != "acc-1" {
		t.Errorf("stateからaccountIDを復元できません: %s, %v", got, err)
	}
}

func TestServiceBeginAuthUnknownPlatform(t *testing.T) {
	svc := newTestService(&mockConnector{platform: model.PlatformGoogle}, &mockCredRepo{})

	_, err := svc.BeginAuth(model.Platform("yelp"), "acc-1")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidPlatform {
		t.Errorf("INVALID_PLATFORMを期待: got %v", err)
	}
}

func TestServiceCompleteAuth(t *testing.T) {
	connector := &mockConnector{
		platform: model.PlatformGoogle,
		completeFunc: func(ctx context.Context, code string) (*HandshakeResult, error) {
			if code != "auth-code" {
				t.Errorf("code = %s", code)
			}
			return &HandshakeResult{
				AccessToken:  "at-1",
				RefreshToken: "rt-1",
				ResourceID:   "accounts/1/locations/2",
				ExpiresIn:    3600,
			}, nil
		},
	}

	var saved *model.IntegrationCredential
	repo := &mockCredRepo{
		upsertFunc: func(ctx context.Context, cred *model.IntegrationCredential) error {
			saved = cred
			return nil
		},
	}

	svc := newTestService(connector, repo)
	fixedNow := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixedNow }

	state := svc.states.Encode("acc-1")
	cred, err := svc.CompleteAuth(context.Background(), model.PlatformGoogle, "auth-code", state)
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}

	if saved == nil {
		t.Fatal("認証情報が保存されていません")
	}
	if cred.AccountID != "acc-1" || cred.Platform != model.PlatformGoogle {
		t.Errorf("保存対象が不正: %+v", cred)
	}
	if cred.AccessTokenCipher != "enc:at-1" || cred.RefreshTokenCipher != "enc:rt-1" {
		t.Error("トークンが暗号化されていません")
	}
	if cred.Status != model.CredentialStatusActive {
		t.Errorf("status = %s, want active", cred.Status)
	}
	if !cred.TokenExpiry.Equal(fixedNow.Add(3600 * time.Second)) {
		t.Errorf("expires_inから有効期限を計算すべき: %v", cred.TokenExpiry)
	}
	if cred.ID == "" {
		t.Error("IDが採番されていません")
	}
}

func TestServiceCompleteAuthDefaultLifetime(t *testing.T) {
	connector := &mockConnector{
		platform: model.PlatformMeta,
		completeFunc: func(ctx context.Context, code string) (*HandshakeResult, error) {
			// expires_inを返さないプロバイダー
			return &HandshakeResult{AccessToken: "at-1", ResourceID: "page-1"}, nil
		},
	}

	svc := newTestService(connector, &mockCredRepo{})
	fixedNow := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixedNow }

	state := svc.states.Encode("acc-1")
	cred, err := svc.CompleteAuth(context.Background(), model.PlatformMeta, "auth-code", state)
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}

	if !cred.TokenExpiry.Equal(fixedNow.Add(60 * 24 * time.Hour)) {
		t.Errorf("寿命不明時は保守的なデフォルトを期待: %v", cred.TokenExpiry)
	}
	if cred.RefreshTokenCipher != "" {
		t.Error("リフレッシュトークンなしなら暗号文も空のはず")
	}
}

func TestServiceCompleteAuthInvalidState(t *testing.T) {
	connector := &mockConnector{
		platform: model.PlatformGoogle,
		completeFunc: func(ctx context.Context, code string) (*HandshakeResult, error) {
			t.Error("state検証前にトークン交換をしてはいけません")
			return nil, nil
		},
	}

	svc := newTestService(connector, &mockCredRepo{})

	_, err := svc.CompleteAuth(context.Background(), model.PlatformGoogle, "auth-code", "forged-state")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidState {
		t.Errorf("INVALID_STATEを期待: got %v", err)
	}
}

func TestServiceCompleteAuthErrorMapping(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		wantCode string
	}{
		{"リソースなし", ErrNoResource, model.ErrCodeNoResourceFound},
		{"トークン交換失敗", ErrTokenExchange, model.ErrCodeTokenExchangeFailed},
		{"その他の失敗", errors.New("network down"), model.ErrCodeTokenExchangeFailed},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			connector := &mockConnector{
				platform: model.PlatformGoogle,
				completeFunc: func(ctx context.Context, code string) (*HandshakeResult, error) {
					return nil, tc.err
				},
			}
			svc := newTestService(connector, &mockCredRepo{})

			state := svc.states.Encode("acc-1")
			_, err := svc.CompleteAuth(context.Background(), model.PlatformGoogle, "code", state)
			var apiErr *model.APIError
			if !errors.As(err, &apiErr) || apiErr.Code != tc.wantCode {
				t.Errorf("コード %s を期待: got %v", tc.wantCode, err)
			}
		})
	}
}

func TestServiceStatus(t *testing.T) {
	lastSynced := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	repo := &mockCredRepo{
		findFunc: func(ctx context.Context, accountID string, platform model.Platform) (*model.IntegrationCredential, error) {
			if accountID != "acc-1" {
				return nil, nil
			}
			return &model.IntegrationCredential{
				AccountID:    "acc-1",
				Platform:     platform,
				ResourceID:   "page-1",
				Status:       model.CredentialStatusActive,
				LastSyncedAt: &lastSynced,
				TokenExpiry:  time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC),
			}, nil
		},
	}

	svc := newTestService(&mockConnector{platform: model.PlatformMeta}, repo)
	svc.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	svc.reviewRepo = &mockReviewRepo{
		countFunc: func(ctx context.Context, accountID string, platform model.Platform) (int, error) {
			return 12, nil
		},
	}

	status, err := svc.Status(context.Background(), "acc-1", model.PlatformMeta)
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	if !status.Connected || status.ResourceID != "page-1" {
		t.Errorf("接続済み状態を期待: %+v", status)
	}
	if status.LastSyncedAt == nil || !status.LastSyncedAt.Equal(lastSynced) {
		t.Error("last_synced_atが反映されていません")
	}
	if status.ReviewCount != 12 {
		t.Errorf("取り込み済みレビュー件数を期待: got %d", status.ReviewCount)
	}

	// 未連携
	status, err = svc.Status(context.Background(), "acc-unknown", model.PlatformMeta)
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	if status.Connected {
		t.Error("未連携はConnected=falseを期待")
	}
}

// TestServiceStatusTokenExpiryPassed はstatusがactiveのままでもトークン
// 有効期限を過ぎていれば失効として報告されることを検証する。
func TestServiceStatusTokenExpiryPassed(t *testing.T) {
	repo := &mockCredRepo{
		findFunc: func(ctx context.Context, accountID string, platform model.Platform) (*model.IntegrationCredential, error) {
			return &model.IntegrationCredential{
				AccountID:   accountID,
				Platform:    platform,
				ResourceID:  "page-1",
				Status:      model.CredentialStatusActive,
				TokenExpiry: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
			}, nil
		},
	}

	svc := newTestService(&mockConnector{platform: model.PlatformMeta}, repo)
	svc.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }

	status, err := svc.Status(context.Background(), "acc-1", model.PlatformMeta)
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	if status.Connected {
		t.Error("有効期限切れはConnected=falseを期待")
	}
	if status.Status != model.CredentialStatusExpired {
		t.Errorf("status = %s, want expired", status.Status)
	}
}
