package integration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/MusabMahmoodh/review-pulse-sub001/internal/model"
	"github.com/MusabMahmoodh/review-pulse-sub001/internal/repository"
	"github.com/MusabMahmoodh/review-pulse-sub001/internal/security"
)

// ConnectionStatus は連携状態の照会結果。
type ConnectionStatus struct {
	Platform     model.Platform         `json:"platform"`
	Connected    bool                   `json:"connected"`
	Status       model.CredentialStatus `json:"status,omitempty"`
	ResourceID   string                 `json:"resource_id,omitempty"`
	LastSyncedAt *time.Time             `json:"last_synced_at,omitempty"`
	TokenExpiry  *time.Time             `json:"token_expiry,omitempty"`
	ReviewCount  int                    `json:"review_count"`
}

// Service はOAuthハンドシェイクの開始と完了を司る。
// トークン暗号化と認証情報の永続化まで含めて1トランザクションの
// ユースケースとして扱う。
type Service struct {
	connectors           map[model.Platform]Connector
	states               *StateCodec
	cipher               security.TokenCipherService
	credRepo             repository.CredentialRepository
	reviewRepo           repository.ReviewRepository
	defaultTokenLifetime time.Duration
	logger               *slog.Logger

	// テストで時刻を固定するためのフック
	now func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	connectors []Connector,
	states *StateCodec,
	cipher security.TokenCipherService,
	credRepo repository.CredentialRepository,
	reviewRepo repository.ReviewRepository,
	defaultTokenLifetime time.Duration,
	logger *slog.Logger,
) *Service {
	byPlatform := make(map[model.Platform]Connector, len(connectors))
	for _, c := range connectors {
		byPlatform[c.Platform()] = c
	}
	return &Service{
		connectors:           byPlatform,
		states:               states,
		cipher:               cipher,
		credRepo:             credRepo,
		reviewRepo:           reviewRepo,
		defaultTokenLifetime: defaultTokenLifetime,
		logger:               logger,
		now:                  time.Now,
	}
}

// BeginAuth は署名付きstateを生成し、プラットフォームの認可URLを返す。
func (s *Service) BeginAuth(platform model.Platform, accountID string) (string, error) {
	connector, ok := s.connectors[platform]
	if !ok {
		return "", model.NewInvalidPlatformError(string(platform))
	}
	state := s.states.Encode(accountID)
	return connector.AuthURL(state), nil
}

// CompleteAuth はコールバックを検証し、トークンを暗号化して保存する。
// 成功すると認証情報はstatus=activeで(account_id, platform)に対して
// 全フィールド上書きされる（再連携で同じパスを通る）。
func (s *Service) CompleteAuth(ctx context.Context, platform model.Platform, code, state string) (*model.IntegrationCredential, error) {
	connector, ok := s.connectors[platform]
	if !ok {
		return nil, model.NewInvalidPlatformError(string(platform))
	}

	accountID, err := s.states.Decode(state)
	if err != nil {
		s.logger.Warn("OAuth stateの検証に失敗しました",
			slog.String("platform", string(platform)),
			slog.String("error", err.Error()),
		)
		return nil, model.NewInvalidStateError()
	}

	result, err := connector.Complete(ctx, code)
	if err != nil {
		s.logger.Error("OAuthハンドシェイクに失敗しました",
			slog.String("platform", string(platform)),
			slog.String("account_id", accountID),
			slog.String("error", err.Error()),
		)
		if errors.Is(err, ErrNoResource) {
			return nil, model.NewNoResourceFoundError(platform)
		}
		return nil, model.NewTokenExchangeFailedError()
	}

	cred, err := s.buildCredential(accountID, platform, result)
	if err != nil {
		return nil, err
	}

	if err := s.credRepo.Upsert(ctx, cred); err != nil {
		return nil, fmt.Errorf("認証情報の保存に失敗しました: %w", err)
	}

	s.logger.Info("プラットフォーム連携が完了しました",
		slog.String("platform", string(platform)),
		slog.String("account_id", accountID),
		slog.String("resource_id", result.ResourceID),
	)
	return cred, nil
}

// buildCredential はハンドシェイク結果を暗号化済みの認証情報に変換する。
func (s *Service) buildCredential(accountID string, platform model.Platform, result *HandshakeResult) (*model.IntegrationCredential, error) {
	accessCipher, err := s.cipher.Encrypt(result.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("アクセストークンの暗号化に失敗しました: %w", err)
	}

	refreshCipher := ""
	if result.RefreshToken != "" {
		refreshCipher, err = s.cipher.Encrypt(result.RefreshToken)
		if err != nil {
			return nil, fmt.Errorf("リフレッシュトークンの暗号化に失敗しました: %w", err)
		}
	}

	now := s.now()
	lifetime := s.defaultTokenLifetime
	if result.ExpiresIn > 0 {
		lifetime = time.Duration(result.ExpiresIn) * time.Second
	}

	return &model.IntegrationCredential{
		ID:                  uuid.New().String(),
		AccountID:           accountID,
		Platform:            platform,
		ResourceID:          result.ResourceID,
		SecondaryResourceID: result.SecondaryResourceID,
		AccessTokenCipher:   accessCipher,
		RefreshTokenCipher:  refreshCipher,
		TokenExpiry:         now.Add(lifetime),
		Status:              model.CredentialStatusActive,
		CreatedAt:           now,
		UpdatedAt:           now,
	}, nil
}

// Status は(account_id, platform)の連携状態を返す。未連携でもエラーにしない。
func (s *Service) Status(ctx context.Context, accountID string, platform model.Platform) (*ConnectionStatus, error) {
	cred, err := s.credRepo.FindByAccountAndPlatform(ctx, accountID, platform)
	if err != nil {
		return nil, fmt.Errorf("連携状態の取得に失敗しました: %w", err)
	}

	status := &ConnectionStatus{Platform: platform}
	if cred == nil {
		return status, nil
	}

	status.Status = cred.Status
	// statusがactiveのままでもトークン有効期限を過ぎていれば失効として
	// 報告する（次回同期が検知する前にダッシュボードへ再連携を促す）。
	if cred.IsExpired(s.now()) {
		status.Status = model.CredentialStatusExpired
	}
	status.Connected = status.Status == model.CredentialStatusActive
	status.ResourceID = cred.ResourceID
	status.LastSyncedAt = cred.LastSyncedAt
	expiry := cred.TokenExpiry
	status.TokenExpiry = &expiry

	count, err := s.reviewRepo.CountByAccountAndPlatform(ctx, accountID, platform)
	if err != nil {
		return nil, fmt.Errorf("レビュー件数の取得に失敗しました: %w", err)
	}
	status.ReviewCount = count
	return status, nil
}
