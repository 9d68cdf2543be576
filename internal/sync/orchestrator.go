// Package sync はレビュー同期のオーケストレーションを提供する。
// プラットフォームごとに認証情報の取得、復号、レビュー取得、正規化、
// 冪等な保存、ウォーターマーク更新までを1サイクルとして実行する。
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	stdsync "sync"
	"time"

	"github.com/google/uuid"

	"github.com/MusabMahmoodh/review-pulse-sub001/internal/model"
	"github.com/MusabMahmoodh/review-pulse-sub001/internal/platform"
	"github.com/MusabMahmoodh/review-pulse-sub001/internal/repository"
	"github.com/MusabMahmoodh/review-pulse-sub001/internal/security"
)

// Recorder は同期のメトリクスを記録する。
type Recorder interface {
	RecordSyncSuccess(platform model.Platform, duration time.Duration)
	RecordSyncFailure(platform model.Platform, reason model.SyncReason)
	RecordAuthExpired(platform model.Platform)
	RecordReviewsUpserted(platform model.Platform, created, updated int)
}

// nopRecorder はメトリクス無効時のRecorder実装。
type nopRecorder struct{}

func (nopRecorder) RecordSyncSuccess(model.Platform, time.Duration)    {}
func (nopRecorder) RecordSyncFailure(model.Platform, model.SyncReason) {}
func (nopRecorder) RecordAuthExpired(model.Platform)                   {}
func (nopRecorder) RecordReviewsUpserted(model.Platform, int, int)     {}

// Orchestrator はアカウント単位のレビュー同期を実行する。
// プラットフォーム間は完全に独立しており、片方の失敗がもう片方の
// 取り込みを妨げることはない。
type Orchestrator struct {
	credRepo   repository.CredentialRepository
	reviewRepo repository.ReviewRepository
	cipher     security.TokenCipherService
	sanitizer  security.ReviewSanitizerService
	registry   *platform.Registry
	recorder   Recorder
	logger     *slog.Logger

	locks *keyedMutex

	// テストで時刻を固定するためのフック
	now func() time.Time
}

// NewOrchestrator はOrchestratorを生成する。recorderがnilの場合は記録しない。
func NewOrchestrator(
	credRepo repository.CredentialRepository,
	reviewRepo repository.ReviewRepository,
	cipher security.TokenCipherService,
	sanitizer security.ReviewSanitizerService,
	registry *platform.Registry,
	recorder Recorder,
	logger *slog.Logger,
) *Orchestrator {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Orchestrator{
		credRepo:   credRepo,
		reviewRepo: reviewRepo,
		cipher:     cipher,
		sanitizer:  sanitizer,
		registry:   registry,
		recorder:   recorder,
		logger:     logger,
		locks:      newKeyedMutex(),
		now:        time.Now,
	}
}

// SyncAccount はアカウントの全プラットフォーム（またはplatformsで指定された
// サブセット）を並行に同期し、プラットフォームごとの結果を返す。
// エラーはレポート内のFailed/Reasonとして表現され、戻り値のerrorには
// ならない（呼び出し側は部分的な成功をそのまま受け取る）。
func (o *Orchestrator) SyncAccount(ctx context.Context, accountID string, platforms []model.Platform) *model.SyncReport {
	start := o.now()
	if len(platforms) == 0 {
		platforms = o.registry.Platforms()
	}

	report := &model.SyncReport{
		AccountID: accountID,
		StartedAt: start,
		Results:   make(map[model.Platform]model.PlatformSyncResult, len(platforms)),
	}

	var (
		wg stdsync.WaitGroup
		mu stdsync.Mutex
	)
	for _, p := range platforms {
		wg.Add(1)
		go func(p model.Platform) {
			defer wg.Done()
			result := o.syncPlatform(ctx, accountID, p, start)
			mu.Lock()
			report.Results[p] = result
			mu.Unlock()
		}(p)
	}
	wg.Wait()

	return report
}

// syncPlatform は1プラットフォーム分の同期を実行する。
func (o *Orchestrator) syncPlatform(ctx context.Context, accountID string, p model.Platform, start time.Time) model.PlatformSyncResult {
	unlock := o.locks.Lock(accountID + "|" + string(p))
	defer unlock()

	logger := o.logger.With(
		slog.String("account_id", accountID),
		slog.String("platform", string(p)),
	)

	cred, err := o.credRepo.FindByAccountAndPlatform(ctx, accountID, p)
	if err != nil {
		logger.Error("認証情報の取得に失敗しました", slog.String("error", err.Error()))
		o.recorder.RecordSyncFailure(p, model.SyncReasonTemporary)
		return model.PlatformSyncResult{Failed: true, Reason: model.SyncReasonTemporary}
	}
	if cred == nil {
		return model.PlatformSyncResult{Skipped: true, Reason: model.SyncReasonNotConnected}
	}
	if cred.Status != model.CredentialStatusActive {
		return model.PlatformSyncResult{Skipped: true, Reason: model.SyncReasonNeedsReauth}
	}

	adapter, ok := o.registry.For(p)
	if !ok {
		logger.Error("アダプターが登録されていません")
		o.recorder.RecordSyncFailure(p, model.SyncReasonTemporary)
		return model.PlatformSyncResult{Failed: true, Reason: model.SyncReasonTemporary}
	}

	accessToken, err := o.cipher.Decrypt(cred.AccessTokenCipher)
	if err != nil {
		if errors.Is(err, model.ErrCrypto) {
			// 鍵ローテーションやストレージ破損の兆候。静かに失敗させず、
			// 再連携を要求する状態に落とす。
			logger.Error("保存済みトークンの復号に失敗しました。認証情報を失効扱いにします",
				slog.String("error", err.Error()),
			)
			if markErr := o.credRepo.MarkExpired(ctx, accountID, p); markErr != nil {
				logger.Error("認証情報の失効マークに失敗しました", slog.String("error", markErr.Error()))
			}
			o.recorder.RecordSyncFailure(p, model.SyncReasonNeedsReauth)
			return model.PlatformSyncResult{Failed: true, Reason: model.SyncReasonNeedsReauth}
		}
		logger.Error("トークンの復号に失敗しました", slog.String("error", err.Error()))
		o.recorder.RecordSyncFailure(p, model.SyncReasonTemporary)
		return model.PlatformSyncResult{Failed: true, Reason: model.SyncReasonTemporary}
	}

	fetchCred := platform.Credential{
		AccountID:           cred.AccountID,
		ResourceID:          cred.ResourceID,
		SecondaryResourceID: cred.SecondaryResourceID,
		AccessToken:         accessToken,
	}

	fetched, err := adapter.FetchReviews(ctx, fetchCred, cred.LastSyncedAt)
	if err != nil {
		if errors.Is(err, model.ErrAuthExpired) {
			logger.Warn("プロバイダー認証が失効しています。再連携が必要です",
				slog.String("error", err.Error()),
			)
			if markErr := o.credRepo.MarkExpired(ctx, accountID, p); markErr != nil {
				logger.Error("認証情報の失効マークに失敗しました", slog.String("error", markErr.Error()))
			}
			o.recorder.RecordAuthExpired(p)
			o.recorder.RecordSyncFailure(p, model.SyncReasonNeedsReauth)
			return model.PlatformSyncResult{Failed: true, Reason: model.SyncReasonNeedsReauth}
		}
		logger.Error("レビューの取得に失敗しました", slog.String("error", err.Error()))
		o.recorder.RecordSyncFailure(p, model.SyncReasonTemporary)
		return model.PlatformSyncResult{Failed: true, Reason: model.SyncReasonTemporary}
	}

	result := o.storeReviews(ctx, logger, cred, p, fetched, start)
	if result.Failed {
		o.recorder.RecordSyncFailure(p, result.Reason)
		return result
	}

	// ウォーターマークは同期開始時刻まで前進させる。取得と保存の間に
	// 投稿された新着が次回の対象から漏れないよう、完了時刻は使わない。
	if err := o.credRepo.TouchSyncedAt(ctx, accountID, p, start); err != nil {
		logger.Error("ウォーターマークの更新に失敗しました", slog.String("error", err.Error()))
	}

	o.recorder.RecordSyncSuccess(p, o.now().Sub(start))
	o.recorder.RecordReviewsUpserted(p, result.Created, result.Updated)
	logger.Info("レビュー同期が完了しました",
		slog.Int("created", result.Created),
		slog.Int("updated", result.Updated),
		slog.Int("fetched", len(fetched)),
	)
	return result
}

// storeReviews は取得済みレビューを正規化して保存する。
func (o *Orchestrator) storeReviews(ctx context.Context, logger *slog.Logger, cred *model.IntegrationCredential, p model.Platform, fetched []model.FetchedReview, start time.Time) model.PlatformSyncResult {
	var result model.PlatformSyncResult

	for _, fr := range fetched {
		review, err := o.normalize(logger, cred, p, fr, start)
		if err != nil {
			logger.Warn("レビューの正規化に失敗したためスキップします",
				slog.String("external_id", fr.ExternalID),
				slog.String("error", err.Error()),
			)
			continue
		}

		created, err := o.reviewRepo.Upsert(ctx, review)
		if err != nil {
			logger.Error("レビューの保存に失敗しました",
				slog.String("external_id", review.ExternalID),
				slog.String("error", err.Error()),
			)
			result.Failed = true
			result.Reason = model.SyncReasonTemporary
			return result
		}
		if created {
			result.Created++
		} else {
			result.Updated++
		}
	}

	return result
}

// normalize は取得データを保存可能なExternalReviewに変換する。
// レビュー日時が欠落している場合は同期開始時刻で補完し、推定である
// ことをフラグとログの両方に残す。
func (o *Orchestrator) normalize(logger *slog.Logger, cred *model.IntegrationCredential, p model.Platform, fr model.FetchedReview, start time.Time) (*model.ExternalReview, error) {
	if fr.ExternalID == "" {
		return nil, fmt.Errorf("外部IDが空です")
	}

	reviewDate := start
	estimated := false
	if fr.ReviewDate != nil {
		reviewDate = *fr.ReviewDate
	} else {
		estimated = true
		logger.Warn("レビュー日時が取得できないため同期時刻で代用します",
			slog.String("external_id", fr.ExternalID),
		)
	}

	return &model.ExternalReview{
		ID:              uuid.New().String(),
		AccountID:       cred.AccountID,
		Platform:        p,
		ExternalID:      fr.ExternalID,
		Author:          o.sanitizer.Sanitize(fr.Author),
		Rating:          fr.Rating,
		Comment:         o.sanitizer.Sanitize(fr.Comment),
		ReviewDate:      reviewDate,
		IsDateEstimated: estimated,
		SyncedAt:        start,
		CreatedAt:       start,
		UpdatedAt:       start,
	}, nil
}
