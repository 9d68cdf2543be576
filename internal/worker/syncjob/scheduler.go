// Package syncjob はレビュー同期のバックグラウンド実行を提供する。
// 定期ティッカーで同期期限の到来した連携を取得し、semaphoreパターンで
// 最大並列数を制御しながら同期を実行する。
package syncjob

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/MusabMahmoodh/review-pulse-sub001/internal/model"
	"github.com/MusabMahmoodh/review-pulse-sub001/internal/repository"
)

// AccountSyncerService はアカウント同期の実行インターフェース。
type AccountSyncerService interface {
	// SyncAccount は指定アカウントの指定プラットフォームを同期する。
	SyncAccount(ctx context.Context, accountID string, platforms []model.Platform) *model.SyncReport
}

// Scheduler はレビュー同期のスケジューリングと並列制御を行う。
type Scheduler struct {
	credRepo       repository.CredentialRepository
	syncer         AccountSyncerService
	logger         *slog.Logger
	interval       time.Duration
	maxConcurrency int
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// maxConcurrencyが0以下の場合はデフォルト値5を使用する。
func NewScheduler(
	credRepo repository.CredentialRepository,
	syncer AccountSyncerService,
	logger *slog.Logger,
	interval time.Duration,
	maxConcurrency int,
) *Scheduler {
	if maxConcurrency <= 0 {
		maxConcurrency = 5
	}
	return &Scheduler{
		credRepo:       credRepo,
		syncer:         syncer,
		logger:         logger,
		interval:       interval,
		maxConcurrency: maxConcurrency,
	}
}

// Start はティッカーでスケジューラを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("同期スケジューラを開始しました",
		slog.Duration("interval", s.interval),
		slog.Int("max_concurrency", s.maxConcurrency),
	)

	// 起動直後に1回実行
	if err := s.RunOnce(ctx); err != nil {
		s.logger.Error("同期サイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("同期スケジューラを停止しました")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.Error("同期サイクルの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce は同期期限の到来した連携を1回取得し、並列で同期を実行する。
// 対象は前回同期がinterval以上前（または未同期）のactiveな認証情報。
func (s *Scheduler) RunOnce(ctx context.Context) error {
	start := time.Now()

	creds, err := s.credRepo.ListDueForSync(ctx, start.Add(-s.interval))
	if err != nil {
		return err
	}

	if len(creds) == 0 {
		s.logger.Info("同期対象の連携はありません")
		return nil
	}

	s.logger.Info("同期サイクルを開始します",
		slog.Int("credential_count", len(creds)),
	)

	// semaphoreパターンで並列数を制御
	sem := make(chan struct{}, s.maxConcurrency)
	var wg sync.WaitGroup

	for _, cred := range creds {
		wg.Add(1)
		sem <- struct{}{} // semaphore取得（ブロック）

		go func(c *model.IntegrationCredential) {
			defer wg.Done()
			defer func() { <-sem }() // semaphore解放

			report := s.syncer.SyncAccount(ctx, c.AccountID, []model.Platform{c.Platform})
			if result, ok := report.Results[c.Platform]; ok && result.Failed {
				s.logger.Warn("連携の同期に失敗しました",
					slog.String("account_id", c.AccountID),
					slog.String("platform", string(c.Platform)),
					slog.String("reason", string(result.Reason)),
				)
			}
		}(cred)
	}

	wg.Wait()

	duration := time.Since(start)
	s.logger.Info("同期サイクルが完了しました",
		slog.Int("credential_count", len(creds)),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}
