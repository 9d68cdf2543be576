package syncjob

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MusabMahmoodh/review-pulse-sub001/internal/model"
)

// mockCredRepo はCredentialRepositoryのモック。
type mockCredRepo struct {
	listDueFunc func(ctx context.Context, staleBefore time.Time) ([]*model.IntegrationCredential, error)
}

func (m *mockCredRepo) FindByAccountAndPlatform(ctx context.Context, accountID string, platform model.Platform) (*model.IntegrationCredential, error) {
	return nil, nil
}

func (m *mockCredRepo) Upsert(ctx context.Context, cred *model.IntegrationCredential) error {
	return nil
}

func (m *mockCredRepo) MarkExpired(ctx context.Context, accountID string, platform model.Platform) error {
	return nil
}

func (m *mockCredRepo) TouchSyncedAt(ctx context.Context, accountID string, platform model.Platform, ts time.Time) error {
	return nil
}

func (m *mockCredRepo) ListDueForSync(ctx context.Context, staleBefore time.Time) ([]*model.IntegrationCredential, error) {
	return m.listDueFunc(ctx, staleBefore)
}

// mockSyncer はAccountSyncerServiceのモック。
type mockSyncer struct {
	syncFunc func(ctx context.Context, accountID string, platforms []model.Platform) *model.SyncReport
}

func (m *mockSyncer) SyncAccount(ctx context.Context, accountID string, platforms []model.Platform) *model.SyncReport {
	return m.syncFunc(ctx, accountID, platforms)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func emptyReport(accountID string, platforms []model.Platform) *model.SyncReport {
	report := &model.SyncReport{
		AccountID: accountID,
		StartedAt: time.Now(),
		Results:   make(map[model.Platform]model.PlatformSyncResult),
	}
	for _, p := range platforms {
		report.Results[p] = model.PlatformSyncResult{}
	}
	return report
}

func TestSchedulerRunOnce(t *testing.T) {
	creds := []*model.IntegrationCredential{
		{AccountID: "acc-1", Platform: model.PlatformGoogle},
		{AccountID: "acc-1", Platform: model.PlatformMeta},
		{AccountID: "acc-2", Platform: model.PlatformGoogle},
	}

	repo := &mockCredRepo{
		listDueFunc: func(ctx context.Context, staleBefore time.Time) ([]*model.IntegrationCredential, error) {
			return creds, nil
		},
	}

	var mu sync.Mutex
	synced := make(map[string]bool)
	syncer := &mockSyncer{
		syncFunc: func(ctx context.Context, accountID string, platforms []model.Platform) *model.SyncReport {
			if len(platforms) != 1 {
				t.Errorf("連携ごとに1プラットフォームずつ同期すべき: %v", platforms)
			}
			mu.Lock()
			synced[accountID+"|"+string(platforms[0])] = true
			mu.Unlock()
			return emptyReport(accountID, platforms)
		},
	}

	s := NewScheduler(repo, syncer, testLogger(), time.Hour, 2)
	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}

	if len(synced) != 3 {
		t.Errorf("3件の同期を期待: got %d (%v)", len(synced), synced)
	}
}

func TestSchedulerRunOnceStaleBefore(t *testing.T) {
	interval := 30 * time.Minute
	var gotStale time.Time

	repo := &mockCredRepo{
		listDueFunc: func(ctx context.Context, staleBefore time.Time) ([]*model.IntegrationCredential, error) {
			gotStale = staleBefore
			return nil, nil
		},
	}

	s := NewScheduler(repo, &mockSyncer{}, testLogger(), interval, 1)
	before := time.Now()
	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}

	want := before.Add(-interval)
	if gotStale.Before(want.Add(-time.Second)) || gotStale.After(want.Add(time.Second)) {
		t.Errorf("staleBefore = %v, want ≈ %v", gotStale, want)
	}
}

func TestSchedulerRunOnceListError(t *testing.T) {
	repo := &mockCredRepo{
		listDueFunc: func(ctx context.Context, staleBefore time.Time) ([]*model.IntegrationCredential, error) {
			return nil, errors.New("db down")
		},
	}

	s := NewScheduler(repo, &mockSyncer{}, testLogger(), time.Hour, 1)
	if err := s.RunOnce(context.Background()); err == nil {
		t.Error("一覧取得エラーはそのまま返すべき")
	}
}

func TestSchedulerConcurrencyLimit(t *testing.T) {
	const maxConcurrency = 2

	creds := make([]*model.IntegrationCredential, 10)
	for i := range creds {
		creds[i] = &model.IntegrationCredential{
			AccountID: "acc",
			Platform:  model.PlatformGoogle,
		}
	}

	repo := &mockCredRepo{
		listDueFunc: func(ctx context.Context, staleBefore time.Time) ([]*model.IntegrationCredential, error) {
			return creds, nil
		},
	}

	var current, peak int32
	syncer := &mockSyncer{
		syncFunc: func(ctx context.Context, accountID string, platforms []model.Platform) *model.SyncReport {
			n := atomic.AddInt32(&current, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			atomic.AddInt32(&current, -1)
			return emptyReport(accountID, platforms)
		},
	}

	s := NewScheduler(repo, syncer, testLogger(), time.Hour, maxConcurrency)
	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}

	if peak > maxConcurrency {
		t.Errorf("並列数の上限を超えています: peak=%d, max=%d", peak, maxConcurrency)
	}
}

func TestSchedulerStartStopsOnCancel(t *testing.T) {
	repo := &mockCredRepo{
		listDueFunc: func(ctx context.Context, staleBefore time.Time) ([]*model.IntegrationCredential, error) {
			return nil, nil
		},
	}

	s := NewScheduler(repo, &mockSyncer{}, testLogger(), 10*time.Millisecond, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Error("キャンセル後にスケジューラが停止しません")
	}
}
