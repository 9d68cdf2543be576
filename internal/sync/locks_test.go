package sync

import (
	stdsync "sync"
	"testing"
	"time"
)

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	km := newKeyedMutex()

	const workers = 8
	var inCritical int32
	var mu stdsync.Mutex
	var wg stdsync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock("acc-1|google")
			defer unlock()

			mu.Lock()
			inCritical++
			if inCritical != 1 {
				t.Errorf("同一キーのクリティカルセクションが重複: %d", inCritical)
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inCritical--
			mu.Unlock()
		}()
	}
	wg.Wait()
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	km := newKeyedMutex()

	unlockA := km.Lock("acc-1|google")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlockB := km.Lock("acc-1|meta")
		unlockB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("別キーのロック取得がブロックされています")
	}
}

func TestKeyedMutexReleaseAllowsNextHolder(t *testing.T) {
	km := newKeyedMutex()

	unlock := km.Lock("acc-1|google")
	unlock()

	done := make(chan struct{})
	go func() {
		u := km.Lock("acc-1|google")
		u()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("解放後の再取得がブロックされています")
	}
}
