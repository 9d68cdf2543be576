package sync

import stdsync "sync"

// keyedMutex はキーごとの排他ロックを提供する。
// 同一の(アカウント, プラットフォーム)に対する同期の並行実行を防ぎ、
// ウォーターマークの競合更新を避ける。キー数は連携数に比例する程度
// なので、エントリの回収はしない。
type keyedMutex struct {
	mu    stdsync.Mutex
	locks map[string]*stdsync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*stdsync.Mutex)}
}

// Lock はキーに対応するロックを取得し、解放関数を返す。
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &stdsync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
