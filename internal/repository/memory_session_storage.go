package repository

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// MemorySessionStorage はプロセス内メモリを使用したセッションストレージ。
// 単一インスタンスでの開発・テスト用途。再起動で内容は失われる。
type MemorySessionStorage struct {
	mu   sync.RWMutex
	data map[string]map[string]memoryEntry
	ttl  time.Duration
	now  func() time.Time
}

// NewMemorySessionStorage はMemorySessionStorageを生成する。
// ttlが0以下の場合はエントリを失効させない。
func NewMemorySessionStorage(ttl time.Duration) *MemorySessionStorage {
	return &MemorySessionStorage{
		data: make(map[string]map[string]memoryEntry),
		ttl:  ttl,
		now:  time.Now,
	}
}

// GetMany は指定キーの値を取得する。
func (m *MemorySessionStorage) GetMany(_ context.Context, sid string, keys ...string) (map[string]string, error) {
	if sid == "" {
		return nil, ErrEmptySessionID
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	now := m.now()
	values := make(map[string]string, len(keys))
	bucket := m.data[sid]
	for _, k := range keys {
		e, ok := bucket[k]
		if !ok || m.expired(e, now) {
			continue
		}
		values[k] = e.value
	}
	return values, nil
}

// SetMany は複数キーをロック下でまとめて書き込む。
func (m *MemorySessionStorage) SetMany(_ context.Context, sid string, values map[string]string) error {
	if sid == "" {
		return ErrEmptySessionID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	bucket, ok := m.data[sid]
	if !ok {
		bucket = make(map[string]memoryEntry, len(values))
		m.data[sid] = bucket
	}
	var expiresAt time.Time
	if m.ttl > 0 {
		expiresAt = m.now().Add(m.ttl)
	}
	for k, v := range values {
		bucket[k] = memoryEntry{value: v, expiresAt: expiresAt}
	}
	return nil
}

// Remove は指定キーをロック下でまとめて削除する。
func (m *MemorySessionStorage) Remove(_ context.Context, sid string, keys ...string) error {
	if sid == "" {
		return ErrEmptySessionID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	bucket, ok := m.data[sid]
	if !ok {
		return nil
	}
	for _, k := range keys {
		delete(bucket, k)
	}
	if len(bucket) == 0 {
		delete(m.data, sid)
	}
	return nil
}

// DeleteExpired は失効したエントリを削除する。
func (m *MemorySessionStorage) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for sid, bucket := range m.data {
		for k, e := range bucket {
			if m.expired(e, now) {
				delete(bucket, k)
				n++
			}
		}
		if len(bucket) == 0 {
			delete(m.data, sid)
		}
	}
	return n, nil
}

func (m *MemorySessionStorage) expired(e memoryEntry, now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

var (
	_ SessionStorage = (*MemorySessionStorage)(nil)
	_ ExpiredSweeper = (*MemorySessionStorage)(nil)
)
