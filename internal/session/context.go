package session

import (
	"context"
	"log/slog"

	"github.com/hitoshi/gamstore/internal/repository"
)

type contextKey struct{}

// NewContext はStoreを格納したコンテキストを返す。
func NewContext(ctx context.Context, s *Store) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext はコンテキストからStoreを取得する。存在しない場合はnil。
func FromContext(ctx context.Context) *Store {
	s, _ := ctx.Value(contextKey{}).(*Store)
	return s
}

// ContextCredentials はコンテキスト上のStoreからアクセストークンを読み出す。
// ゲートウェイは呼び出しのたびにこれを参照する。
type ContextCredentials struct{}

// AccessToken はリクエストに紐づくStoreの最新アクセストークンを返す。
// Storeが存在しない場合は空文字を返す。
func (ContextCredentials) AccessToken(ctx context.Context) (string, error) {
	s := FromContext(ctx)
	if s == nil {
		return "", nil
	}
	return s.AccessToken(ctx)
}

// Manager はsidからStoreを生成する。
type Manager struct {
	storage repository.SessionStorage
	remote  RemoteLogout
	logger  *slog.Logger
}

// NewManager はManagerを生成する。
func NewManager(storage repository.SessionStorage, remote RemoteLogout, logger *slog.Logger) *Manager {
	return &Manager{storage: storage, remote: remote, logger: logger}
}

// Open はsidのStoreを生成して初期化する。
// 読み込みに失敗した場合も未認証のStoreを返す。
func (m *Manager) Open(ctx context.Context, sid string) (*Store, error) {
	s := NewStore(sid, m.storage, m.remote, m.logger)
	err := s.Initialize(ctx)
	return s, err
}
