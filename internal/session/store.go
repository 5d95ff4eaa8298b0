// Package session はブラウザセッション(sid)ごとの認証状態を管理する。
//
// Storeは「現在のユーザーは誰か」の唯一の情報源であり、
// 認証情報（accessToken, refreshToken, user）をセッションストレージに永続化する。
// IdentityとCredentialは常に同時に生成・破棄される。
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hitoshi/gamstore/internal/model"
	"github.com/hitoshi/gamstore/internal/repository"
)

// セッションストレージのキー名。
const (
	KeyAccessToken  = "accessToken"
	KeyRefreshToken = "refreshToken"
	KeyUser         = "user"
)

var allKeys = []string{KeyAccessToken, KeyRefreshToken, KeyUser}

var (
	// ErrRefreshUnavailable はトークンリフレッシュが利用できないことを示す。
	// 呼び出し側は強制ログアウトとして扱う。
	ErrRefreshUnavailable = errors.New("token refresh is not available")

	// ErrInvalidCredential はアクセストークンまたはユーザーIDが空のままログインしようとした場合のエラー。
	ErrInvalidCredential = errors.New("access token and identity id are required")
)

// RemoteLogout はIDサービスのログアウト呼び出し。
type RemoteLogout interface {
	Logout(ctx context.Context) (bool, error)
}

// Store は1つのsidに対する認証状態。
// メモリ上の状態はストレージへの反映が成功した後に更新する。
type Store struct {
	mu       sync.RWMutex
	sid      string
	storage  repository.SessionStorage
	remote   RemoteLogout
	logger   *slog.Logger
	identity *model.Identity
	loading  bool
}

// NewStore はStoreを生成する。Initializeを呼ぶまでLoadingはtrueを返す。
func NewStore(sid string, storage repository.SessionStorage, remote RemoteLogout, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		sid:     sid,
		storage: storage,
		remote:  remote,
		logger:  logger,
		loading: true,
	}
}

// SID はセッションIDを返す。
func (s *Store) SID() string {
	return s.sid
}

// Initialize は永続化された認証情報を読み込む。
// accessTokenとuserが揃い、userが解析できた場合のみ認証済みになる。
// 片方だけ存在する、またはuserが壊れている場合は全キーを削除して未認証で開始する。
// トークンの有効性確認のためのネットワーク呼び出しは行わない。
func (s *Store) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() { s.loading = false }()

	values, err := s.storage.GetMany(ctx, s.sid, allKeys...)
	if err != nil {
		s.identity = nil
		return fmt.Errorf("failed to read session storage: %w", err)
	}

	token := values[KeyAccessToken]
	rawUser := values[KeyUser]

	if token != "" && rawUser != "" {
		var identity model.Identity
		if err := json.Unmarshal([]byte(rawUser), &identity); err == nil && identity.ID != "" {
			s.identity = &identity
			return nil
		}
		s.logger.Warn("stored identity could not be parsed, clearing session",
			slog.String("sid", shortSID(s.sid)),
		)
	}

	s.identity = nil
	if len(values) == 0 {
		return nil
	}
	if err := s.storage.Remove(ctx, s.sid, allKeys...); err != nil {
		return fmt.Errorf("failed to clear inconsistent session: %w", err)
	}
	return nil
}

// Login はCredentialとIdentityを1回の書き込みで永続化し、認証状態にする。
// 以降のゲートウェイ呼び出しは新しいアクセストークンを使う。
func (s *Store) Login(ctx context.Context, cred model.Credential, identity model.Identity) error {
	if cred.AccessToken == "" || identity.ID == "" {
		return ErrInvalidCredential
	}

	rawUser, err := json.Marshal(identity)
	if err != nil {
		return fmt.Errorf("failed to encode identity: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// refreshTokenは空文字でも書き込み、前回セッションの値を残さない
	err = s.storage.SetMany(ctx, s.sid, map[string]string{
		KeyAccessToken:  cred.AccessToken,
		KeyRefreshToken: cred.RefreshToken,
		KeyUser:         string(rawUser),
	})
	if err != nil {
		return fmt.Errorf("failed to persist session: %w", err)
	}

	s.identity = &identity
	return nil
}

// Logout は認証済みであればIDサービスのログアウトを試み、
// その成否に関わらず永続化された認証情報とメモリ上の状態を消去する。
// 返すエラーはストレージの削除失敗のみ。
func (s *Store) Logout(ctx context.Context) error {
	if s.IsAuthenticated() && s.remote != nil {
		if _, err := s.remote.Logout(NewContext(ctx, s)); err != nil {
			s.logger.Warn("remote logout failed, clearing local session anyway",
				slog.String("sid", shortSID(s.sid)),
				slog.String("error", err.Error()),
			)
		}
	}
	return s.clear(ctx)
}

// RefreshToken はリフレッシュトークンとアクセストークンの交換を行う。
// 現時点では交換先が存在しないため常にセッションを消去してErrRefreshUnavailableを返す。
func (s *Store) RefreshToken(ctx context.Context) error {
	if err := s.clear(ctx); err != nil {
		return errors.Join(ErrRefreshUnavailable, err)
	}
	return ErrRefreshUnavailable
}

// AccessToken はストレージから最新のアクセストークンを読み出す。
// 呼び出しのたびにストレージを参照し、メモリ上にはキャッシュしない。
// 未ログインの場合は空文字を返す。
func (s *Store) AccessToken(ctx context.Context) (string, error) {
	values, err := s.storage.GetMany(ctx, s.sid, KeyAccessToken)
	if err != nil {
		return "", fmt.Errorf("failed to read access token: %w", err)
	}
	return values[KeyAccessToken], nil
}

// Identity は現在のユーザーのコピーを返す。未ログインの場合はnil。
func (s *Store) Identity() *model.Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.identity == nil {
		return nil
	}
	identity := *s.identity
	return &identity
}

// UserID は現在のユーザーIDを返す。未ログインの場合は空文字。
func (s *Store) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.identity == nil {
		return ""
	}
	return s.identity.ID
}

// IsAuthenticated は認証済みかどうかを返す。
func (s *Store) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity != nil
}

// Loading は起動時の読み込み中かどうかを返す。Initialize完了後は二度とtrueにならない。
func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// clear は全キーを削除し、メモリ上の状態をリセットする。
// ストレージの削除に失敗してもメモリ上の状態はリセットする。
func (s *Store) clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.identity = nil
	if err := s.storage.Remove(ctx, s.sid, allKeys...); err != nil {
		return fmt.Errorf("failed to clear session storage: %w", err)
	}
	return nil
}

// shortSID はログ出力用にsidの先頭のみを返す。
func shortSID(sid string) string {
	if len(sid) <= 8 {
		return sid
	}
	return sid[:8]
}
