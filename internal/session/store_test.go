package session

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/hitoshi/gamstore/internal/model"
	"github.com/hitoshi/gamstore/internal/repository"
)

// fakeRemote はIDサービスのログアウトをモックする。
type fakeRemote struct {
	mu     sync.Mutex
	called int
	err    error
}

func (f *fakeRemote) Logout(ctx context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.called++
	if f.err != nil {
		return false, f.err
	}
	return true, nil
}

// failingStorage は指定した操作でエラーを返すストレージ。
type failingStorage struct {
	repository.SessionStorage
	getErr    error
	removeErr error
}

func (f *failingStorage) GetMany(ctx context.Context, sid string, keys ...string) (map[string]string, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.SessionStorage.GetMany(ctx, sid, keys...)
}

func (f *failingStorage) Remove(ctx context.Context, sid string, keys ...string) error {
	if f.removeErr != nil {
		return f.removeErr
	}
	return f.SessionStorage.Remove(ctx, sid, keys...)
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, nil))
}

func alice() model.Identity {
	return model.Identity{ID: "u-alice", Username: "alice", Email: "alice@example.com"}
}

// assertConsistent はIdentityとCredentialが同時に存在するか、同時に存在しないかを検証する。
func assertConsistent(t *testing.T, s *Store, storage repository.SessionStorage) {
	t.Helper()
	values, err := storage.GetMany(context.Background(), s.SID(), allKeys...)
	if err != nil {
		t.Fatalf("GetMany: %v", err)
	}
	hasToken := values[KeyAccessToken] != ""
	hasUser := values[KeyUser] != ""
	if hasToken != hasUser {
		t.Fatalf("storage inconsistent: token=%v user=%v", hasToken, hasUser)
	}
	if s.IsAuthenticated() != hasToken {
		t.Fatalf("IsAuthenticated = %v, stored credential = %v", s.IsAuthenticated(), hasToken)
	}
}

func TestStore_LoadingUntilInitialize(t *testing.T) {
	storage := repository.NewMemorySessionStorage(0)
	s := NewStore("sid-1", storage, nil, nil)

	if !s.Loading() {
		t.Error("Loading should be true before Initialize")
	}
	if err := s.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if s.Loading() {
		t.Error("Loading should be false after Initialize")
	}
	if s.IsAuthenticated() {
		t.Error("empty storage should start unauthenticated")
	}
}

func TestStore_LoginPersistsAllKeys(t *testing.T) {
	ctx := context.Background()
	storage := repository.NewMemorySessionStorage(0)
	s := NewStore("sid-1", storage, nil, nil)
	_ = s.Initialize(ctx)

	err := s.Login(ctx, model.Credential{AccessToken: "tok-1", RefreshToken: "ref-1"}, alice())
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	if got := s.Identity(); got == nil || got.Username != "alice" {
		t.Fatalf("Identity = %+v, want alice", got)
	}
	values, _ := storage.GetMany(ctx, "sid-1", allKeys...)
	if values[KeyAccessToken] != "tok-1" || values[KeyRefreshToken] != "ref-1" || values[KeyUser] == "" {
		t.Errorf("stored values = %v", values)
	}

	// 別リクエストで同じsidを開くと認証済みで復元される
	restored := NewStore("sid-1", storage, nil, nil)
	if err := restored.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if restored.UserID() != "u-alice" {
		t.Errorf("restored UserID = %q, want %q", restored.UserID(), "u-alice")
	}
}

func TestStore_LoginRejectsEmptyCredential(t *testing.T) {
	ctx := context.Background()
	storage := repository.NewMemorySessionStorage(0)
	s := NewStore("sid-1", storage, nil, nil)

	if err := s.Login(ctx, model.Credential{}, alice()); !errors.Is(err, ErrInvalidCredential) {
		t.Errorf("err = %v, want ErrInvalidCredential", err)
	}
	if err := s.Login(ctx, model.Credential{AccessToken: "tok"}, model.Identity{}); !errors.Is(err, ErrInvalidCredential) {
		t.Errorf("err = %v, want ErrInvalidCredential", err)
	}
	assertConsistent(t, s, storage)
}

func TestStore_LoginWithoutRefreshTokenOverwritesPrevious(t *testing.T) {
	ctx := context.Background()
	storage := repository.NewMemorySessionStorage(0)
	s := NewStore("sid-1", storage, nil, nil)

	_ = s.Login(ctx, model.Credential{AccessToken: "tok-1", RefreshToken: "ref-1"}, alice())
	_ = s.Login(ctx, model.Credential{AccessToken: "tok-2"}, alice())

	values, _ := storage.GetMany(ctx, "sid-1", KeyRefreshToken)
	if values[KeyRefreshToken] != "" {
		t.Errorf("refreshToken = %q, want empty", values[KeyRefreshToken])
	}
}

func TestStore_InitializeClearsHalfPresentState(t *testing.T) {
	tests := []struct {
		name   string
		values map[string]string
	}{
		{"token only", map[string]string{KeyAccessToken: "tok"}},
		{"user only", map[string]string{KeyUser: `{"id":"u1"}`}},
		{"broken user", map[string]string{KeyAccessToken: "tok", KeyUser: "{not json"}},
		{"user without id", map[string]string{KeyAccessToken: "tok", KeyUser: `{"username":"x"}`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			storage := repository.NewMemorySessionStorage(0)
			_ = storage.SetMany(ctx, "sid-1", tt.values)

			var buf bytes.Buffer
			s := NewStore("sid-1", storage, nil, newTestLogger(&buf))
			if err := s.Initialize(ctx); err != nil {
				t.Fatalf("Initialize: %v", err)
			}

			if s.IsAuthenticated() {
				t.Error("should start unauthenticated")
			}
			left, _ := storage.GetMany(ctx, "sid-1", allKeys...)
			if len(left) != 0 {
				t.Errorf("storage not cleared: %v", left)
			}
		})
	}
}

func TestStore_InitializeStorageError(t *testing.T) {
	storage := &failingStorage{
		SessionStorage: repository.NewMemorySessionStorage(0),
		getErr:         errors.New("storage down"),
	}
	s := NewStore("sid-1", storage, nil, nil)

	if err := s.Initialize(context.Background()); err == nil {
		t.Fatal("expected error, got nil")
	}
	if s.IsAuthenticated() {
		t.Error("should be unauthenticated on storage error")
	}
	if s.Loading() {
		t.Error("Loading should be false even after failure")
	}
}

// ログアウトはリモート呼び出しが失敗しても状態を消去する
func TestStore_LogoutClearsEvenWhenRemoteFails(t *testing.T) {
	ctx := context.Background()
	storage := repository.NewMemorySessionStorage(0)
	remote := &fakeRemote{err: errors.New("identity service unreachable")}
	var buf bytes.Buffer
	s := NewStore("sid-1", storage, remote, newTestLogger(&buf))

	_ = s.Login(ctx, model.Credential{AccessToken: "tok-1", RefreshToken: "ref-1"}, alice())

	if err := s.Logout(ctx); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if remote.called != 1 {
		t.Errorf("remote logout called %d times, want 1", remote.called)
	}
	if s.IsAuthenticated() || s.Identity() != nil {
		t.Error("identity should be cleared")
	}
	left, _ := storage.GetMany(ctx, "sid-1", allKeys...)
	if len(left) != 0 {
		t.Errorf("storage not cleared: %v", left)
	}
	if !bytes.Contains(buf.Bytes(), []byte("remote logout failed")) {
		t.Error("expected remote failure to be logged")
	}
}

func TestStore_LogoutWhenUnauthenticatedSkipsRemote(t *testing.T) {
	storage := repository.NewMemorySessionStorage(0)
	remote := &fakeRemote{}
	s := NewStore("sid-1", storage, remote, nil)
	_ = s.Initialize(context.Background())

	if err := s.Logout(context.Background()); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if remote.called != 0 {
		t.Errorf("remote logout called %d times, want 0", remote.called)
	}
}

func TestStore_LogoutStorageErrorStillResetsState(t *testing.T) {
	ctx := context.Background()
	storage := &failingStorage{SessionStorage: repository.NewMemorySessionStorage(0)}
	s := NewStore("sid-1", storage, &fakeRemote{}, nil)
	_ = s.Login(ctx, model.Credential{AccessToken: "tok"}, alice())

	storage.removeErr = errors.New("storage down")
	if err := s.Logout(ctx); err == nil {
		t.Fatal("expected storage error, got nil")
	}
	if s.IsAuthenticated() {
		t.Error("identity should be cleared even when storage fails")
	}
}

func TestStore_RefreshTokenFailsClosed(t *testing.T) {
	ctx := context.Background()
	storage := repository.NewMemorySessionStorage(0)
	remote := &fakeRemote{}
	s := NewStore("sid-1", storage, remote, nil)
	_ = s.Login(ctx, model.Credential{AccessToken: "tok", RefreshToken: "ref"}, alice())

	err := s.RefreshToken(ctx)
	if !errors.Is(err, ErrRefreshUnavailable) {
		t.Fatalf("err = %v, want ErrRefreshUnavailable", err)
	}
	if s.IsAuthenticated() {
		t.Error("session should be cleared after refresh failure")
	}
	if remote.called != 0 {
		t.Error("refresh should not call remote logout")
	}
	assertConsistent(t, s, storage)
}

// AccessTokenは毎回ストレージを読むため、別のStoreでのログアウトが即座に反映される
func TestStore_AccessTokenReadsStorageFresh(t *testing.T) {
	ctx := context.Background()
	storage := repository.NewMemorySessionStorage(0)
	a := NewStore("sid-1", storage, nil, nil)
	_ = a.Login(ctx, model.Credential{AccessToken: "tok-1"}, alice())

	b := NewStore("sid-1", storage, nil, nil)
	_ = b.Initialize(ctx)
	_ = b.Logout(ctx)

	token, err := a.AccessToken(ctx)
	if err != nil {
		t.Fatalf("AccessToken: %v", err)
	}
	if token != "" {
		t.Errorf("token = %q, want empty after logout elsewhere", token)
	}
}

// 任意の順序のlogin/logoutの後、IdentityとCredentialは常に揃っている
func TestStore_LoginLogoutSequencesStayConsistent(t *testing.T) {
	ctx := context.Background()
	storage := repository.NewMemorySessionStorage(0)
	s := NewStore("sid-1", storage, &fakeRemote{err: errors.New("down")}, nil)
	_ = s.Initialize(ctx)

	ops := []string{"login", "login", "logout", "logout", "login", "refresh", "login", "logout"}
	for _, op := range ops {
		switch op {
		case "login":
			_ = s.Login(ctx, model.Credential{AccessToken: "tok"}, alice())
		case "logout":
			_ = s.Logout(ctx)
		case "refresh":
			_ = s.RefreshToken(ctx)
		}
		t.Run(op, func(t *testing.T) {
			assertConsistent(t, s, storage)
		})
	}
}

func TestStore_ConcurrentLoginLogout(t *testing.T) {
	ctx := context.Background()
	storage := repository.NewMemorySessionStorage(0)
	s := NewStore("sid-1", storage, &fakeRemote{}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = s.Login(ctx, model.Credential{AccessToken: "tok"}, alice())
		}()
		go func() {
			defer wg.Done()
			_ = s.Logout(ctx)
		}()
	}
	wg.Wait()

	assertConsistent(t, s, storage)
}

func TestContextCredentials(t *testing.T) {
	ctx := context.Background()
	var creds ContextCredentials

	token, err := creds.AccessToken(ctx)
	if err != nil || token != "" {
		t.Errorf("without store: token=%q err=%v", token, err)
	}

	storage := repository.NewMemorySessionStorage(0)
	s := NewStore("sid-1", storage, nil, nil)
	_ = s.Login(ctx, model.Credential{AccessToken: "tok-1"}, alice())

	token, err = creds.AccessToken(NewContext(ctx, s))
	if err != nil {
		t.Fatalf("AccessToken: %v", err)
	}
	if token != "tok-1" {
		t.Errorf("token = %q, want %q", token, "tok-1")
	}
}

func TestManager_Open(t *testing.T) {
	ctx := context.Background()
	storage := repository.NewMemorySessionStorage(0)
	_ = NewStore("sid-1", storage, nil, nil).Login(ctx, model.Credential{AccessToken: "tok"}, alice())

	m := NewManager(storage, nil, nil)
	s, err := m.Open(ctx, "sid-1")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !s.IsAuthenticated() || s.Loading() {
		t.Errorf("IsAuthenticated=%v Loading=%v", s.IsAuthenticated(), s.Loading())
	}
}
