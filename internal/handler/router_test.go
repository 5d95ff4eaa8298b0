package handler

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/hitoshi/gamstore/internal/indicator"
	"github.com/hitoshi/gamstore/internal/library"
	"github.com/hitoshi/gamstore/internal/metrics"
	"github.com/hitoshi/gamstore/internal/middleware"
	"github.com/hitoshi/gamstore/internal/model"
	"github.com/hitoshi/gamstore/internal/purchase"
	"github.com/hitoshi/gamstore/internal/repository"
	"github.com/hitoshi/gamstore/internal/session"
	"github.com/hitoshi/gamstore/internal/view"
)

// atomicChecker はgoroutineから呼ばれる問い合わせ用のモック。
type atomicChecker struct {
	value atomic.Bool
	calls atomic.Int32
}

func (c *atomicChecker) IsOwned(ctx context.Context, userID, gameID string) (bool, error) {
	c.calls.Add(1)
	return c.value.Load(), nil
}

func (c *atomicChecker) IsWishlisted(ctx context.Context, userID, gameID string) (bool, error) {
	c.calls.Add(1)
	return c.value.Load(), nil
}

// lockedBuffer はハンドラーのgoroutineから書き込まれるログ用バッファ。
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type routerFixture struct {
	server    *httptest.Server
	logs      *lockedBuffer
	storage   *repository.MemorySessionStorage
	catalog   *mockCatalog
	library   *mockLibrary
	identity  *mockIdentity
	payments  *mockPayments
	wishes    *mockWishlistService
	ownership *atomicChecker
	wishlist  *atomicChecker
	client    *http.Client
	jar       http.CookieJar
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	logs := &lockedBuffer{}
	logger := slog.New(slog.NewJSONHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	f := &routerFixture{
		logs:      logs,
		storage:   repository.NewMemorySessionStorage(time.Hour),
		catalog:   &mockCatalog{},
		library:   &mockLibrary{},
		identity:  &mockIdentity{},
		payments:  &mockPayments{},
		wishes:    &mockWishlistService{},
		ownership: &atomicChecker{},
		wishlist:  &atomicChecker{},
	}

	renderer := newTestRenderer(t)
	hub := indicator.NewHub()
	sessCfg := middleware.SessionConfig{MaxAge: 3600}
	flash := middleware.FlashConfig{}
	limiter := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig(100), logger)
	t.Cleanup(limiter.Stop)

	sessions := session.NewManager(f.storage, nil, logger)
	deps := &RouterDeps{
		Logger:        logger,
		Metrics:       metrics.Nop{},
		Renderer:      renderer,
		SessionOpener: sessions,
		SessionConfig: sessCfg,
		RateLimiter:   limiter,
		Pages: NewPageHandler(f.catalog, f.ownership, f.wishlist, f.library, f.wishes,
			renderer, PageConfig{Flash: flash}, logger, nil),
		Account: NewAccountHandler(newAccountService(f.identity), sessions, renderer, sessCfg, flash, logger),
		Actions: NewActionHandler(purchase.NewService(f.payments, hub, logger, nil), f.wishes,
			renderer, flash, logger),
		Indicators:    NewIndicatorHandler(hub, f.ownership, f.wishlist, time.Hour, "", logger, nil),
		Media:         NewMediaHandler(allowAllGuard{}, http.DefaultClient, 0, logger),
		Health:        NewHealthHandler(logger, HealthCheck{Name: "storage", Check: okCheck, Critical: true}),
		StaticHandler: view.StaticHandler(),
	}

	f.server = httptest.NewServer(NewRouter(deps))
	t.Cleanup(f.server.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar: %v", err)
	}
	f.jar = jar
	f.client = &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return f
}

func (f *routerFixture) url(path string) string {
	return f.server.URL + path
}

// login はログイン済みのセッションを作り、そのsidをCookieに設定する。
func (f *routerFixture) login(t *testing.T) string {
	t.Helper()
	sid := uuid.NewString()
	newSessionStore(t, f.storage, sid, alice())
	u, _ := url.Parse(f.server.URL)
	f.jar.SetCookies(u, []*http.Cookie{{Name: middleware.SessionCookieName, Value: sid, Path: "/"}})
	return sid
}

func (f *routerFixture) get(t *testing.T, path string) (*http.Response, []byte) {
	t.Helper()
	resp, err := f.client.Get(f.url(path))
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp, body
}

// csrfToken はGETでCSRF Cookieを発行させ、その値を返す。
func (f *routerFixture) csrfToken(t *testing.T) string {
	t.Helper()
	f.get(t, "/login")
	u, _ := url.Parse(f.server.URL)
	for _, c := range f.jar.Cookies(u) {
		if c.Name == "csrf_token" {
			return c.Value
		}
	}
	t.Fatal("csrf_token cookie not issued")
	return ""
}

func (f *routerFixture) post(t *testing.T, path string, form url.Values) (*http.Response, []byte) {
	t.Helper()
	resp, err := f.client.PostForm(f.url(path), form)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp, body
}

// 未ログインで/libraryを開くとゲートウェイを呼ばずにログイン画面へリダイレクトされる
func TestRouter_LibraryRequiresLogin(t *testing.T) {
	f := newRouterFixture(t)

	resp, _ := f.get(t, "/library")

	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusSeeOther)
	}
	if loc := resp.Header.Get("Location"); loc != "/login" {
		t.Errorf("Location = %q, want /login", loc)
	}
	if f.library.calls != 0 {
		t.Errorf("library service called %d times, want 0", f.library.calls)
	}

	// リダイレクト先で通知が表示される
	_, body := f.get(t, "/login")
	doc := parseHTML(t, body)
	if got := textOf(mustTestID(t, doc, "flash")); !strings.Contains(got, "Authentication Required") {
		t.Errorf("flash = %q", got)
	}
}

// 未ログインで/wishlistを開くとウィッシュリストを問い合わせずにログイン画面へリダイレクトされる
func TestRouter_WishlistRequiresLogin(t *testing.T) {
	f := newRouterFixture(t)

	resp, _ := f.get(t, "/wishlist")

	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusSeeOther)
	}
	if loc := resp.Header.Get("Location"); loc != "/login" {
		t.Errorf("Location = %q, want /login", loc)
	}
	if f.wishes.calls != 0 {
		t.Errorf("wishlist service called %d times, want 0", f.wishes.calls)
	}
	if f.wishlist.calls.Load() != 0 {
		t.Errorf("wishlist gateway called %d times, want 0", f.wishlist.calls.Load())
	}
}

func TestRouter_LoginThenLibrary(t *testing.T) {
	f := newRouterFixture(t)
	f.identity.loginFn = func(ctx context.Context, usernameOrEmail, password string) (*model.AuthPayload, error) {
		return &model.AuthPayload{AccessToken: "T", User: model.Identity{ID: "user-1", Username: "alice"}}, nil
	}
	f.library.loadFn = func(ctx context.Context, userID string) (*library.Library, error) {
		return &library.Library{Games: []model.Game{sampleGame("g1", "Alpha")}}, nil
	}

	token := f.csrfToken(t)
	resp, _ := f.post(t, "/login", url.Values{
		"csrf_token":      {token},
		"usernameOrEmail": {"alice"},
		"password":        {"secret1"},
	})
	if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != "/browse" {
		t.Fatalf("login: got %d %q, want 303 /browse", resp.StatusCode, resp.Header.Get("Location"))
	}

	resp, body := f.get(t, "/library")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("library: status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	doc := parseHTML(t, body)
	if got := textOf(mustTestID(t, doc, "library-count")); got != "1 game in your library" {
		t.Errorf("count = %q", got)
	}
	if got := textOf(mustTestID(t, doc, "current-user")); got != "alice" {
		t.Errorf("current user = %q, want alice", got)
	}
}

func TestRouter_PostWithoutCSRFTokenIsRejected(t *testing.T) {
	f := newRouterFixture(t)
	f.csrfToken(t)

	resp, body := f.post(t, "/login", url.Values{"usernameOrEmail": {"alice"}, "password": {"secret1"}})

	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusForbidden)
	}
	if f.identity.calls != 0 {
		t.Errorf("identity called %d times, want 0", f.identity.calls)
	}
	mustTestID(t, parseHTML(t, body), "error-page")
}

func TestRouter_NotFound(t *testing.T) {
	f := newRouterFixture(t)

	resp, body := f.get(t, "/no/such/page")

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
	mustTestID(t, parseHTML(t, body), "not-found")
}

func TestRouter_HealthAndStatic(t *testing.T) {
	f := newRouterFixture(t)

	resp, body := f.get(t, "/health")
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"status":"ok"`) {
		t.Errorf("health: %d %s", resp.StatusCode, body)
	}
	if findCookie(resp, middleware.SessionCookieName) != nil {
		t.Error("health check should not open a session")
	}

	resp, _ = f.get(t, "/static/indicators.js")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("static: status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
}

func TestRouter_SecurityHeadersAndRequestID(t *testing.T) {
	f := newRouterFixture(t)

	resp, _ := f.get(t, "/")

	if resp.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing")
	}
	if resp.Header.Get(middleware.RequestIDHeader) == "" {
		t.Error("request id header missing")
	}
}

// --- WebSocket ---

func (f *routerFixture) dialIndicators(t *testing.T, gameID string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/game/" + gameID + "/indicators/ws"
	dialer := websocket.Dialer{Jar: f.jar, HandshakeTimeout: 2 * time.Second}
	conn, resp, err := dialer.Dial(wsURL, nil)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("dial: %v (status %d)", err, status)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// waitFor はcondを満たすメッセージを受信するまで読み続ける。
func waitFor(t *testing.T, conn *websocket.Conn, cond func(indicatorMessage) bool) indicatorMessage {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		_ = conn.SetReadDeadline(deadline)
		var msg indicatorMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("waiting for indicator message: %v", err)
		}
		if cond(msg) {
			return msg
		}
	}
}

func TestRouter_IndicatorStreamRequiresLogin(t *testing.T) {
	f := newRouterFixture(t)

	wsURL := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/game/g1/indicators/ws"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("expected dial to fail for anonymous user")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("resp = %+v, want 401", resp)
	}
}

func TestRouter_IndicatorStreamSendsInitialState(t *testing.T) {
	f := newRouterFixture(t)
	f.login(t)
	f.ownership.value.Store(true)

	conn := f.dialIndicators(t, "g1")

	own := waitFor(t, conn, func(m indicatorMessage) bool {
		return m.Kind == indicator.KindOwnership && m.Status == indicator.StatusOn
	})
	if own.Affordance.Label != "Already in Library" || !own.Affordance.Disabled {
		t.Errorf("ownership affordance = %+v", own.Affordance)
	}
	wish := waitFor(t, conn, func(m indicatorMessage) bool {
		return m.Kind == indicator.KindWishlist && m.Status == indicator.StatusOff
	})
	if wish.Affordance.Label != "Add to Wishlist" || wish.Affordance.Action != "add" {
		t.Errorf("wishlist affordance = %+v", wish.Affordance)
	}
}

// 同じセッションで2つのタブを開くと、どちらも同じキーに登録される
func TestRouter_IndicatorStreamCountsOpenTabs(t *testing.T) {
	f := newRouterFixture(t)
	f.login(t)

	initial := func(m indicatorMessage) bool { return m.Kind == indicator.KindOwnership }
	waitFor(t, f.dialIndicators(t, "g1"), initial)
	waitFor(t, f.dialIndicators(t, "g1"), initial)

	if logs := f.logs.String(); !strings.Contains(logs, `"open_streams":2`) {
		t.Errorf("second stream should see 2 open streams, logs:\n%s", logs)
	}
}

func TestRouter_IndicatorStreamRefreshMessage(t *testing.T) {
	f := newRouterFixture(t)
	f.login(t)

	conn := f.dialIndicators(t, "g1")
	waitFor(t, conn, func(m indicatorMessage) bool {
		return m.Kind == indicator.KindWishlist && m.Status == indicator.StatusOff
	})

	f.wishlist.value.Store(true)
	if err := conn.WriteMessage(websocket.TextMessage, []byte("refresh")); err != nil {
		t.Fatalf("write: %v", err)
	}

	msg := waitFor(t, conn, func(m indicatorMessage) bool {
		return m.Kind == indicator.KindWishlist && m.Status == indicator.StatusOn
	})
	if msg.Affordance.Label != "Remove from Wishlist" {
		t.Errorf("label = %q, want Remove from Wishlist", msg.Affordance.Label)
	}
}

// 購入後は同じセッションで表示中の所有インジケーターが再問い合わせされる
func TestRouter_PurchaseRefreshesMountedIndicator(t *testing.T) {
	f := newRouterFixture(t)
	f.login(t)
	f.payments.initiateFn = func(ctx context.Context, userID, gameID string) (*model.PaymentResult, error) {
		f.ownership.value.Store(true)
		return &model.PaymentResult{Success: true, PaymentID: "pay-9"}, nil
	}

	conn := f.dialIndicators(t, "g1")
	waitFor(t, conn, func(m indicatorMessage) bool {
		return m.Kind == indicator.KindOwnership && m.Status == indicator.StatusOff
	})

	token := f.csrfToken(t)
	resp, _ := f.post(t, "/game/g1/purchase", url.Values{"csrf_token": {token}})
	if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != "/game/g1" {
		t.Fatalf("purchase: got %d %q", resp.StatusCode, resp.Header.Get("Location"))
	}

	msg := waitFor(t, conn, func(m indicatorMessage) bool {
		return m.Kind == indicator.KindOwnership && m.Status == indicator.StatusOn && !m.Pending
	})
	if msg.Affordance.Label != "Already in Library" {
		t.Errorf("label = %q, want Already in Library", msg.Affordance.Label)
	}
	if f.payments.calls != 1 {
		t.Errorf("payment calls = %d, want 1", f.payments.calls)
	}
}
