// Package handler は画面・操作・インジケーター配信のHTTPハンドラーを提供する。
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/hitoshi/gamstore/internal/account"
	"github.com/hitoshi/gamstore/internal/gateway"
	"github.com/hitoshi/gamstore/internal/library"
	"github.com/hitoshi/gamstore/internal/middleware"
	"github.com/hitoshi/gamstore/internal/model"
	"github.com/hitoshi/gamstore/internal/purchase"
	"github.com/hitoshi/gamstore/internal/session"
	"github.com/hitoshi/gamstore/internal/view"
	"github.com/hitoshi/gamstore/internal/wishlist"
)

// CatalogReader はカタログサービスの読み取り呼び出し。
type CatalogReader interface {
	List(ctx context.Context, p gateway.ListParams) (*model.GamePage, error)
	GetByID(ctx context.Context, id string) (*model.Game, error)
}

// OwnershipChecker は所有状態の問い合わせ。
type OwnershipChecker interface {
	IsOwned(ctx context.Context, userID, gameID string) (bool, error)
}

// WishlistChecker はウィッシュリスト登録状態の問い合わせ。
type WishlistChecker interface {
	IsWishlisted(ctx context.Context, userID, gameID string) (bool, error)
}

// PurchaseServiceInterface は購入ハンドラーが必要とするサービスインターフェース。
type PurchaseServiceInterface interface {
	Purchase(ctx context.Context, sess purchase.Session, gameID string) purchase.Outcome
}

// WishlistServiceInterface はウィッシュリストの操作と画面データの取得。
type WishlistServiceInterface interface {
	Toggle(ctx context.Context, sess wishlist.Session, gameID, title string, action wishlist.Action) wishlist.Outcome
	Page(ctx context.Context, userID string) ([]model.Game, error)
}

// LibraryServiceInterface はライブラリ画面のデータ取得。
type LibraryServiceInterface interface {
	Load(ctx context.Context, userID string) (*library.Library, error)
}

// AccountServiceInterface はログイン・ユーザー登録・ログアウト。
type AccountServiceInterface interface {
	Login(ctx context.Context, sess account.Session, form account.LoginForm) account.Result
	Signup(ctx context.Context, form account.SignupForm) account.Result
	Logout(ctx context.Context, sess account.Session) error
}

// base は各ハンドラーに共通する描画・通知の処理。
type base struct {
	renderer *view.Renderer
	flash    middleware.FlashConfig
	logger   *slog.Logger
}

func newBase(renderer *view.Renderer, flash middleware.FlashConfig, logger *slog.Logger) base {
	if logger == nil {
		logger = slog.Default()
	}
	return base{renderer: renderer, flash: flash, logger: logger}
}

// page はレイアウト共通のデータを組み立てる。flash Cookieはここで消費する。
func (b base) page(w http.ResponseWriter, r *http.Request, title string, data any) view.Page {
	p := PageChrome(r)
	p.Title = title
	p.Flash = middleware.PopFlash(w, r, b.flash)
	p.Data = data
	return p
}

// redirect は通知をflash Cookieに載せてリダイレクトする（POST/Redirect/GET）。
func (b base) redirect(w http.ResponseWriter, r *http.Request, to string, n *model.Notification) {
	if n != nil && n.Title != "" {
		middleware.SetFlash(w, b.flash, *n)
	}
	http.Redirect(w, r, to, http.StatusSeeOther)
}

// expireSession はアクセストークン失効時の強制ログアウトを行い、ログイン画面へ誘導する。
func (b base) expireSession(w http.ResponseWriter, r *http.Request, store *session.Store) {
	if store != nil {
		// 更新交換は常に失敗し、セッションは破棄される
		_ = store.RefreshToken(r.Context())
	}
	b.logger.Info("session expired",
		slog.String("path", r.URL.Path),
		slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
	)
	b.redirect(w, r, account.LoginPath, &model.Notification{
		Title:       "Session Expired",
		Description: "Please log in again",
		Variant:     model.NotificationDestructive,
	})
}

// PageChrome はリクエストのセッションとCSRFトークンからレイアウト用データを組み立てる。
// エラー画面の描画でも使う。
func PageChrome(r *http.Request) view.Page {
	p := view.Page{
		Path:      r.URL.Path,
		CSRFToken: middleware.CSRFTokenFromContext(r.Context()),
	}
	if store := session.FromContext(r.Context()); store != nil {
		p.User = store.Identity()
	}
	return p
}

// currentStore はリクエストのセッションを返す。
func currentStore(r *http.Request) *session.Store {
	return session.FromContext(r.Context())
}

// safeReturn はフォームの戻り先がサイト内の絶対パスの場合のみそれを返す。
func safeReturn(raw, fallback string) string {
	if raw == "" || !strings.HasPrefix(raw, "/") ||
		strings.HasPrefix(raw, "//") || strings.HasPrefix(raw, "/\\") {
		return fallback
	}
	return raw
}

func gamePath(id string) string {
	return "/game/" + url.PathEscape(id)
}
