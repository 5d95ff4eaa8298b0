package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/gamstore/internal/account"
	"github.com/hitoshi/gamstore/internal/metrics"
	"github.com/hitoshi/gamstore/internal/middleware"
	"github.com/hitoshi/gamstore/internal/view"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger   *slog.Logger
	Metrics  metrics.MetricsCollector
	Renderer *view.Renderer

	// ミドルウェア依存
	SessionOpener middleware.SessionOpener
	SessionConfig middleware.SessionConfig
	RateLimiter   *middleware.RateLimiter

	// 画面
	Pages   *PageHandler
	Account *AccountHandler
	Actions *ActionHandler

	// インジケーター配信
	Indicators *IndicatorHandler

	// 画像中継・運用
	Media         *MediaHandler
	Health        *HealthHandler
	MetricsHTTP   http.Handler
	StaticHandler http.Handler
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → Logging → Session → CSRF
//
// /health・/metrics・/static・/media はセッションを開かない。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	flash := middleware.FlashConfig{
		CookieSecure: deps.SessionConfig.CookieSecure,
		CookieDomain: deps.SessionConfig.CookieDomain,
	}

	r.Use(middleware.NewRecoveryMiddleware(deps.Logger, deps.Renderer))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger, deps.Metrics))

	// --- セッション不要のルート ---
	r.Get("/health", deps.Health.Health)
	if deps.MetricsHTTP != nil {
		r.Handle("/metrics", deps.MetricsHTTP)
	}
	if deps.StaticHandler != nil {
		r.Handle("/static/*", http.StripPrefix("/static", deps.StaticHandler))
	}
	r.Get("/media", deps.Media.Proxy)

	// --- 画面・操作 ---
	// ミドルウェアスタック: Session → CSRF
	sessionMW := middleware.NewSessionMiddleware(deps.SessionConfig, deps.SessionOpener, deps.Logger)
	csrfMW := middleware.NewCSRFMiddleware(middleware.CSRFConfig{
		CookieSecure: deps.SessionConfig.CookieSecure,
		CookieDomain: deps.SessionConfig.CookieDomain,
		OnFailure:    deps.Renderer,
	})

	r.Group(func(r chi.Router) {
		r.Use(sessionMW)
		r.Use(csrfMW)

		r.Get("/", deps.Pages.Home)
		r.Get("/browse", deps.Pages.Browse)
		r.Post("/browse", deps.Pages.BrowseSearch)

		// アカウント（送信はIPごとのレート制限を追加）
		r.Get("/login", deps.Account.LoginForm)
		r.With(deps.RateLimiter.Middleware()).Post("/login", deps.Account.Login)
		r.Get("/signup", deps.Account.SignupForm)
		r.With(deps.RateLimiter.Middleware()).Post("/signup", deps.Account.Signup)
		r.Post("/logout", deps.Account.Logout)

		r.Route("/game/{id}", func(r chi.Router) {
			r.Get("/", deps.Pages.Game)
			r.Post("/purchase", deps.Actions.Purchase)
			r.Post("/wishlist", deps.Actions.ToggleWishlist)

			// GET /game/{id}/indicators/ws - 所有・ウィッシュリスト状態の配信
			r.Get("/indicators/ws", deps.Indicators.Stream)
		})

		// ログインが必要な画面。未ログインの場合はゲートウェイを呼ばずにリダイレクトする
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewRequireAuthMiddleware(account.LoginPath, flash))
			r.Get("/library", deps.Pages.Library)
			r.Get("/wishlist", deps.Pages.Wishlist)
		})
	})

	// 未定義のパスもログイン状態を反映したレイアウトで描画する
	r.NotFound(sessionMW(csrfMW(http.HandlerFunc(deps.Pages.NotFound))).ServeHTTP)

	return r
}
