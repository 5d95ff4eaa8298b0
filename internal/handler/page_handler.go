package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/gamstore/internal/gateway"
	"github.com/hitoshi/gamstore/internal/indicator"
	"github.com/hitoshi/gamstore/internal/metrics"
	"github.com/hitoshi/gamstore/internal/middleware"
	"github.com/hitoshi/gamstore/internal/model"
	"github.com/hitoshi/gamstore/internal/view"
)

const (
	// featuredLimit はホーム画面に並べるゲーム数。
	featuredLimit = 6
	// defaultIndicatorTimeout はゲーム詳細の初期描画で各状態の問い合わせを待つ上限。
	defaultIndicatorTimeout = 3 * time.Second
)

// PageConfig はPageHandlerの設定。
type PageConfig struct {
	PageSize         int
	IndicatorTimeout time.Duration
	Flash            middleware.FlashConfig
}

// PageHandler は閲覧系の画面を描画する。
type PageHandler struct {
	base
	catalog   CatalogReader
	ownership OwnershipChecker
	wishlist  WishlistChecker
	library   LibraryServiceInterface
	wishes    WishlistServiceInterface
	metrics   metrics.MetricsCollector
	pageSize  int
	timeout   time.Duration
}

// NewPageHandler はPageHandlerを生成する。
func NewPageHandler(
	catalog CatalogReader,
	ownership OwnershipChecker,
	wishlistChecker WishlistChecker,
	lib LibraryServiceInterface,
	wishes WishlistServiceInterface,
	renderer *view.Renderer,
	cfg PageConfig,
	logger *slog.Logger,
	m metrics.MetricsCollector,
) *PageHandler {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 12
	}
	if cfg.IndicatorTimeout <= 0 {
		cfg.IndicatorTimeout = defaultIndicatorTimeout
	}
	if m == nil {
		m = metrics.Nop{}
	}
	return &PageHandler{
		base:      newBase(renderer, cfg.Flash, logger),
		catalog:   catalog,
		ownership: ownership,
		wishlist:  wishlistChecker,
		library:   lib,
		wishes:    wishes,
		metrics:   m,
		pageSize:  cfg.PageSize,
		timeout:   cfg.IndicatorTimeout,
	}
}

// Home はトップ画面を描画する。おすすめ一覧の取得に失敗しても画面は表示する。
// GET /
func (h *PageHandler) Home(w http.ResponseWriter, r *http.Request) {
	data := view.HomeData{}
	page, err := h.catalog.List(r.Context(), gateway.ListParams{Limit: featuredLimit})
	if err != nil {
		h.logger.Warn("failed to load featured games", slog.String("error", err.Error()))
		data.Err = model.NewServiceUnavailableError("catalog")
	} else {
		data.Featured = page.Items
	}
	h.renderer.Render(w, http.StatusOK, view.PageHome, h.page(w, r, "", data))
}

// Browse はカタログ一覧の先頭ページを描画する。
// GET /browse
func (h *PageHandler) Browse(w http.ResponseWriter, r *http.Request) {
	h.browse(w, r, "", 0)
}

// BrowseSearch は検索語とオフセットをフォームで受け取り一覧を描画する。
// 検索状態はURLに載せない。
// POST /browse
func (h *PageHandler) BrowseSearch(w http.ResponseWriter, r *http.Request) {
	search := strings.TrimSpace(r.PostFormValue("search"))
	offset, err := strconv.Atoi(r.PostFormValue("offset"))
	if err != nil || offset < 0 {
		offset = 0
	}
	h.browse(w, r, search, offset)
}

func (h *PageHandler) browse(w http.ResponseWriter, r *http.Request, search string, offset int) {
	data := view.BrowseData{Search: search, Offset: offset, Limit: h.pageSize}
	status := http.StatusOK

	page, err := h.catalog.List(r.Context(), gateway.ListParams{
		Limit:  h.pageSize,
		Offset: offset,
		Search: search,
	})
	if err != nil {
		h.logger.Warn("failed to browse catalog",
			slog.String("search", search),
			slog.Int("offset", offset),
			slog.String("error", err.Error()),
		)
		data.Err = model.NewServiceUnavailableError("catalog")
		status = http.StatusBadGateway
	} else {
		data.Games = page.Items
		data.TotalCount = page.TotalCount
		data.HasPrev = page.HasPreviousPage
		data.HasNext = page.HasNextPage
	}
	h.renderer.Render(w, status, view.PageBrowse, h.page(w, r, "Browse", data))
}

// Game はゲーム詳細を描画する。
// ログイン中は所有・ウィッシュリスト状態を1回問い合わせて初期表示に使う。
// 問い合わせに失敗した場合は既定のボタン表示とインラインのエラーを出し、説明文などは表示する。
// GET /game/{id}
func (h *PageHandler) Game(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "id")

	game, err := h.catalog.GetByID(r.Context(), gameID)
	if err != nil || game == nil || game.ID == "" {
		if err == nil || gateway.IsNotFound(err) {
			h.renderNotFound(w, r, model.NewGameNotFoundError(gameID))
			return
		}
		h.logger.Error("failed to load game",
			slog.String("game_id", gameID),
			slog.String("error", err.Error()),
		)
		h.renderer.RenderError(w, r, http.StatusBadGateway, model.NewServiceUnavailableError("catalog"))
		return
	}

	data := view.GameData{
		Game:      game,
		Ownership: indicator.Unknown(indicator.KindOwnership, game.ID),
		Wishlist:  indicator.Unknown(indicator.KindWishlist, game.ID),
	}

	store := currentStore(r)
	if store != nil && store.IsAuthenticated() {
		data.Authenticated = true
		userID := store.UserID()

		// 2つの問い合わせは独立した期限で並行に実行する
		var ownErr, wishErr error
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			data.Ownership, ownErr = h.checkOnce(r.Context(), indicator.KindOwnership, game.ID, func(ctx context.Context) (bool, error) {
				return h.ownership.IsOwned(ctx, userID, game.ID)
			})
		}()
		go func() {
			defer wg.Done()
			data.Wishlist, wishErr = h.checkOnce(r.Context(), indicator.KindWishlist, game.ID, func(ctx context.Context) (bool, error) {
				return h.wishlist.IsWishlisted(ctx, userID, game.ID)
			})
		}()
		wg.Wait()

		if gateway.IsUnauthenticated(ownErr) || gateway.IsUnauthenticated(wishErr) {
			h.expireSession(w, r, store)
			return
		}
		if ownErr != nil {
			data.OwnershipErr = "Unable to check ownership. " + gateway.UserMessage(ownErr)
		}
		if wishErr != nil {
			data.WishlistErr = "Unable to check wishlist. " + gateway.UserMessage(wishErr)
		}
	}

	h.renderer.Render(w, http.StatusOK, view.PageGame, h.page(w, r, game.Title, data))
}

// checkOnce はポーリングを開始しないインジケーターで1回だけ問い合わせる。
// 問い合わせごとにh.timeoutの期限を設ける。
func (h *PageHandler) checkOnce(ctx context.Context, kind indicator.Kind, gameID string, check indicator.CheckFunc) (indicator.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	ind := indicator.New(kind, gameID, check, indicator.Options{Logger: h.logger, Metrics: h.metrics})
	defer ind.Stop()
	return ind.Refresh(ctx)
}

// Library はログイン中のユーザーが所有するゲームを描画する。
// GET /library
func (h *PageHandler) Library(w http.ResponseWriter, r *http.Request) {
	store := currentStore(r)
	userID := middleware.UserIDFromContext(r.Context())

	data := view.LibraryData{}
	status := http.StatusOK

	lib, err := h.library.Load(r.Context(), userID)
	if err != nil {
		if gateway.IsUnauthenticated(err) {
			h.expireSession(w, r, store)
			return
		}
		h.logger.Warn("failed to load library",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		data.Err = model.NewServiceUnavailableError("inventory")
		status = http.StatusBadGateway
	} else {
		data.Games = lib.Games
		data.CountText = lib.CountText()
	}
	h.renderer.Render(w, status, view.PageLibrary, h.page(w, r, "Library", data))
}

// Wishlist はログイン中のユーザーのウィッシュリストを描画する。
// GET /wishlist
func (h *PageHandler) Wishlist(w http.ResponseWriter, r *http.Request) {
	store := currentStore(r)
	userID := middleware.UserIDFromContext(r.Context())

	data := view.WishlistData{}
	status := http.StatusOK

	games, err := h.wishes.Page(r.Context(), userID)
	if err != nil {
		if gateway.IsUnauthenticated(err) {
			h.expireSession(w, r, store)
			return
		}
		h.logger.Warn("failed to load wishlist",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		data.Err = model.NewServiceUnavailableError("wishlist")
		status = http.StatusBadGateway
	} else {
		data.Games = games
	}
	h.renderer.Render(w, status, view.PageWishlist, h.page(w, r, "Wishlist", data))
}

// NotFound は未定義のパスに対する画面を描画する。
func (h *PageHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	h.renderNotFound(w, r, nil)
}

func (h *PageHandler) renderNotFound(w http.ResponseWriter, r *http.Request, apiErr *model.APIError) {
	h.renderer.Render(w, http.StatusNotFound, view.PageNotFound, h.page(w, r, "Not Found", apiErr))
}
