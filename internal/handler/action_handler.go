package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/gamstore/internal/middleware"
	"github.com/hitoshi/gamstore/internal/purchase"
	"github.com/hitoshi/gamstore/internal/view"
	"github.com/hitoshi/gamstore/internal/wishlist"
)

// ActionHandler は購入・ウィッシュリスト操作のHTTPハンドラー。
// 結果はflash通知に載せて元の画面へリダイレクトする。
type ActionHandler struct {
	base
	purchases PurchaseServiceInterface
	wishlist  WishlistServiceInterface
}

// NewActionHandler はActionHandlerを生成する。
func NewActionHandler(purchases PurchaseServiceInterface, wishes WishlistServiceInterface, renderer *view.Renderer, flash middleware.FlashConfig, logger *slog.Logger) *ActionHandler {
	return &ActionHandler{
		base:      newBase(renderer, flash, logger),
		purchases: purchases,
		wishlist:  wishes,
	}
}

// Purchase は決済を開始する。所有状態の反映はインジケーターに任せる。
// POST /game/{id}/purchase
func (h *ActionHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "id")

	var sess purchase.Session
	if store := currentStore(r); store != nil {
		sess = store
	}

	outcome := h.purchases.Purchase(r.Context(), sess, gameID)
	to := outcome.RedirectTo
	if to == "" {
		to = safeReturn(r.PostFormValue("return"), gamePath(gameID))
	}
	h.redirect(w, r, to, &outcome.Notification)
}

// ToggleWishlist はゲームをウィッシュリストに追加または削除する。
// actionが"add"・"remove"以外の場合は現在の状態から判断する。
// POST /game/{id}/wishlist
func (h *ActionHandler) ToggleWishlist(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "id")
	title := r.PostFormValue("title")

	action := wishlist.Action(r.PostFormValue("action"))
	if action != wishlist.ActionAdd && action != wishlist.ActionRemove {
		action = ""
	}

	var sess wishlist.Session
	if store := currentStore(r); store != nil {
		sess = store
	}

	outcome := h.wishlist.Toggle(r.Context(), sess, gameID, title, action)
	to := outcome.RedirectTo
	if to == "" {
		to = safeReturn(r.PostFormValue("return"), gamePath(gameID))
	}
	h.redirect(w, r, to, &outcome.Notification)
}
