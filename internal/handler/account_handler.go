package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/gamstore/internal/account"
	"github.com/hitoshi/gamstore/internal/middleware"
	"github.com/hitoshi/gamstore/internal/model"
	"github.com/hitoshi/gamstore/internal/view"
)

// AccountHandler はログイン・ユーザー登録・ログアウトのHTTPハンドラー。
type AccountHandler struct {
	base
	service AccountServiceInterface
	opener  middleware.SessionOpener
	session middleware.SessionConfig
}

// NewAccountHandler はAccountHandlerを生成する。
// openerはログイン成功時に新しいsidのセッションを開くために使う。
func NewAccountHandler(service AccountServiceInterface, opener middleware.SessionOpener, renderer *view.Renderer, sessionCfg middleware.SessionConfig, flash middleware.FlashConfig, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{
		base:    newBase(renderer, flash, logger),
		service: service,
		opener:  opener,
		session: sessionCfg,
	}
}

// LoginForm はログイン画面を描画する。ログイン済みの場合は一覧へリダイレクトする。
// GET /login
func (h *AccountHandler) LoginForm(w http.ResponseWriter, r *http.Request) {
	if store := currentStore(r); store != nil && store.IsAuthenticated() {
		http.Redirect(w, r, account.BrowsePath, http.StatusSeeOther)
		return
	}
	h.renderer.Render(w, http.StatusOK, view.PageLogin, h.page(w, r, "Sign In", view.LoginData{}))
}

// Login はログインフォームの送信を処理する。
// 認証情報はログイン前とは別の新しいsidに保存し、成功時にCookieを差し替える。
// POST /login
func (h *AccountHandler) Login(w http.ResponseWriter, r *http.Request) {
	form := account.LoginForm{
		UsernameOrEmail: strings.TrimSpace(r.PostFormValue("usernameOrEmail")),
		Password:        r.PostFormValue("password"),
	}

	previous := currentStore(r)
	if previous == nil {
		h.renderer.RenderError(w, r, http.StatusServiceUnavailable, model.NewServiceUnavailableError("session"))
		return
	}

	sid := middleware.NewSessionID()
	fresh, err := h.opener.Open(r.Context(), sid)
	if err != nil {
		h.logger.Error("failed to open session for login",
			slog.String("error", err.Error()),
		)
		h.renderer.RenderError(w, r, http.StatusServiceUnavailable, model.NewServiceUnavailableError("session"))
		return
	}

	// 1. 新しいsidのセッションでログインする
	result := h.service.Login(r.Context(), fresh, form)
	if !result.OK() {
		data := view.LoginData{
			UsernameOrEmail: form.UsernameOrEmail,
			Err:             result.Err,
			Fields:          result.Fields,
		}
		h.renderer.Render(w, formStatus(result.Err), view.PageLogin, h.page(w, r, "Sign In", data))
		return
	}

	// 2. ログイン前のsidを破棄する
	middleware.SetSessionCookie(w, h.session, sid)
	if err := h.service.Logout(r.Context(), previous); err != nil {
		h.logger.Warn("failed to clear previous session",
			slog.String("error", err.Error()),
		)
	}

	h.redirect(w, r, result.RedirectTo, result.Notification)
}

// SignupForm はユーザー登録画面を描画する。
// GET /signup
func (h *AccountHandler) SignupForm(w http.ResponseWriter, r *http.Request) {
	h.renderer.Render(w, http.StatusOK, view.PageSignup, h.page(w, r, "Sign Up", view.SignupData{}))
}

// Signup はユーザー登録フォームの送信を処理する。
// 入力エラーの場合はIDサービスを呼ばずにフォームを再表示する。
// POST /signup
func (h *AccountHandler) Signup(w http.ResponseWriter, r *http.Request) {
	form := account.SignupForm{
		Username:        strings.TrimSpace(r.PostFormValue("username")),
		Email:           strings.TrimSpace(r.PostFormValue("email")),
		Password:        r.PostFormValue("password"),
		ConfirmPassword: r.PostFormValue("confirmPassword"),
		FirstName:       strings.TrimSpace(r.PostFormValue("firstName")),
		LastName:        strings.TrimSpace(r.PostFormValue("lastName")),
		AgreeToTerms:    r.PostFormValue("agreeToTerms") != "",
	}

	result := h.service.Signup(r.Context(), form)
	if !result.OK() {
		data := view.SignupData{
			Username:     form.Username,
			Email:        form.Email,
			FirstName:    form.FirstName,
			LastName:     form.LastName,
			AgreeToTerms: form.AgreeToTerms,
			Err:          result.Err,
			Fields:       result.Fields,
		}
		h.renderer.Render(w, formStatus(result.Err), view.PageSignup, h.page(w, r, "Sign Up", data))
		return
	}

	h.redirect(w, r, result.RedirectTo, result.Notification)
}

// Logout はログアウトし、sidを新しいものに入れ替えてトップへリダイレクトする。
// POST /logout
func (h *AccountHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if store := currentStore(r); store != nil {
		if err := h.service.Logout(r.Context(), store); err != nil {
			h.logger.Warn("failed to clear session storage on logout",
				slog.String("error", err.Error()),
			)
		}
	}
	middleware.IssueSessionCookie(w, h.session)

	h.redirect(w, r, "/", &model.Notification{
		Title:       "Signed out",
		Description: "You have been logged out",
	})
}

// formStatus はフォーム再表示時のステータスコードを返す。
func formStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeLoginFailed:
		return http.StatusUnauthorized
	case model.ErrCodeRegistrationFailed:
		return http.StatusBadRequest
	default:
		return http.StatusUnprocessableEntity
	}
}
