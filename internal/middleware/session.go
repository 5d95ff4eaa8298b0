// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/hitoshi/gamstore/internal/model"
	"github.com/hitoshi/gamstore/internal/session"
)

// SessionCookieName はブラウザセッションIDを保持するCookieの名前。
const SessionCookieName = "sid"

// SessionConfig はセッションCookieの設定。
type SessionConfig struct {
	CookieSecure bool
	CookieDomain string
	MaxAge       int // 秒
}

// SessionOpener はsidからセッションStoreを開く。session.Managerが実装する。
type SessionOpener interface {
	Open(ctx context.Context, sid string) (*session.Store, error)
}

// NewSessionMiddleware はsid Cookieからセッションを開き、リクエストコンテキストに格納するミドルウェアを返す。
// Cookieが無い、または形式が不正な場合は新しいsidを発行する。
// ストレージの読み込みに失敗した場合も未認証のセッションとして処理を続ける。
func NewSessionMiddleware(cfg SessionConfig, opener SessionOpener, logger *slog.Logger) func(next http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 1. Cookieからsidを取得（無ければ発行）
			sid := ""
			if cookie, err := r.Cookie(SessionCookieName); err == nil && isValidSID(cookie.Value) {
				sid = cookie.Value
			} else {
				sid = IssueSessionCookie(w, cfg)
			}

			// 2. セッションを開く
			store, err := opener.Open(r.Context(), sid)
			if err != nil {
				logger.Error("failed to load session",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
			}

			// 3. コンテキストに格納
			next.ServeHTTP(w, r.WithContext(session.NewContext(r.Context(), store)))
		})
	}
}

// IssueSessionCookie は新しいsidを生成してCookieに設定し、そのsidを返す。
// ログアウト時のsidローテーションにも使う。
func IssueSessionCookie(w http.ResponseWriter, cfg SessionConfig) string {
	sid := NewSessionID()
	SetSessionCookie(w, cfg, sid)
	return sid
}

// NewSessionID は新しいsidを生成する。
func NewSessionID() string {
	return uuid.NewString()
}

// SetSessionCookie は指定したsidをCookieに設定する。
func SetSessionCookie(w http.ResponseWriter, cfg SessionConfig, sid string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    sid,
		Path:     "/",
		Domain:   cfg.CookieDomain,
		MaxAge:   cfg.MaxAge,
		HttpOnly: true,
		Secure:   cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// NewRequireAuthMiddleware は未ログインのリクエストをログイン画面へリダイレクトするミドルウェアを返す。
// 後続のハンドラー（とその中のゲートウェイ呼び出し）は実行しない。
func NewRequireAuthMiddleware(loginPath string, flash FlashConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			store := session.FromContext(r.Context())
			if store == nil || !store.IsAuthenticated() {
				apiErr := model.NewAuthRequiredError()
				SetFlash(w, flash, model.Notification{
					Title:       "Authentication Required",
					Description: apiErr.Message,
					Variant:     model.NotificationDestructive,
				})
				http.Redirect(w, r, loginPath, http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// UserIDFromContext はリクエストのセッションからユーザーIDを取得する。未ログインの場合は空文字。
func UserIDFromContext(ctx context.Context) string {
	store := session.FromContext(ctx)
	if store == nil {
		return ""
	}
	return store.UserID()
}

func isValidSID(v string) bool {
	if v == "" || len(v) > 64 {
		return false
	}
	_, err := uuid.Parse(v)
	return err == nil
}
