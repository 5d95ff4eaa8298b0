package middleware

import (
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/hitoshi/gamstore/internal/model"
)

// flashCookieName はリダイレクト先で一度だけ表示する通知を運ぶCookieの名前。
const flashCookieName = "flash"

// flashMaxAge はflash Cookieの有効期間（秒）。
const flashMaxAge = 60

// FlashConfig はflash Cookieの設定。
type FlashConfig struct {
	CookieSecure bool
	CookieDomain string
}

// SetFlash は通知をflash Cookieに設定する。
func SetFlash(w http.ResponseWriter, cfg FlashConfig, n model.Notification) {
	b, err := json.Marshal(n)
	if err != nil {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookieName,
		Value:    base64.RawURLEncoding.EncodeToString(b),
		Path:     "/",
		Domain:   cfg.CookieDomain,
		MaxAge:   flashMaxAge,
		HttpOnly: true,
		Secure:   cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// PopFlash はflash Cookieの通知を取り出してCookieを削除する。無い場合・壊れている場合はnil。
func PopFlash(w http.ResponseWriter, r *http.Request, cfg FlashConfig) *model.Notification {
	cookie, err := r.Cookie(flashCookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookieName,
		Value:    "",
		Path:     "/",
		Domain:   cfg.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	raw, err := base64.RawURLEncoding.DecodeString(cookie.Value)
	if err != nil {
		return nil
	}
	var n model.Notification
	if err := json.Unmarshal(raw, &n); err != nil || n.Title == "" {
		return nil
	}
	return &n
}
