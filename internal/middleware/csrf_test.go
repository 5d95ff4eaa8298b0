package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/hitoshi/gamstore/internal/model"
)

// recordingRenderer はRenderErrorの呼び出しを記録する。
type recordingRenderer struct {
	status int
	err    *model.APIError
}

func (rr *recordingRenderer) RenderError(w http.ResponseWriter, r *http.Request, status int, apiErr *model.APIError) {
	rr.status = status
	rr.err = apiErr
	w.WriteHeader(status)
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestCSRF_GETIssuesCookieAndContextToken(t *testing.T) {
	mw := NewCSRFMiddleware(CSRFConfig{})

	var ctxToken string
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxToken = CSRFTokenFromContext(r.Context())
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/login", nil))

	cookie := findCookie(w.Result(), csrfCookieName)
	if cookie == nil {
		t.Fatal("csrf cookie should be set on first GET")
	}
	if len(cookie.Value) != 64 {
		t.Errorf("token length = %d, want 64", len(cookie.Value))
	}
	if ctxToken != cookie.Value {
		t.Errorf("context token = %q, want cookie value", ctxToken)
	}
}

func TestCSRF_GETReusesExistingCookie(t *testing.T) {
	mw := NewCSRFMiddleware(CSRFConfig{})

	var ctxToken string
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxToken = CSRFTokenFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "existing"})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if findCookie(w.Result(), csrfCookieName) != nil {
		t.Error("cookie should not be re-issued")
	}
	if ctxToken != "existing" {
		t.Errorf("context token = %q, want %q", ctxToken, "existing")
	}
}

func TestCSRF_POSTWithFormField(t *testing.T) {
	handler := NewCSRFMiddleware(CSRFConfig{})(okHandler())

	form := url.Values{CSRFFieldName: {"tok-1"}, "usernameOrEmail": {"alice"}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "tok-1"})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestCSRF_POSTWithHeader(t *testing.T) {
	handler := NewCSRFMiddleware(CSRFConfig{})(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/game/g1/wishlist", nil)
	req.Header.Set(csrfHeaderName, "tok-2")
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "tok-2"})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestCSRF_POSTRejected(t *testing.T) {
	tests := []struct {
		name   string
		cookie string
		field  string
	}{
		{"Cookieなし", "", "tok"},
		{"トークンなし", "tok", ""},
		{"不一致", "tok-a", "tok-b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewCSRFMiddleware(CSRFConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Error("handler must not be called")
			}))

			form := url.Values{}
			if tt.field != "" {
				form.Set(CSRFFieldName, tt.field)
			}
			req := httptest.NewRequest(http.MethodPost, "/logout", strings.NewReader(form.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: tt.cookie})
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != http.StatusForbidden {
				t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
			}
			var body ErrorResponseBody
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Code != "CSRF_FAILED" {
				t.Errorf("code = %q, want CSRF_FAILED", body.Code)
			}
		})
	}
}

func TestCSRF_RejectedRendersErrorPage(t *testing.T) {
	renderer := &recordingRenderer{}
	handler := NewCSRFMiddleware(CSRFConfig{OnFailure: renderer})(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	req.Header.Set("Accept", "text/html")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if renderer.status != http.StatusForbidden {
		t.Errorf("rendered status = %d, want %d", renderer.status, http.StatusForbidden)
	}
	if renderer.err == nil || renderer.err.Code != "CSRF_FAILED" {
		t.Errorf("rendered error = %+v", renderer.err)
	}
}
