// Package view は埋め込みテンプレートによる画面描画を提供する。
package view

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/hitoshi/gamstore/internal/indicator"
	"github.com/hitoshi/gamstore/internal/model"
	"github.com/hitoshi/gamstore/internal/security"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// 画面名。templates/<name>.html に対応する。
const (
	PageHome     = "home"
	PageLogin    = "login"
	PageSignup   = "signup"
	PageBrowse   = "browse"
	PageGame     = "game"
	PageLibrary  = "library"
	PageWishlist = "wishlist"
	PageNotFound = "not_found"
	PageError    = "error"
)

var pageNames = []string{
	PageHome, PageLogin, PageSignup, PageBrowse, PageGame,
	PageLibrary, PageWishlist, PageNotFound, PageError,
}

// Page はすべての画面に共通するレイアウト用データ。
type Page struct {
	Title     string
	Path      string
	User      *model.Identity
	CSRFToken string
	Flash     *model.Notification
	Data      any
}

// Authenticated はログイン中かを返す。
func (p Page) Authenticated() bool {
	return p.User != nil
}

// Renderer は画面を描画する。
type Renderer struct {
	pages     map[string]*template.Template
	sanitizer *security.DescriptionSanitizer
	logger    *slog.Logger
	// Chrome はエラー画面用のレイアウトデータを組み立てる。nilの場合はタイトルのみ。
	Chrome func(r *http.Request) Page
}

// New は埋め込みテンプレートを解析してRendererを生成する。
func New(sanitizer *security.DescriptionSanitizer, logger *slog.Logger) (*Renderer, error) {
	if sanitizer == nil {
		sanitizer = security.NewDescriptionSanitizer()
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Renderer{
		pages:     make(map[string]*template.Template, len(pageNames)),
		sanitizer: sanitizer,
		logger:    logger,
	}

	funcs := template.FuncMap{
		"description": r.description,
		"price":       formatPrice,
		"rating":      formatRating,
		"media":       MediaURL,
		"join":        strings.Join,
		"field":       fieldError,
		"affordance":  func(s indicator.Snapshot) indicator.Affordance { return s.Affordance() },
	}

	for _, name := range pageNames {
		t, err := template.New("layout.html").Funcs(funcs).ParseFS(templateFS,
			"templates/layout.html",
			"templates/partials.html",
			"templates/"+name+".html",
		)
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		r.pages[name] = t
	}
	return r, nil
}

// Render は画面を描画する。描画は一度バッファに書き出し、成功した場合のみレスポンスに書き込む。
func (r *Renderer) Render(w http.ResponseWriter, status int, name string, page Page) {
	t, ok := r.pages[name]
	if !ok {
		r.logger.Error("unknown page template", slog.String("page", name))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout.html", page); err != nil {
		r.logger.Error("failed to render page",
			slog.String("page", name),
			slog.String("error", err.Error()),
		)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// ErrorData はエラー画面のデータ。
type ErrorData struct {
	Err      *model.APIError
	RetryURL string
}

// RenderError は「Retry」「Go home」を備えたエラー画面を描画する。
func (r *Renderer) RenderError(w http.ResponseWriter, req *http.Request, status int, apiErr *model.APIError) {
	page := Page{}
	if r.Chrome != nil && req != nil {
		page = r.Chrome(req)
	}
	page.Title = "Something went wrong"

	retry := "/"
	if req != nil && req.Method == http.MethodGet {
		retry = req.URL.RequestURI()
	}
	page.Data = ErrorData{Err: apiErr, RetryURL: retry}
	r.Render(w, status, PageError, page)
}

// StaticHandler は埋め込みの静的ファイル（CSS・JS）を配信するハンドラーを返す。
func StaticHandler() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(fmt.Sprintf("embedded static directory missing: %v", err))
	}
	return http.FileServer(http.FS(sub))
}

// MediaURL はカタログの画像URLを/media経由のURLに変換する。空の場合は空文字。
func MediaURL(raw string) string {
	if raw == "" {
		return ""
	}
	return "/media?url=" + url.QueryEscape(raw)
}

func (r *Renderer) description(raw string) template.HTML {
	return template.HTML(r.sanitizer.Sanitize(raw))
}

func formatPrice(p float64) string {
	if p <= 0 {
		return "Free"
	}
	return fmt.Sprintf("$%.2f", p)
}

func formatRating(v float64) string {
	return fmt.Sprintf("%.1f", v)
}

func fieldError(fields map[string]string, name string) string {
	if fields == nil {
		return ""
	}
	return fields[name]
}
