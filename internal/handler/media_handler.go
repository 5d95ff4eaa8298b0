package handler

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/hitoshi/gamstore/internal/security"
)

// defaultMediaMaxSize は中継する画像の最大サイズ（5MB）。
const defaultMediaMaxSize = 5 * 1024 * 1024

// MediaValidator は中継前のURL検証。security.MediaGuardが実装する。
type MediaValidator interface {
	ValidateURL(rawURL string) error
}

// MediaHandler はカタログの画像URLを同一オリジンから中継する。
// 内部ネットワーク宛てのURLや画像以外のレスポンスは中継しない。
type MediaHandler struct {
	guard   MediaValidator
	client  *http.Client
	maxSize int64
	logger  *slog.Logger
}

// NewMediaHandler はMediaHandlerを生成する。clientにはSSRF対策済みのクライアントを渡す。
func NewMediaHandler(guard MediaValidator, client *http.Client, maxSize int64, logger *slog.Logger) *MediaHandler {
	if maxSize <= 0 {
		maxSize = defaultMediaMaxSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MediaHandler{guard: guard, client: client, maxSize: maxSize, logger: logger}
}

// Proxy は画像を取得してそのまま返す。
// GET /media?url=...
func (h *MediaHandler) Proxy(w http.ResponseWriter, r *http.Request) {
	rawURL := r.URL.Query().Get("url")
	if err := h.guard.ValidateURL(rawURL); err != nil {
		h.logger.Warn("media url rejected",
			slog.String("url", rawURL),
			slog.String("error", err.Error()),
		)
		http.Error(w, "invalid media url", http.StatusBadRequest)
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, rawURL, nil)
	if err != nil {
		http.Error(w, "invalid media url", http.StatusBadRequest)
		return
	}
	req.Header.Set("Accept", "image/*")

	resp, err := h.client.Do(req)
	if err != nil {
		h.logger.Warn("media fetch failed",
			slog.String("url", rawURL),
			slog.String("error", err.Error()),
		)
		http.Error(w, "media unavailable", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		h.logger.Warn("media fetch returned non-2xx",
			slog.String("url", rawURL),
			slog.Int("status", resp.StatusCode),
		)
		http.Error(w, "media unavailable", http.StatusBadGateway)
		return
	}

	contentType := resp.Header.Get("Content-Type")
	if !security.IsImageContentType(contentType) {
		h.logger.Warn("media is not an image",
			slog.String("url", rawURL),
			slog.String("content_type", contentType),
		)
		http.Error(w, "unsupported media type", http.StatusUnsupportedMediaType)
		return
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, h.maxSize+1))
	if err != nil {
		http.Error(w, "media unavailable", http.StatusBadGateway)
		return
	}
	if int64(len(body)) > h.maxSize {
		h.logger.Warn("media too large",
			slog.String("url", rawURL),
			slog.Int64("max_size", h.maxSize),
		)
		http.Error(w, "media too large", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
