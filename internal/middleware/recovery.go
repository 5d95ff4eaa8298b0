package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"
)

// NewRecoveryMiddleware はpanic発生時にプロセスクラッシュを防ぎ、
// 「Retry」「Go home」を備えたエラー画面を返すミドルウェアを生成する。
// ドメインエラーの復旧手段ではなく、描画の不具合で真っ白な画面になるのを防ぐためのもの。
func NewRecoveryMiddleware(logger *slog.Logger, renderer ErrorRenderer) func(next http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					logger.Error("panic recovered",
						slog.Any("panic", rec),
						slog.String("method", r.Method),
						slog.String("path", r.URL.Path),
						slog.String("request_id", RequestIDFromContext(r.Context())),
						slog.String("stack", string(debug.Stack())),
					)
					WriteErrorResponse(w, r, http.StatusInternalServerError, NewInternalError(), renderer)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
