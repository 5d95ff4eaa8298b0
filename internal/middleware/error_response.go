package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/hitoshi/gamstore/internal/model"
)

// ErrorRenderer はエラー画面を描画する。viewパッケージが実装する。
type ErrorRenderer interface {
	RenderError(w http.ResponseWriter, r *http.Request, status int, apiErr *model.APIError)
}

// ErrorResponseBody はJSONで返すエラーの統一フォーマット。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// WriteErrorResponse はエラーを返す。
// JSONを要求するリクエスト、またはrendererがnilの場合はJSONで、それ以外はエラー画面で返す。
func WriteErrorResponse(w http.ResponseWriter, r *http.Request, statusCode int, apiErr *model.APIError, renderer ErrorRenderer) {
	if renderer != nil && !wantsJSON(r) {
		renderer.RenderError(w, r, statusCode, apiErr)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// NewInternalError は内部エラーの表示内容を返す。詳細はログにのみ記録する。
func NewInternalError() *model.APIError {
	return &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "Something went wrong",
		Category: "system",
		Action:   "Retry, or go back to the home page.",
	}
}

func wantsJSON(r *http.Request) bool {
	if r == nil {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}
