package model

import "fmt"

// APIError は画面に表示するエラーの統一フォーマットを表す。
// 原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, catalog, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeLoginFailed        = "LOGIN_FAILED"
	ErrCodeAuthRequired       = "AUTH_REQUIRED"
	ErrCodeValidation         = "VALIDATION_FAILED"
	ErrCodePasswordMismatch   = "PASSWORD_MISMATCH"
	ErrCodeTermsRequired      = "TERMS_REQUIRED"
	ErrCodeGameNotFound       = "GAME_NOT_FOUND"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	ErrCodeRegistrationFailed = "REGISTRATION_FAILED"
)

// NewLoginFailedError はログイン失敗エラーを生成する。
func NewLoginFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeLoginFailed,
		Message:  "Login failed",
		Category: "auth",
		Action:   "Check your username or email and password, then try again.",
	}
}

// NewAuthRequiredError は認証が必要な操作を未ログインで行った場合のエラーを生成する。
func NewAuthRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeAuthRequired,
		Message:  "Please sign in to access this page",
		Category: "auth",
		Action:   "Sign in and try again.",
	}
}

// NewValidationError は入力値検証エラーを生成する。
func NewValidationError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  message,
		Category: "validation",
		Action:   "Correct the highlighted fields and submit again.",
	}
}

// NewPasswordMismatchError はパスワード確認不一致エラーを生成する。
func NewPasswordMismatchError() *APIError {
	return &APIError{
		Code:     ErrCodePasswordMismatch,
		Message:  "Passwords do not match",
		Category: "validation",
		Action:   "Enter the same password in both fields.",
	}
}

// NewTermsRequiredError は利用規約未同意エラーを生成する。
func NewTermsRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeTermsRequired,
		Message:  "Please agree to the terms and conditions",
		Category: "validation",
		Action:   "Tick the terms agreement checkbox.",
	}
}

// NewGameNotFoundError はゲーム未検出エラーを生成する。
func NewGameNotFoundError(gameID string) *APIError {
	return &APIError{
		Code:     ErrCodeGameNotFound,
		Message:  fmt.Sprintf("Game not found: %s", gameID),
		Category: "catalog",
		Action:   "Go back to the catalog and pick another game.",
	}
}

// NewServiceUnavailableError はリモートサービス呼び出し失敗エラーを生成する。
// serviceには失敗したサービス名を渡す。
func NewServiceUnavailableError(service string) *APIError {
	return &APIError{
		Code:     ErrCodeServiceUnavailable,
		Message:  fmt.Sprintf("The %s service could not be reached.", service),
		Category: "system",
		Action:   "Press retry, or try again in a moment.",
	}
}

// NewRegistrationFailedError はユーザー登録失敗エラーを生成する。
func NewRegistrationFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeRegistrationFailed,
		Message:  reason,
		Category: "auth",
		Action:   "Check the form and try again.",
	}
}
