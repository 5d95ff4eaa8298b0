package gateway

import (
	"errors"
	"fmt"
)

// Kind はゲートウェイエラーの分類。
type Kind string

const (
	// KindNetwork は接続失敗・タイムアウトなどでレスポンスを得られなかったことを示す。
	KindNetwork Kind = "network"
	// KindStatus は2xx以外のHTTPステータスを示す。
	KindStatus Kind = "status"
	// KindUnauthenticated は認証情報が無効・未設定であることを示す。
	KindUnauthenticated Kind = "unauthenticated"
	// KindGraphQL はレスポンスのerrors配列にエラーが含まれていたことを示す。
	KindGraphQL Kind = "graphql"
	// KindDecode はレスポンスが期待した形式でないことを示す。
	KindDecode Kind = "decode"
	// KindNotFound は単一オブジェクトの問い合わせ結果がnullだったことを示す。
	KindNotFound Kind = "not_found"
)

// Error はゲートウェイ呼び出しの失敗を表す構造化エラー。
type Error struct {
	Service    string // 呼び出し先サービス名（auth, games など）
	Operation  string // GraphQLフィールド名
	Kind       Kind
	StatusCode int    // KindStatus / KindUnauthenticated の場合のHTTPステータス
	Message    string // サーバーが返したメッセージ、または内部で生成した説明
	Err        error  // 下位のエラー
}

// Error はerrorインターフェースを実装する。
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s.%s: %s", e.Service, e.Operation, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap は下位のエラーを返す。
func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf はerrがゲートウェイエラーであればその分類を返す。それ以外は空文字。
func KindOf(err error) Kind {
	var gerr *Error
	if errors.As(err, &gerr) {
		return gerr.Kind
	}
	return ""
}

// IsUnauthenticated は認証エラーかどうかを返す。
func IsUnauthenticated(err error) bool {
	return KindOf(err) == KindUnauthenticated
}

// IsNotFound は対象が存在しないエラーかどうかを返す。
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}

// UserMessage は画面表示用のメッセージを返す。
// サーバーが返したメッセージがあればそれを優先する。
func UserMessage(err error) string {
	var gerr *Error
	if !errors.As(err, &gerr) {
		return "Something went wrong"
	}
	if gerr.Message != "" && (gerr.Kind == KindGraphQL || gerr.Kind == KindStatus) {
		return gerr.Message
	}
	switch gerr.Kind {
	case KindNetwork:
		return "The service could not be reached"
	case KindUnauthenticated:
		return "Your session has expired"
	case KindNotFound:
		return "Not found"
	default:
		return "Unexpected response from the service"
	}
}
