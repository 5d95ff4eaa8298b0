// Package repository はセッションストレージの永続化インターフェースと実装を提供する。
//
// セッションストレージはブラウザセッション(sid)ごとのキー/値領域で、
// 認証情報（accessToken, refreshToken, user）の保存先として使う。
package repository

import (
	"context"
	"errors"
	"time"
)

// ErrEmptySessionID はsidが空のまま操作しようとした場合のエラー。
var ErrEmptySessionID = errors.New("session id is empty")

// SessionStorage はsid単位のキー/値ストレージ。
// SetMany・Removeは複数キーをまとめて原子的に反映しなければならない。
type SessionStorage interface {
	// GetMany は指定キーの値を取得する。存在しないキーは結果のmapに含めない。
	GetMany(ctx context.Context, sid string, keys ...string) (map[string]string, error)

	// SetMany は複数キーを1回の原子的な操作で書き込む。
	SetMany(ctx context.Context, sid string, values map[string]string) error

	// Remove は指定キーを1回の原子的な操作で削除する。存在しないキーは無視する。
	Remove(ctx context.Context, sid string, keys ...string) error
}

// ExpiredSweeper は期限切れのセッションストレージを削除できるバックエンド。
// RedisのようにTTLで自動失効するバックエンドは実装しない。
type ExpiredSweeper interface {
	// DeleteExpired はnowより前に失効したエントリを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
