package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/lib/pq"
)

// PostgresSessionStorage はPostgreSQLを使用したセッションストレージ。
type PostgresSessionStorage struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

// NewPostgresSessionStorage はPostgresSessionStorageを生成する。
// ttlは書き込み時点からの有効期間。
func NewPostgresSessionStorage(db *sql.DB, ttl time.Duration) *PostgresSessionStorage {
	return &PostgresSessionStorage{db: db, ttl: ttl, now: time.Now}
}

// GetMany は指定キーの値を取得する。期限切れのエントリは返さない。
func (r *PostgresSessionStorage) GetMany(ctx context.Context, sid string, keys ...string) (map[string]string, error) {
	if sid == "" {
		return nil, ErrEmptySessionID
	}
	values := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return values, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT key, value FROM session_storage
		 WHERE sid = $1 AND key = ANY($2) AND expires_at > $3`,
		sid, pq.Array(keys), r.now(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query session storage: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan session storage row: %w", err)
		}
		values[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate session storage rows: %w", err)
	}

	return values, nil
}

// SetMany は複数キーを同一トランザクションでUPSERTする。
// キーはソート順に書き込み、同一sidへの並行書き込みでのデッドロックを避ける。
func (r *PostgresSessionStorage) SetMany(ctx context.Context, sid string, values map[string]string) error {
	if sid == "" {
		return ErrEmptySessionID
	}
	if len(values) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := r.now()
	expiresAt := now.Add(r.ttl)
	for _, key := range sortedKeys(values) {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO session_storage (sid, key, value, updated_at, expires_at)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (sid, key)
			 DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at, expires_at = EXCLUDED.expires_at`,
			sid, key, values[key], now, expiresAt,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert session storage key %q: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Remove は指定キーを1文のDELETEで削除する。
func (r *PostgresSessionStorage) Remove(ctx context.Context, sid string, keys ...string) error {
	if sid == "" {
		return ErrEmptySessionID
	}
	if len(keys) == 0 {
		return nil
	}

	_, err := r.db.ExecContext(ctx,
		`DELETE FROM session_storage WHERE sid = $1 AND key = ANY($2)`,
		sid, pq.Array(keys),
	)
	if err != nil {
		return fmt.Errorf("failed to delete session storage keys: %w", err)
	}
	return nil
}

// DeleteExpired は失効したエントリを削除する。
func (r *PostgresSessionStorage) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM session_storage WHERE expires_at <= $1`,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired session storage: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return n, nil
}

func sortedKeys(values map[string]string) []string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// compile-time interface check
var (
	_ SessionStorage = (*PostgresSessionStorage)(nil)
	_ ExpiredSweeper = (*PostgresSessionStorage)(nil)
)
