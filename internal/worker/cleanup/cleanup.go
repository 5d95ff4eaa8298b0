// Package cleanup は失効したセッションストレージの定期削除ジョブを提供する。
// RedisのようにTTLで自動失効するバックエンドでは起動しない。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/gamstore/internal/repository"
)

// DefaultInterval はジョブの既定実行間隔。
const DefaultInterval = time.Hour

// SweepJob は失効したセッションエントリを削除するジョブ。
// 削除は冪等で、対象がない場合もエラーにならない。
type SweepJob struct {
	storage  repository.ExpiredSweeper
	logger   *slog.Logger
	now      func() time.Time
	Interval time.Duration
}

// NewSweepJob は新しいSweepJobを生成する。
func NewSweepJob(storage repository.ExpiredSweeper, logger *slog.Logger) *SweepJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &SweepJob{
		storage:  storage,
		logger:   logger,
		now:      time.Now,
		Interval: DefaultInterval,
	}
}

// Run は現在時刻より前に失効したエントリを1回削除する。
func (j *SweepJob) Run(ctx context.Context) error {
	start := time.Now()

	deleted, err := j.storage.DeleteExpired(ctx, j.now())
	if err != nil {
		j.logger.Error("セッションクリーンアップの実行に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("session cleanup: %w", err)
	}

	j.logger.Info("セッションクリーンアップが完了しました",
		slog.Int64("deleted_count", deleted),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

// Start は起動直後に1回実行し、以降Intervalごとに実行する。
// ctxがキャンセルされるまでブロックする。
func (j *SweepJob) Start(ctx context.Context) {
	interval := j.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	_ = j.Run(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = j.Run(ctx)
		}
	}
}
