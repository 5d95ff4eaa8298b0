// Package indicator はゲームごとの所有状態・ウィッシュリスト状態を
// 問い合わせとポーリングで保持する派生インジケーターを提供する。
//
// インジケーターはビューのマウント期間（WebSocket接続など）に紐づき、
// Stopの後に到着したレスポンスで状態を更新しない。
package indicator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/gamstore/internal/metrics"
)

// Kind はインジケーターの種類。
type Kind string

const (
	KindOwnership Kind = "ownership"
	KindWishlist  Kind = "wishlist"
)

// Status は問い合わせ結果の状態。
type Status string

const (
	// StatusUnknown は最初の問い合わせがまだ成功していない状態。
	StatusUnknown Status = "unknown"
	StatusOn      Status = "on"
	StatusOff     Status = "off"
)

// DefaultInterval はポーリング間隔のデフォルト値。
const DefaultInterval = 5 * time.Second

// CheckFunc は状態を1回問い合わせる。
type CheckFunc func(ctx context.Context) (bool, error)

// Snapshot はある時点のインジケーター状態。
type Snapshot struct {
	Kind      Kind      `json:"kind"`
	GameID    string    `json:"gameId"`
	Status    Status    `json:"status"`
	Pending   bool      `json:"pending"`
	LastError string    `json:"lastError,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Value は所有済み・ウィッシュリスト登録済みかを返す。未確定の場合はfalse。
func (s Snapshot) Value() bool {
	return s.Status == StatusOn
}

// Options はIndicatorの生成オプション。
type Options struct {
	Interval time.Duration
	Logger   *slog.Logger
	Metrics  metrics.MetricsCollector
	// OnChange は状態が変化するたびにロック外で書き込み順に呼ばれる。
	// 後続の書き込みを通知済みの古い状態は通知しない。
	OnChange func(Snapshot)
}

// Indicator は1つの(ユーザー, ゲーム, 種類)に対する派生状態。
type Indicator struct {
	kind     Kind
	gameID   string
	check    CheckFunc
	interval time.Duration
	logger   *slog.Logger
	metrics  metrics.MetricsCollector
	onChange func(Snapshot)

	mu         sync.Mutex
	snap       Snapshot
	seq        uint64
	generation uint64
	started    bool
	stopped    bool
	cancel     context.CancelFunc
	done       chan struct{}
	refreshCh  chan struct{}

	// notifyMu はOnChangeの呼び出しを直列化する。notifiedは通知済みの最大seq。
	notifyMu sync.Mutex
	notified uint64
}

// New はIndicatorを生成する。Startを呼ぶまで問い合わせは行わない。
func New(kind Kind, gameID string, check CheckFunc, opts Options) *Indicator {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Nop{}
	}
	return &Indicator{
		kind:      kind,
		gameID:    gameID,
		check:     check,
		interval:  opts.Interval,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		onChange:  opts.OnChange,
		snap:      Snapshot{Kind: kind, GameID: gameID, Status: StatusUnknown},
		done:      make(chan struct{}),
		refreshCh: make(chan struct{}, 1),
	}
}

// Kind はインジケーターの種類を返す。
func (i *Indicator) Kind() Kind {
	return i.kind
}

// GameID は対象のゲームIDを返す。
func (i *Indicator) GameID() string {
	return i.gameID
}

// Start は即時に1回問い合わせた後、Stopまたはctxのキャンセルまで一定間隔で再問い合わせする。
// 処理はバックグラウンドで行い、Startはすぐに戻る。2回目以降の呼び出しは何もしない。
func (i *Indicator) Start(ctx context.Context) {
	i.mu.Lock()
	if i.started || i.stopped {
		i.mu.Unlock()
		return
	}
	i.started = true
	ctx, i.cancel = context.WithCancel(ctx)
	i.mu.Unlock()

	i.metrics.IndicatorStarted(string(i.kind))
	go i.loop(ctx)
}

func (i *Indicator) loop(ctx context.Context) {
	defer close(i.done)
	defer i.metrics.IndicatorStopped(string(i.kind))

	ticker := time.NewTicker(i.interval)
	defer ticker.Stop()

	i.runCheck(ctx)

	for {
		select {
		case <-ctx.Done():
			i.markStopped()
			return
		case <-ticker.C:
			i.runCheck(ctx)
		case <-i.refreshCh:
			i.runCheck(ctx)
		}
	}
}

// Stop はポーリングを停止する。冪等。
// 実行中の問い合わせの完了は待たず、Stop以降に到着したレスポンスは状態に反映しない。
func (i *Indicator) Stop() {
	i.mu.Lock()
	if i.stopped {
		i.mu.Unlock()
		return
	}
	i.stopped = true
	i.generation++
	cancel := i.cancel
	started := i.started
	i.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if !started {
		close(i.done)
	}
}

// Done はポーリングのgoroutineが終了すると閉じられるチャネルを返す。
func (i *Indicator) Done() <-chan struct{} {
	return i.done
}

// TriggerRefresh は次のポーリングを待たずに再問い合わせを要求する。
// Startのgoroutine上で実行され、呼び出し元はブロックしない。
func (i *Indicator) TriggerRefresh() {
	select {
	case i.refreshCh <- struct{}{}:
	default:
		// すでに要求済み
	}
}

// Refresh は呼び出し元のgoroutineで即時に再問い合わせし、反映後の状態を返す。
// 停止済みの場合は問い合わせずに現在の状態を返す。
func (i *Indicator) Refresh(ctx context.Context) (Snapshot, error) {
	err := i.runCheck(ctx)
	return i.Snapshot(), err
}

// BeginMutation は利用者操作（購入・追加・削除）の処理中状態に入る。
// すでに処理中の場合はfalseを返し、重複送信を防ぐ。
func (i *Indicator) BeginMutation() bool {
	i.mu.Lock()
	if i.snap.Pending {
		i.mu.Unlock()
		return false
	}
	i.snap.Pending = true
	snap, seq := i.commitLocked()
	i.mu.Unlock()

	i.notify(snap, seq)
	return true
}

// EndMutation は処理中状態を解除する。
func (i *Indicator) EndMutation() {
	i.mu.Lock()
	if !i.snap.Pending {
		i.mu.Unlock()
		return
	}
	i.snap.Pending = false
	snap, seq := i.commitLocked()
	i.mu.Unlock()

	i.notify(snap, seq)
}

// Snapshot は現在の状態を返す。
func (i *Indicator) Snapshot() Snapshot {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.snap
}

// runCheck は1回問い合わせて結果を反映する。
// 問い合わせ開始時の世代と反映時の世代が異なる場合（Stop済み）は破棄する。
func (i *Indicator) runCheck(ctx context.Context) error {
	i.mu.Lock()
	if i.stopped {
		i.mu.Unlock()
		return nil
	}
	gen := i.generation
	i.mu.Unlock()

	value, err := i.check(ctx)

	i.mu.Lock()
	if i.stopped || gen != i.generation {
		i.mu.Unlock()
		i.logger.Debug("dropping late indicator response",
			slog.String("kind", string(i.kind)),
			slog.String("game_id", i.gameID),
		)
		return nil
	}

	if err != nil {
		// 失敗時は直前の値を保持する
		i.snap.LastError = err.Error()
	} else {
		i.snap.Status = StatusOff
		if value {
			i.snap.Status = StatusOn
		}
		i.snap.LastError = ""
		i.snap.UpdatedAt = time.Now()
	}
	snap, seq := i.commitLocked()
	i.mu.Unlock()

	outcome := "success"
	if err != nil {
		outcome = "error"
		i.logger.Warn("indicator check failed",
			slog.String("kind", string(i.kind)),
			slog.String("game_id", i.gameID),
			slog.String("error", err.Error()),
		)
	}
	i.metrics.RecordIndicatorCheck(string(i.kind), outcome)

	i.notify(snap, seq)
	return err
}

func (i *Indicator) markStopped() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if !i.stopped {
		i.stopped = true
		i.generation++
	}
}

// commitLocked は状態の書き込みに番号を振り、その時点のスナップショットを返す。
// i.muを保持した状態で呼ぶこと。
func (i *Indicator) commitLocked() (Snapshot, uint64) {
	i.seq++
	return i.snap, i.seq
}

// notify はOnChangeを呼ぶ。すでに新しい書き込みを通知済みの場合は何もしない。
func (i *Indicator) notify(snap Snapshot, seq uint64) {
	if i.onChange == nil {
		return
	}
	i.notifyMu.Lock()
	defer i.notifyMu.Unlock()
	if seq <= i.notified {
		return
	}
	i.notified = seq
	i.onChange(snap)
}
