// Package purchase は購入操作（決済開始）のフローを提供する。
//
// 購入フローはローカルの所有状態を直接変更しない。決済開始後は
// 所有インジケーターに再問い合わせを要求し、結果はそちらで反映される。
package purchase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hitoshi/gamstore/internal/gateway"
	"github.com/hitoshi/gamstore/internal/indicator"
	"github.com/hitoshi/gamstore/internal/metrics"
	"github.com/hitoshi/gamstore/internal/model"
)

// Status は購入操作の結果種別。
type Status string

const (
	StatusAuthRequired Status = "auth_required"
	StatusInvalidGame  Status = "invalid_game"
	StatusInProgress   Status = "in_progress"
	StatusInitiated    Status = "initiated"
	StatusFailed       Status = "failed"
	StatusError        Status = "error"
)

// PaymentInitiator は決済サービスの決済開始呼び出し。
type PaymentInitiator interface {
	Initiate(ctx context.Context, userID, gameID string) (*model.PaymentResult, error)
}

// Session は購入フローが参照するセッション操作。
type Session interface {
	SID() string
	UserID() string
	IsAuthenticated() bool
	RefreshToken(ctx context.Context) error
}

// IndicatorHub は所有インジケーターへの再問い合わせ要求先。
type IndicatorHub interface {
	Refresh(key indicator.Key) int
	BeginMutation(key indicator.Key)
	EndMutation(key indicator.Key)
}

// Outcome は購入操作の結果。Notificationは利用者に一度だけ表示する。
type Outcome struct {
	Status       Status
	Notification model.Notification
	PaymentID    string
	RedirectTo   string // 空でなければ遷移先
}

// Service は購入フローを実行する。
type Service struct {
	payments PaymentInitiator
	hub      IndicatorHub
	logger   *slog.Logger
	metrics  metrics.MetricsCollector

	mu       sync.Mutex
	inflight map[indicator.Key]struct{}
}

// NewService はServiceを生成する。
func NewService(payments PaymentInitiator, hub IndicatorHub, logger *slog.Logger, m metrics.MetricsCollector) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.Nop{}
	}
	return &Service{
		payments: payments,
		hub:      hub,
		logger:   logger,
		metrics:  m,
		inflight: make(map[indicator.Key]struct{}),
	}
}

// Purchase はゲームの決済を開始する。
//   - 未ログインの場合はログイン画面へ誘導する
//   - ゲームIDが空の場合は決済サービスを呼ばない
//   - 同じセッション・ゲームで処理中の購入がある場合は受け付けない
//
// 自動リトライは行わない。
func (s *Service) Purchase(ctx context.Context, sess Session, gameID string) Outcome {
	if sess == nil || !sess.IsAuthenticated() {
		s.metrics.RecordPurchase(string(StatusAuthRequired))
		return authRequired()
	}
	if gameID == "" {
		s.metrics.RecordPurchase(string(StatusInvalidGame))
		return Outcome{
			Status: StatusInvalidGame,
			Notification: model.Notification{
				Title:       "Error",
				Description: "Game information not available",
				Variant:     model.NotificationDestructive,
			},
		}
	}

	key := indicator.Key{SID: sess.SID(), GameID: gameID, Kind: indicator.KindOwnership}
	if !s.acquire(key) {
		return Outcome{
			Status: StatusInProgress,
			Notification: model.Notification{
				Title:       "Processing...",
				Description: "A purchase for this game is already in progress",
			},
		}
	}
	defer s.release(key)

	s.hub.BeginMutation(key)
	defer s.hub.EndMutation(key)

	userID := sess.UserID()
	result, err := s.payments.Initiate(ctx, userID, gameID)
	// 成否に関わらず所有状態を再問い合わせする
	defer s.hub.Refresh(key)

	if err != nil {
		if gateway.IsUnauthenticated(err) {
			_ = sess.RefreshToken(ctx)
			s.metrics.RecordPurchase(string(StatusAuthRequired))
			return authRequired()
		}
		s.logger.Error("payment initiation failed",
			slog.String("user_id", userID),
			slog.String("game_id", gameID),
			slog.String("error", err.Error()),
		)
		s.metrics.RecordPurchase(string(StatusError))
		return Outcome{
			Status: StatusError,
			Notification: model.Notification{
				Title:       "Payment Error",
				Description: gateway.UserMessage(err),
				Variant:     model.NotificationDestructive,
			},
		}
	}

	if !result.Success {
		s.logger.Info("payment rejected",
			slog.String("user_id", userID),
			slog.String("game_id", gameID),
			slog.String("message", result.Message),
		)
		s.metrics.RecordPurchase(string(StatusFailed))
		return Outcome{
			Status: StatusFailed,
			Notification: model.Notification{
				Title:       "Payment Failed",
				Description: result.Message,
				Variant:     model.NotificationDestructive,
			},
		}
	}

	s.logger.Info("payment initiated",
		slog.String("user_id", userID),
		slog.String("game_id", gameID),
		slog.String("payment_id", result.PaymentID),
	)
	s.metrics.RecordPurchase(string(StatusInitiated))
	return Outcome{
		Status:    StatusInitiated,
		PaymentID: result.PaymentID,
		Notification: model.Notification{
			Title:       "Payment Initiated",
			Description: fmt.Sprintf("Payment ID: %s", result.PaymentID),
			Variant:     model.NotificationSuccess,
		},
	}
}

func (s *Service) acquire(key indicator.Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[key]; busy {
		return false
	}
	s.inflight[key] = struct{}{}
	return true
}

func (s *Service) release(key indicator.Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, key)
}

func authRequired() Outcome {
	return Outcome{
		Status:     StatusAuthRequired,
		RedirectTo: "/login",
		Notification: model.Notification{
			Title:       "Authentication Required",
			Description: "Please log in to purchase games",
			Variant:     model.NotificationDestructive,
		},
	}
}
