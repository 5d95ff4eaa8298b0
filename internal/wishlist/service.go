// Package wishlist はウィッシュリストの追加・削除とウィッシュリスト画面の組み立てを提供する。
package wishlist

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hitoshi/gamstore/internal/gateway"
	"github.com/hitoshi/gamstore/internal/indicator"
	"github.com/hitoshi/gamstore/internal/library"
	"github.com/hitoshi/gamstore/internal/metrics"
	"github.com/hitoshi/gamstore/internal/model"
)

// pageCatalogLimit はウィッシュリスト画面でカタログから一括取得する件数。
const pageCatalogLimit = 50

// Action はウィッシュリストに対する操作。
type Action string

const (
	ActionAdd    Action = "add"
	ActionRemove Action = "remove"
)

// Status はトグル操作の結果種別。
type Status string

const (
	StatusAuthRequired Status = "auth_required"
	StatusInvalidGame  Status = "invalid_game"
	StatusInProgress   Status = "in_progress"
	StatusAdded        Status = "added"
	StatusRemoved      Status = "removed"
	StatusFailed       Status = "failed"
)

// Gateway はウィッシュリストサービスの呼び出し。
type Gateway interface {
	List(ctx context.Context, userID string) ([]model.WishlistEntry, error)
	IsWishlisted(ctx context.Context, userID, gameID string) (bool, error)
	Add(ctx context.Context, userID, gameID string) (*model.WishlistEntry, error)
	Remove(ctx context.Context, userID, gameID string) (bool, error)
}

// Catalog はウィッシュリスト画面の組み立てに使うカタログ呼び出し。
type Catalog interface {
	List(ctx context.Context, p gateway.ListParams) (*model.GamePage, error)
	GetByID(ctx context.Context, id string) (*model.Game, error)
}

// Session はトグル操作が参照するセッション操作。
type Session interface {
	SID() string
	UserID() string
	IsAuthenticated() bool
	RefreshToken(ctx context.Context) error
}

// IndicatorHub はウィッシュリストインジケーターへの再問い合わせ要求先。
type IndicatorHub interface {
	Refresh(key indicator.Key) int
	BeginMutation(key indicator.Key)
	EndMutation(key indicator.Key)
}

// Outcome はトグル操作の結果。
// Wishlistedは操作直後の再問い合わせ結果で、再問い合わせに失敗した場合はnil。
type Outcome struct {
	Status       Status
	Notification model.Notification
	Wishlisted   *bool
	RedirectTo   string
}

// Service はウィッシュリスト操作を実行する。
type Service struct {
	wishlist Gateway
	catalog  Catalog
	hub      IndicatorHub
	logger   *slog.Logger
	metrics  metrics.MetricsCollector

	mu       sync.Mutex
	inflight map[indicator.Key]struct{}
}

// NewService はServiceを生成する。
func NewService(wishlist Gateway, catalog Catalog, hub IndicatorHub, logger *slog.Logger, m metrics.MetricsCollector) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.Nop{}
	}
	return &Service{
		wishlist: wishlist,
		catalog:  catalog,
		hub:      hub,
		logger:   logger,
		metrics:  m,
		inflight: make(map[indicator.Key]struct{}),
	}
}

// Toggle はゲームをウィッシュリストに追加または削除する。
// actionが空の場合は現在の状態を問い合わせて反対の操作を行う（問い合わせ失敗時は追加）。
//
// 変更が成功した後は必ずインジケーターに再問い合わせを要求する。
// 直後の再問い合わせが失敗しても変更は取り消さず、成功の通知を返す。
func (s *Service) Toggle(ctx context.Context, sess Session, gameID, title string, action Action) Outcome {
	if sess == nil || !sess.IsAuthenticated() {
		s.metrics.RecordWishlistToggle(string(action), string(StatusAuthRequired))
		return authRequired()
	}
	if gameID == "" {
		s.metrics.RecordWishlistToggle(string(action), string(StatusInvalidGame))
		return Outcome{
			Status: StatusInvalidGame,
			Notification: model.Notification{
				Title:       "Error",
				Description: "Game information not available",
				Variant:     model.NotificationDestructive,
			},
		}
	}
	if title == "" {
		title = "Game"
	}

	userID := sess.UserID()
	key := indicator.Key{SID: sess.SID(), GameID: gameID, Kind: indicator.KindWishlist}

	if !s.acquire(key) {
		return Outcome{
			Status: StatusInProgress,
			Notification: model.Notification{
				Title:       "Processing...",
				Description: "A wishlist update for this game is already in progress",
			},
		}
	}
	defer s.release(key)

	if action == "" {
		action = ActionAdd
		current, err := s.wishlist.IsWishlisted(ctx, userID, gameID)
		if err != nil {
			s.logger.Warn("wishlist state lookup failed, assuming not wishlisted",
				slog.String("game_id", gameID),
				slog.String("error", err.Error()),
			)
		} else if current {
			action = ActionRemove
		}
	}

	s.hub.BeginMutation(key)
	defer s.hub.EndMutation(key)

	var err error
	switch action {
	case ActionRemove:
		_, err = s.wishlist.Remove(ctx, userID, gameID)
	default:
		action = ActionAdd
		_, err = s.wishlist.Add(ctx, userID, gameID)
	}

	if err != nil {
		if gateway.IsUnauthenticated(err) {
			_ = sess.RefreshToken(ctx)
			s.metrics.RecordWishlistToggle(string(action), string(StatusAuthRequired))
			return authRequired()
		}
		s.logger.Error("wishlist mutation failed",
			slog.String("user_id", userID),
			slog.String("game_id", gameID),
			slog.String("action", string(action)),
			slog.String("error", err.Error()),
		)
		s.metrics.RecordWishlistToggle(string(action), string(StatusFailed))
		s.hub.Refresh(key)
		return Outcome{Status: StatusFailed, Notification: failedNotification(action)}
	}

	s.hub.Refresh(key)

	out := Outcome{Notification: succeededNotification(action, title)}
	if action == ActionAdd {
		out.Status = StatusAdded
	} else {
		out.Status = StatusRemoved
	}

	wishlisted, err := s.wishlist.IsWishlisted(ctx, userID, gameID)
	if err != nil {
		// 表示上の不整合のみ。次回のポーリングで解消される
		s.logger.Warn("wishlist re-query failed after mutation",
			slog.String("game_id", gameID),
			slog.String("action", string(action)),
			slog.String("error", err.Error()),
		)
	} else {
		out.Wishlisted = &wishlisted
	}

	s.metrics.RecordWishlistToggle(string(action), string(out.Status))
	return out
}

// Page はユーザーのウィッシュリストに登録されたゲームを返す。
// カタログは一覧を一括取得して照合し、一覧にないゲームだけ個別に取得する。
func (s *Service) Page(ctx context.Context, userID string) ([]model.Game, error) {
	entries, err := s.wishlist.List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list wishlist: %w", err)
	}
	if len(entries) == 0 {
		return []model.Game{}, nil
	}

	ids := make([]string, 0, len(entries))
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.GameID == "" || seen[e.GameID] {
			continue
		}
		seen[e.GameID] = true
		ids = append(ids, e.GameID)
	}

	byID := make(map[string]model.Game, len(ids))
	page, err := s.catalog.List(ctx, gateway.ListParams{Limit: pageCatalogLimit})
	if err != nil {
		s.logger.Warn("catalog list failed, falling back to per-game lookup",
			slog.String("error", err.Error()),
		)
	} else {
		for _, g := range page.Items {
			if seen[g.ID] {
				byID[g.ID] = g
			}
		}
	}

	var rest []string
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			rest = append(rest, id)
		}
	}
	if len(rest) > 0 {
		fetched, _ := library.FetchByIDs(ctx, s.catalog, rest, 4, s.logger)
		for _, g := range fetched {
			byID[g.ID] = g
		}
	}

	games := make([]model.Game, 0, len(ids))
	for _, id := range ids {
		if g, ok := byID[id]; ok {
			games = append(games, g)
		}
	}
	return games, nil
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

func succeededNotification(action Action, title string) model.Notification {
	if action == ActionRemove {
		return model.Notification{
			Title:   fmt.Sprintf("%s removed from wishlist", title),
			Variant: model.NotificationDefault,
		}
	}
	return model.Notification{
		Title:   fmt.Sprintf("%s added to wishlist!", title),
		Variant: model.NotificationSuccess,
	}
}

func failedNotification(action Action) model.Notification {
	if action == ActionRemove {
		return model.Notification{
			Title:   "Failed to remove from wishlist",
			Variant: model.NotificationDestructive,
		}
	}
	return model.Notification{
		Title:   "Failed to add to wishlist",
		Variant: model.NotificationDestructive,
	}
}

func authRequired() Outcome {
	return Outcome{
		Status:     StatusAuthRequired,
		RedirectTo: "/login",
		Notification: model.Notification{
			Title:       "Authentication Required",
			Description: "Please log in to manage your wishlist",
			Variant:     model.NotificationDestructive,
		},
	}
}
