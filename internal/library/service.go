// Package library は所有ゲーム一覧（ライブラリ）の取得を提供する。
package library

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hitoshi/gamstore/internal/gateway"
	"github.com/hitoshi/gamstore/internal/model"
)

// OwnedLister はインベントリサービスの所有一覧取得。
type OwnedLister interface {
	ListOwned(ctx context.Context, userID string) ([]model.OwnershipRecord, error)
}

// GameGetter はカタログサービスの単一ゲーム取得。
type GameGetter interface {
	GetByID(ctx context.Context, id string) (*model.Game, error)
}

// Library はライブラリ画面に表示する内容。
type Library struct {
	Games []model.Game
	// Missing はカタログで見つからなかった、または取得に失敗したゲームID。
	Missing []string
}

// CountText は「N games in your library」形式の件数表示を返す。
func (l *Library) CountText() string {
	n := len(l.Games)
	if n == 1 {
		return "1 game in your library"
	}
	return fmt.Sprintf("%d games in your library", n)
}

// IsEmpty は表示するゲームがないかを返す。
func (l *Library) IsEmpty() bool {
	return len(l.Games) == 0
}

// Service はライブラリを組み立てる。
type Service struct {
	inventory   OwnedLister
	catalog     GameGetter
	concurrency int
	logger      *slog.Logger
}

// NewService はServiceを生成する。concurrencyはカタログ問い合わせの同時実行数。
func NewService(inventory OwnedLister, catalog GameGetter, concurrency int, logger *slog.Logger) *Service {
	if concurrency <= 0 {
		concurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		inventory:   inventory,
		catalog:     catalog,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Load はユーザーの所有レコードを取得し、各ゲームをカタログから引いて返す。
// インベントリの取得失敗はエラーとして返す（画面はリトライ可能なエラー表示になる）。
// 個々のゲームの取得失敗はカードを省略してログに残す。
func (s *Service) Load(ctx context.Context, userID string) (*Library, error) {
	records, err := s.inventory.ListOwned(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list owned games: %w", err)
	}

	ids := make([]string, 0, len(records))
	seen := make(map[string]bool, len(records))
	for _, r := range records {
		if r.GameID == "" || seen[r.GameID] {
			continue
		}
		seen[r.GameID] = true
		ids = append(ids, r.GameID)
	}

	games, missing := FetchByIDs(ctx, s.catalog, ids, s.concurrency, s.logger)
	return &Library{Games: games, Missing: missing}, nil
}

// FetchByIDs は指定IDのゲームを最大concurrency並列で取得し、idsの順序で返す。
// 取得できなかったIDはmissingに入れる。
func FetchByIDs(ctx context.Context, catalog GameGetter, ids []string, concurrency int, logger *slog.Logger) (games []model.Game, missing []string) {
	if concurrency <= 0 {
		concurrency = 1
	}
	results := make([]*model.Game, len(ids))
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-sem }()

			game, err := catalog.GetByID(ctx, id)
			if err != nil {
				level := slog.LevelWarn
				if gateway.IsNotFound(err) {
					level = slog.LevelInfo
				}
				logger.Log(ctx, level, "catalog lookup failed, skipping card",
					slog.String("game_id", id),
					slog.String("error", err.Error()),
				)
				return
			}
			results[i] = game
		}(i, id)
	}
	wg.Wait()

	games = make([]model.Game, 0, len(ids))
	for i, g := range results {
		if g == nil {
			missing = append(missing, ids[i])
			continue
		}
		games = append(games, *g)
	}
	return games, missing
}
