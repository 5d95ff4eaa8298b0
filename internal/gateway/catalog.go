package gateway

import (
	"context"

	"github.com/hitoshi/gamstore/internal/model"
)

const (
	gamesQuery = `query GetGames($limit: Int, $offset: Int, $search: String, $filters: GameFilters) {
  games(limit: $limit, offset: $offset, search: $search, filters: $filters) {
    items {
      id
      title
      description
      price
      rating
      imageUrl
      category
      platforms
      releaseDate
      isActive
      createdAt
    }
    totalCount
    hasNextPage
    hasPreviousPage
  }
}`

	gameByIDQuery = `query GetGameById($id: ID!) {
  game(id: $id) {
    id
    title
    description
    price
    rating
    imageUrl
    category
    platforms
    releaseDate
    isActive
    screenshots
    systemRequirements
    createdAt
  }
}`
)

// ListParams はカタログ一覧の取得条件。
type ListParams struct {
	Limit   int
	Offset  int
	Search  string
	Filters *model.GameFilters
}

// CatalogGateway はカタログサービスのクライアント。
type CatalogGateway struct {
	client *Client
}

// NewCatalogGateway はCatalogGatewayを生成する。
func NewCatalogGateway(client *Client) *CatalogGateway {
	return &CatalogGateway{client: client}
}

// List はゲーム一覧の1ページを取得する。
// 空の検索語・絞り込み条件は送信しない。
func (g *CatalogGateway) List(ctx context.Context, p ListParams) (*model.GamePage, error) {
	vars := map[string]any{
		"limit":  p.Limit,
		"offset": p.Offset,
	}
	if p.Search != "" {
		vars["search"] = p.Search
	}
	if !p.Filters.IsZero() {
		vars["filters"] = p.Filters
	}

	var page model.GamePage
	if err := g.client.Decode(ctx, "games", gamesQuery, vars, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// GetByID は指定IDのゲームを取得する。存在しない場合はKindNotFoundのエラーを返す。
func (g *CatalogGateway) GetByID(ctx context.Context, id string) (*model.Game, error) {
	var game model.Game
	if err := g.client.Decode(ctx, "game", gameByIDQuery, map[string]any{"id": id}, &game); err != nil {
		return nil, err
	}
	return &game, nil
}
