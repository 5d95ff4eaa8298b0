package gateway

import (
	"context"

	"github.com/hitoshi/gamstore/internal/model"
)

const (
	inventoryQuery = `query GetInventory($userId: String!) {
  getInventory(userId: $userId) {
    userId
    gameId
  }
}`

	ownsGameQuery = `query OwnsGame($userId: String!, $gameId: String!) {
  ownsGame(userId: $userId, gameId: $gameId)
}`
)

// InventoryGateway は所有ゲーム（インベントリ）サービスのクライアント。
type InventoryGateway struct {
	client *Client
}

// NewInventoryGateway はInventoryGatewayを生成する。
func NewInventoryGateway(client *Client) *InventoryGateway {
	return &InventoryGateway{client: client}
}

// ListOwned はユーザーの所有レコード一覧を返す。
func (g *InventoryGateway) ListOwned(ctx context.Context, userID string) ([]model.OwnershipRecord, error) {
	var records []model.OwnershipRecord
	err := g.client.Decode(ctx, "getInventory", inventoryQuery, map[string]any{"userId": userID}, &records)
	if IsNotFound(err) {
		return []model.OwnershipRecord{}, nil
	}
	if err != nil {
		return nil, err
	}
	return records, nil
}

// IsOwned はユーザーがゲームを所有しているかを返す。
func (g *InventoryGateway) IsOwned(ctx context.Context, userID, gameID string) (bool, error) {
	return g.client.Bool(ctx, "ownsGame", ownsGameQuery, pairVars(userID, gameID))
}
