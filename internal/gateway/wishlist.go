package gateway

import (
	"context"

	"github.com/hitoshi/gamstore/internal/model"
)

const (
	wishlistQuery = `query GetWishlist($userId: String!) {
  getWishlist(userId: $userId) {
    id
    userId
    gameId
  }
}`

	isInWishlistQuery = `query IsInWishlist($userId: String!, $gameId: String!) {
  isInWishlist(userId: $userId, gameId: $gameId)
}`

	addToWishlistMutation = `mutation AddToWishlist($userId: String!, $gameId: String!) {
  addToWishlist(userId: $userId, gameId: $gameId) {
    id
    userId
    gameId
  }
}`

	removeFromWishlistMutation = `mutation RemoveFromWishlist($userId: String!, $gameId: String!) {
  removeFromWishlist(userId: $userId, gameId: $gameId)
}`
)

// WishlistGateway はウィッシュリストサービスのクライアント。
type WishlistGateway struct {
	client *Client
}

// NewWishlistGateway はWishlistGatewayを生成する。
func NewWishlistGateway(client *Client) *WishlistGateway {
	return &WishlistGateway{client: client}
}

// List はユーザーのウィッシュリストを返す。
func (g *WishlistGateway) List(ctx context.Context, userID string) ([]model.WishlistEntry, error) {
	var entries []model.WishlistEntry
	err := g.client.Decode(ctx, "getWishlist", wishlistQuery, map[string]any{"userId": userID}, &entries)
	if IsNotFound(err) {
		return []model.WishlistEntry{}, nil
	}
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// IsWishlisted はゲームがウィッシュリストに含まれているかを返す。
func (g *WishlistGateway) IsWishlisted(ctx context.Context, userID, gameID string) (bool, error) {
	return g.client.Bool(ctx, "isInWishlist", isInWishlistQuery, pairVars(userID, gameID))
}

// Add はゲームをウィッシュリストに追加し、作成されたエントリを返す。
func (g *WishlistGateway) Add(ctx context.Context, userID, gameID string) (*model.WishlistEntry, error) {
	var entry model.WishlistEntry
	if err := g.client.Decode(ctx, "addToWishlist", addToWishlistMutation, pairVars(userID, gameID), &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// Remove はゲームをウィッシュリストから削除する。
func (g *WishlistGateway) Remove(ctx context.Context, userID, gameID string) (bool, error) {
	return g.client.Bool(ctx, "removeFromWishlist", removeFromWishlistMutation, pairVars(userID, gameID))
}

func pairVars(userID, gameID string) map[string]any {
	return map[string]any{
		"userId": userID,
		"gameId": gameID,
	}
}
