package model

import "time"

// Game はカタログサービスが管理するゲームを表す。
// クライアントからは読み取り専用。
type Game struct {
	ID                 string     `json:"id"`
	Title              string     `json:"title"`
	Description        string     `json:"description"`
	Price              float64    `json:"price"`
	Rating             float64    `json:"rating"`
	ImageURL           string     `json:"imageUrl"`
	Category           string     `json:"category"`
	Platforms          []string   `json:"platforms"`
	ReleaseDate        string     `json:"releaseDate"`
	IsActive           bool       `json:"isActive"`
	Screenshots        []string   `json:"screenshots,omitempty"`
	SystemRequirements string     `json:"systemRequirements,omitempty"`
	CreatedAt          *time.Time `json:"createdAt,omitempty"`
}

// GamePage はカタログ一覧の1ページ分を表す。
type GamePage struct {
	Items           []Game `json:"items"`
	TotalCount      int    `json:"totalCount"`
	HasNextPage     bool   `json:"hasNextPage"`
	HasPreviousPage bool   `json:"hasPreviousPage"`
}

// GameFilters はカタログ一覧の絞り込み条件。
// ゼロ値のフィールドは送信しない。
type GameFilters struct {
	Category  string   `json:"category,omitempty"`
	Platform  string   `json:"platform,omitempty"`
	MinPrice  *float64 `json:"minPrice,omitempty"`
	MaxPrice  *float64 `json:"maxPrice,omitempty"`
	MinRating *float64 `json:"minRating,omitempty"`
}

// IsZero は絞り込み条件が指定されていないかを返す。
func (f *GameFilters) IsZero() bool {
	return f == nil || (f.Category == "" && f.Platform == "" &&
		f.MinPrice == nil && f.MaxPrice == nil && f.MinRating == nil)
}

// OwnershipRecord はユーザーがゲームを購入済みであることを表す。
type OwnershipRecord struct {
	UserID string `json:"userId"`
	GameID string `json:"gameId"`
}

// WishlistEntry はウィッシュリストの1件を表す。
type WishlistEntry struct {
	ID     string `json:"id"`
	UserID string `json:"userId"`
	GameID string `json:"gameId"`
}

// PaymentResult は決済開始の結果。クライアント側では永続化しない。
type PaymentResult struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	PaymentID string `json:"paymentId"`
}
