package view

import (
	"fmt"

	"github.com/hitoshi/gamstore/internal/indicator"
	"github.com/hitoshi/gamstore/internal/model"
)

// HomeData はホーム画面のデータ。
type HomeData struct {
	Featured []model.Game
	Err      *model.APIError
}

// LoginData はログイン画面のデータ。
type LoginData struct {
	UsernameOrEmail string
	Err             *model.APIError
	Fields          map[string]string
}

// SignupData はユーザー登録画面のデータ。パスワードは再表示しない。
type SignupData struct {
	Username     string
	Email        string
	FirstName    string
	LastName     string
	AgreeToTerms bool
	Err          *model.APIError
	Fields       map[string]string
}

// BrowseData はカタログ一覧画面のデータ。
type BrowseData struct {
	Search     string
	Offset     int
	Limit      int
	Games      []model.Game
	TotalCount int
	HasPrev    bool
	HasNext    bool
	Err        *model.APIError
}

// PrevOffset は前ページのオフセット。
func (d BrowseData) PrevOffset() int {
	if d.Offset-d.Limit < 0 {
		return 0
	}
	return d.Offset - d.Limit
}

// NextOffset は次ページのオフセット。
func (d BrowseData) NextOffset() int {
	return d.Offset + d.Limit
}

// IsEmpty は結果が0件かを返す。
func (d BrowseData) IsEmpty() bool {
	return d.Err == nil && len(d.Games) == 0
}

// GameData はゲーム詳細画面のデータ。
// 所有・ウィッシュリストの状態取得に失敗しても、説明文などは表示する。
type GameData struct {
	Game          *model.Game
	Ownership     indicator.Snapshot
	Wishlist      indicator.Snapshot
	OwnershipErr  string
	WishlistErr   string
	Authenticated bool
}

// LibraryData はライブラリ画面のデータ。
type LibraryData struct {
	Games     []model.Game
	CountText string
	Err       *model.APIError
}

// IsEmpty は所有ゲームが0件かを返す。
func (d LibraryData) IsEmpty() bool {
	return d.Err == nil && len(d.Games) == 0
}

// WishlistData はウィッシュリスト画面のデータ。
type WishlistData struct {
	Games []model.Game
	Err   *model.APIError
}

// IsEmpty はウィッシュリストが0件かを返す。
func (d WishlistData) IsEmpty() bool {
	return d.Err == nil && len(d.Games) == 0
}

// BadgeText は件数バッジの表示を返す。
func (d WishlistData) BadgeText() string {
	if len(d.Games) == 1 {
		return "1 Game"
	}
	return fmt.Sprintf("%d Games", len(d.Games))
}
