package indicator

// Affordance はインジケーター状態から導いたボタン表示。
type Affordance struct {
	Label    string `json:"label"`
	Action   string `json:"action,omitempty"` // purchase, add, remove。操作不可の場合は空
	Disabled bool   `json:"disabled"`
	Active   bool   `json:"active"`
}

// Affordance は状態に応じたボタン表示を返す。
// 最初の問い合わせが返るまでは「未所有・未登録」の表示を返し、空の表示にはしない。
func (s Snapshot) Affordance() Affordance {
	switch s.Kind {
	case KindWishlist:
		a := Affordance{Label: "Add to Wishlist", Action: "add"}
		if s.Status == StatusOn {
			a = Affordance{Label: "Remove from Wishlist", Action: "remove", Active: true}
		}
		if s.Pending {
			a.Disabled = true
		}
		return a
	default:
		if s.Status == StatusOn {
			return Affordance{Label: "Already in Library", Disabled: true, Active: true}
		}
		if s.Pending {
			return Affordance{Label: "Processing...", Action: "purchase", Disabled: true}
		}
		return Affordance{Label: "Buy Now", Action: "purchase"}
	}
}

// Unknown は問い合わせ前の状態を返す。ページの初期描画に使う。
func Unknown(kind Kind, gameID string) Snapshot {
	return Snapshot{Kind: kind, GameID: gameID, Status: StatusUnknown}
}
