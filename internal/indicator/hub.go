package indicator

import "sync"

// Key は(セッション, ゲーム, 種類)でインジケーターを識別する。
type Key struct {
	SID    string
	GameID string
	Kind   Kind
}

// Hub はマウント中のインジケーターをKeyごとに保持する。
// 別リクエストで処理した購入・ウィッシュリスト操作の後に、
// 同じKeyの全インジケーターへ即時再問い合わせを要求するために使う。
type Hub struct {
	mu         sync.Mutex
	indicators map[Key]map[*Indicator]struct{}
}

// NewHub はHubを生成する。
func NewHub() *Hub {
	return &Hub{indicators: make(map[Key]map[*Indicator]struct{})}
}

// Register はインジケーターを登録し、登録解除用の関数を返す。
func (h *Hub) Register(key Key, ind *Indicator) (unregister func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.indicators[key]
	if !ok {
		set = make(map[*Indicator]struct{})
		h.indicators[key] = set
	}
	set[ind] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() { h.remove(key, ind) })
	}
}

func (h *Hub) remove(key Key, ind *Indicator) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set := h.indicators[key]
	delete(set, ind)
	if len(set) == 0 {
		delete(h.indicators, key)
	}
}

// Refresh はKeyに登録された全インジケーターに即時再問い合わせを要求し、対象数を返す。
func (h *Hub) Refresh(key Key) int {
	targets := h.lookup(key)
	for _, ind := range targets {
		ind.TriggerRefresh()
	}
	return len(targets)
}

// BeginMutation はKeyに登録された全インジケーターを処理中状態にする。
func (h *Hub) BeginMutation(key Key) {
	for _, ind := range h.lookup(key) {
		ind.BeginMutation()
	}
}

// EndMutation はKeyに登録された全インジケーターの処理中状態を解除する。
func (h *Hub) EndMutation(key Key) {
	for _, ind := range h.lookup(key) {
		ind.EndMutation()
	}
}

// Count はKeyに登録されたインジケーター数を返す。
func (h *Hub) Count(key Key) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.indicators[key])
}

func (h *Hub) lookup(key Key) []*Indicator {
	h.mu.Lock()
	defer h.mu.Unlock()

	set := h.indicators[key]
	out := make([]*Indicator, 0, len(set))
	for ind := range set {
		out = append(out, ind)
	}
	return out
}
