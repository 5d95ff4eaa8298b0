package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/hitoshi/gamstore/internal/indicator"
	"github.com/hitoshi/gamstore/internal/metrics"
	"github.com/hitoshi/gamstore/internal/middleware"
	"github.com/hitoshi/gamstore/internal/model"
)

const (
	wsWriteWait      = 10 * time.Second
	wsPongWait       = 60 * time.Second
	wsPingPeriod     = (wsPongWait * 9) / 10
	wsMaxMessageSize = 512

	// refreshMessage はクライアントからの即時再問い合わせ要求。
	refreshMessage = "refresh"
)

// indicatorMessage はWebSocketで送るインジケーター状態。
type indicatorMessage struct {
	Kind       indicator.Kind       `json:"kind"`
	Status     indicator.Status     `json:"status"`
	Pending    bool                 `json:"pending"`
	Affordance indicator.Affordance `json:"affordance"`
	LastError  string               `json:"lastError,omitempty"`
}

func newIndicatorMessage(s indicator.Snapshot) indicatorMessage {
	return indicatorMessage{
		Kind:       s.Kind,
		Status:     s.Status,
		Pending:    s.Pending,
		Affordance: s.Affordance(),
		LastError:  s.LastError,
	}
}

// IndicatorHandler はゲーム詳細画面の所有・ウィッシュリスト状態をWebSocketで配信する。
// 接続中はインジケーターをポーリングし、Hubに登録して購入・ウィッシュリスト操作からの
// 再問い合わせ要求を受け付ける。接続が切れたらインジケーターを停止して登録を解除する。
type IndicatorHandler struct {
	hub       *indicator.Hub
	ownership OwnershipChecker
	wishlist  WishlistChecker
	interval  time.Duration
	upgrader  websocket.Upgrader
	logger    *slog.Logger
	metrics   metrics.MetricsCollector
}

// NewIndicatorHandler はIndicatorHandlerを生成する。
// baseURLが空でない場合、そのオリジンからの接続のみを許可する。
func NewIndicatorHandler(hub *indicator.Hub, ownership OwnershipChecker, wishlistChecker WishlistChecker, interval time.Duration, baseURL string, logger *slog.Logger, m metrics.MetricsCollector) *IndicatorHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.Nop{}
	}
	h := &IndicatorHandler{
		hub:       hub,
		ownership: ownership,
		wishlist:  wishlistChecker,
		interval:  interval,
		logger:    logger,
		metrics:   m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	if origin := strings.TrimRight(baseURL, "/"); origin != "" {
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			o := r.Header.Get("Origin")
			return o == "" || o == origin || sameHost(r, o)
		}
	}
	return h
}

// Stream はWebSocket接続を確立し、状態が変わるたびにメッセージを送る。
// GET /game/{id}/indicators/ws
func (h *IndicatorHandler) Stream(w http.ResponseWriter, r *http.Request) {
	store := currentStore(r)
	if store == nil || !store.IsAuthenticated() {
		middleware.WriteErrorResponse(w, r, http.StatusUnauthorized, model.NewAuthRequiredError(), nil)
		return
	}
	gameID := chi.URLParam(r, "id")
	userID := store.UserID()
	sid := store.SID()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgradeがエラーレスポンスを書き込み済み
		h.logger.Debug("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	// ゲートウェイはctx上のセッションから毎回トークンを読む
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	changed := make(chan struct{}, 1)
	opts := indicator.Options{
		Interval: h.interval,
		Logger:   h.logger,
		Metrics:  h.metrics,
		OnChange: func(indicator.Snapshot) {
			select {
			case changed <- struct{}{}:
			default:
			}
		},
	}

	indicators := []*indicator.Indicator{
		indicator.New(indicator.KindOwnership, gameID, func(ctx context.Context) (bool, error) {
			return h.ownership.IsOwned(ctx, userID, gameID)
		}, opts),
		indicator.New(indicator.KindWishlist, gameID, func(ctx context.Context) (bool, error) {
			return h.wishlist.IsWishlisted(ctx, userID, gameID)
		}, opts),
	}
	for _, ind := range indicators {
		unregister := h.hub.Register(indicator.Key{SID: sid, GameID: gameID, Kind: ind.Kind()}, ind)
		defer unregister()
		defer ind.Stop()
		ind.Start(ctx)
	}

	go h.readLoop(conn, cancel, indicators)

	h.logger.Debug("indicator stream opened",
		slog.String("game_id", gameID),
		slog.String("user_id", userID),
		slog.Int("open_streams", h.hub.Count(indicator.Key{SID: sid, GameID: gameID, Kind: indicator.KindOwnership})),
	)
	h.writeLoop(ctx, conn, changed, indicators)
	h.logger.Debug("indicator stream closed",
		slog.String("game_id", gameID),
		slog.String("user_id", userID),
	)
}

// readLoop はクライアントからのメッセージを読み、切断されたらcancelを呼ぶ。
func (h *IndicatorHandler) readLoop(conn *websocket.Conn, cancel context.CancelFunc, indicators []*indicator.Indicator) {
	defer cancel()

	conn.SetReadLimit(wsMaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("indicator stream read failed", slog.String("error", err.Error()))
			}
			return
		}
		if strings.TrimSpace(string(message)) == refreshMessage {
			for _, ind := range indicators {
				ind.TriggerRefresh()
			}
		}
	}
}

// writeLoop は変化のあったインジケーターの状態を送る。書き込みはこのgoroutineのみが行う。
func (h *IndicatorHandler) writeLoop(ctx context.Context, conn *websocket.Conn, changed <-chan struct{}, indicators []*indicator.Indicator) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	sent := make(map[indicator.Kind]indicatorMessage, len(indicators))
	for {
		select {
		case <-ctx.Done():
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case <-changed:
			for _, ind := range indicators {
				msg := newIndicatorMessage(ind.Snapshot())
				if prev, ok := sent[msg.Kind]; ok && prev == msg {
					continue
				}
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := conn.WriteJSON(msg); err != nil {
					h.logger.Debug("indicator stream write failed", slog.String("error", err.Error()))
					return
				}
				sent[msg.Kind] = msg
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// sameHost はOriginのホストがリクエストのHostと一致するかを返す。
func sameHost(r *http.Request, origin string) bool {
	host := origin
	if i := strings.Index(host, "://"); i >= 0 {
		host = host[i+3:]
	}
	return strings.EqualFold(host, r.Host)
}
