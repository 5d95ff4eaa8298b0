package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/gamstore/internal/account"
	"github.com/hitoshi/gamstore/internal/config"
	"github.com/hitoshi/gamstore/internal/database"
	"github.com/hitoshi/gamstore/internal/gateway"
	"github.com/hitoshi/gamstore/internal/handler"
	"github.com/hitoshi/gamstore/internal/indicator"
	"github.com/hitoshi/gamstore/internal/library"
	"github.com/hitoshi/gamstore/internal/logger"
	"github.com/hitoshi/gamstore/internal/metrics"
	"github.com/hitoshi/gamstore/internal/middleware"
	"github.com/hitoshi/gamstore/internal/purchase"
	"github.com/hitoshi/gamstore/internal/repository"
	"github.com/hitoshi/gamstore/internal/security"
	"github.com/hitoshi/gamstore/internal/session"
	"github.com/hitoshi/gamstore/internal/view"
	"github.com/hitoshi/gamstore/internal/wishlist"
	"github.com/hitoshi/gamstore/internal/worker/cleanup"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、LOG_LEVELに従ってJSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたレベルで再構成
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
		slog.String("storage", string(cfg.StorageBackend)),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// sessionBackend は設定に応じて開いたセッションストレージと、その疎通確認・終了処理。
type sessionBackend struct {
	storage repository.SessionStorage
	ping    func(ctx context.Context) error
	close   func() error
}

// openSessionBackend はSTORAGE_BACKENDに応じたセッションストレージを開く。
func openSessionBackend(ctx context.Context, cfg *config.Config) (*sessionBackend, error) {
	ttl := time.Duration(cfg.SessionMaxAge) * time.Second

	switch cfg.StorageBackend {
	case config.StoragePostgres:
		db, err := database.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		slog.Info("database connection established")
		return &sessionBackend{
			storage: repository.NewPostgresSessionStorage(db, ttl),
			ping:    db.PingContext,
			close:   db.Close,
		}, nil

	case config.StorageRedis:
		client, err := database.ConnectRedis(ctx, database.RedisConfig{
			Addr: cfg.RedisAddr,
			DB:   cfg.RedisDB,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		slog.Info("redis connection established", slog.String("addr", cfg.RedisAddr))
		return &sessionBackend{
			storage: repository.NewRedisSessionStorage(client, ttl),
			ping:    func(ctx context.Context) error { return client.Ping(ctx).Err() },
			close:   client.Close,
		}, nil

	default:
		slog.Warn("using in-memory session storage; sessions are lost on restart")
		return &sessionBackend{
			storage: repository.NewMemorySessionStorage(ttl),
			ping:    func(context.Context) error { return nil },
			close:   func() error { return nil },
		}, nil
	}
}

// runServe はWebサーバーモードで起動する。
// セッションストレージを開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log := slog.Default()

	// 1. セッションストレージ
	backend, err := openSessionBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer backend.close()

	// 2. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	// 3. サービスゲートウェイ（トークンはリクエストのセッションから毎回読む）
	httpClient := &http.Client{Timeout: cfg.GatewayTimeout}
	newClient := func(service, path string) *gateway.Client {
		return gateway.NewClient(service, cfg.ServiceURL(path), httpClient, session.ContextCredentials{}, log, collector)
	}
	identityGW := gateway.NewIdentityGateway(newClient("identity", cfg.IdentityPath))
	catalogGW := gateway.NewCatalogGateway(newClient("catalog", cfg.CatalogPath))
	inventoryGW := gateway.NewInventoryGateway(newClient("inventory", cfg.InventoryPath))
	wishlistGW := gateway.NewWishlistGateway(newClient("wishlist", cfg.WishlistPath))
	paymentGW := gateway.NewPaymentGateway(newClient("payment", cfg.PaymentPath))

	// 4. セッション・インジケーター
	sessions := session.NewManager(backend.storage, identityGW, log)
	hub := indicator.NewHub()

	// 5. ドメインサービス
	purchaseService := purchase.NewService(paymentGW, hub, log, collector)
	wishlistService := wishlist.NewService(wishlistGW, catalogGW, hub, log, collector)
	libraryService := library.NewService(inventoryGW, catalogGW, cfg.LibraryConcurrency, log)
	accountService := account.NewService(identityGW, log)

	// 6. 画面描画
	renderer, err := view.New(security.NewDescriptionSanitizer(), log)
	if err != nil {
		return fmt.Errorf("failed to load templates: %w", err)
	}
	renderer.Chrome = handler.PageChrome

	// 7. ハンドラー
	sessionCfg := middleware.SessionConfig{
		CookieSecure: cfg.CookieSecure,
		CookieDomain: cfg.CookieDomain,
		MaxAge:       cfg.SessionMaxAge,
	}
	flashCfg := middleware.FlashConfig{
		CookieSecure: cfg.CookieSecure,
		CookieDomain: cfg.CookieDomain,
	}
	mediaGuard := security.NewMediaGuard(cfg.MediaFetchTimeout)
	rateLimiter := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig(cfg.LoginRateLimit), log)
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		Logger:        log,
		Metrics:       collector,
		Renderer:      renderer,
		SessionOpener: sessions,
		SessionConfig: sessionCfg,
		RateLimiter:   rateLimiter,

		Pages: handler.NewPageHandler(
			catalogGW, inventoryGW, wishlistGW, libraryService, wishlistService,
			renderer, handler.PageConfig{PageSize: cfg.CatalogPageSize, Flash: flashCfg},
			log, collector,
		),
		Account: handler.NewAccountHandler(accountService, sessions, renderer, sessionCfg, flashCfg, log),
		Actions: handler.NewActionHandler(purchaseService, wishlistService, renderer, flashCfg, log),

		Indicators: handler.NewIndicatorHandler(
			hub, inventoryGW, wishlistGW, cfg.IndicatorPollInterval, cfg.BaseURL, log, collector,
		),

		Media: handler.NewMediaHandler(mediaGuard, mediaGuard.NewSafeClient(), cfg.MediaMaxSize, log),
		Health: handler.NewHealthHandler(log,
			handler.HealthCheck{Name: "session_storage", Check: backend.ping, Critical: true},
			handler.HealthCheck{Name: "payment", Check: func(ctx context.Context) error {
				_, err := paymentGW.Health(ctx)
				return err
			}},
		),
		MetricsHTTP:   metrics.Handler(registry),
		StaticHandler: view.StaticHandler(),
	}

	router := handler.NewRouter(deps)

	// 8. 失効セッションの定期削除（TTLで自動失効しないバックエンドのみ）
	if sweeper, ok := backend.storage.(repository.ExpiredSweeper); ok {
		go cleanup.NewSweepJob(sweeper, log).Start(ctx)
	}

	// 9. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("web server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	select {
	case <-stop:
	case err := <-serveErr:
		return fmt.Errorf("server listen error: %w", err)
	}
	slog.Info("shutting down web server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("web server stopped gracefully")
	return nil
}

// runMigrate はsession_storageのマイグレーションを実行する。
// PostgreSQL以外のバックエンドではスキーマが不要なため何もしない。
func runMigrate(cfg *config.Config) error {
	if cfg.StorageBackend != config.StoragePostgres {
		slog.Info("migration skipped: storage backend has no schema",
			slog.String("storage", string(cfg.StorageBackend)),
		)
		return nil
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully", slog.Uint64("version", uint64(version)))
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
