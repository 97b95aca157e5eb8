package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"hotelling/database"
	"hotelling/hotelling/backup"
	"hotelling/hotelling/session"
	"hotelling/hotelling/transport"
	"hotelling/hotelling/transport/direct"
	"hotelling/hotelling/transport/relay"
	"hotelling/internal/websocket"
	"hotelling/migrations"
	"hotelling/models"
	"hotelling/screens"
	"hotelling/utils"
)

var (
	serveStart    bool
	serveBackupID uint
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the session server and the operator API",
	Long: `Run the session server.

Participants reach the game over the configured transport: "direct" listens
for slash-delimited requests over HTTP, "relay" polls a Redis store. The
operator API and the event stream listen on the operator port.

The first SIGINT or SIGTERM lets the running turn finish before shutting
down; a second one stops immediately.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withLogger(func(config models.Config, logger *zap.Logger) error {
			return serve(cmd.Context(), config, logger)
		})
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveStart, "start", false, "start a session with the configured roles right away")
	serveCmd.Flags().UintVar(&serveBackupID, "load", 0, "restore the stored snapshot with this id on startup")
}

func relayConfig(config models.Config) relay.Config {
	return relay.Config{
		Prefix:       config.Relay.Prefix,
		PollInterval: config.PollInterval(),
		BatchSize:    config.Relay.BatchSize,
		Retry: transport.Backoff{
			Attempts: config.Relay.MaxRetries,
			Initial:  200 * time.Millisecond,
			Max:      5 * time.Second,
		},
	}
}

func newAdapter(config models.Config, logger *zap.Logger) (transport.Adapter, func(), error) {
	switch config.Transport {
	case "relay":
		rdb, err := database.InitRedis(config.Relay, logger)
		if err != nil {
			return nil, nil, err
		}
		return relay.New(rdb, relayConfig(config), logger), func() { rdb.Close() }, nil
	default:
		return direct.New(direct.Config{
			Addr:         fmt.Sprintf("%s:%d", config.Network.Host, config.Network.Port),
			Workers:      config.Network.Workers,
			MaxInFlight:  config.Network.MaxInFlight,
			ReplyTimeout: config.ReplyTimeout(),
			Listen:       transport.Backoff{Attempts: 5, Initial: 500 * time.Millisecond, Max: 5 * time.Second},
		}, logger), func() {}, nil
	}
}

func newRepository(config models.Config, logger *zap.Logger) (backup.Repository, error) {
	if !config.Database.Enabled {
		logger.Info("データベース無効: スナップショットはメモリに保存します")
		return backup.NewMemoryRepository(), nil
	}
	db, err := database.InitPostgreSQL(config.Database, logger)
	if err != nil {
		return nil, err
	}
	if err := migrations.AutoMigrateDB(db, logger); err != nil {
		return nil, err
	}
	return backup.NewGormRepository(db, logger), nil
}

// uiCommand は運営者画面からWebSocketで届く操作
func uiCommand(ctl *session.Controller) func(websocket.Command) error {
	return func(cmd websocket.Command) error {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return ctl.HandleCommand(ctx, cmd.Type, cmd.Payload)
	}
}

func serve(ctx context.Context, config models.Config, logger *zap.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}

	repo, err := newRepository(config, logger)
	if err != nil {
		logger.Error("PostgreSQLの初期化に失敗しました", zap.Error(err))
		return err
	}
	adapter, closeAdapter, err := newAdapter(config, logger)
	if err != nil {
		logger.Error("トランスポートの初期化に失敗しました", zap.Error(err))
		return err
	}
	defer closeAdapter()

	hub := websocket.NewHub(logger)
	defer hub.Close()

	ctl := session.New(session.Config{
		Game:             config.Game,
		Interface:        config.Interface,
		SnapshotSchedule: config.Snapshot.Schedule,
	}, adapter, repo, hub, logger)
	hub.OnCommand(uiCommand(ctl))

	if err := ctl.Start(ctx); err != nil {
		ctl.FatalCommunication(err)
		return err
	}

	switch {
	case serveBackupID > 0:
		if _, err := ctl.LoadBackup(ctx, serveBackupID); err != nil {
			logger.Error("スナップショットの復元に失敗しました", zap.Uint("backup_id", serveBackupID), zap.Error(err))
		}
	case serveStart:
		if _, err := ctl.StartNewSession(ctx, nil); err != nil {
			logger.Error("セッションの開始に失敗しました", zap.Error(err))
		}
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), utils.RequestLogger(logger))
	//CORS（Cross-Origin Resource Sharing）ポリシーを設定
	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowOrigins(config),
		AllowMethods:     []string{"GET", "POST"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	screens.Register(router, ctl, hub, config.Operator, logger)

	operator := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", config.Network.Host, config.Network.OperatorPort),
		Handler: router,
	}
	go func() {
		if err := operator.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			ctl.FatalCommunication(err)
		}
	}()
	logger.Info("server started",
		zap.String("transport", adapter.Name()),
		zap.String("operator_addr", operator.Addr))

	signals := make(chan os.Signal, 2)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)

	done := make(chan error, 1)
	go func() { done <- ctl.Wait() }()

	select {
	case err := <-done:
		return err
	case sig := <-signals:
		logger.Info("shutting down after the current turn", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-signals:
			// 2回目のシグナルで即時停止
			ctl.ForceStop()
			cancel()
		case <-shutdownCtx.Done():
		}
	}()

	if err := ctl.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn("shutdown incomplete", zap.Error(err))
	}
	if _, err := ctl.SaveSnapshot(context.Background()); err != nil && !errors.Is(err, session.ErrNoSession) {
		logger.Warn("final snapshot failed", zap.Error(err))
	}

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	_ = operator.Shutdown(httpCtx)
	return <-done
}

func allowOrigins(config models.Config) []string {
	if len(config.Network.AllowOrigins) > 0 {
		return config.Network.AllowOrigins
	}
	return []string{fmt.Sprintf("http://%s:%d", config.Network.Host, config.Network.OperatorPort)}
}
