package screens

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"hotelling/internal/websocket"
	"hotelling/middlewares"
	"hotelling/models"
)

// Register は運営者APIのルーティングを設定します。ログイン以外はトークン必須。
func Register(router gin.IRouter, ctl Controller, hub *websocket.Hub, cfg models.OperatorConfig, logger *zap.Logger) {
	logger = logger.With(zap.String("component", "operator_api"))

	router.POST("/operator/login", func(c *gin.Context) {
		LoginHandler(c, cfg, logger)
	})

	api := router.Group("/", middlewares.AuthMiddleware(cfg, logger))
	api.GET("/session/status", func(c *gin.Context) {
		StatusHandler(c, ctl)
	})
	api.POST("/session/new", func(c *gin.Context) {
		NewSessionHandler(c, ctl, logger)
	})
	api.POST("/session/load", func(c *gin.Context) {
		LoadSessionHandler(c, ctl, logger)
	})
	api.POST("/session/stop", func(c *gin.Context) {
		StopSessionHandler(c, ctl, logger)
	})
	api.GET("/snapshots", func(c *gin.Context) {
		ListSnapshotsHandler(c, ctl, logger)
	})
	api.POST("/snapshots", func(c *gin.Context) {
		SaveSnapshotHandler(c, ctl, logger)
	})
	api.GET("/snapshots/current", func(c *gin.Context) {
		CurrentSnapshotHandler(c, ctl, logger)
	})
	api.POST("/chat", func(c *gin.Context) {
		ChatHandler(c, ctl, logger)
	})
	api.GET("/waiting-list", func(c *gin.Context) {
		WaitingListHandler(c, ctl, logger)
	})
	api.POST("/participants/authorize", func(c *gin.Context) {
		AuthorizeParticipantsHandler(c, ctl, logger)
	})
	api.POST("/tables/erase", func(c *gin.Context) {
		EraseTablesHandler(c, ctl, logger)
	})
	api.POST("/missing-players", func(c *gin.Context) {
		MissingPlayersHandler(c, ctl, logger)
	})
	api.GET("/ws/events", func(c *gin.Context) {
		if hub == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event stream disabled"})
			return
		}
		hub.ServeWS(c.Writer, c.Request)
	})
}
