package screens

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"hotelling/models"
)

const sideTimeout = 10 * time.Second

type chatRequest struct {
	Text string `json:"text" binding:"required"`
}

type authorizeRequest struct {
	Participants []models.Assignment `json:"participants"`
}

type eraseRequest struct {
	Tables []string `json:"tables" binding:"required"`
}

type missingPlayersRequest struct {
	Count *int `json:"count" binding:"required"`
}

func contextWithTimeout(c *gin.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), d)
}

func ChatHandler(c *gin.Context, ctl Controller, logger *zap.Logger) {
	var request chatRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text is required"})
		return
	}
	ctx, cancel := contextWithTimeout(c, sideTimeout)
	defer cancel()
	if err := ctl.SendMessage(ctx, "server", request.Text); err != nil {
		respondError(c, logger, "send message", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sent": true})
}

func WaitingListHandler(c *gin.Context, ctl Controller, logger *zap.Logger) {
	ctx, cancel := contextWithTimeout(c, sideTimeout)
	defer cancel()
	names, err := ctl.WaitingList(ctx)
	if err != nil {
		respondError(c, logger, "waiting list", err)
		return
	}
	if names == nil {
		names = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"names": names})
}

func AuthorizeParticipantsHandler(c *gin.Context, ctl Controller, logger *zap.Logger) {
	var request authorizeRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Request binding error"})
		return
	}
	ctx, cancel := contextWithTimeout(c, sideTimeout)
	defer cancel()
	if err := ctl.AuthorizeParticipants(ctx, request.Participants); err != nil {
		respondError(c, logger, "authorize participants", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"authorized": len(request.Participants)})
}

func EraseTablesHandler(c *gin.Context, ctl Controller, logger *zap.Logger) {
	var request eraseRequest
	if err := c.ShouldBindJSON(&request); err != nil || len(request.Tables) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tables is required"})
		return
	}
	ctx, cancel := contextWithTimeout(c, sideTimeout)
	defer cancel()
	if err := ctl.EraseTables(ctx, request.Tables...); err != nil {
		respondError(c, logger, "erase tables", err)
		return
	}
	logger.Info("テーブルを削除しました", zap.Strings("tables", request.Tables))
	c.JSON(http.StatusOK, gin.H{"erased": request.Tables})
}

func MissingPlayersHandler(c *gin.Context, ctl Controller, logger *zap.Logger) {
	var request missingPlayersRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "count is required"})
		return
	}
	ctx, cancel := contextWithTimeout(c, sideTimeout)
	defer cancel()
	if err := ctl.SetMissingPlayers(ctx, *request.Count); err != nil {
		respondError(c, logger, "set missing players", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"missing_players": *request.Count})
}
