package screens

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"hotelling/models"
)

// stopTimeout はターン終了を待つ上限
const stopTimeout = 10 * time.Minute

type newSessionRequest struct {
	Assignments []models.Assignment `json:"assignments"`
}

type loadSessionRequest struct {
	BackupID uint                    `json:"backup_id"`
	Snapshot *models.SessionSnapshot `json:"snapshot"`
}

type stopSessionRequest struct {
	Graceful *bool `json:"graceful"`
}

func StatusHandler(c *gin.Context, ctl Controller) {
	c.JSON(http.StatusOK, ctl.Status())
}

// NewSessionHandler は新しいセッションを開始します。割り当てが空なら設定から作る。
func NewSessionHandler(c *gin.Context, ctl Controller, logger *zap.Logger) {
	var request newSessionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&request); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Request binding error"})
			return
		}
	}

	id, err := ctl.StartNewSession(c.Request.Context(), request.Assignments)
	if err != nil {
		respondError(c, logger, "start session", err)
		return
	}
	logger.Info("セッションを開始しました", zap.String("session_id", id), zap.String("operator", c.GetString("operator")))
	c.JSON(http.StatusCreated, gin.H{"session_id": id})
}

// LoadSessionHandler は保存済みのバックアップ、または送られたスナップショットから復元します。
func LoadSessionHandler(c *gin.Context, ctl Controller, logger *zap.Logger) {
	var request loadSessionRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Request binding error"})
		return
	}

	var (
		id  string
		err error
	)
	switch {
	case request.Snapshot != nil:
		id, err = ctl.LoadSession(c.Request.Context(), *request.Snapshot)
	case request.BackupID > 0:
		id, err = ctl.LoadBackup(c.Request.Context(), request.BackupID)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "backup_id or snapshot is required"})
		return
	}
	if err != nil {
		respondError(c, logger, "load session", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": id})
}

// StopSessionHandler は既定でターン終了を待って停止します。
func StopSessionHandler(c *gin.Context, ctl Controller, logger *zap.Logger) {
	var request stopSessionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&request); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Request binding error"})
			return
		}
	}
	graceful := request.Graceful == nil || *request.Graceful

	ctx, cancel := contextWithTimeout(c, stopTimeout)
	defer cancel()
	if err := ctl.Stop(ctx, graceful); err != nil {
		respondError(c, logger, "stop session", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stopped": true, "graceful": graceful})
}

func ListSnapshotsHandler(c *gin.Context, ctl Controller, logger *zap.Logger) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
		return
	}
	list, err := ctl.Backups(c.Request.Context(), limit)
	if err != nil {
		respondError(c, logger, "list snapshots", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"snapshots": list})
}

func SaveSnapshotHandler(c *gin.Context, ctl Controller, logger *zap.Logger) {
	sum, err := ctl.SaveSnapshot(c.Request.Context())
	if err != nil {
		respondError(c, logger, "save snapshot", err)
		return
	}
	c.JSON(http.StatusCreated, sum)
}

// CurrentSnapshotHandler は保存せずに現在の状態を返します。
func CurrentSnapshotHandler(c *gin.Context, ctl Controller, logger *zap.Logger) {
	snap, err := ctl.CurrentSnapshot()
	if err != nil {
		respondError(c, logger, "current snapshot", err)
		return
	}
	c.JSON(http.StatusOK, snap)
}
