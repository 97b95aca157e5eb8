package screens

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"hotelling/hotelling/apperr"
	"hotelling/hotelling/backup"
	"hotelling/hotelling/session"
	"hotelling/hotelling/transport"
	"hotelling/models"
)

// Controller は運営者画面から操作するセッション制御です。
type Controller interface {
	Status() session.Status
	StartNewSession(ctx context.Context, assignments []models.Assignment) (string, error)
	LoadSession(ctx context.Context, snap models.SessionSnapshot) (string, error)
	LoadBackup(ctx context.Context, id uint) (string, error)
	Stop(ctx context.Context, graceful bool) error
	SaveSnapshot(ctx context.Context) (backup.Summary, error)
	CurrentSnapshot() (models.SessionSnapshot, error)
	Backups(ctx context.Context, limit int) ([]backup.Summary, error)

	SendMessage(ctx context.Context, user, text string) error
	EraseTables(ctx context.Context, tables ...string) error
	WaitingList(ctx context.Context) ([]string, error)
	AuthorizeParticipants(ctx context.Context, participants []models.Assignment) error
	SetMissingPlayers(ctx context.Context, n int) error
}

// respondError はエラーの種類に応じたステータスで返します。
func respondError(c *gin.Context, logger *zap.Logger, op string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, session.ErrNoSession):
		status = http.StatusConflict
	case errors.Is(err, transport.ErrUnsupported):
		status = http.StatusNotImplemented
	case errors.Is(err, backup.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	switch apperr.CodeOf(err) {
	case apperr.CodeInvalidArgument, apperr.CodeUnknownSlot, apperr.CodeDuplicateClient:
		status = http.StatusBadRequest
	case apperr.CodeTransportFailure:
		status = http.StatusBadGateway
	}

	if status >= http.StatusInternalServerError {
		logger.Error(op+" failed", zap.Error(err))
	} else {
		logger.Warn(op+" rejected", zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
