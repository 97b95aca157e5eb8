package session

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"hotelling/hotelling/apperr"
	"hotelling/models"
)

// Dashboard commands accepted over the event socket.
const (
	CommandChat            = "chat"
	CommandSnapshot        = "snapshot"
	CommandWaitingList     = "waiting_list"
	CommandStartNewSession = "startNewSession"
	CommandLoadSession     = "loadSession"
	CommandStopSession     = "stopSession"
)

type chatCommand struct {
	Text string `json:"text"`
}

type startCommand struct {
	Assignments []models.Assignment `json:"assignments"`
}

type loadCommand struct {
	BackupID uint                    `json:"backup_id"`
	Snapshot *models.SessionSnapshot `json:"snapshot"`
}

type stopCommand struct {
	Graceful *bool `json:"graceful"`
}

// HandleCommand runs one dashboard command. A graceful stopSession only
// schedules the stop; dashboards see session_stopped when the turn ends.
func (c *Controller) HandleCommand(ctx context.Context, kind string, payload json.RawMessage) error {
	switch kind {
	case CommandChat:
		var p chatCommand
		if err := decodePayload(payload, &p); err != nil || p.Text == "" {
			return apperr.New(apperr.CodeInvalidArgument, "chat needs a text payload")
		}
		return c.SendMessage(ctx, "server", p.Text)

	case CommandSnapshot:
		_, err := c.SaveSnapshot(ctx)
		return err

	case CommandWaitingList:
		_, err := c.WaitingList(ctx)
		return err

	case CommandStartNewSession:
		var p startCommand
		if err := decodePayload(payload, &p); err != nil {
			return err
		}
		_, err := c.StartNewSession(ctx, p.Assignments)
		return err

	case CommandLoadSession:
		var p loadCommand
		if err := decodePayload(payload, &p); err != nil {
			return err
		}
		switch {
		case p.Snapshot != nil:
			_, err := c.LoadSession(ctx, *p.Snapshot)
			return err
		case p.BackupID > 0:
			_, err := c.LoadBackup(ctx, p.BackupID)
			return err
		default:
			return apperr.New(apperr.CodeInvalidArgument, "backup_id or snapshot is required")
		}

	case CommandStopSession:
		var p stopCommand
		if err := decodePayload(payload, &p); err != nil {
			return err
		}
		_, err := c.requestStop(ctx, p.Graceful == nil || *p.Graceful)
		return err

	default:
		c.logger.Debug("unknown dashboard command", zap.String("type", kind))
		return apperr.New(apperr.CodeUnknownCommand, "unknown command %q", kind)
	}
}

// 空のペイロードは既定値として扱う
func decodePayload(payload json.RawMessage, v interface{}) error {
	if len(payload) == 0 || string(payload) == "null" {
		return nil
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return apperr.Wrap(apperr.CodeInvalidArgument, "malformed payload", err)
	}
	return nil
}
