package session

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"hotelling/hotelling/backup"
	"hotelling/models"
)

// requestSnapshot schedules a save. It never blocks: a pending request
// already covers the newest state.
func (c *Controller) requestSnapshot() {
	select {
	case c.snapshots <- struct{}{}:
	default:
	}
}

func (c *Controller) snapshotLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.snapshots:
			if _, err := c.SaveSnapshot(ctx); err != nil && !errors.Is(err, ErrNoSession) {
				c.logger.Error("snapshot after turn failed", zap.Error(err))
			}
		}
	}
}

func (c *Controller) scheduledSnapshot() error {
	_, err := c.SaveSnapshot(context.Background())
	if errors.Is(err, ErrNoSession) {
		return nil
	}
	return err
}

// SaveSnapshot persists the current session state.
func (c *Controller) SaveSnapshot(ctx context.Context) (backup.Summary, error) {
	run := c.session()
	if run == nil {
		return backup.Summary{}, ErrNoSession
	}
	snap := run.router.Snapshot()
	sum, err := c.repo.Save(ctx, run.id, snap)
	if err != nil {
		return backup.Summary{}, err
	}
	c.publish(models.EventSnapshotSaved, map[string]interface{}{
		"id":         sum.ID,
		"session_id": run.id,
		"turn":       sum.Turn,
	})
	return sum, nil
}

// CurrentSnapshot returns the live state without persisting it.
func (c *Controller) CurrentSnapshot() (models.SessionSnapshot, error) {
	run := c.session()
	if run == nil {
		return models.SessionSnapshot{}, ErrNoSession
	}
	return run.router.Snapshot(), nil
}

// LoadBackup restores the stored snapshot with the given id.
func (c *Controller) LoadBackup(ctx context.Context, id uint) (string, error) {
	snap, err := c.repo.Load(ctx, id)
	if err != nil {
		return "", err
	}
	return c.LoadSession(ctx, snap)
}

func (c *Controller) Backups(ctx context.Context, limit int) ([]backup.Summary, error) {
	return c.repo.List(ctx, limit)
}
