package session

import (
	"context"

	"hotelling/models"
)

// side runs fn on the side-operation channel and reports the outcome.
func (c *Controller) side(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	err := c.submit(ctx, c.sideOps, fn)
	if err != nil {
		c.publish(models.EventTransportFailure, map[string]interface{}{
			"operation": name,
			"error":     err.Error(),
		})
		return err
	}
	c.publish(models.EventSideOperationApplied, map[string]interface{}{"operation": name})
	return nil
}

func (c *Controller) SendMessage(ctx context.Context, user, text string) error {
	return c.side(ctx, "send_message", func(ctx context.Context) error {
		return c.sideChannel().SendMessage(ctx, user, text)
	})
}

func (c *Controller) EraseTables(ctx context.Context, tables ...string) error {
	return c.side(ctx, "erase_tables", func(ctx context.Context) error {
		return c.sideChannel().EraseTables(ctx, tables...)
	})
}

func (c *Controller) WaitingList(ctx context.Context) ([]string, error) {
	var names []string
	err := c.side(ctx, "waiting_list", func(ctx context.Context) error {
		var err error
		names, err = c.sideChannel().WaitingList(ctx)
		return err
	})
	if err == nil {
		c.publish(models.EventWaitingList, map[string]interface{}{"names": names})
	}
	return names, err
}

func (c *Controller) AuthorizeParticipants(ctx context.Context, ps []models.Assignment) error {
	return c.side(ctx, "authorize_participants", func(ctx context.Context) error {
		return c.sideChannel().AuthorizeParticipants(ctx, ps)
	})
}

func (c *Controller) SetMissingPlayers(ctx context.Context, n int) error {
	return c.side(ctx, "set_missing_players", func(ctx context.Context) error {
		return c.sideChannel().SetMissingPlayers(ctx, n)
	})
}
