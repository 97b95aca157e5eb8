package relay

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"hotelling/hotelling/apperr"
	"hotelling/hotelling/transport"
	"hotelling/models"
)

// Tables that EraseTables accepts.
var tables = map[string]bool{
	"request":         true,
	"response":        true,
	"waiting_list":    true,
	"participants":    true,
	"messages":        true,
	"missing_players": true,
}

type participant struct {
	Slot  int         `json:"slot"`
	Role  models.Role `json:"role"`
	IsBot bool        `json:"is_bot"`
}

func (a *Adapter) SendMessage(ctx context.Context, user, text string) error {
	b, err := json.Marshal(models.ChatMessage{User: "server", Text: text})
	if err != nil {
		return err
	}
	return transport.Retry(ctx, a.cfg.Retry, a.logger, "send message", func(ctx context.Context) error {
		return a.rdb.RPush(ctx, a.key("messages:out:"+user), b).Err()
	})
}

// EraseTables deletes the named tables. Unknown names are rejected before
// anything is deleted.
func (a *Adapter) EraseTables(ctx context.Context, names ...string) error {
	for _, n := range names {
		if !tables[n] {
			return apperr.New(apperr.CodeInvalidArgument, "unknown table %q", n)
		}
	}
	for _, n := range names {
		keys := []string{a.key(n)}
		if n == "messages" {
			var found []string
			err := transport.Retry(ctx, a.cfg.Retry, a.logger, "list message keys", func(ctx context.Context) error {
				var err error
				found, err = a.rdb.Keys(ctx, a.key("messages:*")).Result()
				return err
			})
			if err != nil {
				return err
			}
			keys = found
		}
		if len(keys) == 0 {
			continue
		}
		if err := transport.Retry(ctx, a.cfg.Retry, a.logger, "erase "+n, func(ctx context.Context) error {
			return a.rdb.Del(ctx, keys...).Err()
		}); err != nil {
			return err
		}
		a.logger.Info("table erased", zap.String("table", n))
	}
	return nil
}

func (a *Adapter) WaitingList(ctx context.Context) ([]string, error) {
	var names []string
	err := transport.Retry(ctx, a.cfg.Retry, a.logger, "read waiting list", func(ctx context.Context) error {
		var err error
		names, err = a.rdb.SMembers(ctx, a.key("waiting_list")).Result()
		return err
	})
	return sorted(names), err
}

// AuthorizeParticipants replaces the participants table in one transaction.
func (a *Adapter) AuthorizeParticipants(ctx context.Context, ps []models.Assignment) error {
	values := make([]interface{}, 0, 2*len(ps))
	for _, p := range ps {
		if p.Name == "" {
			continue
		}
		b, err := json.Marshal(participant{Slot: p.SlotID, Role: p.Role, IsBot: p.IsBot})
		if err != nil {
			return err
		}
		values = append(values, p.Name, b)
	}
	return transport.Retry(ctx, a.cfg.Retry, a.logger, "authorize participants", func(ctx context.Context) error {
		pipe := a.rdb.TxPipeline()
		pipe.Del(ctx, a.key("participants"))
		if len(values) > 0 {
			pipe.HSet(ctx, a.key("participants"), values...)
		}
		_, err := pipe.Exec(ctx)
		return err
	})
}

func (a *Adapter) SetMissingPlayers(ctx context.Context, n int) error {
	if n < 0 {
		return apperr.New(apperr.CodeInvalidArgument, "missing players cannot be negative")
	}
	return transport.Retry(ctx, a.cfg.Retry, a.logger, "set missing players", func(ctx context.Context) error {
		return a.rdb.Set(ctx, a.key("missing_players"), n, 0).Err()
	})
}
