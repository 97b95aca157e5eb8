package session

import (
	"context"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"hotelling/hotelling/apperr"
	"hotelling/hotelling/identity"
	"hotelling/hotelling/protocol"
	"hotelling/hotelling/router"
	"hotelling/hotelling/store"
	"hotelling/hotelling/transport"
	"hotelling/hotelling/turn"
	"hotelling/models"
)

// Status is what the operator dashboard shows.
type Status struct {
	SessionID string         `json:"session_id,omitempty"`
	Transport string         `json:"transport"`
	Running   bool           `json:"running"`
	Game      *router.Status `json:"game,omitempty"`
}

func (c *Controller) Status() Status {
	st := Status{Transport: c.adapter.Name()}
	if run := c.session(); run != nil {
		gs := run.router.Status()
		st.SessionID = run.id
		st.Running = !gs.Ended
		st.Game = &gs
	}
	return st
}

// StartNewSession replaces any current session with a fresh one. An empty
// assignment list builds the configured number of human slots.
func (c *Controller) StartNewSession(ctx context.Context, assignments []models.Assignment) (string, error) {
	var id string
	err := c.submit(ctx, c.lifecycle, func(context.Context) error {
		if len(assignments) == 0 {
			assignments = c.defaultAssignments()
		}
		run, err := c.build(assignments)
		if err != nil {
			return err
		}
		c.install(run)
		id = run.id
		c.publish(models.EventSessionStarted, map[string]interface{}{
			"session_id": run.id,
			"slots":      len(assignments),
		})
		c.pushAssignments(assignments)
		return nil
	})
	return id, err
}

// LoadSession rebuilds a session from a snapshot, replacing any current one.
func (c *Controller) LoadSession(ctx context.Context, snap models.SessionSnapshot) (string, error) {
	var id string
	err := c.submit(ctx, c.lifecycle, func(context.Context) error {
		run, err := c.restore(snap)
		if err != nil {
			return err
		}
		c.install(run)
		id = run.id
		c.publish(models.EventSessionLoaded, map[string]interface{}{
			"session_id": run.id,
			"turn":       snap.TurnCounter,
			"phase":      string(snap.Phase),
		})
		return nil
	})
	return id, err
}

// Stop ends the current session. A graceful stop lets the running turn
// finish and waits for it outside the lifecycle loop, so a forced stop or a
// new session can still get through; a forced stop drops the session at
// once. The transport stays up for the next session.
func (c *Controller) Stop(ctx context.Context, graceful bool) error {
	pending, err := c.requestStop(ctx, graceful)
	if err != nil || pending == nil {
		return err
	}

	select {
	case <-pending.ended:
		return nil
	case <-ctx.Done():
		// 呼び出し元の待機だけを打ち切る。停止予約は残る
		return ctx.Err()
	}
}

// requestStop returns the session still finishing its turn after a graceful
// request, or nil once a forced stop has dropped it.
func (c *Controller) requestStop(ctx context.Context, graceful bool) (*running, error) {
	var pending *running
	err := c.submit(ctx, c.lifecycle, func(context.Context) error {
		run := c.session()
		if run == nil {
			return ErrNoSession
		}
		if !graceful {
			c.swapSession(nil)
			run.markEnded()
			c.publish(models.EventSessionStopped, map[string]interface{}{
				"session_id": run.id,
				"forced":     true,
			})
			return nil
		}

		c.publish(models.EventSessionStopping, map[string]interface{}{"session_id": run.id})
		run.router.StopAfterTurn()
		pending = run
		return nil
	})
	return pending, err
}

func (c *Controller) install(run *running) {
	if prev := c.swapSession(run); prev != nil {
		prev.markEnded()
		c.logger.Info("previous session replaced", zap.String("session_id", prev.id))
	}
}

func (c *Controller) defaultAssignments() []models.Assignment {
	g := c.cfg.Game
	roles := make([]models.Role, 0, g.NFirms+g.NCustomers)
	for i := 0; i < g.NFirms; i++ {
		roles = append(roles, models.RoleFirm)
	}
	for i := 0; i < g.NCustomers; i++ {
		roles = append(roles, models.RoleCustomer)
	}
	if g.Shuffle {
		rand.Shuffle(len(roles), func(i, j int) { roles[i], roles[j] = roles[j], roles[i] })
	}
	out := make([]models.Assignment, len(roles))
	for i, r := range roles {
		out[i] = models.Assignment{SlotID: i, Role: r}
	}
	return out
}

func (c *Controller) build(assignments []models.Assignment) (*running, error) {
	roles := make([]models.RoleAssignment, len(assignments))
	for i, a := range assignments {
		roles[i] = models.RoleAssignment{SlotID: a.SlotID, Role: a.Role, IsBot: a.IsBot}
	}
	var p store.Params
	copy(p.InitialPositions[:], c.cfg.Game.InitialPositions)
	copy(p.InitialPrices[:], c.cfg.Game.InitialPrices)
	st, err := store.New(roles, p)
	if err != nil {
		return nil, err
	}

	ids := identity.New(roles)
	for _, a := range assignments {
		if a.Name == "" || a.IsBot {
			continue
		}
		if err := ids.Reserve(a.Name, a.SlotID); err != nil {
			return nil, err
		}
	}
	return c.assemble(uuid.NewString(), st, ids, nil)
}

func (c *Controller) restore(snap models.SessionSnapshot) (*running, error) {
	if len(snap.History) != snap.TurnCounter {
		return nil, apperr.New(apperr.CodeInvalidArgument,
			"snapshot history has %d turns but counter is %d", len(snap.History), snap.TurnCounter)
	}
	st, err := store.Restore(snap.RoleAssignments, snap.History, snap.CurrentState)
	if err != nil {
		return nil, err
	}
	ids := identity.New(snap.RoleAssignments)
	if err := ids.Restore(snap.IdentityMappings); err != nil {
		return nil, err
	}
	return c.assemble(uuid.NewString(), st, ids, &snap)
}

// assemble wires machine callbacks and the router around a store.
func (c *Controller) assemble(id string, st *store.Store, ids *identity.Registry, snap *models.SessionSnapshot) (*running, error) {
	run := &running{id: id, ended: make(chan struct{})}
	logger := c.logger.With(zap.String("session_id", id))

	m := turn.New(st,
		turn.OnTurnEnd(func(completed int) {
			logger.Info("turn ended", zap.Int("turn", completed))
			c.publish(models.EventTurnEnded, map[string]interface{}{
				"session_id": id,
				"turn":       completed,
			})
			c.requestSnapshot()
		}),
		turn.OnTerminate(func(lastTurn int) {
			logger.Info("session terminated", zap.Int("last_turn", lastTurn))
			run.markEnded()
			c.publish(models.EventSessionStopped, map[string]interface{}{
				"session_id": id,
				"last_turn":  lastTurn,
			})
		}),
	)
	if snap != nil {
		if err := m.Restore(snap.TurnCounter, snap.Phase, snap.ContinueFlag); err != nil {
			return nil, apperr.Wrap(apperr.CodeInvalidArgument, "restore turn state", err)
		}
		if m.Ended() {
			run.markEnded()
		}
	}

	run.router = router.New(st, m, ids,
		router.Params{
			NPositions:         c.cfg.Game.NPositions,
			NPrices:            c.cfg.Game.NPrices,
			ExplorationCost:    c.cfg.Interface.ExplorationCost,
			UtilityConsumption: c.cfg.Interface.UtilityConsumption,
		},
		logger,
		router.WithBots(router.DefaultBots{Radius: c.cfg.Game.BotRadius}),
		router.OnConnect(func(client string, slot int, role models.Role) {
			c.publish(models.EventClientConnected, map[string]interface{}{
				"client": client,
				"slot":   slot,
				"role":   string(role),
			})
		}),
	)
	return run, nil
}

// pushAssignments hands participant data to the side channel without
// holding up the lifecycle loop.
func (c *Controller) pushAssignments(assignments []models.Assignment) {
	if _, ok := c.sideCh.(transport.Unsupported); ok {
		return
	}
	named := make([]models.Assignment, 0, len(assignments))
	missing := 0
	for _, a := range assignments {
		if a.IsBot {
			continue
		}
		if a.Name == "" {
			missing++
			continue
		}
		named = append(named, a)
	}
	sort.Slice(named, func(i, j int) bool { return named[i].SlotID < named[j].SlotID })

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.AuthorizeParticipants(ctx, named); err != nil {
			c.logger.Debug("participants not pushed", zap.Error(err))
		}
		if err := c.SetMissingPlayers(ctx, missing); err != nil {
			c.logger.Debug("missing players not pushed", zap.Error(err))
		}
	}()
}

func protocolNotReady() string {
	return protocol.FormatError(apperr.New(apperr.CodeNotReady, "no session is running"))
}
