// Package router parses wire requests, validates them against the turn
// state and dispatches them to handlers.
//
// Every handler runs inside one session-wide critical section. Handlers
// check all preconditions before the first write, so a failed request
// leaves the store untouched.
package router

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"hotelling/hotelling/apperr"
	"hotelling/hotelling/identity"
	"hotelling/hotelling/protocol"
	"hotelling/hotelling/store"
	"hotelling/hotelling/turn"
	"hotelling/models"
)

// NoSlot marks a reply whose requester slot is not known.
const NoSlot = -1

// Params are the game parameters the handlers validate against.
type Params struct {
	NPositions         int
	NPrices            int
	ExplorationCost    int
	UtilityConsumption int
}

// Reply is what a handler produced for one request.
type Reply struct {
	Slot   int    // NoSlot before identity is known
	Client string // set for init requests
	Body   string
	Err    error
}

type handlerFunc func(req protocol.Request) (Reply, error)

type handler struct {
	minArgs, maxArgs int
	fn               handlerFunc
}

type Option func(*Router)

// WithBots replaces the default bot policy.
func WithBots(p BotPolicy) Option {
	return func(r *Router) { r.bots = p }
}

// WithClock replaces time.Now for last-request timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Router) { r.now = now }
}

// OnConnect registers fn to run when a client's init succeeds.
func OnConnect(fn func(client string, slot int, role models.Role)) Option {
	return func(r *Router) { r.onConnect = fn }
}

type Router struct {
	mu       sync.Mutex
	store    *store.Store
	machine  *turn.Machine
	ids      *identity.Registry
	params   Params
	bots     BotPolicy
	now      func() time.Time
	logger   *zap.Logger
	handlers map[protocol.Command]handler

	onConnect func(string, int, models.Role)
}

func New(st *store.Store, m *turn.Machine, ids *identity.Registry, p Params, logger *zap.Logger, opts ...Option) *Router {
	r := &Router{
		store:   st,
		machine: m,
		ids:     ids,
		params:  p,
		bots:    DefaultBots{Radius: 1},
		now:     time.Now,
		logger:  logger.With(zap.String("component", "router")),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.handlers = map[protocol.Command]handler{
		protocol.CmdInit:                {1, 2, r.handleInit},
		protocol.CmdFirmChoice:          {4, 4, r.handleFirmChoice},
		protocol.CmdCustomerChoice:      {4, 4, r.handleCustomerChoice},
		protocol.CmdFirmClientCount:     {2, 2, r.handleFirmClientCount},
		protocol.CmdAdminInit:           {0, 0, r.handleAdminInit},
		protocol.CmdFirmOpponentChoice:  {2, 2, r.handleFirmOpponentChoice},
		protocol.CmdCustomerFirmChoices: {2, 2, r.handleCustomerFirmChoices},
	}
	return r
}

// Handle runs one raw request through parse, validation and dispatch.
// It never returns an error: failures become diagnostic replies.
func (r *Router) Handle(raw string) Reply {
	req, err := protocol.Parse(raw)
	if err != nil {
		return r.fail(raw, NoSlot, "", err)
	}

	h, ok := r.handlers[req.Command]
	if !ok {
		return r.fail(raw, NoSlot, "", apperr.New(apperr.CodeUnknownCommand, "no handler for %q", req.Command))
	}
	slot, client := requester(req)
	if n := len(req.Args); n < h.minArgs || n > h.maxArgs {
		return r.fail(raw, slot, client, apperr.New(apperr.CodeInvalidArgument,
			"%s takes %d to %d arguments, got %d", req.Command, h.minArgs, h.maxArgs, n))
	}

	r.mu.Lock()
	reply, err := h.fn(req)
	r.mu.Unlock()
	if err != nil {
		return r.fail(raw, slot, client, err)
	}

	r.logger.Debug("request handled",
		zap.String("request", raw),
		zap.Int("slot", reply.Slot),
		zap.String("reply", reply.Body))
	return reply
}

func (r *Router) fail(raw string, slot int, client string, err error) Reply {
	r.logger.Info("request rejected",
		zap.String("request", raw),
		zap.String("code", string(apperr.CodeOf(err))),
		zap.Error(err))
	return Reply{Slot: slot, Client: client, Body: protocol.FormatError(err), Err: err}
}

// requester guesses the reply target from the arguments before validation,
// so diagnostics can still be routed back.
func requester(req protocol.Request) (int, string) {
	if req.Command == protocol.CmdInit {
		if len(req.Args) > 0 {
			return NoSlot, req.Args[0].Raw
		}
		return NoSlot, ""
	}
	if len(req.Args) > 0 && req.Args[0].IsInt {
		return req.Args[0].Int, ""
	}
	return NoSlot, ""
}

// Settle lets bots act until nothing moves. The controller calls it on a
// ticker so sessions where only bots remain keep progressing.
func (r *Router) Settle() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.settle()
}

const maxSettleSteps = 64

// settle alternates machine transitions with bot moves. It stops at a turn
// boundary so one request never plays more than the rest of its turn.
func (r *Router) settle() error {
	start := r.machine.Turn()
	for i := 0; i < maxSettleSteps; i++ {
		moved, err := r.machine.Advance()
		if err != nil {
			return err
		}
		if r.machine.Turn() != start || r.machine.Ended() {
			return nil
		}
		acted := r.playBots()
		if !moved && !acted {
			return nil
		}
	}
	r.logger.Warn("settle did not converge", zap.Int("turn", start))
	return nil
}

// Snapshot captures the full session state under the critical section.
func (r *Router) Snapshot() models.SessionSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	roles, history, current := r.store.Export()
	return models.SessionSnapshot{
		History:          history,
		CurrentState:     current,
		IdentityMappings: r.ids.Mappings(),
		RoleAssignments:  roles,
		TurnCounter:      r.machine.Turn(),
		Phase:            r.machine.Phase(),
		ContinueFlag:     r.machine.Continuing(),
	}
}

// StopAfterTurn asks the machine to end the session at the next turn boundary.
func (r *Router) StopAfterTurn() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.machine.StopAfterTurn()
	_ = r.settle()
}

// Status is a lock-free view for dashboards; it may be slightly stale.
type Status struct {
	Turn      int                          `json:"turn"`
	Phase     models.Phase                 `json:"phase"`
	Ended     bool                         `json:"ended"`
	Firms     map[int]models.FirmState     `json:"firms"`
	Customers map[int]models.CustomerState `json:"customers"`
	Clients   map[string]int               `json:"clients"`
}

func (r *Router) Status() Status {
	cur := r.store.Current()
	return Status{
		Turn:      r.machine.Turn(),
		Phase:     r.machine.Phase(),
		Ended:     r.machine.Ended(),
		Firms:     cur.Firms,
		Customers: cur.Customers,
		Clients:   r.ids.Mappings(),
	}
}
