// Package session owns one running game and the goroutines around it:
// transport workers, lifecycle commands, side-channel operations,
// snapshots and bot pacing. Each concern has its own channel.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"hotelling/hotelling/apperr"
	"hotelling/hotelling/backup"
	"hotelling/hotelling/router"
	"hotelling/hotelling/transport"
	"hotelling/models"
	"hotelling/utils"
)

// ErrNoSession is returned when an operation needs a running session.
var ErrNoSession = errors.New("no session is running")

// Publisher receives one-way notifications for the operator UI.
type Publisher interface {
	Publish(ev models.Event)
}

type Config struct {
	Game             models.GameConfig
	Interface        models.InterfaceConfig
	SnapshotSchedule string
	BotInterval      time.Duration
}

// running is one game: its router plus the signal that it ended.
type running struct {
	id        string
	router    *router.Router
	ended     chan struct{}
	endedOnce sync.Once
}

func (r *running) markEnded() {
	r.endedOnce.Do(func() { close(r.ended) })
}

// op is a unit of work sent to a concern's channel.
type op struct {
	run  func(ctx context.Context) error
	done chan error
}

type Controller struct {
	cfg     Config
	adapter transport.Adapter
	sideCh  transport.SideChannel
	repo    backup.Repository
	events  Publisher
	logger  *zap.Logger

	lifecycle chan op
	sideOps   chan op
	snapshots chan struct{}

	mu      sync.RWMutex
	current *running

	group  *errgroup.Group
	cancel context.CancelFunc
	cron   *cron.Cron
}

func New(cfg Config, adapter transport.Adapter, repo backup.Repository, events Publisher, logger *zap.Logger) *Controller {
	side, ok := adapter.(transport.SideChannel)
	if !ok {
		side = transport.Unsupported{}
	}
	if cfg.BotInterval <= 0 {
		cfg.BotInterval = 500 * time.Millisecond
	}
	return &Controller{
		cfg:       cfg,
		adapter:   adapter,
		sideCh:    side,
		repo:      repo,
		events:    events,
		logger:    logger.With(zap.String("component", "controller")),
		lifecycle: make(chan op),
		sideOps:   make(chan op, 16),
		snapshots: make(chan struct{}, 1),
	}
}

// Start activates the transport and launches the controller goroutines.
func (c *Controller) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	if err := c.adapter.Start(ctx); err != nil {
		cancel()
		return err
	}
	c.cancel = cancel

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < c.adapter.Workers(); i++ {
		g.Go(func() error { return c.worker(gctx) })
	}
	g.Go(func() error { return c.serve(gctx, c.lifecycle) })
	g.Go(func() error { return c.serve(gctx, c.sideOps) })
	g.Go(func() error { return c.snapshotLoop(gctx) })
	g.Go(func() error { return c.botLoop(gctx) })
	if in, ok := c.adapter.(transport.Inbound); ok {
		g.Go(func() error { return c.forwardInbound(gctx, in) })
	}
	c.group = g

	if c.cfg.SnapshotSchedule != "" {
		cr, err := utils.CronSnapshotter(c.cfg.SnapshotSchedule, c.scheduledSnapshot, c.logger)
		if err != nil {
			cancel()
			return err
		}
		c.cron = cr
	}

	c.logger.Info("controller started",
		zap.String("transport", c.adapter.Name()),
		zap.Int("workers", c.adapter.Workers()))
	return nil
}

// Wait blocks until every controller goroutine has returned.
func (c *Controller) Wait() error {
	if c.group == nil {
		return nil
	}
	return c.group.Wait()
}

func (c *Controller) worker(ctx context.Context) error {
	for {
		req, err := c.adapter.Receive(ctx)
		if err != nil {
			if errors.Is(err, transport.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			c.logger.Warn("receive failed", zap.Error(err))
			continue
		}

		reply := c.handle(req)
		if err := c.adapter.Send(ctx, reply); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.publish(models.EventTransportFailure, map[string]interface{}{
				"request": req.Body,
				"error":   err.Error(),
			})
		}
	}
}

func (c *Controller) handle(req transport.RawRequest) transport.Reply {
	run := c.session()
	if run == nil {
		return transport.Reply{
			RequestID: req.ID,
			Slot:      router.NoSlot,
			Client:    req.Source,
			Body:      protocolNotReady(),
		}
	}

	r := run.router.Handle(req.Body)
	if apperr.IsCode(r.Err, apperr.CodeAgentsNotConnected) {
		c.publish(models.EventAgentsNotConnected, map[string]interface{}{"detail": r.Err.Error()})
	}
	client := r.Client
	if client == "" {
		client = req.Source
	}
	return transport.Reply{RequestID: req.ID, Slot: r.Slot, Client: client, Body: r.Body}
}

// serve runs ops from one concern's channel in order.
func (c *Controller) serve(ctx context.Context, ch chan op) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case o := <-ch:
			o.done <- o.run(ctx)
		}
	}
}

func (c *Controller) submit(ctx context.Context, ch chan op, fn func(ctx context.Context) error) error {
	o := op{run: fn, done: make(chan error, 1)}
	select {
	case ch <- o:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-o.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) botLoop(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.BotInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if run := c.session(); run != nil {
				if err := run.router.Settle(); err != nil {
					c.logger.Error("bot settle failed", zap.Error(err))
				}
			}
		}
	}
}

func (c *Controller) forwardInbound(ctx context.Context, in transport.Inbound) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case m := <-in.Chat():
			c.publish(models.EventChatMessage, map[string]interface{}{"user": m.User, "text": m.Text})
		case names := <-in.Presence():
			c.publish(models.EventWaitingList, map[string]interface{}{"names": names})
		}
	}
}

// Shutdown ends the session at the next turn boundary, drains the
// transport and stops every goroutine.
func (c *Controller) Shutdown(ctx context.Context) error {
	if c.session() != nil {
		if err := c.Stop(ctx, true); err != nil && !errors.Is(err, ErrNoSession) {
			c.logger.Warn("graceful stop incomplete", zap.Error(err))
		}
	}
	err := c.adapter.Drain(ctx)
	if c.cron != nil {
		c.cron.Stop()
	}
	if c.cancel != nil {
		c.cancel()
	}
	return err
}

// ForceStop halts immediately. In-flight requests are discarded without reply.
func (c *Controller) ForceStop() {
	c.logger.Warn("forced stop")
	if run := c.swapSession(nil); run != nil {
		run.markEnded()
	}
	if c.cron != nil {
		c.cron.Stop()
	}
	if c.cancel != nil {
		c.cancel()
	}
	c.publish(models.EventSessionStopped, map[string]interface{}{"forced": true})
}

// FatalCommunication reports an unrecoverable transport condition. The
// operator decides whether to force a stop.
func (c *Controller) FatalCommunication(err error) {
	c.logger.Error("fatal communication error", zap.Error(err))
	c.publish(models.EventFatalCommunication, map[string]interface{}{"error": err.Error()})
}

func (c *Controller) sideChannel() transport.SideChannel { return c.sideCh }

func (c *Controller) session() *running {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

func (c *Controller) swapSession(run *running) *running {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.current
	c.current = run
	return prev
}

func (c *Controller) publish(kind models.EventKind, payload map[string]interface{}) {
	if c.events == nil {
		return
	}
	c.events.Publish(models.Event{Kind: kind, Payload: payload, Timestamp: time.Now()})
}
