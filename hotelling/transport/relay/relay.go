// Package relay runs the wire protocol through a shared Redis instance.
// Clients never talk to the server directly: they push requests onto a
// list and read replies from a hash, and the adapter polls on a fixed
// interval.
//
// Key layout under the configured prefix:
//
//	<p>:request            list of {"client","body"} JSON, oldest first
//	<p>:response           hash, field = slot id (or client id before init)
//	<p>:waiting_list       set of participant names that showed up
//	<p>:participants       hash, name -> {"slot","role","is_bot"}
//	<p>:messages:in        list of chat messages to the operator
//	<p>:messages:out:<u>   list of chat messages to participant u
//	<p>:missing_players    integer
package relay

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"hotelling/hotelling/transport"
	"hotelling/models"
)

type Config struct {
	Prefix       string
	PollInterval time.Duration
	BatchSize    int64
	Retry        transport.Backoff
}

type wireRequest struct {
	Client string `json:"client"`
	Body   string `json:"body"`
}

type Adapter struct {
	cfg    Config
	rdb    *redis.Client
	logger *zap.Logger

	requests chan transport.RawRequest
	acks     chan error
	chat     chan models.ChatMessage
	presence chan []string

	stopOnce sync.Once
	stopping chan struct{}
	done     chan struct{}
}

var (
	_ transport.Adapter     = (*Adapter)(nil)
	_ transport.SideChannel = (*Adapter)(nil)
	_ transport.Inbound     = (*Adapter)(nil)
)

func New(rdb *redis.Client, cfg Config, logger *zap.Logger) *Adapter {
	if cfg.Prefix == "" {
		cfg.Prefix = "hotelling"
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Adapter{
		cfg:      cfg,
		rdb:      rdb,
		logger:   logger.With(zap.String("component", "relay")),
		requests: make(chan transport.RawRequest),
		acks:     make(chan error, 1),
		chat:     make(chan models.ChatMessage, 64),
		presence: make(chan []string, 1),
		stopping: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (a *Adapter) Name() string { return "relay" }

// Workers is always one: the drain loop feeds requests in receipt order.
func (a *Adapter) Workers() int { return 1 }

func (a *Adapter) key(name string) string { return a.cfg.Prefix + ":" + name }

// Start checks the connection and launches the poll loop. Cancelling ctx
// stops the loop immediately, leaving unprocessed requests in Redis.
func (a *Adapter) Start(ctx context.Context) error {
	err := transport.Retry(ctx, a.cfg.Retry, a.logger, "ping", func(ctx context.Context) error {
		return a.rdb.Ping(ctx).Err()
	})
	if err != nil {
		return err
	}
	go a.run(ctx)
	a.logger.Info("relay transport polling",
		zap.String("prefix", a.cfg.Prefix),
		zap.Duration("interval", a.cfg.PollInterval))
	return nil
}

func (a *Adapter) run(ctx context.Context) {
	defer close(a.done)
	ticker := time.NewTicker(a.cfg.PollInterval)
	defer ticker.Stop()

	var lastPresence []string
	for {
		if err := a.pollRequests(ctx); err != nil {
			a.logger.Warn("request poll incomplete", zap.Error(err))
		}
		lastPresence = a.pollPresence(ctx, lastPresence)
		a.pollChat(ctx)

		select {
		case <-ctx.Done():
			return
		case <-a.stopping:
			return
		case <-ticker.C:
		}
	}
}

// pollRequests feeds one batch through the controller. The batch is trimmed
// only up to the last request whose reply was written, so a crash replays
// requests instead of losing them.
func (a *Adapter) pollRequests(ctx context.Context) error {
	var items []string
	err := transport.Retry(ctx, a.cfg.Retry, a.logger, "read requests", func(ctx context.Context) error {
		var err error
		items, err = a.rdb.LRange(ctx, a.key("request"), 0, a.cfg.BatchSize-1).Result()
		return err
	})
	if err != nil || len(items) == 0 {
		return err
	}

	handled := 0
	defer func() {
		if handled == 0 {
			return
		}
		// 強制停止でctxが切れていても処理済み分は削除する
		trimCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := transport.Retry(trimCtx, a.cfg.Retry, a.logger, "trim requests", func(ctx context.Context) error {
			return a.rdb.LTrim(ctx, a.key("request"), int64(handled), -1).Err()
		}); err != nil {
			a.logger.Error("failed to trim handled requests", zap.Int("handled", handled), zap.Error(err))
		}
	}()

	for _, item := range items {
		var w wireRequest
		if err := json.Unmarshal([]byte(item), &w); err != nil {
			a.logger.Warn("discarding malformed relay request", zap.String("item", item), zap.Error(err))
			handled++
			continue
		}

		req := transport.RawRequest{
			ID:         uuid.NewString(),
			Body:       w.Body,
			Source:     w.Client,
			ReceivedAt: time.Now(),
		}
		select {
		case a.requests <- req:
		case <-ctx.Done():
			return ctx.Err()
		}
		select {
		case err := <-a.acks:
			if err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
		handled++
	}
	return nil
}

func (a *Adapter) pollPresence(ctx context.Context, last []string) []string {
	names, err := a.WaitingList(ctx)
	if err != nil {
		return last
	}
	if equal(names, last) {
		return last
	}
	select {
	case <-a.presence:
	default:
	}
	a.presence <- names
	return names
}

func (a *Adapter) pollChat(ctx context.Context) {
	for i := int64(0); i < a.cfg.BatchSize; i++ {
		raw, err := a.rdb.LPop(ctx, a.key("messages:in")).Result()
		if err == redis.Nil {
			return
		}
		if err != nil {
			a.logger.Warn("chat poll failed", zap.Error(err))
			return
		}
		var m models.ChatMessage
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			a.logger.Warn("discarding malformed chat message", zap.String("raw", raw))
			continue
		}
		select {
		case a.chat <- m:
		default:
			a.logger.Warn("chat buffer full, dropping message", zap.String("user", m.User))
		}
	}
}

func (a *Adapter) Receive(ctx context.Context) (transport.RawRequest, error) {
	select {
	case req := <-a.requests:
		return req, nil
	case <-ctx.Done():
		return transport.RawRequest{}, ctx.Err()
	case <-a.done:
		return transport.RawRequest{}, transport.ErrClosed
	}
}

// Send writes the reply into the response hash and releases the drain loop.
func (a *Adapter) Send(ctx context.Context, r transport.Reply) error {
	field := r.Client
	if r.Slot >= 0 {
		field = strconv.Itoa(r.Slot)
	}
	var err error
	if field == "" {
		a.logger.Warn("reply has no addressee, dropping", zap.String("body", r.Body))
	} else {
		err = transport.Retry(ctx, a.cfg.Retry, a.logger, "write response", func(ctx context.Context) error {
			return a.rdb.HSet(ctx, a.key("response"), field, r.Body).Err()
		})
	}
	select {
	case a.acks <- err:
	default:
	}
	return err
}

// Drain lets the current batch finish, then stops polling.
func (a *Adapter) Drain(ctx context.Context) error {
	a.stopOnce.Do(func() { close(a.stopping) })
	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Adapter) Chat() <-chan models.ChatMessage { return a.chat }
func (a *Adapter) Presence() <-chan []string      { return a.presence }

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func sorted(in []string) []string {
	sort.Strings(in)
	return in
}
