// Package direct serves the wire protocol over plain HTTP: one request per
// connection, the reply written before the connection closes.
package direct

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"hotelling/hotelling/transport"
	"hotelling/utils"
)

type Config struct {
	Addr         string
	Workers      int
	MaxInFlight  int64
	ReplyTimeout time.Duration
	Listen       transport.Backoff
}

type waiter struct {
	reply chan string
}

type Adapter struct {
	cfg    Config
	logger *zap.Logger
	sem    *semaphore.Weighted
	queue  chan transport.RawRequest
	srv    *http.Server
	ln     net.Listener

	mu       sync.Mutex
	waiting  map[string]*waiter
	lastSeen map[string]time.Time
	draining bool

	stopped  chan struct{}
	stopOnce sync.Once
}

var _ transport.Adapter = (*Adapter)(nil)

func New(cfg Config, logger *zap.Logger) *Adapter {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = int64(cfg.Workers)
	}
	if cfg.ReplyTimeout <= 0 {
		cfg.ReplyTimeout = 5 * time.Second
	}
	return &Adapter{
		cfg:      cfg,
		logger:   logger.With(zap.String("component", "direct")),
		sem:      semaphore.NewWeighted(cfg.MaxInFlight),
		queue:    make(chan transport.RawRequest),
		waiting:  make(map[string]*waiter),
		lastSeen: make(map[string]time.Time),
		stopped:  make(chan struct{}),
	}
}

func (a *Adapter) Name() string { return "direct" }
func (a *Adapter) Workers() int { return a.cfg.Workers }

// Handler builds the gin engine. GET requests use the escaped path so
// percent-encoded arguments reach the parser untouched.
func (a *Adapter) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), utils.RequestLogger(a.logger))

	r.POST("/request", func(c *gin.Context) {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, 4096))
		if err != nil {
			c.String(http.StatusBadRequest, "unreadable body")
			return
		}
		a.serve(c, string(body))
	})
	r.GET("/*request", func(c *gin.Context) {
		a.serve(c, c.Request.URL.EscapedPath())
	})
	return r
}

// Start binds the listener, retrying on failure, then serves in the background.
func (a *Adapter) Start(ctx context.Context) error {
	var ln net.Listener
	err := transport.Retry(ctx, a.cfg.Listen, a.logger, "listen "+a.cfg.Addr, func(context.Context) error {
		var err error
		ln, err = net.Listen("tcp", a.cfg.Addr)
		return err
	})
	if err != nil {
		return err
	}

	a.ln = ln
	a.srv = &http.Server{Handler: a.Handler(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := a.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("direct listener stopped", zap.Error(err))
		}
	}()
	go func() {
		select {
		case <-ctx.Done():
			a.abort()
		case <-a.stopped:
		}
	}()
	a.logger.Info("direct transport listening", zap.String("addr", ln.Addr().String()))
	return nil
}

// abort closes the listener and every open connection without waiting
// for replies.
func (a *Adapter) abort() {
	a.mu.Lock()
	a.draining = true
	a.mu.Unlock()
	if a.srv != nil {
		_ = a.srv.Close()
	}
	a.stopOnce.Do(func() { close(a.stopped) })
	a.logger.Warn("direct transport aborted")
}

// Addr is the bound address, useful when listening on port 0.
func (a *Adapter) Addr() string {
	if a.ln == nil {
		return a.cfg.Addr
	}
	return a.ln.Addr().String()
}

func (a *Adapter) serve(c *gin.Context, body string) {
	ctx := c.Request.Context()
	if err := a.sem.Acquire(ctx, 1); err != nil {
		return
	}
	defer a.sem.Release(1)

	req := transport.RawRequest{
		ID:         uuid.NewString(),
		Body:       body,
		Source:     c.ClientIP(),
		ReceivedAt: time.Now(),
	}
	w := &waiter{reply: make(chan string, 1)}

	a.mu.Lock()
	if a.draining {
		a.mu.Unlock()
		c.String(http.StatusServiceUnavailable, "server is shutting down")
		return
	}
	a.waiting[req.ID] = w
	a.lastSeen[req.Source] = req.ReceivedAt
	a.mu.Unlock()
	defer a.forget(req.ID)

	timer := time.NewTimer(a.cfg.ReplyTimeout)
	defer timer.Stop()

	select {
	case a.queue <- req:
	case <-timer.C:
		c.String(http.StatusServiceUnavailable, "server busy")
		return
	case <-ctx.Done():
		return
	case <-a.stopped:
		return
	}

	select {
	case body := <-w.reply:
		c.String(http.StatusOK, body)
	case <-timer.C:
		a.logger.Warn("reply timed out", zap.String("request_id", req.ID), zap.String("body", req.Body))
		c.String(http.StatusGatewayTimeout, "reply timed out")
	case <-ctx.Done():
	case <-a.stopped:
	}
}

func (a *Adapter) forget(id string) {
	a.mu.Lock()
	delete(a.waiting, id)
	a.mu.Unlock()
}

func (a *Adapter) Receive(ctx context.Context) (transport.RawRequest, error) {
	select {
	case req := <-a.queue:
		return req, nil
	case <-ctx.Done():
		return transport.RawRequest{}, ctx.Err()
	case <-a.stopped:
		return transport.RawRequest{}, transport.ErrClosed
	}
}

// Send hands the reply to the waiting connection. A reply for a request
// whose connection already gave up is dropped.
func (a *Adapter) Send(_ context.Context, r transport.Reply) error {
	a.mu.Lock()
	w, ok := a.waiting[r.RequestID]
	a.mu.Unlock()
	if !ok {
		a.logger.Debug("dropping reply for closed connection", zap.String("request_id", r.RequestID))
		return nil
	}
	select {
	case w.reply <- r.Body:
	default:
	}
	return nil
}

// Drain refuses new requests and waits for in-flight connections to get
// their replies before closing the listener.
func (a *Adapter) Drain(ctx context.Context) error {
	a.mu.Lock()
	if a.draining {
		a.mu.Unlock()
		return nil
	}
	a.draining = true
	a.mu.Unlock()

	var err error
	if a.srv != nil {
		err = a.srv.Shutdown(ctx)
	}
	a.stopOnce.Do(func() { close(a.stopped) })
	return err
}

// LastSeen returns when each source last sent a request.
func (a *Adapter) LastSeen() map[string]time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]time.Time, len(a.lastSeen))
	for k, v := range a.lastSeen {
		out[k] = v
	}
	return out
}
