// Package transport defines how requests reach the session and how replies
// leave it. The router never sees which adapter is in use.
package transport

import (
	"context"
	"errors"
	"time"

	"hotelling/models"
)

// ErrClosed is returned by Receive once the adapter has drained.
var ErrClosed = errors.New("transport closed")

// ErrUnsupported is returned by side-channel operations an adapter does not offer.
var ErrUnsupported = errors.New("operation not supported by this transport")

// RawRequest is one inbound request before parsing.
type RawRequest struct {
	ID         string
	Body       string
	Source     string // remote address or relay client name
	ReceivedAt time.Time
}

// Reply is addressed to a request and, for relay, to a slot or client.
type Reply struct {
	RequestID string
	Slot      int // negative when unknown
	Client    string
	Body      string
}

// Adapter is the contract both transports implement.
type Adapter interface {
	Name() string
	// Start begins accepting requests. It returns once the adapter is running.
	Start(ctx context.Context) error
	// Receive blocks until a request is available.
	Receive(ctx context.Context) (RawRequest, error)
	Send(ctx context.Context, r Reply) error
	// Drain stops accepting requests and waits for in-flight ones to be answered.
	Drain(ctx context.Context) error
	// Workers is the number of controller workers the adapter expects.
	Workers() int
}

// SideChannel carries administrative operations that are not part of the
// turn protocol. Only the relay transport implements all of them.
type SideChannel interface {
	SendMessage(ctx context.Context, user, text string) error
	EraseTables(ctx context.Context, tables ...string) error
	WaitingList(ctx context.Context) ([]string, error)
	AuthorizeParticipants(ctx context.Context, participants []models.Assignment) error
	SetMissingPlayers(ctx context.Context, n int) error
}

// Inbound exposes traffic that arrives outside the request queue.
type Inbound interface {
	Chat() <-chan models.ChatMessage
	Presence() <-chan []string
}

// Unsupported implements SideChannel by refusing every operation.
type Unsupported struct{}

func (Unsupported) SendMessage(context.Context, string, string) error {
	return ErrUnsupported
}

func (Unsupported) EraseTables(context.Context, ...string) error {
	return ErrUnsupported
}

func (Unsupported) WaitingList(context.Context) ([]string, error) {
	return nil, ErrUnsupported
}

func (Unsupported) AuthorizeParticipants(context.Context, []models.Assignment) error {
	return ErrUnsupported
}

func (Unsupported) SetMissingPlayers(context.Context, int) error {
	return ErrUnsupported
}
