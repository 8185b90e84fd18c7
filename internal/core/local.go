package core

import (
	"context"
	"sync"

	"github.com/vovakirdan/wirechat/internal/proto"
	"github.com/vovakirdan/wirechat/internal/utils"
)

// LocalConn is an in-process transport to the hub. It satisfies realtime.Transport.
type LocalConn struct {
	hub    *Hub
	client *Client

	mu      sync.Mutex
	handler func(*proto.Frame)

	closeOnce sync.Once
	pumped    chan struct{}
}

// Connect registers a new client with the given identity and returns its transport.
func (h *Hub) Connect(clientID string) *LocalConn {
	c := NewClient(utils.NewID(), clientID, h.clientBuffer)
	h.RegisterClient(c)

	lc := &LocalConn{hub: h, client: c, pumped: make(chan struct{})}
	go lc.pump()
	return lc
}

// Client returns the hub client behind the connection.
func (lc *LocalConn) Client() *Client {
	return lc.client
}

// Request forwards f to the hub and returns its reply.
func (lc *LocalConn) Request(ctx context.Context, f *proto.Frame) (*proto.Frame, error) {
	return lc.hub.Handle(ctx, lc.client, f)
}

// SetHandler installs the receiver of pushed frames.
func (lc *LocalConn) SetHandler(fn func(*proto.Frame)) {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	lc.handler = fn
}

// Close unregisters the client and waits for pending frames to be delivered.
func (lc *LocalConn) Close() error {
	lc.closeOnce.Do(func() {
		lc.hub.UnregisterClient(lc.client)
	})
	select {
	case <-lc.pumped:
	case <-lc.hub.done:
	}
	return nil
}

func (lc *LocalConn) pump() {
	defer close(lc.pumped)
	for f := range lc.client.Events {
		lc.mu.Lock()
		handler := lc.handler
		lc.mu.Unlock()
		if handler != nil {
			handler(f)
		}
	}
}
