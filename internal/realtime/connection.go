package realtime

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	wlog "github.com/vovakirdan/wirechat/internal/log"
	"github.com/vovakirdan/wirechat/internal/proto"
	"github.com/vovakirdan/wirechat/internal/utils"
)

var _ Channels = (*Connection)(nil)

// Connection multiplexes channels over one transport. Channel returns the same instance for
// the same name, so features that share a channel name share its state.
type Connection struct {
	transport Transport
	clientID  string
	log       *zerolog.Logger

	mu       sync.Mutex
	channels map[string]*ClientChannel
}

// NewConnection wraps transport. clientID identifies this client in presence sets.
func NewConnection(transport Transport, clientID string, logger *zerolog.Logger) *Connection {
	if logger == nil {
		logger = wlog.Nop()
	}
	c := &Connection{
		transport: transport,
		clientID:  clientID,
		log:       logger,
		channels:  make(map[string]*ClientChannel),
	}
	transport.SetHandler(c.dispatch)
	return c
}

// ClientID returns the identity this connection was opened with.
func (c *Connection) ClientID() string {
	return c.clientID
}

// Channel returns the channel with the given name, creating it in the initialized state.
func (c *Connection) Channel(name string) *ClientChannel {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch, ok := c.channels[name]
	if !ok {
		ch = newClientChannel(c, name)
		c.channels[name] = ch
	}
	return ch
}

// Get implements Channels.
func (c *Connection) Get(name string) Channel {
	return c.Channel(name)
}

// Close closes the underlying transport.
func (c *Connection) Close() error {
	return c.transport.Close()
}

func (c *Connection) request(ctx context.Context, f *proto.Frame) (*proto.Frame, error) {
	f.ID = utils.NewID()
	reply, err := c.transport.Request(ctx, f)
	if err != nil {
		return nil, err
	}
	if reply.Action == proto.ActionNack || reply.Action == proto.ActionError {
		if reply.Error != nil {
			return nil, reply.Error
		}
		return nil, &proto.Error{Code: "nack", Msg: "request rejected"}
	}
	return reply, nil
}

func (c *Connection) dispatch(f *proto.Frame) {
	if f == nil || f.Channel == "" {
		return
	}
	c.mu.Lock()
	ch, ok := c.channels[f.Channel]
	c.mu.Unlock()
	if !ok {
		c.log.Debug().Str("channel", f.Channel).Str("action", string(f.Action)).Msg("frame for unknown channel")
		return
	}
	ch.handle(f)
}
