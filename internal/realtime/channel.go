// Package realtime is the client side of the pub/sub transport: named channels with an
// attach/detach lifecycle, message publish/subscribe and presence.
package realtime

import (
	"context"
	"encoding/json"

	"github.com/vovakirdan/wirechat/internal/proto"
)

// ChannelState is the connectivity state of a single channel.
type ChannelState int

const (
	StateInitialized ChannelState = iota
	StateAttaching
	StateAttached
	StateDetaching
	StateDetached
	StateSuspended
	StateFailed
)

func (s ChannelState) String() string {
	switch s {
	case StateInitialized:
		return "initialized"
	case StateAttaching:
		return "attaching"
	case StateAttached:
		return "attached"
	case StateDetaching:
		return "detaching"
	case StateDetached:
		return "detached"
	case StateSuspended:
		return "suspended"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// StateChange is emitted whenever a channel changes state, and also for attached -> attached
// updates. Resumed is false when the server could not preserve message continuity.
type StateChange struct {
	Current  ChannelState
	Previous ChannelState
	Reason   error
	Resumed  bool
}

// Channel is a named realtime channel.
type Channel interface {
	Name() string
	State() ChannelState
	Attach(ctx context.Context) error
	Detach(ctx context.Context) error
	// OnStateChange registers fn and returns a function removing it.
	OnStateChange(fn func(StateChange)) (off func())
	// Publish sends a message and returns it as accepted by the server.
	Publish(ctx context.Context, name string, data json.RawMessage, extras map[string]string) (*proto.Message, error)
	Subscribe(fn func(*proto.Message)) (off func())
	Presence() Presence
}

// Presence is the presence set of a channel. Enter, Update, Leave and Get attach the channel
// implicitly when it is not attached yet.
type Presence interface {
	Enter(ctx context.Context, data json.RawMessage) error
	Update(ctx context.Context, data json.RawMessage) error
	Leave(ctx context.Context, data json.RawMessage) error
	Get(ctx context.Context) ([]proto.PresenceMessage, error)
	Subscribe(fn func(*proto.PresenceMessage)) (off func())
}

// Channels looks channels up by name. The same name yields the same channel.
type Channels interface {
	Get(name string) Channel
}

// Transport carries frames to and from the server.
type Transport interface {
	// Request sends f and waits for the frame answering f.ID.
	Request(ctx context.Context, f *proto.Frame) (*proto.Frame, error)
	// SetHandler installs the receiver of unsolicited frames. Frames are delivered from a
	// single goroutine in arrival order.
	SetHandler(fn func(*proto.Frame))
	Close() error
}
