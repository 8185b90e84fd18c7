package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/vovakirdan/wirechat/internal/proto"
)

// ClientChannel is a Channel bound to a Connection.
type ClientChannel struct {
	conn     *Connection
	name     string
	presence *ClientPresence

	mu     sync.Mutex
	state  ChannelState
	reason error

	stateListeners   listeners[StateChange]
	messageListeners listeners[*proto.Message]
}

var _ Channel = (*ClientChannel)(nil)

func newClientChannel(conn *Connection, name string) *ClientChannel {
	ch := &ClientChannel{conn: conn, name: name, state: StateInitialized}
	ch.presence = &ClientPresence{ch: ch}
	return ch
}

// Name returns the channel name.
func (ch *ClientChannel) Name() string {
	return ch.name
}

// State returns the current channel state.
func (ch *ClientChannel) State() ChannelState {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.state
}

// Reason returns the error that caused the last suspended or failed state.
func (ch *ClientChannel) Reason() error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.reason
}

// Attach attaches the channel. A canceled or timed out request leaves the channel
// suspended; a rejected one leaves it failed.
func (ch *ClientChannel) Attach(ctx context.Context) error {
	if ch.State() == StateAttached {
		return nil
	}
	ch.setState(StateAttaching, nil, false)

	reply, err := ch.conn.request(ctx, &proto.Frame{Action: proto.ActionAttach, Channel: ch.name})
	if err != nil {
		if ctx.Err() != nil {
			ch.setState(StateSuspended, err, false)
		} else {
			ch.setState(StateFailed, err, false)
		}
		return err
	}
	ch.setState(StateAttached, nil, reply.Resumed)
	return nil
}

// Detach detaches the channel.
func (ch *ClientChannel) Detach(ctx context.Context) error {
	switch ch.State() {
	case StateInitialized, StateDetached:
		ch.setState(StateDetached, nil, false)
		return nil
	}
	ch.setState(StateDetaching, nil, false)

	if _, err := ch.conn.request(ctx, &proto.Frame{Action: proto.ActionDetach, Channel: ch.name}); err != nil {
		ch.setState(StateFailed, err, false)
		return err
	}
	ch.setState(StateDetached, nil, false)
	return nil
}

// OnStateChange registers a state listener.
func (ch *ClientChannel) OnStateChange(fn func(StateChange)) func() {
	return ch.stateListeners.add(fn)
}

// Publish sends a message on the channel. It does not attach the channel.
func (ch *ClientChannel) Publish(ctx context.Context, name string, data json.RawMessage, extras map[string]string) (*proto.Message, error) {
	reply, err := ch.conn.request(ctx, &proto.Frame{
		Action:  proto.ActionMessage,
		Channel: ch.name,
		Messages: []proto.Message{{
			Name:     name,
			ClientID: ch.conn.clientID,
			Data:     data,
			Extras:   extras,
		}},
	})
	if err != nil {
		return nil, err
	}
	if len(reply.Messages) == 0 {
		return nil, &proto.Error{Code: "bad_reply", Msg: "ack without message"}
	}
	return &reply.Messages[0], nil
}

// Subscribe registers a message listener.
func (ch *ClientChannel) Subscribe(fn func(*proto.Message)) func() {
	return ch.messageListeners.add(fn)
}

// Presence returns the channel presence set.
func (ch *ClientChannel) Presence() Presence {
	return ch.presence
}

func (ch *ClientChannel) setState(state ChannelState, reason error, resumed bool) {
	ch.mu.Lock()
	previous := ch.state
	ch.state = state
	ch.reason = reason
	ch.mu.Unlock()

	ch.stateListeners.emit(StateChange{
		Current:  state,
		Previous: previous,
		Reason:   reason,
		Resumed:  resumed,
	})
}

func (ch *ClientChannel) handle(f *proto.Frame) {
	switch f.Action {
	case proto.ActionMessage:
		for i := range f.Messages {
			ch.messageListeners.emit(&f.Messages[i])
		}
	case proto.ActionPresence:
		for i := range f.Presence {
			ch.presence.listeners.emit(&f.Presence[i])
		}
	case proto.ActionAttached:
		ch.setState(StateAttached, frameError(f), f.Resumed)
	case proto.ActionDetached:
		if err := frameError(f); err != nil {
			ch.setState(StateSuspended, err, false)
		} else {
			ch.setState(StateDetached, nil, false)
		}
	case proto.ActionError:
		ch.setState(StateFailed, frameError(f), false)
	}
}

func frameError(f *proto.Frame) error {
	if f.Error == nil {
		return nil
	}
	return f.Error
}

// ClientPresence is the presence set of a ClientChannel.
type ClientPresence struct {
	ch        *ClientChannel
	listeners listeners[*proto.PresenceMessage]
}

var _ Presence = (*ClientPresence)(nil)

// Enter adds this client to the presence set.
func (p *ClientPresence) Enter(ctx context.Context, data json.RawMessage) error {
	return p.send(ctx, proto.PresenceEnter, data)
}

// Update changes this client's presence data.
func (p *ClientPresence) Update(ctx context.Context, data json.RawMessage) error {
	return p.send(ctx, proto.PresenceUpdate, data)
}

// Leave removes this client from the presence set.
func (p *ClientPresence) Leave(ctx context.Context, data json.RawMessage) error {
	return p.send(ctx, proto.PresenceLeave, data)
}

// Get returns the current members.
func (p *ClientPresence) Get(ctx context.Context) ([]proto.PresenceMessage, error) {
	if err := p.implicitAttach(ctx); err != nil {
		return nil, err
	}
	reply, err := p.ch.conn.request(ctx, &proto.Frame{Action: proto.ActionSync, Channel: p.ch.name})
	if err != nil {
		return nil, err
	}
	return reply.Presence, nil
}

// Subscribe registers a presence listener.
func (p *ClientPresence) Subscribe(fn func(*proto.PresenceMessage)) func() {
	return p.listeners.add(fn)
}

func (p *ClientPresence) send(ctx context.Context, action proto.PresenceAction, data json.RawMessage) error {
	if err := p.implicitAttach(ctx); err != nil {
		return err
	}
	_, err := p.ch.conn.request(ctx, &proto.Frame{
		Action:  proto.ActionPresence,
		Channel: p.ch.name,
		Presence: []proto.PresenceMessage{{
			Action:   action,
			ClientID: p.ch.conn.clientID,
			Data:     data,
		}},
	})
	return err
}

func (p *ClientPresence) implicitAttach(ctx context.Context) error {
	if p.ch.State() == StateAttached {
		return nil
	}
	return p.ch.Attach(ctx)
}
