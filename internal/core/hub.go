package core

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	wlog "github.com/vovakirdan/wirechat/internal/log"
	"github.com/vovakirdan/wirechat/internal/metrics"
	"github.com/vovakirdan/wirechat/internal/proto"
	"github.com/vovakirdan/wirechat/internal/store"
	"github.com/vovakirdan/wirechat/internal/utils"
)

const persistTimeout = 2 * time.Second

// Options configures a Hub. Every field is optional.
type Options struct {
	Store        store.MessageStore
	Metrics      *metrics.Metrics
	Logger       *zerolog.Logger
	ClientBuffer int
}

type request struct {
	client *Client
	frame  *proto.Frame
	reply  chan *proto.Frame
}

// Hub coordinates channels, attached clients and presence. All state is owned by the Run
// goroutine; other goroutines talk to it through channels.
type Hub struct {
	store        store.MessageStore
	metrics      *metrics.Metrics
	log          *zerolog.Logger
	clientBuffer int
	now          func() time.Time

	register   chan *Client
	unregister chan *Client
	requests   chan request
	ops        chan func()
	done       chan struct{}

	clients  map[*Client]struct{}
	channels map[string]*Channel
}

// NewHub creates a new hub instance. Call Run before using it.
func NewHub(opts Options) *Hub {
	logger := opts.Logger
	if logger == nil {
		logger = wlog.Nop()
	}
	return &Hub{
		store:        opts.Store,
		metrics:      opts.Metrics,
		log:          logger,
		clientBuffer: opts.ClientBuffer,
		now:          time.Now,
		register:     make(chan *Client),
		unregister:   make(chan *Client),
		requests:     make(chan request),
		ops:          make(chan func()),
		done:         make(chan struct{}),
		clients:      make(map[*Client]struct{}),
		channels:     make(map[string]*Channel),
	}
}

// Run processes hub traffic until ctx is canceled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.metrics.ClientRegistered(1)
			h.log.Debug().Str("conn_id", c.ID).Str("client_id", c.ClientID).Msg("client registered")
		case c := <-h.unregister:
			h.removeClient(c)
		case req := <-h.requests:
			req.reply <- h.handle(ctx, req.client, req.frame)
		case op := <-h.ops:
			op()
		}
	}
}

// RegisterClient adds a client to the hub.
func (h *Hub) RegisterClient(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
	}
}

// UnregisterClient detaches the client from all channels, drops its presence and closes
// its Events channel.
func (h *Hub) UnregisterClient(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Handle processes a client request frame and returns the reply frame.
func (h *Hub) Handle(ctx context.Context, c *Client, f *proto.Frame) (*proto.Frame, error) {
	req := request{client: c, frame: f, reply: make(chan *proto.Frame, 1)}
	select {
	case h.requests <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-h.done:
		return nil, ErrHubStopped
	}
	select {
	case reply := <-req.reply:
		return reply, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-h.done:
		return nil, ErrHubStopped
	}
}

// Reattach tells every client attached to channel that continuity was lost. Clients stay
// attached and receive an attached frame with resumed=false.
func (h *Hub) Reattach(channel string, reason string) {
	h.do(func() {
		ch, ok := h.channels[channel]
		if !ok {
			return
		}
		h.log.Info().Str("channel", channel).Str("reason", reason).Msg("forcing reattach")
		h.broadcast(ch, &proto.Frame{
			Action:  proto.ActionAttached,
			Channel: channel,
			Resumed: false,
			Error:   protoError(ErrCodeReattached, reason),
		})
	})
}

// Suspend detaches every client from channel with an error. Their presence is dropped.
func (h *Hub) Suspend(channel string, reason string) {
	h.do(func() {
		ch, ok := h.channels[channel]
		if !ok {
			return
		}
		h.log.Info().Str("channel", channel).Str("reason", reason).Msg("suspending channel")
		h.broadcast(ch, &proto.Frame{
			Action:  proto.ActionDetached,
			Channel: channel,
			Error:   protoError(ErrCodeSuspended, reason),
		})
		for c := range ch.clients {
			ch.DropPresence(c, h.now().UnixMilli())
			ch.RemoveClient(c)
			delete(c.channels, channel)
		}
		h.dropIfIdle(ch)
	})
}

// Occupancy returns the occupancy of a channel; unknown channels are empty.
func (h *Hub) Occupancy(channel string) proto.Occupancy {
	var occ proto.Occupancy
	h.do(func() {
		if ch, ok := h.channels[channel]; ok {
			occ = ch.Occupancy()
		}
	})
	return occ
}

// do runs op on the hub goroutine and waits for it.
func (h *Hub) do(op func()) {
	finished := make(chan struct{})
	select {
	case h.ops <- func() { op(); close(finished) }:
	case <-h.done:
		return
	}
	select {
	case <-finished:
	case <-h.done:
	}
}

func (h *Hub) handle(ctx context.Context, c *Client, f *proto.Frame) *proto.Frame {
	if f == nil {
		return &proto.Frame{Action: proto.ActionNack, Error: protoError(ErrCodeBadRequest, "empty frame")}
	}
	if _, ok := h.clients[c]; !ok {
		return nack(f, ErrCodeBadRequest, "client not registered")
	}
	if f.Channel == "" {
		return nack(f, ErrCodeBadRequest, "channel is required")
	}

	switch f.Action {
	case proto.ActionAttach:
		return h.attach(c, f)
	case proto.ActionDetach:
		return h.detach(c, f)
	case proto.ActionMessage:
		return h.publish(ctx, c, f)
	case proto.ActionPresence:
		return h.presence(c, f)
	case proto.ActionSync:
		ch, ok := h.channels[f.Channel]
		if !ok || !ch.HasClient(c) {
			return nack(f, ErrCodeNotAttached, "channel not attached")
		}
		return &proto.Frame{Action: proto.ActionSync, ID: f.ID, Channel: f.Channel, Presence: ch.Members()}
	default:
		return nack(f, ErrCodeBadRequest, "unknown action "+string(f.Action))
	}
}

func (h *Hub) attach(c *Client, f *proto.Frame) *proto.Frame {
	ch, ok := h.channels[f.Channel]
	if !ok {
		ch = NewChannel(f.Channel)
		h.channels[f.Channel] = ch
		h.metrics.SetChannels(len(h.channels))
	}
	added := ch.AddClient(c)
	c.channels[f.Channel] = struct{}{}
	if added {
		h.publishOccupancy(ch)
	}
	return &proto.Frame{Action: proto.ActionAttached, ID: f.ID, Channel: f.Channel, Resumed: !added}
}

func (h *Hub) detach(c *Client, f *proto.Frame) *proto.Frame {
	if ch, ok := h.channels[f.Channel]; ok {
		h.leaveChannel(c, ch)
	}
	return &proto.Frame{Action: proto.ActionDetached, ID: f.ID, Channel: f.Channel}
}

func (h *Hub) publish(ctx context.Context, c *Client, f *proto.Frame) *proto.Frame {
	if len(f.Messages) == 0 {
		return nack(f, ErrCodeBadRequest, "no messages")
	}
	ts := h.now()
	out := make([]proto.Message, 0, len(f.Messages))
	for _, msg := range f.Messages {
		if msg.Name == "" {
			return nack(f, ErrCodeBadRequest, "message name is required")
		}
		msg.ID = utils.NewID()
		msg.ClientID = c.ClientID
		msg.Timestamp = ts.UnixMilli()
		out = append(out, msg)
	}

	h.persist(ctx, f.Channel, out, ts)

	if ch, ok := h.channels[f.Channel]; ok {
		h.broadcast(ch, &proto.Frame{Action: proto.ActionMessage, Channel: f.Channel, Messages: out})
		h.metrics.MessageFanout("message")
	}
	return &proto.Frame{Action: proto.ActionAck, ID: f.ID, Channel: f.Channel, Messages: out}
}

func (h *Hub) presence(c *Client, f *proto.Frame) *proto.Frame {
	ch, ok := h.channels[f.Channel]
	if !ok || !ch.HasClient(c) {
		return nack(f, ErrCodeNotAttached, "channel not attached")
	}
	if len(f.Presence) == 0 {
		return nack(f, ErrCodeBadRequest, "no presence messages")
	}

	ts := h.now().UnixMilli()
	out := make([]proto.PresenceMessage, 0, len(f.Presence))
	for _, msg := range f.Presence {
		switch msg.Action {
		case proto.PresenceEnter, proto.PresenceUpdate, proto.PresenceLeave:
		default:
			return nack(f, ErrCodeBadRequest, "invalid presence action "+string(msg.Action))
		}
		msg.ClientID = c.ClientID
		msg.Timestamp = ts
		if ch.SetPresence(c, msg) {
			out = append(out, msg)
		}
	}

	if len(out) > 0 {
		h.broadcast(ch, &proto.Frame{Action: proto.ActionPresence, Channel: f.Channel, Presence: out})
		h.metrics.MessageFanout("presence")
		h.publishOccupancy(ch)
	}
	return &proto.Frame{Action: proto.ActionAck, ID: f.ID, Channel: f.Channel}
}

func (h *Hub) removeClient(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	for name := range c.channels {
		if ch, ok := h.channels[name]; ok {
			h.leaveChannel(c, ch)
		}
	}
	delete(h.clients, c)
	close(c.Events)
	h.metrics.ClientRegistered(-1)
	h.log.Debug().Str("conn_id", c.ID).Str("client_id", c.ClientID).Msg("client unregistered")
}

func (h *Hub) leaveChannel(c *Client, ch *Channel) {
	leaves := ch.DropPresence(c, h.now().UnixMilli())
	removed := ch.RemoveClient(c)
	delete(c.channels, ch.Name)

	if len(leaves) > 0 {
		h.broadcast(ch, &proto.Frame{Action: proto.ActionPresence, Channel: ch.Name, Presence: leaves})
	}
	if removed || len(leaves) > 0 {
		h.publishOccupancy(ch)
	}
	h.dropIfIdle(ch)
}

func (h *Hub) dropIfIdle(ch *Channel) {
	if ch.Empty() && len(ch.presence) == 0 {
		delete(h.channels, ch.Name)
		h.metrics.SetChannels(len(h.channels))
	}
}

func (h *Hub) publishOccupancy(ch *Channel) {
	if ch.Empty() {
		return
	}
	data, err := json.Marshal(ch.Occupancy())
	if err != nil {
		h.log.Error().Err(err).Str("channel", ch.Name).Msg("marshal occupancy")
		return
	}
	h.broadcast(ch, &proto.Frame{
		Action:  proto.ActionMessage,
		Channel: ch.Name,
		Messages: []proto.Message{{
			ID:        utils.NewID(),
			Name:      proto.MetaOccupancy,
			Data:      data,
			Timestamp: h.now().UnixMilli(),
		}},
	})
}

func (h *Hub) broadcast(ch *Channel, f *proto.Frame) {
	if dropped := ch.Broadcast(f); dropped > 0 {
		for range dropped {
			h.metrics.FrameDropped()
		}
		h.log.Warn().Str("channel", ch.Name).Int("dropped", dropped).Msg("slow consumers, frames dropped")
	}
}

func (h *Hub) persist(ctx context.Context, channel string, msgs []proto.Message, ts time.Time) {
	if h.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()
	for _, msg := range msgs {
		if err := h.store.SaveMessage(ctx, &store.Message{
			MessageID: msg.ID,
			Channel:   channel,
			Name:      msg.Name,
			ClientID:  msg.ClientID,
			Data:      msg.Data,
			CreatedAt: ts,
		}); err != nil {
			h.log.Error().Err(err).Str("channel", channel).Msg("failed to persist message")
		}
	}
}
