package chat

import (
	"context"
	"encoding/json"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/vovakirdan/wirechat/internal/proto"
	"github.com/vovakirdan/wirechat/internal/realtime"
)

// fakeChannel is a realtime.Channel whose attach outcome is controlled by the test.
type fakeChannel struct {
	name     string
	presence *fakePresence

	mu          sync.Mutex
	state       realtime.ChannelState
	attachErr   error
	attachGate  chan struct{}
	detachGate  chan struct{}
	attachCalls int
	detachCalls int
	published   []proto.Message

	stateListeners   []*func(realtime.StateChange)
	messageListeners []*func(*proto.Message)
}

var _ realtime.Channel = (*fakeChannel)(nil)

func newFakeChannel(name string) *fakeChannel {
	ch := &fakeChannel{name: name, state: realtime.StateInitialized}
	ch.presence = &fakePresence{ch: ch}
	return ch
}

// blockAttach makes Attach wait until the returned function is called.
func (ch *fakeChannel) blockAttach() (release func()) {
	gate := make(chan struct{})
	ch.mu.Lock()
	ch.attachGate = gate
	ch.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

// blockDetach makes Detach wait until the returned function is called.
func (ch *fakeChannel) blockDetach() (release func()) {
	gate := make(chan struct{})
	ch.mu.Lock()
	ch.detachGate = gate
	ch.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

func (ch *fakeChannel) failAttach(err error) {
	ch.mu.Lock()
	ch.attachErr = err
	ch.mu.Unlock()
}

func (ch *fakeChannel) calls() (attach, detach int) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.attachCalls, ch.detachCalls
}

func (ch *fakeChannel) Name() string { return ch.name }

func (ch *fakeChannel) State() realtime.ChannelState {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.state
}

func (ch *fakeChannel) Attach(ctx context.Context) error {
	ch.mu.Lock()
	ch.attachCalls++
	gate := ch.attachGate
	attachErr := ch.attachErr
	ch.mu.Unlock()

	ch.setState(realtime.StateAttaching, nil, false)
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			ch.setState(realtime.StateSuspended, ctx.Err(), false)
			return ctx.Err()
		}
	}
	if attachErr != nil {
		ch.setState(realtime.StateFailed, attachErr, false)
		return attachErr
	}
	ch.setState(realtime.StateAttached, nil, false)
	return nil
}

func (ch *fakeChannel) Detach(ctx context.Context) error {
	ch.mu.Lock()
	ch.detachCalls++
	gate := ch.detachGate
	ch.mu.Unlock()

	ch.setState(realtime.StateDetaching, nil, false)
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	ch.setState(realtime.StateDetached, nil, false)
	return nil
}

func (ch *fakeChannel) OnStateChange(fn func(realtime.StateChange)) func() {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	p := &fn
	ch.stateListeners = append(ch.stateListeners, p)
	return func() {
		ch.mu.Lock()
		defer ch.mu.Unlock()
		for i, l := range ch.stateListeners {
			if l == p {
				ch.stateListeners = append(ch.stateListeners[:i], ch.stateListeners[i+1:]...)
				return
			}
		}
	}
}

func (ch *fakeChannel) Publish(ctx context.Context, name string, data json.RawMessage, extras map[string]string) (*proto.Message, error) {
	msg := proto.Message{
		ID:        "msg-" + name,
		Name:      name,
		ClientID:  "me",
		Data:      data,
		Extras:    extras,
		Timestamp: 1700000000000,
	}
	ch.mu.Lock()
	ch.published = append(ch.published, msg)
	ch.mu.Unlock()
	return &msg, nil
}

func (ch *fakeChannel) Subscribe(fn func(*proto.Message)) func() {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	p := &fn
	ch.messageListeners = append(ch.messageListeners, p)
	return func() {
		ch.mu.Lock()
		defer ch.mu.Unlock()
		for i, l := range ch.messageListeners {
			if l == p {
				ch.messageListeners = append(ch.messageListeners[:i], ch.messageListeners[i+1:]...)
				return
			}
		}
	}
}

func (ch *fakeChannel) Presence() realtime.Presence { return ch.presence }

// emitState sets the state and notifies listeners as a server push would.
func (ch *fakeChannel) emitState(current realtime.ChannelState, reason error, resumed bool) {
	ch.setState(current, reason, resumed)
}

func (ch *fakeChannel) deliver(msg proto.Message) {
	ch.mu.Lock()
	fns := make([]func(*proto.Message), 0, len(ch.messageListeners))
	for _, l := range ch.messageListeners {
		fns = append(fns, *l)
	}
	ch.mu.Unlock()
	for _, fn := range fns {
		fn(&msg)
	}
}

func (ch *fakeChannel) setState(state realtime.ChannelState, reason error, resumed bool) {
	ch.mu.Lock()
	previous := ch.state
	ch.state = state
	fns := make([]func(realtime.StateChange), 0, len(ch.stateListeners))
	for _, l := range ch.stateListeners {
		fns = append(fns, *l)
	}
	ch.mu.Unlock()

	for _, fn := range fns {
		fn(realtime.StateChange{Current: state, Previous: previous, Reason: reason, Resumed: resumed})
	}
}

// fakePresence records presence calls. Unlike the real presence it never attaches.
type fakePresence struct {
	ch *fakeChannel

	mu        sync.Mutex
	calls     []proto.PresenceAction
	members   []proto.PresenceMessage
	listeners []func(*proto.PresenceMessage)
}

var _ realtime.Presence = (*fakePresence)(nil)

func (p *fakePresence) record(action proto.PresenceAction) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, action)
	return nil
}

func (p *fakePresence) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func (p *fakePresence) Enter(ctx context.Context, data json.RawMessage) error {
	return p.record(proto.PresenceEnter)
}

func (p *fakePresence) Update(ctx context.Context, data json.RawMessage) error {
	return p.record(proto.PresenceUpdate)
}

func (p *fakePresence) Leave(ctx context.Context, data json.RawMessage) error {
	return p.record(proto.PresenceLeave)
}

func (p *fakePresence) Get(ctx context.Context) ([]proto.PresenceMessage, error) {
	if err := p.record(proto.PresencePresent); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]proto.PresenceMessage(nil), p.members...), nil
}

func (p *fakePresence) Subscribe(fn func(*proto.PresenceMessage)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, fn)
	return func() {}
}

func (p *fakePresence) deliver(msg proto.PresenceMessage) {
	p.mu.Lock()
	fns := slices.Clone(p.listeners)
	p.mu.Unlock()
	for _, fn := range fns {
		fn(&msg)
	}
}

// fakeChannels hands out one fakeChannel per name.
type fakeChannels struct {
	mu       sync.Mutex
	channels map[string]*fakeChannel
}

func newFakeChannels() *fakeChannels {
	return &fakeChannels{channels: make(map[string]*fakeChannel)}
}

func (fc *fakeChannels) Get(name string) realtime.Channel {
	return fc.fake(name)
}

func (fc *fakeChannels) fake(name string) *fakeChannel {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	ch, ok := fc.channels[name]
	if !ok {
		ch = newFakeChannel(name)
		fc.channels[name] = ch
	}
	return ch
}

func newTestManager(channels ...*fakeChannel) (*LifecycleManager, []*Contributor) {
	var contributors []*Contributor
	for i, ch := range channels {
		f := AllFeatures()[i%len(AllFeatures())]
		contributors = append(contributors, &Contributor{
			Feature:         f,
			Channel:         ch,
			Discontinuities: NewDiscontinuityEmitter(f),
		})
	}
	m := NewLifecycleManager("room", contributors, LifecycleOptions{
		AttachTimeout: 2 * time.Second,
		DetachTimeout: 2 * time.Second,
	})
	return m, contributors
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func waitStatus(t *testing.T, m *LifecycleManager, want RoomStatus) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if m.Status() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("status = %s, want %s", m.Status(), want)
}

// waitDetachCalls waits until ch has seen at least n Detach calls.
func waitDetachCalls(t *testing.T, ch *fakeChannel, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, detach := ch.calls(); detach >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("channel %s was not detached", ch.name)
}

func waitChannelState(t *testing.T, ch realtime.Channel, want realtime.ChannelState) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if ch.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("channel %s state = %s, want %s", ch.Name(), ch.State(), want)
}

func mustReceive[T any](t *testing.T, sub *Subscription[T]) T {
	t.Helper()
	select {
	case v, ok := <-sub.Events():
		if !ok {
			t.Fatal("subscription closed")
		}
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("expected event not received")
	}
	var zero T
	return zero
}

func mustNotReceive[T any](t *testing.T, sub *Subscription[T]) {
	t.Helper()
	select {
	case v, ok := <-sub.Events():
		if ok {
			t.Fatalf("unexpected event: %+v", v)
		}
	case <-time.After(50 * time.Millisecond):
	}
}
