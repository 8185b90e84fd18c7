package chat

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/vovakirdan/wirechat/internal/proto"
)

// TypingChange is the change that produced a TypingEvent.
type TypingChange struct {
	ClientID string
	Typing   bool
}

// TypingEvent lists the clients typing after Change was applied.
type TypingEvent struct {
	CurrentlyTyping []string
	Change          TypingChange
}

// Typing publishes and observes typing indicators. A client is typing while it is present
// on the typing channel.
type Typing struct {
	fc   *FeatureChannel
	subs broadcaster[TypingEvent]
	off  func()

	mu     sync.Mutex
	typing map[string]struct{}
}

func newTyping(fc *FeatureChannel) *Typing {
	t := &Typing{fc: fc, typing: make(map[string]struct{})}
	t.off = fc.Channel().Presence().Subscribe(t.onPresence)
	return t
}

// Channel returns the feature channel carrying typing indicators.
func (t *Typing) Channel() *FeatureChannel {
	return t.fc
}

// Start marks the current client as typing.
func (t *Typing) Start(ctx context.Context) error {
	if err := t.fc.WaitToBeAbleToPerformPresenceOperations(ctx); err != nil {
		return err
	}
	if err := t.fc.Channel().Presence().Enter(ctx, nil); err != nil {
		return fmt.Errorf("typing start: %w", err)
	}
	return nil
}

// Stop marks the current client as no longer typing.
func (t *Typing) Stop(ctx context.Context) error {
	if err := t.fc.WaitToBeAbleToPerformPresenceOperations(ctx); err != nil {
		return err
	}
	if err := t.fc.Channel().Presence().Leave(ctx, nil); err != nil {
		return fmt.Errorf("typing stop: %w", err)
	}
	return nil
}

// Get asks the server who is typing.
func (t *Typing) Get(ctx context.Context) ([]string, error) {
	if err := t.fc.WaitToBeAbleToPerformPresenceOperations(ctx); err != nil {
		return nil, err
	}
	members, err := t.fc.Channel().Presence().Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("typing get: %w", err)
	}
	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.ClientID)
	}
	sort.Strings(ids)
	return ids, nil
}

// Subscribe delivers typing changes observed from now on.
func (t *Typing) Subscribe() *Subscription[TypingEvent] {
	return t.subs.subscribe()
}

// SubscribeToDiscontinuities reports lost typing continuity.
func (t *Typing) SubscribeToDiscontinuities() *Subscription[DiscontinuityEvent] {
	return t.fc.SubscribeToDiscontinuities()
}

func (t *Typing) onPresence(pm *proto.PresenceMessage) {
	typing := pm.Action != proto.PresenceLeave

	t.mu.Lock()
	_, was := t.typing[pm.ClientID]
	if typing == was {
		t.mu.Unlock()
		return
	}
	if typing {
		t.typing[pm.ClientID] = struct{}{}
	} else {
		delete(t.typing, pm.ClientID)
	}
	current := make([]string, 0, len(t.typing))
	for id := range t.typing {
		current = append(current, id)
	}
	sort.Strings(current)
	// Publishing under the lock keeps events in the order the set changed.
	t.subs.publish(TypingEvent{
		CurrentlyTyping: current,
		Change:          TypingChange{ClientID: pm.ClientID, Typing: typing},
	})
	t.mu.Unlock()
}

func (t *Typing) close() {
	t.off()
	t.subs.close()
}
