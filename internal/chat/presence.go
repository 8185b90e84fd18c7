package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vovakirdan/wirechat/internal/proto"
)

// PresenceAction is the kind of presence event.
type PresenceAction string

const (
	PresenceEnter   PresenceAction = "enter"
	PresenceUpdate  PresenceAction = "update"
	PresenceLeave   PresenceAction = "leave"
	PresencePresent PresenceAction = "present"
)

// PresenceMember is a member of the room's presence set.
type PresenceMember struct {
	ClientID  string
	Data      json.RawMessage
	UpdatedAt time.Time
}

// PresenceEvent is a change in the room's presence set.
type PresenceEvent struct {
	Action    PresenceAction
	ClientID  string
	Data      json.RawMessage
	Timestamp time.Time
}

// Presence tracks who is in the room. Enter, Update, Leave, Get and IsUserPresent require
// an attached room; they fail instead of attaching it.
type Presence struct {
	fc   *FeatureChannel
	subs broadcaster[PresenceEvent]
	off  func()
}

func newPresence(fc *FeatureChannel) *Presence {
	p := &Presence{fc: fc}
	p.off = fc.Channel().Presence().Subscribe(p.onPresence)
	return p
}

// Channel returns the feature channel carrying presence.
func (p *Presence) Channel() *FeatureChannel {
	return p.fc
}

// Enter adds the current client to the presence set with optional data.
func (p *Presence) Enter(ctx context.Context, data json.RawMessage) error {
	if err := p.fc.WaitToBeAbleToPerformPresenceOperations(ctx); err != nil {
		return err
	}
	if err := p.fc.Channel().Presence().Enter(ctx, data); err != nil {
		return fmt.Errorf("presence enter: %w", err)
	}
	return nil
}

// Update replaces the current client's presence data.
func (p *Presence) Update(ctx context.Context, data json.RawMessage) error {
	if err := p.fc.WaitToBeAbleToPerformPresenceOperations(ctx); err != nil {
		return err
	}
	if err := p.fc.Channel().Presence().Update(ctx, data); err != nil {
		return fmt.Errorf("presence update: %w", err)
	}
	return nil
}

// Leave removes the current client from the presence set.
func (p *Presence) Leave(ctx context.Context, data json.RawMessage) error {
	if err := p.fc.WaitToBeAbleToPerformPresenceOperations(ctx); err != nil {
		return err
	}
	if err := p.fc.Channel().Presence().Leave(ctx, data); err != nil {
		return fmt.Errorf("presence leave: %w", err)
	}
	return nil
}

// Get returns the current members.
func (p *Presence) Get(ctx context.Context) ([]PresenceMember, error) {
	if err := p.fc.WaitToBeAbleToPerformPresenceOperations(ctx); err != nil {
		return nil, err
	}
	msgs, err := p.fc.Channel().Presence().Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("presence get: %w", err)
	}
	members := make([]PresenceMember, 0, len(msgs))
	for _, m := range msgs {
		members = append(members, PresenceMember{
			ClientID:  m.ClientID,
			Data:      m.Data,
			UpdatedAt: time.UnixMilli(m.Timestamp),
		})
	}
	return members, nil
}

// IsUserPresent reports whether clientID is in the presence set.
func (p *Presence) IsUserPresent(ctx context.Context, clientID string) (bool, error) {
	members, err := p.Get(ctx)
	if err != nil {
		return false, err
	}
	for _, m := range members {
		if m.ClientID == clientID {
			return true, nil
		}
	}
	return false, nil
}

// Subscribe delivers presence events received from now on. It does not require an
// attached room.
func (p *Presence) Subscribe() *Subscription[PresenceEvent] {
	return p.subs.subscribe()
}

// SubscribeToDiscontinuities reports lost presence continuity.
func (p *Presence) SubscribeToDiscontinuities() *Subscription[DiscontinuityEvent] {
	return p.fc.SubscribeToDiscontinuities()
}

func (p *Presence) onPresence(pm *proto.PresenceMessage) {
	p.subs.publish(PresenceEvent{
		Action:    PresenceAction(pm.Action),
		ClientID:  pm.ClientID,
		Data:      pm.Data,
		Timestamp: time.UnixMilli(pm.Timestamp),
	})
}

func (p *Presence) close() {
	p.off()
	p.subs.close()
}
