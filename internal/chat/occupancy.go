package chat

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat/internal/proto"
)

// OccupancyEvent is the occupancy of the room's messages channel as reported by the server.
type OccupancyEvent struct {
	Connections     int
	PresenceMembers int
}

// Occupancy reports how many connections and presence members the room has.
type Occupancy struct {
	fc   *FeatureChannel
	log  *zerolog.Logger
	subs broadcaster[OccupancyEvent]
	off  func()

	mu      sync.Mutex
	current *OccupancyEvent
}

func newOccupancy(fc *FeatureChannel, log *zerolog.Logger) *Occupancy {
	o := &Occupancy{fc: fc, log: log}
	o.off = fc.Channel().Subscribe(o.onMessage)
	return o
}

// Channel returns the feature channel carrying occupancy.
func (o *Occupancy) Channel() *FeatureChannel {
	return o.fc
}

// Subscribe delivers occupancy updates. The room must be attached.
func (o *Occupancy) Subscribe(ctx context.Context) (*Subscription[OccupancyEvent], error) {
	if err := o.fc.WaitToBeAbleToPerformPresenceOperations(ctx); err != nil {
		return nil, err
	}
	return o.subs.subscribe(), nil
}

// Current returns the last occupancy event seen, if any.
func (o *Occupancy) Current() (OccupancyEvent, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current == nil {
		return OccupancyEvent{}, false
	}
	return *o.current, true
}

// SubscribeToDiscontinuities reports lost occupancy continuity.
func (o *Occupancy) SubscribeToDiscontinuities() *Subscription[DiscontinuityEvent] {
	return o.fc.SubscribeToDiscontinuities()
}

func (o *Occupancy) onMessage(pm *proto.Message) {
	if pm.Name != proto.MetaOccupancy {
		return
	}
	var occ proto.Occupancy
	if err := json.Unmarshal(pm.Data, &occ); err != nil {
		o.log.Debug().Err(err).Msg("dropping undecodable occupancy event")
		return
	}
	ev := OccupancyEvent{Connections: occ.Connections, PresenceMembers: occ.PresenceMembers}

	o.mu.Lock()
	o.current = &ev
	o.mu.Unlock()

	o.subs.publish(ev)
}

func (o *Occupancy) close() {
	o.off()
	o.subs.close()
}
