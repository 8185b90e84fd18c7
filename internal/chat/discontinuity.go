package chat

import "time"

// DiscontinuityEvent reports that a feature's channel lost message continuity, for example
// after the server forced a re-attach. Subscribers should treat local state derived from
// the channel as stale.
type DiscontinuityEvent struct {
	Feature RoomFeature
	Err     error
	At      time.Time
}

// DiscontinuityEmitter fans discontinuity events out to the subscribers registered at the
// time each event is detected. There is no replay for late subscribers.
type DiscontinuityEmitter struct {
	feature RoomFeature
	subs    broadcaster[DiscontinuityEvent]
	now     func() time.Time
}

// NewDiscontinuityEmitter creates an emitter for feature.
func NewDiscontinuityEmitter(feature RoomFeature) *DiscontinuityEmitter {
	return &DiscontinuityEmitter{feature: feature, now: time.Now}
}

// Subscribe registers a subscriber.
func (e *DiscontinuityEmitter) Subscribe() *Subscription[DiscontinuityEvent] {
	return e.subs.subscribe()
}

// Emit delivers a discontinuity caused by reason and returns the number of subscribers
// it was queued for.
func (e *DiscontinuityEmitter) Emit(reason error) int {
	return e.subs.publish(DiscontinuityEvent{Feature: e.feature, Err: reason, At: e.now()})
}

// Close ends every subscription.
func (e *DiscontinuityEmitter) Close() {
	e.subs.close()
}
