package chat

import (
	"context"

	"github.com/vovakirdan/wirechat/internal/realtime"
)

// presenceGate is the part of the lifecycle manager a feature channel depends on.
type presenceGate interface {
	WaitToBeAbleToPerformPresenceOperations(ctx context.Context, feature RoomFeature) error
}

// FeatureChannel binds a feature to the channel it runs on. It never attaches the channel;
// that is the lifecycle manager's job.
type FeatureChannel struct {
	feature   RoomFeature
	channel   realtime.Channel
	emitter   *DiscontinuityEmitter
	lifecycle presenceGate
}

// NewFeatureChannel creates the feature channel together with its discontinuity emitter.
func NewFeatureChannel(feature RoomFeature, channel realtime.Channel, lifecycle presenceGate) *FeatureChannel {
	return &FeatureChannel{
		feature:   feature,
		channel:   channel,
		emitter:   NewDiscontinuityEmitter(feature),
		lifecycle: lifecycle,
	}
}

// Feature returns the feature this channel serves.
func (fc *FeatureChannel) Feature() RoomFeature {
	return fc.feature
}

// Channel returns the underlying realtime channel.
func (fc *FeatureChannel) Channel() realtime.Channel {
	return fc.channel
}

// SubscribeToDiscontinuities registers for discontinuities detected from now on.
func (fc *FeatureChannel) SubscribeToDiscontinuities() *Subscription[DiscontinuityEvent] {
	return fc.emitter.Subscribe()
}

// WaitToBeAbleToPerformPresenceOperations runs the room's readiness gate for this feature.
func (fc *FeatureChannel) WaitToBeAbleToPerformPresenceOperations(ctx context.Context) error {
	return fc.lifecycle.WaitToBeAbleToPerformPresenceOperations(ctx, fc.feature)
}

func (fc *FeatureChannel) contributor() *Contributor {
	return &Contributor{Feature: fc.feature, Channel: fc.channel, Discontinuities: fc.emitter}
}
