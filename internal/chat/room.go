package chat

import (
	"context"
	"sync"

	wlog "github.com/vovakirdan/wirechat/internal/log"
	"github.com/vovakirdan/wirechat/internal/realtime"
)

// RoomOptions selects the optional features of a room. Messages are always enabled.
type RoomOptions struct {
	Presence  bool
	Reactions bool
	Occupancy bool
	Typing    bool
}

// AllFeaturesEnabled enables every optional feature.
var AllFeaturesEnabled = RoomOptions{Presence: true, Reactions: true, Occupancy: true, Typing: true}

// Room is a chat room. Its features share the room's lifecycle: attach and detach apply to
// all of them at once.
type Room struct {
	ID string

	options   RoomOptions
	lifecycle *LifecycleManager

	messages  *Messages
	presence  *Presence
	reactions *Reactions
	occupancy *Occupancy
	typing    *Typing
}

func newRoom(roomID string, opts RoomOptions, channels realtime.Channels, lo LifecycleOptions) *Room {
	r := &Room{ID: roomID, options: opts}

	logger := lo.Logger
	if logger == nil {
		logger = wlog.Nop()
	}
	roomLog := logger.With().Str("room_id", roomID).Logger()

	var fcs []*FeatureChannel
	feature := func(f RoomFeature) *FeatureChannel {
		fc := NewFeatureChannel(f, channels.Get(f.ChannelNameForRoomID(roomID)), nil)
		fcs = append(fcs, fc)
		return fc
	}

	r.messages = newMessages(feature(FeatureMessages), &roomLog)
	if opts.Presence {
		r.presence = newPresence(feature(FeaturePresence))
	}
	if opts.Reactions {
		r.reactions = newReactions(feature(FeatureReactions), &roomLog)
	}
	if opts.Occupancy {
		r.occupancy = newOccupancy(feature(FeatureOccupancy), &roomLog)
	}
	if opts.Typing {
		r.typing = newTyping(feature(FeatureTyping))
	}

	contributors := make([]*Contributor, 0, len(fcs))
	for _, fc := range fcs {
		contributors = append(contributors, fc.contributor())
	}
	r.lifecycle = NewLifecycleManager(roomID, contributors, lo)
	for _, fc := range fcs {
		fc.lifecycle = r.lifecycle
	}
	r.lifecycle.afterRelease(r.closeFeatures)
	return r
}

// Options returns the options the room was created with.
func (r *Room) Options() RoomOptions {
	return r.options
}

// Attach attaches every feature channel of the room.
func (r *Room) Attach(ctx context.Context) error {
	return r.lifecycle.Attach(ctx)
}

// Detach detaches every feature channel of the room.
func (r *Room) Detach(ctx context.Context) error {
	return r.lifecycle.Detach(ctx)
}

// Release detaches the room for good and ends all of its subscriptions. If ctx ends first
// the release still completes in the background.
func (r *Room) Release(ctx context.Context) error {
	return r.lifecycle.Release(ctx)
}

func (r *Room) closeFeatures() {
	r.messages.close()
	if r.presence != nil {
		r.presence.close()
	}
	if r.reactions != nil {
		r.reactions.close()
	}
	if r.occupancy != nil {
		r.occupancy.close()
	}
	if r.typing != nil {
		r.typing.close()
	}
}

// Status returns the current room status.
func (r *Room) Status() RoomStatus {
	return r.lifecycle.Status()
}

// Error returns the reason for the current status, if any.
func (r *Room) Error() error {
	return r.lifecycle.Error()
}

// OnStatusChange subscribes to room status changes.
func (r *Room) OnStatusChange() *Subscription[StatusChange] {
	return r.lifecycle.OnStatusChange()
}

// Messages returns the messages feature.
func (r *Room) Messages() *Messages {
	return r.messages
}

// Presence returns the presence feature.
func (r *Room) Presence() (*Presence, error) {
	if r.presence == nil {
		return nil, featureDisabledError(FeaturePresence)
	}
	return r.presence, nil
}

// Reactions returns the reactions feature.
func (r *Room) Reactions() (*Reactions, error) {
	if r.reactions == nil {
		return nil, featureDisabledError(FeatureReactions)
	}
	return r.reactions, nil
}

// Occupancy returns the occupancy feature.
func (r *Room) Occupancy() (*Occupancy, error) {
	if r.occupancy == nil {
		return nil, featureDisabledError(FeatureOccupancy)
	}
	return r.occupancy, nil
}

// Typing returns the typing indicators feature.
func (r *Room) Typing() (*Typing, error) {
	if r.typing == nil {
		return nil, featureDisabledError(FeatureTyping)
	}
	return r.typing, nil
}

// Rooms keeps one Room per room ID for a connection. A room being released keeps its
// entry until the release finishes, so a new room for the same ID never shares channels
// with a release in flight.
type Rooms struct {
	channels realtime.Channels
	opts     LifecycleOptions

	mu        sync.Mutex
	rooms     map[string]*Room
	releasing map[string]*Room
}

// NewRooms creates a registry whose rooms take their channels from channels.
func NewRooms(channels realtime.Channels, opts LifecycleOptions) *Rooms {
	return &Rooms{
		channels:  channels,
		opts:      opts,
		rooms:     make(map[string]*Room),
		releasing: make(map[string]*Room),
	}
}

// Get returns the room with the given ID, creating it on first use. Asking for an existing
// room with different options fails with ErrRoomOptionsMismatch. If the room is being
// released, Get waits for the release and returns a new room.
func (rs *Rooms) Get(ctx context.Context, roomID string, opts RoomOptions) (*Room, error) {
	if roomID == "" {
		return nil, invalidArgumentError(FeatureMessages, "room id is required")
	}

	for {
		rs.mu.Lock()
		r, ok := rs.rooms[roomID]
		if !ok {
			r = newRoom(roomID, opts, rs.channels, rs.opts)
			rs.rooms[roomID] = r
			rs.mu.Unlock()
			return r, nil
		}
		if !rs.releasingLocked(roomID, r) {
			rs.mu.Unlock()
			if r.options != opts {
				return nil, roomOptionsMismatchError(roomID)
			}
			return r, nil
		}
		rs.mu.Unlock()

		// Joins the release in flight, or returns at once if it already finished.
		if err := r.Release(ctx); err != nil {
			return nil, err
		}
		rs.forget(roomID, r)
	}
}

// Release releases the room and forgets it. Unknown rooms are ignored.
func (rs *Rooms) Release(ctx context.Context, roomID string) error {
	rs.mu.Lock()
	r, ok := rs.rooms[roomID]
	if ok {
		rs.releasing[roomID] = r
	}
	rs.mu.Unlock()

	if !ok {
		return nil
	}
	if err := r.Release(ctx); err != nil {
		return err
	}
	rs.forget(roomID, r)
	return nil
}

func (rs *Rooms) releasingLocked(roomID string, r *Room) bool {
	if rs.releasing[roomID] == r {
		return true
	}
	status := r.Status()
	return status == StatusReleasing || status == StatusReleased
}

// forget drops r's entries unless they were replaced meanwhile.
func (rs *Rooms) forget(roomID string, r *Room) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.rooms[roomID] == r {
		delete(rs.rooms, roomID)
	}
	if rs.releasing[roomID] == r {
		delete(rs.releasing, roomID)
	}
}
