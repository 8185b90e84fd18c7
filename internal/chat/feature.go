// Package chat layers chat rooms over realtime channels. A room multiplexes its features
// onto shared channels and coordinates their attach/detach lifecycle, so presence-class
// operations never attach a channel behind the room's back.
package chat

import "fmt"

// RoomFeature is one of the independent features of a room.
type RoomFeature int

const (
	FeatureMessages RoomFeature = iota
	FeaturePresence
	FeatureReactions
	FeatureOccupancy
	FeatureTyping
)

const channelSeparator = "::$chat::$"

// AllFeatures lists every feature.
func AllFeatures() []RoomFeature {
	return []RoomFeature{FeatureMessages, FeaturePresence, FeatureReactions, FeatureOccupancy, FeatureTyping}
}

// ChannelNameForRoomID returns the name of the channel carrying this feature for roomID.
// Messages, presence and occupancy share one channel.
func (f RoomFeature) ChannelNameForRoomID(roomID string) string {
	return roomID + channelSeparator + f.suffix()
}

func (f RoomFeature) suffix() string {
	switch f {
	case FeatureMessages, FeaturePresence, FeatureOccupancy:
		return "chatMessages"
	case FeatureReactions:
		return "reactions"
	case FeatureTyping:
		return "typingIndicators"
	default:
		panic(fmt.Sprintf("chat: unknown room feature %d", int(f)))
	}
}

func (f RoomFeature) String() string {
	switch f {
	case FeatureMessages:
		return "messages"
	case FeaturePresence:
		return "presence"
	case FeatureReactions:
		return "reactions"
	case FeatureOccupancy:
		return "occupancy"
	case FeatureTyping:
		return "typing"
	default:
		return fmt.Sprintf("feature(%d)", int(f))
	}
}
