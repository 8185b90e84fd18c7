package chat

import "fmt"

// RoomStatus is the aggregate connectivity state of a room.
type RoomStatus int

const (
	StatusInitialized RoomStatus = iota
	StatusAttaching
	StatusAttached
	StatusDetaching
	StatusDetached
	StatusSuspended
	StatusFailed
	StatusReleasing
	StatusReleased
)

// AllStatuses lists every status.
func AllStatuses() []RoomStatus {
	return []RoomStatus{
		StatusInitialized,
		StatusAttaching,
		StatusAttached,
		StatusDetaching,
		StatusDetached,
		StatusSuspended,
		StatusFailed,
		StatusReleasing,
		StatusReleased,
	}
}

func (s RoomStatus) String() string {
	switch s {
	case StatusInitialized:
		return "initialized"
	case StatusAttaching:
		return "attaching"
	case StatusAttached:
		return "attached"
	case StatusDetaching:
		return "detaching"
	case StatusDetached:
		return "detached"
	case StatusSuspended:
		return "suspended"
	case StatusFailed:
		return "failed"
	case StatusReleasing:
		return "releasing"
	case StatusReleased:
		return "released"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// StatusChange describes a room status transition.
type StatusChange struct {
	Current  RoomStatus
	Previous RoomStatus
	// Err is the reason for suspended and failed statuses.
	Err error
}
