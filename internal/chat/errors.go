package chat

import (
	"errors"
	"fmt"
)

// Error codes for chat errors.
const (
	ErrCodePresenceRequiresAttach = "presence_operation_requires_room_attach"
	ErrCodePresenceDisallowed     = "presence_operation_disallowed_for_current_room_status"
	ErrCodeAttachFailed           = "room_attach_failed"
	ErrCodeDetachFailed           = "room_detach_failed"
	ErrCodeRoomReleased           = "room_released"
	ErrCodeRoomFailed             = "room_in_failed_state"
	ErrCodeRoomOptionsMismatch    = "room_options_mismatch"
	ErrCodeFeatureDisabled        = "feature_disabled"
	ErrCodeInvalidArgument        = "invalid_argument"
)

// Sentinels matched by errors.Is against *Error values with the same code.
var (
	ErrPresenceRequiresAttach = errors.New("presence operation requires room attach")
	ErrPresenceDisallowed     = errors.New("presence operation disallowed for current room status")
	ErrAttachFailed           = errors.New("room attach failed")
	ErrDetachFailed           = errors.New("room detach failed")
	ErrRoomReleased           = errors.New("room released")
	ErrRoomFailed             = errors.New("room in failed state")
	ErrRoomOptionsMismatch    = errors.New("room options mismatch")
	ErrFeatureDisabled        = errors.New("feature disabled")
	ErrInvalidArgument        = errors.New("invalid argument")
)

var sentinels = map[string]error{
	ErrCodePresenceRequiresAttach: ErrPresenceRequiresAttach,
	ErrCodePresenceDisallowed:     ErrPresenceDisallowed,
	ErrCodeAttachFailed:           ErrAttachFailed,
	ErrCodeDetachFailed:           ErrDetachFailed,
	ErrCodeRoomReleased:           ErrRoomReleased,
	ErrCodeRoomFailed:             ErrRoomFailed,
	ErrCodeRoomOptionsMismatch:    ErrRoomOptionsMismatch,
	ErrCodeFeatureDisabled:        ErrFeatureDisabled,
	ErrCodeInvalidArgument:        ErrInvalidArgument,
}

// Error is a classified chat error. Feature and Status are set where the code is about a
// feature request or an observed room status.
type Error struct {
	Code    string
	Message string
	Feature RoomFeature
	Status  RoomStatus
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel registered for the error code.
func (e *Error) Is(target error) bool {
	sentinel, ok := sentinels[e.Code]
	return ok && sentinel == target
}

func presenceRequiresAttachError(feature RoomFeature) *Error {
	return &Error{
		Code:    ErrCodePresenceRequiresAttach,
		Message: fmt.Sprintf("to perform this %s operation, you must first attach the room", feature),
		Feature: feature,
		Status:  StatusDetached,
	}
}

func presenceDisallowedError(feature RoomFeature, status RoomStatus) *Error {
	return &Error{
		Code:    ErrCodePresenceDisallowed,
		Message: fmt.Sprintf("%s operation is not allowed while the room is %s", feature, status),
		Feature: feature,
		Status:  status,
	}
}

func attachFailedError(cause error) *Error {
	return &Error{Code: ErrCodeAttachFailed, Message: "room attach failed", Status: StatusFailed, Err: cause}
}

func detachFailedError(cause error) *Error {
	return &Error{Code: ErrCodeDetachFailed, Message: "room detach failed", Status: StatusFailed, Err: cause}
}

func roomReleasedError() *Error {
	return &Error{Code: ErrCodeRoomReleased, Message: "room has been released", Status: StatusReleased}
}

func roomFailedError(cause error) *Error {
	return &Error{Code: ErrCodeRoomFailed, Message: "cannot detach a room in the failed state", Status: StatusFailed, Err: cause}
}

func roomOptionsMismatchError(roomID string) *Error {
	return &Error{Code: ErrCodeRoomOptionsMismatch, Message: fmt.Sprintf("room %q already exists with different options", roomID)}
}

func featureDisabledError(feature RoomFeature) *Error {
	return &Error{
		Code:    ErrCodeFeatureDisabled,
		Message: fmt.Sprintf("%s is not enabled for this room", feature),
		Feature: feature,
	}
}

func invalidArgumentError(feature RoomFeature, msg string) *Error {
	return &Error{Code: ErrCodeInvalidArgument, Message: msg, Feature: feature}
}
