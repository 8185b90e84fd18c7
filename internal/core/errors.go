package core

import (
	"errors"

	"github.com/vovakirdan/wirechat/internal/proto"
)

// Error codes for hub errors.
const (
	ErrCodeBadRequest  = "bad_request"
	ErrCodeNotAttached = "not_attached"
	ErrCodeSuspended   = "channel_suspended"
	ErrCodeReattached  = "channel_reattached"
)

var (
	// ErrHubStopped is returned when the hub loop is no longer running.
	ErrHubStopped = errors.New("hub stopped")
	ErrBadRequest = errors.New("bad request")
)

func protoError(code, msg string) *proto.Error {
	return &proto.Error{Code: code, Msg: msg}
}

func nack(f *proto.Frame, code, msg string) *proto.Frame {
	return &proto.Frame{
		Action:  proto.ActionNack,
		ID:      f.ID,
		Channel: f.Channel,
		Error:   protoError(code, msg),
	}
}
