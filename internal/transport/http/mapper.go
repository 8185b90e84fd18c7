package http

import (
	"encoding/json"
	"time"

	"github.com/vovakirdan/wirechat/internal/core"
	"github.com/vovakirdan/wirechat/internal/proto"
	"github.com/vovakirdan/wirechat/internal/store"
)

// MessageResponse is a persisted message in API responses.
type MessageResponse struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	ClientID  string          `json:"clientId"`
	Data      json.RawMessage `json:"data,omitempty"`
	CreatedAt string          `json:"createdAt"`
}

func messageResponse(m *store.Message) MessageResponse {
	resp := MessageResponse{
		ID:        m.MessageID,
		Name:      m.Name,
		ClientID:  m.ClientID,
		CreatedAt: m.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if json.Valid(m.Data) {
		resp.Data = json.RawMessage(m.Data)
	}
	return resp
}

// validateInbound rejects frames the hub should never see. A nil result means the frame
// can be handed to the hub.
func validateInbound(f *proto.Frame) *proto.Error {
	if f.ID == "" {
		return &proto.Error{Code: core.ErrCodeBadRequest, Msg: "id is required"}
	}
	switch f.Action {
	case proto.ActionAttach, proto.ActionDetach, proto.ActionMessage, proto.ActionPresence, proto.ActionSync:
	default:
		return &proto.Error{Code: "invalid_message", Msg: "unknown action " + string(f.Action)}
	}
	if f.Channel == "" {
		return &proto.Error{Code: core.ErrCodeBadRequest, Msg: "channel is required"}
	}
	return nil
}

// rateLimited reports whether the action counts against the per-connection limit.
func rateLimited(action proto.Action) bool {
	return action == proto.ActionMessage || action == proto.ActionPresence
}
