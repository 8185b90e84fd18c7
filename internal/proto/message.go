package proto

import "encoding/json"

const ProtocolVersion = 1

// Action identifies what a frame asks for or reports.
type Action string

const (
	// Client -> server requests. Each carries an ID and is answered with ack/nack or the
	// matching state frame.
	ActionAttach   Action = "attach"
	ActionDetach   Action = "detach"
	ActionMessage  Action = "message"
	ActionPresence Action = "presence"
	ActionSync     Action = "sync"

	// Server -> client.
	ActionAttached Action = "attached"
	ActionDetached Action = "detached"
	ActionAck      Action = "ack"
	ActionNack     Action = "nack"
	ActionError    Action = "error"
)

// Frame is the envelope exchanged in both directions.
type Frame struct {
	Action   Action            `json:"action"`
	ID       string            `json:"id,omitempty"`
	Channel  string            `json:"channel,omitempty"`
	Messages []Message         `json:"messages,omitempty"`
	Presence []PresenceMessage `json:"presence,omitempty"`
	// Resumed is set on attached frames when the server kept the channel's continuity.
	Resumed bool   `json:"resumed,omitempty"`
	Error   *Error `json:"error,omitempty"`
}

// Message is a published channel message.
type Message struct {
	ID        string            `json:"id,omitempty"`
	Name      string            `json:"name"`
	ClientID  string            `json:"clientId,omitempty"`
	Data      json.RawMessage   `json:"data,omitempty"`
	Extras    map[string]string `json:"extras,omitempty"`
	Timestamp int64             `json:"ts,omitempty"`
}

// PresenceAction is the kind of presence change.
type PresenceAction string

const (
	PresenceEnter   PresenceAction = "enter"
	PresenceUpdate  PresenceAction = "update"
	PresenceLeave   PresenceAction = "leave"
	PresencePresent PresenceAction = "present"
)

// PresenceMessage describes a presence change or a member snapshot.
type PresenceMessage struct {
	Action    PresenceAction  `json:"action"`
	ClientID  string          `json:"clientId"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"ts,omitempty"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Msg
}

// Reserved message names.
const (
	MetaOccupancy = "[meta]occupancy"
)

// Occupancy is the payload of MetaOccupancy messages.
type Occupancy struct {
	Connections     int `json:"connections"`
	PresenceMembers int `json:"presenceMembers"`
}
