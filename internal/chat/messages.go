package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat/internal/proto"
)

const messageEventName = "chat.message"

// Message is a chat message.
type Message struct {
	ID        string
	ClientID  string
	Text      string
	Metadata  json.RawMessage
	Headers   map[string]string
	CreatedAt time.Time
}

// SendMessageParams describes a message to send.
type SendMessageParams struct {
	Text     string
	Metadata json.RawMessage
	Headers  map[string]string
}

type messagePayload struct {
	Text     string          `json:"text"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

// Messages sends and receives chat messages.
type Messages struct {
	fc   *FeatureChannel
	log  *zerolog.Logger
	subs broadcaster[Message]
	off  func()
}

func newMessages(fc *FeatureChannel, log *zerolog.Logger) *Messages {
	m := &Messages{fc: fc, log: log}
	m.off = fc.Channel().Subscribe(m.onMessage)
	return m
}

// Channel returns the feature channel carrying messages.
func (m *Messages) Channel() *FeatureChannel {
	return m.fc
}

// Send publishes a message and returns it as stored by the server.
func (m *Messages) Send(ctx context.Context, params SendMessageParams) (*Message, error) {
	if params.Text == "" {
		return nil, invalidArgumentError(FeatureMessages, "message text is required")
	}
	data, err := json.Marshal(messagePayload{Text: params.Text, Metadata: params.Metadata})
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	sent, err := m.fc.Channel().Publish(ctx, messageEventName, data, params.Headers)
	if err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	msg, err := decodeMessage(sent)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// Subscribe delivers messages received from now on.
func (m *Messages) Subscribe() *Subscription[Message] {
	return m.subs.subscribe()
}

// SubscribeToDiscontinuities reports lost message continuity.
func (m *Messages) SubscribeToDiscontinuities() *Subscription[DiscontinuityEvent] {
	return m.fc.SubscribeToDiscontinuities()
}

func (m *Messages) onMessage(pm *proto.Message) {
	// Occupancy and other meta messages share the channel.
	if pm.Name != messageEventName {
		return
	}
	msg, err := decodeMessage(pm)
	if err != nil {
		m.log.Debug().Err(err).Str("message_id", pm.ID).Msg("dropping undecodable chat message")
		return
	}
	m.subs.publish(msg)
}

func (m *Messages) close() {
	m.off()
	m.subs.close()
}

func decodeMessage(pm *proto.Message) (Message, error) {
	var payload messagePayload
	if len(pm.Data) > 0 {
		if err := json.Unmarshal(pm.Data, &payload); err != nil {
			return Message{}, fmt.Errorf("decode message %s: %w", pm.ID, err)
		}
	}
	return Message{
		ID:        pm.ID,
		ClientID:  pm.ClientID,
		Text:      payload.Text,
		Metadata:  payload.Metadata,
		Headers:   pm.Extras,
		CreatedAt: time.UnixMilli(pm.Timestamp),
	}, nil
}
