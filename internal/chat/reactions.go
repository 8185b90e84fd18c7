package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat/internal/proto"
)

const reactionEventName = "roomReaction"

// Reaction is an ephemeral room-level reaction such as a like.
type Reaction struct {
	Type      string
	ClientID  string
	Metadata  json.RawMessage
	Headers   map[string]string
	CreatedAt time.Time
}

// SendReactionParams describes a reaction to send.
type SendReactionParams struct {
	Type     string
	Metadata json.RawMessage
	Headers  map[string]string
}

type reactionPayload struct {
	Type     string          `json:"type"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

// Reactions sends and receives room reactions. Reactions are not persisted.
type Reactions struct {
	fc   *FeatureChannel
	log  *zerolog.Logger
	subs broadcaster[Reaction]
	off  func()
}

func newReactions(fc *FeatureChannel, log *zerolog.Logger) *Reactions {
	r := &Reactions{fc: fc, log: log}
	r.off = fc.Channel().Subscribe(r.onMessage)
	return r
}

// Channel returns the feature channel carrying reactions.
func (r *Reactions) Channel() *FeatureChannel {
	return r.fc
}

// Send publishes a reaction.
func (r *Reactions) Send(ctx context.Context, params SendReactionParams) error {
	if params.Type == "" {
		return invalidArgumentError(FeatureReactions, "reaction type is required")
	}
	data, err := json.Marshal(reactionPayload{Type: params.Type, Metadata: params.Metadata})
	if err != nil {
		return fmt.Errorf("encode reaction: %w", err)
	}
	if _, err := r.fc.Channel().Publish(ctx, reactionEventName, data, params.Headers); err != nil {
		return fmt.Errorf("send reaction: %w", err)
	}
	return nil
}

// Subscribe delivers reactions received from now on.
func (r *Reactions) Subscribe() *Subscription[Reaction] {
	return r.subs.subscribe()
}

// SubscribeToDiscontinuities reports lost reaction continuity.
func (r *Reactions) SubscribeToDiscontinuities() *Subscription[DiscontinuityEvent] {
	return r.fc.SubscribeToDiscontinuities()
}

func (r *Reactions) onMessage(pm *proto.Message) {
	if pm.Name != reactionEventName {
		return
	}
	var payload reactionPayload
	if err := json.Unmarshal(pm.Data, &payload); err != nil {
		r.log.Debug().Err(err).Str("message_id", pm.ID).Msg("dropping undecodable reaction")
		return
	}
	if payload.Type == "" {
		r.log.Debug().Str("message_id", pm.ID).Msg("dropping reaction without type")
		return
	}
	r.subs.publish(Reaction{
		Type:      payload.Type,
		ClientID:  pm.ClientID,
		Metadata:  payload.Metadata,
		Headers:   pm.Extras,
		CreatedAt: time.UnixMilli(pm.Timestamp),
	})
}

func (r *Reactions) close() {
	r.off()
	r.subs.close()
}
