package core

import (
	"sort"

	"github.com/vovakirdan/wirechat/internal/proto"
)

type presenceEntry struct {
	msg   proto.PresenceMessage
	owner *Client
}

// Channel groups clients attached to the same channel name and its presence set.
type Channel struct {
	Name     string
	clients  map[*Client]struct{}
	presence map[string]presenceEntry
}

// NewChannel constructs a channel with no clients.
func NewChannel(name string) *Channel {
	return &Channel{
		Name:     name,
		clients:  make(map[*Client]struct{}),
		presence: make(map[string]presenceEntry),
	}
}

// AddClient inserts a client into the channel. Returns true if newly added.
func (ch *Channel) AddClient(c *Client) bool {
	if _, exists := ch.clients[c]; exists {
		return false
	}
	ch.clients[c] = struct{}{}
	return true
}

// RemoveClient deletes a client from the channel. Returns true if removed.
func (ch *Channel) RemoveClient(c *Client) bool {
	if _, exists := ch.clients[c]; !exists {
		return false
	}
	delete(ch.clients, c)
	return true
}

// HasClient reports whether c is attached.
func (ch *Channel) HasClient(c *Client) bool {
	_, ok := ch.clients[c]
	return ok
}

// Broadcast sends a frame to all attached clients and returns how many were dropped.
func (ch *Channel) Broadcast(f *proto.Frame) int {
	dropped := 0
	for client := range ch.clients {
		select {
		case client.Events <- f:
		default:
			// Drop if slow consumer.
			dropped++
		}
	}
	return dropped
}

// SetPresence records a presence change and returns false for a leave of a non-member.
func (ch *Channel) SetPresence(owner *Client, msg proto.PresenceMessage) bool {
	if msg.Action == proto.PresenceLeave {
		entry, ok := ch.presence[msg.ClientID]
		if !ok || entry.owner != owner {
			return false
		}
		delete(ch.presence, msg.ClientID)
		return true
	}
	msg.Action = proto.PresencePresent
	ch.presence[msg.ClientID] = presenceEntry{msg: msg, owner: owner}
	return true
}

// DropPresence removes every presence entry owned by c and returns leave messages for them.
func (ch *Channel) DropPresence(c *Client, ts int64) []proto.PresenceMessage {
	var leaves []proto.PresenceMessage
	for id, entry := range ch.presence {
		if entry.owner != c {
			continue
		}
		delete(ch.presence, id)
		leaves = append(leaves, proto.PresenceMessage{
			Action:    proto.PresenceLeave,
			ClientID:  id,
			Data:      entry.msg.Data,
			Timestamp: ts,
		})
	}
	sort.Slice(leaves, func(i, j int) bool { return leaves[i].ClientID < leaves[j].ClientID })
	return leaves
}

// Members returns the presence set ordered by client id.
func (ch *Channel) Members() []proto.PresenceMessage {
	members := make([]proto.PresenceMessage, 0, len(ch.presence))
	for _, entry := range ch.presence {
		members = append(members, entry.msg)
	}
	sort.Slice(members, func(i, j int) bool { return members[i].ClientID < members[j].ClientID })
	return members
}

// Occupancy reports the number of attached clients and presence members.
func (ch *Channel) Occupancy() proto.Occupancy {
	return proto.Occupancy{
		Connections:     len(ch.clients),
		PresenceMembers: len(ch.presence),
	}
}

// Empty returns true if no clients are attached.
func (ch *Channel) Empty() bool {
	return len(ch.clients) == 0
}
