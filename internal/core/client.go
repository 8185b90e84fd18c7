package core

import "github.com/vovakirdan/wirechat/internal/proto"

// Client is a connected realtime client as seen by the hub.
type Client struct {
	// ID identifies the connection.
	ID string
	// ClientID is the authenticated identity used in messages and presence.
	ClientID string
	// Events receives frames pushed by the hub. It is closed when the client is unregistered.
	Events chan *proto.Frame

	channels map[string]struct{}
}

// NewClient constructs a client with an initialized event buffer.
func NewClient(id, clientID string, buffer int) *Client {
	if clientID == "" {
		clientID = id
	}
	if buffer <= 0 {
		buffer = 64
	}
	return &Client{
		ID:       id,
		ClientID: clientID,
		Events:   make(chan *proto.Frame, buffer),
		channels: make(map[string]struct{}),
	}
}
