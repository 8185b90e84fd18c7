package core

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/vovakirdan/wirechat/internal/proto"
)

func benchmarkChannelBroadcast(b *testing.B, recipients int) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(Options{ClientBuffer: 256})
	go hub.Run(ctx)

	attach := func(c *Client) {
		hub.RegisterClient(c)
		if _, err := hub.Handle(ctx, c, &proto.Frame{Action: proto.ActionAttach, ID: c.ID, Channel: "bench"}); err != nil {
			b.Fatalf("attach: %v", err)
		}
	}

	sender := NewClient("sender", "sender", 256)
	attach(sender)
	go func() {
		for range sender.Events {
		}
	}()

	clients := make([]*Client, 0, recipients)
	for i := range recipients {
		c := NewClient(fmt.Sprintf("c%d", i), "client", 256)
		attach(c)
		clients = append(clients, c)
	}

	// Drain events for all but the first recipient to avoid channel backpressure.
	target := clients[0]
	for _, c := range clients[1:] {
		go func(cl *Client) {
			for range cl.Events {
			}
		}(c)
	}
	for len(target.Events) > 0 {
		<-target.Events
	}

	frame := &proto.Frame{
		Action:   proto.ActionMessage,
		Channel:  "bench",
		Messages: []proto.Message{{Name: "chat.message", Data: json.RawMessage(`"payload"`)}},
	}

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := hub.Handle(ctx, sender, frame); err != nil {
			b.Fatalf("publish: %v", err)
		}
		<-target.Events
	}
}

func BenchmarkChannelBroadcast_10(b *testing.B)  { benchmarkChannelBroadcast(b, 10) }
func BenchmarkChannelBroadcast_100(b *testing.B) { benchmarkChannelBroadcast(b, 100) }
func BenchmarkChannelBroadcast_500(b *testing.B) { benchmarkChannelBroadcast(b, 500) }
