package core

import (
	"context"
	"testing"
	"time"

	"github.com/vovakirdan/wirechat/internal/proto"
)

func mustFrame(t *testing.T, ch <-chan *proto.Frame, match func(*proto.Frame) bool) *proto.Frame {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case f, ok := <-ch:
			if !ok {
				t.Fatal("events channel closed")
			}
			if f != nil && match(f) {
				return f
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatal("expected frame not received")
	return nil
}

func isAction(action proto.Action) func(*proto.Frame) bool {
	return func(f *proto.Frame) bool { return f.Action == action }
}

func isMessage(name string) func(*proto.Frame) bool {
	return func(f *proto.Frame) bool {
		return f.Action == proto.ActionMessage && len(f.Messages) > 0 && f.Messages[0].Name == name
	}
}

func startHub(t *testing.T, opts Options) *Hub {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := NewHub(opts)
	go hub.Run(ctx)
	return hub
}

func mustHandle(t *testing.T, hub *Hub, c *Client, f *proto.Frame) *proto.Frame {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	reply, err := hub.Handle(ctx, c, f)
	if err != nil {
		t.Fatalf("handle %s: %v", f.Action, err)
	}
	return reply
}
