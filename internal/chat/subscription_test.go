package chat

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBroadcasterPreservesOrder(t *testing.T) {
	var b broadcaster[int]
	first := b.subscribe()
	second := b.subscribe()

	const n = 1000
	for i := range n {
		b.publish(i)
	}

	for _, sub := range []*Subscription[int]{first, second} {
		for i := range n {
			if got := mustReceive(t, sub); got != i {
				t.Fatalf("event %d = %d", i, got)
			}
		}
	}
}

func TestUnsubscribeClosesEvents(t *testing.T) {
	var b broadcaster[string]
	sub := b.subscribe()
	b.publish("dropped")

	sub.Unsubscribe()
	sub.Unsubscribe()

	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-sub.Events():
			if !ok {
				if n := b.publish("after"); n != 0 {
					t.Fatalf("publish reached %d subscribers after unsubscribe", n)
				}
				return
			}
		case <-deadline:
			t.Fatal("events not closed")
		}
	}
}

func TestSubscribeAfterClose(t *testing.T) {
	var b broadcaster[int]
	b.close()

	sub := b.subscribe()
	select {
	case _, ok := <-sub.Events():
		if ok {
			t.Fatal("expected closed subscription")
		}
	case <-time.After(time.Second):
		t.Fatal("subscription not closed")
	}
}

func TestDiscontinuityEmitterNoReplay(t *testing.T) {
	e := NewDiscontinuityEmitter(FeatureTyping)
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return fixed }

	early := e.Subscribe()
	first := errors.New("first")
	if n := e.Emit(first); n != 1 {
		t.Fatalf("emitted to %d subscribers, want 1", n)
	}
	late := e.Subscribe()
	second := errors.New("second")
	e.Emit(second)

	ev := mustReceive(t, early)
	if ev.Err != first || ev.Feature != FeatureTyping || !ev.At.Equal(fixed) {
		t.Fatalf("unexpected event %+v", ev)
	}
	if ev := mustReceive(t, early); ev.Err != second {
		t.Fatalf("expected second event, got %v", ev.Err)
	}
	if ev := mustReceive(t, late); ev.Err != second {
		t.Fatalf("late subscriber got %v, want only the second event", ev.Err)
	}
	mustNotReceive(t, late)

	e.Close()
	if _, ok := <-early.Events(); ok {
		t.Fatal("expected closed subscription after Close")
	}
}

func TestOperationResolveTwicePanics(t *testing.T) {
	op := newOperation()
	op.resolve(nil)

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on second resolve")
		}
	}()
	op.resolve(errors.New("again"))
}

func TestOperationWait(t *testing.T) {
	op := newOperation()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := op.wait(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	want := errors.New("done")
	op.resolve(want)
	if err := op.wait(context.Background()); err != want {
		t.Fatalf("wait = %v, want %v", err, want)
	}
}
