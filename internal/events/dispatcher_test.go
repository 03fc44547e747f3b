package events

import (
	"context"
	"errors"
	"testing"
)

func TestDispatcher_DeliversToAllHandlersAndJoinsErrors(t *testing.T) {
	d := NewInMemoryDispatcher()
	boom := errors.New("boom")

	var calls []string
	d.Subscribe(EventSessionStarted, func(_ context.Context, e Event) error {
		calls = append(calls, "first:"+e.AccountID)
		return boom
	})
	d.Subscribe(EventSessionStarted, func(_ context.Context, e Event) error {
		calls = append(calls, "second:"+e.AccountID)
		return nil
	})
	d.Subscribe(EventSessionEnded, func(context.Context, Event) error {
		t.Fatal("unrelated handler invoked")
		return nil
	})

	err := d.Publish(context.Background(), New(EventSessionStarted, "u1", SessionPayload{TokenID: "t"}))
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined handler error, got %v", err)
	}
	if len(calls) != 2 || calls[0] != "first:u1" || calls[1] != "second:u1" {
		t.Fatalf("unexpected calls: %v", calls)
	}
}

func TestDispatcher_NoListeners(t *testing.T) {
	d := NewInMemoryDispatcher()
	if err := d.Publish(context.Background(), New(EventOperatorAction, "", nil)); err != nil {
		t.Fatalf("Publish: %v", err)
	}
}
