package events

import (
	"testing"
	"time"

	"github.com/burrowfs/burrow/internal/storage"
)

func TestBroadcasterSubscribeUnsubscribe(t *testing.T) {
	b := NewBroadcaster()

	sub1 := b.Subscribe("alice")
	sub2 := b.Subscribe("bob", storage.Public)

	if b.Count() != 2 {
		t.Fatalf("expected 2 subscribers, got %d", b.Count())
	}

	sub1.Unsubscribe()
	if b.Count() != 1 {
		t.Fatalf("expected 1 subscriber after unsubscribe, got %d", b.Count())
	}

	sub2.Unsubscribe()
	if b.Count() != 0 {
		t.Fatalf("expected 0 subscribers, got %d", b.Count())
	}

	// Double unsubscribe must not panic on a closed channel
	sub2.Unsubscribe()
}

func TestBroadcasterPublish(t *testing.T) {
	b := NewBroadcaster()
	sub := b.Subscribe("alice")
	defer sub.Unsubscribe()

	b.Publish(Event{
		Type:   EventUploaded,
		Tenant: "alice",
		Path:   "docs/report.txt",
		Size:   100,
	})

	select {
	case received := <-sub.C():
		if received.Type != EventUploaded {
			t.Errorf("expected type %s, got %s", EventUploaded, received.Type)
		}
		if received.Path != "docs/report.txt" {
			t.Errorf("expected path docs/report.txt, got %s", received.Path)
		}
		if received.Timestamp == 0 {
			t.Error("expected non-zero timestamp")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBroadcasterTenantFiltering(t *testing.T) {
	b := NewBroadcaster()
	alice := b.Subscribe("alice", storage.Public)
	bob := b.Subscribe("bob")
	defer alice.Unsubscribe()
	defer bob.Unsubscribe()

	b.Publish(Event{Type: EventDeleted, Tenant: "alice", Path: "secret.txt"})
	b.Publish(Event{Type: EventCreated, Tenant: string(storage.Public), Path: "shared"})

	select {
	case received := <-alice.C():
		if received.Tenant != "alice" {
			t.Errorf("alice: expected her own event first, got tenant %s", received.Tenant)
		}
	case <-time.After(time.Second):
		t.Fatal("alice: timed out")
	}
	select {
	case received := <-alice.C():
		if received.Tenant != string(storage.Public) {
			t.Errorf("alice: expected public event, got tenant %s", received.Tenant)
		}
	case <-time.After(time.Second):
		t.Fatal("alice: timed out on public event")
	}

	// Bob registered only for his own tenant and must see neither.
	select {
	case received := <-bob.C():
		t.Errorf("bob received foreign event: %+v", received)
	default:
	}
}

func TestBroadcasterDropsForSlowConsumer(t *testing.T) {
	b := NewBroadcaster()
	sub := b.Subscribe("alice")
	defer sub.Unsubscribe()

	// Overrun the channel buffer (64)
	for i := 0; i < 100; i++ {
		b.Publish(Event{Type: EventChanged, Tenant: "alice", Path: "churn.txt"})
	}

	count := 0
	for {
		select {
		case <-sub.C():
			count++
		default:
			if count != 64 {
				t.Errorf("expected 64 buffered events, got %d", count)
			}
			return
		}
	}
}
