package ws

import (
	"testing"
	"time"

	"boltalka/internal/models"
)

func receive(t *testing.T, ch <-chan models.ServerEvent) models.ServerEvent {
	t.Helper()
	select {
	case event := <-ch:
		return event
	case <-time.After(1 * time.Second):
		t.Fatal("Timeout waiting for event")
	}
	return models.ServerEvent{}
}

func expectNothing(t *testing.T, ch <-chan models.ServerEvent) {
	t.Helper()
	select {
	case event, ok := <-ch:
		if ok {
			t.Errorf("Unexpected event %v", event.Type)
		}
	default:
	}
}

func TestHub_Lifecycle(t *testing.T) {
	h := NewHub()

	ch1 := h.Register("c1")
	ch2 := h.Register("c2")
	ch3 := h.Register("c3")
	if h.ConnectionCount() != 3 {
		t.Fatalf("Expected 3 connections, got %d", h.ConnectionCount())
	}

	h.JoinGroup("c1", "room:main")
	h.JoinGroup("c2", "room:main")
	h.JoinGroup("c3", "room:lounge")

	// 1. Group scoped
	h.EmitToGroup("room:main", models.NewErrorEvent("main only"))
	for _, ch := range []<-chan models.ServerEvent{ch1, ch2} {
		if event := receive(t, ch); event.Data != "main only" {
			t.Errorf("Expected main only, got %v", event.Data)
		}
	}
	expectNothing(t, ch3)

	// 2. Direct
	h.EmitToConnection("c3", models.NewErrorEvent("direct"))
	if event := receive(t, ch3); event.Data != "direct" {
		t.Errorf("Expected direct, got %v", event.Data)
	}
	expectNothing(t, ch1)

	// 3. Everyone
	h.EmitToAll(models.NewRoomsUpdateEvent(nil))
	for _, ch := range []<-chan models.ServerEvent{ch1, ch2, ch3} {
		if event := receive(t, ch); event.Type != models.ServerEventRoomsUpdate {
			t.Errorf("Expected rooms_update, got %v", event.Type)
		}
	}

	// 4. Leave group
	h.LeaveGroup("c2", "room:main")
	h.EmitToGroup("room:main", models.NewErrorEvent("after leave"))
	receive(t, ch1)
	expectNothing(t, ch2)

	// 5. Unregister closes the channel and drops group membership
	h.Unregister("c1")
	if _, ok := <-ch1; ok {
		t.Error("Expected closed channel after Unregister")
	}
	h.EmitToGroup("room:main", models.NewErrorEvent("nobody"))
	h.EmitToConnection("c1", models.NewErrorEvent("gone"))
	if _, ok := h.groups["room:main"]; ok {
		t.Error("Empty group was not removed")
	}

	// Unregister twice is a no-op
	h.Unregister("c1")
}

func TestHub_DropsWhenFull(t *testing.T) {
	h := NewHub()
	h.bufferSize = 2
	ch := h.Register("slow")

	for range 5 {
		h.EmitToConnection("slow", models.NewErrorEvent("spam"))
	}
	if len(ch) != 2 {
		t.Errorf("Expected 2 buffered events, got %d", len(ch))
	}
}

func TestHub_JoinGroupRequiresRegistration(t *testing.T) {
	h := NewHub()
	h.JoinGroup("ghost", "room:main")
	if _, ok := h.groups["room:main"]; ok {
		t.Error("Unregistered connection joined a group")
	}
}

func TestHub_Close(t *testing.T) {
	h := NewHub()
	ch1 := h.Register("c1")
	ch2 := h.Register("c2")
	h.JoinGroup("c1", "room:main")

	h.Close()
	for _, ch := range []<-chan models.ServerEvent{ch1, ch2} {
		if _, ok := <-ch; ok {
			t.Error("Expected closed channel after Close")
		}
	}
	if h.ConnectionCount() != 0 {
		t.Error("Connections left after Close")
	}

	late := h.Register("late")
	if _, ok := <-late; ok {
		t.Error("Expected closed channel after Close")
	}
	h.Unregister("c1")
}
