package jobs

import "testing"

// TestEventBusSince verifies incremental event reads by sequence.
func TestEventBusSince(t *testing.T) {
	bus := NewEventBus(3)
	bus.Publish(Event{Type: EventTypeProgress, Progress: "Initializing"})
	bus.Publish(Event{Type: EventTypeProgress, Progress: "PipelineLoading"})
	bus.Publish(Event{Type: EventTypeError, Message: "Pipeline load failed: 401"})

	events := bus.Since(1)
	if len(events) != 2 {
		t.Fatalf("len = %d, want 2", len(events))
	}
	if events[0].Seq != 2 || events[1].Type != EventTypeError {
		t.Fatalf("unexpected events: %+v", events)
	}
	if bus.Since(3) != nil {
		t.Fatal("expected no events after last seq")
	}
}

// TestEventBusCapsHistory verifies buffer limit trimming behavior.
func TestEventBusCapsHistory(t *testing.T) {
	bus := NewEventBus(2)
	bus.Publish(Event{Message: "1"})
	bus.Publish(Event{Message: "2"})
	bus.Publish(Event{Message: "3"})

	events := bus.Since(0)
	if len(events) != 2 {
		t.Fatalf("len = %d, want 2", len(events))
	}
	if events[0].Message != "2" || events[1].Message != "3" {
		t.Fatalf("unexpected events: %+v", events)
	}
}
