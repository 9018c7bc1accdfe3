package mqtt

import (
	"errors"
	"testing"
	"time"

	"github.com/Kzm-Igrsh/EX-peltier/internal/logic"
)

// gatedPublisher blocks every publish until release is closed.
type gatedPublisher struct {
	*FakePublisher
	release chan struct{}
}

func newGatedPublisher() *gatedPublisher {
	return &gatedPublisher{FakePublisher: NewFakePublisher(), release: make(chan struct{})}
}

func (g *gatedPublisher) Publish(event logic.Event) error {
	<-g.release
	return g.FakePublisher.Publish(event)
}

func (g *gatedPublisher) PublishSystem(event SystemEvent) error {
	<-g.release
	return g.FakePublisher.PublishSystem(event)
}

func TestAsyncPublisherDoesNotWait(t *testing.T) {
	next := newGatedPublisher()
	p := NewAsyncPublisher(next, 8)

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := p.Publish(logic.Event{Type: logic.EventStepDone, Step: i}); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}
	if err := p.PublishSystem(SystemEvent{Timestamp: ts, Event: "HEARTBEAT"}); err != nil {
		t.Fatalf("publish system: %v", err)
	}
	if d := time.Since(start); d > 100*time.Millisecond {
		t.Errorf("publishing to a stalled broker took %v", d)
	}

	close(next.release)
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if len(next.Events) != 3 {
		t.Fatalf("expected 3 events delivered, got %d", len(next.Events))
	}
	for i, e := range next.Events {
		if e.Step != i {
			t.Errorf("event %d delivered out of order: step %d", i, e.Step)
		}
	}
	if names := next.SystemEventNames(); len(names) != 1 || names[0] != "HEARTBEAT" {
		t.Errorf("system events: %v", names)
	}
	if !next.Closed {
		t.Error("wrapped publisher not closed")
	}
}

func TestAsyncPublisherBacklogFull(t *testing.T) {
	next := newGatedPublisher()
	p := NewAsyncPublisher(next, 1)

	// The goroutine takes one message and blocks on it; the next fills the backlog.
	var err error
	for i := 0; i < 4 && err == nil; i++ {
		err = p.Publish(logic.Event{Type: logic.EventState})
	}
	if !errors.Is(err, ErrBacklogFull) {
		t.Fatalf("expected ErrBacklogFull, got %v", err)
	}
	if p.Dropped() != 1 {
		t.Errorf("dropped: got %d, want 1", p.Dropped())
	}

	close(next.release)
	p.Close()
	if err := p.Publish(logic.Event{Type: logic.EventState}); !errors.Is(err, ErrClosed) {
		t.Errorf("publish after close: got %v, want ErrClosed", err)
	}
}

func TestAsyncPublisherLogsFailures(t *testing.T) {
	next := NewFakePublisher()
	next.PublishError = errors.New("broker down")
	p := NewAsyncPublisher(next, 4)

	if err := p.Publish(logic.Event{Type: logic.EventState}); err != nil {
		t.Fatalf("failure of the wrapped publisher leaked to the caller: %v", err)
	}
	p.Close()
	if len(next.Events) != 0 {
		t.Errorf("expected no recorded events, got %d", len(next.Events))
	}
}
