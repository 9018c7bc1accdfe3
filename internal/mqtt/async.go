package mqtt

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/Kzm-Igrsh/EX-peltier/internal/logic"
)

// AsyncBacklog is how many messages may wait for the publishing goroutine.
const AsyncBacklog = 256

// closeTimeout bounds how long Close waits for the backlog to drain.
const closeTimeout = 5 * time.Second

// ErrBacklogFull is returned when the publishing goroutine has fallen behind.
var ErrBacklogFull = errors.New("mqtt: publish backlog full")

// ErrClosed is returned by Publish and PublishSystem after Close.
var ErrClosed = errors.New("mqtt: publisher closed")

type asyncMsg struct {
	event  *logic.Event
	system *SystemEvent
}

// AsyncPublisher hands messages to a single goroutine that owns the wrapped
// Publisher, so callers never wait on the broker. Messages keep their order.
type AsyncPublisher struct {
	next Publisher
	ch   chan asyncMsg
	done chan struct{}

	mu      sync.Mutex
	closed  bool
	dropped int
}

// NewAsyncPublisher starts the publishing goroutine in front of next.
func NewAsyncPublisher(next Publisher, backlog int) *AsyncPublisher {
	if backlog < 1 {
		backlog = 1
	}
	p := &AsyncPublisher{
		next: next,
		ch:   make(chan asyncMsg, backlog),
		done: make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *AsyncPublisher) run() {
	defer close(p.done)
	for m := range p.ch {
		if m.event != nil {
			if err := p.next.Publish(*m.event); err != nil {
				log.Printf("mqtt: publish %s failed: %v", m.event.Type, err)
			}
			continue
		}
		if err := p.next.PublishSystem(*m.system); err != nil {
			log.Printf("mqtt: publish %s failed: %v", m.system.Event, err)
		}
	}
}

func (p *AsyncPublisher) enqueue(m asyncMsg) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.ch <- m:
		return nil
	default:
		p.dropped++
		return ErrBacklogFull
	}
}

// Publish queues a controller event.
func (p *AsyncPublisher) Publish(event logic.Event) error {
	return p.enqueue(asyncMsg{event: &event})
}

// PublishSystem queues a system lifecycle event.
func (p *AsyncPublisher) PublishSystem(event SystemEvent) error {
	return p.enqueue(asyncMsg{system: &event})
}

// Dropped reports how many messages were refused because the backlog was full.
func (p *AsyncPublisher) Dropped() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropped
}

// Close stops accepting messages, waits up to closeTimeout for the backlog
// to be handed to the wrapped publisher, then closes it.
func (p *AsyncPublisher) Close() error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.ch)
	}
	p.mu.Unlock()

	select {
	case <-p.done:
	case <-time.After(closeTimeout):
		log.Printf("mqtt: %d messages still queued at close", len(p.ch))
	}
	return p.next.Close()
}
