// Package input turns touches, button presses and HTTP requests into
// controller commands and queues them for the tick loop.
package input

import (
	"errors"
	"sync/atomic"

	"github.com/Kzm-Igrsh/EX-peltier/internal/logic"
)

// Touch panel geometry.
const (
	ScreenWidth  = 320
	ScreenHeight = 240
	HeaderHeight = 30  // title bar, not touchable
	BarTop       = 200 // bottom command bar

	// Bar button columns. The gutter pixels 106 and 213 belong to stop.
	autoTestRight   = 106
	experimentLeft  = 107
	experimentRight = 213
)

// ErrQueueFull is returned when the loop has not drained earlier commands.
var ErrQueueFull = errors.New("command queue full")

// Decode maps a touch coordinate to a command. The bottom bar holds three
// buttons: auto-test, experiment, stop. Anything else is not a command.
func Decode(x, y int) (logic.Command, bool) {
	if x < 0 || x >= ScreenWidth || y < HeaderHeight || y >= ScreenHeight {
		return logic.Command{}, false
	}
	if y < BarTop {
		return logic.Command{}, false
	}
	switch {
	case x < autoTestRight:
		return logic.Command{Type: logic.CommandStartAutoTest}, true
	case x >= experimentLeft && x < experimentRight:
		return logic.Command{Type: logic.CommandStartExperiment}, true
	default:
		return logic.Command{Type: logic.CommandStop}, true
	}
}

// Queue is a bounded command channel shared by every input source.
// Submit never blocks; the tick loop drains one command per tick.
//
// Stop bypasses the channel: it is always accepted and is the next command
// returned, and it discards whatever was queued ahead of it.
type Queue struct {
	ch   chan logic.Command
	stop atomic.Bool
}

// NewQueue creates a queue holding up to size commands.
func NewQueue(size int) *Queue {
	if size < 1 {
		size = 1
	}
	return &Queue{ch: make(chan logic.Command, size)}
}

// Submit enqueues cmd or returns ErrQueueFull. Stop never fails.
func (q *Queue) Submit(cmd logic.Command) error {
	if cmd.Type == logic.CommandStop {
		q.stop.Store(true)
		return nil
	}
	select {
	case q.ch <- cmd:
		return nil
	default:
		return ErrQueueFull
	}
}

// Next returns a pending Stop, else the oldest pending command, or nil if
// none is pending.
func (q *Queue) Next() *logic.Command {
	if q.stop.Swap(false) {
		for n := len(q.ch); n > 0; n-- {
			<-q.ch
		}
		return &logic.Command{Type: logic.CommandStop}
	}
	select {
	case cmd := <-q.ch:
		return &cmd
	default:
		return nil
	}
}

// Len reports the number of pending commands.
func (q *Queue) Len() int {
	if q.stop.Load() {
		return len(q.ch) + 1
	}
	return len(q.ch)
}
