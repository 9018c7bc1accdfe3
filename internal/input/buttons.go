package input

import (
	"context"
	"log"
	"time"

	"github.com/Kzm-Igrsh/EX-peltier/internal/gpio"
	"github.com/Kzm-Igrsh/EX-peltier/internal/logic"
)

// Edges detects button presses from level samples.
type Edges struct {
	last gpio.Buttons
	init bool
}

// Update returns the commands for buttons that went from released to pressed.
// The first sample only primes the detector, so a button held at startup
// does not fire. Stop is reported first.
func (e *Edges) Update(b gpio.Buttons) []logic.Command {
	if !e.init {
		e.last, e.init = b, true
		return nil
	}
	var cmds []logic.Command
	if b.Stop && !e.last.Stop {
		cmds = append(cmds, logic.Command{Type: logic.CommandStop})
	}
	if b.AutoTest && !e.last.AutoTest {
		cmds = append(cmds, logic.Command{Type: logic.CommandStartAutoTest})
	}
	if b.Experiment && !e.last.Experiment {
		cmds = append(cmds, logic.Command{Type: logic.CommandStartExperiment})
	}
	e.last = b
	return cmds
}

// PollButtons samples r on every tick and submits pressed commands to q
// until ctx is cancelled. Read errors are logged and the sample is skipped.
func PollButtons(ctx context.Context, r gpio.Reader, q *Queue, tick <-chan time.Time) {
	var edges Edges
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			b, err := r.Read()
			if err != nil {
				log.Printf("gpio: read error: %v", err)
				continue
			}
			for _, cmd := range edges.Update(b) {
				if err := q.Submit(cmd); err != nil {
					log.Printf("gpio: %s dropped: %v", cmd, err)
					continue
				}
				log.Printf("gpio: %s pressed", cmd)
			}
		}
	}
}
