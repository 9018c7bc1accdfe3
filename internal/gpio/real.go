//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealReader reads buttons from actual hardware using Linux GPIO character device.
type RealReader struct {
	chip  *gpiocdev.Chip
	lines [3]*gpiocdev.Line
}

var lineNames = [3]string{"autotest", "experiment", "stop"}

// NewRealReader requests the three button lines on the named chip.
func NewRealReader(chipName string, pins Pins) (*RealReader, error) {
	chip, err := gpiocdev.NewChip(chipName, gpiocdev.WithConsumer("peltier-stim"))
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	r := &RealReader{chip: chip}
	offsets := [3]int{pins.AutoTest, pins.Experiment, pins.Stop}
	for i, off := range offsets {
		// Buttons short to ground, so the line idles high.
		l, err := chip.RequestLine(off, gpiocdev.AsInput, gpiocdev.WithPullUp)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("request %s pin %d: %w", lineNames[i], off, err)
		}
		r.lines[i] = l
	}
	return r, nil
}

// Read returns the logical button states. Raw 0 = pressed.
func (r *RealReader) Read() (Buttons, error) {
	var pressed [3]bool
	for i, l := range r.lines {
		raw, err := l.Value()
		if err != nil {
			return Buttons{}, fmt.Errorf("read %s pin: %w", lineNames[i], err)
		}
		pressed[i] = raw == 0
	}
	return Buttons{AutoTest: pressed[0], Experiment: pressed[1], Stop: pressed[2]}, nil
}

// Close releases GPIO resources.
// Lines are returned to input with pull-down before closing so the header is
// left in its boot state.
func (r *RealReader) Close() error {
	var errs []error

	for i, l := range r.lines {
		if l == nil {
			continue
		}
		if err := l.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure %s pin: %w", lineNames[i], err))
		}
		if err := l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s pin: %w", lineNames[i], err))
		}
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
