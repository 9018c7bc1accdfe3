// Package gpio reads the panel's physical command buttons.
// The real implementation uses Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Buttons is one sample of the command buttons; true = pressed.
type Buttons struct {
	AutoTest   bool
	Experiment bool
	Stop       bool
}

// Reader reads the command buttons.
type Reader interface {
	// Read returns the logical button states.
	// The buttons pull the line low: raw 0 = pressed.
	Read() (Buttons, error)

	// Close releases GPIO resources.
	Close() error
}

// Pins are the BCM line offsets of the buttons.
type Pins struct {
	AutoTest   int
	Experiment int
	Stop       int
}

// DefaultPins matches the stock wiring harness.
var DefaultPins = Pins{AutoTest: 5, Experiment: 6, Stop: 13}
