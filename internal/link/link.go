// Package link drives the PWM controller and the telemetry line over serial.
//
// The PWM controller is a small MCU that owns the LEDC/PWM peripherals.
// The host sends one ASCII command per line:
//
//	F <frequency-hz> <resolution-bits>   configure every channel
//	W <channel> <duty>                   set one channel's duty
package link

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/Kzm-Igrsh/EX-peltier/internal/logic"
)

// DefaultBaudRate matches the firmware's Serial.begin.
const DefaultBaudRate = 115200

// Actuator sets the cool and heat duty of one port.
// Implementations must never leave both channels nonzero after a call returns.
type Actuator interface {
	SetDutyCycle(port logic.Port, cool, heat uint8) error
	Close() error
}

// SerialActuator writes duty commands to the PWM controller.
type SerialActuator struct {
	mu sync.Mutex
	w  io.WriteCloser
}

// NewSerialActuator wraps an already open writer.
func NewSerialActuator(w io.WriteCloser) *SerialActuator {
	return &SerialActuator{w: w}
}

// Setup configures the PWM base frequency and resolution of every channel.
func (a *SerialActuator) Setup(frequency, bits int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, err := fmt.Fprintf(a.w, "F %d %d\n", frequency, bits); err != nil {
		return fmt.Errorf("setup pwm: %w", err)
	}
	return nil
}

// SetDutyCycle writes both channels of the port in a single write.
// The channel being switched off is written first.
func (a *SerialActuator) SetDutyCycle(port logic.Port, cool, heat uint8) error {
	var b strings.Builder
	if cool == 0 {
		fmt.Fprintf(&b, "W %d %d\n", port.CoolChannel, cool)
		fmt.Fprintf(&b, "W %d %d\n", port.HeatChannel, heat)
	} else {
		fmt.Fprintf(&b, "W %d %d\n", port.HeatChannel, heat)
		fmt.Fprintf(&b, "W %d %d\n", port.CoolChannel, cool)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, err := a.w.Write([]byte(b.String())); err != nil {
		return fmt.Errorf("set duty %s: %w", port.Name, err)
	}
	return nil
}

// Close closes the underlying port.
func (a *SerialActuator) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.w.Close()
}

// ZeroAll switches every port off. It attempts all ports and returns the
// first error.
func ZeroAll(a Actuator, ports []logic.Port) error {
	var first error
	for _, p := range ports {
		if err := a.SetDutyCycle(p, 0, 0); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// LineWriter writes telemetry lines.
type LineWriter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewLineWriter wraps w. If w is also an io.Closer, Close closes it.
func NewLineWriter(w io.Writer) *LineWriter {
	return &LineWriter{w: w}
}

// WriteTelemetry writes "<position>,<strength>\n".
func (l *LineWriter) WriteTelemetry(t logic.Telemetry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.w.Write([]byte(t.Line() + "\n")); err != nil {
		return fmt.Errorf("write telemetry: %w", err)
	}
	return nil
}

// Close closes the underlying writer when it supports closing.
func (l *LineWriter) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if c, ok := l.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
