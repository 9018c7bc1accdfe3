package link

import (
	"fmt"
	"log"

	"go.bug.st/serial"
)

// OpenSerialActuator opens the PWM controller port and configures its channels.
func OpenSerialActuator(port string, baud, frequency, bits int) (*SerialActuator, error) {
	conn, err := openPort(port, baud)
	if err != nil {
		return nil, err
	}
	a := NewSerialActuator(conn)
	if err := a.Setup(frequency, bits); err != nil {
		conn.Close()
		return nil, err
	}
	log.Printf("link: actuator on %s @ %d baud (pwm %d Hz, %d bit)", port, baud, frequency, bits)
	return a, nil
}

// OpenLineWriter opens a serial port for telemetry lines.
func OpenLineWriter(port string, baud int) (*LineWriter, error) {
	conn, err := openPort(port, baud)
	if err != nil {
		return nil, err
	}
	log.Printf("link: telemetry on %s @ %d baud", port, baud)
	return NewLineWriter(conn), nil
}

// Ports lists the serial ports present on the host.
func Ports() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}
	return ports, nil
}

func openPort(port string, baud int) (serial.Port, error) {
	if baud == 0 {
		baud = DefaultBaudRate
	}
	conn, err := serial.Open(port, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", port, err)
	}
	return conn, nil
}
