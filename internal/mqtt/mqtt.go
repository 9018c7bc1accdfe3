// Package mqtt publishes stimulus telemetry and lifecycle events, with an
// abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/Kzm-Igrsh/EX-peltier/internal/logic"
)

// TopicTelemetry carries "<position>,<strength>" changes.
const TopicTelemetry = "lab/peltier/telemetry"

// TopicEvents carries port transitions and sequencer progress.
const TopicEvents = "lab/peltier/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "lab/peltier/system"

// Publisher publishes controller events to MQTT.
type Publisher interface {
	// Publish sends a controller event to the broker. Telemetry events go to
	// TopicTelemetry, everything else to TopicEvents.
	// Returns error if publishing fails (should not crash the process).
	Publish(event logic.Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// TopicFor returns the topic an event is published on.
func TopicFor(event logic.Event) string {
	if event.Type == logic.EventTelemetry {
		return TopicTelemetry
	}
	return TopicEvents
}

// TelemetryPayload is the MQTT message for a telemetry change.
type TelemetryPayload struct {
	Telemetry TelemetryInner `json:"telemetry"`
}

// TelemetryInner contains the telemetry details.
type TelemetryInner struct {
	Timestamp string `json:"timestamp"`
	Position  string `json:"position"`
	Strength  string `json:"strength"`
	Line      string `json:"line"`
}

// EventPayload is the MQTT message for a controller event.
type EventPayload struct {
	Stimulus EventInner `json:"stimulus"`
}

// EventInner contains the controller event details.
type EventInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Port      *int   `json:"port,omitempty"`
	State     string `json:"state,omitempty"`
	Cool      *uint8 `json:"cool,omitempty"`
	Heat      *uint8 `json:"heat,omitempty"`
	Mode      string `json:"mode,omitempty"`
	Step      *int   `json:"step,omitempty"`
	Command   string `json:"command,omitempty"`
}

// FormatPayload creates the JSON payload for a controller event.
func FormatPayload(event logic.Event) ([]byte, error) {
	ts := event.Timestamp.UTC().Format(time.RFC3339Nano)

	if event.Type == logic.EventTelemetry {
		return json.Marshal(TelemetryPayload{
			Telemetry: TelemetryInner{
				Timestamp: ts,
				Position:  event.Telemetry.Position,
				Strength:  string(event.Telemetry.Strength),
				Line:      event.Telemetry.Line(),
			},
		})
	}

	inner := EventInner{
		Timestamp: ts,
		Event:     string(event.Type),
		Mode:      string(event.Mode),
	}
	if event.Port >= 0 {
		port := event.Port
		inner.Port = &port
	}
	switch event.Type {
	case logic.EventState:
		cool, heat := event.Cool, event.Heat
		inner.State = event.State.String()
		inner.Cool, inner.Heat = &cool, &heat
	case logic.EventStepDone:
		step := event.Step
		inner.Step = &step
	case logic.EventRunStarted, logic.EventStopped, logic.EventIgnored:
		inner.Command = event.Command.String()
	}
	return json.Marshal(EventPayload{Stimulus: inner})
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
