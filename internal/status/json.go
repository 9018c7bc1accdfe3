package status

import (
	"encoding/json"
	"time"

	"github.com/Kzm-Igrsh/EX-peltier/internal/logic"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string          `json:"event,omitempty"`
	Reason        string          `json:"reason,omitempty"`
	Mode          string          `json:"mode"`
	Ports         []PortJSON      `json:"ports"`
	AutoTest      *AutoTestJSON   `json:"auto_test,omitempty"`
	Experiment    *ExperimentJSON `json:"experiment,omitempty"`
	Telemetry     string          `json:"telemetry,omitempty"`
	RunID         string          `json:"run_id,omitempty"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	StartTime     string          `json:"start_time"`
	Timestamp     string          `json:"timestamp"`
	MQTT          MQTTStatus      `json:"mqtt"`
	Counts        CountsJSON      `json:"counts"`
	Config        ConfigJSON      `json:"config"`
}

// PortJSON is the JSON representation of one port.
type PortJSON struct {
	Name  string `json:"name"`
	State string `json:"state"`
	Cool  uint8  `json:"cool"`
	Heat  uint8  `json:"heat"`
}

// AutoTestJSON reports auto-test progress.
type AutoTestJSON struct {
	Port  int    `json:"port"`
	Phase string `json:"phase"`
}

// ExperimentJSON reports experiment progress.
type ExperimentJSON struct {
	Trial  int    `json:"trial"`
	Trials int    `json:"trials"`
	Phase  string `json:"phase"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of sequencer counts.
type CountsJSON struct {
	AutoTests   int `json:"auto_tests"`
	Experiments int `json:"experiments"`
	Completed   int `json:"completed"`
	Stopped     int `json:"stopped"`
	Stimuli     int `json:"stimuli"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	TickMs        int64  `json:"tick_ms"`
	PortPauseMs   int64  `json:"port_pause_ms"`
	HeartbeatMs   int64  `json:"heartbeat_ms"`
	Broker        string `json:"broker"`
	HTTPAddr      string `json:"http_addr"`
	Actuator      string `json:"actuator,omitempty"`
	PWMFrequency  int    `json:"pwm_frequency_hz"`
	PWMResolution int    `json:"pwm_resolution_bits"`
	Journal       string `json:"journal"`
}

func buildInner(snap Snapshot) StatusInner {
	v := snap.View
	mode := string(v.Mode)
	if mode == "" {
		mode = string(logic.ModeIdle)
	}

	inner := StatusInner{
		Mode:          mode,
		Ports:         make([]PortJSON, len(v.Ports)),
		RunID:         snap.RunID,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			AutoTests:   v.Counts.AutoTests,
			Experiments: v.Counts.Experiments,
			Completed:   v.Counts.Completed,
			Stopped:     v.Counts.Stopped,
			Stimuli:     v.Counts.Stimuli,
		},
		Config: ConfigJSON{
			TickMs:        snap.Config.TickMs,
			PortPauseMs:   snap.Config.PortPauseMs,
			HeartbeatMs:   snap.Config.HeartbeatMs,
			Broker:        snap.Config.Broker,
			HTTPAddr:      snap.Config.HTTPAddr,
			Actuator:      snap.Config.Actuator,
			PWMFrequency:  snap.Config.PWMFrequency,
			PWMResolution: snap.Config.PWMResolution,
			Journal:       snap.Config.Journal,
		},
	}
	for i, p := range v.Ports {
		inner.Ports[i] = PortJSON{Name: p.Name, State: p.State.String(), Cool: p.Cool, Heat: p.Heat}
	}
	if v.Telemetry.Position != "" {
		inner.Telemetry = v.Telemetry.Line()
	}

	switch v.Mode {
	case logic.ModeAutoTest:
		inner.AutoTest = &AutoTestJSON{Port: v.AutoPort, Phase: v.AutoPhase.String()}
	case logic.ModeExperiment:
		inner.Experiment = &ExperimentJSON{Trial: v.Trial, Trials: logic.TrialCount, Phase: v.ExpPhase.String()}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
