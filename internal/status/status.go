// Package status provides a thread-safe status tracker for the peltier-stim daemon.
// It is written by the tick loop and read by HTTP handlers.
package status

import (
	"sync"
	"time"

	"github.com/Kzm-Igrsh/EX-peltier/internal/logic"
)

// Config contains daemon configuration for display.
type Config struct {
	TickMs        int64
	PortPauseMs   int64
	HeartbeatMs   int64
	Broker        string
	HTTPAddr      string
	Actuator      string // serial port, or "" for the log-only actuator
	PWMFrequency  int
	PWMResolution int
	Journal       string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	View          logic.View
	RunID         string // current or most recent journal run
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			View:      logic.View{Mode: logic.ModeIdle},
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Update stores the controller view. Called from runLoop on every tick.
func (t *Tracker) Update(v logic.View) {
	t.mu.Lock()
	t.snap.View = v
	t.mu.Unlock()
}

// SetRunID records the journal run that is active or last finished.
func (t *Tracker) SetRunID(id string) {
	t.mu.Lock()
	t.snap.RunID = id
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.View.Ports = append([]logic.PortView(nil), t.snap.View.Ports...)
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
