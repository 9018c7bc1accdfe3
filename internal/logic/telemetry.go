package logic

// Strength is the telemetry strength label.
type Strength string

const (
	StrengthStrong Strength = "Strong"
	StrengthWeak   Strength = "Weak"
	StrengthNone   Strength = "none"
)

// PositionNone is reported when every port is Idle.
const PositionNone = "none"

// Telemetry is the (position, strength) pair sent to the stimulus logger.
type Telemetry struct {
	Position string
	Strength Strength
}

// Line formats t as "<position>,<strength>" without a trailing newline.
func (t Telemetry) Line() string {
	return t.Position + "," + string(t.Strength)
}

// DeriveTelemetry reports the lowest-indexed non-Idle port. Only Heat and
// Cool carry a strength; start and end bridges report "none".
func DeriveTelemetry(b *Bank) Telemetry {
	for i := range b.rt {
		s := b.rt[i].State
		if s == StateIdle {
			continue
		}
		t := Telemetry{Position: b.ports[i].Name, Strength: StrengthNone}
		switch s {
		case StateHeat:
			t.Strength = StrengthStrong
		case StateCool:
			t.Strength = StrengthWeak
		}
		return t
	}
	return Telemetry{Position: PositionNone, Strength: StrengthNone}
}

// Emitter de-duplicates telemetry. It remembers the last emitted pair for
// the life of the process; nothing has been emitted until the first Observe.
type Emitter struct {
	last Telemetry
	sent bool
}

// NewEmitter creates an Emitter with no emission memory.
func NewEmitter() *Emitter {
	return &Emitter{}
}

// Observe records t and reports whether it differs from the last emitted pair.
func (e *Emitter) Observe(t Telemetry) bool {
	if e.sent && e.last == t {
		return false
	}
	e.last = t
	e.sent = true
	return true
}

// Last returns the last emitted pair and whether anything was emitted.
func (e *Emitter) Last() (Telemetry, bool) {
	return e.last, e.sent
}

// Reset forgets the last emitted pair.
func (e *Emitter) Reset() {
	e.last = Telemetry{}
	e.sent = false
}
