package logic

import (
	"testing"
	"time"
)

func TestEmitterDeduplicates(t *testing.T) {
	e := NewEmitter()
	if _, sent := e.Last(); sent {
		t.Fatal("new emitter should have no memory")
	}

	a := Telemetry{Position: "Left", Strength: StrengthStrong}
	b := Telemetry{Position: "Left", Strength: StrengthNone}

	steps := []struct {
		in   Telemetry
		want bool
	}{
		{a, true},
		{a, false},
		{a, false},
		{b, true},
		{a, true},
		{a, false},
	}
	for i, s := range steps {
		if got := e.Observe(s.in); got != s.want {
			t.Errorf("step %d: Observe(%q) = %v, want %v", i, s.in.Line(), got, s.want)
		}
	}
}

func TestEmitterReset(t *testing.T) {
	e := NewEmitter()
	none := Telemetry{Position: PositionNone, Strength: StrengthNone}
	e.Observe(none)
	e.Reset()
	if !e.Observe(none) {
		t.Error("after Reset the same pair should be emitted again")
	}
}

func TestDeriveTelemetry(t *testing.T) {
	tests := []struct {
		state PortState
		want  string
	}{
		{StateIdle, "none,none"},
		{StateHeatStart, "Center,none"},
		{StateHeat, "Center,Strong"},
		{StateHeatEnd, "Center,none"},
		{StateCoolStart, "Center,none"},
		{StateCool, "Center,Weak"},
		{StateCoolEnd, "Center,none"},
	}
	for _, tt := range tests {
		b := newTestBank(t)
		if tt.state != StateIdle {
			b.enter(1, tt.state, t0)
		}
		if got := DeriveTelemetry(b).Line(); got != tt.want {
			t.Errorf("%s: got %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestDeriveTelemetryLowestIndex(t *testing.T) {
	b := newTestBank(t)
	b.enter(2, StateHeat, t0)
	b.enter(1, StateCool, t0.Add(time.Second))
	if got := DeriveTelemetry(b).Line(); got != "Center,Weak" {
		t.Errorf("got %q, want Center,Weak", got)
	}
}
