package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Kzm-Igrsh/EX-peltier/internal/config"
	"github.com/Kzm-Igrsh/EX-peltier/internal/gpio"
	"github.com/Kzm-Igrsh/EX-peltier/internal/input"
	"github.com/Kzm-Igrsh/EX-peltier/internal/journal"
	"github.com/Kzm-Igrsh/EX-peltier/internal/link"
	"github.com/Kzm-Igrsh/EX-peltier/internal/logic"
	"github.com/Kzm-Igrsh/EX-peltier/internal/mqtt"
)

const tick = 10 * time.Millisecond

var startTime = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

// wire is the serial side of the PWM controller.
type wire struct {
	bytes.Buffer
}

func (w *wire) Close() error { return nil }

// pipeline simulates the daemon's tick loop over fakes and in-process links.
type pipeline struct {
	t         *testing.T
	ctrl      *logic.Controller
	ports     []logic.Port
	reader    *gpio.FakeReader
	edges     input.Edges
	queue     *input.Queue
	wire      *wire
	actuator  *link.SerialActuator
	telemetry bytes.Buffer
	lines     *link.LineWriter
	publisher *mqtt.FakePublisher
	recorder  *journal.Recorder
	now       time.Time
}

func newPipeline(t *testing.T, store journal.Store, buttons []gpio.Buttons) *pipeline {
	t.Helper()
	lc, err := config.Default().Logic()
	if err != nil {
		t.Fatalf("default config: %v", err)
	}
	ctrl, err := logic.NewController(lc, startTime)
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	if buttons == nil {
		buttons = []gpio.Buttons{{}}
	}
	p := &pipeline{
		t:         t,
		ctrl:      ctrl,
		ports:     lc.Ports,
		reader:    gpio.NewFakeReader(buttons),
		queue:     input.NewQueue(4),
		wire:      &wire{},
		publisher: mqtt.NewFakePublisher(),
		recorder:  journal.NewRecorder(store),
		now:       startTime,
	}
	p.actuator = link.NewSerialActuator(p.wire)
	p.lines = link.NewLineWriter(&p.telemetry)
	return p
}

// step runs one tick: sample the buttons, drain one command, apply events.
func (p *pipeline) step() []logic.Event {
	p.t.Helper()
	b, err := p.reader.Read()
	if err != nil {
		p.t.Fatalf("gpio read: %v", err)
	}
	for _, cmd := range p.edges.Update(b) {
		if err := p.queue.Submit(cmd); err != nil {
			p.t.Fatalf("submit %s: %v", cmd, err)
		}
	}

	events := p.ctrl.Process(logic.Input{Time: p.now, Command: p.queue.Next()})
	for _, e := range events {
		switch e.Type {
		case logic.EventState:
			if err := p.actuator.SetDutyCycle(p.ports[e.Port], e.Cool, e.Heat); err != nil {
				p.t.Fatalf("actuator: %v", err)
			}
		case logic.EventTelemetry:
			if err := p.lines.WriteTelemetry(e.Telemetry); err != nil {
				p.t.Fatalf("telemetry: %v", err)
			}
		case logic.EventIgnored:
			continue
		}
		// Publish failures are logged by the daemon, never fatal.
		_ = p.publisher.Publish(e)
	}
	if err := p.recorder.Record(context.Background(), events); err != nil {
		p.t.Fatalf("journal: %v", err)
	}
	p.now = p.now.Add(tick)
	return events
}

func (p *pipeline) run(d time.Duration) {
	for end := p.now.Add(d); p.now.Before(end); {
		p.step()
	}
}

func (p *pipeline) touch(x, y int) {
	p.t.Helper()
	cmd, ok := input.Decode(x, y)
	if !ok {
		p.t.Fatalf("touch (%d,%d) is not a command", x, y)
	}
	if err := p.queue.Submit(cmd); err != nil {
		p.t.Fatalf("submit: %v", err)
	}
}

// channels replays the serial wire and returns the last duty per channel.
func (p *pipeline) channels() map[int]int {
	duty := make(map[int]int)
	for _, line := range strings.Split(strings.TrimSpace(p.wire.String()), "\n") {
		var ch, d int
		if _, err := fmt.Sscanf(line, "W %d %d", &ch, &d); err != nil {
			p.t.Fatalf("bad wire line %q: %v", line, err)
		}
		duty[ch] = d
	}
	return duty
}

func (p *pipeline) ofType(typ logic.EventType) []logic.Event {
	var out []logic.Event
	for _, e := range p.publisher.Events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

// TestIntegrationButtonDrivesAutoTest runs a full auto-test started by the
// physical button and checks every edge saw it.
func TestIntegrationButtonDrivesAutoTest(t *testing.T) {
	buttons := []gpio.Buttons{
		{},               // primes the edge detector
		{AutoTest: true}, // press
		{AutoTest: true}, // held: no second command
		{},
	}
	p := newPipeline(t, nil, buttons)
	p.run(40 * time.Second)

	started := p.ofType(logic.EventRunStarted)
	if len(started) != 1 {
		t.Fatalf("expected 1 RUN_STARTED, got %d", len(started))
	}
	if started[0].Mode != logic.ModeAutoTest {
		t.Errorf("expected AUTO_TEST, got %s", started[0].Mode)
	}
	if n := len(p.ofType(logic.EventRunFinished)); n != 1 {
		t.Errorf("expected 1 RUN_FINISHED, got %d", n)
	}
	if n := len(p.ofType(logic.EventStepDone)); n != 3 {
		t.Errorf("expected 3 STEP_DONE, got %d", n)
	}

	lines := strings.Split(strings.TrimSpace(p.telemetry.String()), "\n")
	if lines[0] != "none,none" {
		t.Errorf("first telemetry line: got %q", lines[0])
	}
	if last := lines[len(lines)-1]; last != "none,none" {
		t.Errorf("last telemetry line: got %q", last)
	}
	for i := 1; i < len(lines); i++ {
		if lines[i] == lines[i-1] {
			t.Errorf("telemetry line %d repeats %q", i, lines[i])
		}
	}
	for _, want := range []string{"Left,Weak", "Left,Strong", "Center,Strong", "Center,Weak", "Right,Weak", "Right,Strong"} {
		if !strings.Contains(p.telemetry.String(), want+"\n") {
			t.Errorf("telemetry never reported %s", want)
		}
	}
	if got := p.publisher.TelemetryLines(); len(got) != len(lines) {
		t.Errorf("published %d telemetry lines, wrote %d", len(got), len(lines))
	}

	for ch, d := range p.channels() {
		if d != 0 {
			t.Errorf("channel %d left at %d after completion", ch, d)
		}
	}
}

// TestIntegrationTouchStopDuringExperiment stops an experiment from the
// touch bar and checks the serial link was zeroed within the same tick.
func TestIntegrationTouchStopDuringExperiment(t *testing.T) {
	p := newPipeline(t, nil, nil)
	p.step()

	p.touch(160, 220) // middle third: experiment
	p.run(2500 * time.Millisecond)
	if p.ctrl.Mode() != logic.ModeExperiment {
		t.Fatalf("expected EXPERIMENT, got %s", p.ctrl.Mode())
	}

	p.touch(300, 220) // right third: stop
	events := p.step()

	var stopped bool
	for _, e := range events {
		if e.Type == logic.EventStopped {
			stopped = true
		}
	}
	if !stopped {
		t.Fatal("stop not applied on the tick it was drained")
	}
	for ch, d := range p.channels() {
		if d != 0 {
			t.Errorf("channel %d at %d after stop", ch, d)
		}
	}
	if !strings.HasSuffix(p.telemetry.String(), "none,none\n") {
		t.Errorf("telemetry after stop: %q", p.telemetry.String())
	}
	if p.ctrl.Mode() != logic.ModeIdle {
		t.Errorf("expected IDLE after stop, got %s", p.ctrl.Mode())
	}
}

// TestIntegrationSerialNeverDrivesBothChannels replays the wire and checks
// that no port ever has both channels nonzero.
func TestIntegrationSerialNeverDrivesBothChannels(t *testing.T) {
	p := newPipeline(t, nil, nil)
	p.step()
	p.queue.Submit(logic.Command{Type: logic.CommandStartExperiment})

	duty := make(map[int]int)
	for i := 0; i < 3000; i++ {
		before := p.wire.Len()
		p.step()
		for _, line := range strings.Split(strings.TrimSpace(p.wire.String()[before:]), "\n") {
			if line == "" {
				continue
			}
			var ch, d int
			if _, err := fmt.Sscanf(line, "W %d %d", &ch, &d); err != nil {
				t.Fatalf("bad wire line %q: %v", line, err)
			}
			duty[ch] = d
			for _, port := range p.ports {
				if duty[port.CoolChannel] != 0 && duty[port.HeatChannel] != 0 {
					t.Fatalf("tick %d: %s drives both channels", i, port.Name)
				}
			}
		}
	}
}

// TestIntegrationStopOvertakesFullQueue fills the command queue behind a
// running auto-test and checks Stop still lands on the next tick.
func TestIntegrationStopOvertakesFullQueue(t *testing.T) {
	p := newPipeline(t, nil, nil)
	p.queue.Submit(logic.Command{Type: logic.CommandStartAutoTest})
	p.run(500 * time.Millisecond)
	if p.ctrl.Mode() != logic.ModeAutoTest {
		t.Fatalf("expected AUTO_TEST, got %s", p.ctrl.Mode())
	}

	for i := 0; i < 4; i++ {
		if err := p.queue.Submit(logic.Command{Type: logic.CommandStartExperiment}); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	if err := p.queue.Submit(logic.Command{Type: logic.CommandStartExperiment}); !errors.Is(err, input.ErrQueueFull) {
		t.Fatalf("expected a full queue, got %v", err)
	}
	if err := p.queue.Submit(logic.Command{Type: logic.CommandStop}); err != nil {
		t.Fatalf("stop rejected: %v", err)
	}

	var stopped bool
	for _, e := range p.step() {
		if e.Type == logic.EventStopped {
			stopped = true
		}
	}
	if !stopped {
		t.Fatal("stop not applied on the next tick")
	}
	p.run(time.Second)
	if p.ctrl.Mode() != logic.ModeIdle {
		t.Errorf("commands queued before stop were applied: mode %s", p.ctrl.Mode())
	}
	for ch, d := range p.channels() {
		if d != 0 {
			t.Errorf("channel %d at %d after stop", ch, d)
		}
	}
}

func TestIntegrationSQLiteJournal(t *testing.T) {
	ctx := context.Background()
	store := journal.NewSQLiteStore(filepath.Join(t.TempDir(), "journal.db"))
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	defer store.Close()

	p := newPipeline(t, store, nil)
	p.queue.Submit(logic.Command{Type: logic.CommandStartExperiment})
	p.run(6 * time.Second)
	p.queue.Submit(logic.Command{Type: logic.CommandStop})
	p.step()

	runs, err := store.ListRuns(ctx, 10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	if runs[0].Mode != logic.ModeExperiment || runs[0].Outcome != journal.OutcomeStopped {
		t.Errorf("run: got %+v", runs[0])
	}
	entries, err := store.Entries(ctx, runs[0].ID)
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	var steps int
	for _, e := range entries {
		if e.Kind == logic.EventStepDone {
			steps++
		}
	}
	if steps != 1 {
		t.Errorf("expected the first trial to complete, got %d STEP_DONE", steps)
	}
}

func TestIntegrationPublishFailureDoesNotCrash(t *testing.T) {
	p := newPipeline(t, nil, nil)
	p.publisher.PublishError = errors.New("broker down")

	p.queue.Submit(logic.Command{Type: logic.CommandStartHeat, Port: 2})
	p.run(5 * time.Second)

	if len(p.publisher.Events) != 0 {
		t.Errorf("expected no recorded events, got %d", len(p.publisher.Events))
	}
	want := "Right,none\nRight,Strong\nnone,none\n"
	if got := p.telemetry.String(); got != want {
		t.Errorf("telemetry: got %q, want %q", got, want)
	}
}

func TestIntegrationPayloadFormat(t *testing.T) {
	p := newPipeline(t, nil, nil)
	p.queue.Submit(logic.Command{Type: logic.CommandStartCool, Port: 0})
	p.run(1500 * time.Millisecond)

	var tel []mqtt.TelemetryPayload
	var states []mqtt.EventPayload
	for i, topic := range p.publisher.Topics {
		switch topic {
		case mqtt.TopicTelemetry:
			var tp mqtt.TelemetryPayload
			if err := json.Unmarshal(p.publisher.Payloads[i], &tp); err != nil {
				t.Fatalf("payload %d: %v", i, err)
			}
			tel = append(tel, tp)
		case mqtt.TopicEvents:
			var ep mqtt.EventPayload
			if err := json.Unmarshal(p.publisher.Payloads[i], &ep); err != nil {
				t.Fatalf("payload %d: %v", i, err)
			}
			states = append(states, ep)
		}
	}

	if len(tel) != 2 || tel[0].Telemetry.Line != "Left,none" || tel[1].Telemetry.Line != "Left,Weak" {
		t.Fatalf("telemetry payloads: %+v", tel)
	}
	if tel[1].Telemetry.Position != "Left" || tel[1].Telemetry.Strength != "Weak" {
		t.Errorf("telemetry fields: %+v", tel[1].Telemetry)
	}
	if _, err := time.Parse(time.RFC3339Nano, tel[0].Telemetry.Timestamp); err != nil {
		t.Errorf("timestamp: %v", err)
	}

	if len(states) != 2 {
		t.Fatalf("expected 2 state payloads, got %d", len(states))
	}
	first := states[0].Stimulus
	if first.Event != "STATE" || first.State != "COOL_START" || first.Port == nil || *first.Port != 0 {
		t.Errorf("first state payload: %+v", first)
	}
	if first.Cool == nil || *first.Cool != logic.CoolStartPWM || first.Heat == nil || *first.Heat != 0 {
		t.Errorf("first state duty: %+v", first)
	}
}
