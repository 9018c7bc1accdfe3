// Command peltier-stim drives the Peltier stimulus ports, runs the auto-test
// and experiment sequences, and reports telemetry over serial and MQTT.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Kzm-Igrsh/EX-peltier/internal/config"
	"github.com/Kzm-Igrsh/EX-peltier/internal/gpio"
	"github.com/Kzm-Igrsh/EX-peltier/internal/input"
	"github.com/Kzm-Igrsh/EX-peltier/internal/journal"
	"github.com/Kzm-Igrsh/EX-peltier/internal/link"
	"github.com/Kzm-Igrsh/EX-peltier/internal/logic"
	"github.com/Kzm-Igrsh/EX-peltier/internal/mqtt"
	"github.com/Kzm-Igrsh/EX-peltier/internal/status"
	"github.com/Kzm-Igrsh/EX-peltier/internal/web"
)

// commandQueueSize bounds commands waiting for the next tick.
const commandQueueSize = 16

func main() {
	opts := registerFlags(flag.CommandLine)
	flag.Parse()

	if opts.listSerial {
		ports, err := link.Ports()
		if err != nil {
			log.Fatalf("fatal: %v", err)
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
	opts.apply(flag.CommandLine, cfg)

	if opts.printConfig {
		if err := cfg.Encode(os.Stdout); err != nil {
			log.Fatalf("fatal: %v", err)
		}
		return
	}

	if err := run(cfg, opts.heartbeat, opts.httpAddr); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

// options holds the command line. Flags that mirror a config file field only
// override the file when given explicitly.
type options struct {
	configPath      string
	tick            time.Duration
	broker          string
	heartbeat       time.Duration
	httpAddr        string
	serial          string
	baud            int
	telemetrySerial string
	journal         string
	journalPath     string
	gpioChip        string
	printConfig     bool
	listSerial      bool
}

func registerFlags(fs *flag.FlagSet) *options {
	o := &options{}
	fs.StringVar(&o.configPath, "config", "/etc/peltier-stim.yaml", "YAML configuration file (missing file uses defaults)")
	fs.DurationVar(&o.tick, "tick", 10*time.Millisecond, "Control loop tick")
	fs.StringVar(&o.broker, "broker", "", "MQTT broker address (empty to disable)")
	fs.DurationVar(&o.heartbeat, "heartbeat", 15*time.Minute, "Heartbeat interval (0 to disable)")
	fs.StringVar(&o.httpAddr, "http", ":80", "HTTP status address (empty to disable)")
	fs.StringVar(&o.serial, "serial", "", "PWM controller serial port (empty logs duty changes)")
	fs.IntVar(&o.baud, "baud", link.DefaultBaudRate, "PWM controller baud rate")
	fs.StringVar(&o.telemetrySerial, "telemetry-serial", "", "Serial port for telemetry lines")
	fs.StringVar(&o.journal, "journal", "none", "Run journal backend: none, memory or sqlite")
	fs.StringVar(&o.journalPath, "journal-path", "", "SQLite journal file")
	fs.StringVar(&o.gpioChip, "gpio-chip", "", "GPIO chip for the command buttons (empty to disable)")
	fs.BoolVar(&o.printConfig, "print-config", false, "Print the effective configuration and exit")
	fs.BoolVar(&o.listSerial, "list-serial", false, "List serial ports and exit")
	return o
}

// apply copies explicitly set flags over cfg.
func (o *options) apply(fs *flag.FlagSet, cfg *config.Config) {
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "tick":
			cfg.Tick = o.tick
		case "broker":
			cfg.MQTT.Broker = o.broker
		case "serial":
			cfg.Actuator.Serial = o.serial
		case "baud":
			cfg.Actuator.Baud = o.baud
		case "telemetry-serial":
			cfg.Telemetry.Serial = o.telemetrySerial
		case "journal":
			cfg.Journal.Backend = o.journal
		case "journal-path":
			cfg.Journal.Path = o.journalPath
		case "gpio-chip":
			cfg.Buttons.Chip = o.gpioChip
		}
	})
}

func run(cfg *config.Config, heartbeat time.Duration, httpAddr string) error {
	lc, err := cfg.Logic()
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	startTime := time.Now()
	ctrl, err := logic.NewController(lc, startTime)
	if err != nil {
		return fmt.Errorf("init controller: %w", err)
	}

	// Initialize actuator
	var actuator link.Actuator = link.LogActuator{}
	if cfg.Actuator.Serial != "" {
		a, err := link.OpenSerialActuator(cfg.Actuator.Serial, cfg.Actuator.Baud, cfg.Actuator.PWMFrequency, cfg.Actuator.PWMResolution)
		if err != nil {
			return fmt.Errorf("init actuator: %w", err)
		}
		actuator = a
	} else {
		log.Printf("link: no actuator port, logging duty changes")
	}
	defer actuator.Close()

	// Initialize telemetry sinks
	var lines []*link.LineWriter
	if cfg.Telemetry.Stdout {
		lines = append(lines, link.NewLineWriter(os.Stdout))
	}
	if cfg.Telemetry.Serial != "" {
		w, err := link.OpenLineWriter(cfg.Telemetry.Serial, cfg.Telemetry.Baud)
		if err != nil {
			return fmt.Errorf("init telemetry: %w", err)
		}
		defer w.Close()
		lines = append(lines, w)
	}

	// Initialize MQTT
	var publisher mqtt.Publisher
	var mqttStatus mqtt.ConnectionStatus
	if cfg.MQTT.Broker != "" {
		p, err := mqtt.NewRealPublisher(cfg.MQTT.Broker, cfg.MQTT.ClientID)
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		async := mqtt.NewAsyncPublisher(p, mqtt.AsyncBacklog)
		defer async.Close()
		publisher, mqttStatus = async, p
	} else {
		log.Printf("mqtt: no broker configured, publishing disabled")
	}

	// Initialize run journal
	store, err := journal.NewStore(cfg.Journal.Backend, cfg.Journal.Path)
	if err != nil {
		return fmt.Errorf("init journal: %w", err)
	}
	if store != nil {
		if err := store.Init(context.Background()); err != nil {
			return fmt.Errorf("init journal: %w", err)
		}
		defer journal.CloseIfSupported(store)
	}

	tracker := status.NewTracker(startTime, status.Config{
		TickMs:        cfg.Tick.Milliseconds(),
		PortPauseMs:   cfg.AutoTest.PortPause.Milliseconds(),
		HeartbeatMs:   heartbeat.Milliseconds(),
		Broker:        cfg.MQTT.Broker,
		HTTPAddr:      httpAddr,
		Actuator:      cfg.Actuator.Serial,
		PWMFrequency:  cfg.Actuator.PWMFrequency,
		PWMResolution: cfg.Actuator.PWMResolution,
		Journal:       cfg.Journal.Backend,
	})
	queue := input.NewQueue(commandQueueSize)

	d := &daemon{
		ctrl:       ctrl,
		ports:      lc.Ports,
		actuator:   actuator,
		lines:      lines,
		publisher:  publisher,
		mqttStatus: mqttStatus,
		recorder:   journal.NewRecorder(store),
		tracker:    tracker,
		queue:      queue,
		heartbeat:  heartbeat,
	}
	d.startup(time.Now())

	// Start command buttons
	if cfg.Buttons.Chip != "" {
		reader, err := gpio.NewRealReader(cfg.Buttons.Chip, gpio.Pins{
			AutoTest:   cfg.Buttons.AutoTestPin,
			Experiment: cfg.Buttons.ExperimentPin,
			Stop:       cfg.Buttons.StopPin,
		})
		if err != nil {
			return fmt.Errorf("init gpio: %w", err)
		}
		defer reader.Close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		poll := time.NewTicker(cfg.Buttons.Poll)
		defer poll.Stop()
		go input.PollButtons(ctx, reader, queue, poll.C)
		log.Printf("gpio: buttons on %s (autotest=%d experiment=%d stop=%d)",
			cfg.Buttons.Chip, cfg.Buttons.AutoTestPin, cfg.Buttons.ExperimentPin, cfg.Buttons.StopPin)
	}

	// Start HTTP status server
	if httpAddr != "" {
		srv := web.New(httpAddr, tracker, queue, store)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", httpAddr)
	}

	log.Printf("started: tick=%v ports=%d broker=%q heartbeat=%v journal=%s",
		cfg.Tick, len(lc.Ports), cfg.MQTT.Broker, heartbeat, cfg.Journal.Backend)

	ticker := time.NewTicker(cfg.Tick)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return d.runLoop(time.Now, ticker.C, sigCh)
}

// daemon wires the controller to its edges. All fields are owned by the
// tick loop except tracker and queue, which are shared with HTTP handlers
// and the button poller.
type daemon struct {
	ctrl       *logic.Controller
	ports      []logic.Port
	actuator   link.Actuator
	lines      []*link.LineWriter
	publisher  mqtt.Publisher        // nil when MQTT is disabled
	mqttStatus mqtt.ConnectionStatus // nil when MQTT is disabled
	recorder   *journal.Recorder
	tracker    *status.Tracker
	queue      *input.Queue
	heartbeat  time.Duration
}

// startup switches every port off and announces the daemon.
func (d *daemon) startup(t time.Time) {
	if err := link.ZeroAll(d.actuator, d.ports); err != nil {
		log.Printf("actuator error on startup: %v", err)
	}
	d.publishSystem(mqtt.SystemEvent{Timestamp: t, Event: "STARTUP", Retained: true})
}

func (d *daemon) runLoop(now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			d.shutdown(now(), signalName(s))
			return nil

		case <-tick:
			t := now()
			d.step(t, d.queue.Next())

			if hb := d.ctrl.CheckHeartbeat(t, d.heartbeat); hb != nil {
				log.Printf("heartbeat: uptime=%v autotests=%d experiments=%d completed=%d stopped=%d stimuli=%d",
					hb.Uptime, hb.Counts.AutoTests, hb.Counts.Experiments, hb.Counts.Completed, hb.Counts.Stopped, hb.Counts.Stimuli)
				d.publishSystem(mqtt.SystemEvent{Timestamp: hb.Timestamp, Event: "HEARTBEAT"})
			}

			d.refresh()
		}
	}
}

// shutdown stops any running stimulus, zeroes every channel and publishes
// SHUTDOWN with the signal as reason.
func (d *daemon) shutdown(t time.Time, reason string) {
	if d.ctrl.Mode() != logic.ModeIdle || !d.ctrl.Bank().AllIdle() {
		d.step(t, &logic.Command{Type: logic.CommandStop})
	}
	if err := link.ZeroAll(d.actuator, d.ports); err != nil {
		log.Printf("actuator error on shutdown: %v", err)
	}
	d.publishSystem(mqtt.SystemEvent{Timestamp: t, Event: "SHUTDOWN", Reason: reason, Retained: true})
}

// step runs one controller tick and applies its events to every edge.
func (d *daemon) step(t time.Time, cmd *logic.Command) {
	if cmd != nil {
		log.Printf("command: %s", cmd)
	}
	events := d.ctrl.Process(logic.Input{Time: t, Command: cmd})
	for _, e := range events {
		d.apply(e)
	}
	if err := d.recorder.Record(context.Background(), events); err != nil {
		log.Printf("journal error: %v", err)
	}
}

func (d *daemon) apply(e logic.Event) {
	switch e.Type {
	case logic.EventState:
		port := d.ctrl.Bank().Port(logic.PortID(e.Port))
		log.Printf("event: %s %s (cool=%d heat=%d)", port.Name, e.State, e.Cool, e.Heat)
		if err := d.actuator.SetDutyCycle(port, e.Cool, e.Heat); err != nil {
			log.Printf("actuator error: %v", err)
		}
	case logic.EventTelemetry:
		log.Printf("event: telemetry %s", e.Telemetry.Line())
		for _, w := range d.lines {
			if err := w.WriteTelemetry(e.Telemetry); err != nil {
				log.Printf("telemetry error: %v", err)
			}
		}
	case logic.EventIgnored:
		log.Printf("event: %s ignored (mode=%s)", e.Command, e.Mode)
		return
	case logic.EventStepDone:
		log.Printf("event: %s %s step=%d", e.Type, e.Mode, e.Step)
	case logic.EventStopped:
		log.Printf("event: %s by %s", e.Type, e.Command)
	default:
		log.Printf("event: %s %s", e.Type, e.Mode)
	}

	if d.publisher == nil {
		return
	}
	if err := d.publisher.Publish(e); err != nil {
		log.Printf("publish error: %v", err)
	}
}

// refresh copies controller state into the tracker for HTTP consumers.
func (d *daemon) refresh() {
	d.tracker.Update(d.ctrl.View())
	d.tracker.SetRunID(d.recorder.RunID())
	if d.mqttStatus != nil {
		d.tracker.SetMQTTConnected(d.mqttStatus.IsConnected())
	}
}

// publishSystem attaches a full status snapshot to event and publishes it.
func (d *daemon) publishSystem(event mqtt.SystemEvent) {
	if d.publisher == nil {
		return
	}
	d.refresh()
	event.RawPayload = status.FormatStatusEvent(d.tracker.Snapshot(), event.Event, event.Reason)

	name := strings.ToLower(event.Event)
	if err := d.publisher.PublishSystem(event); err != nil {
		log.Printf("failed to publish %s event: %v", name, err)
		return
	}
	log.Printf("published %s event", name)
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}
