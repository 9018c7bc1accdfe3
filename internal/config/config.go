// Package config loads and validates the static configuration of the
// stimulator: ports, the experiment script and the edge devices.
package config

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/Kzm-Igrsh/EX-peltier/internal/logic"
)

// Config represents the application configuration.
type Config struct {
	Tick      time.Duration   `yaml:"tick"`
	Ports     []PortConfig    `yaml:"ports"`
	AutoTest  AutoTestConfig  `yaml:"autotest"`
	Trials    []TrialConfig   `yaml:"trials"`
	Actuator  ActuatorConfig  `yaml:"actuator"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Buttons   ButtonsConfig   `yaml:"buttons"`
	Journal   JournalConfig   `yaml:"journal"`
}

// PortConfig describes one heat/cool actuator pair.
type PortConfig struct {
	Name           string `yaml:"name"`
	CoolChannel    int    `yaml:"cool_channel"`
	HeatChannel    int    `yaml:"heat_channel"`
	StartsWithCool bool   `yaml:"starts_with_cool"`
}

// AutoTestConfig contains auto-test parameters.
type AutoTestConfig struct {
	PortPause time.Duration `yaml:"port_pause"`
}

// TrialConfig is one entry of the experiment script.
type TrialConfig struct {
	Port     int           `yaml:"port"`
	Stimulus string        `yaml:"stimulus"` // "cool" or "heat"
	Interval time.Duration `yaml:"interval"`
}

// ActuatorConfig contains the serial link to the PWM controller.
type ActuatorConfig struct {
	Serial        string `yaml:"serial"` // empty = log-only actuator
	Baud          int    `yaml:"baud"`
	PWMFrequency  int    `yaml:"pwm_frequency"`
	PWMResolution int    `yaml:"pwm_resolution"`
}

// TelemetryConfig selects where telemetry lines are written.
type TelemetryConfig struct {
	Stdout bool   `yaml:"stdout"`
	Serial string `yaml:"serial"` // optional second serial port for the stimulus logger
	Baud   int    `yaml:"baud"`
}

// MQTTConfig contains broker settings.
type MQTTConfig struct {
	Broker   string `yaml:"broker"` // empty disables MQTT
	ClientID string `yaml:"client_id"`
}

// ButtonsConfig contains the GPIO command buttons.
type ButtonsConfig struct {
	Chip          string        `yaml:"chip"` // empty disables buttons
	AutoTestPin   int           `yaml:"autotest_pin"`
	ExperimentPin int           `yaml:"experiment_pin"`
	StopPin       int           `yaml:"stop_pin"`
	Poll          time.Duration `yaml:"poll"`
}

// JournalConfig selects the run journal backend.
type JournalConfig struct {
	Backend string `yaml:"backend"` // "none", "memory" or "sqlite"
	Path    string `yaml:"path"`
}

// Default returns the three-port layout with the fixed experiment script.
func Default() *Config {
	trials := make([]TrialConfig, 0, logic.TrialCount)
	for _, tr := range logic.DefaultTrials {
		trials = append(trials, TrialConfig{
			Port:     tr.Port,
			Stimulus: strings.ToLower(tr.Stimulus.String()),
			Interval: tr.Interval,
		})
	}

	return &Config{
		Tick: 10 * time.Millisecond,
		Ports: []PortConfig{
			{Name: "Left", CoolChannel: 0, HeatChannel: 1, StartsWithCool: true},
			{Name: "Center", CoolChannel: 2, HeatChannel: 3, StartsWithCool: false},
			{Name: "Right", CoolChannel: 4, HeatChannel: 5, StartsWithCool: true},
		},
		AutoTest: AutoTestConfig{PortPause: time.Second},
		Trials:   trials,
		Actuator: ActuatorConfig{
			Baud:          115200,
			PWMFrequency:  1000,
			PWMResolution: 8,
		},
		Telemetry: TelemetryConfig{Stdout: true, Baud: 115200},
		MQTT:      MQTTConfig{ClientID: "peltier-stim"},
		Buttons: ButtonsConfig{
			AutoTestPin:   5,
			ExperimentPin: 6,
			StopPin:       13,
			Poll:          20 * time.Millisecond,
		},
		Journal: JournalConfig{Backend: "none"},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values. The result is not validated.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, errors.Wrap(err, "failed to read config file")
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	cfg.ensureDefaults()

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return errors.Wrap(err, "failed to write config file")
	}

	return nil
}

// Encode writes the configuration as YAML.
func (c *Config) Encode(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return errors.Wrap(err, "failed to encode config")
	}
	return errors.Wrap(enc.Close(), "failed to encode config")
}

// ensureDefaults fills zero values left by a partial file.
// Ports and trials are replaced only when the file omits them entirely.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Tick == 0 {
		c.Tick = def.Tick
	}
	if len(c.Ports) == 0 {
		c.Ports = def.Ports
	}
	if len(c.Trials) == 0 {
		c.Trials = def.Trials
	}
	if c.Actuator.Baud == 0 {
		c.Actuator.Baud = def.Actuator.Baud
	}
	if c.Actuator.PWMFrequency == 0 {
		c.Actuator.PWMFrequency = def.Actuator.PWMFrequency
	}
	if c.Actuator.PWMResolution == 0 {
		c.Actuator.PWMResolution = def.Actuator.PWMResolution
	}
	if c.Telemetry.Baud == 0 {
		c.Telemetry.Baud = def.Telemetry.Baud
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = def.MQTT.ClientID
	}
	if c.Buttons.Poll == 0 {
		c.Buttons.Poll = def.Buttons.Poll
	}
	if c.Journal.Backend == "" {
		c.Journal.Backend = def.Journal.Backend
	}
}

// Validate checks the configuration for inconsistencies that must stop the
// daemon from starting.
func (c *Config) Validate() error {
	if c.Tick <= 0 {
		return errors.Errorf("tick must be positive, got %v", c.Tick)
	}
	if c.AutoTest.PortPause < 0 {
		return errors.Errorf("autotest.port_pause must not be negative, got %v", c.AutoTest.PortPause)
	}
	if err := c.validatePorts(); err != nil {
		return errors.Wrap(err, "ports")
	}
	if err := c.validateTrials(); err != nil {
		return errors.Wrap(err, "trials")
	}
	if err := c.validateButtons(); err != nil {
		return errors.Wrap(err, "buttons")
	}
	switch c.Journal.Backend {
	case "", "none", "memory":
	case "sqlite":
		if c.Journal.Path == "" {
			return errors.New("journal: sqlite backend requires a path")
		}
	default:
		return errors.Errorf("journal: unsupported backend %q", c.Journal.Backend)
	}
	return nil
}

func (c *Config) validatePorts() error {
	if len(c.Ports) == 0 {
		return errors.New("no ports configured")
	}
	names := make(map[string]int)
	channels := make(map[int]string)
	for i, p := range c.Ports {
		if p.Name == "" {
			return errors.Errorf("port %d: name is required", i)
		}
		if j, dup := names[p.Name]; dup {
			return errors.Errorf("port %d: name %q already used by port %d", i, p.Name, j)
		}
		names[p.Name] = i
		for _, ch := range []int{p.CoolChannel, p.HeatChannel} {
			if ch < 0 {
				return errors.Errorf("port %d: negative channel %d", i, ch)
			}
			if owner, dup := channels[ch]; dup {
				return errors.Errorf("port %d: channel %d already used by %s", i, ch, owner)
			}
			channels[ch] = p.Name
		}
	}
	return nil
}

func (c *Config) validateTrials() error {
	if len(c.Trials) != logic.TrialCount {
		return errors.Errorf("got %d trials, want exactly %d", len(c.Trials), logic.TrialCount)
	}
	for i, tr := range c.Trials {
		if tr.Port < 0 || tr.Port >= len(c.Ports) {
			return errors.Errorf("trial %d: port %d out of range [0,%d)", i, tr.Port, len(c.Ports))
		}
		if _, err := logic.ParseStimulus(tr.Stimulus); err != nil {
			return errors.Wrapf(err, "trial %d", i)
		}
		if tr.Interval <= 0 {
			return errors.Errorf("trial %d: interval must be positive, got %v", i, tr.Interval)
		}
	}
	return nil
}

func (c *Config) validateButtons() error {
	if c.Buttons.Chip == "" {
		return nil
	}
	pins := []int{c.Buttons.AutoTestPin, c.Buttons.ExperimentPin, c.Buttons.StopPin}
	seen := make(map[int]bool)
	for _, p := range pins {
		if p < 0 {
			return errors.Errorf("negative pin %d", p)
		}
		if seen[p] {
			return errors.Errorf("pin %d used twice", p)
		}
		seen[p] = true
	}
	if c.Buttons.Poll <= 0 {
		return errors.Errorf("poll must be positive, got %v", c.Buttons.Poll)
	}
	return nil
}

// Logic converts the validated configuration into the controller's types.
func (c *Config) Logic() (logic.Config, error) {
	if err := c.Validate(); err != nil {
		return logic.Config{}, err
	}

	ports := make([]logic.Port, len(c.Ports))
	for i, p := range c.Ports {
		ports[i] = logic.Port{
			Name:           p.Name,
			CoolChannel:    p.CoolChannel,
			HeatChannel:    p.HeatChannel,
			StartsWithCool: p.StartsWithCool,
		}
	}

	trials := make([]logic.Trial, len(c.Trials))
	for i, tr := range c.Trials {
		k, err := logic.ParseStimulus(tr.Stimulus)
		if err != nil {
			return logic.Config{}, errors.Wrapf(err, "trial %d", i)
		}
		trials[i] = logic.Trial{Port: tr.Port, Stimulus: k, Interval: tr.Interval}
	}

	return logic.Config{
		Ports:     ports,
		Trials:    trials,
		PortPause: c.AutoTest.PortPause,
	}, nil
}
