package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kzm-Igrsh/EX-peltier/internal/logic"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 10*time.Millisecond, cfg.Tick)
	require.Len(t, cfg.Ports, 3)
	assert.Equal(t, PortConfig{Name: "Left", CoolChannel: 0, HeatChannel: 1, StartsWithCool: true}, cfg.Ports[0])
	assert.Equal(t, PortConfig{Name: "Center", CoolChannel: 2, HeatChannel: 3, StartsWithCool: false}, cfg.Ports[1])
	assert.Equal(t, PortConfig{Name: "Right", CoolChannel: 4, HeatChannel: 5, StartsWithCool: true}, cfg.Ports[2])
	assert.Equal(t, time.Second, cfg.AutoTest.PortPause)
	assert.Len(t, cfg.Trials, logic.TrialCount)
	assert.Equal(t, TrialConfig{Port: 1, Stimulus: "cool", Interval: 1200 * time.Millisecond}, cfg.Trials[0])
	assert.Equal(t, 115200, cfg.Actuator.Baud)
	assert.Equal(t, 1000, cfg.Actuator.PWMFrequency)
	assert.Equal(t, 8, cfg.Actuator.PWMResolution)
	assert.True(t, cfg.Telemetry.Stdout)
	assert.Equal(t, "none", cfg.Journal.Backend)
	assert.NoError(t, cfg.Validate())
}

func TestDefaultMatchesLogic(t *testing.T) {
	lc, err := Default().Logic()
	require.NoError(t, err)
	assert.Equal(t, logic.DefaultTrials[:], lc.Trials)
	assert.Equal(t, time.Second, lc.PortPause)
	assert.Equal(t, logic.StimulusCool, lc.Ports[0].FirstStimulus())
	assert.Equal(t, logic.StimulusHeat, lc.Ports[1].FirstStimulus())
}

func TestLoad_FileNotExists(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_ValidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "peltier.yaml")
	yamlContent := `
tick: 5ms
ports:
  - name: A
    cool_channel: 0
    heat_channel: 1
    starts_with_cool: true
  - name: B
    cool_channel: 2
    heat_channel: 3
autotest:
  port_pause: 0s
actuator:
  serial: /dev/ttyUSB0
mqtt:
  broker: tcp://localhost:1883
journal:
  backend: sqlite
  path: /var/lib/peltier/journal.db
`
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5*time.Millisecond, cfg.Tick)
	require.Len(t, cfg.Ports, 2)
	assert.Equal(t, "B", cfg.Ports[1].Name)
	assert.False(t, cfg.Ports[1].StartsWithCool)
	assert.Equal(t, time.Duration(0), cfg.AutoTest.PortPause)
	assert.Equal(t, "/dev/ttyUSB0", cfg.Actuator.Serial)
	assert.Equal(t, 115200, cfg.Actuator.Baud, "baud falls back to default")
	assert.Equal(t, "tcp://localhost:1883", cfg.MQTT.Broker)
	assert.Equal(t, "peltier-stim", cfg.MQTT.ClientID)
	assert.Equal(t, "sqlite", cfg.Journal.Backend)
	assert.Len(t, cfg.Trials, logic.TrialCount, "trials fall back to default")

	// Default script addresses port 2, which this two-port layout lacks.
	assert.Error(t, cfg.Validate())
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("ports: [unclosed"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	cfg := Default()
	cfg.Buttons.Chip = "gpiochip0"
	cfg.Trials[3].Stimulus = "heat"

	require.NoError(t, cfg.Save(path))
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestEncode(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Default().Encode(&buf))

	out := buf.String()
	assert.Contains(t, out, "tick: 10ms")
	assert.Contains(t, out, "name: Center")
	assert.Contains(t, out, "stimulus: cool")

	path := filepath.Join(t.TempDir(), "encoded.yaml")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default(), loaded)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"zero tick", func(c *Config) { c.Tick = 0 }, "tick"},
		{"negative pause", func(c *Config) { c.AutoTest.PortPause = -time.Second }, "port_pause"},
		{"no ports", func(c *Config) { c.Ports = nil }, "no ports"},
		{"empty name", func(c *Config) { c.Ports[1].Name = "" }, "name is required"},
		{"duplicate name", func(c *Config) { c.Ports[2].Name = "Left" }, "already used"},
		{"shared channel", func(c *Config) { c.Ports[1].HeatChannel = 0 }, "channel 0"},
		{"negative channel", func(c *Config) { c.Ports[0].CoolChannel = -1 }, "negative channel"},
		{"too few trials", func(c *Config) { c.Trials = c.Trials[:19] }, "want exactly 20"},
		{"trial port out of range", func(c *Config) { c.Trials[4].Port = 3 }, "out of range"},
		{"unknown stimulus", func(c *Config) { c.Trials[0].Stimulus = "warm" }, "unknown stimulus"},
		{"zero interval", func(c *Config) { c.Trials[7].Interval = 0 }, "interval"},
		{"button pins collide", func(c *Config) {
			c.Buttons.Chip = "gpiochip0"
			c.Buttons.StopPin = c.Buttons.AutoTestPin
		}, "used twice"},
		{"sqlite without path", func(c *Config) { c.Journal.Backend = "sqlite" }, "requires a path"},
		{"unknown journal", func(c *Config) { c.Journal.Backend = "postgres" }, "unsupported backend"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)

			_, err = cfg.Logic()
			assert.Error(t, err)
		})
	}
}

func TestValidate_ButtonsDisabledIgnoresPins(t *testing.T) {
	cfg := Default()
	cfg.Buttons.StopPin = cfg.Buttons.AutoTestPin
	assert.NoError(t, cfg.Validate())
}
