package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/Kzm-Igrsh/EX-peltier/internal/logic"
	"github.com/Kzm-Igrsh/EX-peltier/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"stateClass": func(s logic.PortState) string {
		switch s {
		case logic.StateHeatStart, logic.StateHeat, logic.StateHeatEnd:
			return "heat"
		case logic.StateCoolStart, logic.StateCool, logic.StateCoolEnd:
			return "cool"
		}
		return "idle"
	},
	"inc": func(i int) int { return i + 1 },
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Peltier Stimulator</title>
<style>
body { font-family: monospace; max-width: 640px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.heat { color: #c33; font-weight: bold; }
.cool { color: #36c; font-weight: bold; }
.idle { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
form { display: inline; }
button { font-family: monospace; margin: 2px; }
</style>
</head>
<body>
<h1>Peltier Stimulator</h1>

<h2>Sequencer</h2>
<table>
<tr><th>Mode</th><td>{{.View.Mode}}</td></tr>
{{if eq (printf "%s" .View.Mode) "AUTO_TEST"}}<tr><th>Auto-test</th><td>port {{.View.AutoPort}} {{.View.AutoPhase}}</td></tr>{{end}}
{{if eq (printf "%s" .View.Mode) "EXPERIMENT"}}<tr><th>Experiment</th><td>trial {{inc .View.Trial}}/{{.Trials}} {{.View.ExpPhase}}</td></tr>{{end}}
<tr><th>Telemetry</th><td>{{if .View.Telemetry.Position}}{{.View.Telemetry.Line}}{{else}}-{{end}}</td></tr>
{{if .RunID}}<tr><th>Run</th><td>{{.RunID}}</td></tr>{{end}}
</table>
<form method="post" action="/command/autotest"><button>Auto test</button></form>
<form method="post" action="/command/experiment"><button>Experiment</button></form>
<form method="post" action="/command/stop"><button>Stop</button></form>

<h2>Ports</h2>
<table>
<tr><th>Port</th><td>State</td><td>Cool</td><td>Heat</td><td></td></tr>
{{range $i, $p := .View.Ports}}<tr><th>{{$i}} {{$p.Name}}</th><td class="{{stateClass $p.State}}">{{$p.State}}</td><td>{{$p.Cool}}</td><td>{{$p.Heat}}</td>
<td><form method="post" action="/command/heat?port={{$i}}"><button>heat</button></form><form method="post" action="/command/cool?port={{$i}}"><button>cool</button></form></td></tr>
{{end}}</table>

<h2>Counts</h2>
<table>
<tr><th>Auto-tests</th><td>{{.View.Counts.AutoTests}}</td></tr>
<tr><th>Experiments</th><td>{{.View.Counts.Experiments}}</td></tr>
<tr><th>Completed</th><td>{{.View.Counts.Completed}}</td></tr>
<tr><th>Stopped</th><td>{{.View.Counts.Stopped}}</td></tr>
<tr><th>Stimuli</th><td>{{.View.Counts.Stimuli}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{if .Config.Broker}}{{.Config.Broker}}{{else}}disabled{{end}}</td></tr>
<tr><th>Actuator</th><td>{{if .Config.Actuator}}{{.Config.Actuator}}{{else}}log only{{end}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Tick</th><td>{{.Config.TickMs}}ms</td></tr>
<tr><th>Port pause</th><td>{{.Config.PortPauseMs}}ms</td></tr>
<tr><th>PWM</th><td>{{.Config.PWMFrequency}} Hz, {{.Config.PWMResolution}} bit</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>Journal</th><td>{{.Config.Journal}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a>{{if ne .Config.Journal "none"}} · <a href="/runs.json">runs</a>{{end}}</p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
		Trials int
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
		Trials:   logic.TrialCount,
	}
	indexTmpl.Execute(w, data)
}
