package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/door-controller/internal/mqtt"
	"github.com/sweeney/door-controller/internal/status"
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
	"doorClass": func(s string) string {
		switch s {
		case "OPEN", "CLOSED":
			return "stable"
		case "MOVING_OPEN", "MOVING_CLOSED":
			return "moving"
		case "STOPPED":
			return "stopped"
		}
		return "unknown"
	},
	"onOff": func(b bool) string {
		if b {
			return "on"
		}
		return "off"
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Door Controller</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.stable { color: green; font-weight: bold; }
.moving { color: orange; font-weight: bold; }
.stopped { color: red; font-weight: bold; }
.unknown { color: orange; }
.on { color: green; }
.off { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
.live-dot { display: inline-block; width: 8px; height: 8px; border-radius: 50%; margin-left: 6px; vertical-align: middle; }
.live-dot.ok { background: green; }
.live-dot.err { background: red; }
.live-dot.pending { background: orange; }
</style>
</head>
<body>
<h1>Door Controller{{if .Config.WSBroker}}<span id="live-dot" class="live-dot pending" title="connecting"></span>{{end}}</h1>

<h2>State</h2>
<table>
<tr><th>Door</th><td id="door-state" class="{{doorClass .Door}}">{{.Door}}</td></tr>
<tr><th>Battery</th><td id="battery-level">{{.Controller.Battery}}</td></tr>
<tr><th>Status LED</th><td class="{{onOff .Controller.LED}}">{{onOff .Controller.LED}}</td></tr>
<tr><th>Open relay</th><td class="{{onOff .Controller.Relays.Open}}">{{onOff .Controller.Relays.Open}}</td></tr>
<tr><th>Close relay</th><td class="{{onOff .Controller.Relays.Close}}">{{onOff .Controller.Relays.Close}}</td></tr>
{{if .LastEvent}}<tr><th>Last event</th><td id="last-event">{{.LastEvent.Type}}{{if .LastEvent.Source}} ({{.LastEvent.Source}}){{end}}</td></tr>{{end}}
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Counters</h2>
<table>
<tr><th>Toggles</th><td>{{.Controller.Counts.Toggles}}</td></tr>
<tr><th>Stops</th><td>{{.Controller.Counts.Stops}}</td></tr>
<tr><th>Ignored toggles</th><td>{{.Controller.Counts.IgnoredToggles}}</td></tr>
<tr><th>Battery selects</th><td>{{.Controller.Counts.LevelSets}}</td></tr>
<tr><th>Spurious interrupts</th><td>{{.Controller.Counts.Spurious}}</td></tr>
<tr><th>Relay faults</th><td>{{.Controller.Counts.RelayFaults}}</td></tr>
<tr><th>GPIO errors</th><td>{{.Controller.Counts.GPIOErrors}}</td></tr>
<tr><th>Dropped events</th><td>{{.Controller.Counts.Dropped}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>GPIO chip</th><td>{{.Config.Chip}}</td></tr>
<tr><th>Relays</th><td>{{if .Config.RelayActiveLow}}active-low{{else}}active-high{{end}}</td></tr>
<tr><th>Tick</th><td>{{.Config.TickMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPPort}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
{{if .Config.WSBroker}}
<script src="https://unpkg.com/mqtt@5/dist/mqtt.min.js"></script>
<script>
(function() {
  var broker = "{{.Config.WSBroker}}";
  var topic = "{{.Topic}}";
  var dot = document.getElementById("live-dot");
  var doorEl = document.getElementById("door-state");
  var batteryEl = document.getElementById("battery-level");

  function doorClass(state) {
    if (state === "OPEN" || state === "CLOSED") return "stable";
    if (state === "MOVING_OPEN" || state === "MOVING_CLOSED") return "moving";
    if (state === "STOPPED") return "stopped";
    return "unknown";
  }

  function setDot(cls, title) {
    dot.className = "live-dot " + cls;
    dot.title = title;
  }

  var client = mqtt.connect(broker, { reconnectPeriod: 5000 });

  client.on("connect", function() {
    setDot("ok", "live");
    client.subscribe(topic);
  });

  client.on("reconnect", function() {
    setDot("pending", "reconnecting");
  });

  client.on("offline", function() {
    setDot("err", "offline");
  });

  client.on("error", function() {
    setDot("err", "error");
  });

  client.on("message", function(t, payload) {
    try {
      var msg = JSON.parse(payload.toString());
      if (msg.door) {
        doorEl.textContent = msg.door.state;
        doorEl.className = doorClass(msg.door.state);
        batteryEl.textContent = msg.door.battery;
      }
    } catch (e) {}
  });
})();
</script>
{{end}}
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	door := string(snap.Controller.Door)
	if door == "" {
		door = "UNKNOWN"
	}
	data := struct {
		status.Snapshot
		Uptime time.Duration
		Door   string
		Topic  string
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
		Door:     door,
		Topic:    mqtt.Topic,
	}
	indexTmpl.Execute(w, data)
}
