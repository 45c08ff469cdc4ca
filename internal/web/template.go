package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"sumpwatch/internal/status"
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
	"mb": func(v float64) string { return fmt.Sprintf("%.0f MB", v) },
	"gb": func(v float64) string { return fmt.Sprintf("%.1f GB", v) },
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Sump Watch</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.unknown { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
.live-dot { display: inline-block; width: 8px; height: 8px; border-radius: 50%; margin-left: 6px; vertical-align: middle; }
.live-dot.ok { background: green; }
.live-dot.err { background: red; }
.live-dot.pending { background: orange; }
</style>
</head>
<body>
<h1>Sump Watch<span id="live-dot" class="live-dot pending" title="connecting"></span></h1>

<h2>Pumps</h2>
<table>
<tr><th>Primary</th><td id="primary-state" class="{{.Snap.Pumps.Primary.State}}">{{.Snap.Pumps.Primary.State}}</td></tr>
<tr><th>Secondary</th><td id="secondary-state" class="{{.Snap.Pumps.Secondary.State}}">{{.Snap.Pumps.Secondary.State}}</td></tr>
<tr><th>Running</th><td id="running">{{.Snap.Running}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>Client</th><td id="client" class="{{if .Snap.Client}}connected{{else}}disconnected{{end}}">{{if .Snap.Client}}{{.Snap.ClientAddr}}{{else}}none{{end}}</td></tr>
<tr><th>Link ({{.Snap.Config.Iface}})</th><td id="link">{{.Snap.Link}}</td></tr>
<tr><th>MQTT</th><td class="{{if .Snap.MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .Snap.MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
{{if .Snap.Config.Broker}}<tr><th>Broker</th><td>{{.Snap.Config.Broker}}</td></tr>{{end}}
</table>

<h2>Event Counts</h2>
<table>
<tr><th>Primary ON</th><td id="c-pri-on">{{.Snap.Counts.PrimaryOn}}</td></tr>
<tr><th>Primary OFF</th><td id="c-pri-off">{{.Snap.Counts.PrimaryOff}}</td></tr>
<tr><th>Secondary ON</th><td id="c-sec-on">{{.Snap.Counts.SecondaryOn}}</td></tr>
<tr><th>Secondary OFF</th><td id="c-sec-off">{{.Snap.Counts.SecondaryOff}}</td></tr>
<tr><th>Client connects</th><td>{{.Snap.Counts.Connects}}</td></tr>
<tr><th>Events dropped</th><td>{{.Snap.Counts.Dropped}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.Snap.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>CPU</th><td>{{printf "%.1f%%" .Sys.CPUPercent}}</td></tr>
<tr><th>Memory</th><td>{{mb .Sys.MemUsedMB}} / {{mb .Sys.MemTotalMB}}</td></tr>
<tr><th>Disk</th><td>{{gb .Sys.DiskUsedGB}} / {{gb .Sys.DiskTotalGB}}</td></tr>
<tr><th>Settle</th><td>{{.Snap.Config.SettleMs}}ms</td></tr>
<tr><th>Report port</th><td>{{.Snap.Config.ServiceAddr}}</td></tr>
<tr><th>HTTP</th><td>{{.Snap.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> · <a href="/metrics">metrics</a></p>
<script>
(function() {
  var dot = document.getElementById("live-dot");

  function setDot(cls, title) {
    dot.className = "live-dot " + cls;
    dot.title = title;
  }

  function setState(id, state) {
    var el = document.getElementById(id);
    el.textContent = state;
    el.className = state;
  }

  function setText(id, text) {
    document.getElementById(id).textContent = text;
  }

  function connect() {
    var proto = location.protocol === "https:" ? "wss://" : "ws://";
    var ws = new WebSocket(proto + location.host + "/ws");

    ws.onopen = function() { setDot("ok", "live"); };
    ws.onclose = function() {
      setDot("err", "disconnected");
      setTimeout(connect, 5000);
    };
    ws.onmessage = function(evt) {
      try {
        var msg = JSON.parse(evt.data);
        if (msg.type !== "status") return;
        var st = msg.data.status;
        setState("primary-state", st.primary.state);
        setState("secondary-state", st.secondary.state);
        setText("running", st.running);
        setText("link", st.link);
        setText("c-pri-on", st.event_counts.primary_on);
        setText("c-pri-off", st.event_counts.primary_off);
        setText("c-sec-on", st.event_counts.secondary_on);
        setText("c-sec-off", st.event_counts.secondary_off);
        var client = document.getElementById("client");
        if (st.client.connected) {
          client.textContent = st.client.addr;
          client.className = "connected";
        } else {
          client.textContent = "none";
          client.className = "disconnected";
        }
      } catch (e) {}
    };
  }
  connect();
})();
</script>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot, sys status.SystemInfo) {
	data := struct {
		Snap   status.Snapshot
		Uptime time.Duration
		Sys    status.SystemInfo
	}{
		Snap:   snap,
		Uptime: snap.Uptime(),
		Sys:    sys,
	}
	indexTmpl.Execute(w, data)
}
