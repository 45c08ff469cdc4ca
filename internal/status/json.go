package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Primary       PumpJSON   `json:"primary"`
	Secondary     PumpJSON   `json:"secondary"`
	Running       string     `json:"running"`
	Client        ClientJSON `json:"client"`
	Link          string     `json:"link"`
	UptimeSeconds int64      `json:"uptime_seconds"`
	StartTime     string     `json:"start_time"`
	Timestamp     string     `json:"timestamp"`
	MQTT          MQTTStatus `json:"mqtt"`
	Counts        CountsJSON `json:"event_counts"`
	System        SystemJSON `json:"system"`
	Config        ConfigJSON `json:"config"`
}

// PumpJSON is the JSON representation of one pump's cached state.
type PumpJSON struct {
	State   string `json:"state"`
	StampUs uint64 `json:"stamp_us,omitempty"`
}

// ClientJSON reports the reporting client.
type ClientJSON struct {
	Connected bool   `json:"connected"`
	Addr      string `json:"addr,omitempty"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker,omitempty"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	PrimaryOn    uint64 `json:"primary_on"`
	PrimaryOff   uint64 `json:"primary_off"`
	SecondaryOn  uint64 `json:"secondary_on"`
	SecondaryOff uint64 `json:"secondary_off"`
	Connects     uint64 `json:"connects"`
	Dropped      uint64 `json:"dropped"`
}

// SystemJSON is the JSON representation of host health.
type SystemJSON struct {
	CPUPercent        float64 `json:"cpu_percent"`
	MemUsedMB         float64 `json:"mem_used_mb"`
	MemTotalMB        float64 `json:"mem_total_mb"`
	DiskUsedGB        float64 `json:"disk_used_gb"`
	DiskTotalGB       float64 `json:"disk_total_gb"`
	HostUptimeSeconds int64   `json:"host_uptime_seconds"`
}

// ConfigJSON is the JSON representation of appliance config.
type ConfigJSON struct {
	ServiceAddr string `json:"service_addr"`
	HTTPAddr    string `json:"http_addr"`
	Broker      string `json:"broker,omitempty"`
	Iface       string `json:"iface,omitempty"`
	SettleMs    int64  `json:"settle_ms"`
	BusDepth    int    `json:"bus_depth"`
}

// BuildJSON assembles the JSON view of a snapshot plus a host-health
// sample. Websocket and HTTP surfaces share this shape.
func BuildJSON(snap Snapshot, sys SystemInfo) StatusJSON {
	inner := StatusInner{
		Primary: PumpJSON{
			State:   snap.Pumps.Primary.State.String(),
			StampUs: uint64(snap.Pumps.Primary.Stamp),
		},
		Secondary: PumpJSON{
			State:   snap.Pumps.Secondary.State.String(),
			StampUs: uint64(snap.Pumps.Secondary.Stamp),
		},
		Running:       snap.Running(),
		Link:          snap.Link.String(),
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			PrimaryOn:    snap.Counts.PrimaryOn,
			PrimaryOff:   snap.Counts.PrimaryOff,
			SecondaryOn:  snap.Counts.SecondaryOn,
			SecondaryOff: snap.Counts.SecondaryOff,
			Connects:     snap.Counts.Connects,
			Dropped:      snap.Counts.Dropped,
		},
		System: SystemJSON{
			CPUPercent:        sys.CPUPercent,
			MemUsedMB:         sys.MemUsedMB,
			MemTotalMB:        sys.MemTotalMB,
			DiskUsedGB:        sys.DiskUsedGB,
			DiskTotalGB:       sys.DiskTotalGB,
			HostUptimeSeconds: int64(sys.HostUptime.Seconds()),
		},
		Config: ConfigJSON{
			ServiceAddr: snap.Config.ServiceAddr,
			HTTPAddr:    snap.Config.HTTPAddr,
			Broker:      snap.Config.Broker,
			Iface:       snap.Config.Iface,
			SettleMs:    snap.Config.SettleMs,
			BusDepth:    snap.Config.BusDepth,
		},
	}

	if snap.Client {
		inner.Client = ClientJSON{Connected: true, Addr: snap.ClientAddr.String()}
	}

	return StatusJSON{Status: inner}
}

// FormatJSON returns the indented JSON status for the web endpoint.
func FormatJSON(snap Snapshot, sys SystemInfo) []byte {
	data, _ := json.MarshalIndent(BuildJSON(snap, sys), "", "  ")
	return data
}
