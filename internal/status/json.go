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
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Door          string       `json:"door"`
	Battery       string       `json:"battery"`
	LED           bool         `json:"led"`
	BlinkPhase    uint8        `json:"blink_phase"`
	Relays        RelaysJSON   `json:"relays"`
	LastEvent     *EventJSON   `json:"last_event,omitempty"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counts        CountsJSON   `json:"event_counts"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// RelaysJSON reports whether each relay is energized.
type RelaysJSON struct {
	Open  bool `json:"open"`
	Close bool `json:"close"`
}

// EventJSON is the most recent controller event.
type EventJSON struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
	Source    string `json:"source,omitempty"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of controller counters.
type CountsJSON struct {
	Toggles        int `json:"toggles"`
	Stops          int `json:"stops"`
	IgnoredToggles int `json:"ignored_toggles"`
	LevelSets      int `json:"level_sets"`
	Spurious       int `json:"spurious"`
	RelayFaults    int `json:"relay_faults"`
	GPIOErrors     int `json:"gpio_errors"`
	Ticks          int `json:"ticks"`
	Dropped        int `json:"dropped_events"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	TickMs         int64  `json:"tick_ms"`
	HeartbeatMs    int64  `json:"heartbeat_ms"`
	Broker         string `json:"broker"`
	HTTPPort       string `json:"http_port"`
	WSBroker       string `json:"ws_broker,omitempty"`
	Chip           string `json:"chip"`
	RelayActiveLow bool   `json:"relay_active_low"`
}

func buildInner(snap Snapshot) StatusInner {
	door := string(snap.Controller.Door)
	if door == "" {
		door = "UNKNOWN"
	}
	c := snap.Controller.Counts

	inner := StatusInner{
		Door:          door,
		Battery:       snap.Controller.Battery.String(),
		LED:           snap.Controller.LED,
		BlinkPhase:    snap.Controller.BlinkPhase,
		Relays:        RelaysJSON{Open: snap.Controller.Relays.Open, Close: snap.Controller.Relays.Close},
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Toggles:        c.Toggles,
			Stops:          c.Stops,
			IgnoredToggles: c.IgnoredToggles,
			LevelSets:      c.LevelSets,
			Spurious:       c.Spurious,
			RelayFaults:    c.RelayFaults,
			GPIOErrors:     c.GPIOErrors,
			Ticks:          c.Ticks,
			Dropped:        c.Dropped,
		},
		Config: ConfigJSON{
			TickMs:         snap.Config.TickMs,
			HeartbeatMs:    snap.Config.HeartbeatMs,
			Broker:         snap.Config.Broker,
			HTTPPort:       snap.Config.HTTPPort,
			WSBroker:       snap.Config.WSBroker,
			Chip:           snap.Config.Chip,
			RelayActiveLow: snap.Config.RelayActiveLow,
		},
	}
	if e := snap.LastEvent; e != nil {
		inner.LastEvent = &EventJSON{
			Type:      string(e.Type),
			Timestamp: e.Timestamp.UTC().Format(time.RFC3339),
			Source:    e.Source,
		}
	}
	return inner
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
