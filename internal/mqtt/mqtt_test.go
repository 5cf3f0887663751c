package mqtt

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sweeney/door-controller/internal/logic"
)

func doorEvent(typ logic.EventType, door logic.DoorState) logic.Event {
	return logic.Event{
		Timestamp: time.Date(2026, 2, 2, 22, 18, 12, 0, time.UTC),
		Type:      typ,
		Door:      door,
		Battery:   logic.BatteryMax,
		Source:    logic.SourceDoorButton,
	}
}

func TestFormatPayload(t *testing.T) {
	payload, err := FormatPayload(doorEvent(logic.EventDoorOpen, logic.DoorOpen))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var parsed Payload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if parsed.Door.Timestamp != "2026-02-02T22:18:12Z" {
		t.Errorf("unexpected timestamp: %s", parsed.Door.Timestamp)
	}
	if parsed.Door.Event != "DOOR_OPEN" {
		t.Errorf("unexpected event: %s", parsed.Door.Event)
	}
	if parsed.Door.State != "OPEN" {
		t.Errorf("unexpected state: %s", parsed.Door.State)
	}
	if parsed.Door.Battery != "MAX" {
		t.Errorf("unexpected battery: %s", parsed.Door.Battery)
	}
	if parsed.Door.Source != "door_button" {
		t.Errorf("unexpected source: %s", parsed.Door.Source)
	}
}

func TestFormatPayloadExactJSON(t *testing.T) {
	event := doorEvent(logic.EventBatteryLevel, logic.DoorClosed)
	event.Battery = logic.BatteryLow
	event.Source = logic.SourceBatteryLow

	payload, err := FormatPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"door":{"timestamp":"2026-02-02T22:18:12Z","event":"BATTERY_LEVEL","state":"CLOSED","battery":"LOW","source":"battery_low"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", string(payload), expected)
	}
}

func TestFormatPayloadAllEventTypes(t *testing.T) {
	tests := []struct {
		eventType logic.EventType
		door      logic.DoorState
		wantEvent string
		wantState string
	}{
		{logic.EventDoorOpen, logic.DoorOpen, "DOOR_OPEN", "OPEN"},
		{logic.EventDoorClosed, logic.DoorClosed, "DOOR_CLOSED", "CLOSED"},
		{logic.EventDoorStopped, logic.DoorStopped, "DOOR_STOPPED", "STOPPED"},
		{logic.EventToggleIgnored, logic.DoorStopped, "TOGGLE_IGNORED", "STOPPED"},
		{logic.EventBatteryLevel, logic.DoorOpen, "BATTERY_LEVEL", "OPEN"},
		{logic.EventSpurious, logic.DoorClosed, "SPURIOUS_INTERRUPT", "CLOSED"},
		{logic.EventRelayFault, logic.DoorStopped, "RELAY_FAULT", "STOPPED"},
		{logic.EventGPIOError, logic.DoorStopped, "GPIO_ERROR", "STOPPED"},
	}

	for _, tt := range tests {
		t.Run(string(tt.eventType), func(t *testing.T) {
			payload, err := FormatPayload(doorEvent(tt.eventType, tt.door))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			var parsed Payload
			if err := json.Unmarshal(payload, &parsed); err != nil {
				t.Fatalf("invalid JSON: %v", err)
			}
			if parsed.Door.Event != tt.wantEvent {
				t.Errorf("event: got %s, want %s", parsed.Door.Event, tt.wantEvent)
			}
			if parsed.Door.State != tt.wantState {
				t.Errorf("state: got %s, want %s", parsed.Door.State, tt.wantState)
			}
		})
	}
}

func TestFormatPayloadOmitsEmptyDetail(t *testing.T) {
	event := doorEvent(logic.EventDoorStopped, logic.DoorStopped)
	event.Source = ""

	payload, err := FormatPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var raw map[string]map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	for _, key := range []string{"source", "detail"} {
		if _, ok := raw["door"][key]; ok {
			t.Errorf("%s should be omitted when empty", key)
		}
	}
}

func TestFormatPayloadTimezoneConversion(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	event := doorEvent(logic.EventDoorClosed, logic.DoorClosed)
	event.Timestamp = time.Date(2026, 2, 3, 12, 0, 0, 0, loc)

	payload, err := FormatPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var parsed Payload
	json.Unmarshal(payload, &parsed)
	if parsed.Door.Timestamp != "2026-02-03T10:00:00Z" {
		t.Errorf("timestamp should be UTC, got %s", parsed.Door.Timestamp)
	}
}

func TestTopics(t *testing.T) {
	if Topic != "home/door/controller/events" {
		t.Errorf("unexpected topic: %s", Topic)
	}
	if TopicSystem != "home/door/controller/system" {
		t.Errorf("unexpected system topic: %s", TopicSystem)
	}
}

func TestFormatSystemPayloadExactJSON(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 3, 10, 30, 45, 0, time.UTC),
		Event:     "SHUTDOWN",
		Reason:    "SIGTERM",
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"system":{"timestamp":"2026-02-03T10:30:45Z","event":"SHUTDOWN","reason":"SIGTERM"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", string(payload), expected)
	}
}

func TestWillPayloadFormat(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 10, 8, 30, 0, 0, time.UTC),
		Event:     "OFFLINE",
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"system":{"timestamp":"2026-02-10T08:30:00Z","event":"OFFLINE"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", string(payload), expected)
	}
}

func TestFormatSystemPayloadRawPassthrough(t *testing.T) {
	raw := []byte(`{"system":{"event":"HEARTBEAT"}}`)
	payload, err := FormatSystemPayload(SystemEvent{Event: "STARTUP", RawPayload: raw})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(payload) != string(raw) {
		t.Errorf("raw payload should be returned as-is, got %s", payload)
	}
}

func TestFakePublisher(t *testing.T) {
	f := NewFakePublisher()

	if err := f.Publish(doorEvent(logic.EventDoorOpen, logic.DoorOpen)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.Publish(doorEvent(logic.EventDoorStopped, logic.DoorStopped)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := f.EventTypes()
	if len(got) != 2 || got[0] != logic.EventDoorOpen || got[1] != logic.EventDoorStopped {
		t.Errorf("unexpected events: %v", got)
	}
	if len(f.Payloads) != 2 {
		t.Fatalf("expected 2 payloads, got %d", len(f.Payloads))
	}
}

func TestFakePublisherError(t *testing.T) {
	f := NewFakePublisher()
	f.PublishError = errors.New("simulated error")
	f.PublishSystemError = errors.New("simulated system error")

	if err := f.Publish(doorEvent(logic.EventDoorOpen, logic.DoorOpen)); err == nil {
		t.Error("expected error")
	}
	if err := f.PublishSystem(SystemEvent{Event: "STARTUP"}); err == nil {
		t.Error("expected system error")
	}
	if len(f.Events) != 0 || len(f.SystemEvents) != 0 {
		t.Error("nothing should be recorded on error")
	}
}

func TestFakePublisherRecordsRetainedFlag(t *testing.T) {
	f := NewFakePublisher()
	f.PublishSystem(SystemEvent{Event: "STARTUP", Retained: true})
	f.PublishSystem(SystemEvent{Event: "HEARTBEAT"})

	if !f.SystemEvents[0].Retained {
		t.Error("STARTUP should be retained")
	}
	if f.SystemEvents[1].Retained {
		t.Error("HEARTBEAT should not be retained")
	}
}

func TestFakePublisherReset(t *testing.T) {
	f := NewFakePublisher()
	f.Publish(doorEvent(logic.EventDoorOpen, logic.DoorOpen))
	f.PublishSystem(SystemEvent{Event: "STARTUP"})
	f.Close()
	f.Connected = true
	f.PublishError = errors.New("error")

	f.Reset()

	if len(f.Events) != 0 || len(f.Payloads) != 0 {
		t.Error("events should be cleared")
	}
	if len(f.SystemEvents) != 0 || len(f.SystemPayloads) != 0 {
		t.Error("system events should be cleared")
	}
	if f.Closed || f.Connected || f.PublishError != nil {
		t.Error("flags should be reset")
	}

	// Reusable after reset
	if err := f.Publish(doorEvent(logic.EventDoorClosed, logic.DoorClosed)); err != nil {
		t.Errorf("unexpected error after reset: %v", err)
	}
}

func TestFakePublisherClose(t *testing.T) {
	f := NewFakePublisher()
	if f.Closed {
		t.Error("should not be closed initially")
	}
	if err := f.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !f.Closed {
		t.Error("should be closed after Close()")
	}
}
