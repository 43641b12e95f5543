package mqtt

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/maomorales/bark-sensor-home-assistant/internal/config"
	"github.com/maomorales/bark-sensor-home-assistant/internal/pipeline"
)

func TestMarshalEvent(t *testing.T) {
	ts := time.Date(2026, 8, 23, 15, 4, 5, 0, time.UTC)
	data, err := marshalEvent(pipeline.Event{
		Timestamp:   ts,
		DeviceID:    "yard-mic",
		Score:       0.87,
		Detector:    "heuristic",
		CapturePath: "/var/lib/barkdetector/captures/20260823_150405_yard-mic.wav",
	})
	if err != nil {
		t.Fatalf("marshalEvent failed: %v", err)
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatalf("Payload is not valid JSON: %v", err)
	}

	if payload["event"] != "dog_bark" {
		t.Errorf("Expected event 'dog_bark', got %v", payload["event"])
	}
	if payload["ts"] != "2026-08-23T15:04:05Z" {
		t.Errorf("Expected RFC3339 UTC timestamp, got %v", payload["ts"])
	}
	if payload["device_id"] != "yard-mic" {
		t.Errorf("Expected device_id 'yard-mic', got %v", payload["device_id"])
	}
	if payload["score"] != 0.87 {
		t.Errorf("Expected score 0.87, got %v", payload["score"])
	}
	if payload["detector"] != "heuristic" {
		t.Errorf("Expected detector 'heuristic', got %v", payload["detector"])
	}
	if payload["capture"] == "" {
		t.Error("Expected capture path in payload")
	}
}

func TestMarshalEventOmitsEmptyCapture(t *testing.T) {
	data, err := marshalEvent(pipeline.Event{
		Timestamp: time.Now(),
		DeviceID:  "mic",
		Detector:  "heuristic",
	})
	if err != nil {
		t.Fatalf("marshalEvent failed: %v", err)
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatalf("Payload is not valid JSON: %v", err)
	}

	if _, present := payload["capture"]; present {
		t.Error("Expected capture to be omitted when no clip was recorded")
	}
}

func TestNewPublisherDoesNotConnect(t *testing.T) {
	// Construction must not reach for the network
	p := NewPublisher(config.MQTTConfig{
		Enabled: true,
		Host:    "broker.invalid",
		Port:    1883,
		Topic:   "home/sensors/dog_bark",
	}, nil, nil)

	if p == nil {
		t.Fatal("NewPublisher returned nil")
	}

	if p.client.IsConnected() {
		t.Error("Publisher should not connect before Start")
	}
}
