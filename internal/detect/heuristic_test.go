package detect

import (
	"math"
	"testing"

	"github.com/maomorales/bark-sensor-home-assistant/internal/config"
)

func testDetectionConfig() config.DetectionConfig {
	return config.DetectionConfig{
		RMSThreshold:  0.02,
		BandLowHz:     400,
		BandHighHz:    3000,
		BandEnergyMin: 1.0e-6,
	}
}

func sine(freq float64, amplitude float64, rate, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}
	return out
}

func TestHeuristicSilenceIsNegative(t *testing.T) {
	d, err := NewHeuristicDetector(testDetectionConfig(), 16000)
	if err != nil {
		t.Fatalf("NewHeuristicDetector failed: %v", err)
	}

	dec, err := d.Classify(make([]float32, 16000))
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}

	if dec.Positive {
		t.Error("Silence should classify as negative")
	}

	if dec.Score > 0.01 {
		t.Errorf("Expected near-zero score for silence, got %f", dec.Score)
	}
}

func TestHeuristicInBandToneIsPositive(t *testing.T) {
	d, err := NewHeuristicDetector(testDetectionConfig(), 16000)
	if err != nil {
		t.Fatalf("NewHeuristicDetector failed: %v", err)
	}

	// 1 kHz sits inside the 400-3000 Hz band, well above the RMS floor
	dec, err := d.Classify(sine(1000, 0.5, 16000, 16000))
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}

	if !dec.Positive {
		t.Error("Loud in-band tone should classify as positive")
	}

	if dec.Score < 0.8 {
		t.Errorf("Expected high score for loud in-band tone, got %f", dec.Score)
	}
}

func TestHeuristicOutOfBandToneIsNegative(t *testing.T) {
	d, err := NewHeuristicDetector(testDetectionConfig(), 16000)
	if err != nil {
		t.Fatalf("NewHeuristicDetector failed: %v", err)
	}

	// 6 kHz is loud but well outside the bark band
	dec, err := d.Classify(sine(6000, 0.5, 16000, 16000))
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}

	if dec.Positive {
		t.Error("Out-of-band tone should classify as negative")
	}
}

func TestHeuristicQuietInBandToneIsNegative(t *testing.T) {
	d, err := NewHeuristicDetector(testDetectionConfig(), 16000)
	if err != nil {
		t.Fatalf("NewHeuristicDetector failed: %v", err)
	}

	dec, err := d.Classify(sine(1000, 0.001, 16000, 16000))
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}

	if dec.Positive {
		t.Error("Tone below the RMS threshold should classify as negative")
	}
}

func TestHeuristicEmptyWindow(t *testing.T) {
	d, err := NewHeuristicDetector(testDetectionConfig(), 16000)
	if err != nil {
		t.Fatalf("NewHeuristicDetector failed: %v", err)
	}

	if _, err := d.Classify(nil); err == nil {
		t.Error("Expected error for empty window")
	}
}

func TestHeuristicShortWindow(t *testing.T) {
	d, err := NewHeuristicDetector(testDetectionConfig(), 16000)
	if err != nil {
		t.Fatalf("NewHeuristicDetector failed: %v", err)
	}

	// Shorter than one Welch segment: still classifiable via zero padding
	dec, err := d.Classify(sine(1000, 0.5, 16000, 100))
	if err != nil {
		t.Fatalf("Classify failed on short window: %v", err)
	}

	if !dec.Positive {
		t.Error("Loud in-band tone should classify as positive even in a short window")
	}
}

func TestHeuristicValidation(t *testing.T) {
	if _, err := NewHeuristicDetector(testDetectionConfig(), 0); err == nil {
		t.Error("Expected error for zero sample rate")
	}

	cfg := testDetectionConfig()
	cfg.BandHighHz = 9000 // above Nyquist at 16 kHz
	if _, err := NewHeuristicDetector(cfg, 16000); err == nil {
		t.Error("Expected error for band above Nyquist")
	}
}
