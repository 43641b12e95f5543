package audio

import (
	"math"
	"testing"
)

func TestResamplerPassthrough(t *testing.T) {
	rs, err := NewResampler(16000, 16000)
	if err != nil {
		t.Fatalf("NewResampler failed: %v", err)
	}

	input := []float32{0.1, -0.2, 0.3, -0.4}
	output := rs.Resample(input)

	if len(output) != len(input) {
		t.Fatalf("Expected %d samples, got %d", len(input), len(output))
	}

	for i := range input {
		if output[i] != input[i] {
			t.Errorf("Sample %d changed: %f -> %f", i, input[i], output[i])
		}
	}

	// Pass-through must still copy so callers can retain the result
	output[0] = 99
	if input[0] == 99 {
		t.Error("Pass-through output aliases the input slice")
	}
}

func TestResamplerInvalidRates(t *testing.T) {
	if _, err := NewResampler(0, 16000); err == nil {
		t.Error("Expected error for zero source rate")
	}

	if _, err := NewResampler(48000, -1); err == nil {
		t.Error("Expected error for negative target rate")
	}
}

func TestResamplerRatio(t *testing.T) {
	rs, err := NewResampler(48000, 16000)
	if err != nil {
		t.Fatalf("NewResampler failed: %v", err)
	}

	up, down := rs.Ratio()
	if up != 1 || down != 3 {
		t.Errorf("Expected ratio 1/3 for 48k->16k, got %d/%d", up, down)
	}

	rs, err = NewResampler(44100, 16000)
	if err != nil {
		t.Fatalf("NewResampler failed: %v", err)
	}

	up, down = rs.Ratio()
	if up != 160 || down != 441 {
		t.Errorf("Expected ratio 160/441 for 44.1k->16k, got %d/%d", up, down)
	}
}

func TestResamplerOutputLength(t *testing.T) {
	tests := []struct {
		from, to, in, want int
	}{
		{48000, 16000, 24000, 8000},
		{48000, 16000, 24001, 8001}, // ceil
		{44100, 16000, 22050, 8000},
		{16000, 48000, 8000, 24000},
	}

	for _, tt := range tests {
		rs, err := NewResampler(tt.from, tt.to)
		if err != nil {
			t.Fatalf("NewResampler(%d, %d) failed: %v", tt.from, tt.to, err)
		}

		if got := rs.OutputLen(tt.in); got != tt.want {
			t.Errorf("OutputLen(%d) for %d->%d: expected %d, got %d",
				tt.in, tt.from, tt.to, tt.want, got)
		}

		out := rs.Resample(make([]float32, tt.in))
		if len(out) != tt.want {
			t.Errorf("Resample length for %d->%d: expected %d, got %d",
				tt.from, tt.to, tt.want, len(out))
		}
	}
}

func TestResamplerDCPreservation(t *testing.T) {
	// A constant signal must stay (approximately) constant away from the
	// block edges, where the zero boundary bleeds in.
	rs, err := NewResampler(48000, 16000)
	if err != nil {
		t.Fatalf("NewResampler failed: %v", err)
	}

	input := make([]float32, 4800)
	for i := range input {
		input[i] = 0.5
	}

	output := rs.Resample(input)

	margin := len(output) / 10
	for i := margin; i < len(output)-margin; i++ {
		if math.Abs(float64(output[i])-0.5) > 0.01 {
			t.Fatalf("Interior sample %d deviates from DC level: %f", i, output[i])
		}
	}
}

func TestResamplerToneSurvivesDownsampling(t *testing.T) {
	// A 440 Hz tone is far below the 8 kHz output Nyquist and must keep
	// its amplitude through 48k->16k conversion.
	rs, err := NewResampler(48000, 16000)
	if err != nil {
		t.Fatalf("NewResampler failed: %v", err)
	}

	input := make([]float32, 9600)
	for i := range input {
		input[i] = float32(0.8 * math.Sin(2*math.Pi*440*float64(i)/48000))
	}

	output := rs.Resample(input)

	var peak float64
	margin := len(output) / 10
	for i := margin; i < len(output)-margin; i++ {
		if v := math.Abs(float64(output[i])); v > peak {
			peak = v
		}
	}

	if peak < 0.7 || peak > 0.9 {
		t.Errorf("Expected interior peak near 0.8, got %f", peak)
	}
}

func TestResamplerEmptyInput(t *testing.T) {
	rs, err := NewResampler(48000, 16000)
	if err != nil {
		t.Fatalf("NewResampler failed: %v", err)
	}

	if out := rs.Resample(nil); len(out) != 0 {
		t.Errorf("Expected empty output for empty input, got %d samples", len(out))
	}
}
