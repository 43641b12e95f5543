package audio

import (
	"testing"
	"time"
)

func TestBlockQueueDropOldest(t *testing.T) {
	q := newBlockQueue(2)

	if dropped := q.push(rawBlock{samples: []float32{1}, rate: 48000}); dropped {
		t.Error("First push should not drop")
	}
	if dropped := q.push(rawBlock{samples: []float32{2}, rate: 48000}); dropped {
		t.Error("Second push should not drop")
	}
	if dropped := q.push(rawBlock{samples: []float32{3}, rate: 48000}); !dropped {
		t.Error("Push into a full queue should evict the oldest block")
	}

	b, ok := q.pop(time.Millisecond)
	if !ok {
		t.Fatal("Expected a block")
	}
	if b.samples[0] != 2 {
		t.Errorf("Expected oldest surviving block 2, got %f", b.samples[0])
	}

	b, ok = q.pop(time.Millisecond)
	if !ok {
		t.Fatal("Expected a block")
	}
	if b.samples[0] != 3 {
		t.Errorf("Expected newest block 3, got %f", b.samples[0])
	}
}

func TestBlockQueuePopTimeout(t *testing.T) {
	q := newBlockQueue(2)

	start := time.Now()
	_, ok := q.pop(20 * time.Millisecond)
	if ok {
		t.Error("Expected timeout on empty queue")
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Error("Pop returned before the timeout elapsed")
	}
}

func TestDownmixStereo(t *testing.T) {
	// Two interleaved stereo frames: (0.2, 0.4) and (-0.6, 0.0)
	mono := downmix([]float32{0.2, 0.4, -0.6, 0.0}, 2)

	if len(mono) != 2 {
		t.Fatalf("Expected 2 frames, got %d", len(mono))
	}

	if diff := mono[0] - 0.3; diff > 1e-6 || diff < -1e-6 {
		t.Errorf("Expected frame 0 mean 0.3, got %f", mono[0])
	}

	if diff := mono[1] - (-0.3); diff > 1e-6 || diff < -1e-6 {
		t.Errorf("Expected frame 1 mean -0.3, got %f", mono[1])
	}
}

func TestDownmixMonoPassthrough(t *testing.T) {
	input := []float32{0.1, 0.2}
	if got := downmix(input, 1); &got[0] != &input[0] {
		t.Error("Mono downmix should return the input unchanged")
	}
}

func TestPadOrTrim(t *testing.T) {
	exact := []float32{1, 2, 3}
	if got := padOrTrim(exact, 3); len(got) != 3 || got[2] != 3 {
		t.Errorf("Exact-length input should pass through, got %v", got)
	}

	trimmed := padOrTrim([]float32{1, 2, 3, 4, 5}, 3)
	if len(trimmed) != 3 || trimmed[2] != 3 {
		t.Errorf("Expected trim to [1 2 3], got %v", trimmed)
	}

	padded := padOrTrim([]float32{1, 2}, 4)
	if len(padded) != 4 {
		t.Fatalf("Expected 4 samples after padding, got %d", len(padded))
	}
	if padded[0] != 1 || padded[1] != 2 || padded[2] != 0 || padded[3] != 0 {
		t.Errorf("Expected right zero padding, got %v", padded)
	}
}

func TestHopSamplesAt(t *testing.T) {
	if got := hopSamplesAt(16000, 0.5); got != 8000 {
		t.Errorf("Expected 8000, got %d", got)
	}

	if got := hopSamplesAt(44100, 0.33); got != 14553 {
		t.Errorf("Expected 14553, got %d", got)
	}

	// Degenerate tiny hop still yields at least one sample
	if got := hopSamplesAt(8000, 0.00001); got != 1 {
		t.Errorf("Expected minimum of 1 sample, got %d", got)
	}
}

func TestCandidateRates(t *testing.T) {
	s, err := NewStream(StreamConfig{
		TargetRate:    16000,
		Channels:      1,
		HopSeconds:    0.5,
		DeviceIndex:   -1,
		FallbackRates: []int{48000, 16000, 44100, 0},
	}, nil, nil)
	if err != nil {
		t.Fatalf("NewStream failed: %v", err)
	}

	rates := s.candidateRates()
	want := []int{16000, 48000, 44100}
	if len(rates) != len(want) {
		t.Fatalf("Expected %v, got %v", want, rates)
	}
	for i := range want {
		if rates[i] != want[i] {
			t.Errorf("Rate %d: expected %d, got %d", i, want[i], rates[i])
		}
	}
}

func TestNewStreamValidation(t *testing.T) {
	if _, err := NewStream(StreamConfig{TargetRate: 0, Channels: 1, HopSeconds: 0.5}, nil, nil); err == nil {
		t.Error("Expected error for zero target rate")
	}

	if _, err := NewStream(StreamConfig{TargetRate: 16000, Channels: 0, HopSeconds: 0.5}, nil, nil); err == nil {
		t.Error("Expected error for zero channels")
	}

	if _, err := NewStream(StreamConfig{TargetRate: 16000, Channels: 1, HopSeconds: 0}, nil, nil); err == nil {
		t.Error("Expected error for zero hop")
	}
}
