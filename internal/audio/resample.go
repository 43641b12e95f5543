package audio

import (
	"fmt"
	"math"
)

// Resampler converts mono float32 audio between two sample rates using
// rational polyphase resampling: the signal is conceptually upsampled by L
// (zero stuffing), filtered with a windowed-sinc low-pass, and decimated
// by M, where L/M = to/from in lowest terms. When the rates match it is a
// pass-through.
type Resampler struct {
	from int
	to   int
	up   int // L
	down int // M

	// Low-pass FIR, length 2*halfTaps+1, centered at halfTaps,
	// designed in the upsampled domain with gain L.
	filter   []float64
	halfTaps int
}

// filterTapsPerBranch controls filter sharpness; 8 sided taps per polyphase
// branch keeps aliasing below the 16-bit noise floor for speech-band audio.
const filterTapsPerBranch = 8

// NewResampler creates a resampler from one sample rate to another
func NewResampler(from, to int) (*Resampler, error) {
	if from <= 0 {
		return nil, fmt.Errorf("source rate must be positive, got %d", from)
	}

	if to <= 0 {
		return nil, fmt.Errorf("target rate must be positive, got %d", to)
	}

	g := gcd(from, to)
	r := &Resampler{
		from: from,
		to:   to,
		up:   to / g,
		down: from / g,
	}

	if r.up != r.down {
		r.designFilter()
	}

	return r, nil
}

// designFilter builds the windowed-sinc low-pass used by Resample.
// Cutoff sits just below the narrower of the two Nyquist limits.
func (r *Resampler) designFilter() {
	maxRate := r.up
	if r.down > maxRate {
		maxRate = r.down
	}

	// Normalized cutoff in the upsampled domain, with rolloff margin.
	fc := 0.45 / float64(maxRate)

	r.halfTaps = filterTapsPerBranch * maxRate
	n := 2*r.halfTaps + 1
	r.filter = make([]float64, n)

	for i := 0; i < n; i++ {
		t := float64(i - r.halfTaps)

		var sinc float64
		if t == 0 {
			sinc = 2 * fc
		} else {
			sinc = math.Sin(2*math.Pi*fc*t) / (math.Pi * t)
		}

		// Blackman window
		w := 0.42 -
			0.5*math.Cos(2*math.Pi*float64(i)/float64(n-1)) +
			0.08*math.Cos(4*math.Pi*float64(i)/float64(n-1))

		// Gain L compensates the energy lost to zero stuffing.
		r.filter[i] = sinc * w * float64(r.up)
	}
}

// Ratio returns the resampling ratio in lowest terms (up, down)
func (r *Resampler) Ratio() (int, int) {
	return r.up, r.down
}

// OutputLen returns the number of output samples produced for an input of n samples
func (r *Resampler) OutputLen(n int) int {
	if r.up == r.down {
		return n
	}
	return (n*r.up + r.down - 1) / r.down
}

// Resample converts a block of samples from the source to the target rate.
// Each block is resampled independently; samples outside the block are
// treated as zero, matching the block-at-a-time behavior the chunk
// normalization downstream corrects for.
func (r *Resampler) Resample(input []float32) []float32 {
	if r.up == r.down {
		out := make([]float32, len(input))
		copy(out, input)
		return out
	}

	if len(input) == 0 {
		return nil
	}

	output := make([]float32, r.OutputLen(len(input)))

	for n := range output {
		// Position of this output sample on the upsampled grid.
		pos := n * r.down

		// Input samples whose upsampled positions fall inside the filter span.
		mLow := (pos - r.halfTaps + r.up - 1) / r.up
		if mLow < 0 {
			mLow = 0
		}
		mHigh := (pos + r.halfTaps) / r.up
		if mHigh > len(input)-1 {
			mHigh = len(input) - 1
		}

		var acc float64
		for m := mLow; m <= mHigh; m++ {
			j := pos - m*r.up + r.halfTaps
			acc += r.filter[j] * float64(input[m])
		}
		output[n] = float32(acc)
	}

	return output
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
