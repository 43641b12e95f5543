package detect

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/maomorales/bark-sensor-home-assistant/internal/config"
)

const (
	// welchSegment is the Welch method segment length; 256 samples at
	// 16 kHz gives 62.5 Hz bins, fine enough to isolate the bark band.
	welchSegment = 256

	// bandRatioThreshold is the minimum share of spectral energy that
	// must fall inside the bark band for a loud window to count.
	bandRatioThreshold = 0.4
)

// HeuristicDetector flags windows that are both loud and bark-shaped: the
// RMS level must clear a threshold and enough of the Welch power spectrum
// must sit in the configured frequency band. It needs no model file and
// serves as the fallback when no external classifier is wired in.
type HeuristicDetector struct {
	cfg        config.DetectionConfig
	sampleRate int

	fft         *fourier.FFT
	hann        []float64
	windowPower float64
}

// NewHeuristicDetector creates a heuristic detector for windows sampled at
// the given rate
func NewHeuristicDetector(cfg config.DetectionConfig, sampleRate int) (*HeuristicDetector, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	if cfg.BandHighHz > float64(sampleRate)/2 {
		return nil, fmt.Errorf("band_high_hz %f exceeds Nyquist limit %d", cfg.BandHighHz, sampleRate/2)
	}

	hann := make([]float64, welchSegment)
	var power float64
	for i := range hann {
		hann[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(welchSegment-1)))
		power += hann[i] * hann[i]
	}

	return &HeuristicDetector{
		cfg:         cfg,
		sampleRate:  sampleRate,
		fft:         fourier.NewFFT(welchSegment),
		hann:        hann,
		windowPower: power,
	}, nil
}

// Name identifies the detector
func (d *HeuristicDetector) Name() string {
	return "heuristic"
}

// Classify scores one analysis window
func (d *HeuristicDetector) Classify(window []float32) (Decision, error) {
	if len(window) == 0 {
		return Decision{}, fmt.Errorf("cannot classify empty window")
	}

	var sumSq float64
	for _, s := range window {
		sumSq += float64(s) * float64(s)
	}
	rms := math.Sqrt(sumSq / float64(len(window)))

	psd := d.powerSpectrum(window)

	var bandEnergy, totalEnergy float64
	binHz := float64(d.sampleRate) / welchSegment
	for i := 1; i < len(psd); i++ { // skip the DC bin
		freq := float64(i) * binHz
		totalEnergy += psd[i]
		if freq >= d.cfg.BandLowHz && freq <= d.cfg.BandHighHz {
			bandEnergy += psd[i]
		}
	}

	bandRatio := 0.0
	if totalEnergy > d.cfg.BandEnergyMin {
		bandRatio = bandEnergy / totalEnergy
	}

	rmsRatio := rms / d.cfg.RMSThreshold
	if rmsRatio > 1 {
		rmsRatio = 1
	}

	clippedBand := bandRatio
	if clippedBand > 1 {
		clippedBand = 1
	}

	return Decision{
		Score:    rmsRatio*0.6 + clippedBand*0.4,
		Positive: rms >= d.cfg.RMSThreshold && bandRatio >= bandRatioThreshold,
	}, nil
}

// powerSpectrum estimates the window's power spectral density with Welch's
// method: Hann-windowed half-overlapping segments, averaged. Windows shorter
// than one segment are zero padded.
func (d *HeuristicDetector) powerSpectrum(window []float32) []float64 {
	const step = welchSegment / 2

	psd := make([]float64, welchSegment/2+1)
	buf := make([]float64, welchSegment)
	coeff := make([]complex128, welchSegment/2+1)

	segments := 0
	for start := 0; start == 0 || start+welchSegment <= len(window); start += step {
		for i := range buf {
			if start+i < len(window) {
				buf[i] = float64(window[start+i]) * d.hann[i]
			} else {
				buf[i] = 0
			}
		}

		d.fft.Coefficients(coeff, buf)
		for i, c := range coeff {
			re, im := real(c), imag(c)
			psd[i] += re*re + im*im
		}
		segments++
	}

	norm := float64(segments) * d.windowPower * float64(d.sampleRate)
	for i := range psd {
		psd[i] /= norm
	}

	return psd
}
