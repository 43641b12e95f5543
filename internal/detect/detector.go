package detect

// Decision is the outcome of classifying one analysis window
type Decision struct {
	Score    float64 `json:"score"`
	Positive bool    `json:"positive"`
}

// Detector classifies a fixed-length mono analysis window. Implementations
// must be safe to call from a single goroutine; they are not required to be
// concurrency safe.
type Detector interface {
	// Name identifies the detector in logs and published events
	Name() string

	// Classify scores one window of samples at the configured rate.
	// An error means the window could not be judged and should be skipped.
	Classify(window []float32) (Decision, error)
}
