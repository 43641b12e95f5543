package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/maomorales/bark-sensor-home-assistant/internal/capture"
	"github.com/maomorales/bark-sensor-home-assistant/internal/config"
	"github.com/maomorales/bark-sensor-home-assistant/internal/detect"
	"github.com/maomorales/bark-sensor-home-assistant/internal/metrics"
)

// consecutiveFailureLimit is how many classify errors in a row demote the
// primary detector to the fallback
const consecutiveFailureLimit = 5

// ChunkSource produces normalized audio chunks. NextChunk blocks until a
// chunk is available and returns false once the source is exhausted or the
// context is cancelled.
type ChunkSource interface {
	NextChunk(ctx context.Context) ([]float32, bool)
}

// Event is one debounced bark detection
type Event struct {
	Timestamp   time.Time `json:"ts"`
	DeviceID    string    `json:"device_id"`
	Score       float64   `json:"score"`
	Detector    string    `json:"detector"`
	CapturePath string    `json:"capture,omitempty"`
}

// Notifier receives triggered events. Notify must not block the pipeline;
// slow deliveries are the notifier's problem.
type Notifier interface {
	Notify(event Event)
}

// Stats represents pipeline statistics for monitoring
type Stats struct {
	ChunksProcessed   uint64    `json:"chunks_processed"`
	WindowsClassified uint64    `json:"windows_classified"`
	WindowsPositive   uint64    `json:"windows_positive"`
	ClassifyErrors    uint64    `json:"classify_errors"`
	EventsTriggered   uint64    `json:"events_triggered"`
	ActiveDetector    string    `json:"active_detector"`
	LastEventTime     time.Time `json:"last_event_time"`
}

// Pipeline turns the chunk stream into debounced bark events. Each chunk
// extends the capture history, windows are assembled from consecutive
// chunks and classified, and the smoother decides when an event fires.
// A firing event schedules a capture and fans out to all notifiers.
// ProcessChunk must be called from a single goroutine; Stats is safe to
// read concurrently.
type Pipeline struct {
	cfg      *config.Config
	logger   *slog.Logger
	metrics  *metrics.Metrics
	detector detect.Detector
	fallback detect.Detector
	smoother *detect.Smoother
	capture  *capture.Manager

	notifiers []Notifier

	windowSamples int
	hopSamples    int
	windowBuf     []float32

	consecutiveFailures int

	mu    sync.RWMutex
	stats Stats
}

// NewPipeline creates a detection pipeline. The fallback detector may be
// nil; without one a persistently failing primary just drops windows.
func NewPipeline(
	cfg *config.Config,
	detector detect.Detector,
	fallback detect.Detector,
	captureMgr *capture.Manager,
	notifiers []Notifier,
	logger *slog.Logger,
	m *metrics.Metrics,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}

	return &Pipeline{
		cfg:           cfg,
		logger:        logger,
		metrics:       m,
		detector:      detector,
		fallback:      fallback,
		smoother:      detect.NewSmoother(cfg.Smoothing),
		capture:       captureMgr,
		notifiers:     notifiers,
		windowSamples: cfg.Audio.WindowSamples(),
		hopSamples:    cfg.Audio.HopSamples(),
		windowBuf:     make([]float32, 0, cfg.Audio.WindowSamples()),
		stats:         Stats{ActiveDetector: detector.Name()},
	}
}

// Run consumes chunks from the source until it reports exhaustion. The
// source is expected to observe ctx, so cancellation ends the loop.
func (p *Pipeline) Run(ctx context.Context, source ChunkSource) error {
	p.logger.Info("Detection pipeline started",
		slog.String("detector", p.detector.Name()),
		slog.Int("window_samples", p.windowSamples),
		slog.Int("hop_samples", p.hopSamples),
	)

	for {
		chunk, ok := source.NextChunk(ctx)
		if !ok {
			p.logger.Info("Detection pipeline stopped")
			return ctx.Err()
		}
		p.ProcessChunk(chunk, time.Now())
	}
}

// ProcessChunk runs one chunk through capture, windowing, classification
// and smoothing
func (p *Pipeline) ProcessChunk(chunk []float32, now time.Time) {
	if len(chunk) == 0 {
		return
	}

	p.capture.Extend(chunk)

	p.mu.Lock()
	p.stats.ChunksProcessed++
	p.mu.Unlock()

	p.windowBuf = append(p.windowBuf, chunk...)
	if len(p.windowBuf) < p.windowSamples {
		return
	}

	window := p.windowBuf[:p.windowSamples]
	decision, ok := p.classify(window)

	// Slide by one hop
	p.windowBuf = append(p.windowBuf[:0], p.windowBuf[p.hopSamples:]...)

	if !ok {
		return
	}

	if p.smoother.Update(decision.Positive, now) {
		p.trigger(decision, now)
	}
}

// classify scores one window with the active detector, demoting to the
// fallback after repeated failures
func (p *Pipeline) classify(window []float32) (detect.Decision, bool) {
	start := time.Now()
	decision, err := p.detector.Classify(window)
	elapsed := time.Since(start).Seconds()

	if err != nil {
		p.metrics.RecordClassifierError()

		p.mu.Lock()
		p.stats.ClassifyErrors++
		p.mu.Unlock()

		p.consecutiveFailures++
		p.logger.Warn("Window classification failed",
			slog.String("detector", p.detector.Name()),
			slog.String("error", err.Error()),
			slog.Int("consecutive_failures", p.consecutiveFailures),
		)

		if p.consecutiveFailures >= consecutiveFailureLimit && p.fallback != nil {
			p.logger.Error("Detector failing persistently, switching to fallback",
				slog.String("from", p.detector.Name()),
				slog.String("to", p.fallback.Name()),
			)
			p.detector = p.fallback
			p.fallback = nil
			p.consecutiveFailures = 0
			p.smoother.Reset()

			p.mu.Lock()
			p.stats.ActiveDetector = p.detector.Name()
			p.mu.Unlock()
		}

		return detect.Decision{}, false
	}

	p.consecutiveFailures = 0
	p.metrics.RecordWindowClassified(decision.Positive, elapsed)

	p.mu.Lock()
	p.stats.WindowsClassified++
	if decision.Positive {
		p.stats.WindowsPositive++
	}
	p.mu.Unlock()

	return decision, true
}

// trigger emits one debounced event: schedule the capture, record stats,
// fan out to notifiers
func (p *Pipeline) trigger(decision detect.Decision, now time.Time) {
	event := Event{
		Timestamp: now,
		DeviceID:  p.cfg.DeviceID,
		Score:     decision.Score,
		Detector:  p.detector.Name(),
	}

	if path, ok := p.capture.Schedule(now, p.cfg.DeviceID); ok {
		event.CapturePath = path
	}

	p.metrics.RecordEventTriggered()

	p.mu.Lock()
	p.stats.EventsTriggered++
	p.stats.LastEventTime = now
	p.mu.Unlock()

	p.logger.Info("Bark event triggered",
		slog.Time("ts", event.Timestamp),
		slog.Float64("score", event.Score),
		slog.String("detector", event.Detector),
		slog.String("capture", event.CapturePath),
	)

	for _, n := range p.notifiers {
		n.Notify(event)
	}
}

// Flush finalizes in-flight captures; call on shutdown
func (p *Pipeline) Flush() {
	p.capture.Close()
}

// GetStats returns current pipeline statistics
func (p *Pipeline) GetStats() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.stats
}
