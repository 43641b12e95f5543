package capture

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/maomorales/bark-sensor-home-assistant/internal/audio"
	"github.com/maomorales/bark-sensor-home-assistant/internal/config"
	"github.com/maomorales/bark-sensor-home-assistant/internal/metrics"
)

// ManagerStats represents capture manager statistics for monitoring
type ManagerStats struct {
	Enabled      bool   `json:"enabled"`
	ActiveJobs   int    `json:"active_jobs"`
	RingLen      int    `json:"ring_len"`
	RingCapacity int    `json:"ring_capacity"`
	Written      uint64 `json:"written"`
	WriteErrors  uint64 `json:"write_errors"`
}

// job is one in-flight capture: the frozen pre-roll plus however much
// post-roll has accumulated so far
type job struct {
	path      string
	samples   []float32
	remaining int
}

// Manager owns the audio history ring and the capture job lifecycle. Every
// chunk flows through Extend, which feeds the ring, advances in-flight jobs,
// and writes the ones whose post-roll is complete, in creation order.
// Capture failures never propagate to the caller: an unwritable output
// directory disables the manager, and a failed write discards that job.
type Manager struct {
	mu sync.Mutex

	cfg        config.CaptureConfig
	sampleRate int
	logger     *slog.Logger
	metrics    *metrics.Metrics

	ring    *Ring
	jobs    []*job
	enabled bool

	written     uint64
	writeErrors uint64
}

// NewManager creates a capture manager. When capture is enabled it ensures
// the output directory exists, and disables itself if it cannot.
func NewManager(cfg config.CaptureConfig, sampleRate int, logger *slog.Logger, m *metrics.Metrics) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	mgr := &Manager{
		cfg:        cfg,
		sampleRate: sampleRate,
		logger:     logger,
		metrics:    m,
		ring:       NewRing(int(cfg.RingSeconds * float64(sampleRate))),
		enabled:    cfg.Enabled,
	}

	if mgr.enabled {
		if err := os.MkdirAll(cfg.OutDir, 0755); err != nil {
			logger.Error("Capture directory unavailable, disabling capture",
				slog.String("out_dir", cfg.OutDir),
				slog.String("error", err.Error()),
			)
			mgr.enabled = false
		}
	}

	return mgr
}

// Enabled reports whether captures will be recorded
func (mgr *Manager) Enabled() bool {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	return mgr.enabled
}

// Extend feeds one chunk of the live stream into the history ring and all
// in-flight jobs, then writes any job whose post-roll is complete. It
// returns the paths written during this call.
func (mgr *Manager) Extend(chunk []float32) []string {
	mgr.mu.Lock()

	// Ring maintenance continues even when file writing is disabled
	mgr.ring.Extend(chunk)

	if !mgr.enabled {
		mgr.mu.Unlock()
		return nil
	}

	var finished []*job
	pending := mgr.jobs[:0]
	for _, j := range mgr.jobs {
		if j.remaining > 0 {
			take := len(chunk)
			if take > j.remaining {
				take = j.remaining
			}
			j.samples = append(j.samples, chunk[:take]...)
			j.remaining -= take
		}

		if j.remaining == 0 {
			finished = append(finished, j)
		} else {
			pending = append(pending, j)
		}
	}
	mgr.jobs = pending
	mgr.metrics.SetActiveCaptureJobs(len(mgr.jobs))

	mgr.mu.Unlock()

	return mgr.writeAll(finished)
}

// Schedule starts a capture for an event: the pre-roll is frozen from the
// ring immediately and the post-roll accumulates from subsequent Extend
// calls. With a zero post-roll the clip is written before returning; with
// both rolls at zero no capture starts. It returns the destination path
// and whether a capture was started.
func (mgr *Manager) Schedule(eventTime time.Time, deviceID string) (string, bool) {
	mgr.mu.Lock()

	if !mgr.enabled {
		mgr.mu.Unlock()
		return "", false
	}

	preSamples := int(mgr.cfg.PreSeconds * float64(mgr.sampleRate))
	postSamples := int(mgr.cfg.PostSeconds * float64(mgr.sampleRate))

	// Nothing to record with both rolls at zero
	if preSamples+postSamples <= 0 {
		mgr.mu.Unlock()
		return "", false
	}

	pre := mgr.ring.Recent(preSamples)

	filename := fmt.Sprintf("%s_%s.wav", eventTime.Format("20060102_150405"), deviceID)
	path := filepath.Join(mgr.cfg.OutDir, filename)

	j := &job{
		path:      path,
		samples:   append(make([]float32, 0, len(pre)+postSamples), pre...),
		remaining: postSamples,
	}

	mgr.metrics.RecordCaptureScheduled()

	if j.remaining == 0 {
		mgr.mu.Unlock()
		mgr.writeAll([]*job{j})
		return path, true
	}

	mgr.jobs = append(mgr.jobs, j)
	mgr.metrics.SetActiveCaptureJobs(len(mgr.jobs))
	mgr.logger.Info("Capture scheduled",
		slog.String("path", path),
		slog.Int("pre_samples", len(pre)),
		slog.Int("post_samples", postSamples),
	)

	mgr.mu.Unlock()
	return path, true
}

// Close writes all in-flight jobs with whatever post-roll they have
// collected so far and returns the paths written
func (mgr *Manager) Close() []string {
	mgr.mu.Lock()
	pending := mgr.jobs
	mgr.jobs = nil
	mgr.metrics.SetActiveCaptureJobs(0)
	mgr.mu.Unlock()

	return mgr.writeAll(pending)
}

// GetStats returns current capture statistics
func (mgr *Manager) GetStats() ManagerStats {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	return ManagerStats{
		Enabled:      mgr.enabled,
		ActiveJobs:   len(mgr.jobs),
		RingLen:      mgr.ring.Len(),
		RingCapacity: mgr.ring.Capacity(),
		Written:      mgr.written,
		WriteErrors:  mgr.writeErrors,
	}
}

// writeAll writes finished jobs in order and returns the successful paths
func (mgr *Manager) writeAll(finished []*job) []string {
	var paths []string
	for _, j := range finished {
		if err := mgr.writeJob(j); err != nil {
			mgr.logger.Error("Capture write failed, discarding clip",
				slog.String("path", j.path),
				slog.String("error", err.Error()),
			)
			mgr.metrics.RecordCaptureWriteError()

			mgr.mu.Lock()
			mgr.writeErrors++
			mgr.mu.Unlock()
			continue
		}

		mgr.metrics.RecordCaptureWritten()

		mgr.mu.Lock()
		mgr.written++
		mgr.mu.Unlock()

		mgr.logger.Info("Capture written",
			slog.String("path", j.path),
			slog.Float64("duration_seconds", float64(len(j.samples))/float64(mgr.sampleRate)),
		)
		paths = append(paths, j.path)
	}
	return paths
}

// writeJob encodes and writes one clip via a temp file so the destination
// only ever holds a complete WAV
func (mgr *Manager) writeJob(j *job) error {
	if len(j.samples) == 0 {
		return fmt.Errorf("capture %s has no samples", j.path)
	}

	data, err := audio.EncodeWAV(j.samples, mgr.sampleRate)
	if err != nil {
		return fmt.Errorf("failed to encode capture: %w", err)
	}

	tmp := j.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write capture file: %w", err)
	}

	if err := os.Rename(tmp, j.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to finalize capture file: %w", err)
	}

	return nil
}
