package audio

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/gen2brain/malgo"

	"github.com/maomorales/bark-sensor-home-assistant/internal/metrics"
)

// queueWaitTimeout bounds the consumer's wait on the callback queue so a
// stop request is observed within one timeout even when the device is silent.
const queueWaitTimeout = 1 * time.Second

// StreamConfig contains capture stream configuration
type StreamConfig struct {
	TargetRate    int           // output sample rate in Hz
	Channels      int           // device capture channels
	HopSeconds    float64       // chunk interval
	DeviceIndex   int           // -1 selects the system default device
	QueueCapacity int           // callback queue capacity, in blocks
	RetryBackoff  time.Duration // wait between device open attempts
	FallbackRates []int         // rates tried after TargetRate
}

// StreamStats represents stream statistics for monitoring
type StreamStats struct {
	SourceRate     int    `json:"source_rate"`
	TargetRate     int    `json:"target_rate"`
	ChunksProduced uint64 `json:"chunks_produced"`
	BlocksDropped  uint64 `json:"blocks_dropped"`
	Reconnects     uint64 `json:"reconnects"`
	QueueLen       int    `json:"queue_len"`
	QueueCapacity  int    `json:"queue_capacity"`
}

// InputDevice describes an available capture device
type InputDevice struct {
	Index     int    `json:"index"`
	Name      string `json:"name"`
	IsDefault bool   `json:"is_default"`
}

// rawBlock is one device callback's worth of interleaved samples, tagged
// with the rate the device was opened at so blocks queued before a
// reconnect are interpreted correctly.
type rawBlock struct {
	samples []float32
	rate    int
}

// blockQueue is the bounded queue between the device callback and the
// consumer. The producer side never blocks: on overflow the oldest queued
// block is evicted to admit the newest.
type blockQueue struct {
	ch chan rawBlock
}

func newBlockQueue(capacity int) *blockQueue {
	return &blockQueue{ch: make(chan rawBlock, capacity)}
}

// push enqueues a block, evicting the oldest queued block if the queue is
// full. It reports whether an eviction occurred.
func (q *blockQueue) push(b rawBlock) bool {
	dropped := false
	for {
		select {
		case q.ch <- b:
			return dropped
		default:
		}

		select {
		case <-q.ch:
			dropped = true
		default:
		}
	}
}

// pop dequeues a block, waiting at most timeout
func (q *blockQueue) pop(timeout time.Duration) (rawBlock, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case b := <-q.ch:
		return b, true
	case <-timer.C:
		return rawBlock{}, false
	}
}

func (q *blockQueue) len() int {
	return len(q.ch)
}

func (q *blockQueue) capacity() int {
	return cap(q.ch)
}

// Stream provides an unending sequence of fixed-length mono audio chunks at
// the target sample rate. A supervisor goroutine owns the capture device and
// reopens it after errors with a fixed backoff; the device callback pushes
// raw blocks into a bounded drop-oldest queue, and NextChunk pulls, downmixes,
// resamples, and normalizes them. A Stream is not restartable: create a new
// one after Stop.
type Stream struct {
	cfg        StreamConfig
	logger     *slog.Logger
	metrics    *metrics.Metrics
	hopSamples int

	mctx  *malgo.AllocatedContext
	queue *blockQueue

	stop     chan struct{}
	stopOnce sync.Once
	devErr   chan struct{}
	wg       sync.WaitGroup

	// Consumer-side resampler cache, rebuilt when the source rate changes
	resampler     *Resampler
	resamplerFrom int

	sourceRate     atomic.Int64
	chunksProduced atomic.Uint64
	blocksDropped  atomic.Uint64
	reconnects     atomic.Uint64
}

// NewStream creates a capture stream. The device is not opened until Start.
func NewStream(cfg StreamConfig, logger *slog.Logger, m *metrics.Metrics) (*Stream, error) {
	if cfg.TargetRate <= 0 {
		return nil, fmt.Errorf("target rate must be positive, got %d", cfg.TargetRate)
	}

	if cfg.Channels < 1 {
		return nil, fmt.Errorf("channels must be at least 1, got %d", cfg.Channels)
	}

	if cfg.HopSeconds <= 0 {
		return nil, fmt.Errorf("hop seconds must be positive, got %f", cfg.HopSeconds)
	}

	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 8
	}

	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 2 * time.Second
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Stream{
		cfg:        cfg,
		logger:     logger,
		metrics:    m,
		hopSamples: hopSamplesAt(cfg.TargetRate, cfg.HopSeconds),
		queue:      newBlockQueue(cfg.QueueCapacity),
		stop:       make(chan struct{}),
		devErr:     make(chan struct{}, 1),
	}, nil
}

// Start initializes the audio backend and launches the device supervisor
func (s *Stream) Start() error {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("failed to initialize audio backend: %w", err)
	}
	s.mctx = mctx

	s.wg.Add(1)
	go s.supervise()

	return nil
}

// Stop signals the stream to end and waits for the device to be released.
// Pending NextChunk callers return within one queue-wait timeout.
func (s *Stream) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	s.wg.Wait()
}

// NextChunk returns the next normalized chunk of exactly HopSamples mono
// samples at the target rate. It returns false only once the stream has been
// stopped or ctx is cancelled; device errors are handled internally.
func (s *Stream) NextChunk(ctx context.Context) ([]float32, bool) {
	for {
		select {
		case <-ctx.Done():
			return nil, false
		case <-s.stop:
			return nil, false
		default:
		}

		block, ok := s.queue.pop(queueWaitTimeout)
		if !ok {
			continue
		}

		if len(block.samples) == 0 {
			continue
		}

		mono := downmix(block.samples, s.cfg.Channels)

		out := mono
		if block.rate != s.cfg.TargetRate {
			rs, err := s.resamplerFor(block.rate)
			if err != nil {
				s.logger.Error("Resampler setup failed",
					slog.Int("source_rate", block.rate),
					slog.String("error", err.Error()),
				)
				continue
			}
			out = rs.Resample(mono)
		}

		if len(out) == 0 {
			continue
		}

		chunk := padOrTrim(out, s.hopSamples)

		s.chunksProduced.Add(1)
		s.metrics.RecordChunkProduced()
		s.metrics.SetQueueSize(s.queue.len())

		return chunk, true
	}
}

// HopSamples returns the length of every chunk produced by NextChunk
func (s *Stream) HopSamples() int {
	return s.hopSamples
}

// GetStats returns current stream statistics
func (s *Stream) GetStats() StreamStats {
	return StreamStats{
		SourceRate:     int(s.sourceRate.Load()),
		TargetRate:     s.cfg.TargetRate,
		ChunksProduced: s.chunksProduced.Load(),
		BlocksDropped:  s.blocksDropped.Load(),
		Reconnects:     s.reconnects.Load(),
		QueueLen:       s.queue.len(),
		QueueCapacity:  s.queue.capacity(),
	}
}

// supervise owns the capture device: open at the first workable candidate
// rate, reopen after runtime errors, back off after failures. It only
// returns on Stop.
func (s *Stream) supervise() {
	defer s.wg.Done()
	defer func() {
		_ = s.mctx.Uninit()
		s.mctx.Free()
	}()

	for {
		select {
		case <-s.stop:
			return
		default:
		}

		device, rate, err := s.openDevice()
		if err != nil {
			s.logger.Error("Audio stream setup failed",
				slog.String("error", err.Error()),
				slog.Duration("retry_in", s.cfg.RetryBackoff),
			)
			if !s.sleepBackoff(s.cfg.RetryBackoff) {
				return
			}
			continue
		}

		s.sourceRate.Store(int64(rate))

		// Discard any error signal left over from the previous device
		select {
		case <-s.devErr:
		default:
		}

		s.logger.Info("Audio stream started",
			slog.Int("source_rate", rate),
			slog.Int("target_rate", s.cfg.TargetRate),
			slog.Int("device_index", s.cfg.DeviceIndex),
		)

		select {
		case <-s.stop:
			device.Uninit()
			return
		case <-s.devErr:
			s.logger.Error("Audio device stopped unexpectedly, reconnecting",
				slog.Duration("retry_in", s.cfg.RetryBackoff),
			)
			device.Uninit()
			s.reconnects.Add(1)
			s.metrics.RecordDeviceReconnect()
			if !s.sleepBackoff(s.cfg.RetryBackoff) {
				return
			}
		}
	}
}

// openDevice tries each candidate rate in order and returns the first
// device that opens and starts
func (s *Stream) openDevice() (*malgo.Device, int, error) {
	var deviceID unsafe.Pointer
	if s.cfg.DeviceIndex >= 0 {
		infos, err := s.mctx.Devices(malgo.Capture)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to enumerate capture devices: %w", err)
		}
		if s.cfg.DeviceIndex >= len(infos) {
			return nil, 0, fmt.Errorf("mic device index %d out of range (%d capture devices)",
				s.cfg.DeviceIndex, len(infos))
		}
		deviceID = infos[s.cfg.DeviceIndex].ID.Pointer()
	}

	var lastErr error
	for _, rate := range s.candidateRates() {
		device, err := s.openAt(rate, deviceID)
		if err != nil {
			s.logger.Warn("Failed to open audio stream",
				slog.Int("rate", rate),
				slog.Int("device_index", s.cfg.DeviceIndex),
				slog.String("error", err.Error()),
			)
			lastErr = err
			continue
		}
		return device, rate, nil
	}

	return nil, 0, fmt.Errorf("unable to open capture device at any candidate rate: %w", lastErr)
}

// openAt opens and starts the capture device at the given rate
func (s *Stream) openAt(rate int, deviceID unsafe.Pointer) (*malgo.Device, error) {
	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = uint32(s.cfg.Channels)
	deviceConfig.Capture.DeviceID = deviceID
	deviceConfig.SampleRate = uint32(rate)
	deviceConfig.PeriodSizeInFrames = uint32(hopSamplesAt(rate, s.cfg.HopSeconds))
	deviceConfig.Alsa.NoMMap = 1

	channels := s.cfg.Channels

	// Runs on the driver thread: copy out, push, never block, never log
	onData := func(_, input []byte, frameCount uint32) {
		n := int(frameCount) * channels
		if n == 0 || len(input) < n*4 {
			return
		}

		samples := make([]float32, n)
		for i := 0; i < n; i++ {
			samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(input[i*4:]))
		}

		if s.queue.push(rawBlock{samples: samples, rate: rate}) {
			s.blocksDropped.Add(1)
			s.metrics.RecordChunkDropped()
		}
	}

	onStop := func() {
		select {
		case s.devErr <- struct{}{}:
		default:
		}
	}

	device, err := malgo.InitDevice(s.mctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: onData,
		Stop: onStop,
	})
	if err != nil {
		return nil, err
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		return nil, err
	}

	return device, nil
}

// candidateRates returns the open-rate order: target first, then fallbacks
func (s *Stream) candidateRates() []int {
	rates := []int{s.cfg.TargetRate}
	for _, r := range s.cfg.FallbackRates {
		if r > 0 && r != s.cfg.TargetRate {
			rates = append(rates, r)
		}
	}
	return rates
}

// resamplerFor returns a resampler from the given source rate, reusing the
// cached one while the rate is stable
func (s *Stream) resamplerFor(from int) (*Resampler, error) {
	if s.resampler != nil && s.resamplerFrom == from {
		return s.resampler, nil
	}

	rs, err := NewResampler(from, s.cfg.TargetRate)
	if err != nil {
		return nil, err
	}

	s.resampler = rs
	s.resamplerFrom = from
	return rs, nil
}

// sleepBackoff waits for d and reports false if the stream was stopped first
func (s *Stream) sleepBackoff(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-s.stop:
		return false
	case <-timer.C:
		return true
	}
}

// ListInputDevices enumerates the available capture devices
func ListInputDevices() ([]InputDevice, error) {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio backend: %w", err)
	}
	defer func() {
		_ = mctx.Uninit()
		mctx.Free()
	}()

	infos, err := mctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate capture devices: %w", err)
	}

	devices := make([]InputDevice, 0, len(infos))
	for i, info := range infos {
		devices = append(devices, InputDevice{
			Index:     i,
			Name:      info.Name(),
			IsDefault: info.IsDefault != 0,
		})
	}

	return devices, nil
}

// downmix reduces interleaved multi-channel samples to mono by arithmetic
// mean across channels. Mono input is passed through unchanged.
func downmix(samples []float32, channels int) []float32 {
	if channels <= 1 {
		return samples
	}

	frames := len(samples) / channels
	mono := make([]float32, frames)
	for f := 0; f < frames; f++ {
		var sum float32
		base := f * channels
		for c := 0; c < channels; c++ {
			sum += samples[base+c]
		}
		mono[f] = sum / float32(channels)
	}
	return mono
}

// padOrTrim normalizes a chunk to exactly target samples: longer input is
// truncated, shorter input is zero-padded on the right
func padOrTrim(samples []float32, target int) []float32 {
	if len(samples) == target {
		return samples
	}

	if len(samples) > target {
		return samples[:target]
	}

	padded := make([]float32, target)
	copy(padded, samples)
	return padded
}

// hopSamplesAt returns the chunk length in samples for a hop interval at
// the given rate, never less than one sample
func hopSamplesAt(rate int, hopSeconds float64) int {
	n := int(hopSeconds*float64(rate) + 0.5)
	if n < 1 {
		n = 1
	}
	return n
}
