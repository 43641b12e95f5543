package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the bark detector.
// All Record helpers tolerate a nil receiver so components can run
// unmetered (for example under test).
type Metrics struct {
	// Audio stream metrics
	ChunksProduced   prometheus.Counter
	ChunksDropped    prometheus.Counter
	DeviceReconnects prometheus.Counter
	QueueSize        prometheus.Gauge

	// Classification metrics
	WindowsClassified  prometheus.Counter
	WindowsPositive    prometheus.Counter
	ClassifierErrors   prometheus.Counter
	ClassifierDuration prometheus.Histogram

	// Event metrics
	EventsTriggered prometheus.Counter

	// Capture metrics
	CapturesScheduled  prometheus.Counter
	CapturesWritten    prometheus.Counter
	CaptureWriteErrors prometheus.Counter
	ActiveCaptureJobs  prometheus.Gauge

	// MQTT metrics
	MQTTPublishes     prometheus.Counter
	MQTTPublishErrors prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		// Audio stream metrics
		ChunksProduced: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bark_chunks_produced_total",
			Help: "Total number of normalized audio chunks produced by the stream",
		}),
		ChunksDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bark_chunks_dropped_total",
			Help: "Total number of audio chunks dropped by the callback queue overflow policy",
		}),
		DeviceReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bark_device_reconnects_total",
			Help: "Total number of capture device reopen attempts after an error",
		}),
		QueueSize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "bark_chunk_queue_size",
			Help: "Current number of raw audio blocks in the callback queue",
		}),

		// Classification metrics
		WindowsClassified: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bark_windows_classified_total",
			Help: "Total number of analysis windows handed to the detector",
		}),
		WindowsPositive: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bark_windows_positive_total",
			Help: "Total number of analysis windows classified as positive",
		}),
		ClassifierErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bark_classifier_errors_total",
			Help: "Total number of detector failures (window skipped)",
		}),
		ClassifierDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "bark_classifier_duration_seconds",
			Help:    "Time spent classifying analysis windows",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 10), // 1ms to ~1s
		}),

		// Event metrics
		EventsTriggered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bark_events_triggered_total",
			Help: "Total number of debounced bark events",
		}),

		// Capture metrics
		CapturesScheduled: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bark_captures_scheduled_total",
			Help: "Total number of capture jobs scheduled",
		}),
		CapturesWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bark_captures_written_total",
			Help: "Total number of capture artifacts written",
		}),
		CaptureWriteErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bark_capture_write_errors_total",
			Help: "Total number of capture jobs discarded on write failure",
		}),
		ActiveCaptureJobs: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "bark_active_capture_jobs",
			Help: "Current number of in-flight capture jobs",
		}),

		// MQTT metrics
		MQTTPublishes: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bark_mqtt_publishes_total",
			Help: "Total number of MQTT event publishes attempted",
		}),
		MQTTPublishErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bark_mqtt_publish_errors_total",
			Help: "Total number of failed MQTT event publishes",
		}),

		// HTTP API metrics
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bark_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bark_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bark_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordChunkProduced increments the chunks produced counter
func (m *Metrics) RecordChunkProduced() {
	if m == nil {
		return
	}
	m.ChunksProduced.Inc()
}

// RecordChunkDropped increments the dropped chunk counter
func (m *Metrics) RecordChunkDropped() {
	if m == nil {
		return
	}
	m.ChunksDropped.Inc()
}

// RecordDeviceReconnect increments the device reconnect counter
func (m *Metrics) RecordDeviceReconnect() {
	if m == nil {
		return
	}
	m.DeviceReconnects.Inc()
}

// SetQueueSize sets the current callback queue size
func (m *Metrics) SetQueueSize(size int) {
	if m == nil {
		return
	}
	m.QueueSize.Set(float64(size))
}

// RecordWindowClassified records a classified window and its outcome
func (m *Metrics) RecordWindowClassified(positive bool, durationSeconds float64) {
	if m == nil {
		return
	}
	m.WindowsClassified.Inc()
	if positive {
		m.WindowsPositive.Inc()
	}
	m.ClassifierDuration.Observe(durationSeconds)
}

// RecordClassifierError increments the classifier error counter
func (m *Metrics) RecordClassifierError() {
	if m == nil {
		return
	}
	m.ClassifierErrors.Inc()
}

// RecordEventTriggered increments the triggered event counter
func (m *Metrics) RecordEventTriggered() {
	if m == nil {
		return
	}
	m.EventsTriggered.Inc()
}

// RecordCaptureScheduled increments the scheduled capture counter
func (m *Metrics) RecordCaptureScheduled() {
	if m == nil {
		return
	}
	m.CapturesScheduled.Inc()
}

// RecordCaptureWritten increments the written capture counter
func (m *Metrics) RecordCaptureWritten() {
	if m == nil {
		return
	}
	m.CapturesWritten.Inc()
}

// RecordCaptureWriteError increments the capture write error counter
func (m *Metrics) RecordCaptureWriteError() {
	if m == nil {
		return
	}
	m.CaptureWriteErrors.Inc()
}

// SetActiveCaptureJobs sets the in-flight capture job gauge
func (m *Metrics) SetActiveCaptureJobs(count int) {
	if m == nil {
		return
	}
	m.ActiveCaptureJobs.Set(float64(count))
}

// RecordMQTTPublish records a publish attempt and its outcome
func (m *Metrics) RecordMQTTPublish(success bool) {
	if m == nil {
		return
	}
	m.MQTTPublishes.Inc()
	if !success {
		m.MQTTPublishErrors.Inc()
	}
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	if m == nil {
		return
	}
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
