package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/maomorales/bark-sensor-home-assistant/internal/audio"
	"github.com/maomorales/bark-sensor-home-assistant/internal/capture"
	"github.com/maomorales/bark-sensor-home-assistant/internal/config"
	"github.com/maomorales/bark-sensor-home-assistant/internal/metrics"
	"github.com/maomorales/bark-sensor-home-assistant/internal/pipeline"
)

// StatsSnapshot aggregates component statistics for the /stats endpoint
type StatsSnapshot struct {
	Stream   audio.StreamStats    `json:"stream"`
	Pipeline pipeline.Stats       `json:"pipeline"`
	Capture  capture.ManagerStats `json:"capture"`
}

// Server exposes the monitoring API: health, component stats, effective
// configuration and Prometheus metrics
type Server struct {
	cfg      *config.Config
	logger   *slog.Logger
	metrics  *metrics.Metrics
	snapshot func() StatsSnapshot

	httpServer *http.Server
	startTime  time.Time
}

// New creates the monitoring server. snapshot is called per /stats request
// and must be safe for concurrent use.
func New(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics, snapshot func() StatsSnapshot) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:       cfg,
		logger:    logger,
		metrics:   m,
		snapshot:  snapshot,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.withMetrics("/health", s.handleHealth))
	mux.HandleFunc("/stats", s.withMetrics("/stats", s.handleStats))
	mux.HandleFunc("/config", s.withMetrics("/config", s.handleConfig))
	mux.Handle("/metrics", promhttp.Handler())

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return s
}

// Start begins serving in the background
func (s *Server) Start() {
	s.logger.Info("Monitoring API started",
		slog.String("address", s.httpServer.Addr),
	)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Monitoring API failed",
				slog.String("error", err.Error()),
			)
		}
	}()
}

// Stop shuts the server down, waiting briefly for in-flight requests
func (s *Server) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Warn("Monitoring API shutdown incomplete",
			slog.String("error", err.Error()),
		)
	}
}

// responseWriter captures the status code for request metrics
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// withMetrics wraps a handler with request counting and timing
func (s *Server) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		handler(rw, r)

		s.metrics.RecordHTTPRequest(
			r.Method,
			endpoint,
			strconv.Itoa(rw.statusCode),
			time.Since(start).Seconds(),
		)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	s.writeJSON(w, r, map[string]interface{}{
		"status":         "ok",
		"device_id":      s.cfg.DeviceID,
		"uptime_seconds": time.Since(s.startTime).Seconds(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	s.writeJSON(w, r, s.snapshot())
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	// Credentials stay out of the API
	redacted := *s.cfg
	redacted.MQTT.Password = ""
	redacted.MQTT.Username = ""

	s.writeJSON(w, r, map[string]interface{}{
		"device_id": redacted.DeviceID,
		"audio":     redacted.Audio,
		"capture":   redacted.Capture,
		"detection": redacted.Detection,
		"smoothing": redacted.Smoothing,
		"mqtt":      redacted.MQTT,
		"http":      redacted.HTTP,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("Failed to encode response",
			slog.String("endpoint", r.URL.Path),
			slog.String("error", err.Error()),
		)
		s.metrics.RecordHTTPError(r.Method, r.URL.Path, "encode_failure")
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, code int, message string) {
	s.metrics.RecordHTTPError(r.Method, r.URL.Path, http.StatusText(code))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
