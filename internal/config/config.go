package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete bark detector configuration
type Config struct {
	DeviceID  string          `yaml:"device_id"`
	Audio     AudioConfig     `yaml:"audio"`
	Capture   CaptureConfig   `yaml:"capture"`
	Detection DetectionConfig `yaml:"detection"`
	Smoothing SmoothingConfig `yaml:"smoothing"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	HTTP      HTTPConfig      `yaml:"http"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// AudioConfig contains microphone stream parameters
type AudioConfig struct {
	SampleRate     int     `yaml:"sample_rate"`      // target rate in Hz
	Channels       int     `yaml:"channels"`         // device capture channels
	WindowSeconds  float64 `yaml:"window_seconds"`   // analysis window span
	HopSeconds     float64 `yaml:"hop_seconds"`      // interval between chunks
	MicDeviceIndex int     `yaml:"mic_device_index"` // -1 selects the system default
	QueueCapacity  int     `yaml:"queue_capacity"`   // device callback queue, in chunks
	RetryBackoff   float64 `yaml:"retry_backoff"`    // seconds between device open attempts
	FallbackRates  []int   `yaml:"fallback_rates"`   // rates tried after sample_rate
}

// CaptureConfig contains pre/post-roll recording parameters
type CaptureConfig struct {
	Enabled     bool    `yaml:"enabled"`
	RingSeconds float64 `yaml:"ring_seconds"`
	PreSeconds  float64 `yaml:"pre_seconds"`
	PostSeconds float64 `yaml:"post_seconds"`
	OutDir      string  `yaml:"out_dir"`
}

// DetectionConfig contains heuristic bark detector parameters
type DetectionConfig struct {
	RMSThreshold  float64 `yaml:"rms_threshold"`
	BandLowHz     float64 `yaml:"band_low_hz"`
	BandHighHz    float64 `yaml:"band_high_hz"`
	BandEnergyMin float64 `yaml:"band_energy_min"`
}

// SmoothingConfig contains event debounce parameters
type SmoothingConfig struct {
	WindowCount       int     `yaml:"window_count"`
	PositivesRequired int     `yaml:"positives_required"`
	CooldownSeconds   float64 `yaml:"cooldown_seconds"`
}

// MQTTConfig contains event publishing configuration
type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Topic    string `yaml:"topic"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	ClientID string `yaml:"client_id"`
	QoS      int    `yaml:"qos"`
	Retain   bool   `yaml:"retain"`
}

// HTTPConfig contains the monitoring API server configuration
type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns a configuration populated with the documented defaults.
// Load unmarshals the config file over this, so absent keys keep their defaults.
func Default() *Config {
	return &Config{
		DeviceID: "linux-mic-01",
		Audio: AudioConfig{
			SampleRate:     16000,
			Channels:       1,
			WindowSeconds:  1.0,
			HopSeconds:     0.5,
			MicDeviceIndex: -1,
			QueueCapacity:  8,
			RetryBackoff:   2.0,
			FallbackRates:  []int{48000, 44100},
		},
		Capture: CaptureConfig{
			Enabled:     true,
			RingSeconds: 20,
			PreSeconds:  5,
			PostSeconds: 5,
			OutDir:      "/var/lib/barkdetector/captures",
		},
		Detection: DetectionConfig{
			RMSThreshold:  0.02,
			BandLowHz:     400,
			BandHighHz:    3000,
			BandEnergyMin: 1.0e-6,
		},
		Smoothing: SmoothingConfig{
			WindowCount:       3,
			PositivesRequired: 2,
			CooldownSeconds:   20,
		},
		MQTT: MQTTConfig{
			Enabled: true,
			Host:    "localhost",
			Port:    1883,
			Topic:   "home/sensors/dog_bark",
			QoS:     0,
		},
		HTTP: HTTPConfig{
			Enabled: false,
			Address: "127.0.0.1",
			Port:    8099,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if c.DeviceID == "" {
		return fmt.Errorf("device_id cannot be empty")
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Capture.Validate(); err != nil {
		return fmt.Errorf("capture config: %w", err)
	}

	if err := c.Detection.Validate(); err != nil {
		return fmt.Errorf("detection config: %w", err)
	}

	if err := c.Smoothing.Validate(); err != nil {
		return fmt.Errorf("smoothing config: %w", err)
	}

	if err := c.MQTT.Validate(); err != nil {
		return fmt.Errorf("mqtt config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates audio stream configuration
func (a *AudioConfig) Validate() error {
	if a.SampleRate < 8000 || a.SampleRate > 192000 {
		return fmt.Errorf("sample_rate must be between 8000 and 192000 Hz, got %d", a.SampleRate)
	}

	if a.Channels < 1 || a.Channels > 8 {
		return fmt.Errorf("channels must be between 1 and 8, got %d", a.Channels)
	}

	if a.HopSeconds <= 0 {
		return fmt.Errorf("hop_seconds must be positive, got %f", a.HopSeconds)
	}

	if a.WindowSeconds < a.HopSeconds {
		return fmt.Errorf("window_seconds (%f) must be at least hop_seconds (%f)",
			a.WindowSeconds, a.HopSeconds)
	}

	if a.MicDeviceIndex < -1 {
		return fmt.Errorf("mic_device_index must be -1 (default device) or a device index, got %d", a.MicDeviceIndex)
	}

	if a.QueueCapacity < 1 {
		return fmt.Errorf("queue_capacity must be at least 1, got %d", a.QueueCapacity)
	}

	if a.RetryBackoff <= 0 {
		return fmt.Errorf("retry_backoff must be positive, got %f", a.RetryBackoff)
	}

	for _, rate := range a.FallbackRates {
		if rate < 8000 || rate > 192000 {
			return fmt.Errorf("fallback rate must be between 8000 and 192000 Hz, got %d", rate)
		}
	}

	return nil
}

// Validate validates capture configuration
func (c *CaptureConfig) Validate() error {
	if c.RingSeconds <= 0 {
		return fmt.Errorf("ring_seconds must be positive, got %f", c.RingSeconds)
	}

	if c.PreSeconds < 0 {
		return fmt.Errorf("pre_seconds cannot be negative, got %f", c.PreSeconds)
	}

	if c.PostSeconds < 0 {
		return fmt.Errorf("post_seconds cannot be negative, got %f", c.PostSeconds)
	}

	if c.PreSeconds > c.RingSeconds {
		return fmt.Errorf("pre_seconds (%f) cannot exceed ring_seconds (%f)",
			c.PreSeconds, c.RingSeconds)
	}

	if c.Enabled && c.OutDir == "" {
		return fmt.Errorf("out_dir cannot be empty when capture is enabled")
	}

	return nil
}

// Validate validates detection configuration
func (d *DetectionConfig) Validate() error {
	if d.RMSThreshold <= 0 {
		return fmt.Errorf("rms_threshold must be positive, got %f", d.RMSThreshold)
	}

	if d.BandLowHz < 0 {
		return fmt.Errorf("band_low_hz cannot be negative, got %f", d.BandLowHz)
	}

	if d.BandHighHz <= d.BandLowHz {
		return fmt.Errorf("band_high_hz (%f) must be greater than band_low_hz (%f)",
			d.BandHighHz, d.BandLowHz)
	}

	if d.BandEnergyMin <= 0 {
		return fmt.Errorf("band_energy_min must be positive, got %f", d.BandEnergyMin)
	}

	return nil
}

// Validate validates smoothing configuration
func (s *SmoothingConfig) Validate() error {
	if s.WindowCount < 1 {
		return fmt.Errorf("window_count must be at least 1, got %d", s.WindowCount)
	}

	if s.PositivesRequired < 1 || s.PositivesRequired > s.WindowCount {
		return fmt.Errorf("positives_required must be between 1 and window_count (%d), got %d",
			s.WindowCount, s.PositivesRequired)
	}

	if s.CooldownSeconds < 0 {
		return fmt.Errorf("cooldown_seconds cannot be negative, got %f", s.CooldownSeconds)
	}

	return nil
}

// Validate validates MQTT configuration
func (m *MQTTConfig) Validate() error {
	if !m.Enabled {
		return nil
	}

	if m.Host == "" {
		return fmt.Errorf("host cannot be empty when MQTT is enabled")
	}

	if m.Port < 1 || m.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", m.Port)
	}

	if m.Topic == "" {
		return fmt.Errorf("topic cannot be empty when MQTT is enabled")
	}

	if m.QoS < 0 || m.QoS > 2 {
		return fmt.Errorf("qos must be 0, 1 or 2, got %d", m.QoS)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// HopSamples returns the chunk length in samples at the target rate
func (a *AudioConfig) HopSamples() int {
	n := int(a.HopSeconds*float64(a.SampleRate) + 0.5)
	if n < 1 {
		n = 1
	}
	return n
}

// WindowSamples returns the analysis window length in samples at the target rate
func (a *AudioConfig) WindowSamples() int {
	n := int(a.WindowSeconds*float64(a.SampleRate) + 0.5)
	if n < 1 {
		n = 1
	}
	return n
}

// GetRetryBackoff returns the device retry backoff as a time.Duration
func (a *AudioConfig) GetRetryBackoff() time.Duration {
	return time.Duration(a.RetryBackoff * float64(time.Second))
}

// GetCooldown returns the trigger cooldown as a time.Duration
func (s *SmoothingConfig) GetCooldown() time.Duration {
	return time.Duration(s.CooldownSeconds * float64(time.Second))
}
