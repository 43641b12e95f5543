// Package config provides configuration loading and validation for the bark detector.
// It handles YAML-based configuration with typed sections, documented defaults,
// and per-section validation performed once at startup.
package config
