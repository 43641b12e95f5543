// Package server provides the HTTP monitoring API: health and stats
// endpoints, the effective configuration, and Prometheus metrics.
package server
