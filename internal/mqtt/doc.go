// Package mqtt publishes bark events to a broker with best-effort
// delivery and automatic reconnection.
package mqtt
