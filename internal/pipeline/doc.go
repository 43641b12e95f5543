// Package pipeline wires the detection path end to end: chunks in, windows
// classified, decisions smoothed, events out to capture and notifiers.
package pipeline
