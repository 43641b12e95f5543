// Package audio provides microphone capture and signal plumbing for the
// bark detector: a self-healing device stream producing fixed-length mono
// chunks, rational polyphase resampling, and 16-bit PCM WAV encoding.
package audio
