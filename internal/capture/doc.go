// Package capture records bounded audio clips around detected events: a
// ring buffer of recent history supplies the pre-roll, in-flight jobs
// accumulate the post-roll, and finished clips are written as WAV files
// with an atomic temp-and-rename.
package capture
