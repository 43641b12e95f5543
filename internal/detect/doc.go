// Package detect decides when a bark happened: a spectral heuristic scores
// individual analysis windows, and a majority-vote smoother with a trigger
// cooldown turns noisy per-window decisions into debounced events.
package detect
