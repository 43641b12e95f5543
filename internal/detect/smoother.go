package detect

import (
	"time"

	"github.com/maomorales/bark-sensor-home-assistant/internal/config"
)

// Smoother debounces per-window decisions into events. A trigger fires when
// the bounded history holds enough positives and the cooldown since the last
// trigger has elapsed; triggering clears the history so the next event needs
// fresh evidence. A cooldown-blocked update keeps its history. The zero
// last-trigger time never blocks, so the first qualifying update fires.
type Smoother struct {
	windowCount       int
	positivesRequired int
	cooldown          time.Duration

	history     []bool
	lastTrigger time.Time
}

// NewSmoother creates a smoother from validated smoothing configuration
func NewSmoother(cfg config.SmoothingConfig) *Smoother {
	return &Smoother{
		windowCount:       cfg.WindowCount,
		positivesRequired: cfg.PositivesRequired,
		cooldown:          cfg.GetCooldown(),
	}
}

// Update records one window decision at the given time and reports whether
// an event triggers
func (s *Smoother) Update(positive bool, now time.Time) bool {
	s.history = append(s.history, positive)
	if len(s.history) > s.windowCount {
		s.history = s.history[1:]
	}

	count := 0
	for _, p := range s.history {
		if p {
			count++
		}
	}

	if count < s.positivesRequired {
		return false
	}

	if !s.lastTrigger.IsZero() && now.Sub(s.lastTrigger) < s.cooldown {
		return false
	}

	s.lastTrigger = now
	s.history = s.history[:0]
	return true
}

// LastTrigger returns the time of the most recent trigger, zero if none
func (s *Smoother) LastTrigger() time.Time {
	return s.lastTrigger
}

// Reset returns the smoother to its initial state: history cleared and the
// last-trigger time back to its never-blocking zero value
func (s *Smoother) Reset() {
	s.history = s.history[:0]
	s.lastTrigger = time.Time{}
}
