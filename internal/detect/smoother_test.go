package detect

import (
	"testing"
	"time"

	"github.com/maomorales/bark-sensor-home-assistant/internal/config"
)

func newTestSmoother(windowCount, positivesRequired int, cooldownSeconds float64) *Smoother {
	return NewSmoother(config.SmoothingConfig{
		WindowCount:       windowCount,
		PositivesRequired: positivesRequired,
		CooldownSeconds:   cooldownSeconds,
	})
}

func at(seconds float64) time.Time {
	base := time.Date(2026, 8, 23, 9, 0, 0, 0, time.UTC)
	return base.Add(time.Duration(seconds * float64(time.Second)))
}

func TestSmootherMajorityVote(t *testing.T) {
	s := newTestSmoother(3, 2, 20)

	if s.Update(true, at(0)) {
		t.Error("Single positive should not trigger with 2 required")
	}

	if s.Update(false, at(1)) {
		t.Error("One of two positives should not trigger")
	}

	if !s.Update(true, at(2)) {
		t.Error("Two positives in window of three should trigger")
	}
}

func TestSmootherCooldownBlocks(t *testing.T) {
	s := newTestSmoother(3, 2, 20)

	s.Update(true, at(0))
	s.Update(false, at(1))
	if !s.Update(true, at(2)) {
		t.Fatal("Expected initial trigger")
	}

	// History was cleared by the trigger, so this is one positive, and
	// the cooldown is running anyway
	if s.Update(true, at(2.01)) {
		t.Error("Update inside cooldown should not trigger")
	}

	// The blocked positive stays in history. After the cooldown expires
	// a single fresh positive completes the majority.
	if !s.Update(true, at(25)) {
		t.Error("Expected trigger after cooldown with retained history")
	}
}

func TestSmootherHistoryClearedOnTrigger(t *testing.T) {
	s := newTestSmoother(3, 2, 0)

	s.Update(true, at(0))
	if !s.Update(true, at(1)) {
		t.Fatal("Expected trigger")
	}

	// Zero cooldown never blocks, so only the cleared history prevents
	// an immediate re-trigger
	if s.Update(true, at(1.5)) {
		t.Error("Single positive after trigger should not re-trigger")
	}

	if !s.Update(true, at(2)) {
		t.Error("Two fresh positives should trigger again")
	}
}

func TestSmootherBoundedHistory(t *testing.T) {
	s := newTestSmoother(3, 2, 0)

	s.Update(true, at(0))
	s.Update(false, at(1))
	s.Update(false, at(2))

	// The positive at t=0 has been pushed out of the window of three
	if s.Update(true, at(3)) {
		t.Error("Evicted positive should not count toward the majority")
	}
}

func TestSmootherFirstTriggerNeverBlockedByCooldown(t *testing.T) {
	s := newTestSmoother(1, 1, 3600)

	if !s.Update(true, at(0)) {
		t.Error("First qualifying update should trigger regardless of cooldown length")
	}
}

func TestSmootherReset(t *testing.T) {
	s := newTestSmoother(3, 2, 0)

	s.Update(true, at(0))
	s.Reset()

	if s.Update(true, at(1)) {
		t.Error("Reset should discard accumulated positives")
	}
}

func TestSmootherResetClearsCooldown(t *testing.T) {
	s := newTestSmoother(1, 1, 20)

	if !s.Update(true, at(0)) {
		t.Fatal("Expected initial trigger")
	}

	s.Reset()

	if !s.LastTrigger().IsZero() {
		t.Error("Reset should return the last-trigger time to its zero value")
	}

	// Well inside the old 20 second cooldown, but the reset state must
	// behave as if nothing ever triggered
	if !s.Update(true, at(5)) {
		t.Error("Qualifying update after Reset should trigger despite the prior cooldown")
	}
}

func TestSmootherLastTrigger(t *testing.T) {
	s := newTestSmoother(1, 1, 0)

	if !s.LastTrigger().IsZero() {
		t.Error("Expected zero last-trigger time before any trigger")
	}

	s.Update(true, at(5))
	if got := s.LastTrigger(); !got.Equal(at(5)) {
		t.Errorf("Expected last trigger at t=5, got %v", got)
	}
}
