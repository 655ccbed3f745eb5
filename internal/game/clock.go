package game

import "time"

// MultiplierClock maps elapsed flight time to the displayed multiplier and
// detects when the bound crash point has been reached.
//
// The curve is closed-form in elapsed time, m(t) = 1 + 0.1t + 0.005t^2,
// truncated to two decimals. Keeping it a pure function of elapsed time
// (instead of a stateful per-tick increment) means a replica or a restarted
// leader recomputing from the same start instant lands on the same value.
type MultiplierClock struct {
	gen        *CrashPointGenerator
	crashPoint float64
}

func NewMultiplierClock(gen *CrashPointGenerator) *MultiplierClock {
	return &MultiplierClock{
		gen:        gen,
		crashPoint: gen.Generate(),
	}
}

// Tick returns the multiplier for the given elapsed time and whether the
// round has crashed. Once crashed the returned multiplier is clamped to the
// crash point so the final broadcast never overshoots it.
func (c *MultiplierClock) Tick(elapsed time.Duration) (float64, bool) {
	t := elapsed.Seconds()
	m := truncateMultiplier(1.0 + 0.1*t + 0.005*t*t)
	if m < MIN_MULTIPLIER {
		m = MIN_MULTIPLIER
	}
	if m >= c.crashPoint {
		return c.crashPoint, true
	}
	return m, false
}

// Reset rebinds a fresh crash point for the next round.
func (c *MultiplierClock) Reset() {
	c.crashPoint = c.gen.Generate()
}

// CrashPoint exposes the bound crash point. Never sent to clients before
// the crash itself.
func (c *MultiplierClock) CrashPoint() float64 {
	return c.crashPoint
}
