package game

import (
	"testing"
	"time"
)

// fixedGenerator returns a generator always producing the given crash point.
func fixedGenerator(crashPoint float64) *CrashPointGenerator {
	// Solve the tier/position draws backwards is not worth it; inject
	// draws landing in the right tier instead.
	return newCrashPointGeneratorWithRand(fixedDraws(crashPoint))
}

// fixedDraws yields draws making Generate() return exactly crashPoint for
// points inside the low tier [1,2).
func fixedDraws(crashPoint float64) func() (float64, error) {
	calls := 0
	return func() (float64, error) {
		calls++
		if calls%2 == 1 {
			return 0.10, nil // low tier
		}
		return crashPoint - 1.00, nil
	}
}

func TestMultiplierClock_StartsAtOne(t *testing.T) {
	clock := NewMultiplierClock(fixedGenerator(1.50))

	m, crashed := clock.Tick(0)
	if m != 1.00 {
		t.Errorf("Tick(0) = %v, want 1.00", m)
	}
	if crashed {
		t.Error("Tick(0) reported crash at start")
	}
}

func TestMultiplierClock_MonotonicAndDeterministic(t *testing.T) {
	clock := NewMultiplierClock(fixedGenerator(1.99))

	prev := 0.0
	for ms := 0; ms <= 5000; ms += 100 {
		elapsed := time.Duration(ms) * time.Millisecond
		m, _ := clock.Tick(elapsed)
		if m < prev {
			t.Fatalf("multiplier decreased: %v after %v at %v", m, prev, elapsed)
		}
		prev = m

		// Same elapsed time, same multiplier: replicas must agree.
		again, _ := clock.Tick(elapsed)
		if again != m {
			t.Fatalf("Tick not deterministic: %v then %v at %v", m, again, elapsed)
		}
	}
}

func TestMultiplierClock_CrashDetection(t *testing.T) {
	clock := NewMultiplierClock(fixedGenerator(1.20))

	m, crashed := clock.Tick(500 * time.Millisecond)
	if crashed {
		t.Fatalf("crashed too early at %v", m)
	}

	// m(t) = 1 + 0.1t + 0.005t^2 passes 1.20 just before t=2s.
	m, crashed = clock.Tick(10 * time.Second)
	if !crashed {
		t.Fatal("clock never reported crash")
	}
	if m != 1.20 {
		t.Errorf("crash multiplier = %v, want clamp to crash point 1.20", m)
	}
}

func TestMultiplierClock_ResetRebindsCrashPoint(t *testing.T) {
	points := []float64{1.50, 1.75}
	i := 0
	gen := newCrashPointGeneratorWithRand(func() (float64, error) {
		defer func() { i++ }()
		if i%2 == 0 {
			return 0.10, nil
		}
		return points[(i/2)%len(points)] - 1.00, nil
	})

	clock := NewMultiplierClock(gen)
	first := clock.CrashPoint()
	clock.Reset()
	second := clock.CrashPoint()

	if first != 1.50 || second != 1.75 {
		t.Errorf("crash points = %v, %v, want 1.50 then 1.75", first, second)
	}
}
