package game

import (
	"crypto/rand"
	"math"
	"math/big"
)

const (
	MIN_MULTIPLIER = 1.00
	MAX_MULTIPLIER = 100.00
	HOUSE_EDGE     = 0.05 // 5% instant-crash slice
)

// CrashPointGenerator draws the multiplier at which a round will crash.
// The tiered distribution keeps most rounds low while leaving a thin tail
// of large multipliers; the instant-crash slice is the house edge.
type CrashPointGenerator struct {
	rand func() (float64, error)
}

func NewCrashPointGenerator() *CrashPointGenerator {
	return &CrashPointGenerator{rand: cryptoFloat64}
}

// newCrashPointGeneratorWithRand injects a deterministic source for tests.
func newCrashPointGeneratorWithRand(src func() (float64, error)) *CrashPointGenerator {
	return &CrashPointGenerator{rand: src}
}

// Generate returns a crash multiplier in [MIN_MULTIPLIER, MAX_MULTIPLIER].
// A failing random source degrades to an instant crash instead of an error.
func (g *CrashPointGenerator) Generate() float64 {
	tier, err := g.rand()
	if err != nil {
		return MIN_MULTIPLIER
	}
	if tier < HOUSE_EDGE {
		return MIN_MULTIPLIER
	}

	pos, err := g.rand()
	if err != nil {
		return MIN_MULTIPLIER
	}

	var point float64
	switch {
	case tier < 0.33:
		// 1.00x - 2.00x
		point = 1.00 + pos*1.00
	case tier < 0.60:
		// 2.00x - 5.00x
		point = 2.00 + pos*3.00
	case tier < 0.85:
		// 5.00x - 20.00x
		point = 5.00 + pos*15.00
	case tier < 0.95:
		// 20.00x - 50.00x
		point = 20.00 + pos*30.00
	default:
		// 50.00x - 100.00x
		point = 50.00 + pos*50.00
	}

	point = truncateMultiplier(point)
	if point < MIN_MULTIPLIER {
		return MIN_MULTIPLIER
	}
	if point > MAX_MULTIPLIER {
		return MAX_MULTIPLIER
	}
	return point
}

// truncateMultiplier floors to two decimal places so displayed values never
// overshoot the true curve.
func truncateMultiplier(m float64) float64 {
	return math.Floor(m*100) / 100
}

// cryptoFloat64 returns a uniform value in [0, 1) from crypto/rand.
func cryptoFloat64() (float64, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1<<53))
	if err != nil {
		return 0, err
	}
	return float64(n.Int64()) / (1 << 53), nil
}
