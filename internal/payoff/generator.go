package payoff

import (
	"math"
	"math/rand"
	"time"
)

// Generator produces random payoff settings from a seeded source.
type Generator struct {
	rnd *rand.Rand
}

// NewGenerator returns a Generator. A zero seed seeds from the clock.
func NewGenerator(seed int64) *Generator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Generator{rnd: rand.New(rand.NewSource(seed))}
}

// Rand exposes the underlying source for distribution draws.
func (g *Generator) Rand() *rand.Rand {
	return g.rnd
}

// Setting draws a random setting: two distinct magnitudes in 1..9 and
// probabilities in 0.1..0.9 per option.
func (g *Generator) Setting() Setting {
	return RandomSetting(g.rnd)
}

// RandomSetting draws a setting from rnd.
func RandomSetting(rnd *rand.Rand) Setting {
	var s Setting
	for option := 0; option < 2; option++ {
		first := rnd.Intn(9) + 1
		second := rnd.Intn(8) + 1
		if second >= first {
			second++
		}
		k := rnd.Intn(9) + 1
		base := option * 4
		s[base] = float64(first)
		s[base+1] = float64(second)
		s[base+2] = float64(k) / 10
		s[base+3] = float64(10-k) / 10
	}
	return s
}

// JitteredWaitFrames picks a uniform wait in
// [floor(minMs/1000*fps), ceil(maxMs/1000*fps)] frames.
func JitteredWaitFrames(rnd *rand.Rand, minMs, maxMs, fps int) int {
	low := int(math.Floor(float64(minMs) / 1000 * float64(fps)))
	high := int(math.Ceil(float64(maxMs) / 1000 * float64(fps)))
	if high < low {
		high = low
	}
	return low + rnd.Intn(high-low+1)
}
