// Package delay produces the randomized inter-action pause. Delays are
// re-sampled independently before every dispatched action rather than
// using a fixed cadence, so the receiving service sees no periodic
// pattern.
package delay

import (
	"math/rand/v2"
	"time"
)

// Generator samples uniformly from [Min, Max].
type Generator struct {
	min time.Duration
	max time.Duration
	rnd func(n int64) int64
}

// New creates a generator for the given range. Min and max may be equal
// (including zero, used in tests and dry runs); a max below min is
// clamped to min.
func New(min, max time.Duration) *Generator {
	if max < min {
		max = min
	}
	return &Generator{min: min, max: max, rnd: rand.Int64N}
}

// Next returns a fresh delay sample.
func (g *Generator) Next() time.Duration {
	spread := int64(g.max - g.min)
	if spread <= 0 {
		return g.min
	}
	return g.min + time.Duration(g.rnd(spread+1))
}
