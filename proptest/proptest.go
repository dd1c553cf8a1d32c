// Package proptest provides seeded random generation and a small property
// runner for compiler tests.
//
// A failing property reports its seed; set PROPTEST_SEED to replay it:
//
//	func TestCompileIsDeterministic(t *testing.T) {
//	    proptest.QuickCheck(t, "deterministic", func(g *proptest.Generator) bool {
//	        n := g.IntRange(1, 100)
//	        return compile(n) == compile(n)
//	    })
//	}
package proptest

import (
	"math/rand"
	"os"
	"strconv"
	"testing"
	"time"
)

// Generator wraps a seeded random number generator. The seed is kept so a
// failure can be reproduced.
type Generator struct {
	rng  *rand.Rand
	seed int64
}

// New creates a Generator. A zero seed uses the current time.
func New(seed int64) *Generator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Generator{rng: rand.New(rand.NewSource(seed)), seed: seed}
}

// Seed returns the generator's seed.
func (g *Generator) Seed() int64 {
	return g.seed
}

// Intn returns a random int in [0, n). Panics if n <= 0.
func (g *Generator) Intn(n int) int {
	return g.rng.Intn(n)
}

// IntRange returns a random int in [min, max].
func (g *Generator) IntRange(min, max int) int {
	if min > max {
		panic("proptest: IntRange min > max")
	}
	return min + g.rng.Intn(max-min+1)
}

// Int64Range returns a random int64 in [min, max].
func (g *Generator) Int64Range(min, max int64) int64 {
	if min > max {
		panic("proptest: Int64Range min > max")
	}
	return min + g.rng.Int63n(max-min+1)
}

// Float64 returns a random float64 in [0.0, 1.0).
func (g *Generator) Float64() float64 {
	return g.rng.Float64()
}

// Bool returns true or false with equal probability.
func (g *Generator) Bool() bool {
	return g.rng.Intn(2) == 1
}

// BoolWithProb returns true with the given probability.
func (g *Generator) BoolWithProb(prob float64) bool {
	return g.rng.Float64() < prob
}

// Config controls a property run.
type Config struct {
	// NumTrials defaults to 100.
	NumTrials int
	// Seed 0 means PROPTEST_SEED, or the current time.
	Seed int64
}

func effectiveSeed(cfg Config) int64 {
	if env := os.Getenv("PROPTEST_SEED"); env != "" {
		if seed, err := strconv.ParseInt(env, 10, 64); err == nil {
			return seed
		}
	}
	if cfg.Seed != 0 {
		return cfg.Seed
	}
	return time.Now().UnixNano()
}

// Check runs prop NumTrials times and fails t with the seed on the first
// false result.
func Check(t *testing.T, name string, cfg Config, prop func(g *Generator) bool) {
	t.Helper()
	CheckWithLabel(t, name, cfg, func(g *Generator) (string, bool) {
		return "", prop(g)
	})
}

// QuickCheck is Check with 100 trials.
func QuickCheck(t *testing.T, name string, prop func(g *Generator) bool) {
	t.Helper()
	Check(t, name, Config{}, prop)
}

// CheckWithLabel is Check for properties that describe the failing case.
func CheckWithLabel(t *testing.T, name string, cfg Config, prop func(g *Generator) (label string, ok bool)) {
	t.Helper()
	if cfg.NumTrials <= 0 {
		cfg.NumTrials = 100
	}
	seed := effectiveSeed(cfg)
	g := New(seed)
	for i := 0; i < cfg.NumTrials; i++ {
		if label, ok := prop(g); !ok {
			t.Errorf("proptest %q failed on trial %d: %s (seed=%d, use PROPTEST_SEED=%d to reproduce)",
				name, i+1, label, seed, seed)
			return
		}
	}
}

// ForAll runs a property that returns the value it generated, which is
// reported on failure.
func ForAll[T any](t *testing.T, name string, numTrials int, prop func(g *Generator) (T, bool)) {
	t.Helper()
	seed := effectiveSeed(Config{})
	g := New(seed)
	for i := 0; i < numTrials; i++ {
		if val, ok := prop(g); !ok {
			t.Errorf("proptest %q failed on trial %d with value %+v (seed=%d, use PROPTEST_SEED=%d to reproduce)",
				name, i+1, val, seed, seed)
			return
		}
	}
}
