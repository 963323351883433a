package utils

import (
	"math"
	"math/rand"
	"time"
)

// RandSource is a seeded random number generator. A RandSource is not safe for
// concurrent use; give each goroutine its own stream (see DeriveSeed).
type RandSource struct {
	rng *rand.Rand
}

// NewRandSource creates a new random source with the given seed.
// A zero seed selects a time-based seed.
func NewRandSource(seed int64) *RandSource {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &RandSource{
		rng: rand.New(rand.NewSource(seed)),
	}
}

// Float64 returns a random float64 in [0.0, 1.0)
func (r *RandSource) Float64() float64 {
	return r.rng.Float64()
}

// NormFloat64 returns a normally distributed random number with mean and stddev
func (r *RandSource) NormFloat64(mean, stddev float64) float64 {
	return r.rng.NormFloat64()*stddev + mean
}

// LogNormFloat64 returns exp(X) where X ~ Normal(mu, sigma).
// With sigma == 0 the draw is exactly exp(mu).
func (r *RandSource) LogNormFloat64(mu, sigma float64) float64 {
	return math.Exp(r.NormFloat64(mu, sigma))
}

// DeriveSeed returns a well-mixed seed for the stream-th independent stream of a
// base seed. The result is never zero, so it never falls back to time seeding.
func DeriveSeed(base int64, stream uint64) int64 {
	z := uint64(base) + (stream+1)*0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	z ^= z >> 31
	seed := int64(z &^ (1 << 63))
	if seed == 0 {
		return 1
	}
	return seed
}
