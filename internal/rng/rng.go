// Package rng provides the seedable random source threaded through every
// mutation and evaluation step.
package rng

import (
	"math"
	"math/rand/v2"
)

// RNG is a deterministic pseudo-random source. It is not safe for concurrent
// use; parallel code derives one RNG per worker or per job from a seed.
type RNG struct {
	seed uint64
	src  *rand.PCG
	r    *rand.Rand
}

func New(seed uint64) *RNG {
	g := &RNG{}
	g.SetSeed(seed)
	return g
}

// SetSeed resets the generator state. Two generators with the same seed
// produce the same sequence.
func (g *RNG) SetSeed(seed uint64) {
	g.seed = seed
	g.src = rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
	g.r = rand.New(g.src)
}

func (g *RNG) Seed() uint64 {
	return g.seed
}

// Uint64 returns a uniform value in [min, max] (both inclusive).
func (g *RNG) Uint64(min, max uint64) uint64 {
	if max <= min {
		return min
	}
	span := max - min
	if span == math.MaxUint64 {
		return g.r.Uint64()
	}
	return min + g.r.Uint64N(span+1)
}

// Int returns a uniform value in [min, max] (both inclusive).
func (g *RNG) Int(min, max int) int {
	if max <= min {
		return min
	}
	return min + int(g.r.Uint64N(uint64(max-min)+1))
}

// Int32 returns a uniform value in [min, max] (both inclusive).
func (g *RNG) Int32(min, max int32) int32 {
	if max <= min {
		return min
	}
	span := uint64(int64(max) - int64(min))
	return int32(int64(min) + int64(g.r.Uint64N(span+1)))
}

// Float64 returns a uniform value in [min, max).
func (g *RNG) Float64(min, max float64) float64 {
	if max <= min {
		return min
	}
	return min + g.r.Float64()*(max-min)
}

// Chance reports true with probability p.
func (g *RNG) Chance(p float64) bool {
	return g.r.Float64() < p
}
