package learn

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"

	"tangled/internal/tpg"
)

// Job is one unit of evaluation. Roots holds a single root, or the players
// of an adversarial game in turn order, Position being the one scored.
type Job struct {
	Idx         int
	Roots       []*tpg.Vertex
	Position    int
	Order       int
	Round       uint64
	ArchiveSeed uint64
	// Carry hands the environment end state to the next job of a
	// continuous run. Nil otherwise.
	Carry *StateCell
}

// Scored returns the root whose result the job produces.
func (j *Job) Scored() *tpg.Vertex {
	return j.Roots[j.Position]
}

// StateCell holds an environment state between consecutive jobs.
type StateCell struct {
	state any
	set   bool
}

func (c *StateCell) Store(state any) {
	c.state, c.set = state, true
}

func (c *StateCell) Load() (any, bool) {
	return c.state, c.set
}

func (c *StateCell) Clear() {
	c.state, c.set = nil, false
}

// IterationSeed is the environment reset seed of one evaluation iteration.
func IterationSeed(generation, iteration uint64) uint64 {
	return hashUint64(generation) ^ hashUint64(iteration)
}

func hashUint64(v uint64) uint64 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	return xxhash.Sum64(buf[:])
}
