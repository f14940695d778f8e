// Package archive stores recent program results on input snapshots. The
// mutator uses it to reject new programs that behave like archived ones.
package archive

import (
	"math"

	"tangled/internal/data"
	"tangled/internal/program"
	"tangled/internal/rng"
)

// DefaultTau is the result distance under which two programs are said to
// behave identically on a snapshot.
const DefaultTau = 1e-4

type Recording struct {
	Program  *program.Program
	DataHash uint64
	Result   float64
}

// Archive is a ring buffer of recordings. Insertion is probabilistic and the
// oldest recording is evicted when the buffer is full. Snapshots of the data
// sources are kept once per hash while some recording refers to them.
type Archive struct {
	capacity    int
	probability float64
	rng         *rng.RNG

	recordings []Recording
	snapshots  map[uint64][]data.Source
	refs       map[uint64]int
}

// New returns an archive keeping at most capacity recordings, each offer
// being kept with the given probability.
func New(capacity int, probability float64, seed uint64) *Archive {
	return &Archive{
		capacity:    capacity,
		probability: probability,
		rng:         rng.New(seed),
		snapshots:   make(map[uint64][]data.Source),
		refs:        make(map[uint64]int),
	}
}

// NewExhaustive returns an unbounded archive keeping every offer. Workers use
// one per job and the main archive replays it on merge.
func NewExhaustive() *Archive {
	return New(0, 1, 0)
}

func (a *Archive) Capacity() int { return a.capacity }

func (a *Archive) Probability() float64 { return a.probability }

func (a *Archive) Len() int { return len(a.recordings) }

func (a *Archive) SetRandomSeed(seed uint64) {
	a.rng.SetSeed(seed)
}

// AddRecording offers a program result computed on sources.
func (a *Archive) AddRecording(p *program.Program, sources []data.Source, result float64) {
	if a.probability < 1 && !a.rng.Chance(a.probability) {
		return
	}
	a.push(Recording{Program: p, DataHash: data.HashSources(sources), Result: result}, sources)
}

func (a *Archive) push(r Recording, sources []data.Source) {
	if _, ok := a.snapshots[r.DataHash]; !ok {
		a.snapshots[r.DataHash] = data.CloneSources(sources)
	}
	a.refs[r.DataHash]++
	a.recordings = append(a.recordings, r)
	if a.capacity > 0 && len(a.recordings) > a.capacity {
		oldest := a.recordings[0]
		copy(a.recordings, a.recordings[1:])
		a.recordings = a.recordings[:len(a.recordings)-1]
		a.release(oldest.DataHash)
	}
}

func (a *Archive) release(hash uint64) {
	a.refs[hash]--
	if a.refs[hash] <= 0 {
		delete(a.refs, hash)
		delete(a.snapshots, hash)
	}
}

// Merge replays other's recordings in order, as if they had been offered to
// a directly after SetRandomSeed(seed). Replaying per-job archives in
// ascending job order therefore reproduces sequential evaluation.
func (a *Archive) Merge(other *Archive, seed uint64) {
	a.SetRandomSeed(seed)
	for _, r := range other.recordings {
		if a.probability < 1 && !a.rng.Chance(a.probability) {
			continue
		}
		a.push(r, other.snapshots[r.DataHash])
	}
}

// Recordings returns the recordings oldest first.
func (a *Archive) Recordings() []Recording {
	return append([]Recording(nil), a.recordings...)
}

// DataSnapshots returns the stored snapshots keyed by hash. The map and
// sources are shared with the archive and must be treated as read-only.
func (a *Archive) DataSnapshots() map[uint64][]data.Source {
	return a.snapshots
}

// AreProgramResultsUnique reports whether a candidate whose results on the
// archived snapshots are hashesAndResults differs from every archived
// program. A program is a duplicate when all its recordings on snapshots the
// candidate was run on are within tau of the candidate's results.
func (a *Archive) AreProgramResultsUnique(hashesAndResults map[uint64]float64, tau float64) bool {
	differs := make(map[*program.Program]bool)
	for _, r := range a.recordings {
		res, ok := hashesAndResults[r.DataHash]
		if !ok {
			continue
		}
		d := differs[r.Program]
		differs[r.Program] = d || !(math.Abs(res-r.Result) < tau)
	}
	for _, d := range differs {
		if !d {
			return false
		}
	}
	return true
}

// Clear drops all recordings and snapshots; the RNG state is kept.
func (a *Archive) Clear() {
	a.recordings = nil
	a.snapshots = make(map[uint64][]data.Source)
	a.refs = make(map[uint64]int)
}
