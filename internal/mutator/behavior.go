package mutator

import (
	"math"

	"golang.org/x/sync/errgroup"

	"tangled/internal/archive"
	"tangled/internal/data"
	"tangled/internal/program"
	"tangled/internal/rng"
)

// MutateNewProgramBehaviors mutates every program of progs until it changed
// and, when ForceProgramBehaviorChangeOnMutation is set, until its results
// on the archived snapshots differ from every archived program. Seeds are
// drawn from r in program order before the work is spread over nbThreads
// goroutines, so the outcome does not depend on nbThreads.
func MutateNewProgramBehaviors(progs []*program.Program, arch *archive.Archive, params Parameters, r *rng.RNG, nbThreads int) error {
	seeds := make([]uint64, len(progs))
	for i := range seeds {
		seeds[i] = r.Uint64(0, math.MaxUint64)
	}

	var g errgroup.Group
	g.SetLimit(max(nbThreads, 1))
	for i, p := range progs {
		g.Go(func() error {
			MutateProgramBehaviorAgainstArchive(p, arch, params, rng.New(seeds[i]))
			return nil
		})
	}
	return g.Wait()
}

// MutateProgramBehaviorAgainstArchive mutates p at least once and reports
// whether its final behaviour is unique with respect to arch. Attempts are
// bounded by MaxBehaviorMutationAttempts.
func MutateProgramBehaviorAgainstArchive(p *program.Program, arch *archive.Archive, params Parameters, r *rng.RNG) bool {
	force := params.TPG.ForceProgramBehaviorChangeOnMutation && arch != nil && arch.Len() > 0
	var engine *program.Engine
	if force {
		engine = program.NewEngine(p.Environment())
	}
	for attempt := 0; attempt < params.TPG.MaxBehaviorMutationAttempts; attempt++ {
		if !mutateUntilChanged(p, params.Prog, r) {
			return false
		}
		if !force {
			return true
		}
		if arch.AreProgramResultsUnique(programResults(engine, p, arch.DataSnapshots()), archive.DefaultTau) {
			return true
		}
	}
	return false
}

// maxMutateRetries bounds the draws of MutateProgram that apply no edit.
const maxMutateRetries = 10000

func mutateUntilChanged(p *program.Program, params ProgramParameters, r *rng.RNG) bool {
	for i := 0; i < maxMutateRetries; i++ {
		if MutateProgram(p, params, r) {
			return true
		}
	}
	return false
}

func programResults(engine *program.Engine, p *program.Program, snapshots map[uint64][]data.Source) map[uint64]float64 {
	out := make(map[uint64]float64, len(snapshots))
	for hash, sources := range snapshots {
		out[hash] = engine.Execute(p, sources)
	}
	return out
}
