package mutator

import (
	"fmt"

	"tangled/internal/program"
	"tangled/internal/rng"
)

// InitRandomProgram replaces the content of p with random constants and a
// uniformly drawn number of random lines in [1, MaxProgramSize].
func InitRandomProgram(p *program.Program, params ProgramParameters, r *rng.RNG) {
	p.Clear()
	for i := 0; i < p.Environment().NbConstants(); i++ {
		must(p.SetConstant(i, r.Int32(params.MinConstValue, params.MaxConstValue)))
	}
	nbLines := r.Uint64(1, params.MaxProgramSize)
	for uint64(p.NbLines()) < nbLines {
		InsertRandomLine(p, params, r)
	}
}

// DeleteRandomLine is a no-op on programs with a single line.
func DeleteRandomLine(p *program.Program, r *rng.RNG) bool {
	if p.NbLines() <= 1 {
		return false
	}
	must(p.RemoveLine(r.Int(0, p.NbLines()-1)))
	return true
}

func InsertRandomLine(p *program.Program, params ProgramParameters, r *rng.RNG) {
	at := r.Int(0, p.NbLines())
	must(p.InsertLine(at, InitRandomLine(p.Environment(), params, r)))
}

// SwapRandomLines swaps two distinct lines.
func SwapRandomLines(p *program.Program, r *rng.RNG) bool {
	if p.NbLines() < 2 {
		return false
	}
	i := r.Int(0, p.NbLines()-1)
	j := redraw(i, p.NbLines(), r)
	must(p.SwapLines(i, j))
	return true
}

func AlterRandomLine(p *program.Program, params ProgramParameters, r *rng.RNG) bool {
	if p.NbLines() < 1 {
		return false
	}
	i := r.Int(0, p.NbLines()-1)
	must(p.SetLine(i, AlterLine(p.Environment(), p.Line(i), params, r)))
	return true
}

func AlterRandomConstant(p *program.Program, params ProgramParameters, r *rng.RNG) bool {
	n := p.Environment().NbConstants()
	if n == 0 {
		return false
	}
	must(p.SetConstant(r.Int(0, n-1), r.Int32(params.MinConstValue, params.MaxConstValue)))
	return true
}

// MutateProgram applies each line edit with its own probability and reports
// whether any edit was attempted.
func MutateProgram(p *program.Program, params ProgramParameters, r *rng.RNG) bool {
	mutated := false
	if p.NbLines() > 1 && r.Chance(params.PDelete) {
		mutated = true
		DeleteRandomLine(p, r)
	}
	if uint64(p.NbLines()) < params.MaxProgramSize && r.Chance(params.PAdd) {
		mutated = true
		InsertRandomLine(p, params, r)
	}
	if r.Chance(params.PMutate) {
		mutated = true
		AlterRandomLine(p, params, r)
	}
	if r.Chance(params.PSwap) {
		mutated = true
		SwapRandomLines(p, r)
	}
	if p.Environment().NbConstants() > 0 && r.Chance(params.PConstantMutation) {
		mutated = true
		AlterRandomConstant(p, params, r)
	}
	return mutated
}

// must panics on failed edits of lines generated by this package.
func must(err error) {
	if err != nil {
		panic(fmt.Sprintf("mutator: %v", err))
	}
}
