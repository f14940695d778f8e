package model

import (
	"errors"
	"fmt"

	"tangled/internal/instructions"
	"tangled/internal/program"
	"tangled/internal/tpg"
)

var ErrBadSnapshot = errors.New("invalid graph snapshot")

// Snapshot lists g. When roots are given, only the vertices reachable from
// them are kept, which extracts single policies.
func Snapshot(g *tpg.Graph, roots ...*tpg.Vertex) GraphSnapshot {
	env := g.Environment()
	snap := GraphSnapshot{
		Registers:    env.NbRegisters(),
		Constants:    env.NbConstants(),
		Sources:      env.Shapes(),
		Instructions: env.Instructions().Names(),
	}

	keep := func(*tpg.Vertex) bool { return true }
	if len(roots) > 0 {
		reached := reachable(roots)
		keep = func(v *tpg.Vertex) bool { return reached[v] }
	}

	for _, v := range g.Vertices() {
		if !keep(v) {
			continue
		}
		vs := VertexSnapshot{ID: v.ID(), Kind: v.Kind().String()}
		if v.IsAction() {
			id := v.ActionID()
			vs.ActionID = &id
		}
		snap.Vertices = append(snap.Vertices, vs)
		if v.NbIncoming() == 0 {
			snap.Roots = append(snap.Roots, v.ID())
		}
	}

	index := make(map[*program.Program]int)
	for _, e := range g.Edges() {
		if !keep(e.Source()) {
			continue
		}
		p := e.Program()
		idx, ok := index[p]
		if !ok {
			idx = len(snap.Programs)
			index[p] = idx
			snap.Programs = append(snap.Programs, listProgram(p))
		}
		snap.Edges = append(snap.Edges, EdgeSnapshot{
			Source:      e.Source().ID(),
			Destination: e.Destination().ID(),
			Program:     idx,
		})
	}
	if len(roots) > 0 {
		snap.Roots = snap.Roots[:0]
		for _, r := range roots {
			snap.Roots = append(snap.Roots, r.ID())
		}
	}
	return snap
}

func reachable(roots []*tpg.Vertex) map[*tpg.Vertex]bool {
	seen := make(map[*tpg.Vertex]bool)
	stack := append([]*tpg.Vertex(nil), roots...)
	for len(stack) > 0 {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[v] {
			continue
		}
		seen[v] = true
		for _, e := range v.Outgoing() {
			stack = append(stack, e.Destination())
		}
	}
	return seen
}

func listProgram(p *program.Program) ProgramListing {
	set := p.Environment().Instructions()
	out := ProgramListing{
		Constants: p.Constants(),
		Lines:     make([]LineListing, 0, p.NbLines()),
		Introns:   p.NbIntrons(),
	}
	for i, l := range p.Lines() {
		item := set.At(l.Instruction)
		out.Lines = append(out.Lines, LineListing{
			Instruction: item.Name(),
			Destination: l.Destination,
			Operands:    append([]program.Operand(nil), l.Operands[:len(item.OperandTypes())]...),
			Params:      append([]float64(nil), l.Params[:item.NbParameters()]...),
			Intron:      p.IsIntron(i),
		})
	}
	return out
}

// Restore rebuilds a graph from a snapshot. A nil set is resolved from the
// instruction names of the snapshot. Vertex identifiers are reassigned in
// snapshot order.
func Restore(snap GraphSnapshot, set *instructions.Set) (*tpg.Graph, error) {
	g, _, err := RestoreWithRoots(snap, set)
	return g, err
}

// RestoreWithRoots is Restore that also returns the restored vertices of
// snap.Roots, in order.
func RestoreWithRoots(snap GraphSnapshot, set *instructions.Set) (*tpg.Graph, []*tpg.Vertex, error) {
	if set == nil {
		var err error
		set, err = instructions.NewSetFromNames(snap.Instructions)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrBadSnapshot, err)
		}
	}
	env, err := program.NewEnvironment(set, snap.Sources, snap.Registers, snap.Constants)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrBadSnapshot, err)
	}

	progs := make([]*program.Program, len(snap.Programs))
	for i, listing := range snap.Programs {
		p, err := restoreProgram(env, listing)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: program %d: %v", ErrBadSnapshot, i, err)
		}
		progs[i] = p
	}

	g := tpg.NewGraph(env)
	byID := make(map[uint64]*tpg.Vertex, len(snap.Vertices))
	for _, vs := range snap.Vertices {
		if _, dup := byID[vs.ID]; dup {
			return nil, nil, fmt.Errorf("%w: duplicate vertex %d", ErrBadSnapshot, vs.ID)
		}
		switch vs.Kind {
		case tpg.Team.String():
			byID[vs.ID] = g.AddNewTeam()
		case tpg.Action.String():
			if vs.ActionID == nil {
				return nil, nil, fmt.Errorf("%w: action %d has no action id", ErrBadSnapshot, vs.ID)
			}
			byID[vs.ID] = g.AddNewAction(*vs.ActionID)
		default:
			return nil, nil, fmt.Errorf("%w: vertex %d has unknown kind %q", ErrBadSnapshot, vs.ID, vs.Kind)
		}
	}
	for i, es := range snap.Edges {
		src, ok := byID[es.Source]
		if !ok {
			return nil, nil, fmt.Errorf("%w: edge %d has unknown source %d", ErrBadSnapshot, i, es.Source)
		}
		dst, ok := byID[es.Destination]
		if !ok {
			return nil, nil, fmt.Errorf("%w: edge %d has unknown destination %d", ErrBadSnapshot, i, es.Destination)
		}
		if es.Program < 0 || es.Program >= len(progs) {
			return nil, nil, fmt.Errorf("%w: edge %d has unknown program %d", ErrBadSnapshot, i, es.Program)
		}
		if _, err := g.AddNewEdge(src, dst, progs[es.Program]); err != nil {
			return nil, nil, fmt.Errorf("%w: edge %d: %v", ErrBadSnapshot, i, err)
		}
	}
	roots := make([]*tpg.Vertex, 0, len(snap.Roots))
	for _, id := range snap.Roots {
		v, ok := byID[id]
		if !ok {
			return nil, nil, fmt.Errorf("%w: unknown root %d", ErrBadSnapshot, id)
		}
		roots = append(roots, v)
	}
	return g, roots, nil
}

func restoreProgram(env *program.Environment, listing ProgramListing) (*program.Program, error) {
	p := program.New(env)
	for i, c := range listing.Constants {
		if err := p.SetConstant(i, c); err != nil {
			return nil, err
		}
	}
	for _, ll := range listing.Lines {
		idx, ok := env.Instructions().Index(ll.Instruction)
		if !ok {
			return nil, fmt.Errorf("unknown instruction %q", ll.Instruction)
		}
		l := program.NewLine(env)
		l.Instruction = idx
		l.Destination = ll.Destination
		if len(ll.Operands) > len(l.Operands) || len(ll.Params) > len(l.Params) {
			return nil, fmt.Errorf("line of %s has too many operands or parameters", ll.Instruction)
		}
		copy(l.Operands, ll.Operands)
		copy(l.Params, ll.Params)
		if err := p.AppendLine(l); err != nil {
			return nil, err
		}
	}
	return p, nil
}
