package mutator

import (
	"errors"
	"fmt"

	"tangled/internal/archive"
	"tangled/internal/program"
	"tangled/internal/rng"
	"tangled/internal/tpg"
)

var (
	ErrNoActions = errors.New("at least one action is required")
	ErrNoTeams   = errors.New("graph has no team to clone")
)

// InitRandomTPG clears g and fills it with nbActions actions and as many
// teams. Each team gets between 2 and MaxInitOutgoingEdges edges to distinct
// actions, carrying programs drawn from a shared pool of 2*nbActions random
// programs.
func InitRandomTPG(g *tpg.Graph, params Parameters, nbActions int, r *rng.RNG) error {
	if nbActions < 1 {
		return ErrNoActions
	}
	g.Clear()
	actions := make([]*tpg.Vertex, nbActions)
	for i := range actions {
		actions[i] = g.AddNewAction(uint64(i))
	}
	teams := make([]*tpg.Vertex, nbActions)
	for i := range teams {
		teams[i] = g.AddNewTeam()
	}
	programs := make([]*program.Program, 2*nbActions)
	for i := range programs {
		programs[i] = program.New(g.Environment())
		InitRandomProgram(programs[i], params.Prog, r)
	}

	maxEdges := min(int(params.TPG.MaxInitOutgoingEdges), nbActions)
	minEdges := min(2, maxEdges)
	for _, team := range teams {
		nbEdges := r.Int(minEdges, maxEdges)
		for team.NbOutgoing() < nbEdges {
			dst := actions[r.Int(0, nbActions-1)]
			if team.HasEdgeTo(dst) {
				continue
			}
			if _, err := g.AddNewEdge(team, dst, programs[r.Int(0, len(programs)-1)]); err != nil {
				return fmt.Errorf("init edge: %w", err)
			}
		}
	}
	return nil
}

// PopulateTPG clones random root teams and mutates the clones until the
// graph holds NbRoots roots, then mutates the programs of the new edges
// against the archive on up to nbThreads goroutines. arch may be nil.
func PopulateTPG(g *tpg.Graph, arch *archive.Archive, params Parameters, r *rng.RNG, nbThreads int) error {
	preTeams := g.Teams()
	preActions := g.Actions()
	var rootTeams []*tpg.Vertex
	for _, v := range g.RootVertices() {
		if !v.IsAction() {
			rootTeams = append(rootTeams, v)
		}
	}
	if len(rootTeams) == 0 {
		rootTeams = preTeams
	}
	if len(rootTeams) == 0 {
		return ErrNoTeams
	}

	var newPrograms []*program.Program
	for uint64(g.NbRootVertices()) < params.TPG.NbRoots {
		parent := rootTeams[r.Int(0, len(rootTeams)-1)]
		child, err := g.CloneVertex(parent)
		if err != nil {
			return fmt.Errorf("clone team %d: %w", parent.ID(), err)
		}
		progs, err := MutateTeam(g, child, preTeams, preActions, params, r)
		if err != nil {
			return err
		}
		newPrograms = append(newPrograms, progs...)
	}
	return MutateNewProgramBehaviors(newPrograms, arch, params, r, nbThreads)
}

// MutateTeam edits a freshly cloned team: edge removals and additions with
// geometrically decreasing probability, then at least one edge gets a copy
// of its program (returned for behaviour mutation) and possibly a new
// destination. The team never loses its last action edge.
func MutateTeam(g *tpg.Graph, team *tpg.Vertex, preTeams, preActions []*tpg.Vertex, params Parameters, r *rng.RNG) ([]*program.Program, error) {
	p := params.TPG.PEdgeDeletion
	for team.NbOutgoing() > 2 && r.Chance(p) {
		if err := RemoveRandomEdge(g, team, r); err != nil {
			return nil, err
		}
		p *= params.TPG.PEdgeDeletion
	}

	p = params.TPG.PEdgeAddition
	for uint64(team.NbOutgoing()) < params.TPG.MaxOutgoingEdges && r.Chance(p) {
		if _, err := AddRandomEdge(g, team, preTeams, r); err != nil {
			return nil, err
		}
		p *= params.TPG.PEdgeAddition
	}

	var progs []*program.Program
	for len(progs) == 0 {
		for _, e := range team.Outgoing() {
			if !r.Chance(params.TPG.PProgramMutation) {
				continue
			}
			copied := e.Program().Clone()
			e.SetProgram(copied)
			progs = append(progs, copied)
			if r.Chance(params.TPG.PEdgeDestinationChange) {
				if err := MutateEdgeDestination(g, team, e, preTeams, preActions, params, r); err != nil {
					return nil, err
				}
			}
		}
	}
	return progs, nil
}

// RemoveRandomEdge removes one outgoing edge of team, sparing its last
// action edge.
func RemoveRandomEdge(g *tpg.Graph, team *tpg.Vertex, r *rng.RNG) error {
	candidates := team.Outgoing()
	if team.NbActionEdges() == 1 {
		candidates = candidates[:0]
		for _, e := range team.Outgoing() {
			if !e.Destination().IsAction() {
				candidates = append(candidates, e)
			}
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	return g.RemoveEdge(candidates[r.Int(0, len(candidates)-1)])
}

// AddRandomEdge copies onto team a random edge of a pre-existing team whose
// destination team does not already reach. It reports false when no such
// edge exists.
func AddRandomEdge(g *tpg.Graph, team *tpg.Vertex, preTeams []*tpg.Vertex, r *rng.RNG) (bool, error) {
	var candidates []*tpg.Edge
	for _, t := range preTeams {
		if t == team || !g.HasVertex(t) {
			continue
		}
		for _, e := range t.Outgoing() {
			dst := e.Destination()
			if dst != team && !team.HasEdgeTo(dst) {
				candidates = append(candidates, e)
			}
		}
	}
	if len(candidates) == 0 {
		return false, nil
	}
	pick := candidates[r.Int(0, len(candidates)-1)]
	if _, err := g.AddNewEdge(team, pick.Destination(), pick.Program()); err != nil {
		return false, fmt.Errorf("copy edge: %w", err)
	}
	return true, nil
}

// MutateEdgeDestination points e at a random pre-existing team or action the
// team does not already reach. The last action edge of a team is only ever
// moved to another action.
func MutateEdgeDestination(g *tpg.Graph, team *tpg.Vertex, e *tpg.Edge, preTeams, preActions []*tpg.Vertex, params Parameters, r *rng.RNG) error {
	lastAction := e.Destination().IsAction() && team.NbActionEdges() == 1
	toAction := lastAction || r.Chance(params.TPG.PEdgeDestinationIsAction)

	pool := preTeams
	if toAction {
		pool = preActions
	}
	candidates := freeDestinations(g, team, pool)
	if len(candidates) == 0 && !toAction {
		candidates = freeDestinations(g, team, preActions)
	}
	if len(candidates) == 0 {
		return nil
	}
	return g.SetEdgeDestination(e, candidates[r.Int(0, len(candidates)-1)])
}

func freeDestinations(g *tpg.Graph, team *tpg.Vertex, pool []*tpg.Vertex) []*tpg.Vertex {
	var out []*tpg.Vertex
	for _, v := range pool {
		if v != team && g.HasVertex(v) && !team.HasEdgeTo(v) {
			out = append(out, v)
		}
	}
	return out
}
