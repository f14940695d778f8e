package tpg

import (
	"errors"
	"fmt"
	"math"

	"tangled/internal/archive"
	"tangled/internal/data"
	"tangled/internal/program"
)

// ErrDeadEnd is returned when a traversal reaches a team whose every
// destination was already visited. Mutation never builds such graphs.
var ErrDeadEnd = errors.New("traversal dead end")

// ExecutionEngine walks a graph from a root to an action. It is not safe for
// concurrent use; each worker owns one.
type ExecutionEngine struct {
	progEngine *program.Engine
	archive    *archive.Archive
}

// NewExecutionEngine returns an engine recording edge results into arch.
// A nil arch disables recording, which is what validation and testing use.
func NewExecutionEngine(env *program.Environment, arch *archive.Archive) *ExecutionEngine {
	return &ExecutionEngine{progEngine: program.NewEngine(env), archive: arch}
}

func (e *ExecutionEngine) SetArchive(arch *archive.Archive) {
	e.archive = arch
}

func (e *ExecutionEngine) Archive() *archive.Archive {
	return e.archive
}

// EvaluateEdge runs the edge program and offers the result to the archive.
func (e *ExecutionEngine) EvaluateEdge(edge *Edge, sources []data.Source) float64 {
	result := e.progEngine.Execute(edge.program, sources)
	if e.archive != nil {
		e.archive.AddRecording(edge.program, sources, result)
	}
	return result
}

// EvaluateTeam returns the outgoing edge of team with the greatest program
// result among those leading to unvisited vertices. NaN scores rank as -Inf;
// ties go to the earliest edge.
func (e *ExecutionEngine) EvaluateTeam(team *Vertex, visited map[*Vertex]bool, sources []data.Source) (*Edge, error) {
	var best *Edge
	bestScore := math.Inf(-1)
	for _, edge := range team.outgoing {
		if visited[edge.destination] {
			continue
		}
		score := e.EvaluateEdge(edge, sources)
		if math.IsNaN(score) {
			score = math.Inf(-1)
		}
		if best == nil || score > bestScore {
			best, bestScore = edge, score
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w: team %d", ErrDeadEnd, team.id)
	}
	return best, nil
}

// ExecuteFromRoot returns the visited vertices, root first and the chosen
// action last.
func (e *ExecutionEngine) ExecuteFromRoot(root *Vertex, sources []data.Source) ([]*Vertex, error) {
	path := []*Vertex{root}
	visited := map[*Vertex]bool{root: true}
	cur := root
	for cur.kind == Team {
		edge, err := e.EvaluateTeam(cur, visited, sources)
		if err != nil {
			return path, err
		}
		cur = edge.destination
		visited[cur] = true
		path = append(path, cur)
	}
	return path, nil
}
