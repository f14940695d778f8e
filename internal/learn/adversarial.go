package learn

import (
	"fmt"

	"tangled/internal/tpg"
)

// AdversarialAgent trains policies that play against each other. Each root
// plays several games against champions of the previous generation and is
// scored on its own seat only.
type AdversarialAgent struct {
	*Agent
}

// NewAdversarialAgent returns a parallel agent whose environment must
// implement AdversarialEnvironment with AgentsPerEvaluation players.
func NewAdversarialAgent(cfg Config) (*AdversarialAgent, error) {
	env, ok := cfg.Environment.(AdversarialEnvironment)
	if !ok {
		return nil, fmt.Errorf("%w: adversarial environment required", ErrEnvironment)
	}
	if env.NbPlayers() != cfg.Params.AgentsPerEvaluation {
		return nil, fmt.Errorf("%w: environment has %d players, agentsPerEvaluation is %d",
			ErrEnvironment, env.NbPlayers(), cfg.Params.AgentsPerEvaluation)
	}
	a, err := newAgent(cfg, adversarialStrategy{}, true)
	if err != nil {
		return nil, err
	}
	return &AdversarialAgent{Agent: a}, nil
}

// Champions returns the opponents the next evaluation draws from: the best
// roots of the last generation still in the graph, or every root before the
// first generation.
func (a *AdversarialAgent) Champions() []*tpg.Vertex {
	return champions(a.Agent)
}

func champions(a *Agent) []*tpg.Vertex {
	var out []*tpg.Vertex
	for i := len(a.lastResults) - 1; i >= 0 && len(out) < a.params.NbChampions; i-- {
		if root := a.lastResults[i].Root; a.graph.HasVertex(root) {
			out = append(out, root)
		}
	}
	if len(out) == 0 {
		out = a.graph.RootVertices()
	}
	return out
}

type adversarialStrategy struct{}

func (adversarialStrategy) reset() {}

func (adversarialStrategy) makeJobs(a *Agent, mode Mode) ([]*Job, []RootResult) {
	opponents := champions(a)
	players := a.params.AgentsPerEvaluation
	perJob := a.params.NbIterationsPerJob
	rounds := (a.params.NbIterationsPerPolicyEvaluation + perJob - 1) / perJob

	var jobs []*Job
	var skipped []RootResult
	for i, root := range a.graph.RootVertices() {
		if mode == Training {
			if prev, ok := a.skip(root); ok {
				skipped = append(skipped, RootResult{Root: root, Result: prev, Order: i})
				continue
			}
		}
		for round := uint64(0); round < rounds; round++ {
			pos := a.rng.Int(0, players-1)
			seats := make([]*tpg.Vertex, players)
			for s := range seats {
				if s == pos {
					seats[s] = root
				} else {
					seats[s] = opponents[a.rng.Int(0, len(opponents)-1)]
				}
			}
			jobs = append(jobs, &Job{
				Idx:         len(jobs),
				Roots:       seats,
				Position:    pos,
				Order:       i,
				Round:       round,
				ArchiveSeed: a.archiveSeed(mode),
			})
		}
	}
	return jobs, skipped
}

func (adversarialStrategy) runJob(a *Agent, w *worker, job *Job, generation uint64, mode Mode) (EvaluationResult, error) {
	env, ok := w.env.(AdversarialEnvironment)
	if !ok {
		return EvaluationResult{}, fmt.Errorf("%w: adversarial environment required", ErrEnvironment)
	}
	n := a.params.NbIterationsPerJob
	var sum float64
	for it := uint64(0); it < n; it++ {
		iteration := job.Round*n + it
		env.Reset(IterationSeed(generation, iteration), mode, iteration, generation)
		actions := uint64(0)
		for actions < a.params.MaxNbActionsPerEval && !env.IsTerminal() {
			for _, player := range job.Roots {
				if actions >= a.params.MaxNbActionsPerEval || env.IsTerminal() {
					break
				}
				if err := act(w, player); err != nil {
					return EvaluationResult{}, fmt.Errorf("job %d: %w", job.Idx, err)
				}
				actions++
			}
		}
		sum += env.Scores()[job.Position]
	}
	return EvaluationResult{Sum: sum, Count: n}, nil
}
