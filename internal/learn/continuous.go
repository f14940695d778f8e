package learn

import (
	"fmt"
)

// ContinuousAgent evaluates policies one after the other on a single
// running environment: each root acts for TotalInteractions steps starting
// from the state the previous root left. A root scores the mean of the
// environment score observed after each of its interactions. Decimation
// happens every DecimationInterval generations.
type ContinuousAgent struct {
	*Agent
	s *continuousStrategy
}

func NewContinuousAgent(cfg Config) (*ContinuousAgent, error) {
	if _, ok := cfg.Environment.(Resumable); !ok {
		return nil, fmt.Errorf("%w: resumable environment required", ErrEnvironment)
	}
	s := &continuousStrategy{}
	a, err := newAgent(cfg, s, false)
	if err != nil {
		return nil, err
	}
	a.decimationInterval = cfg.Params.DecimationInterval
	return &ContinuousAgent{Agent: a, s: s}, nil
}

// CarriedState returns the environment state the next training job resumes
// from.
func (c *ContinuousAgent) CarriedState() (any, bool) {
	return c.s.carry.Load()
}

type continuousStrategy struct {
	carry StateCell
}

func (s *continuousStrategy) reset() {
	s.carry.Clear()
}

func (s *continuousStrategy) makeJobs(a *Agent, mode Mode) ([]*Job, []RootResult) {
	jobs, skipped := defaultStrategy{}.makeJobs(a, mode)
	if mode == Training {
		for _, job := range jobs {
			job.Carry = &s.carry
		}
	}
	return jobs, skipped
}

func (s *continuousStrategy) runJob(a *Agent, w *worker, job *Job, generation uint64, mode Mode) (EvaluationResult, error) {
	env, ok := w.env.(Resumable)
	if !ok {
		return EvaluationResult{}, fmt.Errorf("%w: resumable environment required", ErrEnvironment)
	}
	env.Reset(IterationSeed(generation, 0), mode, 0, generation)
	if job.Carry != nil {
		if state, ok := job.Carry.Load(); ok {
			env.RestoreState(state)
		}
	}

	var sum float64
	var n uint64
	for n < a.params.TotalInteractions && !env.IsTerminal() {
		if err := act(w, job.Scored()); err != nil {
			return EvaluationResult{}, fmt.Errorf("job %d: %w", job.Idx, err)
		}
		sum += env.Score()
		n++
	}
	if job.Carry != nil {
		job.Carry.Store(env.SaveState())
	}

	var mean float64
	if n > 0 {
		mean = sum / float64(n)
	}
	return EvaluationResult{Sum: mean, Count: 1}, nil
}
