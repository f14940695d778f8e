package learn

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"tangled/internal/archive"
	"tangled/internal/tpg"
)

// EvaluateAllRoots evaluates every root of the graph and returns the results
// sorted by ascending score. In training mode results are combined with the
// stored records and roots that reached MaxNbEvaluationPerPolicy are not
// evaluated again.
func (a *Agent) EvaluateAllRoots(ctx context.Context, generation uint64, mode Mode) (results []RootResult, err error) {
	ctx, span := tracer.Start(ctx, "learn.evaluate", trace.WithAttributes(
		attribute.Int64("learn.generation", int64(generation)),
		attribute.String("learn.mode", mode.String()),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if a.graph.NbRootVertices() == 0 {
		return nil, ErrNotPopulated
	}
	jobs, skipped := a.strategy.makeJobs(a, mode)
	span.SetAttributes(attribute.Int("learn.jobs", len(jobs)), attribute.Int("learn.skipped", len(skipped)))

	var scores []EvaluationResult
	if a.parallel {
		scores, err = a.evaluateParallel(ctx, jobs, generation, mode)
	} else {
		scores, err = a.evaluateSequential(jobs, generation, mode)
	}
	if err != nil {
		return nil, err
	}
	return a.collect(jobs, scores, skipped, mode), nil
}

func (a *Agent) evaluateSequential(jobs []*Job, generation uint64, mode Mode) ([]EvaluationResult, error) {
	scores := make([]EvaluationResult, len(jobs))
	for i, job := range jobs {
		if mode == Training {
			a.archive.SetRandomSeed(job.ArchiveSeed)
			a.main.tee.SetArchive(a.archive)
		} else {
			a.main.tee.SetArchive(nil)
		}
		res, err := a.strategy.runJob(a, a.main, job, generation, mode)
		if err != nil {
			return nil, err
		}
		scores[i] = res
	}
	return scores, nil
}

// evaluateParallel runs jobs on a.workers goroutines, each owning an
// environment clone and an execution engine. Each training job records into
// its own exhaustive archive; the archives are merged in job order once all
// workers joined, and not at all when one of them failed.
func (a *Agent) evaluateParallel(ctx context.Context, jobs []*Job, generation uint64, mode Mode) ([]EvaluationResult, error) {
	scores := make([]EvaluationResult, len(jobs))
	archives := make([]*archive.Archive, len(jobs))

	queue := make(chan *Job)
	g, gctx := errgroup.WithContext(context.WithoutCancel(ctx))
	workerCount := min(a.workers, len(jobs))
	for range workerCount {
		w := &worker{env: a.env.Clone(), tee: tpg.NewExecutionEngine(a.progEnv, nil)}
		g.Go(func() error {
			for job := range queue {
				if mode == Training {
					archives[job.Idx] = archive.NewExhaustive()
					w.tee.SetArchive(archives[job.Idx])
				} else {
					w.tee.SetArchive(nil)
				}
				res, err := a.strategy.runJob(a, w, job, generation, mode)
				if err != nil {
					return err
				}
				scores[job.Idx] = res
			}
			return nil
		})
	}

feed:
	for _, job := range jobs {
		select {
		case queue <- job:
		case <-gctx.Done():
			break feed
		}
	}
	close(queue)
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if mode == Training {
		for i, job := range jobs {
			a.archive.Merge(archives[i], job.ArchiveSeed)
		}
	}
	return scores, nil
}

// collect sums job scores per scored root, adds the stored records in
// training mode, appends the skipped roots and sorts.
func (a *Agent) collect(jobs []*Job, scores []EvaluationResult, skipped []RootResult, mode Mode) []RootResult {
	index := make(map[*tpg.Vertex]int, len(jobs))
	results := make([]RootResult, 0, len(jobs)+len(skipped))
	for i, job := range jobs {
		root := job.Scored()
		if k, ok := index[root]; ok {
			results[k].Result = results[k].Result.Add(scores[i])
			continue
		}
		index[root] = len(results)
		results = append(results, RootResult{Root: root, Result: scores[i], Order: job.Order})
	}
	if mode == Training {
		for k := range results {
			if prev, ok := a.resultsPerRoot[results[k].Root]; ok {
				results[k].Result = results[k].Result.Add(prev)
			}
		}
	}
	results = append(results, skipped...)
	sortResults(results)
	return results
}

// defaultStrategy evaluates each root alone over
// NbIterationsPerPolicyEvaluation episodes.
type defaultStrategy struct{}

func (defaultStrategy) reset() {}

func (defaultStrategy) makeJobs(a *Agent, mode Mode) ([]*Job, []RootResult) {
	var jobs []*Job
	var skipped []RootResult
	for i, root := range a.graph.RootVertices() {
		if mode == Training {
			if prev, ok := a.skip(root); ok {
				skipped = append(skipped, RootResult{Root: root, Result: prev, Order: i})
				continue
			}
		}
		jobs = append(jobs, &Job{
			Idx:         len(jobs),
			Roots:       []*tpg.Vertex{root},
			Order:       i,
			ArchiveSeed: a.archiveSeed(mode),
		})
	}
	return jobs, skipped
}

func (defaultStrategy) runJob(a *Agent, w *worker, job *Job, generation uint64, mode Mode) (EvaluationResult, error) {
	root := job.Scored()
	n := a.params.NbIterationsPerPolicyEvaluation
	var sum float64
	for it := uint64(0); it < n; it++ {
		w.env.Reset(IterationSeed(generation, it), mode, it, generation)
		for actions := uint64(0); actions < a.params.MaxNbActionsPerEval && !w.env.IsTerminal(); actions++ {
			if err := act(w, root); err != nil {
				return EvaluationResult{}, fmt.Errorf("job %d: %w", job.Idx, err)
			}
		}
		sum += w.env.Score()
	}
	return EvaluationResult{Sum: sum, Count: n}, nil
}

// act plays the action the policy rooted at root picks on the current state.
func act(w *worker, root *tpg.Vertex) error {
	path, err := w.tee.ExecuteFromRoot(root, w.env.DataSources())
	if err != nil {
		return err
	}
	w.env.DoAction(path[len(path)-1].ActionID())
	return nil
}
