package learn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"tangled/internal/archive"
	"tangled/internal/data"
	"tangled/internal/instructions"
	"tangled/internal/mutator"
	"tangled/internal/program"
	"tangled/internal/rng"
	"tangled/internal/tpg"
)

var tracer = otel.Tracer("tangled.learn")

var (
	ErrNoBestRoot   = errors.New("no best root recorded")
	ErrEnvironment  = errors.New("environment does not support this agent")
	ErrNotPopulated = errors.New("graph has no root to evaluate")
)

// Config configures an agent. Instructions overrides Params.Instructions.
type Config struct {
	Environment  Environment
	Params       Parameters
	Instructions *instructions.Set
	Seed         uint64
	Logger       *slog.Logger
	Hooks        []Hook
}

// strategy decides how roots are grouped into jobs and how one job is
// played. Jobs are built single-threaded; runJob may run on any worker.
type strategy interface {
	makeJobs(a *Agent, mode Mode) (jobs []*Job, skipped []RootResult)
	runJob(a *Agent, w *worker, job *Job, generation uint64, mode Mode) (EvaluationResult, error)
	reset()
}

type worker struct {
	env Environment
	tee *tpg.ExecutionEngine
}

// Agent trains a graph through populate, evaluate, decimate and optional
// validate phases. The sequential agent records straight into the archive;
// the parallel agents merge per-job archives in job order, which yields the
// same archive and scores for any worker count.
type Agent struct {
	params   Parameters
	env      Environment
	progEnv  *program.Environment
	graph    *tpg.Graph
	archive  *archive.Archive
	rng      *rng.RNG
	log      *slog.Logger
	hooks    hooks
	strategy strategy

	parallel           bool
	workers            int
	decimationInterval uint64
	main               *worker

	resultsPerRoot          map[*tpg.Vertex]EvaluationResult
	bestRoot                *tpg.Vertex
	bestResult              EvaluationResult
	bestScoreLastGeneration float64
	lastResults             []RootResult
}

// NewAgent returns a sequential agent.
func NewAgent(cfg Config) (*Agent, error) {
	return newAgent(cfg, defaultStrategy{}, false)
}

func newAgent(cfg Config, s strategy, parallel bool) (*Agent, error) {
	if cfg.Environment == nil {
		return nil, errors.New("environment is required")
	}
	if err := cfg.Params.Validate(); err != nil {
		return nil, err
	}
	if cfg.Environment.NbActions() < 1 {
		return nil, fmt.Errorf("%w: no action", ErrEnvironment)
	}
	set := cfg.Instructions
	if set == nil {
		var err error
		set, err = instructions.NewSetFromNames(cfg.Params.Instructions)
		if err != nil {
			return nil, err
		}
	}
	progEnv, err := program.NewEnvironment(set, data.Shapes(cfg.Environment.DataSources()),
		cfg.Params.NbRegisters, cfg.Params.NbProgramConstant)
	if err != nil {
		return nil, fmt.Errorf("program environment: %w", err)
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	a := &Agent{
		params:             cfg.Params,
		env:                cfg.Environment,
		progEnv:            progEnv,
		graph:              tpg.NewGraph(progEnv),
		archive:            archive.New(cfg.Params.ArchiveSize, cfg.Params.ArchivingProbability, 0),
		rng:                rng.New(cfg.Seed),
		log:                log,
		hooks:              hooks(cfg.Hooks),
		strategy:           s,
		parallel:           parallel,
		workers:            1,
		decimationInterval: 1,
	}
	if parallel {
		a.workers = cfg.Params.NbThreads
	}
	a.main = &worker{env: a.env, tee: tpg.NewExecutionEngine(progEnv, nil)}
	if err := a.Init(cfg.Seed); err != nil {
		return nil, err
	}
	return a, nil
}

// Init reseeds the agent, forgets every result and builds a fresh random
// graph.
func (a *Agent) Init(seed uint64) error {
	a.rng.SetSeed(seed)
	a.archive.Clear()
	a.ForgetPreviousResults()
	a.bestScoreLastGeneration = 0
	a.lastResults = nil
	a.strategy.reset()
	return mutator.InitRandomTPG(a.graph, a.params.Mutation, a.env.NbActions(), a.rng)
}

func (a *Agent) Graph() *tpg.Graph { return a.graph }

func (a *Agent) Archive() *archive.Archive { return a.archive }

func (a *Agent) Params() Parameters { return a.params }

func (a *Agent) ProgramEnvironment() *program.Environment { return a.progEnv }

// AddHook registers a lifecycle hook.
func (a *Agent) AddHook(h Hook) {
	a.hooks = append(a.hooks, h)
}

// BestRoot returns the best root recorded so far and its result.
func (a *Agent) BestRoot() (*tpg.Vertex, EvaluationResult, bool) {
	if a.bestRoot == nil {
		return nil, EvaluationResult{}, false
	}
	return a.bestRoot, a.bestResult, true
}

// BestScoreLastGeneration is the best training score of the last generation.
func (a *Agent) BestScoreLastGeneration() float64 {
	return a.bestScoreLastGeneration
}

// ResultsPerRoot returns a copy of the stored evaluation records.
func (a *Agent) ResultsPerRoot() map[*tpg.Vertex]EvaluationResult {
	out := make(map[*tpg.Vertex]EvaluationResult, len(a.resultsPerRoot))
	for k, v := range a.resultsPerRoot {
		out[k] = v
	}
	return out
}

// ForgetPreviousResults drops the stored evaluations and the best root.
func (a *Agent) ForgetPreviousResults() {
	a.resultsPerRoot = make(map[*tpg.Vertex]EvaluationResult)
	a.bestRoot = nil
	a.bestResult = EvaluationResult{}
}

// Train runs NbGenerations generations and returns how many completed.
// ctx is only checked between generations; a cancelled context stops the
// run without error. progress, when set, is called after each generation.
func (a *Agent) Train(ctx context.Context, progress func(done, total uint64)) (uint64, error) {
	var gen uint64
	for gen = 0; gen < a.params.NbGenerations; gen++ {
		if ctx.Err() != nil {
			a.log.Warn("training halted", slog.Uint64("generation", gen))
			break
		}
		if err := a.TrainOneGeneration(ctx, gen); err != nil {
			a.log.Error("generation failed", slog.Uint64("generation", gen), slog.Any("error", err))
			return gen, err
		}
		if progress != nil {
			progress(gen+1, a.params.NbGenerations)
		}
	}
	a.hooks.endOfTraining(gen)
	return gen, nil
}

// TrainOneGeneration populates the graph, evaluates and decimates its roots,
// then validates the survivors when DoValidation is set.
func (a *Agent) TrainOneGeneration(ctx context.Context, generation uint64) (err error) {
	ctx, span := tracer.Start(ctx, "learn.generation",
		trace.WithAttributes(attribute.Int64("learn.generation", int64(generation))))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	a.hooks.newGeneration(generation)

	if err := a.populate(ctx); err != nil {
		return err
	}
	a.hooks.afterPopulate(a.graph)

	results, err := a.EvaluateAllRoots(ctx, generation, Training)
	if err != nil {
		return err
	}
	a.hooks.afterEvaluate(generation, results)
	if best, ok := Best(results); ok {
		a.bestScoreLastGeneration = best.Score()
	}

	if (generation+1)%a.decimationInterval == 0 {
		_, dspan := tracer.Start(ctx, "learn.decimate")
		results = a.DecimateWorstRoots(results)
		a.UpdateEvaluationRecords(results)
		dspan.SetAttributes(attribute.Int("tpg.roots", a.graph.NbRootVertices()))
		dspan.End()
	}
	a.lastResults = results
	a.hooks.afterDecimate(a.graph)

	a.log.Debug("generation done",
		slog.Uint64("generation", generation),
		slog.Int("vertices", a.graph.NbVertices()),
		slog.Int("roots", a.graph.NbRootVertices()),
		slog.Float64("best", a.bestScoreLastGeneration))

	if a.params.DoValidation {
		validation, err := a.EvaluateAllRoots(ctx, generation, Validation)
		if err != nil {
			return err
		}
		a.hooks.afterValidate(generation, validation)
	}
	return nil
}

func (a *Agent) populate(ctx context.Context) error {
	_, span := tracer.Start(ctx, "learn.populate")
	defer span.End()
	if err := mutator.PopulateTPG(a.graph, a.archive, a.params.Mutation, a.rng, a.params.NbThreads); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("populate: %w", err)
	}
	span.SetAttributes(
		attribute.Int("tpg.vertices", a.graph.NbVertices()),
		attribute.Int("tpg.edges", a.graph.NbEdges()),
	)
	return nil
}

// DecimateWorstRoots removes the floor(RatioDeletedRoots * NbRoots) worst
// team roots of results, which must be sorted ascending. Root actions are
// counted but kept. It returns the remaining results, still sorted.
func (a *Agent) DecimateWorstRoots(results []RootResult) []RootResult {
	nbDelete := int(math.Floor(a.params.RatioDeletedRoots * float64(a.params.Mutation.TPG.NbRoots)))
	kept := make([]RootResult, 0, len(results))
	for i, r := range results {
		if i >= nbDelete || r.Root.IsAction() {
			kept = append(kept, r)
			continue
		}
		if err := a.graph.RemoveVertex(r.Root); err != nil {
			a.log.Warn("decimation skipped a vertex", slog.Uint64("vertex", r.Root.ID()), slog.Any("error", err))
			continue
		}
		delete(a.resultsPerRoot, r.Root)
	}
	if n := a.graph.RemoveUnreachableTeams(); n > 0 {
		a.log.Debug("removed orphaned teams", slog.Int("count", n))
		for v := range a.resultsPerRoot {
			if !a.graph.HasVertex(v) {
				delete(a.resultsPerRoot, v)
			}
		}
	}
	sortResults(kept)
	return kept
}

// UpdateEvaluationRecords stores results and promotes their best entry to
// best root when it beats the recorded one or the recorded one is gone.
func (a *Agent) UpdateEvaluationRecords(results []RootResult) {
	for _, r := range results {
		a.resultsPerRoot[r.Root] = r.Result
	}
	best, ok := Best(results)
	if !ok {
		return
	}
	if a.bestRoot == nil || !a.graph.HasVertex(a.bestRoot) || best.Score() > a.bestResult.Result() {
		a.bestRoot = best.Root
		a.bestResult = best.Result
	}
}

// KeepBestPolicy strips the graph down to the best root and the vertices it
// reaches. Edges leading back to the best root are dropped: a traversal
// never follows them since it starts there.
func (a *Agent) KeepBestPolicy() error {
	best := a.bestRoot
	if best == nil || !a.graph.HasVertex(best) {
		return ErrNoBestRoot
	}
	reached := map[*tpg.Vertex]bool{best: true}
	stack := []*tpg.Vertex{best}
	for len(stack) > 0 {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, e := range v.Outgoing() {
			if dst := e.Destination(); !reached[dst] {
				reached[dst] = true
				stack = append(stack, dst)
			}
		}
	}
	for _, v := range a.graph.Vertices() {
		if !reached[v] {
			if err := a.graph.RemoveVertex(v); err != nil {
				return err
			}
		}
	}
	for _, e := range best.Incoming() {
		if err := a.graph.RemoveEdge(e); err != nil {
			return err
		}
	}
	for root := range a.resultsPerRoot {
		if root != best {
			delete(a.resultsPerRoot, root)
		}
	}
	return nil
}

// skip reports whether root reached MaxNbEvaluationPerPolicy, returning its
// stored result.
func (a *Agent) skip(root *tpg.Vertex) (EvaluationResult, bool) {
	prev, ok := a.resultsPerRoot[root]
	return prev, ok && prev.Count >= a.params.MaxNbEvaluationPerPolicy
}

func (a *Agent) archiveSeed(mode Mode) uint64 {
	if mode != Training {
		return 0
	}
	return a.rng.Uint64(0, math.MaxUint64)
}

// ParallelAgent evaluates jobs on NbThreads workers, each with its own clone
// of the environment.
type ParallelAgent struct {
	*Agent
}

func NewParallelAgent(cfg Config) (*ParallelAgent, error) {
	a, err := newAgent(cfg, defaultStrategy{}, true)
	if err != nil {
		return nil, err
	}
	return &ParallelAgent{Agent: a}, nil
}
