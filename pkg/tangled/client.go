// Package tangled is the public entry point for training tangled program
// graphs on the built-in scapes and inspecting the stored runs.
package tangled

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"tangled/internal/learn"
	"tangled/internal/model"
	"tangled/internal/scape"
	"tangled/internal/stats"
	"tangled/internal/storage"
	"tangled/internal/tpg"
)

const (
	defaultArtifactsDir = "runs"
	defaultExportsDir   = "exports"
	defaultSQLitePath   = "tangled.db"
	defaultBadgerPath   = "tangled.badger"
	defaultRunsLimit    = 20
)

// Agent flavours accepted by RunRequest.Agent.
const (
	AgentSequential  = "sequential"
	AgentParallel    = "parallel"
	AgentAdversarial = "adversarial"
	AgentContinuous  = "continuous"
)

var (
	ErrUnknownAgent = errors.New("unknown agent")
	ErrRunNotFound  = errors.New("run not found")
	ErrNoRuns       = errors.New("no runs available")
)

type Options struct {
	StoreKind    string
	StorePath    string
	ArtifactsDir string
	ExportsDir   string
	Logger       *slog.Logger
}

type Client struct {
	store       storage.Store
	initialized bool
	log         *slog.Logger

	artifactsDir string
	exportsDir   string
}

type RunRequest struct {
	Scape string
	// Agent is one of the Agent* names. Empty picks the agent the scape is
	// meant for, parallel for episodic scapes.
	Agent string
	// Params defaults to learn.DefaultParameters.
	Params *learn.Parameters
	// Generations and Workers override Params when positive.
	Generations uint64
	Workers     int
	Seed        uint64
	Hooks       []learn.Hook
	Progress    func(done, total uint64)
}

type RunSummary struct {
	RunID            string
	Agent            string
	ArtifactsDir     string
	Generations      uint64
	BestByGeneration []float64
	BestScore        float64
	Interrupted      bool
}

type RunsRequest struct {
	Limit int
}

type RunItem struct {
	RunID        string
	CreatedAtUTC time.Time
	Scape        string
	Agent        string
	Seed         uint64
	Generations  uint64
	BestScore    float64
	Interrupted  bool
}

// RunRef selects a run by id or the most recent one.
type RunRef struct {
	RunID  string
	Latest bool
}

type DiagnosticsRequest struct {
	RunRef
	Limit int
}

type ExportRequest struct {
	RunRef
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

type ReplayRequest struct {
	RunRef
	Mode       learn.Mode
	Iterations uint64
	MaxActions uint64
}

type ReplaySummary struct {
	RunID  string
	Scores []float64
	Mean   float64
}

func New(opts Options) (*Client, error) {
	storePath := opts.StorePath
	if storePath == "" {
		switch opts.StoreKind {
		case "sqlite":
			storePath = defaultSQLitePath
		case "badger":
			storePath = defaultBadgerPath
		}
	}
	artifactsDir := opts.ArtifactsDir
	if artifactsDir == "" {
		artifactsDir = defaultArtifactsDir
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	store, err := storage.NewStore(opts.StoreKind, storePath)
	if err != nil {
		return nil, err
	}
	return &Client{
		store:        store,
		log:          log,
		artifactsDir: artifactsDir,
		exportsDir:   exportsDir,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	if c.initialized {
		return nil
	}
	if err := c.store.Init(ctx); err != nil {
		return err
	}
	c.initialized = true
	return nil
}

// Run trains a fresh graph on the requested scape, then stores the run
// record, the per-generation diagnostics and a snapshot of the best policy,
// and writes them under the artifacts directory. A cancelled ctx ends
// training early; what was trained so far is still stored.
func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	if err := c.Init(ctx); err != nil {
		return RunSummary{}, err
	}
	env, kind, err := scape.New(req.Scape)
	if err != nil {
		return RunSummary{}, err
	}
	params := learn.DefaultParameters()
	if req.Params != nil {
		params = *req.Params
	}
	if req.Generations > 0 {
		params.NbGenerations = req.Generations
	}
	if req.Workers > 0 {
		params.NbThreads = req.Workers
	}

	runID := uuid.NewString()
	log := c.log.With(slog.String("run_id", runID), slog.String("scape", req.Scape))
	recorder := stats.NewRecorder()
	cfg := learn.Config{
		Environment: env,
		Params:      params,
		Seed:        req.Seed,
		Logger:      log,
		Hooks:       append([]learn.Hook{recorder}, req.Hooks...),
	}
	tr, agentName, err := newTrainer(req.Agent, kind, cfg)
	if err != nil {
		return RunSummary{}, err
	}

	created := time.Now().UTC()
	log.Info("training started", slog.String("agent", agentName), slog.Uint64("generations", params.NbGenerations))
	generations, err := tr.Train(ctx, req.Progress)
	if err != nil {
		return RunSummary{}, fmt.Errorf("train %s: %w", req.Scape, err)
	}
	interrupted := generations < params.NbGenerations

	rawParams, err := json.Marshal(params)
	if err != nil {
		return RunSummary{}, err
	}
	run := model.RunRecord{
		VersionedRecord: storage.CurrentVersion(),
		ID:              runID,
		Scape:           req.Scape,
		Agent:           agentName,
		Seed:            req.Seed,
		Generations:     generations,
		NbRoots:         tr.Graph().NbRootVertices(),
		NbThreads:       params.NbThreads,
		Interrupted:     interrupted,
		CreatedAtUTC:    created,
		FinishedAtUTC:   time.Now().UTC(),
		Parameters:      rawParams,
	}
	var policy *model.GraphSnapshot
	if root, result, ok := tr.BestRoot(); ok {
		run.BestScore = result.Result()
		run.BestRootID = root.ID()
		snap := model.Snapshot(tr.Graph(), root)
		snap.VersionedRecord = storage.CurrentVersion()
		snap.RunID = runID
		snap.Generation = generations
		policy = &snap
	}
	diagnostics := recorder.Diagnostics()

	// Persist even when ctx was cancelled mid-training.
	persistCtx := context.WithoutCancel(ctx)
	if err := c.store.SaveRun(persistCtx, run); err != nil {
		return RunSummary{}, fmt.Errorf("save run: %w", err)
	}
	if err := c.store.SaveGenerationDiagnostics(persistCtx, runID, diagnostics); err != nil {
		return RunSummary{}, fmt.Errorf("save diagnostics: %w", err)
	}
	if policy != nil {
		if err := c.store.SaveGraphSnapshot(persistCtx, *policy); err != nil {
			return RunSummary{}, fmt.Errorf("save policy: %w", err)
		}
	}

	runDir, err := stats.WriteRunArtifacts(c.artifactsDir, stats.RunArtifacts{
		Run:         run,
		Diagnostics: diagnostics,
		Policy:      policy,
	})
	if err != nil {
		return RunSummary{}, err
	}
	if err := stats.AppendRunIndex(c.artifactsDir, stats.RunIndexEntry{
		RunID:        runID,
		Scape:        req.Scape,
		Agent:        agentName,
		Generations:  generations,
		Seed:         req.Seed,
		BestScore:    run.BestScore,
		CreatedAtUTC: created.Format(time.RFC3339Nano),
	}); err != nil {
		return RunSummary{}, err
	}

	log.Info("training finished",
		slog.Uint64("generations", generations),
		slog.Float64("best_score", run.BestScore),
		slog.Bool("interrupted", interrupted))
	return RunSummary{
		RunID:            runID,
		Agent:            agentName,
		ArtifactsDir:     runDir,
		Generations:      generations,
		BestByGeneration: recorder.BestByGeneration(),
		BestScore:        run.BestScore,
		Interrupted:      interrupted,
	}, nil
}

func (c *Client) Runs(ctx context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit <= 0 {
		req.Limit = defaultRunsLimit
	}
	if err := c.Init(ctx); err != nil {
		return nil, err
	}
	runs, err := c.store.ListRuns(ctx)
	if err != nil {
		return nil, err
	}
	if len(runs) > req.Limit {
		runs = runs[:req.Limit]
	}
	out := make([]RunItem, 0, len(runs))
	for _, r := range runs {
		out = append(out, RunItem{
			RunID:        r.ID,
			CreatedAtUTC: r.CreatedAtUTC,
			Scape:        r.Scape,
			Agent:        r.Agent,
			Seed:         r.Seed,
			Generations:  r.Generations,
			BestScore:    r.BestScore,
			Interrupted:  r.Interrupted,
		})
	}
	return out, nil
}

func (c *Client) Diagnostics(ctx context.Context, req DiagnosticsRequest) ([]model.GenerationDiagnostics, error) {
	if req.Limit < 0 {
		return nil, errors.New("limit must be >= 0")
	}
	runID, err := c.resolve(ctx, req.RunRef)
	if err != nil {
		return nil, err
	}
	diagnostics, ok, err := c.store.GetGenerationDiagnostics(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: no diagnostics for %s", ErrRunNotFound, runID)
	}
	if req.Limit > 0 && len(diagnostics) > req.Limit {
		diagnostics = diagnostics[:req.Limit]
	}
	return diagnostics, nil
}

// Policy returns the stored snapshot of the best policy of a run.
func (c *Client) Policy(ctx context.Context, ref RunRef) (model.GraphSnapshot, error) {
	runID, err := c.resolve(ctx, ref)
	if err != nil {
		return model.GraphSnapshot{}, err
	}
	snap, ok, err := c.store.GetGraphSnapshot(ctx, runID)
	if err != nil {
		return model.GraphSnapshot{}, err
	}
	if !ok {
		return model.GraphSnapshot{}, fmt.Errorf("%w: no policy for %s", ErrRunNotFound, runID)
	}
	return snap, nil
}

func (c *Client) Export(ctx context.Context, req ExportRequest) (ExportSummary, error) {
	if req.OutDir == "" {
		req.OutDir = c.exportsDir
	}
	runID, err := c.resolve(ctx, req.RunRef)
	if err != nil {
		return ExportSummary{}, err
	}
	dir, err := stats.ExportRunArtifacts(c.artifactsDir, runID, req.OutDir)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: runID, Directory: filepath.Clean(dir)}, nil
}

// Compare aggregates the running best training score of several runs
// generation by generation.
func (c *Client) Compare(ctx context.Context, runIDs []string) ([]stats.CurvePoint, error) {
	if len(runIDs) == 0 {
		return nil, errors.New("compare requires at least one run id")
	}
	series := make([][]float64, 0, len(runIDs))
	for _, id := range runIDs {
		diagnostics, err := c.Diagnostics(ctx, DiagnosticsRequest{RunRef: RunRef{RunID: id}})
		if err != nil {
			return nil, err
		}
		best := make([]float64, len(diagnostics))
		for i, d := range diagnostics {
			best[i] = d.MaxScore
		}
		series = append(series, stats.RunningBest(best))
	}
	return stats.AggregateCurves(series), nil
}

// Replay plays the stored best policy of a run on a fresh copy of its scape
// and reports the score of each iteration.
func (c *Client) Replay(ctx context.Context, req ReplayRequest) (ReplaySummary, error) {
	runID, err := c.resolve(ctx, req.RunRef)
	if err != nil {
		return ReplaySummary{}, err
	}
	run, _, err := c.store.GetRun(ctx, runID)
	if err != nil {
		return ReplaySummary{}, err
	}
	snap, err := c.Policy(ctx, RunRef{RunID: runID})
	if err != nil {
		return ReplaySummary{}, err
	}
	g, roots, err := model.RestoreWithRoots(snap, nil)
	if err != nil {
		return ReplaySummary{}, err
	}
	if len(roots) == 0 {
		return ReplaySummary{}, fmt.Errorf("%w: policy of %s has no root", ErrRunNotFound, runID)
	}
	env, _, err := scape.New(run.Scape)
	if err != nil {
		return ReplaySummary{}, err
	}

	params := learn.DefaultParameters()
	if len(run.Parameters) > 0 {
		if err := json.Unmarshal(run.Parameters, &params); err != nil {
			return ReplaySummary{}, fmt.Errorf("decode parameters of %s: %w", runID, err)
		}
	}
	if req.Iterations == 0 {
		req.Iterations = params.NbIterationsPerPolicyEvaluation
	}
	if req.MaxActions == 0 {
		req.MaxActions = params.MaxNbActionsPerEval
	}

	engine := tpg.NewExecutionEngine(g.Environment(), nil)
	summary := ReplaySummary{RunID: runID, Scores: make([]float64, 0, req.Iterations)}
	for it := uint64(0); it < req.Iterations; it++ {
		if err := ctx.Err(); err != nil {
			return ReplaySummary{}, err
		}
		env.Reset(learn.IterationSeed(run.Generations, it), req.Mode, it, run.Generations)
		for actions := uint64(0); actions < req.MaxActions && !env.IsTerminal(); actions++ {
			path, err := engine.ExecuteFromRoot(roots[0], env.DataSources())
			if err != nil {
				return ReplaySummary{}, err
			}
			env.DoAction(path[len(path)-1].ActionID())
		}
		summary.Scores = append(summary.Scores, env.Score())
		summary.Mean += env.Score()
	}
	if len(summary.Scores) > 0 {
		summary.Mean /= float64(len(summary.Scores))
	}
	return summary, nil
}

// resolve turns a RunRef into a stored run id.
func (c *Client) resolve(ctx context.Context, ref RunRef) (string, error) {
	if ref.RunID != "" && ref.Latest {
		return "", errors.New("use either run id or latest")
	}
	if ref.RunID == "" && !ref.Latest {
		return "", errors.New("run id or latest is required")
	}
	if err := c.Init(ctx); err != nil {
		return "", err
	}
	if ref.Latest {
		runs, err := c.store.ListRuns(ctx)
		if err != nil {
			return "", err
		}
		if len(runs) == 0 {
			return "", ErrNoRuns
		}
		return runs[0].ID, nil
	}
	if _, ok, err := c.store.GetRun(ctx, ref.RunID); err != nil {
		return "", err
	} else if !ok {
		return "", fmt.Errorf("%w: %s", ErrRunNotFound, ref.RunID)
	}
	return ref.RunID, nil
}

type trainer interface {
	Train(ctx context.Context, progress func(done, total uint64)) (uint64, error)
	BestRoot() (*tpg.Vertex, learn.EvaluationResult, bool)
	Graph() *tpg.Graph
}

func newTrainer(name string, kind scape.Kind, cfg learn.Config) (trainer, string, error) {
	if name == "" {
		switch kind {
		case scape.Adversarial:
			name = AgentAdversarial
		case scape.Continuous:
			name = AgentContinuous
		default:
			name = AgentParallel
		}
	}
	var (
		tr  trainer
		err error
	)
	switch name {
	case AgentSequential:
		tr, err = learn.NewAgent(cfg)
	case AgentParallel:
		tr, err = learn.NewParallelAgent(cfg)
	case AgentAdversarial:
		tr, err = learn.NewAdversarialAgent(cfg)
	case AgentContinuous:
		tr, err = learn.NewContinuousAgent(cfg)
	default:
		return nil, "", fmt.Errorf("%w: %s", ErrUnknownAgent, name)
	}
	if err != nil {
		return nil, "", err
	}
	return tr, name, nil
}
