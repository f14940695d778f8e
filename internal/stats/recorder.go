package stats

import (
	"sync"
	"time"

	"tangled/internal/learn"
	"tangled/internal/model"
	"tangled/internal/tpg"
)

// Recorder is a training hook that keeps one GenerationDiagnostics entry per
// generation: graph size after populate, training score spread, mean
// validation score and phase durations.
type Recorder struct {
	learn.BaseHook

	mu          sync.RWMutex
	now         func() time.Time
	diagnostics []model.GenerationDiagnostics
	start       time.Time
	checkpoint  time.Time
}

func NewRecorder() *Recorder {
	return &Recorder{now: time.Now}
}

// Diagnostics returns a copy of the entries recorded so far. The entry of
// a generation in progress is included.
func (r *Recorder) Diagnostics() []model.GenerationDiagnostics {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.GenerationDiagnostics, len(r.diagnostics))
	copy(out, r.diagnostics)
	return out
}

// BestByGeneration lists the best training score of each generation.
func (r *Recorder) BestByGeneration() []float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]float64, len(r.diagnostics))
	for i, d := range r.diagnostics {
		out[i] = d.MaxScore
	}
	return out
}

func (r *Recorder) LogNewGeneration(generation uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.start = r.now()
	r.checkpoint = r.start
	r.diagnostics = append(r.diagnostics, model.GenerationDiagnostics{Generation: generation})
}

func (r *Recorder) LogAfterPopulate(g *tpg.Graph) {
	r.update(func(d *model.GenerationDiagnostics, elapsed time.Duration) {
		d.PopulateMS = elapsed.Milliseconds()
		d.NbVertices = g.NbVertices()
		d.NbTeams = len(g.Teams())
		d.NbRoots = g.NbRootVertices()
		d.NbEdges = g.NbEdges()
	})
}

func (r *Recorder) LogAfterEvaluate(_ uint64, results []learn.RootResult) {
	r.update(func(d *model.GenerationDiagnostics, elapsed time.Duration) {
		d.EvaluationMS = elapsed.Milliseconds()
		d.MinScore, d.MeanScore, d.MaxScore = Spread(results)
	})
}

func (r *Recorder) LogAfterDecimate(*tpg.Graph) {
	r.update(func(*model.GenerationDiagnostics, time.Duration) {})
}

func (r *Recorder) LogAfterValidate(_ uint64, results []learn.RootResult) {
	r.update(func(d *model.GenerationDiagnostics, elapsed time.Duration) {
		d.ValidationMS = elapsed.Milliseconds()
		_, mean, _ := Spread(results)
		d.ValidationScore = &mean
	})
}

// update applies fn to the current entry with the time elapsed since the
// previous checkpoint, then moves the checkpoint and the total forward.
func (r *Recorder) update(fn func(d *model.GenerationDiagnostics, elapsed time.Duration)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.diagnostics) == 0 {
		return
	}
	now := r.now()
	d := &r.diagnostics[len(r.diagnostics)-1]
	fn(d, now.Sub(r.checkpoint))
	d.TotalMS = now.Sub(r.start).Milliseconds()
	r.checkpoint = now
}

// Spread returns the minimum, mean and maximum score of results, which are
// sorted ascending by the agents.
func Spread(results []learn.RootResult) (lo, mean, hi float64) {
	if len(results) == 0 {
		return 0, 0, 0
	}
	lo = results[0].Score()
	hi = results[len(results)-1].Score()
	var sum float64
	for _, res := range results {
		sum += res.Score()
	}
	return lo, sum / float64(len(results)), hi
}
