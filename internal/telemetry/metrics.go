// Package telemetry exports training progress as Prometheus metrics.
package telemetry

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tangled/internal/learn"
	"tangled/internal/stats"
	"tangled/internal/tpg"
)

var ErrInvalidConfig = errors.New("invalid metrics configuration")

type Config struct {
	Namespace string
	// Registry receives the collectors. Nil means a fresh registry, which
	// keeps several trainings in one process apart.
	Registry *prometheus.Registry
	Buckets  []float64
}

func DefaultConfig() Config {
	return Config{
		Namespace: "tangled",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	}
}

// Metrics is a training hook updating Prometheus collectors at every phase
// of a generation.
type Metrics struct {
	learn.BaseHook

	registry *prometheus.Registry
	now      func() time.Time

	generations prometheus.Counter
	generation  prometheus.Gauge
	scores      *prometheus.GaugeVec
	validation  prometheus.Gauge
	graph       *prometheus.GaugeVec
	phases      *prometheus.HistogramVec

	mu         sync.Mutex
	checkpoint time.Time
}

func New(cfg Config) (*Metrics, error) {
	if cfg.Namespace == "" {
		return nil, errors.Join(ErrInvalidConfig, errors.New("namespace is required"))
	}
	if cfg.Buckets == nil {
		cfg.Buckets = DefaultConfig().Buckets
	}
	reg := cfg.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	m := &Metrics{registry: reg, now: time.Now}
	m.generations = factory.NewCounter(prometheus.CounterOpts{
		Namespace: cfg.Namespace,
		Name:      "generations_total",
		Help:      "Generations started.",
	})
	m.generation = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: cfg.Namespace,
		Name:      "generation",
		Help:      "Number of the generation in progress.",
	})
	m.scores = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: cfg.Namespace,
		Name:      "training_score",
		Help:      "Training score spread of the last evaluated generation.",
	}, []string{"stat"})
	m.validation = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: cfg.Namespace,
		Name:      "validation_score_mean",
		Help:      "Mean validation score of the last validated generation.",
	})
	m.graph = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: cfg.Namespace,
		Name:      "graph_size",
		Help:      "Size of the graph after the last populate or decimate phase.",
	}, []string{"element"})
	m.phases = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: cfg.Namespace,
		Name:      "phase_duration_seconds",
		Help:      "Duration of the generation phases.",
		Buckets:   cfg.Buckets,
	}, []string{"phase"})
	return m, nil
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) LogNewGeneration(generation uint64) {
	m.generations.Inc()
	m.generation.Set(float64(generation))
	m.mu.Lock()
	m.checkpoint = m.now()
	m.mu.Unlock()
}

func (m *Metrics) LogAfterPopulate(g *tpg.Graph) {
	m.observe("populate")
	m.setGraph(g)
}

func (m *Metrics) LogAfterEvaluate(_ uint64, results []learn.RootResult) {
	m.observe("evaluate")
	lo, mean, hi := stats.Spread(results)
	m.scores.WithLabelValues("min").Set(lo)
	m.scores.WithLabelValues("mean").Set(mean)
	m.scores.WithLabelValues("max").Set(hi)
}

func (m *Metrics) LogAfterDecimate(g *tpg.Graph) {
	m.observe("decimate")
	m.setGraph(g)
}

func (m *Metrics) LogAfterValidate(_ uint64, results []learn.RootResult) {
	m.observe("validate")
	_, mean, _ := stats.Spread(results)
	m.validation.Set(mean)
}

func (m *Metrics) setGraph(g *tpg.Graph) {
	m.graph.WithLabelValues("vertices").Set(float64(g.NbVertices()))
	m.graph.WithLabelValues("roots").Set(float64(g.NbRootVertices()))
	m.graph.WithLabelValues("edges").Set(float64(g.NbEdges()))
}

func (m *Metrics) observe(phase string) {
	m.mu.Lock()
	now := m.now()
	elapsed := now.Sub(m.checkpoint)
	m.checkpoint = now
	m.mu.Unlock()
	m.phases.WithLabelValues(phase).Observe(elapsed.Seconds())
}
