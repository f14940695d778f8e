package telemetry

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tangled/internal/data"
	"tangled/internal/instructions"
	"tangled/internal/learn"
	"tangled/internal/program"
	"tangled/internal/tpg"
)

func testGraph(t *testing.T) *tpg.Graph {
	t.Helper()
	set, err := instructions.NewSetFromNames([]string{"add"})
	require.NoError(t, err)
	env, err := program.NewEnvironment(set, []data.Shape{{Type: data.Float64, Size: 1}}, 1, 0)
	require.NoError(t, err)
	g := tpg.NewGraph(env)
	_, err = g.AddNewEdge(g.AddNewTeam(), g.AddNewAction(0), program.New(env))
	require.NoError(t, err)
	return g
}

func TestNewRejectsEmptyNamespace(t *testing.T) {
	_, err := New(Config{})
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestMetricsFollowPhases(t *testing.T) {
	reg := prometheus.NewRegistry()
	cfg := DefaultConfig()
	cfg.Registry = reg
	m, err := New(cfg)
	require.NoError(t, err)

	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time {
		clock = clock.Add(250 * time.Millisecond)
		return clock
	}
	g := testGraph(t)

	m.LogNewGeneration(4)
	m.LogAfterPopulate(g)
	m.LogAfterEvaluate(4, []learn.RootResult{
		{Result: learn.EvaluationResult{Sum: 1, Count: 1}},
		{Result: learn.EvaluationResult{Sum: 9, Count: 3}},
	})
	m.LogAfterDecimate(g)
	m.LogAfterValidate(4, []learn.RootResult{{Result: learn.EvaluationResult{Sum: 2, Count: 4}}})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.generations))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.generation))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.scores.WithLabelValues("min")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.scores.WithLabelValues("mean")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.scores.WithLabelValues("max")))
	assert.Equal(t, 0.5, testutil.ToFloat64(m.validation))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.graph.WithLabelValues("vertices")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.graph.WithLabelValues("roots")))
	assert.Equal(t, 4, testutil.CollectAndCount(m.phases))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m, err := New(DefaultConfig())
	require.NoError(t, err)
	m.LogNewGeneration(0)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "tangled_generations_total 1")
}

func TestSeparateRegistriesDoNotCollide(t *testing.T) {
	_, err := New(DefaultConfig())
	require.NoError(t, err)
	_, err = New(DefaultConfig())
	require.NoError(t, err)
}
