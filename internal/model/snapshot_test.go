package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tangled/internal/data"
	"tangled/internal/instructions"
	"tangled/internal/mutator"
	"tangled/internal/program"
	"tangled/internal/rng"
	"tangled/internal/tpg"
)

func testGraph(t *testing.T) (*tpg.Graph, []data.Source) {
	t.Helper()
	set, err := instructions.NewSetFromNames([]string{"add", "sub", "mult_by_const", "cond", "add_int"})
	require.NoError(t, err)
	sources := []data.Source{
		data.NewFloat64Array(0.5, -1, 2, 3.25),
		data.NewInt32Array(4, -2),
	}
	env, err := program.NewEnvironment(set, data.Shapes(sources), 6, 2)
	require.NoError(t, err)

	params := mutator.DefaultParameters()
	params.TPG.NbRoots = 12
	params.Prog.MaxProgramSize = 8
	g := tpg.NewGraph(env)
	r := rng.New(21)
	require.NoError(t, mutator.InitRandomTPG(g, params, 4, r))
	require.NoError(t, mutator.PopulateTPG(g, nil, params, r, 1))
	return g, sources
}

func TestSnapshotRoundTrip(t *testing.T) {
	g, sources := testGraph(t)
	snap := Snapshot(g)
	require.Len(t, snap.Vertices, g.NbVertices())
	require.Len(t, snap.Edges, g.NbEdges())
	require.Len(t, snap.Roots, g.NbRootVertices())
	assert.LessOrEqual(t, len(snap.Programs), g.NbEdges())

	raw, err := json.Marshal(snap)
	require.NoError(t, err)
	var decoded GraphSnapshot
	require.NoError(t, json.Unmarshal(raw, &decoded))

	restored, err := Restore(decoded, nil)
	require.NoError(t, err)
	assert.Equal(t, decoded, Snapshot(restored))

	want := tpg.NewExecutionEngine(g.Environment(), nil)
	got := tpg.NewExecutionEngine(restored.Environment(), nil)
	roots, restoredRoots := g.RootVertices(), restored.RootVertices()
	require.Len(t, restoredRoots, len(roots))
	for i := range roots {
		a, err := want.ExecuteFromRoot(roots[i], sources)
		require.NoError(t, err)
		b, err := got.ExecuteFromRoot(restoredRoots[i], sources)
		require.NoError(t, err)
		assert.Equal(t, a[len(a)-1].ActionID(), b[len(b)-1].ActionID())
		assert.Len(t, b, len(a))
	}
}

func TestSnapshotKeepsProgramSharing(t *testing.T) {
	g, _ := testGraph(t)
	restored, err := Restore(Snapshot(g), nil)
	require.NoError(t, err)

	count := func(g *tpg.Graph) int {
		seen := make(map[*program.Program]bool)
		for _, e := range g.Edges() {
			seen[e.Program()] = true
		}
		return len(seen)
	}
	assert.Equal(t, count(g), count(restored))
}

func TestSnapshotSinglePolicy(t *testing.T) {
	g, _ := testGraph(t)
	root := g.RootVertices()[0]
	snap := Snapshot(g, root)
	assert.Equal(t, []uint64{root.ID()}, snap.Roots)
	assert.Less(t, len(snap.Vertices), g.NbVertices())

	ids := make(map[uint64]bool)
	for _, v := range snap.Vertices {
		ids[v.ID] = true
	}
	for _, e := range snap.Edges {
		assert.True(t, ids[e.Source])
		assert.True(t, ids[e.Destination])
	}

	restored, err := Restore(snap, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, restored.NbRootVertices())
}

func TestRestoreRejectsBadSnapshots(t *testing.T) {
	g, _ := testGraph(t)
	base := Snapshot(g)

	bad := base
	bad.Vertices = append([]VertexSnapshot(nil), base.Vertices...)
	bad.Vertices[0].Kind = "bridge"
	_, err := Restore(bad, nil)
	require.ErrorIs(t, err, ErrBadSnapshot)

	bad = base
	bad.Edges = append([]EdgeSnapshot(nil), base.Edges...)
	bad.Edges[0].Program = len(base.Programs)
	_, err = Restore(bad, nil)
	require.ErrorIs(t, err, ErrBadSnapshot)

	bad = base
	bad.Instructions = []string{"add", "sub", "mult_by_const", "cond", "no_such_instruction"}
	_, err = Restore(bad, nil)
	require.ErrorIs(t, err, ErrBadSnapshot)
}

func TestRestoreWithRootsFollowsSnapshotOrder(t *testing.T) {
	g, sources := testGraph(t)
	roots := g.RootVertices()
	require.GreaterOrEqual(t, len(roots), 2)
	snap := Snapshot(g, roots[1], roots[0])

	restored, got, err := RestoreWithRoots(snap, nil)
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, v := range got {
		assert.True(t, restored.HasVertex(v))
	}

	engine := tpg.NewExecutionEngine(g.Environment(), nil)
	restoredEngine := tpg.NewExecutionEngine(restored.Environment(), nil)
	want, err := engine.ExecuteFromRoot(roots[1], sources)
	require.NoError(t, err)
	path, err := restoredEngine.ExecuteFromRoot(got[0], sources)
	require.NoError(t, err)
	assert.Equal(t, want[len(want)-1].ActionID(), path[len(path)-1].ActionID())

	snap.Roots = append(snap.Roots, 1<<40)
	_, _, err = RestoreWithRoots(snap, nil)
	require.ErrorIs(t, err, ErrBadSnapshot)
}
