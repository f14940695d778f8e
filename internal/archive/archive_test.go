package archive

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tangled/internal/data"
	"tangled/internal/instructions"
	"tangled/internal/program"
)

func testEnvironment(t *testing.T) *program.Environment {
	t.Helper()
	set, err := instructions.NewSetFromNames([]string{"add"})
	require.NoError(t, err)
	env, err := program.NewEnvironment(set, []data.Shape{{Type: data.Float64, Size: 2}}, 2, 0)
	require.NoError(t, err)
	return env
}

func snapshot(v float64) []data.Source {
	return []data.Source{data.NewFloat64Array(v, v)}
}

func TestArchiveNeverExceedsCapacity(t *testing.T) {
	env := testEnvironment(t)
	a := New(10, 1, 0)
	for i := 0; i < 100; i++ {
		a.AddRecording(program.New(env), snapshot(float64(i%13)), float64(i))
		require.LessOrEqual(t, a.Len(), 10)
	}
	require.Equal(t, 10, a.Len())
	recs := a.Recordings()
	assert.Equal(t, 90.0, recs[0].Result)
	assert.Equal(t, 99.0, recs[9].Result)
}

func TestSnapshotsFollowRecordings(t *testing.T) {
	env := testEnvironment(t)
	a := New(2, 1, 0)
	p := program.New(env)
	a.AddRecording(p, snapshot(1), 1)
	a.AddRecording(p, snapshot(1), 2)
	require.Len(t, a.DataSnapshots(), 1)

	// evicting the first recording keeps the snapshot still used by the second
	a.AddRecording(p, snapshot(2), 3)
	require.Len(t, a.DataSnapshots(), 2)

	a.AddRecording(p, snapshot(2), 4)
	require.Len(t, a.DataSnapshots(), 1)
	_, ok := a.DataSnapshots()[data.HashSources(snapshot(2))]
	require.True(t, ok)
}

func TestSnapshotIsACopy(t *testing.T) {
	env := testEnvironment(t)
	a := New(5, 1, 0)
	src := data.NewFloat64Array(1, 2)
	a.AddRecording(program.New(env), []data.Source{src}, 0)
	hash := data.HashSources([]data.Source{src})
	src.Set(0, 100)
	stored := a.DataSnapshots()[hash]
	require.Equal(t, 1.0, stored[0].At(data.Float64, 0))
}

func TestProbabilityIsSeeded(t *testing.T) {
	env := testEnvironment(t)
	p := program.New(env)
	run := func() []Recording {
		a := New(100, 0.5, 3)
		for i := 0; i < 50; i++ {
			a.AddRecording(p, snapshot(float64(i)), float64(i))
		}
		return a.Recordings()
	}
	first := run()
	require.Equal(t, first, run())
	require.Greater(t, len(first), 0)
	require.Less(t, len(first), 50)
}

func TestMergeMatchesDirectRecording(t *testing.T) {
	env := testEnvironment(t)
	progs := []*program.Program{program.New(env), program.New(env), program.New(env)}
	seeds := []uint64{11, 22, 33}

	direct := New(20, 0.6, 0)
	for job, seed := range seeds {
		direct.SetRandomSeed(seed)
		for i := 0; i < 15; i++ {
			direct.AddRecording(progs[job], snapshot(float64(job*100+i)), float64(i))
		}
	}

	merged := New(20, 0.6, 0)
	for job, seed := range seeds {
		worker := NewExhaustive()
		for i := 0; i < 15; i++ {
			worker.AddRecording(progs[job], snapshot(float64(job*100+i)), float64(i))
		}
		require.Equal(t, 15, worker.Len())
		merged.Merge(worker, seed)
	}

	require.Equal(t, direct.Recordings(), merged.Recordings())
	require.Equal(t, len(direct.DataSnapshots()), len(merged.DataSnapshots()))
	for hash := range direct.DataSnapshots() {
		_, ok := merged.DataSnapshots()[hash]
		require.True(t, ok)
	}
}

func TestAreProgramResultsUnique(t *testing.T) {
	env := testEnvironment(t)
	p1, p2 := program.New(env), program.New(env)
	a := New(10, 1, 0)
	h1 := data.HashSources(snapshot(1))
	h2 := data.HashSources(snapshot(2))
	a.AddRecording(p1, snapshot(1), 1.0)
	a.AddRecording(p1, snapshot(2), 2.0)
	a.AddRecording(p2, snapshot(1), 5.0)

	// same as p1 on both snapshots
	assert.False(t, a.AreProgramResultsUnique(map[uint64]float64{h1: 1.0, h2: 2.00001}, DefaultTau))
	// p1 differs on h2, p2 differs on h1
	assert.True(t, a.AreProgramResultsUnique(map[uint64]float64{h1: 1.0, h2: 3.0}, DefaultTau))
	// same as p2 on its only snapshot
	assert.False(t, a.AreProgramResultsUnique(map[uint64]float64{h1: 5.0, h2: 3.0}, DefaultTau))
	// nothing comparable
	assert.True(t, a.AreProgramResultsUnique(map[uint64]float64{}, DefaultTau))
}
