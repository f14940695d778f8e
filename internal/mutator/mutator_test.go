package mutator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tangled/internal/archive"
	"tangled/internal/data"
	"tangled/internal/instructions"
	"tangled/internal/program"
	"tangled/internal/rng"
	"tangled/internal/tpg"
)

func testEnvironment(t *testing.T) *program.Environment {
	t.Helper()
	set, err := instructions.NewSetFromNames([]string{"add", "sub", "mult_by_const", "cond", "add_int"})
	require.NoError(t, err)
	env, err := program.NewEnvironment(set, []data.Shape{
		{Type: data.Float64, Size: 6},
		{Type: data.Int32, Size: 2},
	}, 8, 3)
	require.NoError(t, err)
	return env
}

func testParameters() Parameters {
	p := DefaultParameters()
	p.TPG.NbRoots = 30
	p.Prog.MaxProgramSize = 12
	return p
}

func TestDefaultParametersAreValid(t *testing.T) {
	require.NoError(t, DefaultParameters().Validate())

	p := DefaultParameters()
	p.TPG.PProgramMutation = 0
	require.ErrorIs(t, p.Validate(), ErrInvalidParameters)

	p = DefaultParameters()
	p.Prog.MaxConstValue = p.Prog.MinConstValue - 1
	require.ErrorIs(t, p.Validate(), ErrInvalidParameters)

	p = DefaultParameters()
	p.Prog.PDelete, p.Prog.PAdd, p.Prog.PMutate, p.Prog.PSwap = 0, 0, 0, 0
	require.ErrorIs(t, p.Validate(), ErrInvalidParameters)

	p = DefaultParameters()
	p.Prog.MaxProgramSize = 1
	p.Prog.PMutate, p.Prog.PSwap, p.Prog.PConstantMutation = 0, 0, 0
	require.ErrorIs(t, p.Validate(), ErrInvalidParameters)
	p.Prog.PMutate = 0.5
	require.NoError(t, p.Validate())
}

func TestBehaviourMutationGivesUpWhenNoEditApplies(t *testing.T) {
	env := testEnvironment(t)
	params := testParameters()
	params.Prog.MaxProgramSize = 1
	params.Prog.PDelete, params.Prog.PAdd = 0.5, 0.5
	params.Prog.PMutate, params.Prog.PSwap, params.Prog.PConstantMutation = 0, 0, 0

	r := rng.New(9)
	p := program.New(env)
	require.NoError(t, p.AppendLine(InitRandomLine(env, params.Prog, r)))
	before := p.Clone()

	done := make(chan bool, 1)
	go func() { done <- MutateProgramBehaviorAgainstArchive(p, nil, params, r) }()
	select {
	case changed := <-done:
		assert.False(t, changed)
		assert.True(t, p.Equal(before))
	case <-time.After(10 * time.Second):
		t.Fatal("mutation did not return")
	}
}

func TestRandomLinesAreValid(t *testing.T) {
	env := testEnvironment(t)
	params := testParameters().Prog
	r := rng.New(1)
	for i := 0; i < 2000; i++ {
		l := InitRandomLine(env, params, r)
		require.NoError(t, env.ValidateLine(l))
		for _, v := range l.Params {
			require.GreaterOrEqual(t, v, params.MinParamValue)
			require.Less(t, v, params.MaxParamValue)
		}
		for _, op := range l.Operands {
			require.Less(t, op.Location, env.AddressSpace(op.Source, data.Float64))
		}
	}
}

func TestAlterLineChangesOneField(t *testing.T) {
	env := testEnvironment(t)
	params := testParameters().Prog
	r := rng.New(2)
	for i := 0; i < 2000; i++ {
		l := InitRandomLine(env, params, r)
		altered := AlterLine(env, l, params, r)
		require.NoError(t, env.ValidateLine(altered))

		changed := 0
		if l.Instruction != altered.Instruction {
			changed++
		}
		if l.Destination != altered.Destination {
			changed++
		}
		for k := range l.Params {
			if l.Params[k] != altered.Params[k] {
				changed++
			}
		}
		if l.Instruction == altered.Instruction {
			for k := range l.Operands {
				if l.Operands[k] != altered.Operands[k] {
					changed++
				}
			}
			require.LessOrEqual(t, changed, 1)
		} else {
			require.Equal(t, l.Destination, altered.Destination)
			require.Equal(t, l.Params, altered.Params)
		}
	}
}

func TestInitRandomProgram(t *testing.T) {
	env := testEnvironment(t)
	params := testParameters().Prog
	r := rng.New(3)
	for i := 0; i < 200; i++ {
		p := program.New(env)
		InitRandomProgram(p, params, r)
		require.GreaterOrEqual(t, p.NbLines(), 1)
		require.LessOrEqual(t, uint64(p.NbLines()), params.MaxProgramSize)
		for _, c := range p.Constants() {
			require.GreaterOrEqual(t, c, params.MinConstValue)
			require.LessOrEqual(t, c, params.MaxConstValue)
		}
	}
}

func TestSingleLineEdits(t *testing.T) {
	env := testEnvironment(t)
	params := testParameters().Prog
	r := rng.New(4)
	p := program.New(env)
	require.NoError(t, p.AppendLine(InitRandomLine(env, params, r)))
	require.False(t, DeleteRandomLine(p, r))
	require.False(t, SwapRandomLines(p, r))
	require.True(t, AlterRandomLine(p, params, r))
	require.Equal(t, 1, p.NbLines())

	require.False(t, AlterRandomLine(program.New(env), params, r))
}

func TestMutateProgramIsSeeded(t *testing.T) {
	env := testEnvironment(t)
	params := testParameters().Prog
	run := func() *program.Program {
		r := rng.New(5)
		p := program.New(env)
		InitRandomProgram(p, params, r)
		for i := 0; i < 50; i++ {
			MutateProgram(p, params, r)
			require.LessOrEqual(t, uint64(p.NbLines()), params.MaxProgramSize)
			require.GreaterOrEqual(t, p.NbLines(), 1)
		}
		return p
	}
	require.True(t, run().Equal(run()))
}

func TestInitRandomTPG(t *testing.T) {
	env := testEnvironment(t)
	params := testParameters()
	g := tpg.NewGraph(env)
	require.NoError(t, InitRandomTPG(g, params, 4, rng.New(6)))

	require.Len(t, g.Actions(), 4)
	require.Len(t, g.Teams(), 4)
	for _, team := range g.Teams() {
		require.GreaterOrEqual(t, team.NbOutgoing(), 2)
		require.LessOrEqual(t, uint64(team.NbOutgoing()), params.TPG.MaxInitOutgoingEdges)
		require.Equal(t, team.NbOutgoing(), team.NbActionEdges())
	}
	for i, a := range g.Actions() {
		assert.Equal(t, uint64(i), a.ActionID())
	}

	require.ErrorIs(t, InitRandomTPG(g, params, 0, rng.New(6)), ErrNoActions)
}

func TestInitRandomTPGWithSingleAction(t *testing.T) {
	env := testEnvironment(t)
	g := tpg.NewGraph(env)
	require.NoError(t, InitRandomTPG(g, testParameters(), 1, rng.New(7)))
	for _, team := range g.Teams() {
		require.Equal(t, 1, team.NbOutgoing())
	}
}

func checkGraphInvariants(t *testing.T, g *tpg.Graph) {
	t.Helper()
	for _, team := range g.Teams() {
		seen := map[*tpg.Vertex]bool{}
		for _, e := range team.Outgoing() {
			require.False(t, seen[e.Destination()], "team %d has a duplicate destination", team.ID())
			seen[e.Destination()] = true
		}
		require.GreaterOrEqual(t, team.NbActionEdges(), 1, "team %d has no action edge", team.ID())
	}
	engine := tpg.NewExecutionEngine(g.Environment(), nil)
	sources := []data.Source{data.NewFloat64Array(1, -2, 3, -4, 5, -6), data.NewInt32Array(7, -8)}
	for _, root := range g.RootVertices() {
		path, err := engine.ExecuteFromRoot(root, sources)
		require.NoError(t, err)
		require.True(t, path[len(path)-1].IsAction())
	}
}

func TestPopulateTPGReachesRootCount(t *testing.T) {
	env := testEnvironment(t)
	params := testParameters()
	g := tpg.NewGraph(env)
	r := rng.New(8)
	require.NoError(t, InitRandomTPG(g, params, 3, r))
	require.NoError(t, PopulateTPG(g, nil, params, r, 1))
	require.GreaterOrEqual(t, uint64(g.NbRootVertices()), params.TPG.NbRoots)
	checkGraphInvariants(t, g)

	for _, team := range g.Teams() {
		require.LessOrEqual(t, uint64(team.NbOutgoing()), params.TPG.MaxOutgoingEdges)
	}
}

func TestPopulateAfterRootRemovalKeepsInvariants(t *testing.T) {
	env := testEnvironment(t)
	params := testParameters()
	params.TPG.PEdgeDestinationChange = 0.8
	params.TPG.PEdgeDestinationIsAction = 0.3
	g := tpg.NewGraph(env)
	r := rng.New(9)
	require.NoError(t, InitRandomTPG(g, params, 3, r))
	for gen := 0; gen < 5; gen++ {
		require.NoError(t, PopulateTPG(g, nil, params, r, 2))
		checkGraphInvariants(t, g)
		roots := g.RootVertices()
		for _, v := range roots[:len(roots)/2] {
			if !v.IsAction() {
				require.NoError(t, g.RemoveVertex(v))
			}
		}
		g.RemoveUnreachableTeams()
		checkGraphInvariants(t, g)
	}
}

func graphFingerprint(g *tpg.Graph) []string {
	var out []string
	for _, e := range g.Edges() {
		p := e.Program()
		s := ""
		for _, l := range p.Lines() {
			s += string(rune('a'+l.Instruction)) + string(rune('0'+l.Destination))
		}
		out = append(out, s)
	}
	return out
}

func TestPopulateTPGIndependentOfThreadCount(t *testing.T) {
	env := testEnvironment(t)
	params := testParameters()
	params.TPG.ForceProgramBehaviorChangeOnMutation = true

	run := func(threads int) []string {
		g := tpg.NewGraph(env)
		r := rng.New(10)
		require.NoError(t, InitRandomTPG(g, params, 3, r))
		arch := archive.New(50, 1, 0)
		engine := tpg.NewExecutionEngine(env, arch)
		for _, root := range g.RootVertices() {
			_, err := engine.ExecuteFromRoot(root, []data.Source{data.NewFloat64Array(1, 2, 3, 4, 5, 6), data.NewInt32Array(1, 2)})
			require.NoError(t, err)
		}
		require.NoError(t, PopulateTPG(g, arch, params, r, threads))
		return graphFingerprint(g)
	}
	single := run(1)
	require.Equal(t, single, run(4))
	require.Equal(t, single, run(3))
}

func TestBehaviourMutationAvoidsArchivedResults(t *testing.T) {
	env := testEnvironment(t)
	params := testParameters()
	params.TPG.ForceProgramBehaviorChangeOnMutation = true
	r := rng.New(11)

	original := program.New(env)
	InitRandomProgram(original, params.Prog, r)
	arch := archive.New(20, 1, 0)
	engine := program.NewEngine(env)
	for i := 0; i < 5; i++ {
		sources := []data.Source{
			data.NewFloat64Array(float64(i), 1, 2, 3, 4, 5),
			data.NewInt32Array(int32(i), 3),
		}
		arch.AddRecording(original, sources, engine.Execute(original, sources))
	}

	p := original.Clone()
	require.True(t, MutateProgramBehaviorAgainstArchive(p, arch, params, rng.New(12)))
	results := map[uint64]float64{}
	for hash, sources := range arch.DataSnapshots() {
		results[hash] = engine.Execute(p, sources)
	}
	require.True(t, arch.AreProgramResultsUnique(results, archive.DefaultTau))
}
