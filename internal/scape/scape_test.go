package scape

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tangled/internal/data"
	"tangled/internal/learn"
)

func TestNewKnownScapes(t *testing.T) {
	for _, name := range Names() {
		env, _, err := New(name)
		require.NoError(t, err, name)
		require.NotNil(t, env, name)
		assert.Positive(t, env.NbActions(), name)
		assert.NotEmpty(t, env.DataSources(), name)
	}

	_, kind, err := New(" Stick-Game-Versus ")
	require.NoError(t, err)
	assert.Equal(t, Adversarial, kind)

	_, kind, err = New("pendulum")
	require.NoError(t, err)
	assert.Equal(t, Continuous, kind)

	_, _, err = New("flatland")
	require.Error(t, err)
}

func TestNamesSorted(t *testing.T) {
	names := Names()
	assert.IsNonDecreasing(t, names)
	assert.Contains(t, names, "cart-pole-lite")
}

func TestPendulumResetIsReproducible(t *testing.T) {
	p := NewPendulum()
	p.Reset(42, learn.Training, 0, 0)
	angle, velocity := p.Angle(), p.Velocity()
	assert.GreaterOrEqual(t, angle, -math.Pi)
	assert.Less(t, angle, math.Pi)
	assert.GreaterOrEqual(t, velocity, -1.0)
	assert.Less(t, velocity, 1.0)

	p.DoAction(3)
	p.Reset(42, learn.Training, 5, 9)
	assert.Equal(t, angle, p.Angle())
	assert.Equal(t, velocity, p.Velocity())

	p.Reset(42, learn.Validation, 0, 0)
	assert.NotEqual(t, angle, p.Angle())
}

func TestPendulumTorqueMapping(t *testing.T) {
	p := NewPendulum()
	n := uint64(len(PendulumTorques))
	assert.Equal(t, int(2*n+1), p.NbActions())
	assert.Zero(t, p.torque(0))
	assert.InDelta(t, PendulumTorques[0]*pendulumMaxTorque, p.torque(1), 1e-12)
	assert.InDelta(t, -PendulumTorques[0]*pendulumMaxTorque, p.torque(n+1), 1e-12)
	assert.InDelta(t, -pendulumMaxTorque, p.torque(2*n), 1e-12)
}

func TestPendulumStepAndScore(t *testing.T) {
	p := NewPendulum()
	p.Reset(1, learn.Training, 0, 0)
	p.RestoreState(pendulumState{Angle: math.Pi / 2, Velocity: 0})

	p.DoAction(0)
	// Horizontal pendulum: reward is -(pi/2)^2 and gravity pulls it down.
	assert.InDelta(t, -(math.Pi/2)*(math.Pi/2), p.Score(), 1e-9)
	assert.Greater(t, p.Velocity(), 0.0)
	assert.False(t, p.IsTerminal())
}

func TestPendulumStabilisedIsTerminal(t *testing.T) {
	p := NewPendulum()
	p.Reset(1, learn.Training, 0, 0)
	for i := 0; i < PendulumRewardHistory; i++ {
		require.False(t, p.IsTerminal(), "step %d", i)
		p.RestoreState(pendulumState{})
		p.DoAction(0)
	}
	require.True(t, p.IsTerminal())
	assert.InDelta(t, 10/math.Log(2), p.Score(), 1e-9)
}

func TestPendulumSaveRestoreAndClone(t *testing.T) {
	p := NewPendulum()
	p.Reset(7, learn.Training, 0, 0)
	for i := uint64(0); i < 5; i++ {
		p.DoAction(i)
	}
	saved := p.SaveState()

	c := p.Clone().(*Pendulum)
	c.DoAction(4)
	assert.NotEqual(t, c.Angle(), p.Angle())

	p.Reset(8, learn.Training, 0, 0)
	p.RestoreState(saved)
	s := saved.(pendulumState)
	assert.Equal(t, s.Angle, p.Angle())
	assert.Equal(t, s.Velocity, p.Velocity())
}

func TestAdversarialStickGameRules(t *testing.T) {
	g := NewAdversarialStickGame()
	g.Reset(0, learn.Training, 0, 0)
	assert.Equal(t, 2, g.NbPlayers())
	for i := 0; i < 6; i++ {
		g.DoAction(2)
	}
	require.False(t, g.IsTerminal())
	assert.Equal(t, 3.0, g.remaining.At(data.Int32, 0))

	g.DoAction(0)
	g.DoAction(2)
	require.True(t, g.IsTerminal())
	assert.Equal(t, []float64{1, 0}, g.Scores())
	assert.Equal(t, 1.0, g.Score())

	g.Reset(0, learn.Training, 0, 0)
	for i := 0; i < 7; i++ {
		g.DoAction(2)
	}
	require.True(t, g.IsTerminal())
	assert.Equal(t, []float64{0, 1}, g.Scores())
}

func TestAdversarialStickGameCloneIsIndependent(t *testing.T) {
	g := NewAdversarialStickGame()
	g.Reset(0, learn.Training, 0, 0)
	g.DoAction(1)
	c := g.Clone().(*AdversarialStickGame)
	c.DoAction(2)
	assert.Equal(t, 19.0, g.remaining.At(data.Int32, 0))
	assert.Equal(t, 16.0, c.remaining.At(data.Int32, 0))
}

func TestStickGameOpponent(t *testing.T) {
	play := func() []int {
		g := NewStickGame()
		g.Reset(11, learn.Training, 0, 0)
		var trail []int
		for !g.IsTerminal() {
			g.DoAction(0)
			trail = append(trail, g.Remaining())
		}
		return trail
	}
	first := play()
	require.NotEmpty(t, first)
	assert.Equal(t, first, play())
	for i := 1; i < len(first); i++ {
		assert.Less(t, first[i], first[i-1])
	}
}

func TestStickGameWinAndForfeit(t *testing.T) {
	g := NewStickGame()
	g.Reset(3, learn.Training, 0, 0)
	g.left = 2
	g.DoAction(0)
	require.True(t, g.IsTerminal())
	assert.Equal(t, 1.0, g.Score())

	g.Reset(3, learn.Training, 0, 0)
	g.left = 2
	g.DoAction(2)
	require.True(t, g.IsTerminal())
	assert.Zero(t, g.Score())
}

func TestCartPoleLiteEpisode(t *testing.T) {
	c := NewCartPoleLite()
	c.Reset(0, learn.Training, 1, 0)
	assert.Equal(t, -0.4, c.state.At(data.Float64, 0))

	steps := 0
	for !c.IsTerminal() {
		x, v := c.x, c.v
		switch {
		case x+v > 0:
			c.DoAction(0)
		case x+v < 0:
			c.DoAction(2)
		default:
			c.DoAction(1)
		}
		steps++
	}
	assert.Equal(t, 60, steps)
	assert.Greater(t, c.Score(), 0.5)
	assert.LessOrEqual(t, c.Score(), 1.0)

	c.Reset(0, learn.Validation, 5, 0)
	assert.Equal(t, -0.5, c.state.At(data.Float64, 0))
	assert.Equal(t, 48, c.limit)
}

func TestCartPoleLiteFallsOff(t *testing.T) {
	c := NewCartPoleLite()
	c.Reset(0, learn.Testing, 4, 0)
	for i := 0; i < 48 && !c.IsTerminal(); i++ {
		c.DoAction(2)
	}
	// A constant push settles around 2.78, past the edge.
	assert.True(t, c.fell)
}

func TestTrainOnStickGame(t *testing.T) {
	p := learn.DefaultParameters()
	p.NbThreads = 2
	p.NbGenerations = 2
	p.NbIterationsPerPolicyEvaluation = 2
	p.MaxNbActionsPerEval = 20
	p.MaxNbEvaluationPerPolicy = 4
	p.ArchiveSize = 50
	p.NbRegisters = 4
	p.Mutation.TPG.NbRoots = 10
	p.Mutation.Prog.MaxProgramSize = 6

	a, err := learn.NewParallelAgent(learn.Config{Environment: NewStickGame(), Params: p, Seed: 5})
	require.NoError(t, err)
	gens, err := a.Train(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), gens)
	_, res, ok := a.BestRoot()
	require.True(t, ok)
	assert.GreaterOrEqual(t, res.Result(), 0.0)
	assert.LessOrEqual(t, res.Result(), 1.0)
}

func TestTrainContinuousPendulum(t *testing.T) {
	p := learn.DefaultParameters()
	p.NbGenerations = 1
	p.TotalInteractions = 30
	p.NbRegisters = 4
	p.Mutation.TPG.NbRoots = 8
	p.Mutation.Prog.MaxProgramSize = 6

	a, err := learn.NewContinuousAgent(learn.Config{Environment: NewPendulum(), Params: p, Seed: 2})
	require.NoError(t, err)
	_, err = a.Train(context.Background(), nil)
	require.NoError(t, err)
	state, ok := a.CarriedState()
	require.True(t, ok)
	assert.IsType(t, pendulumState{}, state)
}

func TestXORAnswersScore(t *testing.T) {
	x := NewXOR()
	x.Reset(0, learn.Training, 0, 0)
	for !x.IsTerminal() {
		in := x.DataSources()[0].(*data.PrimitiveArray).Values()
		x.DoAction(uint64(in[0]) ^ uint64(in[1]))
	}
	assert.Equal(t, 1.0, x.Score())

	x.Reset(0, learn.Testing, 0, 0)
	for !x.IsTerminal() {
		x.DoAction(0)
	}
	assert.Equal(t, 0.5, x.Score())
	x.DoAction(1)
	assert.Equal(t, 0.5, x.Score())
}

func TestXORTrainingOrderFollowsIteration(t *testing.T) {
	x := NewXOR()
	first := func(iteration uint64) []float64 {
		x.Reset(0, learn.Training, iteration, 0)
		return x.DataSources()[0].(*data.PrimitiveArray).Values()
	}
	assert.Equal(t, []float64{0, 0}, first(0))
	assert.Equal(t, []float64{0, 1}, first(1))
	assert.Equal(t, []float64{0, 0}, first(4))
}

func TestDoublePoleResetByMode(t *testing.T) {
	p := NewDoublePole()
	p.Reset(9, learn.Training, 0, 0)
	a := p.DataSources()[0].(*data.PrimitiveArray).Values()
	p.Reset(9, learn.Training, 3, 2)
	assert.Equal(t, a, p.DataSources()[0].(*data.PrimitiveArray).Values())
	p.Reset(10, learn.Training, 0, 0)
	assert.NotEqual(t, a, p.DataSources()[0].(*data.PrimitiveArray).Values())

	p.Reset(1, learn.Testing, 0, 0)
	b := p.DataSources()[0].(*data.PrimitiveArray).Values()
	p.Reset(2, learn.Testing, 0, 0)
	assert.Equal(t, b, p.DataSources()[0].(*data.PrimitiveArray).Values())
	assert.InDelta(t, 4.8/36, b[2], 1e-12)
}

func TestDoublePoleFallsWithoutControl(t *testing.T) {
	p := NewDoublePole()
	p.Reset(0, learn.Testing, 0, 0)
	for i := 0; i < 1200 && !p.IsTerminal(); i++ {
		p.DoAction(2)
	}
	require.True(t, p.IsTerminal())
	assert.Less(t, p.Steps(), 1200)
	score := p.Score()
	assert.Greater(t, score, 0.0)
	assert.Less(t, score, 1.0)

	steps := p.Steps()
	p.DoAction(0)
	assert.Equal(t, steps, p.Steps())

	c := p.Clone().(*DoublePole)
	c.Reset(0, learn.Validation, 0, 0)
	assert.True(t, p.IsTerminal())
	assert.False(t, c.IsTerminal())
}

func TestDoublePoleTermination(t *testing.T) {
	cfg := pole2ConfigForMode(learn.Validation)
	terminated, goal := pole2Termination(pole2State{}, cfg, 10)
	assert.False(t, terminated)
	assert.False(t, goal)

	terminated, goal = pole2Termination(pole2State{angle2: math.Pi}, cfg, 10)
	assert.True(t, terminated)
	assert.False(t, goal)

	terminated, goal = pole2Termination(pole2State{cartPosition: 3}, cfg, cfg.maxSteps)
	assert.True(t, terminated)
	assert.True(t, goal)
}

func TestGTSAForecast(t *testing.T) {
	g := NewGTSA()
	g.Reset(0, learn.Validation, 0, 0)
	window := g.DataSources()[0].(*data.PrimitiveArray).Values()
	require.Len(t, window, GTSAWindow)
	assert.Equal(t, gtsaSignal(120), window[GTSAWindow-1])
	assert.Equal(t, gtsaSignal(116), window[0])

	steps := 0
	for !g.IsTerminal() {
		var action uint64
		if gtsaSignal(g.t+1) > gtsaSignal(g.t) {
			action = 1
		}
		g.DoAction(action)
		steps++
	}
	assert.Equal(t, 32, steps)
	assert.Equal(t, 1.0, g.Score())

	g.Reset(0, learn.Training, 1, 0)
	assert.Equal(t, gtsaSignal(7), g.DataSources()[0].(*data.PrimitiveArray).Values()[GTSAWindow-1])
}
