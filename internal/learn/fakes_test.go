package learn

import (
	"math"

	"tangled/internal/data"
)

// guessEnv rewards the action matching a value derived from the reset seed
// and the step count.
type guessEnv struct {
	state  *data.PrimitiveArray
	steps  int
	score  float64
	resets *int
}

func newGuessEnv() *guessEnv {
	return &guessEnv{state: data.NewPrimitiveArray(data.Float64, 3), resets: new(int)}
}

func (e *guessEnv) NbActions() int { return 3 }

func (e *guessEnv) DataSources() []data.Source { return []data.Source{e.state} }

func (e *guessEnv) Reset(seed uint64, _ Mode, _, _ uint64) {
	*e.resets++
	e.state.Set(0, float64(seed%17))
	e.state.Set(1, float64((seed>>8)%5))
	e.state.Set(2, 0)
	e.steps = 0
	e.score = 0
}

func (e *guessEnv) DoAction(id uint64) {
	target := (int(e.state.At(data.Float64, 0)) + int(e.state.At(data.Float64, 1)) + e.steps) % 3
	if int(id) == target {
		e.score++
	}
	e.steps++
	e.state.Set(2, float64(e.steps))
}

func (e *guessEnv) Score() float64 { return e.score }

func (e *guessEnv) IsTerminal() bool { return e.steps >= 6 }

func (e *guessEnv) Clone() Environment {
	c := *e
	c.state = e.state.Clone().(*data.PrimitiveArray)
	return &c
}

// duelEnv is a two-player game: players alternately add their action to
// their total; the highest total after six moves wins.
type duelEnv struct {
	state  *data.PrimitiveArray
	totals [2]float64
	moves  int
}

func newDuelEnv() *duelEnv {
	return &duelEnv{state: data.NewPrimitiveArray(data.Float64, 3)}
}

func (e *duelEnv) NbActions() int { return 3 }

func (e *duelEnv) NbPlayers() int { return 2 }

func (e *duelEnv) DataSources() []data.Source { return []data.Source{e.state} }

func (e *duelEnv) Reset(seed uint64, _ Mode, _, _ uint64) {
	e.totals = [2]float64{}
	e.moves = 0
	e.state.Fill(0)
	e.state.Set(2, float64(seed%7))
}

func (e *duelEnv) DoAction(id uint64) {
	p := e.moves % 2
	e.totals[p] += float64(id)
	e.moves++
	e.state.Set(0, e.totals[0])
	e.state.Set(1, e.totals[1])
}

func (e *duelEnv) Score() float64 { return e.Scores()[0] }

func (e *duelEnv) Scores() []float64 {
	switch {
	case e.totals[0] > e.totals[1]:
		return []float64{1, 0}
	case e.totals[0] < e.totals[1]:
		return []float64{0, 1}
	default:
		return []float64{0.5, 0.5}
	}
}

func (e *duelEnv) IsTerminal() bool { return e.moves >= 6 }

func (e *duelEnv) Clone() Environment {
	c := *e
	c.state = e.state.Clone().(*data.PrimitiveArray)
	return &c
}

// walkEnv moves a point on a line; the score is minus its distance to the
// origin. It never terminates and can resume from a saved position.
type walkEnv struct {
	state *data.PrimitiveArray
	pos   float64
}

func newWalkEnv() *walkEnv {
	return &walkEnv{state: data.NewPrimitiveArray(data.Float64, 1)}
}

func (e *walkEnv) NbActions() int { return 3 }

func (e *walkEnv) DataSources() []data.Source { return []data.Source{e.state} }

func (e *walkEnv) Reset(seed uint64, _ Mode, _, _ uint64) {
	e.pos = float64(seed%11) - 5
	e.state.Set(0, e.pos)
}

func (e *walkEnv) DoAction(id uint64) {
	e.pos += float64(id) - 1
	e.state.Set(0, e.pos)
}

func (e *walkEnv) Score() float64 { return -math.Abs(e.pos) }

func (e *walkEnv) IsTerminal() bool { return false }

func (e *walkEnv) SaveState() any { return e.pos }

func (e *walkEnv) RestoreState(state any) {
	e.pos = state.(float64)
	e.state.Set(0, e.pos)
}

func (e *walkEnv) Clone() Environment {
	c := *e
	c.state = e.state.Clone().(*data.PrimitiveArray)
	return &c
}
