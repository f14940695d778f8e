package scape

import (
	"tangled/internal/data"
	"tangled/internal/learn"
	"tangled/internal/rng"
)

// InitialSticks is the size of the heap at the start of a stick game.
const InitialSticks = 21

// sticks is the shared rule set of the stick games: players alternately
// take 1, 2 or 3 sticks and whoever takes the last stick loses. Taking more
// sticks than remain forfeits the game.
type sticks struct {
	remaining *data.PrimitiveArray
	hints     *data.PrimitiveArray
	left      int
	turn      int
	loser     int
}

func newSticks() sticks {
	return sticks{
		remaining: data.NewInt32Array(InitialSticks),
		hints:     data.NewInt32Array(1, 2, 3, 4),
		left:      InitialSticks,
		loser:     -1,
	}
}

func (s *sticks) reset() {
	s.left = InitialSticks
	s.turn = 0
	s.loser = -1
	s.remaining.Set(0, InitialSticks)
}

func (s *sticks) sources() []data.Source { return []data.Source{s.hints, s.remaining} }

// take plays actionID (0, 1, 2 remove 1, 2, 3 sticks) for the player whose
// turn it is.
func (s *sticks) take(actionID uint64) {
	if s.loser >= 0 {
		return
	}
	n := int(actionID%3) + 1
	player := s.turn % 2
	s.turn++
	if n > s.left {
		s.loser = player
		return
	}
	s.left -= n
	s.remaining.Set(0, float64(s.left))
	if s.left == 0 {
		s.loser = player
	}
}

func (s *sticks) over() bool { return s.loser >= 0 }

func (s *sticks) clone() sticks {
	c := *s
	c.remaining = s.remaining.Clone().(*data.PrimitiveArray)
	c.hints = s.hints.Clone().(*data.PrimitiveArray)
	return c
}

// StickGame pits the trained policy, always playing first, against an
// opponent drawing random moves. The score is 1 for a win and 0 otherwise.
type StickGame struct {
	sticks
	rng *rng.RNG
}

var _ learn.Environment = (*StickGame)(nil)

func NewStickGame() *StickGame {
	return &StickGame{sticks: newSticks(), rng: rng.New(0)}
}

func (g *StickGame) NbActions() int { return 3 }

func (g *StickGame) DataSources() []data.Source { return g.sources() }

func (g *StickGame) Remaining() int { return g.left }

func (g *StickGame) Reset(seed uint64, mode learn.Mode, _, _ uint64) {
	g.rng.SetSeed(hashUint64(seed) ^ hashUint64(uint64(mode)))
	g.reset()
}

// DoAction plays the policy move, then the opponent reply.
func (g *StickGame) DoAction(actionID uint64) {
	g.take(actionID)
	if g.over() {
		return
	}
	// The opponent never takes more sticks than remain.
	g.take(uint64(g.rng.Int(0, min(2, g.left-1))))
}

func (g *StickGame) Score() float64 {
	if g.loser == 1 {
		return 1
	}
	return 0
}

func (g *StickGame) IsTerminal() bool { return g.over() }

func (g *StickGame) Clone() learn.Environment {
	return &StickGame{sticks: g.clone(), rng: rng.New(g.rng.Seed())}
}

// AdversarialStickGame is the two-player version of the stick game: the
// learning agent seats two policies which take turns. The winner scores 1.
type AdversarialStickGame struct {
	sticks
}

var _ learn.AdversarialEnvironment = (*AdversarialStickGame)(nil)

func NewAdversarialStickGame() *AdversarialStickGame {
	return &AdversarialStickGame{sticks: newSticks()}
}

func (g *AdversarialStickGame) NbActions() int { return 3 }

func (g *AdversarialStickGame) NbPlayers() int { return 2 }

func (g *AdversarialStickGame) DataSources() []data.Source { return g.sources() }

func (g *AdversarialStickGame) Reset(uint64, learn.Mode, uint64, uint64) { g.reset() }

func (g *AdversarialStickGame) DoAction(actionID uint64) { g.take(actionID) }

// Score is the first player's score.
func (g *AdversarialStickGame) Score() float64 { return g.Scores()[0] }

func (g *AdversarialStickGame) Scores() []float64 {
	switch g.loser {
	case 0:
		return []float64{0, 1}
	case 1:
		return []float64{1, 0}
	default:
		return []float64{0, 0}
	}
}

func (g *AdversarialStickGame) IsTerminal() bool { return g.over() }

func (g *AdversarialStickGame) Clone() learn.Environment {
	return &AdversarialStickGame{sticks: g.clone()}
}
