package scape

import (
	"math"

	"tangled/internal/data"
	"tangled/internal/learn"
)

// GTSAWindow is the number of past samples a GTSA policy observes.
const GTSAWindow = 5

// GTSA is a time-series trend forecast: the policy sees the last
// GTSAWindow samples of a two-tone signal and answers 1 when it expects the
// next sample to rise, 0 otherwise.
type GTSA struct {
	window  *data.PrimitiveArray
	cfg     gtsaModeConfig
	t       float64
	step    int
	correct int
}

var _ learn.Environment = (*GTSA)(nil)

type gtsaModeConfig struct {
	steps  int
	startT float64
}

// Training episodes start further along the signal at each iteration.
func gtsaConfigForMode(mode learn.Mode, iteration uint64) gtsaModeConfig {
	switch mode {
	case learn.Validation:
		return gtsaModeConfig{steps: 32, startT: 120}
	case learn.Testing:
		return gtsaModeConfig{steps: 32, startT: 240}
	default:
		return gtsaModeConfig{steps: 40, startT: float64(iteration%16) * 7}
	}
}

func NewGTSA() *GTSA {
	return &GTSA{window: data.NewPrimitiveArray(data.Float64, GTSAWindow)}
}

func (g *GTSA) NbActions() int { return 2 }

func (g *GTSA) DataSources() []data.Source { return []data.Source{g.window} }

func (g *GTSA) Reset(_ uint64, mode learn.Mode, iteration, _ uint64) {
	g.cfg = gtsaConfigForMode(mode, iteration)
	g.t = g.cfg.startT
	g.step = 0
	g.correct = 0
	g.observe()
}

func (g *GTSA) DoAction(actionID uint64) {
	if g.IsTerminal() {
		return
	}
	rising := gtsaSignal(g.t+1) > gtsaSignal(g.t)
	if (actionID%2 == 1) == rising {
		g.correct++
	}
	g.t++
	g.step++
	g.observe()
}

// Score is the fraction of correctly forecast moves over the episode.
func (g *GTSA) Score() float64 {
	if g.cfg.steps == 0 {
		return 0
	}
	return float64(g.correct) / float64(g.cfg.steps)
}

func (g *GTSA) IsTerminal() bool { return g.step >= g.cfg.steps }

func (g *GTSA) Clone() learn.Environment {
	cp := *g
	cp.window = g.window.Clone().(*data.PrimitiveArray)
	return &cp
}

// observe fills the window with the samples up to t, oldest first.
func (g *GTSA) observe() {
	for i := 0; i < GTSAWindow; i++ {
		g.window.Set(i, gtsaSignal(g.t-float64(GTSAWindow-1-i)))
	}
}

func gtsaSignal(t float64) float64 {
	return math.Sin(t*0.2) + 0.5*math.Sin(t*0.05)
}
