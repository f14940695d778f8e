package scape

import (
	"math"

	"tangled/internal/data"
	"tangled/internal/learn"
)

// CartPoleLite is a simplified 1D balancing control task: a spring pulls
// the cart back to the origin and the policy pushes it left, not at all, or
// right. Each step rewards closeness to the origin.
type CartPoleLite struct {
	state  *data.PrimitiveArray
	x, v   float64
	steps  int
	limit  int
	reward float64
	fell   bool
}

var _ learn.Environment = (*CartPoleLite)(nil)

type cartPoleLiteModeConfig struct {
	startPositions  []float64
	stepsPerEpisode int
}

func cartPoleLiteConfigForMode(mode learn.Mode) cartPoleLiteModeConfig {
	switch mode {
	case learn.Validation:
		return cartPoleLiteModeConfig{
			startPositions:  []float64{-1.0, -0.5, 0.5, 1.0},
			stepsPerEpisode: 48,
		}
	case learn.Testing:
		return cartPoleLiteModeConfig{
			startPositions:  []float64{-1.2, -0.6, 0.0, 0.6, 1.2},
			stepsPerEpisode: 48,
		}
	default:
		return cartPoleLiteModeConfig{
			startPositions:  []float64{-0.8, -0.4, 0.0, 0.4, 0.8},
			stepsPerEpisode: 60,
		}
	}
}

func NewCartPoleLite() *CartPoleLite {
	return &CartPoleLite{state: data.NewPrimitiveArray(data.Float64, 2)}
}

func (c *CartPoleLite) NbActions() int { return 3 }

func (c *CartPoleLite) DataSources() []data.Source { return []data.Source{c.state} }

// Reset starts from the iteration-th start position of the mode.
func (c *CartPoleLite) Reset(_ uint64, mode learn.Mode, iteration, _ uint64) {
	cfg := cartPoleLiteConfigForMode(mode)
	c.x = cfg.startPositions[iteration%uint64(len(cfg.startPositions))]
	c.v = 0
	c.steps = 0
	c.limit = cfg.stepsPerEpisode
	c.reward = 0
	c.fell = false
	c.sync()
}

func (c *CartPoleLite) DoAction(actionID uint64) {
	force := float64(actionID%3) - 1
	var r float64
	c.x, c.v, r = cartPoleLiteStep(c.x, c.v, force)
	c.reward += r
	c.steps++
	if math.Abs(c.x) > 2.0 {
		c.fell = true
	}
	c.sync()
}

// Score is the average reward per step survived.
func (c *CartPoleLite) Score() float64 {
	if c.steps == 0 {
		return 0
	}
	return c.reward / float64(c.steps)
}

func (c *CartPoleLite) IsTerminal() bool { return c.fell || c.steps >= c.limit }

func (c *CartPoleLite) Clone() learn.Environment {
	cp := *c
	cp.state = c.state.Clone().(*data.PrimitiveArray)
	return &cp
}

func (c *CartPoleLite) sync() {
	c.state.Set(0, c.x)
	c.state.Set(1, c.v)
}

func cartPoleLiteStep(x, v, force float64) (nextX, nextV, reward float64) {
	const (
		dt       = 0.1
		kPos     = 0.45
		kVel     = 0.15
		forceK   = 1.25
		maxForce = 1.0
	)
	force = math.Max(-maxForce, math.Min(maxForce, force))

	acc := forceK*force - kPos*x - kVel*v
	v = v + acc*dt
	x = x + v*dt
	reward = 1.0 - math.Min(1.0, math.Abs(x)/2.0)
	return x, v, reward
}
