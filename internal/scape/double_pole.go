package scape

import (
	"math"

	"tangled/internal/data"
	"tangled/internal/learn"
	"tangled/internal/rng"
)

// DoublePole balances two poles of different lengths hinged on one cart.
// Actions push the cart left, not at all, or right.
type DoublePole struct {
	obs *data.PrimitiveArray
	cfg pole2ModeConfig

	state      pole2State
	steps      int
	fitnessAcc float64
	terminated bool
	goal       bool
}

var _ learn.Environment = (*DoublePole)(nil)

type pole2State struct {
	cartPosition float64
	cartVelocity float64
	angle1       float64
	velocity1    float64
	angle2       float64
	velocity2    float64
}

type pole2ModeConfig struct {
	maxSteps   int
	angleLimit float64
	initAngle1 float64
	initAngle2 float64
	// jitter is the half width of the seeded perturbation added to both
	// initial angles.
	jitter float64
}

const pole2Rad = 2 * math.Pi / 360

func pole2ConfigForMode(mode learn.Mode) pole2ModeConfig {
	angleLimit := 36.0 * pole2Rad
	switch mode {
	case learn.Validation:
		return pole2ModeConfig{maxSteps: 1200, angleLimit: angleLimit, initAngle1: 2.4 * pole2Rad, initAngle2: 1.2 * pole2Rad}
	case learn.Testing:
		return pole2ModeConfig{maxSteps: 1200, angleLimit: angleLimit, initAngle1: 4.8 * pole2Rad, initAngle2: -1.8 * pole2Rad}
	default:
		return pole2ModeConfig{maxSteps: 1000, angleLimit: angleLimit, initAngle1: 3.6 * pole2Rad, jitter: 1.2 * pole2Rad}
	}
}

func NewDoublePole() *DoublePole {
	return &DoublePole{obs: data.NewPrimitiveArray(data.Float64, 6)}
}

func (p *DoublePole) NbActions() int { return 3 }

func (p *DoublePole) DataSources() []data.Source { return []data.Source{p.obs} }

// Reset starts both poles at the angles of mode. Training perturbs them
// with a generator seeded by seed.
func (p *DoublePole) Reset(seed uint64, mode learn.Mode, _, _ uint64) {
	p.cfg = pole2ConfigForMode(mode)
	p.state = pole2State{angle1: p.cfg.initAngle1, angle2: p.cfg.initAngle2}
	if p.cfg.jitter > 0 {
		r := rng.New(seed)
		p.state.angle1 += r.Float64(-p.cfg.jitter, p.cfg.jitter)
		p.state.angle2 += r.Float64(-p.cfg.jitter, p.cfg.jitter)
	}
	p.steps = 0
	p.fitnessAcc = 0
	p.terminated = false
	p.goal = false
	p.observe()
}

func (p *DoublePole) DoAction(actionID uint64) {
	if p.terminated {
		return
	}
	force := float64(actionID%3) - 1
	p.state = simulateDoublePole(force*10, p.state, 2)
	p.steps++
	p.observe()

	if p.terminated, p.goal = pole2Termination(p.state, p.cfg, p.steps); !p.terminated {
		p.fitnessAcc += pole2StepFitness(p.steps, p.state)
	}
}

// Score rewards the fraction of the step budget survived, adds a damping
// bonus for keeping the cart and the long pole still, and 0.2 for reaching
// the budget.
func (p *DoublePole) Score() float64 {
	if p.cfg.maxSteps <= 0 || p.steps == 0 {
		return 0
	}
	score := float64(p.steps)/float64(p.cfg.maxSteps) + 0.08*p.fitnessAcc/float64(p.steps)
	if p.goal {
		score += 0.2
	}
	if math.IsNaN(score) || math.IsInf(score, 0) || score < 0 {
		return 0
	}
	return score
}

func (p *DoublePole) IsTerminal() bool { return p.terminated }

func (p *DoublePole) Clone() learn.Environment {
	cp := *p
	cp.obs = p.obs.Clone().(*data.PrimitiveArray)
	return &cp
}

// Steps returns the number of actions survived in the current episode.
func (p *DoublePole) Steps() int { return p.steps }

func (p *DoublePole) observe() {
	s := p.state
	p.obs.Set(0, scaleToUnit(s.cartPosition, 2.4, -2.4))
	p.obs.Set(1, scaleToUnit(s.cartVelocity, 10, -10))
	p.obs.Set(2, scaleToUnit(s.angle1, p.cfg.angleLimit, -p.cfg.angleLimit))
	p.obs.Set(3, s.velocity1)
	p.obs.Set(4, scaleToUnit(s.angle2, p.cfg.angleLimit, -p.cfg.angleLimit))
	p.obs.Set(5, s.velocity2)
}

// pole2Termination ends the episode when a pole or the cart leaves its
// bounds or the step budget is spent. Spending the budget counts as the
// goal even when a bound was crossed on the same step.
func pole2Termination(state pole2State, cfg pole2ModeConfig, steps int) (terminated, goal bool) {
	out := math.Abs(state.angle1) > cfg.angleLimit ||
		math.Abs(state.angle2) > cfg.angleLimit ||
		math.Abs(state.cartPosition) > 2.4
	if steps >= cfg.maxSteps {
		return true, true
	}
	return out, false
}

func pole2StepFitness(step int, state pole2State) float64 {
	fitness1 := float64(step) / 1000.0
	if step < 100 {
		return fitness1 * 0.1
	}
	denom := math.Abs(state.cartPosition) + math.Abs(state.cartVelocity) + math.Abs(state.angle1) + math.Abs(state.velocity1)
	if denom < 1e-9 {
		denom = 1e-9
	}
	return fitness1*0.1 + (0.75/denom)*0.9
}

// simulateDoublePole integrates the cart and both poles for steps Euler
// steps of 10ms under force.
func simulateDoublePole(force float64, state pole2State, steps int) pole2State {
	const (
		halfLength1 = 0.5
		halfLength2 = 0.05
		cartMass    = 1.0
		poleMass1   = 0.1
		poleMass2   = 0.01
		muC         = 0.0005
		muP         = 0.000002
		gravity     = -9.81
		delta       = 0.01
	)

	next := state
	for i := 0; i < steps; i++ {
		cur := next

		em1 := poleMass1 * (1 - (3.0/4.0)*math.Pow(math.Cos(cur.angle1), 2))
		em2 := poleMass2 * (1 - (3.0/4.0)*math.Pow(math.Cos(cur.angle2), 2))

		ef1 := poleMass1*halfLength1*math.Pow(cur.velocity1, 2)*math.Sin(cur.angle1) +
			(3.0/4.0)*poleMass1*math.Cos(cur.angle1)*(((muP*cur.velocity1)/(poleMass1*halfLength1))+gravity*math.Sin(cur.angle1))
		ef2 := poleMass2*halfLength2*math.Pow(cur.velocity2, 2)*math.Sin(cur.angle2) +
			(3.0/4.0)*poleMass2*math.Cos(cur.angle2)*(((muP*cur.velocity2)/(poleMass2*halfLength2))+gravity*math.Sin(cur.angle2))

		cartAccel := (force - muC*sgn(cur.cartVelocity) + ef1 + ef2) / (cartMass + em1 + em2)
		poleAccel1 := -(3.0 / (4.0 * halfLength1)) * ((cartAccel * math.Cos(cur.angle1)) + (gravity * math.Sin(cur.angle1)) + ((muP * cur.velocity1) / (poleMass1 * halfLength1)))
		poleAccel2 := -(3.0 / (4.0 * halfLength2)) * ((cartAccel * math.Cos(cur.angle2)) + (gravity * math.Sin(cur.angle2)) + ((muP * cur.velocity2) / (poleMass2 * halfLength2)))

		velocity1 := cur.velocity1 + delta*poleAccel1
		velocity2 := cur.velocity2 + delta*poleAccel2
		next = pole2State{
			cartPosition: cur.cartPosition + delta*cur.cartVelocity,
			cartVelocity: cur.cartVelocity + delta*cartAccel,
			angle1:       cur.angle1 + delta*velocity1,
			velocity1:    velocity1,
			angle2:       cur.angle2 + delta*velocity2,
			velocity2:    velocity2,
		}
	}
	return next
}

func sgn(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

// scaleToUnit maps [min, max] onto [-1, 1], clamping outside values.
func scaleToUnit(v, max, min float64) float64 {
	if max == min {
		return 0
	}
	scaled := ((v-min)/(max-min))*2 - 1
	return math.Max(-1, math.Min(1, scaled))
}
