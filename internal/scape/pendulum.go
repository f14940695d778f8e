package scape

import (
	"math"

	"github.com/cespare/xxhash/v2"

	"tangled/internal/data"
	"tangled/internal/learn"
	"tangled/internal/rng"
)

const (
	pendulumMaxSpeed        = 8.0
	pendulumMaxTorque       = 2.0
	pendulumTimeDelta       = 0.05
	pendulumGravity         = 9.81
	pendulumMass            = 1.0
	pendulumLength          = 1.0
	pendulumStableThreshold = 0.1

	// PendulumRewardHistory is the number of recent rewards averaged to
	// decide that the pendulum is stabilised upward.
	PendulumRewardHistory = 300
)

// PendulumTorques are the torque magnitudes, as a fraction of the maximum
// torque, an agent can apply in either direction.
var PendulumTorques = []float64{0.05, 0.1, 0.2, 0.4, 0.6, 0.8, 1.0}

type pendulumState struct {
	Angle    float64
	Velocity float64
}

// Pendulum is the inverted pendulum swing-up task. Action 0 applies no
// torque; actions 1..n apply PendulumTorques clockwise and n+1..2n the same
// torques counter-clockwise.
//
// The state is resumable, so the pendulum can keep swinging from one policy
// to the next.
type Pendulum struct {
	state   *data.PrimitiveArray
	rng     *rng.RNG
	rewards [PendulumRewardHistory]float64
	actions uint64
	total   float64
}

var _ learn.Resumable = (*Pendulum)(nil)

func NewPendulum() *Pendulum {
	return &Pendulum{
		state: data.NewPrimitiveArray(data.Float64, 2),
		rng:   rng.New(0),
	}
}

func (p *Pendulum) NbActions() int { return 2*len(PendulumTorques) + 1 }

func (p *Pendulum) DataSources() []data.Source { return []data.Source{p.state} }

func (p *Pendulum) Angle() float64 { return p.state.At(data.Float64, 0) }

func (p *Pendulum) Velocity() float64 { return p.state.At(data.Float64, 1) }

// Reset draws a random angle in [-pi, pi) and velocity in [-1, 1) from the
// seed and the mode.
func (p *Pendulum) Reset(seed uint64, mode learn.Mode, _, _ uint64) {
	p.rng.SetSeed(hashUint64(seed) ^ hashUint64(uint64(mode)))
	p.set(p.rng.Float64(-math.Pi, math.Pi), p.rng.Float64(-1, 1))
	p.actions = 0
	p.total = 0
}

func (p *Pendulum) torque(actionID uint64) float64 {
	if actionID == 0 {
		return 0
	}
	n := uint64(len(PendulumTorques))
	t := PendulumTorques[(actionID-1)%n]
	if actionID > n {
		t = -t
	}
	return t * pendulumMaxTorque
}

func (p *Pendulum) DoAction(actionID uint64) {
	torque := p.torque(actionID)
	angle, velocity := p.Angle(), p.Velocity()

	upward := math.Mod(angle+math.Pi, 2*math.Pi) - math.Pi
	reward := -(upward*upward + 0.1*velocity*velocity + 0.001*torque*torque)
	p.rewards[p.actions%PendulumRewardHistory] = reward
	p.actions++
	p.total += reward

	velocity += (-3*pendulumGravity/(2*pendulumLength)*math.Sin(angle+math.Pi) +
		3/(pendulumMass*pendulumLength*pendulumLength)*torque) * pendulumTimeDelta
	velocity = math.Min(math.Max(velocity, -pendulumMaxSpeed), pendulumMaxSpeed)
	angle += velocity * pendulumTimeDelta
	p.set(angle, velocity)
}

// Score is the mean reward so far, or once stabilised a bonus that shrinks
// with the number of actions it took.
func (p *Pendulum) Score() float64 {
	if p.IsTerminal() {
		return 10 / math.Log(float64(p.actions)-PendulumRewardHistory+2)
	}
	if p.actions == 0 {
		return 0
	}
	return p.total / float64(p.actions)
}

func (p *Pendulum) IsTerminal() bool {
	if p.actions < PendulumRewardHistory {
		return false
	}
	var sum float64
	for _, r := range p.rewards {
		sum += r
	}
	return math.Abs(sum/PendulumRewardHistory) < pendulumStableThreshold
}

func (p *Pendulum) SaveState() any {
	return pendulumState{Angle: p.Angle(), Velocity: p.Velocity()}
}

func (p *Pendulum) RestoreState(state any) {
	if s, ok := state.(pendulumState); ok {
		p.set(s.Angle, s.Velocity)
	}
}

func (p *Pendulum) Clone() learn.Environment {
	c := *p
	c.state = p.state.Clone().(*data.PrimitiveArray)
	c.rng = rng.New(p.rng.Seed())
	return &c
}

func (p *Pendulum) set(angle, velocity float64) {
	p.state.Set(0, angle)
	p.state.Set(1, velocity)
}

func hashUint64(v uint64) uint64 {
	var b [8]byte
	for i := range b {
		b[i] = byte(v >> (8 * i))
	}
	return xxhash.Sum64(b[:])
}
