// Package learn runs the generational training loop of a tangled program
// graph against a learning environment.
package learn

import (
	"fmt"

	"tangled/internal/data"
)

type Mode uint8

const (
	Training Mode = iota
	Validation
	Testing
)

func (m Mode) String() string {
	switch m {
	case Training:
		return "training"
	case Validation:
		return "validation"
	case Testing:
		return "testing"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// Environment is the task a policy is trained on. Reset must fully define
// the episode from its arguments so that evaluations are reproducible.
type Environment interface {
	NbActions() int
	DataSources() []data.Source
	Reset(seed uint64, mode Mode, iteration, generation uint64)
	DoAction(actionID uint64)
	Score() float64
	IsTerminal() bool
	// Clone returns an independent environment in the same state. Parallel
	// evaluation gives each worker its own clone.
	Clone() Environment
}

// AdversarialEnvironment is played by several policies taking turns. Scores
// returns one score per player, in turn order.
type AdversarialEnvironment interface {
	Environment
	NbPlayers() int
	Scores() []float64
}

// Resumable environments can hand their state over between evaluations.
type Resumable interface {
	Environment
	SaveState() any
	RestoreState(state any)
}
