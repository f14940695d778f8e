package learn

import (
	"tangled/internal/tpg"
)

// Hook observes the training loop at fixed points of each generation.
type Hook interface {
	LogNewGeneration(generation uint64)
	LogAfterPopulate(g *tpg.Graph)
	LogAfterEvaluate(generation uint64, results []RootResult)
	LogAfterDecimate(g *tpg.Graph)
	LogAfterValidate(generation uint64, results []RootResult)
	LogEndOfTraining(generations uint64)
}

// BaseHook implements Hook with no-ops; embed it to override a subset.
type BaseHook struct{}

func (BaseHook) LogNewGeneration(uint64) {}
func (BaseHook) LogAfterPopulate(*tpg.Graph) {}
func (BaseHook) LogAfterEvaluate(uint64, []RootResult) {}
func (BaseHook) LogAfterDecimate(*tpg.Graph) {}
func (BaseHook) LogAfterValidate(uint64, []RootResult) {}
func (BaseHook) LogEndOfTraining(uint64) {}

type hooks []Hook

func (h hooks) newGeneration(gen uint64) {
	for _, x := range h {
		x.LogNewGeneration(gen)
	}
}

func (h hooks) afterPopulate(g *tpg.Graph) {
	for _, x := range h {
		x.LogAfterPopulate(g)
	}
}

func (h hooks) afterEvaluate(gen uint64, results []RootResult) {
	for _, x := range h {
		x.LogAfterEvaluate(gen, results)
	}
}

func (h hooks) afterDecimate(g *tpg.Graph) {
	for _, x := range h {
		x.LogAfterDecimate(g)
	}
}

func (h hooks) afterValidate(gen uint64, results []RootResult) {
	for _, x := range h {
		x.LogAfterValidate(gen, results)
	}
}

func (h hooks) endOfTraining(generations uint64) {
	for _, x := range h {
		x.LogEndOfTraining(generations)
	}
}
