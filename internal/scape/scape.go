// Package scape provides ready-made learning environments.
package scape

import (
	"fmt"
	"sort"
	"strings"

	"tangled/internal/learn"
)

// Kind tells which agent flavour an environment is meant for.
type Kind uint8

const (
	Episodic Kind = iota
	Adversarial
	Continuous
)

func (k Kind) String() string {
	switch k {
	case Adversarial:
		return "adversarial"
	case Continuous:
		return "continuous"
	default:
		return "episodic"
	}
}

type entry struct {
	kind  Kind
	build func() learn.Environment
}

var builtins = map[string]entry{
	"cart-pole-lite":    {Episodic, func() learn.Environment { return NewCartPoleLite() }},
	"double-pole":       {Episodic, func() learn.Environment { return NewDoublePole() }},
	"gtsa":              {Episodic, func() learn.Environment { return NewGTSA() }},
	"pendulum":          {Continuous, func() learn.Environment { return NewPendulum() }},
	"pendulum-episodic": {Episodic, func() learn.Environment { return NewPendulum() }},
	"stick-game":        {Episodic, func() learn.Environment { return NewStickGame() }},
	"stick-game-versus": {Adversarial, func() learn.Environment { return NewAdversarialStickGame() }},
	"xor":               {Episodic, func() learn.Environment { return NewXOR() }},
}

// New returns a fresh environment by name.
func New(name string) (learn.Environment, Kind, error) {
	e, ok := builtins[strings.TrimSpace(strings.ToLower(name))]
	if !ok {
		return nil, 0, fmt.Errorf("unknown scape: %s", name)
	}
	return e.build(), e.kind, nil
}

// Names lists the registered environments in lexical order.
func Names() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
