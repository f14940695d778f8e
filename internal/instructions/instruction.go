// Package instructions holds the operations a program line may apply.
package instructions

import (
	"errors"
	"fmt"

	"tangled/internal/data"
)

var (
	ErrInstructionExists   = errors.New("instruction already registered")
	ErrInstructionNotFound = errors.New("instruction not found")
)

// Instruction is a pure function of typed operands and numeric parameters.
type Instruction interface {
	Name() string
	OperandTypes() []data.ElementType
	NbParameters() int
	Execute(args, params []float64) float64
}

// Func adapts a plain function into an Instruction.
type Func struct {
	name     string
	operands []data.ElementType
	nbParams int
	fn       func(args, params []float64) float64
}

func NewFunc(name string, operands []data.ElementType, nbParams int, fn func(args, params []float64) float64) *Func {
	return &Func{
		name:     name,
		operands: append([]data.ElementType(nil), operands...),
		nbParams: nbParams,
		fn:       fn,
	}
}

func (f *Func) Name() string { return f.name }

func (f *Func) OperandTypes() []data.ElementType { return f.operands }

func (f *Func) NbParameters() int { return f.nbParams }

func (f *Func) Execute(args, params []float64) float64 { return f.fn(args, params) }

// Set is an ordered instruction catalog. Lines reference instructions by
// their index in the set.
type Set struct {
	items  []Instruction
	byName map[string]int
}

func NewSet(items ...Instruction) (*Set, error) {
	s := &Set{byName: make(map[string]int, len(items))}
	for _, item := range items {
		if err := s.Add(item); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Set) Add(item Instruction) error {
	if item == nil {
		return errors.New("instruction is required")
	}
	if item.Name() == "" {
		return errors.New("instruction name is required")
	}
	for i, t := range item.OperandTypes() {
		if !t.Valid() {
			return fmt.Errorf("instruction %s: operand %d has invalid type %s", item.Name(), i, t)
		}
	}
	if item.NbParameters() < 0 {
		return fmt.Errorf("instruction %s: negative parameter count", item.Name())
	}
	if _, exists := s.byName[item.Name()]; exists {
		return fmt.Errorf("%w: %s", ErrInstructionExists, item.Name())
	}
	s.byName[item.Name()] = len(s.items)
	s.items = append(s.items, item)
	return nil
}

func (s *Set) Len() int {
	return len(s.items)
}

func (s *Set) At(i int) Instruction {
	return s.items[i]
}

// Index returns the position of the named instruction.
func (s *Set) Index(name string) (int, bool) {
	i, ok := s.byName[name]
	return i, ok
}

func (s *Set) Names() []string {
	out := make([]string, len(s.items))
	for i, item := range s.items {
		out[i] = item.Name()
	}
	return out
}

// MaxOperands is the widest operand list of the set; every line reserves
// that many operand slots.
func (s *Set) MaxOperands() int {
	max := 0
	for _, item := range s.items {
		if n := len(item.OperandTypes()); n > max {
			max = n
		}
	}
	return max
}

func (s *Set) MaxParameters() int {
	max := 0
	for _, item := range s.items {
		if n := item.NbParameters(); n > max {
			max = n
		}
	}
	return max
}
