// Package program implements the register-machine programs carried by graph
// edges and their interpreter.
package program

import (
	"errors"
	"fmt"

	"tangled/internal/data"
	"tangled/internal/instructions"
)

// Operand source indexes. Environment data sources follow the constants.
const (
	RegistersSource = 0
	ConstantsSource = 1
	firstDataSource = 2
)

var ErrInvalidLine = errors.New("invalid program line")

// Environment is the execution context shared by all programs of a graph:
// instruction set, register file size, constant bank size and the shapes
// of the external data sources.
type Environment struct {
	set         *instructions.Set
	shapes      []data.Shape
	nbRegisters int
	nbConstants int
	maxOperands int
	maxParams   int
}

func NewEnvironment(set *instructions.Set, shapes []data.Shape, nbRegisters, nbConstants int) (*Environment, error) {
	if set == nil || set.Len() == 0 {
		return nil, errors.New("instruction set is required")
	}
	if nbRegisters <= 0 {
		return nil, fmt.Errorf("register count must be > 0, got %d", nbRegisters)
	}
	if nbConstants < 0 {
		return nil, fmt.Errorf("constant count must be >= 0, got %d", nbConstants)
	}
	for i, shape := range shapes {
		if !shape.Type.Valid() {
			return nil, fmt.Errorf("data source %d has invalid element type", i)
		}
		if shape.Size <= 0 {
			return nil, fmt.Errorf("data source %d has no elements", i)
		}
	}
	env := &Environment{
		set:         set,
		shapes:      append([]data.Shape(nil), shapes...),
		nbRegisters: nbRegisters,
		nbConstants: nbConstants,
		maxOperands: set.MaxOperands(),
		maxParams:   set.MaxParameters(),
	}
	for i := 0; i < set.Len(); i++ {
		item := set.At(i)
		for k, t := range item.OperandTypes() {
			if len(env.SourcesFor(t)) == 0 {
				return nil, fmt.Errorf("instruction %s: no source can provide operand %d of type %s", item.Name(), k, t)
			}
		}
	}
	return env, nil
}

func (e *Environment) Instructions() *instructions.Set { return e.set }

func (e *Environment) NbRegisters() int { return e.nbRegisters }

func (e *Environment) NbConstants() int { return e.nbConstants }

func (e *Environment) MaxOperands() int { return e.maxOperands }

func (e *Environment) MaxParameters() int { return e.maxParams }

func (e *Environment) Shapes() []data.Shape {
	return append([]data.Shape(nil), e.shapes...)
}

// NbSources counts registers, constants and data sources.
func (e *Environment) NbSources() int {
	return firstDataSource + len(e.shapes)
}

// AddressSpace returns how many elements of type t the source exposes.
func (e *Environment) AddressSpace(source int, t data.ElementType) int {
	switch {
	case source == RegistersSource:
		if t == data.Float64 {
			return e.nbRegisters
		}
		return 0
	case source == ConstantsSource:
		return data.Shape{Type: data.Int32, Size: e.nbConstants}.AddressSpace(t)
	case source >= firstDataSource && source < e.NbSources():
		return e.shapes[source-firstDataSource].AddressSpace(t)
	default:
		return 0
	}
}

// SourcesFor lists the source indexes able to provide an operand of type t.
func (e *Environment) SourcesFor(t data.ElementType) []int {
	var out []int
	for s := 0; s < e.NbSources(); s++ {
		if e.AddressSpace(s, t) > 0 {
			out = append(out, s)
		}
	}
	return out
}

// Compatible reports whether sources match the data source shapes.
func (e *Environment) Compatible(sources []data.Source) error {
	if len(sources) != len(e.shapes) {
		return fmt.Errorf("expected %d data sources, got %d", len(e.shapes), len(sources))
	}
	for i, src := range sources {
		if src.Shape() != e.shapes[i] {
			return fmt.Errorf("data source %d shape %+v does not match %+v", i, src.Shape(), e.shapes[i])
		}
	}
	return nil
}

// ValidateLine checks every field of l against the environment.
func (e *Environment) ValidateLine(l Line) error {
	if l.Instruction < 0 || l.Instruction >= e.set.Len() {
		return fmt.Errorf("%w: instruction %d out of range", ErrInvalidLine, l.Instruction)
	}
	if l.Destination < 0 || l.Destination >= e.nbRegisters {
		return fmt.Errorf("%w: destination %d out of range", ErrInvalidLine, l.Destination)
	}
	if len(l.Operands) != e.maxOperands || len(l.Params) != e.maxParams {
		return fmt.Errorf("%w: line has %d operands and %d parameters, want %d and %d",
			ErrInvalidLine, len(l.Operands), len(l.Params), e.maxOperands, e.maxParams)
	}
	for k, t := range e.set.At(l.Instruction).OperandTypes() {
		op := l.Operands[k]
		if op.Location < 0 || op.Location >= e.AddressSpace(op.Source, t) {
			return fmt.Errorf("%w: operand %d (source %d, location %d) not addressable as %s",
				ErrInvalidLine, k, op.Source, op.Location, t)
		}
	}
	return nil
}
