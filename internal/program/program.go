package program

import (
	"fmt"
)

// Program is an ordered list of lines plus a constant bank. Edges share
// programs by pointer; a program reachable from more than one edge must be
// cloned before it is mutated.
type Program struct {
	env       *Environment
	lines     []Line
	introns   []bool
	constants []int32
}

func New(env *Environment) *Program {
	return &Program{
		env:       env,
		constants: make([]int32, env.NbConstants()),
	}
}

func (p *Program) Environment() *Environment {
	return p.env
}

func (p *Program) NbLines() int {
	return len(p.lines)
}

// Line returns a copy of line i.
func (p *Program) Line(i int) Line {
	return p.lines[i].Clone()
}

func (p *Program) Lines() []Line {
	out := make([]Line, len(p.lines))
	for i, l := range p.lines {
		out[i] = l.Clone()
	}
	return out
}

// InsertLine validates l and inserts it at index at (0 <= at <= NbLines).
func (p *Program) InsertLine(at int, l Line) error {
	if at < 0 || at > len(p.lines) {
		return fmt.Errorf("insert index %d out of range [0, %d]", at, len(p.lines))
	}
	if err := p.env.ValidateLine(l); err != nil {
		return err
	}
	p.lines = append(p.lines, Line{})
	copy(p.lines[at+1:], p.lines[at:])
	p.lines[at] = l.Clone()
	p.IdentifyIntrons()
	return nil
}

// AppendLine inserts l after the last line.
func (p *Program) AppendLine(l Line) error {
	return p.InsertLine(len(p.lines), l)
}

// SetLine replaces line i after validating the replacement.
func (p *Program) SetLine(i int, l Line) error {
	if i < 0 || i >= len(p.lines) {
		return fmt.Errorf("line index %d out of range", i)
	}
	if err := p.env.ValidateLine(l); err != nil {
		return err
	}
	p.lines[i] = l.Clone()
	p.IdentifyIntrons()
	return nil
}

func (p *Program) RemoveLine(i int) error {
	if i < 0 || i >= len(p.lines) {
		return fmt.Errorf("line index %d out of range", i)
	}
	p.lines = append(p.lines[:i], p.lines[i+1:]...)
	p.IdentifyIntrons()
	return nil
}

func (p *Program) SwapLines(i, j int) error {
	if i < 0 || i >= len(p.lines) || j < 0 || j >= len(p.lines) {
		return fmt.Errorf("swap indexes %d,%d out of range", i, j)
	}
	p.lines[i], p.lines[j] = p.lines[j], p.lines[i]
	p.IdentifyIntrons()
	return nil
}

// Clear removes every line; constants are kept.
func (p *Program) Clear() {
	p.lines = nil
	p.introns = nil
}

func (p *Program) Constant(i int) int32 {
	return p.constants[i]
}

func (p *Program) SetConstant(i int, v int32) error {
	if i < 0 || i >= len(p.constants) {
		return fmt.Errorf("constant index %d out of range", i)
	}
	p.constants[i] = v
	return nil
}

func (p *Program) Constants() []int32 {
	return append([]int32(nil), p.constants...)
}

// IsIntron reports whether line i cannot influence the output register.
func (p *Program) IsIntron(i int) bool {
	return p.introns[i]
}

func (p *Program) NbIntrons() int {
	n := 0
	for _, intron := range p.introns {
		if intron {
			n++
		}
	}
	return n
}

// IdentifyIntrons recomputes intron flags by backward liveness analysis
// from register 0.
func (p *Program) IdentifyIntrons() {
	if cap(p.introns) >= len(p.lines) {
		p.introns = p.introns[:len(p.lines)]
	} else {
		p.introns = make([]bool, len(p.lines))
	}
	live := make([]bool, p.env.NbRegisters())
	live[0] = true
	for i := len(p.lines) - 1; i >= 0; i-- {
		l := p.lines[i]
		if !live[l.Destination] {
			p.introns[i] = true
			continue
		}
		p.introns[i] = false
		live[l.Destination] = false
		for k := range p.env.Instructions().At(l.Instruction).OperandTypes() {
			if op := l.Operands[k]; op.Source == RegistersSource {
				live[op.Location] = true
			}
		}
	}
}

// Clone returns an independent deep copy sharing only the environment.
func (p *Program) Clone() *Program {
	c := &Program{
		env:       p.env,
		lines:     make([]Line, len(p.lines)),
		introns:   append([]bool(nil), p.introns...),
		constants: append([]int32(nil), p.constants...),
	}
	for i, l := range p.lines {
		c.lines[i] = l.Clone()
	}
	return c
}

// Equal compares lines and constants.
func (p *Program) Equal(o *Program) bool {
	if len(p.lines) != len(o.lines) || len(p.constants) != len(o.constants) {
		return false
	}
	for i := range p.lines {
		if !p.lines[i].Equal(o.lines[i]) {
			return false
		}
	}
	for i := range p.constants {
		if p.constants[i] != o.constants[i] {
			return false
		}
	}
	return true
}
