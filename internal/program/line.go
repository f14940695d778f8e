package program

// Operand addresses one element of a source: registers, constants or an
// environment data source.
type Operand struct {
	Source   int `json:"source"`
	Location int `json:"location"`
}

// Line is one register-machine instruction. Operands and Params always hold
// the environment's maximum arity; only the prefix used by the instruction
// is read.
type Line struct {
	Instruction int       `json:"instruction"`
	Destination int       `json:"destination"`
	Operands    []Operand `json:"operands"`
	Params      []float64 `json:"params,omitempty"`
}

// NewLine returns a zeroed line sized for env.
func NewLine(env *Environment) Line {
	return Line{
		Operands: make([]Operand, env.MaxOperands()),
		Params:   make([]float64, env.MaxParameters()),
	}
}

func (l Line) Clone() Line {
	return Line{
		Instruction: l.Instruction,
		Destination: l.Destination,
		Operands:    append([]Operand(nil), l.Operands...),
		Params:      append([]float64(nil), l.Params...),
	}
}

func (l Line) Equal(o Line) bool {
	if l.Instruction != o.Instruction || l.Destination != o.Destination ||
		len(l.Operands) != len(o.Operands) || len(l.Params) != len(o.Params) {
		return false
	}
	for i := range l.Operands {
		if l.Operands[i] != o.Operands[i] {
			return false
		}
	}
	for i := range l.Params {
		if l.Params[i] != o.Params[i] {
			return false
		}
	}
	return true
}
