package mutator

import (
	"tangled/internal/data"
	"tangled/internal/program"
	"tangled/internal/rng"
)

// InitRandomLine draws a valid line: random instruction and destination,
// operands addressable for the instruction's types and parameters within
// the configured bounds. Slots beyond the instruction arity get valid
// float64 addresses so that a later instruction change can reuse them.
func InitRandomLine(env *program.Environment, params ProgramParameters, r *rng.RNG) program.Line {
	l := program.NewLine(env)
	l.Instruction = r.Int(0, env.Instructions().Len()-1)
	l.Destination = r.Int(0, env.NbRegisters()-1)
	for k := range l.Operands {
		l.Operands[k] = randomOperand(env, operandType(env, l.Instruction, k), r)
	}
	for k := range l.Params {
		l.Params[k] = r.Float64(params.MinParamValue, params.MaxParamValue)
	}
	return l
}

// AlterLine returns a copy of l with one randomly chosen field redrawn: the
// instruction, the destination, one operand or one parameter. A new
// instruction keeps the operands that stay addressable and redraws the
// others.
func AlterLine(env *program.Environment, l program.Line, params ProgramParameters, r *rng.RNG) program.Line {
	out := l.Clone()
	nbFields := 2 + len(out.Operands) + len(out.Params)
	field := r.Int(0, nbFields-1)
	switch {
	case field == 0:
		out.Instruction = redraw(out.Instruction, env.Instructions().Len(), r)
		for k := range out.Operands {
			t := operandType(env, out.Instruction, k)
			op := out.Operands[k]
			if op.Location >= env.AddressSpace(op.Source, t) {
				out.Operands[k] = randomOperand(env, t, r)
			}
		}
	case field == 1:
		out.Destination = redraw(out.Destination, env.NbRegisters(), r)
	case field < 2+len(out.Operands):
		k := field - 2
		out.Operands[k] = randomOperand(env, operandType(env, out.Instruction, k), r)
	default:
		k := field - 2 - len(out.Operands)
		out.Params[k] = r.Float64(params.MinParamValue, params.MaxParamValue)
	}
	return out
}

// redraw picks a value in [0, n) different from cur when n > 1.
func redraw(cur, n int, r *rng.RNG) int {
	if n <= 1 {
		return 0
	}
	v := r.Int(0, n-2)
	if v >= cur {
		v++
	}
	return v
}

func operandType(env *program.Environment, instruction, k int) data.ElementType {
	types := env.Instructions().At(instruction).OperandTypes()
	if k < len(types) {
		return types[k]
	}
	return data.Float64
}

func randomOperand(env *program.Environment, t data.ElementType, r *rng.RNG) program.Operand {
	sources := env.SourcesFor(t)
	src := sources[r.Int(0, len(sources)-1)]
	return program.Operand{
		Source:   src,
		Location: r.Int(0, env.AddressSpace(src, t)-1),
	}
}
