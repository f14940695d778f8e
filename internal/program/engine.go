package program

import (
	"tangled/internal/data"
)

// Engine interprets programs. It owns a scratch register file and is not
// safe for concurrent use; run one Engine per goroutine.
type Engine struct {
	env       *Environment
	registers []float64
	args      []float64
}

func NewEngine(env *Environment) *Engine {
	return &Engine{
		env:       env,
		registers: make([]float64, env.NbRegisters()),
		args:      make([]float64, env.MaxOperands()),
	}
}

// Execute runs every non-intron line of p against sources and returns
// register 0. sources must match the environment shapes.
func (e *Engine) Execute(p *Program, sources []data.Source) float64 {
	clear(e.registers)
	set := e.env.Instructions()
	for i, l := range p.lines {
		if p.introns[i] {
			continue
		}
		item := set.At(l.Instruction)
		types := item.OperandTypes()
		args := e.args[:len(types)]
		for k, t := range types {
			args[k] = e.fetch(p, sources, l.Operands[k], t)
		}
		e.registers[l.Destination] = item.Execute(args, l.Params[:item.NbParameters()])
	}
	return e.registers[0]
}

func (e *Engine) fetch(p *Program, sources []data.Source, op Operand, t data.ElementType) float64 {
	switch op.Source {
	case RegistersSource:
		return e.registers[op.Location]
	case ConstantsSource:
		return float64(p.constants[op.Location])
	default:
		return sources[op.Source-firstDataSource].At(t, op.Location)
	}
}
