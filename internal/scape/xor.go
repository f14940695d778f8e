package scape

import (
	"tangled/internal/data"
	"tangled/internal/learn"
)

// XOR is a classification scape: each step shows two bits and the policy
// answers with action 0 or 1. An episode walks the case sequence of its
// mode once.
type XOR struct {
	input   *data.PrimitiveArray
	cases   []xorCase
	next    int
	correct int
}

var _ learn.Environment = (*XOR)(nil)

type xorCase struct {
	in   [2]float64
	want uint64
}

var xorTruthTable = [4]xorCase{
	{in: [2]float64{0, 0}, want: 0},
	{in: [2]float64{0, 1}, want: 1},
	{in: [2]float64{1, 0}, want: 1},
	{in: [2]float64{1, 1}, want: 0},
}

func xorCasesForMode(mode learn.Mode, iteration uint64) []xorCase {
	b := xorTruthTable
	switch mode {
	case learn.Validation:
		return []xorCase{b[1], b[2], b[0], b[3], b[1], b[2]}
	case learn.Testing:
		return []xorCase{b[3], b[2], b[1], b[0], b[3], b[0], b[2], b[1]}
	default:
		// Rotate the truth table so that iterations disagree on order.
		out := make([]xorCase, len(b))
		for i := range b {
			out[i] = b[(uint64(i)+iteration)%uint64(len(b))]
		}
		return out
	}
}

func NewXOR() *XOR {
	return &XOR{input: data.NewPrimitiveArray(data.Float64, 2)}
}

func (x *XOR) NbActions() int { return 2 }

func (x *XOR) DataSources() []data.Source { return []data.Source{x.input} }

func (x *XOR) Reset(_ uint64, mode learn.Mode, iteration, _ uint64) {
	x.cases = xorCasesForMode(mode, iteration)
	x.next = 0
	x.correct = 0
	x.show()
}

func (x *XOR) DoAction(actionID uint64) {
	if x.IsTerminal() {
		return
	}
	if actionID == x.cases[x.next].want {
		x.correct++
	}
	x.next++
	x.show()
}

// Score is the fraction of cases answered correctly so far.
func (x *XOR) Score() float64 {
	if len(x.cases) == 0 {
		return 0
	}
	return float64(x.correct) / float64(len(x.cases))
}

func (x *XOR) IsTerminal() bool { return x.next >= len(x.cases) }

func (x *XOR) Clone() learn.Environment {
	cp := *x
	cp.input = x.input.Clone().(*data.PrimitiveArray)
	cp.cases = append([]xorCase(nil), x.cases...)
	return &cp
}

func (x *XOR) show() {
	if x.IsTerminal() {
		return
	}
	c := x.cases[x.next]
	x.input.Set(0, c.in[0])
	x.input.Set(1, c.in[1])
}
