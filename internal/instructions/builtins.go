package instructions

import (
	"math"

	"tangled/internal/data"
)

var (
	binaryFloat  = []data.ElementType{data.Float64, data.Float64}
	unaryFloat   = []data.ElementType{data.Float64}
	binaryInt    = []data.ElementType{data.Int32, data.Int32}
	ternaryFloat = []data.ElementType{data.Float64, data.Float64, data.Float64}
)

func builtins() []Instruction {
	return []Instruction{
		NewFunc("add", binaryFloat, 0, func(a, _ []float64) float64 { return a[0] + a[1] }),
		NewFunc("sub", binaryFloat, 0, func(a, _ []float64) float64 { return a[0] - a[1] }),
		NewFunc("mul", binaryFloat, 0, func(a, _ []float64) float64 { return a[0] * a[1] }),
		NewFunc("div", binaryFloat, 0, func(a, _ []float64) float64 { return a[0] / a[1] }),
		NewFunc("max", binaryFloat, 0, func(a, _ []float64) float64 { return math.Max(a[0], a[1]) }),
		NewFunc("min", binaryFloat, 0, func(a, _ []float64) float64 { return math.Min(a[0], a[1]) }),
		NewFunc("exp", unaryFloat, 0, func(a, _ []float64) float64 { return math.Exp(a[0]) }),
		NewFunc("ln", unaryFloat, 0, func(a, _ []float64) float64 { return math.Log(a[0]) }),
		NewFunc("cos", unaryFloat, 0, func(a, _ []float64) float64 { return math.Cos(a[0]) }),
		NewFunc("sin", unaryFloat, 0, func(a, _ []float64) float64 { return math.Sin(a[0]) }),
		NewFunc("neg", unaryFloat, 0, func(a, _ []float64) float64 { return -a[0] }),
		NewFunc("mult_by_const", unaryFloat, 1, func(a, p []float64) float64 { return a[0] * p[0] }),
		NewFunc("add_int", binaryInt, 0, func(a, _ []float64) float64 { return float64(int32(a[0]) + int32(a[1])) }),
		NewFunc("sub_int", binaryInt, 0, func(a, _ []float64) float64 { return float64(int32(a[0]) - int32(a[1])) }),
		NewFunc("mul_int", binaryInt, 0, func(a, _ []float64) float64 { return float64(int32(a[0]) * int32(a[1])) }),
		NewFunc("cond", ternaryFloat, 0, func(a, _ []float64) float64 {
			if a[0] > 0 {
				return a[1]
			}
			return a[2]
		}),
	}
}

// DefaultNames is the instruction list used when a configuration names none.
func DefaultNames() []string {
	return []string{"add", "sub", "mul", "div", "max", "exp", "ln", "cos", "mult_by_const"}
}
