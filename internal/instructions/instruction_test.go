package instructions

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tangled/internal/data"
)

func TestBuiltinsRegistered(t *testing.T) {
	for _, name := range []string{"add", "sub", "mul", "div", "max", "min", "exp", "ln", "cos", "sin", "neg", "mult_by_const", "add_int", "sub_int", "mul_int", "cond"} {
		_, err := Lookup(name)
		require.NoError(t, err, name)
	}
	_, err := Lookup("nope")
	require.True(t, errors.Is(err, ErrInstructionNotFound))
}

func TestBuiltinSemantics(t *testing.T) {
	cases := []struct {
		name   string
		args   []float64
		params []float64
		want   float64
	}{
		{"add", []float64{1, 2}, nil, 3},
		{"sub", []float64{1, 2}, nil, -1},
		{"mul", []float64{3, 2}, nil, 6},
		{"div", []float64{3, 2}, nil, 1.5},
		{"max", []float64{3, 7}, nil, 7},
		{"min", []float64{3, 7}, nil, 3},
		{"neg", []float64{3}, nil, -3},
		{"mult_by_const", []float64{3}, []float64{0.5}, 1.5},
		{"add_int", []float64{math.MaxInt32, 1}, nil, math.MinInt32},
		{"mul_int", []float64{-3, 4}, nil, -12},
		{"cond", []float64{1, 5, 6}, nil, 5},
		{"cond", []float64{-1, 5, 6}, nil, 6},
	}
	for _, tc := range cases {
		item, err := Lookup(tc.name)
		require.NoError(t, err)
		assert.Equal(t, tc.want, item.Execute(tc.args, tc.params), tc.name)
	}
}

func TestSetFromNames(t *testing.T) {
	set, err := NewSetFromNames([]string{"add", "cond", "mult_by_const"})
	require.NoError(t, err)
	require.Equal(t, 3, set.Len())
	require.Equal(t, 3, set.MaxOperands())
	require.Equal(t, 1, set.MaxParameters())
	idx, ok := set.Index("cond")
	require.True(t, ok)
	require.Equal(t, 1, idx)
	require.Equal(t, []string{"add", "cond", "mult_by_const"}, set.Names())

	defaults, err := NewSetFromNames(nil)
	require.NoError(t, err)
	require.Equal(t, DefaultNames(), defaults.Names())
}

func TestSetRejectsDuplicates(t *testing.T) {
	add, err := Lookup("add")
	require.NoError(t, err)
	_, err = NewSet(add, add)
	require.True(t, errors.Is(err, ErrInstructionExists))
}

func TestSetRejectsInvalidOperandType(t *testing.T) {
	bad := NewFunc("bad", []data.ElementType{data.ElementType(42)}, 0, func(a, _ []float64) float64 { return a[0] })
	_, err := NewSet(bad)
	require.Error(t, err)
}
