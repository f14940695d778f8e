// Package data defines the read-only data sources programs address.
package data

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"
)

// ElementType is the closed set of element types an operand may decode.
type ElementType uint8

const (
	Float64 ElementType = iota
	Int32
)

var elementTypeNames = [...]string{
	Float64: "float64",
	Int32:   "int32",
}

func (t ElementType) String() string {
	if int(t) < len(elementTypeNames) {
		return elementTypeNames[t]
	}
	return fmt.Sprintf("element(%d)", uint8(t))
}

// Valid reports whether t belongs to the closed enumeration.
func (t ElementType) Valid() bool {
	return int(t) < len(elementTypeNames)
}

// ParseElementType maps a configuration name to its ElementType.
func ParseElementType(name string) (ElementType, error) {
	for i, n := range elementTypeNames {
		if n == name {
			return ElementType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown element type: %s", name)
}

func (t ElementType) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("unknown element type %d", uint8(t))
	}
	return []byte(t.String()), nil
}

func (t *ElementType) UnmarshalText(text []byte) error {
	v, err := ParseElementType(string(text))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Shape describes the addressable layout of a source.
type Shape struct {
	Type ElementType `json:"type" yaml:"type"`
	Size int         `json:"size" yaml:"size"`
}

// AddressSpace returns the number of addresses of type t exposed by a
// source with this shape. Int32 elements widen to Float64 reads; the
// reverse is not addressable.
func (s Shape) AddressSpace(t ElementType) int {
	switch {
	case s.Type == t:
		return s.Size
	case t == Float64 && s.Type == Int32:
		return s.Size
	default:
		return 0
	}
}

// Source is an addressable, hashable view over environment or program state.
type Source interface {
	Shape() Shape
	At(t ElementType, address int) float64
	Hash() uint64
	Clone() Source
}

// HashSources combines the hashes of several sources in order.
func HashSources(sources []Source) uint64 {
	d := xxhash.New()
	var buf [8]byte
	for _, src := range sources {
		binary.LittleEndian.PutUint64(buf[:], src.Hash())
		_, _ = d.Write(buf[:])
	}
	return d.Sum64()
}

// CloneSources deep-copies a tuple of sources.
func CloneSources(sources []Source) []Source {
	out := make([]Source, len(sources))
	for i, src := range sources {
		out[i] = src.Clone()
	}
	return out
}

// Shapes returns the shape of every source.
func Shapes(sources []Source) []Shape {
	out := make([]Shape, len(sources))
	for i, src := range sources {
		out[i] = src.Shape()
	}
	return out
}

// PrimitiveArray is a fixed-size array of one element type.
type PrimitiveArray struct {
	typ    ElementType
	values []float64
}

func NewPrimitiveArray(t ElementType, size int) *PrimitiveArray {
	return &PrimitiveArray{typ: t, values: make([]float64, size)}
}

// NewFloat64Array wraps a copy of values.
func NewFloat64Array(values ...float64) *PrimitiveArray {
	return &PrimitiveArray{typ: Float64, values: append([]float64(nil), values...)}
}

func NewInt32Array(values ...int32) *PrimitiveArray {
	a := NewPrimitiveArray(Int32, len(values))
	for i, v := range values {
		a.values[i] = float64(v)
	}
	return a
}

func (a *PrimitiveArray) Shape() Shape {
	return Shape{Type: a.typ, Size: len(a.values)}
}

func (a *PrimitiveArray) Len() int {
	return len(a.values)
}

func (a *PrimitiveArray) At(_ ElementType, address int) float64 {
	return a.values[address]
}

// Set stores v at address, truncating to int32 for Int32 arrays.
func (a *PrimitiveArray) Set(address int, v float64) {
	if a.typ == Int32 {
		v = float64(int32(v))
	}
	a.values[address] = v
}

// Fill overwrites the whole array.
func (a *PrimitiveArray) Fill(v float64) {
	for i := range a.values {
		a.Set(i, v)
	}
}

func (a *PrimitiveArray) Values() []float64 {
	return append([]float64(nil), a.values...)
}

func (a *PrimitiveArray) Hash() uint64 {
	d := xxhash.New()
	var buf [8]byte
	buf[0] = byte(a.typ)
	_, _ = d.Write(buf[:1])
	for _, v := range a.values {
		if v == 0 {
			v = 0 // fold -0
		}
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		_, _ = d.Write(buf[:])
	}
	return d.Sum64()
}

func (a *PrimitiveArray) Clone() Source {
	return &PrimitiveArray{typ: a.typ, values: append([]float64(nil), a.values...)}
}
