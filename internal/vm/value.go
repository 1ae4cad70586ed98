// internal/vm/value.go
package vm

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/Cryptex-github/Terbium/internal/bytecode"
	"github.com/Cryptex-github/Terbium/internal/parser"
)

// Kind is the dynamic type of a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindInt
	KindFloat
	KindBool
	KindString
	KindFunction
	KindArray
	KindRange

	// Never visible to programs.
	kindCell
	kindIterator
)

var kindNames = [...]string{
	KindNull:     "null",
	KindInt:      "int",
	KindFloat:    "float",
	KindBool:     "bool",
	KindString:   "string",
	KindFunction: "function",
	KindArray:    "array",
	KindRange:    "range",
	kindCell:     "cell",
	kindIterator: "iterator",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Value is a Terbium runtime value. Primitives are stored inline; arrays,
// ranges and functions are shared by reference.
type Value struct {
	kind Kind
	n    uint64
	s    string
	ref  interface{}
}

// Array is a mutable, growable sequence shared by every value that refers
// to it.
type Array struct {
	Elements []Value
}

// Range is the half-open integer interval [Start, End).
type Range struct {
	Start int64
	End   int64
}

// Len returns the number of integers in the range.
func (r *Range) Len() int64 {
	if r.End <= r.Start {
		return 0
	}
	return r.End - r.Start
}

// Closure is a compiled function together with the cells it captured.
type Closure struct {
	Fn    *bytecode.Function
	Index int
	Free  []*Cell
}

// Builtin is a native function. Arity -1 accepts any number of arguments.
type Builtin struct {
	Name  string
	Arity int
	Fn    func(vm *VM, args []Value) (Value, error)
}

// Cell boxes a captured local so that every closure sharing it sees writes.
type Cell struct {
	Value Value
}

func Null() Value           { return Value{} }
func Int(i int64) Value     { return Value{kind: KindInt, n: uint64(i)} }
func Float(f float64) Value { return Value{kind: KindFloat, n: math.Float64bits(f)} }
func String(s string) Value { return Value{kind: KindString, s: s} }

func Bool(b bool) Value {
	if b {
		return Value{kind: KindBool, n: 1}
	}
	return Value{kind: KindBool}
}

// NewArray returns an array value holding elems.
func NewArray(elems ...Value) Value {
	return Value{kind: KindArray, ref: &Array{Elements: elems}}
}

func NewRange(start, end int64) Value {
	return Value{kind: KindRange, ref: &Range{Start: start, End: end}}
}

func closureValue(c *Closure) Value { return Value{kind: KindFunction, ref: c} }
func builtinValue(b *Builtin) Value { return Value{kind: KindFunction, ref: b} }
func cellValue(c *Cell) Value       { return Value{kind: kindCell, ref: c} }

func (v Value) Kind() Kind       { return v.kind }
func (v Value) IsNull() bool     { return v.kind == KindNull }
func (v Value) AsInt() int64     { return int64(v.n) }
func (v Value) AsFloat() float64 { return math.Float64frombits(v.n) }
func (v Value) AsBool() bool     { return v.n != 0 }
func (v Value) AsString() string { return v.s }

// AsArray returns the array v refers to, or nil.
func (v Value) AsArray() *Array {
	a, _ := v.ref.(*Array)
	return a
}

// AsRange returns the range v refers to, or nil.
func (v Value) AsRange() *Range {
	r, _ := v.ref.(*Range)
	return r
}

// FunctionName returns the name of a function value.
func (v Value) FunctionName() string {
	switch f := v.ref.(type) {
	case *Closure:
		return f.Fn.Name
	case *Builtin:
		return f.Name
	}
	return ""
}

func (v Value) isNumber() bool {
	return v.kind == KindInt || v.kind == KindFloat
}

// number widens an Int or Float to float64.
func (v Value) number() float64 {
	if v.kind == KindInt {
		return float64(v.AsInt())
	}
	return v.AsFloat()
}

// constantValue converts a constant pool entry.
func constantValue(c bytecode.Constant) Value {
	switch c.Kind {
	case bytecode.ConstInt:
		return Int(c.Int)
	case bytecode.ConstFloat:
		return Float(c.Float)
	case bytecode.ConstString:
		return String(c.Str)
	case bytecode.ConstBool:
		return Bool(c.Bool)
	}
	panic(internalf("constant of unknown kind %d", c.Kind))
}

// ValueType returns the name the type builtin reports for val.
func ValueType(val Value) string {
	return val.kind.String()
}

// Equal reports whether a and b are equal under ==. Ints and floats
// compare numerically, arrays and functions by identity, ranges by bounds.
func Equal(a, b Value) bool {
	if a.isNumber() && b.isNumber() {
		if a.kind == KindInt && b.kind == KindInt {
			return a.AsInt() == b.AsInt()
		}
		return a.number() == b.number()
	}
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindBool:
		return a.n == b.n
	case KindString:
		return a.s == b.s
	case KindRange:
		ra, rb := a.AsRange(), b.AsRange()
		return ra.Start == rb.Start && ra.End == rb.End
	}
	return a.ref == b.ref
}

// ToString converts a value to the text print and str produce. Strings
// nested in arrays are quoted.
func ToString(val Value) string {
	var sb strings.Builder
	format(&sb, val, false, nil)
	return sb.String()
}

func (v Value) String() string {
	return ToString(v)
}

func format(sb *strings.Builder, v Value, quote bool, seen map[*Array]bool) {
	switch v.kind {
	case KindNull:
		sb.WriteString("null")
	case KindInt:
		sb.WriteString(strconv.FormatInt(v.AsInt(), 10))
	case KindFloat:
		sb.WriteString(parser.FormatFloat(v.AsFloat()))
	case KindBool:
		sb.WriteString(strconv.FormatBool(v.AsBool()))
	case KindString:
		if quote {
			sb.WriteString(strconv.Quote(v.s))
		} else {
			sb.WriteString(v.s)
		}
	case KindRange:
		r := v.AsRange()
		fmt.Fprintf(sb, "%d..%d", r.Start, r.End)
	case KindArray:
		a := v.AsArray()
		if seen[a] {
			sb.WriteString("[...]")
			return
		}
		if seen == nil {
			seen = make(map[*Array]bool)
		}
		seen[a] = true
		sb.WriteByte('[')
		for i, el := range a.Elements {
			if i > 0 {
				sb.WriteString(", ")
			}
			format(sb, el, true, seen)
		}
		sb.WriteByte(']')
		delete(seen, a)
	case KindFunction:
		switch f := v.ref.(type) {
		case *Closure:
			fmt.Fprintf(sb, "<fn %s>", f.Fn.Name)
		case *Builtin:
			fmt.Fprintf(sb, "<native %s>", f.Name)
		}
	default:
		fmt.Fprintf(sb, "<%s>", v.kind)
	}
}

// iterator walks a range, an array or the runes of a string.
type iterator struct {
	next func() (Value, bool)
}

func iteratorValue(it *iterator) Value { return Value{kind: kindIterator, ref: it} }

func newIterator(v Value) (*iterator, error) {
	switch v.kind {
	case KindRange:
		r := *v.AsRange()
		i := r.Start
		return &iterator{next: func() (Value, bool) {
			if i >= r.End {
				return Value{}, false
			}
			i++
			return Int(i - 1), true
		}}, nil
	case KindArray:
		a := v.AsArray()
		i := 0
		// The array may grow or shrink while it is iterated.
		return &iterator{next: func() (Value, bool) {
			if i >= len(a.Elements) {
				return Value{}, false
			}
			i++
			return a.Elements[i-1], true
		}}, nil
	case KindString:
		runes := []rune(v.s)
		i := 0
		return &iterator{next: func() (Value, bool) {
			if i >= len(runes) {
				return Value{}, false
			}
			i++
			return String(string(runes[i-1])), true
		}}, nil
	}
	return nil, trapf(TypeError, "cannot iterate over %s", v.kind)
}
