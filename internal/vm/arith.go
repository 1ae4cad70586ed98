package vm

import (
	"math"

	"golang.org/x/exp/constraints"

	"github.com/Cryptex-github/Terbium/internal/bytecode"
)

var opSymbols = map[bytecode.OpCode]string{
	bytecode.OpAdd:          "+",
	bytecode.OpSub:          "-",
	bytecode.OpMul:          "*",
	bytecode.OpDiv:          "/",
	bytecode.OpMod:          "%",
	bytecode.OpPow:          "**",
	bytecode.OpBitAnd:       "&",
	bytecode.OpBitOr:        "|",
	bytecode.OpBitXor:       "^",
	bytecode.OpShl:          "<<",
	bytecode.OpShr:          ">>",
	bytecode.OpLess:         "<",
	bytecode.OpLessEqual:    "<=",
	bytecode.OpGreater:      ">",
	bytecode.OpGreaterEqual: ">=",
	bytecode.OpRange:        "..",
	bytecode.OpNegate:       "-",
	bytecode.OpPlus:         "+",
	bytecode.OpNot:          "!",
	bytecode.OpBitNot:       "~",
}

type number interface {
	constraints.Integer | constraints.Float
}

// arith applies +, -, * or / to two operands of the same numeric type.
// Integer results wrap around.
func arith[T number](op bytecode.OpCode, a, b T) T {
	switch op {
	case bytecode.OpAdd:
		return a + b
	case bytecode.OpSub:
		return a - b
	case bytecode.OpMul:
		return a * b
	case bytecode.OpDiv:
		return a / b
	}
	panic(internalf("%s is not an arithmetic operator", op))
}

func compare[T constraints.Ordered](op bytecode.OpCode, a, b T) bool {
	switch op {
	case bytecode.OpLess:
		return a < b
	case bytecode.OpLessEqual:
		return a <= b
	case bytecode.OpGreater:
		return a > b
	case bytecode.OpGreaterEqual:
		return a >= b
	}
	panic(internalf("%s is not a comparison operator", op))
}

func operandError(op bytecode.OpCode, a, b Value) error {
	return trapf(TypeError, "unsupported operand types for %s: %s and %s", opSymbols[op], a.kind, b.kind)
}

// binary evaluates an arithmetic, bitwise, comparison or range operator.
// Mixed Int and Float operands are promoted to Float.
func binary(op bytecode.OpCode, a, b Value) (Value, error) {
	switch op {
	case bytecode.OpAdd:
		if a.kind == KindString && b.kind == KindString {
			return String(a.s + b.s), nil
		}
		return numeric(op, a, b)
	case bytecode.OpSub, bytecode.OpMul, bytecode.OpDiv, bytecode.OpMod:
		return numeric(op, a, b)
	case bytecode.OpPow:
		return power(a, b)
	case bytecode.OpBitAnd, bytecode.OpBitOr, bytecode.OpBitXor, bytecode.OpShl, bytecode.OpShr:
		return bitwise(op, a, b)
	case bytecode.OpLess, bytecode.OpLessEqual, bytecode.OpGreater, bytecode.OpGreaterEqual:
		switch {
		case a.kind == KindInt && b.kind == KindInt:
			return Bool(compare(op, a.AsInt(), b.AsInt())), nil
		case a.isNumber() && b.isNumber():
			return Bool(compare(op, a.number(), b.number())), nil
		case a.kind == KindString && b.kind == KindString:
			return Bool(compare(op, a.s, b.s)), nil
		}
		return Value{}, trapf(TypeError, "cannot compare %s and %s", a.kind, b.kind)
	case bytecode.OpRange:
		if a.kind != KindInt || b.kind != KindInt {
			return Value{}, operandError(op, a, b)
		}
		return NewRange(a.AsInt(), b.AsInt()), nil
	}
	panic(internalf("%s is not a binary operator", op))
}

func numeric(op bytecode.OpCode, a, b Value) (Value, error) {
	if !a.isNumber() || !b.isNumber() {
		return Value{}, operandError(op, a, b)
	}
	if a.kind == KindInt && b.kind == KindInt {
		x, y := a.AsInt(), b.AsInt()
		if y == 0 && (op == bytecode.OpDiv || op == bytecode.OpMod) {
			return Value{}, zeroDivisor(op, "integer")
		}
		if op == bytecode.OpMod {
			return Int(x % y), nil
		}
		return Int(arith(op, x, y)), nil
	}
	x, y := a.number(), b.number()
	if y == 0 && (op == bytecode.OpDiv || op == bytecode.OpMod) {
		return Value{}, zeroDivisor(op, "float")
	}
	if op == bytecode.OpMod {
		return Float(math.Mod(x, y)), nil
	}
	return Float(arith(op, x, y)), nil
}

func zeroDivisor(op bytecode.OpCode, kind string) error {
	if op == bytecode.OpMod {
		return trapf(DivisionByZero, "%s modulo by zero", kind)
	}
	return trapf(DivisionByZero, "%s division by zero", kind)
}

// power computes a ** b. A non-negative Int exponent of an Int base stays
// Int (wrapping on overflow); everything else is Float.
func power(a, b Value) (Value, error) {
	if !a.isNumber() || !b.isNumber() {
		return Value{}, operandError(bytecode.OpPow, a, b)
	}
	if a.kind == KindInt && b.kind == KindInt && b.AsInt() >= 0 {
		base, exp := a.AsInt(), b.AsInt()
		result := int64(1)
		for exp > 0 {
			if exp&1 == 1 {
				result *= base
			}
			base *= base
			exp >>= 1
		}
		return Int(result), nil
	}
	return Float(math.Pow(a.number(), b.number())), nil
}

func bitwise(op bytecode.OpCode, a, b Value) (Value, error) {
	if a.kind != KindInt || b.kind != KindInt {
		return Value{}, operandError(op, a, b)
	}
	x, y := a.AsInt(), b.AsInt()
	switch op {
	case bytecode.OpBitAnd:
		return Int(x & y), nil
	case bytecode.OpBitOr:
		return Int(x | y), nil
	case bytecode.OpBitXor:
		return Int(x ^ y), nil
	}
	if y < 0 {
		return Value{}, trapf(InvalidOperation, "negative shift count %d", y)
	}
	if op == bytecode.OpShl {
		return Int(x << uint64(y)), nil
	}
	return Int(x >> uint64(y)), nil
}

func unary(op bytecode.OpCode, v Value) (Value, error) {
	switch op {
	case bytecode.OpNegate:
		switch v.kind {
		case KindInt:
			return Int(-v.AsInt()), nil
		case KindFloat:
			return Float(-v.AsFloat()), nil
		}
	case bytecode.OpPlus:
		if v.isNumber() {
			return v, nil
		}
	case bytecode.OpNot:
		if v.kind == KindBool {
			return Bool(!v.AsBool()), nil
		}
	case bytecode.OpBitNot:
		if v.kind == KindInt {
			return Int(^v.AsInt()), nil
		}
	default:
		panic(internalf("%s is not a unary operator", op))
	}
	return Value{}, trapf(TypeError, "unsupported operand type for unary %s: %s", opSymbols[op], v.kind)
}
