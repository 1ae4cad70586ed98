package vm

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/Cryptex-github/Terbium/internal/bytecode"
)

// builtins is indexed like bytecode.Builtins.
var builtins = []*Builtin{
	{Name: "print", Arity: -1, Fn: builtinPrint},
	{Name: "len", Arity: 1, Fn: builtinLen},
	{Name: "push", Arity: 2, Fn: builtinPush},
	{Name: "str", Arity: 1, Fn: builtinStr},
	{Name: "int", Arity: 1, Fn: builtinInt},
	{Name: "float", Arity: 1, Fn: builtinFloat},
	{Name: "type", Arity: 1, Fn: builtinType},
}

func init() {
	if len(builtins) != len(bytecode.Builtins) {
		panic("vm: builtin table out of sync with bytecode.Builtins")
	}
	for i, b := range builtins {
		if b.Name != bytecode.Builtins[i] {
			panic(fmt.Sprintf("vm: builtin %d is %s, expected %s", i, b.Name, bytecode.Builtins[i]))
		}
	}
}

func builtinPrint(vm *VM, args []Value) (Value, error) {
	parts := make([]string, len(args))
	for i, arg := range args {
		parts[i] = ToString(arg)
	}
	if _, err := fmt.Fprintln(vm.out, strings.Join(parts, " ")); err != nil {
		return Value{}, trapf(InvalidOperation, "print: %v", err)
	}
	return Null(), nil
}

func builtinLen(vm *VM, args []Value) (Value, error) {
	v := args[0]
	switch v.kind {
	case KindString:
		return Int(int64(utf8.RuneCountInString(v.s))), nil
	case KindArray:
		return Int(int64(len(v.AsArray().Elements))), nil
	case KindRange:
		return Int(v.AsRange().Len()), nil
	}
	return Value{}, trapf(TypeError, "len: %s has no length", v.kind)
}

// builtinPush appends to an array in place and returns the array.
func builtinPush(vm *VM, args []Value) (Value, error) {
	a := args[0].AsArray()
	if a == nil {
		return Value{}, trapf(TypeError, "push: expected array, got %s", args[0].kind)
	}
	a.Elements = append(a.Elements, args[1])
	return args[0], nil
}

func builtinStr(vm *VM, args []Value) (Value, error) {
	return String(ToString(args[0])), nil
}

func builtinInt(vm *VM, args []Value) (Value, error) {
	v := args[0]
	switch v.kind {
	case KindInt:
		return v, nil
	case KindFloat:
		f := v.AsFloat()
		if math.IsNaN(f) || f >= math.MaxInt64 || f < math.MinInt64 {
			return Value{}, trapf(InvalidOperation, "int: cannot convert %s to int", ToString(v))
		}
		return Int(int64(f)), nil
	case KindBool:
		if v.AsBool() {
			return Int(1), nil
		}
		return Int(0), nil
	case KindString:
		i, err := strconv.ParseInt(strings.TrimSpace(v.s), 10, 64)
		if err != nil {
			return Value{}, trapf(InvalidOperation, "int: cannot convert %q to int", v.s)
		}
		return Int(i), nil
	}
	return Value{}, trapf(TypeError, "int: cannot convert %s to int", v.kind)
}

func builtinFloat(vm *VM, args []Value) (Value, error) {
	v := args[0]
	switch v.kind {
	case KindInt, KindFloat:
		return Float(v.number()), nil
	case KindString:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.s), 64)
		if err != nil {
			return Value{}, trapf(InvalidOperation, "float: cannot convert %q to float", v.s)
		}
		return Float(f), nil
	}
	return Value{}, trapf(TypeError, "float: cannot convert %s to float", v.kind)
}

func builtinType(vm *VM, args []Value) (Value, error) {
	return String(ValueType(args[0])), nil
}
