package vm

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/nalgeon/be"

	"github.com/Cryptex-github/Terbium/internal/analyzer"
	"github.com/Cryptex-github/Terbium/internal/bytecode"
	"github.com/Cryptex-github/Terbium/internal/compiler"
	"github.com/Cryptex-github/Terbium/internal/diag"
	"github.com/Cryptex-github/Terbium/internal/parser"
)

func compileSource(t *testing.T, src string) *bytecode.Module {
	t.Helper()
	diags := diag.NewCollector()
	program := parser.Parse(src, diags)
	analyzer.Analyze(program, diags)
	if diags.HasErrors() {
		t.Fatalf("diagnostics: %v", diags.All())
	}
	m, err := compiler.Compile(program)
	be.Err(t, err, nil)
	return m
}

func run(t *testing.T, src string, opts Options) (Value, error) {
	t.Helper()
	return New(compileSource(t, src), opts).Run()
}

func TestRun(t *testing.T) {
	tests := []struct {
		src  string
		kind Kind
		want string
	}{
		{"1 + 2 * 3", KindInt, "7"},
		{"1 + 2.0", KindFloat, "3.0"},
		{"7 / 2", KindInt, "3"},
		{"-7 / 2", KindInt, "-3"},
		{"7 % 3", KindInt, "1"},
		{"7.0 / 2", KindFloat, "3.5"},
		{"2 ** 10", KindInt, "1024"},
		{"2 ** -1", KindFloat, "0.5"},
		{"2.0 ** 2", KindFloat, "4.0"},
		{"9223372036854775807 + 1", KindInt, "-9223372036854775808"},
		{`"ab" + "cd"`, KindString, "abcd"},
		{"1 == 1.0", KindBool, "true"},
		{`1 == "1"`, KindBool, "false"},
		{"[1] == [1]", KindBool, "false"},
		{"let a = [1]; a == a", KindBool, "true"},
		{"0..3 == 0..3", KindBool, "true"},
		{"null == null", KindBool, "true"},
		{`"a" < "b"`, KindBool, "true"},
		{"2 < 2.5", KindBool, "true"},
		{"5 & 3 | 8", KindInt, "9"},
		{"1 << 4", KindInt, "16"},
		{"~0", KindInt, "-1"},
		{"!true", KindBool, "false"},
		{"true && false || true", KindBool, "true"},
		{"false && 1", KindBool, "false"},
		{`if 1 < 2 { "yes" } else { "no" }`, KindString, "yes"},
		{"if false { 1 }", KindNull, "null"},
		{"let mut s = 0; for i in 0..5 { s += i; } s", KindInt, "10"},
		{`let mut s = ""; for c in "héy" { s = c + s; } s`, KindString, "yéh"},
		{"let mut n = 0; while true { n += 1; if n == 3 { break; } } n", KindInt, "3"},
		{"let mut s = 0; for i in 0..6 { if i % 2 == 0 { continue; } s += i; } s", KindInt, "9"},
		{"let mut s = 0; for x in [1, 2, 3] { s = s * 10 + x; } s", KindInt, "123"},
		{"while false { }", KindNull, "null"},
		{"let x = 1; let y = { let x = 2; x * 10 }; x + y", KindInt, "21"},
		{"func fib(n) { if n < 2 { n } else { fib(n - 1) + fib(n - 2) } } fib(15)", KindInt, "610"},
		{"{ func fact(n) { if n < 2 { 1 } else { n * fact(n - 1) } } fact(5) }", KindInt, "120"},
		{"func even(n) { if n == 0 { true } else { odd(n - 1) } }\nfunc odd(n) { if n == 0 { false } else { even(n - 1) } }\neven(10)", KindBool, "true"},
		{`func f(x) { if x > 0 { return "pos"; } "non-pos" } f(1) + f(-1)`, KindString, "posnon-pos"},
		{"func counter() { let mut n = 0; func() { n += 1; n } }\nlet c = counter(); c(); c(); c()", KindInt, "3"},
		{"func adder(n) { func(x) { x + n } } adder(2)(40)", KindInt, "42"},
		{"let fs = [];\nfor i in 0..3 { push(fs, func() { i }); }\n[fs[0](), fs[1](), fs[2]()]", KindArray, "[0, 1, 2]"},
		{"func outer() { let mut v = 1; func mid() { func() { v = v * 7; v } } mid()() } outer()", KindInt, "7"},
		{"let a = [1, 2]; a[1] = 5; a[0] += 10; a", KindArray, "[11, 5]"},
		{`[1, "x", [true, null], 2.5]`, KindArray, `[1, "x", [true, null], 2.5]`},
		{"let a = [1]; push(a, a); a", KindArray, "[1, [...]]"},
		{`"héllo"[1]`, KindString, "é"},
		{"(10..20)[3]", KindInt, "13"},
		{"0..3", KindRange, "0..3"},
		{`len("héllo")`, KindInt, "5"},
		{"len([1, 2, 3])", KindInt, "3"},
		{"len(5..1)", KindInt, "0"},
		{`str(1.5) + "!"`, KindString, "1.5!"},
		{`int(" 42 ") + 1`, KindInt, "43"},
		{"int(-3.9)", KindInt, "-3"},
		{"int(true)", KindInt, "1"},
		{"float(2)", KindFloat, "2.0"},
		{`float("2.5")`, KindFloat, "2.5"},
		{"type(0..1)", KindString, "range"},
		{"type(print)", KindString, "function"},
		{"type(null)", KindString, "null"},
		{"push([1], 2)", KindArray, "[1, 2]"},
		{"func f() { } f", KindFunction, "<fn f>"},
		{"print", KindFunction, "<native print>"},
		{"func() { }()", KindNull, "null"},
		{"", KindNull, "null"},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			v, err := run(t, tt.src, Options{})
			be.Err(t, err, nil)
			be.Equal(t, v.Kind(), tt.kind)
			be.Equal(t, ToString(v), tt.want)
		})
	}
}

func TestPrint(t *testing.T) {
	var out bytes.Buffer
	_, err := run(t, `print("a", 1, 2.0, [1, "b"]); print()`, Options{Stdout: &out})
	be.Err(t, err, nil)
	be.Equal(t, out.String(), "a 1 2.0 [1, \"b\"]\n\n")
}

func TestTraps(t *testing.T) {
	tests := []struct {
		src     string
		kind    TrapKind
		message string
	}{
		{"1 / 0", DivisionByZero, "integer division by zero"},
		{"1 % 0", DivisionByZero, "integer modulo by zero"},
		{"1.0 / 0", DivisionByZero, "float division by zero"},
		{`1 + "a"`, TypeError, "unsupported operand types for +: int and string"},
		{`"a" < 1`, TypeError, "cannot compare string and int"},
		{"if 1 { 2 }", TypeError, "condition must be bool, got int"},
		{"1 && true", TypeError, "condition must be bool, got int"},
		{"-true", TypeError, "unsupported operand type for unary -: bool"},
		{"1()", TypeError, "int is not callable"},
		{"for x in 5 { x; }", TypeError, "cannot iterate over int"},
		{`"s"[0] = "t"`, TypeError, "cannot assign to an element of string"},
		{"func f(a) { a } f(1, 2)", ArityMismatch, "f expects 1 argument, got 2"},
		{"func g(a, b) { a } g()", ArityMismatch, "g expects 2 arguments, got 0"},
		{"len(1, 2)", ArityMismatch, "len expects 1 argument, got 2"},
		{"[1][3]", IndexOutOfRange, "index 3 out of range for length 1"},
		{"[1][-1]", IndexOutOfRange, "index -1 out of range for length 1"},
		{"[1][1.0]", TypeError, "index must be int, got float"},
		{"1 << -1", InvalidOperation, "negative shift count -1"},
		{`int("x")`, InvalidOperation, `int: cannot convert "x" to int`},
		{"len(3)", TypeError, "len: int has no length"},
		{"1.5..2", TypeError, "unsupported operand types for ..: float and int"},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			_, err := run(t, tt.src, Options{})
			var rerr *RuntimeError
			be.True(t, errors.As(err, &rerr))
			be.Equal(t, rerr.Kind, tt.kind)
			be.Equal(t, rerr.Message, tt.message)
		})
	}
}

func TestStackOverflow(t *testing.T) {
	src := "func f(n) { f(n + 1) } f(0)"
	_, err := run(t, src, Options{MaxFrames: 100})
	var rerr *RuntimeError
	be.True(t, errors.As(err, &rerr))
	be.Equal(t, rerr.Kind, StackOverflow)
	be.Equal(t, rerr.Message, "maximum call depth of 100 exceeded")
	be.Equal(t, len(rerr.Stack), 100)
	be.Equal(t, rerr.Stack[0].Function, "f")
	be.Equal(t, rerr.Stack[99].Function, "<main>")

	_, err = run(t, src, Options{})
	be.True(t, errors.As(err, &rerr))
	be.Equal(t, rerr.Kind, StackOverflow)
	be.Equal(t, len(rerr.Stack), DefaultMaxFrames)
}

func TestStepLimit(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		steps int64
		trap  bool
	}{
		{"endless loop", "while true { }", 1000, true},
		{"endless recursion in budget", "func f() { f() } f()", 50, true},
		{"short program", "1 + 2", 100, false},
		{"no limit", "let mut n = 0; while n < 5000 { n += 1; } n", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, tt.src, Options{MaxSteps: tt.steps})
			if !tt.trap {
				be.Err(t, err, nil)
				return
			}
			var rerr *RuntimeError
			be.True(t, errors.As(err, &rerr))
			be.Equal(t, rerr.Kind, StepLimit)
			be.True(t, strings.Contains(rerr.Message, "budget"))
			be.True(t, rerr.Line > 0)
		})
	}
}

func TestStepLimitResetsPerRun(t *testing.T) {
	machine := New(compileSource(t, "let mut n = 0; while n < 10 { n += 1; } n"), Options{MaxSteps: 500})
	for i := 0; i < 3; i++ {
		v, err := machine.Run()
		be.Err(t, err, nil)
		be.Equal(t, v.String(), "10")
	}
}

func TestErrorLocation(t *testing.T) {
	_, err := run(t, "let x = 1;\nlet y = x / 0;", Options{})
	var rerr *RuntimeError
	be.True(t, errors.As(err, &rerr))
	be.Equal(t, rerr.Function, "<main>")
	be.Equal(t, rerr.Line, 2)
	be.Equal(t, rerr.Column, 9)
	be.Equal(t, err.Error(), "2:9: division by zero: integer division by zero")
}

func TestErrorStack(t *testing.T) {
	_, err := run(t, "func g(d) {\n  10 / d\n}\ng(0)", Options{})
	var rerr *RuntimeError
	be.True(t, errors.As(err, &rerr))
	be.Equal(t, rerr.Stack, []StackFrame{
		{Function: "g", IP: rerr.Stack[0].IP, Line: 2, Column: 3},
		{Function: "<main>", IP: rerr.Stack[1].IP, Line: 4, Column: 1},
	})
	be.Equal(t, rerr.Traceback(), "  in g at 2:3\n  in <main> at 4:1\n")
}

func TestTrace(t *testing.T) {
	var ops []string
	_, err := run(t, "1 + 2", Options{Trace: func(info TraceInfo) {
		ops = append(ops, info.Op.String())
	}})
	be.Err(t, err, nil)
	be.Equal(t, strings.Join(ops, " "), "CONSTANT CONSTANT ADD RETURN")
}

func TestGlobal(t *testing.T) {
	machine := New(compileSource(t, "let answer = 6 * 7;"), Options{})
	_, err := machine.Run()
	be.Err(t, err, nil)
	v, ok := machine.Global("answer")
	be.True(t, ok)
	be.Equal(t, v.AsInt(), int64(42))
	_, ok = machine.Global("missing")
	be.Equal(t, ok, false)
}

func TestInternalErrorPanics(t *testing.T) {
	m := bytecode.NewModule()
	m.Code = []bytecode.Instruction{{Op: bytecode.OpLoadCell}, {Op: bytecode.OpReturn}}
	m.Functions = []bytecode.Function{{Name: "<main>", End: 2, NumLocals: 1, MaxStack: 1}}
	defer func() {
		_, ok := recover().(*InternalError)
		be.True(t, ok)
	}()
	New(m, Options{}).Run()
	t.Fatal("Run returned")
}

func TestEqual(t *testing.T) {
	nan := Float(math.NaN())
	be.Equal(t, Equal(nan, nan), false)
	be.True(t, Equal(Int(2), Float(2)))
	be.Equal(t, Equal(Int(0), Bool(false)), false)
	be.Equal(t, Equal(Null(), Int(0)), false)
	be.True(t, Equal(String("a"), String("a")))
}

func TestToString(t *testing.T) {
	be.Equal(t, ToString(Float(math.Inf(1))), "inf")
	be.Equal(t, ToString(Float(1e21)), "1e+21")
	be.Equal(t, ToString(Float(-0.5)), "-0.5")
	be.Equal(t, ToString(NewArray(String("q\""))), `["q\""]`)
	be.Equal(t, ValueType(NewRange(0, 1)), "range")
}
