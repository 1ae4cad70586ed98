package terbium

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/nalgeon/be"

	"github.com/Cryptex-github/Terbium/internal/diag"
	"github.com/Cryptex-github/Terbium/internal/vm"
)

func TestEvalArithmetic(t *testing.T) {
	v, diags, err := Eval("t.tb", "1 + 2 * 3")
	be.Err(t, err, nil)
	be.Equal(t, len(diags), 0)
	be.Equal(t, v.Kind(), vm.KindInt)
	be.Equal(t, v.AsInt(), int64(7))

	v, _, err = Eval("t.tb", "1 + 2.0")
	be.Err(t, err, nil)
	be.Equal(t, v.Kind(), vm.KindFloat)
	be.Equal(t, v.String(), "3.0")
}

func TestUnresolvedIdentifierStopsCompilation(t *testing.T) {
	m, diags, err := Compile("t.tb", "let a = 1;\nb + a")
	be.True(t, m == nil)
	var cerr *CompileError
	be.True(t, errors.As(err, &cerr))
	be.True(t, diags.HasErrors())
	be.Equal(t, diags[0].Stage, diag.StageAnalyze)
	be.Equal(t, err.Error(), `t.tb:2:1: error: unresolved identifier "b"`)
	be.Equal(t, ExitCode(err), ExitCompile)
}

func TestShadowingAcrossBlocks(t *testing.T) {
	v, _, err := Eval("t.tb", "let x = 1;\nlet inner = { let x = 10; x + 1 };\n[inner, x]")
	be.Err(t, err, nil)
	be.Equal(t, v.String(), "[11, 1]")
}

func TestTwoSyntaxErrors(t *testing.T) {
	_, diags, err := Compile("t.tb", "let s = \"open;\nlet y = 1 + ;\nlet z = 3;")
	be.True(t, err != nil)
	be.Equal(t, len(diags.Errors()), 2)
	be.Equal(t, err.Error(), "t.tb:1:9: error: unterminated string literal (and 1 more)")
}

func TestWarningsDoNotBlock(t *testing.T) {
	v, diags, err := Eval("t.tb", "{ let unused = 1; }\n5")
	be.Err(t, err, nil)
	be.Equal(t, len(diags), 1)
	be.Equal(t, diags[0].Severity, diag.Warning)
	be.Equal(t, diags.String(), "1 warning")
	be.Equal(t, v.AsInt(), int64(5))
}

func TestRuntimeTraps(t *testing.T) {
	_, _, err := Eval("t.tb", "10 / (5 - 5)")
	var rerr *RuntimeError
	be.True(t, errors.As(err, &rerr))
	be.Equal(t, rerr.Kind, vm.DivisionByZero)
	be.Equal(t, ExitCode(err), ExitRuntime)

	_, _, err = Eval("t.tb", "func down(n) { down(n + 1) } down(0)", WithMaxFrames(50))
	be.True(t, errors.As(err, &rerr))
	be.Equal(t, rerr.Kind, vm.StackOverflow)
}

func TestMaxSteps(t *testing.T) {
	_, _, err := Eval("t.tb", "let mut n = 0;\nwhile true { n += 1; }", WithMaxSteps(10_000))
	var rerr *RuntimeError
	be.True(t, errors.As(err, &rerr))
	be.Equal(t, rerr.Kind, vm.StepLimit)
	be.Equal(t, rerr.Line, 2)
	be.Equal(t, ExitCode(err), ExitRuntime)

	v, _, err := Eval("t.tb", "let mut n = 0; while n < 100 { n += 1; } n", WithMaxSteps(10_000))
	be.Err(t, err, nil)
	be.Equal(t, v.String(), "100")
}

func TestStdout(t *testing.T) {
	var out bytes.Buffer
	_, _, err := Eval("t.tb", `for i in 0..3 { print("line", i); }`, WithStdout(&out))
	be.Err(t, err, nil)
	be.Equal(t, out.String(), "line 0\nline 1\nline 2\n")
}

func TestMaxDepth(t *testing.T) {
	src := strings.Repeat("(", 20) + "1" + strings.Repeat(")", 20)
	_, diags, err := Compile("t.tb", src, WithMaxDepth(10))
	be.True(t, err != nil)
	be.Equal(t, len(diags), 1)
	be.True(t, strings.Contains(diags[0].Message, "nested too deeply"))

	_, _, err = Compile("t.tb", src)
	be.Err(t, err, nil)
}

func TestEncodeDecodeRun(t *testing.T) {
	m, _, err := Compile("t.tb", `func greet(who) { "hello, " + who } greet("terbium")`)
	be.Err(t, err, nil)
	data, err := Encode(m)
	be.Err(t, err, nil)

	back, err := Decode(data)
	be.Err(t, err, nil)
	be.Equal(t, back.Code, m.Code)
	be.Equal(t, back.Constants, m.Constants)
	be.Equal(t, back.ID, m.ID)

	v, err := Run(back)
	be.Err(t, err, nil)
	be.Equal(t, v.String(), "hello, terbium")
}

func TestRunRejectsUnverifiedModule(t *testing.T) {
	m, _, err := Compile("t.tb", "1 + 2")
	be.Err(t, err, nil)
	m.Functions[0].MaxStack = 1
	_, err = Run(m)
	be.True(t, errors.Is(err, ErrInvalidModule))
	be.Equal(t, ExitCode(err), ExitInternal)
}

func TestDisassemble(t *testing.T) {
	m, _, err := Compile("t.tb", "let x = 2; x * 21")
	be.Err(t, err, nil)
	var buf bytes.Buffer
	be.Err(t, Disassemble(&buf, m), nil)
	be.True(t, strings.Contains(buf.String(), "STORE_GLOBAL   0 ; x"))
}

func TestParse(t *testing.T) {
	program, diags := Parse("t.tb", "let a = 1; a")
	be.Equal(t, len(diags), 0)
	be.Equal(t, len(program.Globals), 1)
}

func TestTrace(t *testing.T) {
	count := 0
	_, _, err := Eval("t.tb", "1", WithTrace(func(vm.TraceInfo) { count++ }))
	be.Err(t, err, nil)
	be.Equal(t, count, 2)
}

func TestExitCode(t *testing.T) {
	be.Equal(t, ExitCode(nil), ExitOK)
	be.Equal(t, ExitCode(os.ErrNotExist), ExitIO)
	be.Equal(t, ExitCode(fmt.Errorf("wrapped: %w", &vm.InternalError{Message: "x"})), ExitInternal)
	_, err := Decode([]byte("junk"))
	be.Equal(t, ExitCode(err), ExitIO)
}
