package reporting

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/nalgeon/be"

	"github.com/Cryptex-github/Terbium/internal/diag"
	"github.com/Cryptex-github/Terbium/internal/vm"
)

func TestDiagnostic(t *testing.T) {
	src := "let a = 1;\n\tfoo + a"
	d := diag.Diagnostic{
		Severity: diag.Error,
		Stage:    diag.StageAnalyze,
		Span:     diag.Span{Start: 12, End: 15, Line: 2, Column: 2},
		Message:  `unresolved identifier "foo"`,
	}
	var buf bytes.Buffer
	p := NewPrinter(&buf)
	be.Equal(t, p.Color, false)
	p.Diagnostics("main.tb", src, []diag.Diagnostic{d})

	want := "error: unresolved identifier \"foo\"\n" +
		"  at main.tb:2:2\n" +
		"\n" +
		"  2 | \tfoo + a\n" +
		"      \t^^^\n" +
		"\n" +
		"main.tb: 1 error\n"
	be.Equal(t, buf.String(), want)
}

func TestDiagnosticColor(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)
	p.Color = true
	p.Diagnostic("w.tb", "x", diag.Diagnostic{Severity: diag.Warning, Span: diag.Span{Start: 0, End: 1, Line: 1, Column: 1}, Message: "m"})
	be.True(t, strings.HasPrefix(buf.String(), ansiBold+ansiYellow+"warning"+ansiReset))
}

func TestExcerptOutOfRange(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)
	p.Diagnostic("e.tb", "", diag.Diagnostic{Severity: diag.Error, Span: diag.Span{Line: 3, Column: 1}, Message: "unexpected end of input"})
	be.Equal(t, buf.String(), "error: unexpected end of input\n  at e.tb:3:1\n\n")
}

func TestTrap(t *testing.T) {
	e := &vm.RuntimeError{
		Kind:    vm.DivisionByZero,
		Message: "integer division by zero",
		Line:    1,
		Column:  21,
		Stack: []vm.StackFrame{
			{Function: "f", Line: 1, Column: 21},
			{Function: "f", Line: 1, Column: 30},
			{Function: "<main>", Line: 2, Column: 1},
		},
	}
	var buf bytes.Buffer
	p := NewPrinter(&buf)
	p.MaxFrames = 2
	p.Trap("t.tb", "func f(n) { if n { 1 / 0 } else { f(true) } }\nf(false)", e)
	out := buf.String()
	be.True(t, strings.HasPrefix(out, "RuntimeError: division by zero: integer division by zero\n  at t.tb:1:21\n"))
	be.True(t, strings.Contains(out, "\nCall Stack:\n  at f (t.tb:1:21)\n  at f (t.tb:1:30)\n  ... 1 more frames\n"))
}

func TestReportJSON(t *testing.T) {
	r := NewReport("a.tb", []diag.Diagnostic{
		{Severity: diag.Warning, Stage: diag.StageAnalyze, Message: "unused variable \"x\""},
	})
	r.WithTrap(&vm.RuntimeError{Kind: vm.TypeError, Message: "bad"})
	var buf bytes.Buffer
	be.Err(t, WriteJSON(&buf, []*Report{r, NewReport("b.tb", nil)}), nil)

	var back []map[string]interface{}
	be.Err(t, json.Unmarshal(buf.Bytes(), &back), nil)
	be.Equal(t, len(back), 2)
	be.Equal(t, back[0]["warnings"], 1.0)
	be.Equal(t, back[0]["trap"].(map[string]interface{})["kind"], "type error")
	be.Equal(t, len(back[1]["diagnostics"].([]interface{})), 0)
}
