package analyzer

import (
	"strings"
	"testing"

	"github.com/nalgeon/be"

	"github.com/Cryptex-github/Terbium/internal/diag"
	"github.com/Cryptex-github/Terbium/internal/parser"
)

func analyze(t *testing.T, src string) (*parser.Program, []diag.Diagnostic) {
	t.Helper()
	diags := diag.NewCollector()
	program := parser.Parse(src, diags)
	be.Equal(t, diags.Len(), 0)
	Analyze(program, diags)
	return program, diags.All()
}

func messages(diags []diag.Diagnostic) []string {
	out := make([]string, len(diags))
	for i, d := range diags {
		out[i] = d.Message
	}
	return out
}

func TestShadowing(t *testing.T) {
	program, diags := analyze(t, "let x = 1;\n{ let x = 2; x; }\nx")
	be.Equal(t, len(diags), 0)
	be.Equal(t, parser.PrintResolved(program), strings.Join([]string{
		"(let x{global 0} 1)",
		"(block (let x{local 0} 2) x{local 0};);",
		"x{global 0}",
	}, "\n"))
	be.Equal(t, len(program.Globals), 1)
	be.Equal(t, program.Main.NumLocals, 1)
}

func TestBuiltins(t *testing.T) {
	program, diags := analyze(t, "print(len([1]))")
	be.Equal(t, len(diags), 0)
	be.Equal(t, parser.PrintResolved(program), "(call print{builtin 0} (call len{builtin 1} (array 1)))")
}

func TestCapture(t *testing.T) {
	src := `func outer() {
  let mut n = 0;
  func() { n = n + 1; n }
}`
	program, diags := analyze(t, src)
	be.Equal(t, len(diags), 0)
	be.Equal(t, parser.PrintResolved(program),
		"(func outer () (block (let mut n{local cell 0} 0) (func _ () (block (= n{free 0} (+ n{free 0} 1)); n{free 0}))))")

	outer := program.Stmts[0].(*parser.FunctionStmt).Lambda
	be.Equal(t, outer.Info.NumLocals, 1)
	be.Equal(t, len(outer.Info.FreeVars), 0)
	be.Equal(t, len(outer.Body.Cells), 1)

	let := outer.Body.Stmts[0].(*parser.LetStmt)
	inner := outer.Body.Tail.(*parser.LambdaExpr)
	be.Equal(t, len(inner.Info.FreeVars), 1)
	be.True(t, inner.Info.FreeVars[0] == let.Binding)
	be.Equal(t, let.Binding.Uses, 2)
}

func TestCaptureThroughIntermediate(t *testing.T) {
	src := `func a() {
  let v = 1;
  func b() {
    func c() { v }
  }
}`
	program, diags := analyze(t, src)
	be.Equal(t, len(diags), 0)

	a := program.Stmts[0].(*parser.FunctionStmt).Lambda
	v := a.Body.Stmts[0].(*parser.LetStmt).Binding
	b := a.Body.Stmts[1].(*parser.FunctionStmt).Lambda
	c := b.Body.Stmts[0].(*parser.FunctionStmt).Lambda

	be.True(t, v.Captured)
	be.Equal(t, len(b.Info.FreeVars), 1)
	be.True(t, b.Info.FreeVars[0] == v)
	be.Equal(t, len(c.Info.FreeVars), 1)
	be.Equal(t, c.Info.FreeVars[0].Kind, parser.Free)
	be.True(t, c.Info.FreeVars[0].Outer == v)

	use := c.Body.Tail.(*parser.Variable)
	be.Equal(t, use.Binding.String(), "free 0")
}

func TestCapturedParameter(t *testing.T) {
	program, diags := analyze(t, "func adder(n) { func(x) { x + n } }")
	be.Equal(t, len(diags), 0)
	lambda := program.Stmts[0].(*parser.FunctionStmt).Lambda
	be.True(t, lambda.Params[0].Binding.Captured)
	// Parameters are boxed by the function prologue, not the block.
	be.Equal(t, len(lambda.Body.Cells), 0)
}

func TestSlotReuse(t *testing.T) {
	src := `func f() {
  { let a = 1; a; }
  { let b = 2; let c = 3; b + c; }
}`
	program, diags := analyze(t, src)
	be.Equal(t, len(diags), 0)
	lambda := program.Stmts[0].(*parser.FunctionStmt).Lambda
	be.Equal(t, lambda.Info.NumLocals, 2)

	second := lambda.Body.Stmts[1].(*parser.ExpressionStmt).Expr.(*parser.BlockExpr)
	be.Equal(t, second.Stmts[0].(*parser.LetStmt).Binding.Index, 0)
	be.Equal(t, second.Stmts[1].(*parser.LetStmt).Binding.Index, 1)
}

func TestHoisting(t *testing.T) {
	program, diags := analyze(t, "even(4);\nfunc even(n) { n == 0 || odd(n - 1) }\nfunc odd(n) { n != 0 && even(n - 1) }")
	be.Equal(t, len(diags), 0)
	be.Equal(t, len(program.Globals), 2)
	be.Equal(t, program.Globals[0].Name, "even")
	be.Equal(t, program.Globals[1].Name, "odd")
}

func TestErrors(t *testing.T) {
	tests := []struct {
		src  string
		want []string
	}{
		{"y", []string{`unresolved identifier "y"`}},
		{"let a = 1; let a = 2;", []string{`"a" is already declared in this scope (previous declaration at 1:5)`}},
		{"x; let x = 1;", []string{`"x" is used before its declaration`}},
		{"let x = 1; x = 2;", []string{`cannot assign to immutable variable "x"`}},
		{"const C = 1; C += 1;", []string{`cannot assign to immutable constant "C"`}},
		{"print = 1;", []string{`cannot assign to builtin "print"`}},
		{"func f(a) { a = 1; }", []string{`cannot assign to immutable parameter "a"`}},
		{"let x;", []string{`immutable variable "x" must be initialized`}},
		{"break;", []string{"break outside of a loop"}},
		{"continue;", []string{"continue outside of a loop"}},
		{"return 1;", []string{"return outside of a function"}},
		{"while true { func() { break; }; }", []string{"break outside of a loop"}},
		{"a + b", []string{`unresolved identifier "a"`, `unresolved identifier "b"`}},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			_, diags := analyze(t, tt.src)
			be.Equal(t, messages(diags), tt.want)
			for _, d := range diags {
				be.Equal(t, d.Severity, diag.Error)
				be.Equal(t, d.Stage, diag.StageAnalyze)
			}
		})
	}
}

func TestUnresolvedLeavesUndefinedBinding(t *testing.T) {
	program, _ := analyze(t, "missing")
	v := program.Tail.(*parser.Variable)
	be.Equal(t, v.Binding.Kind, parser.Undefined)
}

func TestUnusedWarnings(t *testing.T) {
	tests := []struct {
		src  string
		want []string
	}{
		{"{ let t = 1; }", []string{`unused variable "t"`}},
		{"{ const K = 1; }", []string{`unused constant "K"`}},
		{"for i in 0..3 { }", []string{`unused variable "i"`}},
		{"{ let _t = 1; }", []string{}},
		{"let g = 1;", []string{}},
		{"func f(p) { }", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			_, diags := analyze(t, tt.src)
			be.Equal(t, messages(diags), tt.want)
			for _, d := range diags {
				be.Equal(t, d.Severity, diag.Warning)
			}
		})
	}
}
