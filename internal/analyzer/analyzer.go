// Package analyzer resolves names, checks declarations and control flow,
// and annotates the AST with the storage the compiler should use for every
// variable.
package analyzer

import (
	"github.com/Cryptex-github/Terbium/internal/bytecode"
	"github.com/Cryptex-github/Terbium/internal/diag"
	"github.com/Cryptex-github/Terbium/internal/parser"
)

type analyzer struct {
	diags    *diag.Collector
	scopes   []scope
	current  int
	funcs    []function
	fn       int
	globals  []*parser.Binding
	builtins map[string]*parser.Binding
}

// Analyze checks program and fills in its bindings, Globals and Main.
// Problems go to diags; the caller must not compile a program for which
// diags holds errors.
func Analyze(program *parser.Program, diags *diag.Collector) {
	a := &analyzer{
		diags:    diags,
		builtins: make(map[string]*parser.Binding, len(bytecode.Builtins)),
	}
	for i, name := range bytecode.Builtins {
		a.builtins[name] = &parser.Binding{Name: name, Kind: parser.Builtin, Decl: parser.DeclBuiltin, Index: i}
	}

	program.Main = &parser.FuncInfo{}
	a.funcs = append(a.funcs, function{info: program.Main, parent: -1, free: map[*parser.Binding]*parser.Binding{}})
	a.scopes = append(a.scopes, scope{kind: scopeModule, names: make(map[string]*parser.Binding)})

	a.hoist(program.Stmts)
	a.markPending(program.Stmts)
	for _, stmt := range program.Stmts {
		a.stmt(stmt)
	}
	if program.Tail != nil {
		a.expr(program.Tail)
	}
	program.Globals = a.globals
}

// hoist declares the named functions of a scope before anything else, so
// they can call each other regardless of order.
func (a *analyzer) hoist(stmts []parser.Stmt) {
	for _, stmt := range stmts {
		if fn, ok := stmt.(*parser.FunctionStmt); ok {
			fn.Binding = a.declare(fn.Name, fn.NameSpan, parser.DeclFunc, false)
		}
	}
}

func (a *analyzer) expr(e parser.Expr) {
	e.Accept(a)
}

func (a *analyzer) stmt(s parser.Stmt) {
	s.Accept(a)
}

func (a *analyzer) use(b *parser.Binding) {
	root(b).Uses++
}

func (a *analyzer) VisitBinaryExpr(e *parser.Binary) interface{} {
	a.expr(e.Left)
	a.expr(e.Right)
	return nil
}

func (a *analyzer) VisitLogicalExpr(e *parser.LogicalExpr) interface{} {
	a.expr(e.Left)
	a.expr(e.Right)
	return nil
}

func (a *analyzer) VisitUnaryExpr(e *parser.UnaryExpr) interface{} {
	a.expr(e.Operand)
	return nil
}

func (a *analyzer) VisitLiteralExpr(e *parser.Literal) interface{} {
	return nil
}

func (a *analyzer) VisitVariableExpr(e *parser.Variable) interface{} {
	e.Binding = a.resolve(e.Name, e.Span)
	a.use(e.Binding)
	return nil
}

func (a *analyzer) VisitAssignExpr(e *parser.Assign) interface{} {
	switch target := e.Target.(type) {
	case *parser.Variable:
		target.Binding = a.resolve(target.Name, target.Span)
		if e.Compound() {
			a.use(target.Binding)
		}
		a.checkAssignable(target)
	case *parser.IndexExpr:
		a.expr(target.Object)
		a.expr(target.Index)
	default:
		a.expr(target)
	}
	a.expr(e.Value)
	return nil
}

func (a *analyzer) checkAssignable(v *parser.Variable) {
	b := v.Binding
	switch b.Kind {
	case parser.Undefined:
	case parser.Builtin:
		a.diags.Errorf(diag.StageAnalyze, v.Span, "cannot assign to builtin %q", v.Name)
	default:
		if !b.Mutable {
			a.diags.Errorf(diag.StageAnalyze, v.Span, "cannot assign to immutable %s %q", b.Decl, v.Name)
		}
	}
}

func (a *analyzer) VisitCallExpr(e *parser.CallExpr) interface{} {
	a.expr(e.Callee)
	for _, arg := range e.Args {
		a.expr(arg)
	}
	return nil
}

func (a *analyzer) VisitIndexExpr(e *parser.IndexExpr) interface{} {
	a.expr(e.Object)
	a.expr(e.Index)
	return nil
}

func (a *analyzer) VisitArrayExpr(e *parser.ArrayExpr) interface{} {
	for _, el := range e.Elements {
		a.expr(el)
	}
	return nil
}

func (a *analyzer) VisitBlockExpr(e *parser.BlockExpr) interface{} {
	a.pushScope(scopeBlock)
	a.hoist(e.Stmts)
	a.markPending(e.Stmts)
	for _, stmt := range e.Stmts {
		a.stmt(stmt)
	}
	if e.Tail != nil {
		a.expr(e.Tail)
	}
	e.Cells = a.popScope()
	return nil
}

func (a *analyzer) VisitIfExpr(e *parser.IfExpr) interface{} {
	a.expr(e.Cond)
	a.expr(e.ThenBranch)
	if e.ElseBranch != nil {
		a.expr(e.ElseBranch)
	}
	return nil
}

func (a *analyzer) VisitWhileExpr(e *parser.WhileExpr) interface{} {
	a.expr(e.Cond)
	a.funcs[a.fn].loops++
	a.expr(e.Body)
	a.funcs[a.fn].loops--
	return nil
}

func (a *analyzer) VisitForInExpr(e *parser.ForInExpr) interface{} {
	a.expr(e.Collection)
	a.pushScope(scopeBlock)
	e.Binding = a.declare(e.Variable, e.VarSpan, parser.DeclLet, false)
	a.funcs[a.fn].loops++
	a.expr(e.Body)
	a.funcs[a.fn].loops--
	a.popScope()
	return nil
}

func (a *analyzer) VisitLambdaExpr(e *parser.LambdaExpr) interface{} {
	e.Info = &parser.FuncInfo{}
	a.funcs = append(a.funcs, function{info: e.Info, parent: a.fn, free: map[*parser.Binding]*parser.Binding{}})
	outer := a.fn
	a.fn = len(a.funcs) - 1

	a.pushScope(scopeFunction)
	for _, param := range e.Params {
		param.Binding = a.declare(param.Name, param.Span, parser.DeclParam, param.Mutable)
	}
	a.expr(e.Body)
	a.popScope()

	a.fn = outer
	return nil
}

func (a *analyzer) VisitErrorExpr(e *parser.ErrorExpr) interface{} {
	return nil
}

func (a *analyzer) VisitLetStmt(s *parser.LetStmt) interface{} {
	if s.Expr != nil {
		a.expr(s.Expr)
	} else if !s.Mutable {
		a.diags.Errorf(diag.StageAnalyze, s.NameSpan, "immutable variable %q must be initialized", s.Name)
	}
	decl := parser.DeclLet
	if s.Const {
		decl = parser.DeclConst
	}
	s.Binding = a.declare(s.Name, s.NameSpan, decl, s.Mutable)
	return nil
}

func (a *analyzer) VisitFunctionStmt(s *parser.FunctionStmt) interface{} {
	a.expr(s.Lambda)
	return nil
}

func (a *analyzer) VisitExpressionStmt(s *parser.ExpressionStmt) interface{} {
	a.expr(s.Expr)
	return nil
}

func (a *analyzer) VisitReturnStmt(s *parser.ReturnStmt) interface{} {
	if a.fn == 0 {
		a.diags.Errorf(diag.StageAnalyze, s.Span, "return outside of a function")
	}
	if s.Value != nil {
		a.expr(s.Value)
	}
	return nil
}

func (a *analyzer) VisitBreakStmt(s *parser.BreakStmt) interface{} {
	if a.funcs[a.fn].loops == 0 {
		a.diags.Errorf(diag.StageAnalyze, s.Span, "break outside of a loop")
	}
	return nil
}

func (a *analyzer) VisitContinueStmt(s *parser.ContinueStmt) interface{} {
	if a.funcs[a.fn].loops == 0 {
		a.diags.Errorf(diag.StageAnalyze, s.Span, "continue outside of a loop")
	}
	return nil
}

func (a *analyzer) VisitErrorStmt(s *parser.ErrorStmt) interface{} {
	return nil
}
