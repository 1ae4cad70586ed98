package parser

import "github.com/Cryptex-github/Terbium/internal/diag"

type Stmt interface {
	Accept(visitor StmtVisitor) interface{}
	Pos() diag.Span
}

// Program is the root of a parsed source file. Its value is Tail, or null.
type Program struct {
	Stmts []Stmt
	Tail  Expr
	Span  diag.Span

	// Set by the analyzer.
	Globals []*Binding
	Main    *FuncInfo
}

// LetStmt declares a variable or constant: let [mut] x = expr; const X = expr;
// Expr is nil for "let mut x;".
type LetStmt struct {
	Name     string
	NameSpan diag.Span
	Mutable  bool
	Const    bool
	Expr     Expr
	Span     diag.Span
	Binding  *Binding
}

func (s *LetStmt) Accept(visitor StmtVisitor) interface{} {
	return visitor.VisitLetStmt(s)
}

func (s *LetStmt) Pos() diag.Span { return s.Span }

// FunctionStmt is a named function declaration. It is hoisted to the top
// of its enclosing scope.
type FunctionStmt struct {
	Name     string
	NameSpan diag.Span
	Lambda   *LambdaExpr
	Span     diag.Span
	Binding  *Binding
}

func (s *FunctionStmt) Accept(visitor StmtVisitor) interface{} {
	return visitor.VisitFunctionStmt(s)
}

func (s *FunctionStmt) Pos() diag.Span { return s.Span }

type ExpressionStmt struct {
	Expr Expr
	Span diag.Span
}

func (s *ExpressionStmt) Accept(visitor StmtVisitor) interface{} {
	return visitor.VisitExpressionStmt(s)
}

func (s *ExpressionStmt) Pos() diag.Span { return s.Span }

// ReturnStmt: return [expr]; Value is nil for a bare return.
type ReturnStmt struct {
	Value Expr
	Span  diag.Span
}

func (s *ReturnStmt) Accept(visitor StmtVisitor) interface{} {
	return visitor.VisitReturnStmt(s)
}

func (s *ReturnStmt) Pos() diag.Span { return s.Span }

type BreakStmt struct {
	Span diag.Span
}

func (s *BreakStmt) Accept(visitor StmtVisitor) interface{} {
	return visitor.VisitBreakStmt(s)
}

func (s *BreakStmt) Pos() diag.Span { return s.Span }

type ContinueStmt struct {
	Span diag.Span
}

func (s *ContinueStmt) Accept(visitor StmtVisitor) interface{} {
	return visitor.VisitContinueStmt(s)
}

func (s *ContinueStmt) Pos() diag.Span { return s.Span }

// ErrorStmt stands in for a statement that failed to parse.
type ErrorStmt struct {
	Span diag.Span
}

func (s *ErrorStmt) Accept(visitor StmtVisitor) interface{} {
	return visitor.VisitErrorStmt(s)
}

func (s *ErrorStmt) Pos() diag.Span { return s.Span }

type StmtVisitor interface {
	VisitLetStmt(stmt *LetStmt) interface{}
	VisitFunctionStmt(stmt *FunctionStmt) interface{}
	VisitExpressionStmt(stmt *ExpressionStmt) interface{}
	VisitReturnStmt(stmt *ReturnStmt) interface{}
	VisitBreakStmt(stmt *BreakStmt) interface{}
	VisitContinueStmt(stmt *ContinueStmt) interface{}
	VisitErrorStmt(stmt *ErrorStmt) interface{}
}
