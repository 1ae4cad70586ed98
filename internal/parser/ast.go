package parser

import "github.com/Cryptex-github/Terbium/internal/diag"

type Expr interface {
	Accept(visitor ExprVisitor) interface{}
	Pos() diag.Span
}

// Binary expression: a + b
type Binary struct {
	Left     Expr
	Operator string
	Right    Expr
	Span     diag.Span
}

func (b *Binary) Accept(visitor ExprVisitor) interface{} {
	return visitor.VisitBinaryExpr(b)
}

func (b *Binary) Pos() diag.Span { return b.Span }

// Logical expression: a && b, a || b. The right side is only evaluated
// when needed.
type LogicalExpr struct {
	Left     Expr
	Operator string
	Right    Expr
	Span     diag.Span
}

func (l *LogicalExpr) Accept(visitor ExprVisitor) interface{} {
	return visitor.VisitLogicalExpr(l)
}

func (l *LogicalExpr) Pos() diag.Span { return l.Span }

// Unary expression: -x, +x, !x, ~x
type UnaryExpr struct {
	Operator string
	Operand  Expr
	Span     diag.Span
}

func (u *UnaryExpr) Accept(visitor ExprVisitor) interface{} {
	return visitor.VisitUnaryExpr(u)
}

func (u *UnaryExpr) Pos() diag.Span { return u.Span }

// Literal expression. Value is nil, bool, int64, float64 or string.
type Literal struct {
	Value interface{}
	Span  diag.Span
}

func (l *Literal) Accept(visitor ExprVisitor) interface{} {
	return visitor.VisitLiteralExpr(l)
}

func (l *Literal) Pos() diag.Span { return l.Span }

// Variable expression: x
type Variable struct {
	Name    string
	Span    diag.Span
	Binding *Binding // set by the analyzer
}

func (v *Variable) Accept(visitor ExprVisitor) interface{} {
	return visitor.VisitVariableExpr(v)
}

func (v *Variable) Pos() diag.Span { return v.Span }

// Assignment expression: x = 42, a[i] += 1. Target is a *Variable or an
// *IndexExpr; the parser reports anything else.
type Assign struct {
	Target   Expr
	Operator string
	Value    Expr
	Span     diag.Span
}

func (a *Assign) Accept(visitor ExprVisitor) interface{} {
	return visitor.VisitAssignExpr(a)
}

func (a *Assign) Pos() diag.Span { return a.Span }

// Compound reports whether the assignment reads the target first.
func (a *Assign) Compound() bool {
	return a.Operator != "="
}

// BinaryOperator returns the arithmetic operator of a compound assignment.
func (a *Assign) BinaryOperator() string {
	if !a.Compound() {
		return ""
	}
	return a.Operator[:len(a.Operator)-1]
}

// Call expression: callee(args...)
type CallExpr struct {
	Callee Expr
	Args   []Expr
	Span   diag.Span
}

func (c *CallExpr) Accept(visitor ExprVisitor) interface{} {
	return visitor.VisitCallExpr(c)
}

func (c *CallExpr) Pos() diag.Span { return c.Span }

// Index expression: object[index]
type IndexExpr struct {
	Object Expr
	Index  Expr
	Span   diag.Span
}

func (i *IndexExpr) Accept(visitor ExprVisitor) interface{} {
	return visitor.VisitIndexExpr(i)
}

func (i *IndexExpr) Pos() diag.Span { return i.Span }

// Array literal: [1, 2, 3]
type ArrayExpr struct {
	Elements []Expr
	Span     diag.Span
}

func (a *ArrayExpr) Accept(visitor ExprVisitor) interface{} {
	return visitor.VisitArrayExpr(a)
}

func (a *ArrayExpr) Pos() diag.Span { return a.Span }

// Block expression: { stmts; tail }. The value is Tail, or null when the
// block has no tail expression.
type BlockExpr struct {
	Stmts []Stmt
	Tail  Expr
	Span  diag.Span

	// Cells lists the block's locals captured by nested functions, in
	// declaration order. The compiler boxes them on block entry.
	Cells []*Binding
}

func (b *BlockExpr) Accept(visitor ExprVisitor) interface{} {
	return visitor.VisitBlockExpr(b)
}

func (b *BlockExpr) Pos() diag.Span { return b.Span }

// If expression: if cond { thenBranch } else { elseBranch }. ElseBranch is
// nil, a *BlockExpr or an *IfExpr.
type IfExpr struct {
	Cond       Expr
	ThenBranch *BlockExpr
	ElseBranch Expr
	Span       diag.Span
}

func (i *IfExpr) Accept(visitor ExprVisitor) interface{} {
	return visitor.VisitIfExpr(i)
}

func (i *IfExpr) Pos() diag.Span { return i.Span }

// While loop: while cond { body }. Evaluates to null.
type WhileExpr struct {
	Cond Expr
	Body *BlockExpr
	Span diag.Span
}

func (w *WhileExpr) Accept(visitor ExprVisitor) interface{} {
	return visitor.VisitWhileExpr(w)
}

func (w *WhileExpr) Pos() diag.Span { return w.Span }

// For-in loop: for x in collection { body }. Evaluates to null.
type ForInExpr struct {
	Variable   string
	VarSpan    diag.Span
	Collection Expr
	Body       *BlockExpr
	Span       diag.Span
	Binding    *Binding
}

func (f *ForInExpr) Accept(visitor ExprVisitor) interface{} {
	return visitor.VisitForInExpr(f)
}

func (f *ForInExpr) Pos() diag.Span { return f.Span }

// Param is a function parameter
type Param struct {
	Name    string
	Mutable bool
	Span    diag.Span
	Binding *Binding
}

// Function literal: func(a, b) { body }. Named declarations wrap one in a
// FunctionStmt.
type LambdaExpr struct {
	Name   string
	Params []*Param
	Body   *BlockExpr
	Span   diag.Span
	Info   *FuncInfo // set by the analyzer
}

func (l *LambdaExpr) Accept(visitor ExprVisitor) interface{} {
	return visitor.VisitLambdaExpr(l)
}

func (l *LambdaExpr) Pos() diag.Span { return l.Span }

// ErrorExpr stands in for an expression that failed to parse.
type ErrorExpr struct {
	Span diag.Span
}

func (e *ErrorExpr) Accept(visitor ExprVisitor) interface{} {
	return visitor.VisitErrorExpr(e)
}

func (e *ErrorExpr) Pos() diag.Span { return e.Span }

type ExprVisitor interface {
	VisitBinaryExpr(expr *Binary) interface{}
	VisitLogicalExpr(expr *LogicalExpr) interface{}
	VisitUnaryExpr(expr *UnaryExpr) interface{}
	VisitLiteralExpr(expr *Literal) interface{}
	VisitVariableExpr(expr *Variable) interface{}
	VisitAssignExpr(expr *Assign) interface{}
	VisitCallExpr(expr *CallExpr) interface{}
	VisitIndexExpr(expr *IndexExpr) interface{}
	VisitArrayExpr(expr *ArrayExpr) interface{}
	VisitBlockExpr(expr *BlockExpr) interface{}
	VisitIfExpr(expr *IfExpr) interface{}
	VisitWhileExpr(expr *WhileExpr) interface{}
	VisitForInExpr(expr *ForInExpr) interface{}
	VisitLambdaExpr(expr *LambdaExpr) interface{}
	VisitErrorExpr(expr *ErrorExpr) interface{}
}

// IsBlockLike reports whether e may stand as a statement without a
// trailing semicolon.
func IsBlockLike(e Expr) bool {
	switch e.(type) {
	case *BlockExpr, *IfExpr, *WhileExpr, *ForInExpr:
		return true
	}
	return false
}
