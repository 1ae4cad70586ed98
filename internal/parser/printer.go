package parser

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Print renders a program as an S-expression, one top-level item per line.
func Print(program *Program) string {
	return (&printer{}).program(program)
}

// PrintResolved is like Print but annotates every identifier with the
// binding the analyzer gave it, e.g. x{local 0}.
func PrintResolved(program *Program) string {
	return (&printer{bindings: true}).program(program)
}

// PrintExpr renders a single expression.
func PrintExpr(expr Expr) string {
	return (&printer{}).expr(expr)
}

type printer struct {
	bindings bool
}

func (p *printer) program(program *Program) string {
	var lines []string
	for _, stmt := range program.Stmts {
		lines = append(lines, p.stmt(stmt))
	}
	if program.Tail != nil {
		lines = append(lines, p.expr(program.Tail))
	}
	return strings.Join(lines, "\n")
}

func (p *printer) expr(e Expr) string {
	if e == nil {
		return "null"
	}
	return e.Accept(p).(string)
}

func (p *printer) stmt(s Stmt) string {
	return s.Accept(p).(string)
}

func (p *printer) list(head string, parts ...string) string {
	if len(parts) == 0 {
		return "(" + head + ")"
	}
	return "(" + head + " " + strings.Join(parts, " ") + ")"
}

func (p *printer) name(name string, b *Binding) string {
	if !p.bindings || b == nil {
		return name
	}
	return fmt.Sprintf("%s{%s}", name, b)
}

func (p *printer) VisitBinaryExpr(e *Binary) interface{} {
	return p.list(e.Operator, p.expr(e.Left), p.expr(e.Right))
}

func (p *printer) VisitLogicalExpr(e *LogicalExpr) interface{} {
	return p.list(e.Operator, p.expr(e.Left), p.expr(e.Right))
}

func (p *printer) VisitUnaryExpr(e *UnaryExpr) interface{} {
	return p.list(e.Operator, p.expr(e.Operand))
}

func (p *printer) VisitLiteralExpr(e *Literal) interface{} {
	switch v := e.Value.(type) {
	case nil:
		return "null"
	case bool:
		return strconv.FormatBool(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return FormatFloat(v)
	case string:
		return strconv.Quote(v)
	}
	return fmt.Sprintf("%v", e.Value)
}

func (p *printer) VisitVariableExpr(e *Variable) interface{} {
	return p.name(e.Name, e.Binding)
}

func (p *printer) VisitAssignExpr(e *Assign) interface{} {
	return p.list(e.Operator, p.expr(e.Target), p.expr(e.Value))
}

func (p *printer) VisitCallExpr(e *CallExpr) interface{} {
	parts := []string{p.expr(e.Callee)}
	for _, arg := range e.Args {
		parts = append(parts, p.expr(arg))
	}
	return p.list("call", parts...)
}

func (p *printer) VisitIndexExpr(e *IndexExpr) interface{} {
	return p.list("index", p.expr(e.Object), p.expr(e.Index))
}

func (p *printer) VisitArrayExpr(e *ArrayExpr) interface{} {
	var parts []string
	for _, el := range e.Elements {
		parts = append(parts, p.expr(el))
	}
	return p.list("array", parts...)
}

func (p *printer) VisitBlockExpr(e *BlockExpr) interface{} {
	var parts []string
	for _, s := range e.Stmts {
		parts = append(parts, p.stmt(s))
	}
	if e.Tail != nil {
		parts = append(parts, p.expr(e.Tail))
	}
	return p.list("block", parts...)
}

func (p *printer) VisitIfExpr(e *IfExpr) interface{} {
	parts := []string{p.expr(e.Cond), p.expr(e.ThenBranch)}
	if e.ElseBranch != nil {
		parts = append(parts, p.expr(e.ElseBranch))
	}
	return p.list("if", parts...)
}

func (p *printer) VisitWhileExpr(e *WhileExpr) interface{} {
	return p.list("while", p.expr(e.Cond), p.expr(e.Body))
}

func (p *printer) VisitForInExpr(e *ForInExpr) interface{} {
	return p.list("for", p.name(e.Variable, e.Binding), p.expr(e.Collection), p.expr(e.Body))
}

func (p *printer) VisitLambdaExpr(e *LambdaExpr) interface{} {
	params := make([]string, len(e.Params))
	for i, param := range e.Params {
		params[i] = p.name(param.Name, param.Binding)
		if param.Mutable {
			params[i] = "mut " + params[i]
		}
	}
	name := e.Name
	if name == "" {
		name = "_"
	}
	return p.list("func", name, "("+strings.Join(params, " ")+")", p.expr(e.Body))
}

func (p *printer) VisitErrorExpr(e *ErrorExpr) interface{} {
	return "(error)"
}

func (p *printer) VisitLetStmt(s *LetStmt) interface{} {
	head := "let"
	if s.Const {
		head = "const"
	} else if s.Mutable {
		head = "let mut"
	}
	if s.Expr == nil {
		return p.list(head, p.name(s.Name, s.Binding))
	}
	return p.list(head, p.name(s.Name, s.Binding), p.expr(s.Expr))
}

func (p *printer) VisitFunctionStmt(s *FunctionStmt) interface{} {
	return p.expr(s.Lambda)
}

func (p *printer) VisitExpressionStmt(s *ExpressionStmt) interface{} {
	return p.expr(s.Expr) + ";"
}

func (p *printer) VisitReturnStmt(s *ReturnStmt) interface{} {
	if s.Value == nil {
		return "(return)"
	}
	return p.list("return", p.expr(s.Value))
}

func (p *printer) VisitBreakStmt(s *BreakStmt) interface{} {
	return "(break)"
}

func (p *printer) VisitContinueStmt(s *ContinueStmt) interface{} {
	return "(continue)"
}

func (p *printer) VisitErrorStmt(s *ErrorStmt) interface{} {
	return "(error)"
}

// FormatFloat formats f so it always reads back as a float: 3 prints as 3.0.
func FormatFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	case math.IsNaN(f):
		return "nan"
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}
