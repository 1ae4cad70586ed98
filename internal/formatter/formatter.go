// Package formatter rewrites Terbium source in its canonical layout.
package formatter

import (
	"strings"
	"unicode"

	"github.com/pkg/errors"

	"github.com/Cryptex-github/Terbium/internal/diag"
	"github.com/Cryptex-github/Terbium/internal/lexer"
	"github.com/Cryptex-github/Terbium/internal/parser"
)

// ErrComments is returned for sources with comments, which the syntax
// tree does not keep.
var ErrComments = errors.New("source contains comments")

// maxInline is the longest block body printed on the same line as its
// braces.
const maxInline = 60

type Formatter struct {
	indentStr string
	source    string
}

func NewFormatter() *Formatter {
	return &Formatter{indentStr: "    "}
}

// Format parses source and prints it back. Literals keep their original
// spelling; single blank lines between statements are kept.
func Format(source string) (string, error) {
	return NewFormatter().Format(source)
}

func (f *Formatter) Format(source string) (string, error) {
	diags := diag.NewCollector()
	tokens := lexer.Tokenize(source, diags)
	if diags.HasErrors() {
		return "", errors.Errorf("cannot format: %s", diags.All()[0].Error())
	}
	if at, ok := uncovered(source, tokens); ok {
		return "", errors.Wrapf(ErrComments, "cannot format: text at byte %d", at)
	}
	program := parser.NewParser(tokens, diags).Parse()
	if diags.HasErrors() {
		return "", errors.Errorf("cannot format: %s", diags.All()[0].Error())
	}

	f.source = source
	out := f.body(program.Stmts, program.Tail, 0)
	if out == "" {
		return "", nil
	}
	return out + "\n", nil
}

// uncovered returns the offset of the first non-space byte outside every
// token. Only comments and a shebang line are dropped by the scanner.
func uncovered(source string, tokens []lexer.Token) (int, bool) {
	pos := 0
	check := func(end int) (int, bool) {
		for i, r := range source[pos:end] {
			if !unicode.IsSpace(r) {
				return pos + i, true
			}
		}
		return 0, false
	}
	for _, tok := range tokens {
		if tok.Type == lexer.TokenEOF {
			break
		}
		if at, ok := check(tok.Span.Start); ok {
			return at, true
		}
		pos = tok.Span.End
	}
	return check(len(source))
}

func (f *Formatter) indent(depth int) string {
	return strings.Repeat(f.indentStr, depth)
}

// body prints statements and an optional tail, one per line, at depth.
func (f *Formatter) body(stmts []parser.Stmt, tail parser.Expr, depth int) string {
	type item struct {
		text string
		span diag.Span
		stmt parser.Stmt
	}
	var items []item
	for _, s := range stmts {
		items = append(items, item{text: f.stmt(s, depth), span: s.Pos(), stmt: s})
	}
	if tail != nil {
		items = append(items, item{text: f.statementExpr(tail, depth), span: tail.Pos()})
	}

	var sb strings.Builder
	for i, it := range items {
		text := it.text
		if es, ok := it.stmt.(*parser.ExpressionStmt); ok {
			next := ""
			if i+1 < len(items) {
				next = items[i+1].text
			}
			if needsSemicolon(es.Expr, next) {
				text += ";"
			}
		}
		if i > 0 {
			sb.WriteByte('\n')
			if f.needsBlankLine(items[i-1].stmt, it.stmt, items[i-1].span, it.span) {
				sb.WriteByte('\n')
			}
		}
		sb.WriteString(f.indent(depth))
		sb.WriteString(text)
	}
	return sb.String()
}

// needsSemicolon decides whether an expression statement keeps its ';'.
// A block-like statement drops it unless it is last, where it would
// become the block's value.
func needsSemicolon(e parser.Expr, next string) bool {
	return !parser.IsBlockLike(e) || next == ""
}

// statementExpr prints an expression in statement position. One that
// starts with an if, loop or block operand is parenthesized, since a
// statement starting with one of those ends at its closing brace.
func (f *Formatter) statementExpr(e parser.Expr, depth int) string {
	text := f.expr(e, depth)
	if leadsWithBlock(e) {
		return "(" + text + ")"
	}
	return text
}

func leadsWithBlock(e parser.Expr) bool {
	for {
		var left parser.Expr
		switch x := e.(type) {
		case *parser.Binary:
			left = x.Left
		case *parser.LogicalExpr:
			left = x.Left
		case *parser.Assign:
			left = x.Target
		default:
			return false
		}
		if parser.IsBlockLike(left) {
			return true
		}
		e = left
	}
}

func (f *Formatter) needsBlankLine(prev, curr parser.Stmt, prevSpan, currSpan diag.Span) bool {
	// Add blank line between function definitions and other code
	_, prevIsFunc := prev.(*parser.FunctionStmt)
	_, currIsFunc := curr.(*parser.FunctionStmt)
	if prevIsFunc || currIsFunc {
		return true
	}
	// Keep one blank line where the source had any
	if prevSpan.End <= currSpan.Start && currSpan.Start <= len(f.source) {
		gap := f.source[prevSpan.End:currSpan.Start]
		return strings.Count(gap, "\n") > 1
	}
	return false
}

func (f *Formatter) stmt(stmt parser.Stmt, depth int) string {
	switch s := stmt.(type) {
	case *parser.LetStmt:
		head := "let "
		if s.Const {
			head = "const "
		} else if s.Mutable {
			head = "let mut "
		}
		if s.Expr == nil {
			return head + s.Name + ";"
		}
		return head + s.Name + " = " + f.expr(s.Expr, depth) + ";"

	case *parser.FunctionStmt:
		return f.lambda(s.Name, s.Lambda, depth)

	case *parser.ExpressionStmt:
		return f.statementExpr(s.Expr, depth)

	case *parser.ReturnStmt:
		if s.Value == nil {
			return "return;"
		}
		return "return " + f.expr(s.Value, depth) + ";"

	case *parser.BreakStmt:
		return "break;"

	case *parser.ContinueStmt:
		return "continue;"
	}
	return f.slice(stmt.Pos())
}

func (f *Formatter) slice(span diag.Span) string {
	if span.Start < 0 || span.End > len(f.source) || span.Start > span.End {
		return ""
	}
	return f.source[span.Start:span.End]
}

// prec is the binding power of e as an operand.
func prec(e parser.Expr) int {
	switch e := e.(type) {
	case *parser.Assign:
		p, _, _ := parser.Precedence(e.Operator)
		return p
	case *parser.Binary:
		p, _, _ := parser.Precedence(e.Operator)
		return p
	case *parser.LogicalExpr:
		p, _, _ := parser.Precedence(e.Operator)
		return p
	case *parser.UnaryExpr:
		return parser.UnaryPrecedence
	}
	return 1 << 10
}

// operand prints e, parenthesized when it binds looser than least.
func (f *Formatter) operand(e parser.Expr, least, depth int) string {
	text := f.expr(e, depth)
	if prec(e) < least {
		return "(" + text + ")"
	}
	return text
}

func (f *Formatter) binary(left parser.Expr, op string, right parser.Expr, depth int) string {
	p, rightAssoc, _ := parser.Precedence(op)
	lmin, rmin := p, p+1
	if rightAssoc {
		lmin, rmin = p+1, p
	}
	if _, ok := right.(*parser.UnaryExpr); ok && op == "**" {
		rmin = 0
	}
	return f.operand(left, lmin, depth) + " " + op + " " + f.operand(right, rmin, depth)
}

// postfix prints the target of a call or index.
func (f *Formatter) postfix(e parser.Expr, depth int) string {
	switch e.(type) {
	case *parser.Variable, *parser.CallExpr, *parser.IndexExpr, *parser.ArrayExpr, *parser.Literal:
		return f.expr(e, depth)
	}
	return "(" + f.expr(e, depth) + ")"
}

func (f *Formatter) expr(expr parser.Expr, depth int) string {
	switch e := expr.(type) {
	case *parser.Literal:
		return f.slice(e.Span)
	case *parser.Variable:
		return e.Name
	case *parser.Binary:
		return f.binary(e.Left, e.Operator, e.Right, depth)
	case *parser.LogicalExpr:
		return f.binary(e.Left, e.Operator, e.Right, depth)
	case *parser.Assign:
		return f.binary(e.Target, e.Operator, e.Value, depth)
	case *parser.UnaryExpr:
		return e.Operator + f.operand(e.Operand, parser.UnaryPrecedence, depth)
	case *parser.CallExpr:
		args := make([]string, len(e.Args))
		for i, arg := range e.Args {
			args[i] = f.expr(arg, depth)
		}
		return f.postfix(e.Callee, depth) + "(" + strings.Join(args, ", ") + ")"
	case *parser.IndexExpr:
		return f.postfix(e.Object, depth) + "[" + f.expr(e.Index, depth) + "]"
	case *parser.ArrayExpr:
		elems := make([]string, len(e.Elements))
		for i, el := range e.Elements {
			elems[i] = f.expr(el, depth)
		}
		return "[" + strings.Join(elems, ", ") + "]"
	case *parser.BlockExpr:
		return f.block(e, depth)
	case *parser.IfExpr:
		text := "if " + f.expr(e.Cond, depth) + " " + f.block(e.ThenBranch, depth)
		switch els := e.ElseBranch.(type) {
		case nil:
		case *parser.BlockExpr:
			text += " else " + f.block(els, depth)
		default:
			text += " else " + f.expr(els, depth)
		}
		return text
	case *parser.WhileExpr:
		return "while " + f.expr(e.Cond, depth) + " " + f.block(e.Body, depth)
	case *parser.ForInExpr:
		return "for " + e.Variable + " in " + f.expr(e.Collection, depth) + " " + f.block(e.Body, depth)
	case *parser.LambdaExpr:
		return f.lambda("", e, depth)
	}
	return f.slice(expr.Pos())
}

func (f *Formatter) lambda(name string, e *parser.LambdaExpr, depth int) string {
	params := make([]string, len(e.Params))
	for i, p := range e.Params {
		params[i] = p.Name
		if p.Mutable {
			params[i] = "mut " + p.Name
		}
	}
	head := "func"
	if name != "" {
		head += " " + name
	}
	return head + "(" + strings.Join(params, ", ") + ") " + f.block(e.Body, depth)
}

func (f *Formatter) block(b *parser.BlockExpr, depth int) string {
	if len(b.Stmts) == 0 && b.Tail == nil {
		return "{ }"
	}
	if len(b.Stmts) == 0 && !parser.IsBlockLike(b.Tail) {
		if tail := f.expr(b.Tail, depth); len(tail) <= maxInline && !strings.Contains(tail, "\n") {
			return "{ " + tail + " }"
		}
	}
	return "{\n" + f.body(b.Stmts, b.Tail, depth+1) + "\n" + f.indent(depth) + "}"
}
