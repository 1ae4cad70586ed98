package lsp

import (
	"strings"
	"unicode/utf8"

	"github.com/Cryptex-github/Terbium/internal/diag"
	"github.com/Cryptex-github/Terbium/internal/parser"
)

// offsetPosition converts a byte offset into a zero-based position.
func offsetPosition(source string, offset int) Position {
	if offset > len(source) {
		offset = len(source)
	}
	var pos Position
	for _, r := range source[:offset] {
		if r == '\n' {
			pos.Line++
			pos.Character = 0
		} else {
			pos.Character++
		}
	}
	return pos
}

// positionOffset is the inverse of offsetPosition. Positions past the end
// of a line clamp to the line end.
func positionOffset(source string, pos Position) int {
	offset := 0
	for line := 0; line < pos.Line; line++ {
		i := strings.IndexByte(source[offset:], '\n')
		if i < 0 {
			return len(source)
		}
		offset += i + 1
	}
	for n := 0; n < pos.Character && offset < len(source) && source[offset] != '\n'; n++ {
		_, size := utf8.DecodeRuneInString(source[offset:])
		offset += size
	}
	return offset
}

func spanRange(source string, span diag.Span) Range {
	end := span.End
	if end < span.Start {
		end = span.Start
	}
	return Range{Start: offsetPosition(source, span.Start), End: offsetPosition(source, end)}
}

// wordAt returns the identifier prefix ending at pos.
func wordAt(source string, pos Position) string {
	end := positionOffset(source, pos)
	start := end
	for start > 0 && isIdentChar(source[start-1]) {
		start--
	}
	return source[start:end]
}

// wordAround returns the whole identifier touching pos.
func wordAround(source string, pos Position) string {
	end := positionOffset(source, pos)
	start := end
	for start > 0 && isIdentChar(source[start-1]) {
		start--
	}
	for end < len(source) && isIdentChar(source[end]) {
		end++
	}
	return source[start:end]
}

func isIdentChar(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_'
}

// root follows captures back to the declaring binding.
func root(b *parser.Binding) *parser.Binding {
	for b.Kind == parser.Free && b.Outer != nil {
		b = b.Outer
	}
	return b
}

// variableAt finds the variable reference under the cursor. The position
// just after the last character still counts.
func variableAt(doc *Document, pos Position) *parser.Variable {
	offset := positionOffset(doc.Content, pos)
	var found *parser.Variable
	w := walker{visit: func(e parser.Expr) {
		if v, ok := e.(*parser.Variable); ok && v.Span.Start <= offset && offset <= v.Span.End {
			found = v
		}
	}}
	w.stmts(doc.program.Stmts)
	w.expr(doc.program.Tail)
	return found
}

// walker calls visit on every expression of a tree, outermost first.
type walker struct {
	visit func(parser.Expr)
}

func (w walker) stmts(stmts []parser.Stmt) {
	for _, s := range stmts {
		switch s := s.(type) {
		case *parser.LetStmt:
			w.expr(s.Expr)
		case *parser.FunctionStmt:
			if s.Lambda != nil {
				w.expr(s.Lambda)
			}
		case *parser.ExpressionStmt:
			w.expr(s.Expr)
		case *parser.ReturnStmt:
			w.expr(s.Value)
		}
	}
}

func (w walker) expr(e parser.Expr) {
	if e == nil {
		return
	}
	w.visit(e)
	switch e := e.(type) {
	case *parser.Binary:
		w.expr(e.Left)
		w.expr(e.Right)
	case *parser.LogicalExpr:
		w.expr(e.Left)
		w.expr(e.Right)
	case *parser.UnaryExpr:
		w.expr(e.Operand)
	case *parser.Assign:
		w.expr(e.Target)
		w.expr(e.Value)
	case *parser.CallExpr:
		w.expr(e.Callee)
		for _, a := range e.Args {
			w.expr(a)
		}
	case *parser.IndexExpr:
		w.expr(e.Object)
		w.expr(e.Index)
	case *parser.ArrayExpr:
		for _, el := range e.Elements {
			w.expr(el)
		}
	case *parser.BlockExpr:
		w.block(e)
	case *parser.IfExpr:
		w.expr(e.Cond)
		w.block(e.ThenBranch)
		w.expr(e.ElseBranch)
	case *parser.WhileExpr:
		w.expr(e.Cond)
		w.block(e.Body)
	case *parser.ForInExpr:
		w.expr(e.Collection)
		w.block(e.Body)
	case *parser.LambdaExpr:
		w.block(e.Body)
	}
}

func (w walker) block(b *parser.BlockExpr) {
	if b == nil {
		return
	}
	w.stmts(b.Stmts)
	w.expr(b.Tail)
}
