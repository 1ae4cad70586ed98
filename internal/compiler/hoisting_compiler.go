// internal/compiler/hoisting_compiler.go
package compiler

import (
	"github.com/Cryptex-github/Terbium/internal/bytecode"
	"github.com/Cryptex-github/Terbium/internal/parser"
)

// block compiles a statement list and its value. The prologue boxes the
// block's captured locals and then creates every function the block
// declares, so declarations are callable from anywhere in the block.
func (c *Compiler) block(stmts []parser.Stmt, tail parser.Expr, cells []*parser.Binding) {
	for _, b := range cells {
		c.emitOp(bytecode.OpNull)
		c.emit(bytecode.OpMakeCell, b.Index)
	}
	c.hoistFunctions(stmts)

	for _, s := range stmts {
		c.stmt(s)
	}
	if tail != nil {
		c.expr(tail)
	} else {
		c.emitOp(bytecode.OpNull)
	}
}

func (c *Compiler) hoistFunctions(stmts []parser.Stmt) {
	for _, s := range stmts {
		fn, ok := s.(*parser.FunctionStmt)
		if !ok {
			continue
		}
		done := c.at(fn.NameSpan)
		c.closure(fn.Lambda)
		c.store(fn.Binding)
		done()
	}
}

// closure compiles the body of e into a new function and emits the code
// that instantiates it in the current one: one cell per free variable,
// then CLOSURE.
func (c *Compiler) closure(e *parser.LambdaExpr) {
	if e.Info == nil {
		c.fail("function literal at %s was never analyzed", e.Span)
	}
	name := e.Name
	if name == "" {
		name = "<lambda>"
	}

	outer := c.fn
	c.fn = c.beginFunction(name, len(e.Params), e.Info)
	index := c.fn.index
	for _, p := range e.Params {
		if p.Binding != nil && p.Binding.Captured {
			c.emit(bytecode.OpLoadLocal, p.Binding.Index)
			c.emit(bytecode.OpMakeCell, p.Binding.Index)
		}
	}
	c.expr(e.Body)
	c.emitOp(bytecode.OpReturn)
	c.fn = outer

	for _, fv := range e.Info.FreeVars {
		switch {
		case fv.Kind == parser.Local && fv.Captured:
			c.emit(bytecode.OpLoadCellRef, fv.Index)
		case fv.Kind == parser.Free:
			c.emit(bytecode.OpLoadFreeRef, fv.Index)
		default:
			c.fail("%s %q cannot be captured", fv.Kind, fv.Name)
		}
	}
	c.emit(bytecode.OpClosure, index)
}
