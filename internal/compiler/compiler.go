// internal/compiler/compiler.go

// Package compiler lowers an analyzed program to a bytecode module.
//
// Code is emitted per function into separate buffers. Jumps carry label ids
// while a function is being emitted; once every function is laid out in the
// module's instruction stream, link rewrites each label to an absolute
// instruction index.
package compiler

import (
	"fmt"
	"math"

	"github.com/pkg/errors"

	"github.com/Cryptex-github/Terbium/internal/bytecode"
	"github.com/Cryptex-github/Terbium/internal/diag"
	"github.com/Cryptex-github/Terbium/internal/parser"
)

// ErrInternal is the cause of every error Compile returns. Compile only
// fails when the program it was given is not a clean analyzer result.
var ErrInternal = errors.New("internal compiler error")

type internalError struct {
	msg string
}

type label struct {
	fn    int // owning function
	at    int // offset in the owner's buffer, -1 until bound
	depth int // stack depth at the target, -1 until known
}

type loop struct {
	breakLabel    int
	continueLabel int
	depth         int
}

// function is the emission state of one function body.
type function struct {
	index    int
	code     []bytecode.Instruction
	lines    []bytecode.Pos
	depth    int
	maxDepth int
	loops    []loop
}

// Compiler holds the state of a single compilation. It is not reusable.
type Compiler struct {
	module    *bytecode.Module
	funcs     []*function
	fn        *function
	labels    []label
	constants map[constKey]int
	spans     []diag.Span
}

type constKey struct {
	kind bytecode.ConstKind
	bits uint64
	str  string
}

// Compile lowers program, which must have passed the analyzer without
// errors, to a verified module.
func Compile(program *parser.Program) (m *bytecode.Module, err error) {
	if program == nil || program.Main == nil {
		return nil, errors.Wrap(ErrInternal, "program has not been analyzed")
	}
	c := &Compiler{
		module:    bytecode.NewModule(),
		constants: make(map[constKey]int),
	}
	defer func() {
		if r := recover(); r != nil {
			ie, ok := r.(internalError)
			if !ok {
				panic(r)
			}
			m, err = nil, errors.Wrap(ErrInternal, ie.msg)
		}
	}()

	for _, g := range program.Globals {
		c.module.Globals = append(c.module.Globals, g.Name)
	}
	c.fn = c.beginFunction("<main>", 0, program.Main)
	done := c.at(program.Span)
	c.block(program.Stmts, program.Tail, nil)
	c.emit(bytecode.OpReturn, 0)
	done()

	c.link()
	if err := bytecode.Verify(c.module); err != nil {
		return nil, errors.Wrapf(ErrInternal, "generated code does not verify: %v", err)
	}
	return c.module, nil
}

// beginFunction registers a function table entry up front so CLOSURE
// instructions referring to it have a known stack effect.
func (c *Compiler) beginFunction(name string, arity int, info *parser.FuncInfo) *function {
	f := &function{index: len(c.module.Functions)}
	c.module.Functions = append(c.module.Functions, bytecode.Function{
		Name:      name,
		Arity:     arity,
		NumLocals: info.NumLocals,
		NumFree:   len(info.FreeVars),
	})
	c.funcs = append(c.funcs, f)
	return f
}

// link lays the function buffers out in table order and resolves labels.
func (c *Compiler) link() {
	m := c.module
	for _, f := range c.funcs {
		entry := len(m.Code)
		for i, ins := range f.code {
			if ins.Op.IsJump() {
				l := c.labels[ins.Operand]
				if l.at < 0 {
					c.fail("label %d in %s is never bound", ins.Operand, m.Functions[f.index].Name)
				}
				if l.fn != f.index {
					c.fail("jump at %d of %s targets another function", i, m.Functions[f.index].Name)
				}
				ins.Operand = entry + l.at
			}
			m.Code = append(m.Code, ins)
		}
		m.Lines = append(m.Lines, f.lines...)
		fn := &m.Functions[f.index]
		fn.Entry = entry
		fn.End = len(m.Code)
		fn.MaxStack = f.maxDepth
	}
}

func (c *Compiler) fail(format string, args ...interface{}) {
	panic(internalError{msg: fmt.Sprintf(format, args...)})
}

// at makes span the source position of the instructions emitted until the
// returned function is called.
func (c *Compiler) at(span diag.Span) func() {
	c.spans = append(c.spans, span)
	return func() { c.spans = c.spans[:len(c.spans)-1] }
}

func (c *Compiler) pos() bytecode.Pos {
	if len(c.spans) == 0 {
		return bytecode.Pos{}
	}
	s := c.spans[len(c.spans)-1]
	return bytecode.Pos{Line: s.Line, Column: s.Column}
}

func (c *Compiler) emit(op bytecode.OpCode, operand int) int {
	f := c.fn
	ins := bytecode.Instruction{Op: op, Operand: operand}
	pops, pushes := c.module.StackEffect(ins)
	if f.depth < pops {
		c.fail("%s pops %d values from a stack of %d", op, pops, f.depth)
	}
	f.depth += pushes - pops
	if f.depth > f.maxDepth {
		f.maxDepth = f.depth
	}
	f.code = append(f.code, ins)
	f.lines = append(f.lines, c.pos())
	return len(f.code) - 1
}

func (c *Compiler) emitOp(op bytecode.OpCode) int {
	return c.emit(op, 0)
}

func (c *Compiler) newLabel() int {
	c.labels = append(c.labels, label{fn: c.fn.index, at: -1, depth: -1})
	return len(c.labels) - 1
}

// bind places l at the next instruction. A label that is already the
// target of a jump restores the stack depth that jump left.
func (c *Compiler) bind(l int) {
	lb := &c.labels[l]
	if lb.at >= 0 {
		c.fail("label %d bound twice", l)
	}
	lb.at = len(c.fn.code)
	if lb.depth >= 0 {
		c.fn.depth = lb.depth
	} else {
		lb.depth = c.fn.depth
	}
}

// jump emits a jump to l and records the depth on the taken edge.
func (c *Compiler) jump(op bytecode.OpCode, l int) {
	before := c.fn.depth
	c.emit(op, l)
	target := c.fn.depth
	if op == bytecode.OpIterNext {
		target = before
	}
	lb := &c.labels[l]
	switch {
	case lb.depth < 0:
		lb.depth = target
	case lb.depth != target:
		c.fail("jump to label %d with depth %d, expected %d", l, target, lb.depth)
	}
}

// constant returns the pool index of k, adding it on first use.
func (c *Compiler) constant(k bytecode.Constant) int {
	key := constKey{kind: k.Kind}
	switch k.Kind {
	case bytecode.ConstInt:
		key.bits = uint64(k.Int)
	case bytecode.ConstFloat:
		key.bits = math.Float64bits(k.Float)
	case bytecode.ConstString:
		key.str = k.Str
	case bytecode.ConstBool:
		if k.Bool {
			key.bits = 1
		}
	}
	if i, ok := c.constants[key]; ok {
		return i
	}
	i := c.module.AddConstant(k)
	c.constants[key] = i
	return i
}
