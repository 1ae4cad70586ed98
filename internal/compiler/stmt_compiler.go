// internal/compiler/stmt_compiler.go
package compiler

import (
	"github.com/Cryptex-github/Terbium/internal/bytecode"
	"github.com/Cryptex-github/Terbium/internal/parser"
)

var binaryOps = map[string]bytecode.OpCode{
	"+":  bytecode.OpAdd,
	"-":  bytecode.OpSub,
	"*":  bytecode.OpMul,
	"/":  bytecode.OpDiv,
	"%":  bytecode.OpMod,
	"**": bytecode.OpPow,
	"&":  bytecode.OpBitAnd,
	"|":  bytecode.OpBitOr,
	"^":  bytecode.OpBitXor,
	"<<": bytecode.OpShl,
	">>": bytecode.OpShr,
	"==": bytecode.OpEqual,
	"!=": bytecode.OpNotEqual,
	"<":  bytecode.OpLess,
	"<=": bytecode.OpLessEqual,
	">":  bytecode.OpGreater,
	">=": bytecode.OpGreaterEqual,
	"..": bytecode.OpRange,
}

var unaryOps = map[string]bytecode.OpCode{
	"-": bytecode.OpNegate,
	"+": bytecode.OpPlus,
	"!": bytecode.OpNot,
	"~": bytecode.OpBitNot,
}

func (c *Compiler) expr(e parser.Expr) {
	done := c.at(e.Pos())
	e.Accept(c)
	done()
}

func (c *Compiler) stmt(s parser.Stmt) {
	done := c.at(s.Pos())
	s.Accept(c)
	done()
}

func (c *Compiler) binaryOp(operator string) {
	op, ok := binaryOps[operator]
	if !ok {
		c.fail("unknown binary operator %q", operator)
	}
	c.emitOp(op)
}

// load pushes the value of a resolved name.
func (c *Compiler) load(b *parser.Binding) {
	if b == nil {
		c.fail("name was never resolved")
	}
	switch b.Kind {
	case parser.Global:
		c.emit(bytecode.OpLoadGlobal, b.Index)
	case parser.Local:
		if b.Captured {
			c.emit(bytecode.OpLoadCell, b.Index)
		} else {
			c.emit(bytecode.OpLoadLocal, b.Index)
		}
	case parser.Free:
		c.emit(bytecode.OpLoadFree, b.Index)
	case parser.Builtin:
		c.emit(bytecode.OpLoadBuiltin, b.Index)
	default:
		c.fail("unresolved name %q reached the compiler", b.Name)
	}
}

// store pops the top of the stack into a resolved name.
func (c *Compiler) store(b *parser.Binding) {
	if b == nil {
		c.fail("name was never resolved")
	}
	switch b.Kind {
	case parser.Global:
		c.emit(bytecode.OpStoreGlobal, b.Index)
	case parser.Local:
		if b.Captured {
			c.emit(bytecode.OpStoreCell, b.Index)
		} else {
			c.emit(bytecode.OpStoreLocal, b.Index)
		}
	case parser.Free:
		c.emit(bytecode.OpStoreFree, b.Index)
	default:
		c.fail("cannot store to %s %q", b.Kind, b.Name)
	}
}

// Expressions. Each leaves exactly one value on the stack.

func (c *Compiler) VisitLiteralExpr(e *parser.Literal) interface{} {
	switch v := e.Value.(type) {
	case nil:
		c.emitOp(bytecode.OpNull)
	case bool:
		if v {
			c.emitOp(bytecode.OpTrue)
		} else {
			c.emitOp(bytecode.OpFalse)
		}
	case int64:
		c.emit(bytecode.OpConstant, c.constant(bytecode.IntConst(v)))
	case float64:
		c.emit(bytecode.OpConstant, c.constant(bytecode.FloatConst(v)))
	case string:
		c.emit(bytecode.OpConstant, c.constant(bytecode.StringConst(v)))
	default:
		c.fail("literal of unexpected type %T", v)
	}
	return nil
}

func (c *Compiler) VisitBinaryExpr(e *parser.Binary) interface{} {
	c.expr(e.Left)
	c.expr(e.Right)
	c.binaryOp(e.Operator)
	return nil
}

// VisitLogicalExpr short-circuits: the left value is the result when it
// decides the outcome.
func (c *Compiler) VisitLogicalExpr(e *parser.LogicalExpr) interface{} {
	op := bytecode.OpJumpIfFalse
	if e.Operator == "||" {
		op = bytecode.OpJumpIfTrue
	}
	end := c.newLabel()
	c.expr(e.Left)
	c.emitOp(bytecode.OpDup)
	c.jump(op, end)
	c.emitOp(bytecode.OpPop)
	c.expr(e.Right)
	c.bind(end)
	return nil
}

func (c *Compiler) VisitUnaryExpr(e *parser.UnaryExpr) interface{} {
	op, ok := unaryOps[e.Operator]
	if !ok {
		c.fail("unknown unary operator %q", e.Operator)
	}
	c.expr(e.Operand)
	c.emitOp(op)
	return nil
}

func (c *Compiler) VisitVariableExpr(e *parser.Variable) interface{} {
	c.load(e.Binding)
	return nil
}

// VisitAssignExpr leaves the assigned value on the stack.
func (c *Compiler) VisitAssignExpr(e *parser.Assign) interface{} {
	switch target := e.Target.(type) {
	case *parser.Variable:
		if e.Compound() {
			c.load(target.Binding)
			c.expr(e.Value)
			c.binaryOp(e.BinaryOperator())
		} else {
			c.expr(e.Value)
		}
		c.emitOp(bytecode.OpDup)
		c.store(target.Binding)
	case *parser.IndexExpr:
		c.expr(target.Object)
		c.expr(target.Index)
		if e.Compound() {
			c.emitOp(bytecode.OpDup2)
			c.emitOp(bytecode.OpIndex)
			c.expr(e.Value)
			c.binaryOp(e.BinaryOperator())
		} else {
			c.expr(e.Value)
		}
		c.emitOp(bytecode.OpSetIndex)
	default:
		c.fail("invalid assignment target %T", e.Target)
	}
	return nil
}

func (c *Compiler) VisitCallExpr(e *parser.CallExpr) interface{} {
	c.expr(e.Callee)
	for _, arg := range e.Args {
		c.expr(arg)
	}
	c.emit(bytecode.OpCall, len(e.Args))
	return nil
}

func (c *Compiler) VisitIndexExpr(e *parser.IndexExpr) interface{} {
	c.expr(e.Object)
	c.expr(e.Index)
	c.emitOp(bytecode.OpIndex)
	return nil
}

func (c *Compiler) VisitArrayExpr(e *parser.ArrayExpr) interface{} {
	for _, el := range e.Elements {
		c.expr(el)
	}
	c.emit(bytecode.OpArray, len(e.Elements))
	return nil
}

func (c *Compiler) VisitBlockExpr(e *parser.BlockExpr) interface{} {
	c.block(e.Stmts, e.Tail, e.Cells)
	return nil
}

func (c *Compiler) VisitIfExpr(e *parser.IfExpr) interface{} {
	elseLabel, end := c.newLabel(), c.newLabel()
	c.expr(e.Cond)
	c.jump(bytecode.OpJumpIfFalse, elseLabel)
	c.expr(e.ThenBranch)
	c.jump(bytecode.OpJump, end)
	c.bind(elseLabel)
	if e.ElseBranch != nil {
		c.expr(e.ElseBranch)
	} else {
		c.emitOp(bytecode.OpNull)
	}
	c.bind(end)
	return nil
}

func (c *Compiler) VisitWhileExpr(e *parser.WhileExpr) interface{} {
	start, end := c.newLabel(), c.newLabel()
	c.bind(start)
	depth := c.fn.depth
	c.expr(e.Cond)
	c.jump(bytecode.OpJumpIfFalse, end)

	c.fn.loops = append(c.fn.loops, loop{breakLabel: end, continueLabel: start, depth: depth})
	c.expr(e.Body)
	c.emitOp(bytecode.OpPop)
	c.jump(bytecode.OpJump, start)
	c.fn.loops = c.fn.loops[:len(c.fn.loops)-1]

	c.bind(end)
	c.emitOp(bytecode.OpNull)
	return nil
}

// VisitForInExpr keeps the iterator on the stack for the whole loop. A
// captured loop variable gets a fresh cell on every iteration.
func (c *Compiler) VisitForInExpr(e *parser.ForInExpr) interface{} {
	b := e.Binding
	if b == nil || b.Kind != parser.Local {
		c.fail("loop variable %q is not a local", e.Variable)
	}
	c.expr(e.Collection)
	c.emitOp(bytecode.OpIterPrep)

	next, exit := c.newLabel(), c.newLabel()
	c.bind(next)
	depth := c.fn.depth
	c.jump(bytecode.OpIterNext, exit)
	if b.Captured {
		c.emit(bytecode.OpMakeCell, b.Index)
	} else {
		c.emit(bytecode.OpStoreLocal, b.Index)
	}

	c.fn.loops = append(c.fn.loops, loop{breakLabel: exit, continueLabel: next, depth: depth})
	c.expr(e.Body)
	c.emitOp(bytecode.OpPop)
	c.jump(bytecode.OpJump, next)
	c.fn.loops = c.fn.loops[:len(c.fn.loops)-1]

	c.bind(exit)
	c.emitOp(bytecode.OpPop)
	c.emitOp(bytecode.OpNull)
	return nil
}

func (c *Compiler) VisitLambdaExpr(e *parser.LambdaExpr) interface{} {
	c.closure(e)
	return nil
}

func (c *Compiler) VisitErrorExpr(e *parser.ErrorExpr) interface{} {
	c.fail("syntax error node at %s reached the compiler", e.Span)
	return nil
}

// Statements. Each leaves the stack as it found it.

func (c *Compiler) VisitLetStmt(s *parser.LetStmt) interface{} {
	if s.Expr != nil {
		c.expr(s.Expr)
	} else {
		c.emitOp(bytecode.OpNull)
	}
	c.store(s.Binding)
	return nil
}

// VisitFunctionStmt does nothing: declarations are emitted by the block
// prologue.
func (c *Compiler) VisitFunctionStmt(s *parser.FunctionStmt) interface{} {
	return nil
}

func (c *Compiler) VisitExpressionStmt(s *parser.ExpressionStmt) interface{} {
	c.expr(s.Expr)
	c.emitOp(bytecode.OpPop)
	return nil
}

func (c *Compiler) VisitReturnStmt(s *parser.ReturnStmt) interface{} {
	if s.Value != nil {
		c.expr(s.Value)
	} else {
		c.emitOp(bytecode.OpNull)
	}
	c.emitOp(bytecode.OpReturn)
	return nil
}

func (c *Compiler) VisitBreakStmt(s *parser.BreakStmt) interface{} {
	l := c.innermostLoop("break")
	c.leaveTo(l.depth, l.breakLabel)
	return nil
}

func (c *Compiler) VisitContinueStmt(s *parser.ContinueStmt) interface{} {
	l := c.innermostLoop("continue")
	c.leaveTo(l.depth, l.continueLabel)
	return nil
}

func (c *Compiler) VisitErrorStmt(s *parser.ErrorStmt) interface{} {
	c.fail("syntax error node at %s reached the compiler", s.Span)
	return nil
}

func (c *Compiler) innermostLoop(what string) loop {
	if len(c.fn.loops) == 0 {
		c.fail("%s outside of a loop reached the compiler", what)
	}
	return c.fn.loops[len(c.fn.loops)-1]
}

// leaveTo drops the temporaries above depth and jumps to target. The code
// after the jump is unreachable, so the depth it is compiled at is the one
// the statement started with.
func (c *Compiler) leaveTo(depth, target int) {
	saved := c.fn.depth
	for c.fn.depth > depth {
		c.emitOp(bytecode.OpPop)
	}
	c.jump(bytecode.OpJump, target)
	c.fn.depth = saved
}
