// internal/vm/vm.go

// Package vm executes compiled Terbium modules on a stack machine.
package vm

import (
	"io"

	"github.com/Cryptex-github/Terbium/internal/bytecode"
)

// DefaultMaxFrames bounds the call depth when Options.MaxFrames is zero.
const DefaultMaxFrames = 1024

// TraceInfo describes one dispatched instruction.
type TraceInfo struct {
	Function string
	IP       int
	Op       bytecode.OpCode
	Operand  int
	Depth    int // operand stack height before the instruction
}

// TraceHook observes instruction dispatch.
type TraceHook func(TraceInfo)

// Options configures a VM. MaxSteps bounds how many instructions one Run
// may dispatch; zero means no limit.
type Options struct {
	// Stdout receives the output of print. Nil discards it.
	Stdout    io.Writer
	MaxFrames int
	MaxSteps  int64
	Trace     TraceHook
}

// CallFrame is one active function invocation.
type CallFrame struct {
	closure *Closure
	ip      int
	base    int // operand stack height at entry
	locals  []Value
}

// VM runs a single module. It is not safe for concurrent use; run
// independent modules on independent VMs.
type VM struct {
	module    *bytecode.Module
	constants []Value
	globals   []Value
	stack     []Value
	frames    []CallFrame
	maxFrames int
	maxSteps  int64
	steps     int64
	trace     TraceHook
	out       io.Writer
}

// New prepares a VM for m, which must have passed bytecode.Verify.
func New(m *bytecode.Module, opts Options) *VM {
	vm := &VM{
		module:    m,
		constants: make([]Value, len(m.Constants)),
		globals:   make([]Value, len(m.Globals)),
		maxFrames: opts.MaxFrames,
		maxSteps:  opts.MaxSteps,
		trace:     opts.Trace,
		out:       opts.Stdout,
	}
	if vm.maxFrames <= 0 {
		vm.maxFrames = DefaultMaxFrames
	}
	if vm.out == nil {
		vm.out = io.Discard
	}
	for i, c := range m.Constants {
		vm.constants[i] = constantValue(c)
	}
	return vm
}

// Global returns the current value of the named global.
func (vm *VM) Global(name string) (Value, bool) {
	for i, g := range vm.module.Globals {
		if g == name {
			return vm.globals[i], true
		}
	}
	return Value{}, false
}

func (vm *VM) push(val Value) {
	vm.stack = append(vm.stack, val)
}

func (vm *VM) pop() Value {
	if len(vm.stack) <= vm.currentFrame().base {
		panic(internalf("operand stack underflow"))
	}
	val := vm.stack[len(vm.stack)-1]
	vm.stack = vm.stack[:len(vm.stack)-1]
	return val
}

func (vm *VM) peek() Value {
	return vm.stack[len(vm.stack)-1]
}

func (vm *VM) currentFrame() *CallFrame {
	return &vm.frames[len(vm.frames)-1]
}

// Run executes the module body and returns its value, or the
// *RuntimeError that stopped it. A module that violates the bytecode
// invariants makes Run panic with an *InternalError.
func (vm *VM) Run() (Value, error) {
	vm.stack = vm.stack[:0]
	vm.frames = vm.frames[:0]
	vm.steps = 0
	main := &Closure{Fn: &vm.module.Functions[bytecode.MainFunction], Index: bytecode.MainFunction}
	vm.frames = append(vm.frames, CallFrame{closure: main, ip: main.Fn.Entry, locals: make([]Value, main.Fn.NumLocals)})
	return vm.run()
}

func (vm *VM) run() (Value, error) {
	code := vm.module.Code
	for {
		frame := vm.currentFrame()
		fn := frame.closure.Fn
		ip := frame.ip
		if ip < fn.Entry || ip >= fn.End {
			panic(&InternalError{Message: "instruction pointer left " + fn.Name, IP: ip})
		}
		ins := code[ip]
		frame.ip++
		if vm.maxSteps > 0 {
			if vm.steps++; vm.steps > vm.maxSteps {
				return Null(), vm.runtimeError(ip, trapf(StepLimit, "instruction budget of %d exhausted", vm.maxSteps))
			}
		}
		if vm.trace != nil {
			vm.trace(TraceInfo{Function: fn.Name, IP: ip, Op: ins.Op, Operand: ins.Operand, Depth: len(vm.stack) - frame.base})
		}

		var err error
		switch ins.Op {
		case bytecode.OpConstant:
			vm.push(vm.constants[ins.Operand])
		case bytecode.OpNull:
			vm.push(Null())
		case bytecode.OpTrue:
			vm.push(Bool(true))
		case bytecode.OpFalse:
			vm.push(Bool(false))
		case bytecode.OpPop:
			vm.pop()
		case bytecode.OpDup:
			v := vm.pop()
			vm.push(v)
			vm.push(v)
		case bytecode.OpDup2:
			b := vm.pop()
			a := vm.pop()
			vm.push(a)
			vm.push(b)
			vm.push(a)
			vm.push(b)

		case bytecode.OpLoadLocal:
			vm.push(frame.locals[ins.Operand])
		case bytecode.OpStoreLocal:
			frame.locals[ins.Operand] = vm.pop()
		case bytecode.OpLoadGlobal:
			vm.push(vm.globals[ins.Operand])
		case bytecode.OpStoreGlobal:
			vm.globals[ins.Operand] = vm.pop()
		case bytecode.OpMakeCell:
			frame.locals[ins.Operand] = cellValue(&Cell{Value: vm.pop()})
		case bytecode.OpLoadCell:
			vm.push(vm.cellAt(frame, ins.Operand).Value)
		case bytecode.OpStoreCell:
			vm.cellAt(frame, ins.Operand).Value = vm.pop()
		case bytecode.OpLoadCellRef:
			vm.push(cellValue(vm.cellAt(frame, ins.Operand)))
		case bytecode.OpLoadFree:
			vm.push(frame.closure.Free[ins.Operand].Value)
		case bytecode.OpStoreFree:
			frame.closure.Free[ins.Operand].Value = vm.pop()
		case bytecode.OpLoadFreeRef:
			vm.push(cellValue(frame.closure.Free[ins.Operand]))
		case bytecode.OpLoadBuiltin:
			vm.push(builtinValue(builtins[ins.Operand]))

		case bytecode.OpAdd, bytecode.OpSub, bytecode.OpMul, bytecode.OpDiv, bytecode.OpMod, bytecode.OpPow,
			bytecode.OpBitAnd, bytecode.OpBitOr, bytecode.OpBitXor, bytecode.OpShl, bytecode.OpShr,
			bytecode.OpLess, bytecode.OpLessEqual, bytecode.OpGreater, bytecode.OpGreaterEqual, bytecode.OpRange:
			b := vm.pop()
			a := vm.pop()
			var v Value
			if v, err = binary(ins.Op, a, b); err == nil {
				vm.push(v)
			}
		case bytecode.OpNegate, bytecode.OpPlus, bytecode.OpNot, bytecode.OpBitNot:
			var v Value
			if v, err = unary(ins.Op, vm.pop()); err == nil {
				vm.push(v)
			}
		case bytecode.OpEqual:
			b := vm.pop()
			vm.push(Bool(Equal(vm.pop(), b)))
		case bytecode.OpNotEqual:
			b := vm.pop()
			vm.push(Bool(!Equal(vm.pop(), b)))

		case bytecode.OpArray:
			n := ins.Operand
			elems := make([]Value, n)
			copy(elems, vm.stack[len(vm.stack)-n:])
			vm.stack = vm.stack[:len(vm.stack)-n]
			vm.push(NewArray(elems...))
		case bytecode.OpIndex:
			index := vm.pop()
			var v Value
			if v, err = getIndex(vm.pop(), index); err == nil {
				vm.push(v)
			}
		case bytecode.OpSetIndex:
			v := vm.pop()
			index := vm.pop()
			if err = setIndex(vm.pop(), index, v); err == nil {
				vm.push(v)
			}

		case bytecode.OpJump:
			frame.ip = ins.Operand
		case bytecode.OpJumpIfFalse, bytecode.OpJumpIfTrue:
			cond := vm.pop()
			if cond.kind != KindBool {
				err = trapf(TypeError, "condition must be bool, got %s", cond.kind)
				break
			}
			if cond.AsBool() == (ins.Op == bytecode.OpJumpIfTrue) {
				frame.ip = ins.Operand
			}
		case bytecode.OpIterPrep:
			var it *iterator
			if it, err = newIterator(vm.pop()); err == nil {
				vm.push(iteratorValue(it))
			}
		case bytecode.OpIterNext:
			it, ok := vm.peek().ref.(*iterator)
			if !ok {
				panic(&InternalError{Message: "ITER_NEXT without an iterator", IP: ip})
			}
			if v, more := it.next(); more {
				vm.push(v)
			} else {
				frame.ip = ins.Operand
			}

		case bytecode.OpClosure:
			fn := &vm.module.Functions[ins.Operand]
			free := make([]*Cell, fn.NumFree)
			for i := fn.NumFree - 1; i >= 0; i-- {
				c, ok := vm.pop().ref.(*Cell)
				if !ok {
					panic(&InternalError{Message: "CLOSURE operand is not a cell", IP: ip})
				}
				free[i] = c
			}
			vm.push(closureValue(&Closure{Fn: fn, Index: ins.Operand, Free: free}))
		case bytecode.OpCall:
			err = vm.call(ins.Operand)
		case bytecode.OpReturn:
			result := vm.pop()
			vm.stack = vm.stack[:frame.base]
			vm.frames = vm.frames[:len(vm.frames)-1]
			if len(vm.frames) == 0 {
				return result, nil
			}
			vm.push(result)

		default:
			panic(&InternalError{Message: "unknown opcode " + ins.Op.String(), IP: ip})
		}

		if err != nil {
			return Null(), vm.runtimeError(ip, err)
		}
	}
}

func (vm *VM) cellAt(frame *CallFrame, slot int) *Cell {
	c, ok := frame.locals[slot].ref.(*Cell)
	if !ok {
		panic(internalf("local %d of %s is not a cell", slot, frame.closure.Fn.Name))
	}
	return c
}

// call invokes the callee sitting below argc arguments.
func (vm *VM) call(argc int) error {
	calleeAt := len(vm.stack) - argc - 1
	callee := vm.stack[calleeAt]
	if callee.kind != KindFunction {
		return trapf(TypeError, "%s is not callable", callee.kind)
	}

	switch f := callee.ref.(type) {
	case *Builtin:
		if f.Arity >= 0 && argc != f.Arity {
			return arityError(f.Name, f.Arity, argc)
		}
		args := make([]Value, argc)
		copy(args, vm.stack[calleeAt+1:])
		result, err := f.Fn(vm, args)
		if err != nil {
			return err
		}
		vm.stack = vm.stack[:calleeAt]
		vm.push(result)
		return nil

	case *Closure:
		fn := f.Fn
		if argc != fn.Arity {
			return arityError(fn.Name, fn.Arity, argc)
		}
		if len(vm.frames) >= vm.maxFrames {
			return trapf(StackOverflow, "maximum call depth of %d exceeded", vm.maxFrames)
		}
		locals := make([]Value, fn.NumLocals)
		copy(locals, vm.stack[calleeAt+1:])
		vm.stack = vm.stack[:calleeAt]
		vm.frames = append(vm.frames, CallFrame{closure: f, ip: fn.Entry, base: calleeAt, locals: locals})
		return nil
	}
	panic(internalf("function value of unexpected type %T", callee.ref))
}

func arityError(name string, want, got int) error {
	noun := "arguments"
	if want == 1 {
		noun = "argument"
	}
	return trapf(ArityMismatch, "%s expects %d %s, got %d", name, want, noun, got)
}

func getIndex(obj, index Value) (Value, error) {
	switch obj.kind {
	case KindArray:
		elems := obj.AsArray().Elements
		i, err := checkIndex(index, len(elems))
		if err != nil {
			return Value{}, err
		}
		return elems[i], nil
	case KindString:
		runes := []rune(obj.s)
		i, err := checkIndex(index, len(runes))
		if err != nil {
			return Value{}, err
		}
		return String(string(runes[i])), nil
	case KindRange:
		r := obj.AsRange()
		if index.kind != KindInt {
			return Value{}, trapf(TypeError, "index must be int, got %s", index.kind)
		}
		if i := index.AsInt(); i < 0 || i >= r.Len() {
			return Value{}, trapf(IndexOutOfRange, "index %d out of range for length %d", i, r.Len())
		}
		return Int(r.Start + index.AsInt()), nil
	}
	return Value{}, trapf(TypeError, "cannot index %s", obj.kind)
}

func setIndex(obj, index, v Value) error {
	if obj.kind != KindArray {
		return trapf(TypeError, "cannot assign to an element of %s", obj.kind)
	}
	a := obj.AsArray()
	i, err := checkIndex(index, len(a.Elements))
	if err != nil {
		return err
	}
	a.Elements[i] = v
	return nil
}

func checkIndex(index Value, length int) (int, error) {
	if index.kind != KindInt {
		return 0, trapf(TypeError, "index must be int, got %s", index.kind)
	}
	i := index.AsInt()
	if i < 0 || i >= int64(length) {
		return 0, trapf(IndexOutOfRange, "index %d out of range for length %d", i, length)
	}
	return int(i), nil
}

// runtimeError attaches the failing instruction and the call stack to a
// trap. Callers' frames report the CALL they are waiting on.
func (vm *VM) runtimeError(ip int, err error) *RuntimeError {
	t, ok := err.(*trap)
	if !ok {
		t = &trap{kind: InvalidOperation, msg: err.Error()}
	}
	rerr := &RuntimeError{Kind: t.kind, Message: t.msg}
	for i := len(vm.frames) - 1; i >= 0; i-- {
		at := vm.frames[i].ip - 1
		if i == len(vm.frames)-1 {
			at = ip
		}
		pos := vm.module.PosAt(at)
		rerr.Stack = append(rerr.Stack, StackFrame{
			Function: vm.frames[i].closure.Fn.Name,
			IP:       at,
			Line:     pos.Line,
			Column:   pos.Column,
		})
	}
	top := rerr.Stack[0]
	rerr.Function, rerr.IP, rerr.Line, rerr.Column = top.Function, top.IP, top.Line, top.Column
	return rerr
}
