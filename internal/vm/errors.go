package vm

import (
	"fmt"
	"strings"
)

// TrapKind classifies a runtime error.
type TrapKind uint8

const (
	StackOverflow TrapKind = iota + 1
	TypeError
	DivisionByZero
	ArityMismatch
	IndexOutOfRange
	InvalidOperation
	StepLimit
)

var trapNames = map[TrapKind]string{
	StackOverflow:    "stack overflow",
	TypeError:        "type error",
	DivisionByZero:   "division by zero",
	ArityMismatch:    "arity mismatch",
	IndexOutOfRange:  "index out of range",
	InvalidOperation: "invalid operation",
	StepLimit:        "step limit",
}

func (k TrapKind) String() string {
	if name, ok := trapNames[k]; ok {
		return name
	}
	return fmt.Sprintf("trap(%d)", uint8(k))
}

// StackFrame locates one active call at the time of a trap.
type StackFrame struct {
	Function string
	IP       int
	Line     int
	Column   int
}

func (f StackFrame) String() string {
	if f.Line > 0 {
		return fmt.Sprintf("%s at %d:%d", f.Function, f.Line, f.Column)
	}
	return fmt.Sprintf("%s at instruction %d", f.Function, f.IP)
}

// RuntimeError is a trap raised by a running program. Function, IP, Line
// and Column locate the failing instruction; Stack lists the active calls,
// innermost first.
type RuntimeError struct {
	Kind     TrapKind
	Message  string
	Function string
	IP       int
	Line     int
	Column   int
	Stack    []StackFrame
}

func (e *RuntimeError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%d:%d: %s: %s", e.Line, e.Column, e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Traceback renders the call stack, innermost call first.
func (e *RuntimeError) Traceback() string {
	var sb strings.Builder
	for _, f := range e.Stack {
		sb.WriteString("  in ")
		sb.WriteString(f.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}

// InternalError is raised with panic when the VM meets a module that
// cannot have come from the compiler.
type InternalError struct {
	Message string
	IP      int
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("internal VM error at %d: %s", e.IP, e.Message)
}

func internalf(format string, args ...interface{}) *InternalError {
	return &InternalError{Message: fmt.Sprintf(format, args...), IP: -1}
}

// trap is the error builtins and operators return. The dispatch loop turns
// it into a RuntimeError with position information.
type trap struct {
	kind TrapKind
	msg  string
}

func (t *trap) Error() string {
	return t.msg
}

func trapf(kind TrapKind, format string, args ...interface{}) *trap {
	return &trap{kind: kind, msg: fmt.Sprintf(format, args...)}
}
