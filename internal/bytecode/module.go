package bytecode

import (
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ConstKind tags a constant pool entry. The values are part of the
// serialized format.
type ConstKind uint8

const (
	ConstInt    ConstKind = 1
	ConstFloat  ConstKind = 2
	ConstString ConstKind = 3
	ConstBool   ConstKind = 4
)

func (k ConstKind) String() string {
	switch k {
	case ConstInt:
		return "int"
	case ConstFloat:
		return "float"
	case ConstString:
		return "string"
	case ConstBool:
		return "bool"
	}
	return fmt.Sprintf("const(%d)", uint8(k))
}

// Constant is an immutable pool entry. Only the field matching Kind is set.
type Constant struct {
	Kind  ConstKind
	Int   int64
	Float float64
	Str   string
	Bool  bool
}

func IntConst(v int64) Constant { return Constant{Kind: ConstInt, Int: v} }
func FloatConst(v float64) Constant { return Constant{Kind: ConstFloat, Float: v} }
func StringConst(v string) Constant { return Constant{Kind: ConstString, Str: v} }
func BoolConst(v bool) Constant { return Constant{Kind: ConstBool, Bool: v} }

// Same reports whether two constants are interchangeable. Floats compare
// by bit pattern, so 0.0 and -0.0 stay distinct and NaN equals itself.
func (c Constant) Same(o Constant) bool {
	if c.Kind != o.Kind {
		return false
	}
	switch c.Kind {
	case ConstInt:
		return c.Int == o.Int
	case ConstFloat:
		return math.Float64bits(c.Float) == math.Float64bits(o.Float)
	case ConstString:
		return c.Str == o.Str
	case ConstBool:
		return c.Bool == o.Bool
	}
	return false
}

func (c Constant) String() string {
	switch c.Kind {
	case ConstInt:
		return fmt.Sprintf("%d", c.Int)
	case ConstFloat:
		return fmt.Sprintf("%g", c.Float)
	case ConstString:
		return fmt.Sprintf("%q", c.Str)
	case ConstBool:
		return fmt.Sprintf("%t", c.Bool)
	}
	return "?"
}

// Function is an entry of the function table. Its code is the half-open
// range [Entry, End) of Module.Code. Function 0 is the module body.
type Function struct {
	Name      string
	Entry     int
	End       int
	Arity     int
	NumLocals int
	NumFree   int
	MaxStack  int
}

// Pos is the source position recorded for an instruction.
type Pos struct {
	Line   int
	Column int
}

// Module is a compiled program: constant pool, function table and one flat
// instruction stream with a parallel line table.
type Module struct {
	ID        uuid.UUID
	Globals   []string
	Constants []Constant
	Functions []Function
	Code      []Instruction
	Lines     []Pos
}

// MainFunction is the index of the module body in the function table.
const MainFunction = 0

// MaxFrameSlots bounds the locals, captures and operand stack depth a
// single function may declare. A decoded module asking for more is
// rejected before the VM allocates its frames.
const MaxFrameSlots = 1 << 16

func NewModule() *Module {
	return &Module{ID: uuid.New()}
}

// AddConstant appends c to the pool and returns its index.
func (m *Module) AddConstant(c Constant) int {
	m.Constants = append(m.Constants, c)
	return len(m.Constants) - 1
}

// FunctionAt returns the index of the function whose code contains ip,
// or -1.
func (m *Module) FunctionAt(ip int) int {
	i := sort.Search(len(m.Functions), func(i int) bool {
		return m.Functions[i].End > ip
	})
	if i < len(m.Functions) && m.Functions[i].Entry <= ip {
		return i
	}
	return -1
}

// PosAt returns the source position of the instruction at ip.
func (m *Module) PosAt(ip int) Pos {
	if ip >= 0 && ip < len(m.Lines) {
		return m.Lines[ip]
	}
	return Pos{}
}

// StackEffect returns how many values ins pops and pushes on its
// fall-through path.
func (m *Module) StackEffect(ins Instruction) (pops, pushes int) {
	info := opInfo[ins.Op]
	switch ins.Op {
	case OpArray:
		return ins.Operand, 1
	case OpCall:
		return ins.Operand + 1, 1
	case OpClosure:
		return m.Functions[ins.Operand].NumFree, 1
	}
	return info.Pops, info.Pushes
}

// Validate checks that the module is structurally sound: the function
// table tiles the code and every operand is in range. Decode runs it on
// every module it reads.
func (m *Module) Validate() error {
	if len(m.Functions) == 0 {
		return errors.New("module has no functions")
	}
	if len(m.Lines) != 0 && len(m.Lines) != len(m.Code) {
		return errors.Errorf("line table has %d entries for %d instructions", len(m.Lines), len(m.Code))
	}
	next := 0
	for i, fn := range m.Functions {
		if fn.Entry != next || fn.End <= fn.Entry {
			return errors.Errorf("function %d (%s) has bad code range [%d, %d)", i, fn.Name, fn.Entry, fn.End)
		}
		if fn.Arity < 0 || fn.NumLocals < fn.Arity || fn.NumFree < 0 || fn.MaxStack < 0 {
			return errors.Errorf("function %d (%s) has inconsistent frame layout", i, fn.Name)
		}
		if fn.NumLocals > MaxFrameSlots || fn.NumFree > MaxFrameSlots || fn.MaxStack > MaxFrameSlots {
			return errors.Errorf("function %d (%s) frame exceeds %d slots", i, fn.Name, MaxFrameSlots)
		}
		next = fn.End
	}
	if next != len(m.Code) {
		return errors.Errorf("function table covers %d of %d instructions", next, len(m.Code))
	}
	if m.Functions[MainFunction].Arity != 0 || m.Functions[MainFunction].NumFree != 0 {
		return errors.New("module body must take no arguments and capture nothing")
	}

	for f, fn := range m.Functions {
		for ip := fn.Entry; ip < fn.End; ip++ {
			if err := m.validateOperand(f, ip); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *Module) validateOperand(f, ip int) error {
	ins := m.Code[ip]
	if !ins.Op.Valid() {
		return errors.Errorf("invalid opcode %d at %d", byte(ins.Op), ip)
	}
	fn := m.Functions[f]
	n := ins.Operand
	var limit int
	switch opInfo[ins.Op].Operand {
	case OperandNone:
		return nil
	case OperandConst:
		limit = len(m.Constants)
	case OperandLocal:
		limit = fn.NumLocals
	case OperandGlobal:
		limit = len(m.Globals)
	case OperandFree:
		limit = fn.NumFree
	case OperandBuiltin:
		limit = len(Builtins)
	case OperandFunction:
		if n == MainFunction {
			return errors.Errorf("closure over the module body at %d", ip)
		}
		limit = len(m.Functions)
	case OperandJump:
		if n < fn.Entry || n >= fn.End {
			return errors.Errorf("jump target %d at %d is outside %s [%d, %d)", n, ip, fn.Name, fn.Entry, fn.End)
		}
		return nil
	case OperandCount:
		if n < 0 {
			return errors.Errorf("negative count %d at %d", n, ip)
		}
		return nil
	}
	if n < 0 || n >= limit {
		return errors.Errorf("%s operand %d out of range at %d (limit %d)", ins.Op, n, ip, limit)
	}
	return nil
}
