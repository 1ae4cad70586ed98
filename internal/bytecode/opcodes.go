package bytecode

import "fmt"

type OpCode byte

const (
	OpConstant OpCode = iota
	OpNull
	OpTrue
	OpFalse
	OpPop
	OpDup
	OpDup2

	OpLoadLocal
	OpStoreLocal
	OpLoadGlobal
	OpStoreGlobal
	OpLoadCell
	OpStoreCell
	OpMakeCell
	OpLoadFree
	OpStoreFree
	OpLoadCellRef
	OpLoadFreeRef
	OpLoadBuiltin

	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpPow
	OpNegate
	OpPlus
	OpNot
	OpBitNot
	OpBitAnd
	OpBitOr
	OpBitXor
	OpShl
	OpShr

	OpEqual
	OpNotEqual
	OpLess
	OpLessEqual
	OpGreater
	OpGreaterEqual
	OpRange

	OpArray
	OpIndex
	OpSetIndex

	OpJump
	OpJumpIfFalse
	OpJumpIfTrue
	OpIterPrep
	OpIterNext

	OpClosure
	OpCall
	OpReturn

	opCount
)

// OperandKind says how an instruction's operand is interpreted.
type OperandKind uint8

const (
	OperandNone     OperandKind = iota
	OperandConst                // constant pool index
	OperandLocal                // local slot
	OperandGlobal               // global slot
	OperandFree                 // free-variable index
	OperandBuiltin              // builtin table index
	OperandFunction             // function table index
	OperandJump                 // absolute instruction index
	OperandCount                // element or argument count
)

// Variable is used for Pops or Pushes when the effect depends on the
// operand (Array, Call) or on the function table (Closure).
const Variable = -1

// OpInfo describes an opcode: its mnemonic, operand and stack effect on
// the fall-through path.
type OpInfo struct {
	Name    string
	Operand OperandKind
	Pops    int
	Pushes  int
}

var opInfo = [opCount]OpInfo{
	OpConstant: {"CONSTANT", OperandConst, 0, 1},
	OpNull:     {"NULL", OperandNone, 0, 1},
	OpTrue:     {"TRUE", OperandNone, 0, 1},
	OpFalse:    {"FALSE", OperandNone, 0, 1},
	OpPop:      {"POP", OperandNone, 1, 0},
	OpDup:      {"DUP", OperandNone, 1, 2},
	OpDup2:     {"DUP2", OperandNone, 2, 4},

	OpLoadLocal:   {"LOAD_LOCAL", OperandLocal, 0, 1},
	OpStoreLocal:  {"STORE_LOCAL", OperandLocal, 1, 0},
	OpLoadGlobal:  {"LOAD_GLOBAL", OperandGlobal, 0, 1},
	OpStoreGlobal: {"STORE_GLOBAL", OperandGlobal, 1, 0},
	OpLoadCell:    {"LOAD_CELL", OperandLocal, 0, 1},
	OpStoreCell:   {"STORE_CELL", OperandLocal, 1, 0},
	OpMakeCell:    {"MAKE_CELL", OperandLocal, 1, 0},
	OpLoadFree:    {"LOAD_FREE", OperandFree, 0, 1},
	OpStoreFree:   {"STORE_FREE", OperandFree, 1, 0},
	OpLoadCellRef: {"LOAD_CELL_REF", OperandLocal, 0, 1},
	OpLoadFreeRef: {"LOAD_FREE_REF", OperandFree, 0, 1},
	OpLoadBuiltin: {"LOAD_BUILTIN", OperandBuiltin, 0, 1},

	OpAdd:    {"ADD", OperandNone, 2, 1},
	OpSub:    {"SUB", OperandNone, 2, 1},
	OpMul:    {"MUL", OperandNone, 2, 1},
	OpDiv:    {"DIV", OperandNone, 2, 1},
	OpMod:    {"MOD", OperandNone, 2, 1},
	OpPow:    {"POW", OperandNone, 2, 1},
	OpNegate: {"NEGATE", OperandNone, 1, 1},
	OpPlus:   {"PLUS", OperandNone, 1, 1},
	OpNot:    {"NOT", OperandNone, 1, 1},
	OpBitNot: {"BIT_NOT", OperandNone, 1, 1},
	OpBitAnd: {"BIT_AND", OperandNone, 2, 1},
	OpBitOr:  {"BIT_OR", OperandNone, 2, 1},
	OpBitXor: {"BIT_XOR", OperandNone, 2, 1},
	OpShl:    {"SHL", OperandNone, 2, 1},
	OpShr:    {"SHR", OperandNone, 2, 1},

	OpEqual:        {"EQUAL", OperandNone, 2, 1},
	OpNotEqual:     {"NOT_EQUAL", OperandNone, 2, 1},
	OpLess:         {"LESS", OperandNone, 2, 1},
	OpLessEqual:    {"LESS_EQUAL", OperandNone, 2, 1},
	OpGreater:      {"GREATER", OperandNone, 2, 1},
	OpGreaterEqual: {"GREATER_EQUAL", OperandNone, 2, 1},
	OpRange:        {"RANGE", OperandNone, 2, 1},

	OpArray:    {"ARRAY", OperandCount, Variable, 1},
	OpIndex:    {"INDEX", OperandNone, 2, 1},
	OpSetIndex: {"SET_INDEX", OperandNone, 3, 1},

	OpJump:        {"JUMP", OperandJump, 0, 0},
	OpJumpIfFalse: {"JUMP_IF_FALSE", OperandJump, 1, 0},
	OpJumpIfTrue:  {"JUMP_IF_TRUE", OperandJump, 1, 0},
	OpIterPrep:    {"ITER_PREP", OperandNone, 1, 1},
	OpIterNext:    {"ITER_NEXT", OperandJump, 0, 1},

	OpClosure: {"CLOSURE", OperandFunction, Variable, 1},
	OpCall:    {"CALL", OperandCount, Variable, 1},
	OpReturn:  {"RETURN", OperandNone, 1, 0},
}

// Info returns the description of op.
func Info(op OpCode) (OpInfo, bool) {
	if op >= opCount {
		return OpInfo{}, false
	}
	return opInfo[op], true
}

func (op OpCode) String() string {
	if op >= opCount {
		return fmt.Sprintf("OP_%d", byte(op))
	}
	return opInfo[op].Name
}

// IsJump reports whether the operand of op is a jump target.
func (op OpCode) IsJump() bool {
	return op < opCount && opInfo[op].Operand == OperandJump
}

// Valid reports whether op is a known opcode.
func (op OpCode) Valid() bool {
	return op < opCount
}

// Instruction is one decoded instruction. Every opcode carries a single
// integer operand, which is zero when the opcode takes none.
type Instruction struct {
	Op      OpCode
	Operand int
}

func (i Instruction) String() string {
	if !i.Op.Valid() || opInfo[i.Op].Operand == OperandNone {
		return i.Op.String()
	}
	return fmt.Sprintf("%s %d", i.Op, i.Operand)
}
