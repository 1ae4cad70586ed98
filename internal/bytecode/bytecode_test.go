package bytecode

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/kr/pretty"
	"github.com/nalgeon/be"
)

// sampleModule computes x = 40 + 2.5 at module level and carries an
// unused one-argument function.
func sampleModule() *Module {
	m := NewModule()
	m.Globals = []string{"x"}
	m.Constants = []Constant{IntConst(40), FloatConst(2.5), IntConst(2), StringConst("héllo"), BoolConst(true)}
	m.Code = []Instruction{
		{OpConstant, 0},
		{OpConstant, 1},
		{OpAdd, 0},
		{OpStoreGlobal, 0},
		{OpLoadGlobal, 0},
		{OpReturn, 0},

		{OpLoadLocal, 0},
		{OpConstant, 2},
		{OpMul, 0},
		{OpReturn, 0},
	}
	m.Functions = []Function{
		{Name: "<main>", Entry: 0, End: 6, MaxStack: 2},
		{Name: "double", Entry: 6, End: 10, Arity: 1, NumLocals: 1, MaxStack: 2},
	}
	for i := range m.Code {
		m.Lines = append(m.Lines, Pos{Line: 1 + i/6, Column: 1 + i})
	}
	return m
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	m := sampleModule()
	data, err := Encode(m)
	be.Err(t, err, nil)
	be.Equal(t, string(data[:4]), Magic)

	got, err := Decode(data)
	be.Err(t, err, nil)
	if diff := pretty.Diff(m, got); len(diff) > 0 {
		t.Fatalf("round trip changed the module:\n%s", strings.Join(diff, "\n"))
	}
}

func TestRoundTripWithoutLines(t *testing.T) {
	m := sampleModule()
	m.Lines = nil
	data, err := Encode(m)
	be.Err(t, err, nil)
	got, err := Decode(data)
	be.Err(t, err, nil)
	be.Equal(t, len(got.Lines), 0)
	be.Equal(t, got.Code, m.Code)
}

func TestDecodeRejects(t *testing.T) {
	encode := func(mutate func(m *Module)) []byte {
		m := sampleModule()
		mutate(m)
		data, err := Encode(m)
		be.Err(t, err, nil)
		return data
	}
	good := encode(func(*Module) {})

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"bad magic", append([]byte("XBC\x00"), good[4:]...)},
		{"bad version", append(append([]byte(Magic), 9, 0), good[6:]...)},
		{"truncated", good[:len(good)-1]},
		{"trailing bytes", append(append([]byte{}, good...), 0)},
		{"jump outside function", encode(func(m *Module) { m.Code[0] = Instruction{OpJump, 8} })},
		{"constant out of range", encode(func(m *Module) { m.Code[0] = Instruction{OpConstant, 99} })},
		{"global out of range", encode(func(m *Module) { m.Code[3] = Instruction{OpStoreGlobal, 1} })},
		{"local out of range", encode(func(m *Module) { m.Code[6] = Instruction{OpLoadLocal, 1} })},
		{"unknown opcode", encode(func(m *Module) { m.Code[2] = Instruction{OpCode(200), 0} })},
		{"functions do not tile the code", encode(func(m *Module) { m.Functions[1].Entry = 7 })},
		{"closure over main", encode(func(m *Module) { m.Code[4] = Instruction{OpClosure, 0} })},
		{"too many locals", encode(func(m *Module) { m.Functions[1].NumLocals = math.MaxInt32 })},
		{"stack too deep", encode(func(m *Module) { m.Functions[0].MaxStack = MaxFrameSlots + 1 })},
		{"too many captures", encode(func(m *Module) { m.Functions[1].NumFree = MaxFrameSlots + 1 })},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data)
			be.True(t, err != nil)
			be.True(t, errors.Is(err, ErrFormat))
		})
	}
}

func TestEncodeRejectsUnknownConstant(t *testing.T) {
	m := sampleModule()
	m.Constants = append(m.Constants, Constant{Kind: 42})
	_, err := Encode(m)
	be.True(t, err != nil)
}

func TestVerify(t *testing.T) {
	be.Err(t, Verify(sampleModule()), nil)

	tests := []struct {
		name    string
		code    []Instruction
		stack   int
		message string
	}{
		{
			name: "inconsistent join",
			code: []Instruction{
				{OpTrue, 0},
				{OpJumpIfFalse, 3},
				{OpConstant, 0},
				{OpNull, 0},
				{OpReturn, 0},
			},
			stack:   2,
			message: "stack height at 3",
		},
		{
			name:    "underflow",
			code:    []Instruction{{OpPop, 0}, {OpNull, 0}, {OpReturn, 0}},
			stack:   1,
			message: "pops 1 values from a stack of 0",
		},
		{
			name:    "falls off the end",
			code:    []Instruction{{OpNull, 0}},
			stack:   1,
			message: "falls off the end",
		},
		{
			name:    "max stack too small",
			code:    []Instruction{{OpNull, 0}, {OpNull, 0}, {OpAdd, 0}, {OpReturn, 0}},
			stack:   1,
			message: "needs 2 stack slots but declares 1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewModule()
			m.Constants = []Constant{IntConst(1)}
			m.Code = tt.code
			m.Functions = []Function{{Name: "<main>", End: len(tt.code), MaxStack: tt.stack}}
			err := Verify(m)
			be.True(t, err != nil)
			be.True(t, strings.Contains(err.Error(), tt.message))
		})
	}
}

func TestVerifyIterNextBranches(t *testing.T) {
	m := NewModule()
	m.Code = []Instruction{
		{OpNull, 0},
		{OpIterPrep, 0},
		{OpIterNext, 5}, // 2
		{OpPop, 0},
		{OpJump, 2},
		{OpPop, 0}, // 5
		{OpNull, 0},
		{OpReturn, 0},
	}
	m.Functions = []Function{{Name: "<main>", End: len(m.Code), MaxStack: 2}}
	be.Err(t, Verify(m), nil)
}

func TestFunctionAt(t *testing.T) {
	m := sampleModule()
	be.Equal(t, m.FunctionAt(0), 0)
	be.Equal(t, m.FunctionAt(5), 0)
	be.Equal(t, m.FunctionAt(6), 1)
	be.Equal(t, m.FunctionAt(9), 1)
	be.Equal(t, m.FunctionAt(10), -1)
	be.Equal(t, m.PosAt(7), Pos{Line: 2, Column: 8})
	be.Equal(t, m.PosAt(99), Pos{})
}

func TestConstantSame(t *testing.T) {
	be.True(t, IntConst(1).Same(IntConst(1)))
	be.Equal(t, IntConst(1).Same(FloatConst(1)), false)
	be.Equal(t, FloatConst(0).Same(FloatConst(negZero())), false)
	be.True(t, StringConst("a").Same(StringConst("a")))
}

func negZero() float64 {
	z := 0.0
	return -z
}

func TestDisassemble(t *testing.T) {
	var buf bytes.Buffer
	be.Err(t, Disassemble(&buf, sampleModule()), nil)
	out := buf.String()
	for _, want := range []string{
		"func <main> #0 (arity=0, locals=0, free=0, stack=2)",
		"func double #1 (arity=1, locals=1, free=0, stack=2)",
		"CONSTANT       0 ; 40",
		"STORE_GLOBAL   0 ; x",
		"string \"héllo\"",
		"10 instructions",
	} {
		be.True(t, strings.Contains(out, want))
	}
}

func TestOpcodeNames(t *testing.T) {
	be.Equal(t, OpJumpIfFalse.String(), "JUMP_IF_FALSE")
	be.Equal(t, OpCode(250).String(), "OP_250")
	be.True(t, OpIterNext.IsJump())
	be.Equal(t, OpCall.IsJump(), false)
	be.Equal(t, Instruction{OpCall, 2}.String(), "CALL 2")
	be.Equal(t, Instruction{OpAdd, 0}.String(), "ADD")
	be.Equal(t, BuiltinIndex("len"), 1)
	be.Equal(t, BuiltinIndex("nope"), -1)
}
