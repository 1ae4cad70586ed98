package bytecode

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
)

// Disassembler formats a module as a readable assembly-style dump.
type Disassembler struct {
	w   io.Writer
	err error
}

// NewDisassembler constructs a disassembler that writes to w.
func NewDisassembler(w io.Writer) *Disassembler {
	return &Disassembler{w: w}
}

// Disassemble writes a listing of m to w.
func Disassemble(w io.Writer, m *Module) error {
	return NewDisassembler(w).Module(m)
}

// Module emits the header, constant pool, function table and code.
func (d *Disassembler) Module(m *Module) error {
	size := "?"
	if data, err := Encode(m); err == nil {
		size = humanize.Bytes(uint64(len(data)))
	}
	d.printf("module %s (%s encoded, %s instructions)\n", m.ID, size, humanize.Comma(int64(len(m.Code))))

	if len(m.Globals) > 0 {
		d.printf("globals:\n")
		for i, name := range m.Globals {
			d.printf("  %4d  %s\n", i, name)
		}
	}
	if len(m.Constants) > 0 {
		d.printf("constants:\n")
		for i, c := range m.Constants {
			d.printf("  %4d  %-6s %s\n", i, c.Kind, c)
		}
	}

	for i, fn := range m.Functions {
		d.printf("\nfunc %s #%d (arity=%d, locals=%d, free=%d, stack=%d)\n",
			fn.Name, i, fn.Arity, fn.NumLocals, fn.NumFree, fn.MaxStack)
		for ip := fn.Entry; ip < fn.End && ip < len(m.Code); ip++ {
			d.instruction(m, ip)
		}
	}
	return d.err
}

func (d *Disassembler) instruction(m *Module, ip int) {
	ins := m.Code[ip]
	pos := m.PosAt(ip)
	line := "-"
	if pos.Line > 0 {
		line = fmt.Sprintf("%d:%d", pos.Line, pos.Column)
	}
	text := fmt.Sprintf("%04d %7s %-14s", ip, line, ins.Op)
	if ins.Op.Valid() && opInfo[ins.Op].Operand != OperandNone {
		text += fmt.Sprintf(" %d", ins.Operand)
		if comment := d.comment(m, ins); comment != "" {
			text += " ; " + comment
		}
	}
	d.printf("%s\n", strings.TrimRight(text, " "))
}

func (d *Disassembler) comment(m *Module, ins Instruction) string {
	n := ins.Operand
	switch opInfo[ins.Op].Operand {
	case OperandConst:
		if n >= 0 && n < len(m.Constants) {
			return m.Constants[n].String()
		}
	case OperandGlobal:
		if n >= 0 && n < len(m.Globals) {
			return m.Globals[n]
		}
	case OperandBuiltin:
		if n >= 0 && n < len(Builtins) {
			return Builtins[n]
		}
	case OperandFunction:
		if n >= 0 && n < len(m.Functions) {
			return m.Functions[n].Name
		}
	}
	return ""
}

func (d *Disassembler) printf(format string, args ...interface{}) {
	if d.err != nil {
		return
	}
	_, d.err = fmt.Fprintf(d.w, format, args...)
}
