package bytecode

import (
	"encoding/binary"
	"math"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Magic starts every serialized module.
const Magic = "TBC\x00"

// FormatVersion is bumped whenever the layout or the opcode numbering
// changes.
const FormatVersion uint16 = 1

// ErrFormat is the cause of every decode failure.
var ErrFormat = errors.New("malformed bytecode module")

// Encode serializes m. The layout is little-endian and varint based; see
// Decode for the validation applied on the way back in.
func Encode(m *Module) ([]byte, error) {
	if len(m.Lines) != 0 && len(m.Lines) != len(m.Code) {
		return nil, errors.Errorf("encode: line table has %d entries for %d instructions", len(m.Lines), len(m.Code))
	}
	buf := make([]byte, 0, 64+len(m.Code)*3)
	buf = append(buf, Magic...)
	buf = binary.LittleEndian.AppendUint16(buf, FormatVersion)
	buf = append(buf, m.ID[:]...)

	buf = binary.AppendUvarint(buf, uint64(len(m.Globals)))
	for _, name := range m.Globals {
		buf = appendString(buf, name)
	}

	buf = binary.AppendUvarint(buf, uint64(len(m.Constants)))
	for i, c := range m.Constants {
		buf = append(buf, byte(c.Kind))
		switch c.Kind {
		case ConstInt:
			buf = binary.AppendVarint(buf, c.Int)
		case ConstFloat:
			buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(c.Float))
		case ConstString:
			buf = appendString(buf, c.Str)
		case ConstBool:
			b := byte(0)
			if c.Bool {
				b = 1
			}
			buf = append(buf, b)
		default:
			return nil, errors.Errorf("encode: constant %d has unknown kind %d", i, c.Kind)
		}
	}

	buf = binary.AppendUvarint(buf, uint64(len(m.Functions)))
	for _, fn := range m.Functions {
		buf = appendString(buf, fn.Name)
		for _, v := range []int{fn.Entry, fn.End, fn.Arity, fn.NumLocals, fn.NumFree, fn.MaxStack} {
			if v < 0 {
				return nil, errors.Errorf("encode: function %s has a negative field", fn.Name)
			}
			buf = binary.AppendUvarint(buf, uint64(v))
		}
	}

	buf = binary.AppendUvarint(buf, uint64(len(m.Code)))
	for _, ins := range m.Code {
		buf = append(buf, byte(ins.Op))
		buf = binary.AppendVarint(buf, int64(ins.Operand))
	}

	buf = binary.AppendUvarint(buf, uint64(len(m.Lines)))
	for _, pos := range m.Lines {
		buf = binary.AppendUvarint(buf, uint64(pos.Line))
		buf = binary.AppendUvarint(buf, uint64(pos.Column))
	}
	return buf, nil
}

func appendString(buf []byte, s string) []byte {
	buf = binary.AppendUvarint(buf, uint64(len(s)))
	return append(buf, s...)
}

// Decode parses and validates a serialized module.
func Decode(data []byte) (*Module, error) {
	r := &reader{data: data}
	m, err := r.module()
	if err != nil {
		return nil, errors.Wrapf(ErrFormat, "offset %d: %v", r.pos, err)
	}
	if err := m.Validate(); err != nil {
		return nil, errors.Wrapf(ErrFormat, "%v", err)
	}
	return m, nil
}

type reader struct {
	data []byte
	pos  int
}

func (r *reader) module() (*Module, error) {
	magic, err := r.bytes(len(Magic))
	if err != nil {
		return nil, err
	}
	if string(magic) != Magic {
		return nil, errors.New("bad magic")
	}
	raw, err := r.bytes(2)
	if err != nil {
		return nil, err
	}
	if v := binary.LittleEndian.Uint16(raw); v != FormatVersion {
		return nil, errors.Errorf("unsupported format version %d (want %d)", v, FormatVersion)
	}
	id, err := r.bytes(16)
	if err != nil {
		return nil, err
	}
	m := &Module{}
	m.ID, _ = uuid.FromBytes(id)

	n, err := r.count()
	if err != nil {
		return nil, err
	}
	for i := 0; i < n; i++ {
		name, err := r.string()
		if err != nil {
			return nil, err
		}
		m.Globals = append(m.Globals, name)
	}

	if n, err = r.count(); err != nil {
		return nil, err
	}
	for i := 0; i < n; i++ {
		c, err := r.constant()
		if err != nil {
			return nil, errors.Wrapf(err, "constant %d", i)
		}
		m.Constants = append(m.Constants, c)
	}

	if n, err = r.count(); err != nil {
		return nil, err
	}
	for i := 0; i < n; i++ {
		fn, err := r.function()
		if err != nil {
			return nil, errors.Wrapf(err, "function %d", i)
		}
		m.Functions = append(m.Functions, fn)
	}

	if n, err = r.count(); err != nil {
		return nil, err
	}
	m.Code = make([]Instruction, 0, n)
	for i := 0; i < n; i++ {
		op, err := r.byte()
		if err != nil {
			return nil, err
		}
		if !OpCode(op).Valid() {
			return nil, errors.Errorf("unknown opcode %d at instruction %d", op, i)
		}
		operand, err := r.varint()
		if err != nil {
			return nil, err
		}
		if operand < math.MinInt32 || operand > math.MaxInt32 {
			return nil, errors.Errorf("operand %d at instruction %d out of range", operand, i)
		}
		m.Code = append(m.Code, Instruction{Op: OpCode(op), Operand: int(operand)})
	}

	if n, err = r.count(); err != nil {
		return nil, err
	}
	if n > 0 {
		m.Lines = make([]Pos, 0, n)
	}
	for i := 0; i < n; i++ {
		line, err := r.int()
		if err != nil {
			return nil, err
		}
		col, err := r.int()
		if err != nil {
			return nil, err
		}
		m.Lines = append(m.Lines, Pos{Line: line, Column: col})
	}

	if r.pos != len(r.data) {
		return nil, errors.Errorf("%d trailing bytes", len(r.data)-r.pos)
	}
	return m, nil
}

func (r *reader) constant() (Constant, error) {
	tag, err := r.byte()
	if err != nil {
		return Constant{}, err
	}
	switch ConstKind(tag) {
	case ConstInt:
		v, err := r.varint()
		return IntConst(v), err
	case ConstFloat:
		raw, err := r.bytes(8)
		if err != nil {
			return Constant{}, err
		}
		return FloatConst(math.Float64frombits(binary.LittleEndian.Uint64(raw))), nil
	case ConstString:
		s, err := r.string()
		return StringConst(s), err
	case ConstBool:
		b, err := r.byte()
		if err != nil {
			return Constant{}, err
		}
		if b > 1 {
			return Constant{}, errors.Errorf("bad bool payload %d", b)
		}
		return BoolConst(b == 1), nil
	}
	return Constant{}, errors.Errorf("unknown constant tag %d", tag)
}

func (r *reader) function() (Function, error) {
	name, err := r.string()
	if err != nil {
		return Function{}, err
	}
	fn := Function{Name: name}
	for _, field := range []*int{&fn.Entry, &fn.End, &fn.Arity, &fn.NumLocals, &fn.NumFree, &fn.MaxStack} {
		if *field, err = r.int(); err != nil {
			return Function{}, err
		}
	}
	return fn, nil
}

func (r *reader) byte() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, errors.New("unexpected end of data")
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) bytes(n int) ([]byte, error) {
	if n < 0 || len(r.data)-r.pos < n {
		return nil, errors.New("unexpected end of data")
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *reader) uvarint() (uint64, error) {
	v, n := binary.Uvarint(r.data[r.pos:])
	if n <= 0 {
		return 0, errors.New("bad uvarint")
	}
	r.pos += n
	return v, nil
}

func (r *reader) varint() (int64, error) {
	v, n := binary.Varint(r.data[r.pos:])
	if n <= 0 {
		return 0, errors.New("bad varint")
	}
	r.pos += n
	return v, nil
}

// int reads a uvarint that must fit comfortably in an int.
func (r *reader) int() (int, error) {
	v, err := r.uvarint()
	if err != nil {
		return 0, err
	}
	if v > math.MaxInt32 {
		return 0, errors.Errorf("value %d too large", v)
	}
	return int(v), nil
}

// count reads a length prefix. A count can never exceed the bytes left,
// since every element takes at least one byte.
func (r *reader) count() (int, error) {
	n, err := r.int()
	if err != nil {
		return 0, err
	}
	if n > len(r.data)-r.pos {
		return 0, errors.Errorf("count %d exceeds remaining %d bytes", n, len(r.data)-r.pos)
	}
	return n, nil
}

func (r *reader) string() (string, error) {
	n, err := r.count()
	if err != nil {
		return "", err
	}
	b, err := r.bytes(n)
	return string(b), err
}
