package bytecode

import "github.com/pkg/errors"

// Verify validates m and then checks every function's operand stack
// discipline: each reachable instruction sees the same stack height on
// every path into it, nothing pops below the frame's base, control never
// runs off the end of a function, and the peak height fits MaxStack.
func Verify(m *Module) error {
	if err := m.Validate(); err != nil {
		return err
	}
	for i := range m.Functions {
		if err := verifyFunction(m, i); err != nil {
			return err
		}
	}
	return nil
}

func verifyFunction(m *Module, index int) error {
	fn := m.Functions[index]
	heights := make([]int, fn.End-fn.Entry)
	for i := range heights {
		heights[i] = -1
	}
	peak := 0
	work := []int{fn.Entry}
	heights[0] = 0

	reach := func(from, to, h int) error {
		if to >= fn.End {
			return errors.Errorf("%s: control falls off the end after %d", fn.Name, from)
		}
		slot := &heights[to-fn.Entry]
		if *slot == -1 {
			*slot = h
			work = append(work, to)
			return nil
		}
		if *slot != h {
			return errors.Errorf("%s: stack height at %d is %d from %d but %d elsewhere", fn.Name, to, h, from, *slot)
		}
		return nil
	}

	for len(work) > 0 {
		ip := work[len(work)-1]
		work = work[:len(work)-1]
		h := heights[ip-fn.Entry]
		ins := m.Code[ip]
		pops, pushes := m.StackEffect(ins)
		if h < pops {
			return errors.Errorf("%s: %s at %d pops %d values from a stack of %d", fn.Name, ins.Op, ip, pops, h)
		}
		after := h - pops + pushes
		if after > peak {
			peak = after
		}

		var err error
		switch ins.Op {
		case OpReturn:
		case OpJump:
			err = reach(ip, ins.Operand, h)
		case OpJumpIfFalse, OpJumpIfTrue:
			if err = reach(ip, ip+1, after); err == nil {
				err = reach(ip, ins.Operand, after)
			}
		case OpIterNext:
			// Exhaustion jumps without pushing an element.
			if err = reach(ip, ip+1, after); err == nil {
				err = reach(ip, ins.Operand, h)
			}
		default:
			err = reach(ip, ip+1, after)
		}
		if err != nil {
			return err
		}
	}

	if peak > fn.MaxStack {
		return errors.Errorf("%s: needs %d stack slots but declares %d", fn.Name, peak, fn.MaxStack)
	}
	return nil
}
