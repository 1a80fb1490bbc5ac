package classfile

import (
	"encoding/binary"
	"fmt"
)

// VerifyError reports structurally invalid class data.
type VerifyError struct {
	Class  string
	Method string
	Offset int
	Reason string
}

func (e *VerifyError) Error() string {
	if e.Method == "" {
		return fmt.Sprintf("verify %s: %s", e.Class, e.Reason)
	}
	return fmt.Sprintf("verify %s.%s at %04X: %s", e.Class, e.Method, e.Offset, e.Reason)
}

// Verify checks that the class is well formed: descriptors parse, every
// instruction is known and complete, jumps land on instruction boundaries,
// constant operands reference entries of the right kind, and handler ranges
// are inside the code.
func Verify(c *Class) error {
	if c.Name == "" {
		return &VerifyError{Reason: "missing class name"}
	}
	if c.Super == "" && c.Name != RootClass {
		return &VerifyError{Class: c.Name, Reason: "missing superclass"}
	}
	for _, f := range c.Fields {
		if !ValidFieldDesc(f.Desc) {
			return &VerifyError{Class: c.Name, Reason: fmt.Sprintf("field %s has bad descriptor %q", f.Name, f.Desc)}
		}
	}
	seen := make(map[string]bool, len(c.Methods))
	for _, m := range c.Methods {
		if seen[m.Key()] {
			return &VerifyError{Class: c.Name, Reason: fmt.Sprintf("duplicate method %s%s", m.Name, m.Desc)}
		}
		seen[m.Key()] = true
		if err := verifyMethod(c, m); err != nil {
			return err
		}
	}
	return nil
}

func verifyMethod(c *Class, m *Method) error {
	fail := func(off int, format string, args ...any) error {
		return &VerifyError{Class: c.Name, Method: m.Name, Offset: off, Reason: fmt.Sprintf(format, args...)}
	}
	params, _, err := ParseMethodDesc(m.Desc)
	if err != nil {
		return fail(0, "%v", err)
	}
	minLocals := len(params)
	if !m.IsStatic() {
		minLocals++
	}
	if int(m.MaxLocals) < minLocals {
		return fail(0, "max locals %d below parameter count %d", m.MaxLocals, minLocals)
	}
	if m.IsNative() {
		if len(m.Code) != 0 {
			return fail(0, "native method has code")
		}
		return nil
	}
	if len(m.Code) == 0 {
		return fail(0, "empty code")
	}

	starts := make(map[int]bool)
	var jumps [][2]int
	for off := 0; off < len(m.Code); {
		op := Opcode(m.Code[off])
		if !op.IsValid() {
			return fail(off, "unknown opcode 0x%02X", byte(op))
		}
		starts[off] = true
		end := off + op.InstructionLen()
		if end > len(m.Code) {
			return fail(off, "truncated %s", op)
		}
		operands := m.Code[off+1 : end]
		switch op {
		case OpLdc:
			if err := checkConst(c, operands, ConstLong, ConstDouble, ConstString); err != nil {
				return fail(off, "%s: %v", op, err)
			}
		case OpInvokeStatic, OpInvokeVirtual, OpInvokeSpecial:
			if err := checkConst(c, operands, ConstMethod); err != nil {
				return fail(off, "%s: %v", op, err)
			}
		case OpGetField, OpPutField:
			if err := checkConst(c, operands, ConstField); err != nil {
				return fail(off, "%s: %v", op, err)
			}
		case OpNew:
			if err := checkConst(c, operands, ConstClass); err != nil {
				return fail(off, "%s: %v", op, err)
			}
		case OpLoad, OpStore:
			if slot := binary.BigEndian.Uint16(operands); slot >= m.MaxLocals {
				return fail(off, "%s slot %d beyond max locals %d", op, slot, m.MaxLocals)
			}
		case OpAdd, OpSub, OpMul, OpDiv, OpRem, OpNeg, OpEq, OpNe, OpLt, OpLe, OpGt, OpGe, OpStringify:
			if !Kind(operands[0]).Valid() {
				return fail(off, "%s: invalid kind 0x%02X", op, operands[0])
			}
		case OpConv:
			if !Kind(operands[0]).Valid() || !Kind(operands[1]).Valid() {
				return fail(off, "CONV: invalid kinds")
			}
		}
		if op.IsJump() {
			delta := int(int16(binary.BigEndian.Uint16(operands)))
			jumps = append(jumps, [2]int{off, end + delta})
		}
		off = end
	}
	for _, j := range jumps {
		if !starts[j[1]] {
			return fail(j[0], "jump target %04X is not an instruction boundary", j[1])
		}
	}
	last := Opcode(m.Code[lastInstruction(m.Code, starts)])
	switch last {
	case OpReturn, OpReturnVoid, OpThrow, OpJump:
	default:
		return fail(len(m.Code), "code falls off the end after %s", last)
	}
	for _, h := range m.Handlers {
		if h.Start >= h.End || !starts[int(h.Start)] || !starts[int(h.Target)] ||
			(int(h.End) != len(m.Code) && !starts[int(h.End)]) {
			return fail(int(h.Start), "bad handler range [%d,%d) -> %d", h.Start, h.End, h.Target)
		}
	}
	return nil
}

func lastInstruction(code []byte, starts map[int]bool) int {
	for off := len(code) - 1; off >= 0; off-- {
		if starts[off] {
			return off
		}
	}
	return 0
}

func checkConst(c *Class, operands []byte, kinds ...ConstKind) error {
	k, err := c.Constant(binary.BigEndian.Uint16(operands))
	if err != nil {
		return err
	}
	for _, want := range kinds {
		if k.Kind == want {
			return nil
		}
	}
	return fmt.Errorf("constant is %s, want one of %v", k.Kind, kinds)
}
