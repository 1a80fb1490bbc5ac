package classfile

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Text returns a human-readable listing of the class: header, fields and
// disassembled methods. It is the textual form of generated code shown in
// failure diagnostics.
func Text(c *Class) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "; === class %s ===\n", c.Name)
	if c.Super != "" {
		fmt.Fprintf(&sb, "; extends %s\n", c.Super)
	}
	if c.SourceFile != "" {
		fmt.Fprintf(&sb, "; source %s\n", c.SourceFile)
	}
	if c.Flags&ClassFacade != 0 {
		sb.WriteString("; [FACADE]\n")
	}
	if c.Flags&ClassHost != 0 {
		sb.WriteString("; [HOST]\n")
	}

	if len(c.Fields) > 0 {
		sb.WriteString("\n; Fields:\n")
		for _, f := range c.Fields {
			kw := "var"
			if f.Flags&FieldFinal != 0 {
				kw = "val"
			}
			fmt.Fprintf(&sb, ";   %s %s: %s\n", kw, f.Name, TypeName(f.Desc))
		}
	}

	for _, m := range c.Methods {
		sb.WriteString("\n")
		sb.WriteString(MethodText(c, m))
	}
	return sb.String()
}

// UnitText renders every class of a unit, ordered by name.
func UnitText(classes []*Class) string {
	sorted := append([]*Class(nil), classes...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	var parts []string
	for _, c := range sorted {
		parts = append(parts, Text(c))
	}
	return strings.Join(parts, "\n")
}

// MethodText disassembles a single method.
func MethodText(c *Class, m *Method) string {
	var sb strings.Builder
	var mods []string
	if m.IsStatic() {
		mods = append(mods, "static")
	}
	if m.IsNative() {
		mods = append(mods, "native")
	}
	prefix := ""
	if len(mods) > 0 {
		prefix = strings.Join(mods, " ") + " "
	}
	fmt.Fprintf(&sb, "%s%s%s  ; locals=%d\n", prefix, m.Name, m.Desc, m.MaxLocals)

	for off := 0; off < len(m.Code); {
		text, n := disassembleInstruction(c, m.Code, off)
		if line := m.LineAt(off); line > 0 {
			fmt.Fprintf(&sb, "  %04X  %-40s ; line %d\n", off, text, line)
		} else {
			fmt.Fprintf(&sb, "  %04X  %s\n", off, text)
		}
		if n == 0 {
			break
		}
		off += n
	}
	for _, h := range m.Handlers {
		fmt.Fprintf(&sb, "  catch %s [%04X, %04X) -> %04X\n", h.CatchType, h.Start, h.End, h.Target)
	}
	return sb.String()
}

// disassembleInstruction formats the instruction at off and returns its
// length, or 0 when the code is truncated.
func disassembleInstruction(c *Class, code []byte, off int) (string, int) {
	op := Opcode(code[off])
	n := op.InstructionLen()
	if off+n > len(code) {
		return fmt.Sprintf("%s <truncated>", op), 0
	}
	operands := code[off+1 : off+n]

	switch op {
	case OpIConst:
		return fmt.Sprintf("%-14s %d", op, int32(binary.BigEndian.Uint32(operands))), n
	case OpCConst:
		return fmt.Sprintf("%-14s %s", op, strconv.QuoteRune(rune(binary.BigEndian.Uint16(operands)))), n
	case OpLoad, OpStore:
		return fmt.Sprintf("%-14s %d", op, binary.BigEndian.Uint16(operands)), n
	case OpAdd, OpSub, OpMul, OpDiv, OpRem, OpNeg, OpEq, OpNe, OpLt, OpLe, OpGt, OpGe, OpStringify:
		return fmt.Sprintf("%-14s %s", op, Kind(operands[0])), n
	case OpConv:
		return fmt.Sprintf("%-14s %s->%s", op, Kind(operands[0]), Kind(operands[1])), n
	case OpJump, OpJumpFalse, OpJumpTrue:
		delta := int(int16(binary.BigEndian.Uint16(operands)))
		return fmt.Sprintf("%-14s %04X", op, off+n+delta), n
	case OpLdc, OpInvokeStatic, OpInvokeVirtual, OpInvokeSpecial, OpNew, OpGetField, OpPutField:
		idx := binary.BigEndian.Uint16(operands)
		return fmt.Sprintf("%-14s #%d %s", op, idx, constText(c, idx)), n
	}
	return op.String(), n
}

func constText(c *Class, idx uint16) string {
	if c == nil || int(idx) >= len(c.Constants) {
		return "<bad constant>"
	}
	k := c.Constants[idx]
	switch k.Kind {
	case ConstLong:
		return strconv.FormatInt(k.Long, 10) + "L"
	case ConstDouble:
		if math.IsInf(k.Double, 0) || math.IsNaN(k.Double) {
			return fmt.Sprint(k.Double)
		}
		return strconv.FormatFloat(k.Double, 'g', -1, 64)
	case ConstString:
		s := k.Str
		if len(s) > 40 {
			s = s[:37] + "..."
		}
		return strconv.Quote(s)
	case ConstClass:
		return k.Class
	default:
		return k.Class + "." + k.Name + k.Desc
	}
}
