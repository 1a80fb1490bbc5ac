package classfile

import "fmt"

// Opcode represents a bytecode instruction.
// Opcodes are organized into ranges by category.
type Opcode byte

const (
	// ========================================================================
	// Stack manipulation (0x00-0x0F)
	// ========================================================================

	OpNop  Opcode = 0x00 // No operation
	OpPop  Opcode = 0x01 // Pop top of stack
	OpDup  Opcode = 0x02 // Duplicate top of stack
	OpSwap Opcode = 0x03 // Swap top two stack elements

	// ========================================================================
	// Constants (0x10-0x1F)
	// ========================================================================

	OpIConst Opcode = 0x10 // Push Int: OpIConst <value:i32>
	OpLdc    Opcode = 0x11 // Push Long/Double/String from pool: OpLdc <index:u16>
	OpTrue   Opcode = 0x12 // Push true
	OpFalse  Opcode = 0x13 // Push false
	OpNull   Opcode = 0x14 // Push null reference
	OpCConst Opcode = 0x15 // Push Char: OpCConst <unit:u16>

	// ========================================================================
	// Local variables (0x20-0x2F)
	// ========================================================================

	OpLoad  Opcode = 0x20 // Push local: OpLoad <slot:u16>
	OpStore Opcode = 0x21 // Pop into local: OpStore <slot:u16>

	// ========================================================================
	// Arithmetic (0x30-0x3F), typed by a kind operand
	// ========================================================================

	OpAdd  Opcode = 0x30 // OpAdd <kind:u8>
	OpSub  Opcode = 0x31 // OpSub <kind:u8> (a - b where b is TOS)
	OpMul  Opcode = 0x32 // OpMul <kind:u8>
	OpDiv  Opcode = 0x33 // OpDiv <kind:u8>
	OpRem  Opcode = 0x34 // OpRem <kind:u8>
	OpNeg  Opcode = 0x35 // OpNeg <kind:u8>
	OpConv Opcode = 0x36 // OpConv <from:u8> <to:u8>

	// ========================================================================
	// Comparison and logic (0x40-0x4F)
	// ========================================================================

	OpEq  Opcode = 0x40 // OpEq <kind:u8>, push Boolean
	OpNe  Opcode = 0x41 // OpNe <kind:u8>
	OpLt  Opcode = 0x42 // OpLt <kind:u8>
	OpLe  Opcode = 0x43 // OpLe <kind:u8>
	OpGt  Opcode = 0x44 // OpGt <kind:u8>
	OpGe  Opcode = 0x45 // OpGe <kind:u8>
	OpNot Opcode = 0x46 // Boolean negation

	// ========================================================================
	// Strings (0x50-0x5F)
	// ========================================================================

	OpConcat    Opcode = 0x50 // Pop two Strings, push concatenation
	OpStringify Opcode = 0x51 // Convert TOS to String: OpStringify <kind:u8>

	// ========================================================================
	// Control flow (0x60-0x6F)
	// ========================================================================

	OpJump      Opcode = 0x60 // Unconditional jump: OpJump <offset:i16>
	OpJumpFalse Opcode = 0x61 // Pop Boolean, jump if false
	OpJumpTrue  Opcode = 0x62 // Pop Boolean, jump if true

	// ========================================================================
	// Calls (0x70-0x7F)
	// ========================================================================

	OpInvokeStatic  Opcode = 0x70 // OpInvokeStatic <methodref:u16>
	OpInvokeVirtual Opcode = 0x71 // OpInvokeVirtual <methodref:u16>, receiver below args
	OpInvokeSpecial Opcode = 0x72 // Constructor call: OpInvokeSpecial <methodref:u16>

	// ========================================================================
	// Objects (0x80-0x8F)
	// ========================================================================

	OpNew      Opcode = 0x80 // Allocate instance: OpNew <classref:u16>
	OpGetField Opcode = 0x81 // OpGetField <fieldref:u16>
	OpPutField Opcode = 0x82 // OpPutField <fieldref:u16>, pops value then receiver

	// ========================================================================
	// Exceptions (0x90-0x9F)
	// ========================================================================

	OpThrow Opcode = 0x90 // Throw TOS

	// ========================================================================
	// Return (0xF0-0xFF)
	// ========================================================================

	OpReturn     Opcode = 0xF0 // Return TOS
	OpReturnVoid Opcode = 0xF1 // Return Unit
)

// Kind selects the operand type of a typed instruction. The values are the
// descriptor letters, plus 'T' for string content comparison.
type Kind byte

const (
	KindInt    Kind = 'I'
	KindLong   Kind = 'J'
	KindDouble Kind = 'D'
	KindBool   Kind = 'Z'
	KindChar   Kind = 'C'
	KindRef    Kind = 'L'
	KindString Kind = 'T'
)

// String returns the kind letter.
func (k Kind) String() string {
	switch k {
	case KindInt, KindLong, KindDouble, KindBool, KindChar, KindRef, KindString:
		return string(rune(k))
	default:
		return fmt.Sprintf("Kind(%d)", byte(k))
	}
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindInt, KindLong, KindDouble, KindBool, KindChar, KindRef, KindString:
		return true
	}
	return false
}

// OpcodeInfo provides metadata about each opcode for debugging and validation.
type OpcodeInfo struct {
	Name       string // Human-readable name
	OperandLen int    // Number of operand bytes following the opcode
}

var opcodeInfoTable = map[Opcode]OpcodeInfo{
	OpNop:  {"NOP", 0},
	OpPop:  {"POP", 0},
	OpDup:  {"DUP", 0},
	OpSwap: {"SWAP", 0},

	OpIConst: {"ICONST", 4},
	OpLdc:    {"LDC", 2},
	OpTrue:   {"TRUE", 0},
	OpFalse:  {"FALSE", 0},
	OpNull:   {"NULL", 0},
	OpCConst: {"CCONST", 2},

	OpLoad:  {"LOAD", 2},
	OpStore: {"STORE", 2},

	OpAdd:  {"ADD", 1},
	OpSub:  {"SUB", 1},
	OpMul:  {"MUL", 1},
	OpDiv:  {"DIV", 1},
	OpRem:  {"REM", 1},
	OpNeg:  {"NEG", 1},
	OpConv: {"CONV", 2},

	OpEq:  {"EQ", 1},
	OpNe:  {"NE", 1},
	OpLt:  {"LT", 1},
	OpLe:  {"LE", 1},
	OpGt:  {"GT", 1},
	OpGe:  {"GE", 1},
	OpNot: {"NOT", 0},

	OpConcat:    {"CONCAT", 0},
	OpStringify: {"STRINGIFY", 1},

	OpJump:      {"JUMP", 2},
	OpJumpFalse: {"JUMP_FALSE", 2},
	OpJumpTrue:  {"JUMP_TRUE", 2},

	OpInvokeStatic:  {"INVOKESTATIC", 2},
	OpInvokeVirtual: {"INVOKEVIRTUAL", 2},
	OpInvokeSpecial: {"INVOKESPECIAL", 2},

	OpNew:      {"NEW", 2},
	OpGetField: {"GETFIELD", 2},
	OpPutField: {"PUTFIELD", 2},

	OpThrow: {"THROW", 0},

	OpReturn:     {"RETURN", 0},
	OpReturnVoid: {"RETURN_VOID", 0},
}

// GetOpcodeInfo returns metadata for an opcode.
// Returns an "UNKNOWN" entry for undefined opcodes.
func GetOpcodeInfo(op Opcode) OpcodeInfo {
	if info, ok := opcodeInfoTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN(0x%02X)", byte(op))}
}

// IsValid reports whether op is a defined opcode.
func (op Opcode) IsValid() bool {
	_, ok := opcodeInfoTable[op]
	return ok
}

// String returns the opcode name.
func (op Opcode) String() string {
	return GetOpcodeInfo(op).Name
}

// InstructionLen returns the total encoded length of op including operands.
func (op Opcode) InstructionLen() int {
	return 1 + GetOpcodeInfo(op).OperandLen
}

// IsJump reports whether op carries a relative jump offset.
func (op Opcode) IsJump() bool {
	return op == OpJump || op == OpJumpFalse || op == OpJumpTrue
}
