// Package opcode decodes the 32-bit instruction words of the Universal
// Machine into their opcode number and operand fields.
//
// Instruction format
//
// Each instruction is 32 bits wide, big-endian when read from an image
// file (see package image) and native uint32 once in memory. There are
// two instruction formats:
//
//	standard (opcodes 0..12): <Opcode:4><Unused:19><A:3><B:3><C:3>
//	special  (opcode 13):     <Opcode:4><A:3><Value:25>
//
// Decoding is a pure function of the word; Operator carries no state
// beyond the word itself.
package opcode

// Word is the Universal Machine's native 32-bit unsigned datum.
type Word = uint32

// Operator wraps a decoded instruction word and exposes its fields.
type Operator struct {
	raw Word
}

// Decode returns the Operator view of a raw instruction word.
func Decode(w Word) Operator {
	return Operator{raw: w}
}

// Raw returns the original 32-bit word.
func (op Operator) Raw() Word {
	return op.raw
}

// Number returns the 4-bit opcode number, 0..15. Callers must check
// that it falls in the defined 0..13 range; values 14 and 15 are
// unassigned and decode error is the caller's responsibility.
func (op Operator) Number() int {
	return int((op.raw >> 28) & 0xf)
}

// A returns the standard-format A register index (opcodes 0..12).
func (op Operator) A() int {
	return int((op.raw >> 6) & 0x7)
}

// B returns the standard-format B register index (opcodes 0..12).
func (op Operator) B() int {
	return int((op.raw >> 3) & 0x7)
}

// C returns the standard-format C register index (opcodes 0..12).
func (op Operator) C() int {
	return int(op.raw & 0x7)
}

// ASpecial returns the special-format (opcode 13) A register index.
func (op Operator) ASpecial() int {
	return int((op.raw >> 25) & 0x7)
}

// Value returns the special-format (opcode 13) 25-bit zero-extended
// immediate.
func (op Operator) Value() Word {
	return op.raw & 0x01ffffff
}

// The following constants name the fourteen operator numbers.
const (
	ConditionalMove = 0
	ArrayIndex      = 1
	ArrayAmendment  = 2
	Addition        = 3
	Multiplication  = 4
	Division        = 5
	NotAnd          = 6
	Halt            = 7
	Allocation      = 8
	Abandonment     = 9
	Output          = 10
	Input           = 11
	LoadProgram     = 12
	Orthography     = 13
)

var names = [...]string{
	ConditionalMove: "Conditional Move",
	ArrayIndex:      "Array Index",
	ArrayAmendment:  "Array Amendment",
	Addition:        "Addition",
	Multiplication:  "Multiplication",
	Division:        "Division",
	NotAnd:          "Not-And",
	Halt:            "Halt",
	Allocation:      "Allocation",
	Abandonment:     "Abandonment",
	Output:          "Output",
	Input:           "Input",
	LoadProgram:     "Load Program",
	Orthography:     "Orthography",
}

// Name returns the canonical operator name for n, or "<unknown>" if n
// is outside 0..13.
func Name(n int) string {
	if n < 0 || n >= len(names) {
		return "<unknown>"
	}
	return names[n]
}

// Name returns the canonical name of the receiver's operator number.
func (op Operator) Name() string {
	return Name(op.Number())
}

// Valid reports whether the operator number is one of the fourteen
// defined operators.
func (op Operator) Valid() bool {
	n := op.Number()
	return n >= ConditionalMove && n <= Orthography
}
