package vm

import (
	"fmt"

	"github.com/bassosimone/um32/pkg/opcode"
)

// handler executes one decoded operator against c. It returns whether
// it retargeted the program counter itself (only Load Program does;
// every other handler leaves the +1 advance to Step) and any fatal
// error.
type handler func(c *CPU, op opcode.Operator) (retargeted bool, err error)

// handlers is the direct indexed dispatch table, one entry per
// operator number. A switch/match with an exhaustive arm per opcode
// would be equally acceptable; this implementation uses the jump
// table per the dispatch guidance in the design notes.
var handlers = [14]handler{
	opcode.ConditionalMove: execConditionalMove,
	opcode.ArrayIndex:      execArrayIndex,
	opcode.ArrayAmendment:  execArrayAmendment,
	opcode.Addition:        execAddition,
	opcode.Multiplication:  execMultiplication,
	opcode.Division:        execDivision,
	opcode.NotAnd:          execNotAnd,
	opcode.Halt:            execHalt,
	opcode.Allocation:      execAllocation,
	opcode.Abandonment:     execAbandonment,
	opcode.Output:          execOutput,
	opcode.Input:           execInput,
	opcode.LoadProgram:     execLoadProgram,
	opcode.Orthography:     execOrthography,
}

func execConditionalMove(c *CPU, op opcode.Operator) (bool, error) {
	if c.Regs[op.C()] != 0 {
		c.Regs[op.A()] = c.Regs[op.B()]
	}
	return false, nil
}

func execArrayIndex(c *CPU, op opcode.Operator) (bool, error) {
	v, err := c.Arena.Read(c.Regs[op.B()], c.Regs[op.C()])
	if err != nil {
		return false, err
	}
	c.Regs[op.A()] = v
	return false, nil
}

func execArrayAmendment(c *CPU, op opcode.Operator) (bool, error) {
	// Array 0 may be amended in place (self-modifying code writing
	// ahead of the program counter); the cached slice header still
	// points at the same backing array, so no refresh is needed here.
	// Only Load Program replaces the backing array wholesale.
	return false, c.Arena.Write(c.Regs[op.A()], c.Regs[op.B()], c.Regs[op.C()])
}

// Addition and Multiplication wrap modulo 2^32, which is what Go's
// native uint32 arithmetic already does. The original Rust source's
// "% u32::MAX" (modulo 2^32 - 1) is a known bug and is not reproduced.
func execAddition(c *CPU, op opcode.Operator) (bool, error) {
	c.Regs[op.A()] = c.Regs[op.B()] + c.Regs[op.C()]
	return false, nil
}

func execMultiplication(c *CPU, op opcode.Operator) (bool, error) {
	c.Regs[op.A()] = c.Regs[op.B()] * c.Regs[op.C()]
	return false, nil
}

func execDivision(c *CPU, op opcode.Operator) (bool, error) {
	divisor := c.Regs[op.C()]
	if divisor == 0 {
		return false, ErrArithmetic
	}
	c.Regs[op.A()] = c.Regs[op.B()] / divisor
	return false, nil
}

func execNotAnd(c *CPU, op opcode.Operator) (bool, error) {
	c.Regs[op.A()] = ^(c.Regs[op.B()] & c.Regs[op.C()])
	return false, nil
}

func execHalt(c *CPU, _ opcode.Operator) (bool, error) {
	c.Halted = true
	return false, nil
}

func execAllocation(c *CPU, op opcode.Operator) (bool, error) {
	c.Regs[op.B()] = c.Arena.Allocate(c.Regs[op.C()])
	return false, nil
}

func execAbandonment(c *CPU, op opcode.Operator) (bool, error) {
	return false, c.Arena.Abandon(c.Regs[op.C()])
}

func execOutput(c *CPU, op opcode.Operator) (bool, error) {
	v := c.Regs[op.C()]
	if v > 255 {
		return false, fmt.Errorf("%w: %d", ErrRange, v)
	}
	if err := c.Out.WriteByte(byte(v)); err != nil {
		return false, fmt.Errorf("%w: %s", ErrIO, err.Error())
	}
	return false, nil
}

func execInput(c *CPU, op opcode.Operator) (bool, error) {
	c.recordBackupPoint()
	b, eof, err := c.In.ReadByte()
	if err != nil {
		return false, fmt.Errorf("%w: %s", ErrIO, err.Error())
	}
	if eof {
		c.Regs[op.C()] = 0xffffffff
	} else {
		c.Regs[op.C()] = Word(b)
	}
	return false, nil
}

func execLoadProgram(c *CPU, op opcode.Operator) (bool, error) {
	src := c.Regs[op.B()]
	if src != 0 {
		if err := c.Arena.ReplaceZero(src); err != nil {
			return false, err
		}
		c.refreshZero()
	}
	c.PC = c.Regs[op.C()]
	return true, nil
}

func execOrthography(c *CPU, op opcode.Operator) (bool, error) {
	c.Regs[op.ASpecial()] = op.Value()
	return false, nil
}
