// Package vm implements the Universal Machine's CPU: the register
// file, the fetch-decode-execute loop, the fourteen operator handlers,
// and the I/O ports bound to the host's standard streams.
//
// The interpreter is single-threaded: there is no guest parallelism
// and no implicit task scheduling. The loop is strictly sequential,
// and every state transition is totally ordered by program-counter
// advancement. Blocking occurs only inside the Output and Input
// handlers, which synchronously touch the host's standard streams.
package vm

import (
	"errors"
	"fmt"

	"github.com/bassosimone/um32/pkg/arena"
	"github.com/bassosimone/um32/pkg/opcode"
)

// Word is the machine's native 32-bit datum.
type Word = uint32

// NumRegisters is the number of general-purpose registers.
const NumRegisters = 8

// The following sentinel errors name the interpreter's fatal
// conditions. Every one of them halts the machine; none is ever
// retried or caught across the fetch-decode-execute boundary.
var (
	// ErrHalted is returned by Run/Step once the halted flag is set by
	// opcode 7. Callers distinguish a clean halt from a fatal failure
	// with errors.Is(err, ErrHalted).
	ErrHalted = errors.New("vm: halted")

	// ErrDecode indicates an opcode number outside 0..13.
	ErrDecode = errors.New("vm: unknown opcode")

	// ErrArithmetic indicates division by zero.
	ErrArithmetic = errors.New("vm: division by zero")

	// ErrRange indicates an attempt to output a value greater than 255.
	ErrRange = errors.New("vm: output value out of byte range")

	// ErrIO indicates an unrecoverable failure reading stdin or
	// writing stdout.
	ErrIO = errors.New("vm: i/o failure")
)

// CPU holds the complete state of one Universal Machine instance: the
// register file, the program counter, the halted flag, the array
// arena, and the I/O ports the guest's Output/Input operators address.
type CPU struct {
	Regs   [NumRegisters]Word
	PC     Word
	Halted bool

	Arena *arena.Arena
	zero  []Word // cached backing slice of array 0, invalidated on Load Program

	In  InputPort
	Out OutputPort

	backup *backupState // nil unless checkpointing was requested
}

// New constructs a CPU ready to execute program, with in/out bound as
// the Input/Output operators' ports. The program counter starts at 0,
// all registers start at 0, and the halted flag starts false.
func New(program []Word, in InputPort, out OutputPort) *CPU {
	a := arena.New(program)
	return &CPU{
		Arena: a,
		zero:  a.Zero(),
		In:    in,
		Out:   out,
	}
}

// fetch reads the word at the program counter from array 0. It fails
// if the program counter is at or beyond array 0's length, per the
// invariant that holds at fetch time for every cycle.
func (c *CPU) fetch() (Word, error) {
	if c.PC >= Word(len(c.zero)) {
		return 0, fmt.Errorf("%w: pc %d, length %d", arena.ErrOutOfRange, c.PC, len(c.zero))
	}
	return c.zero[c.PC], nil
}

// Step executes exactly one spin cycle: fetch, decode, dispatch, and
// (unless the handler retargeted the program counter) advance it by
// one. It returns ErrHalted once opcode 7 has run, or any other fatal
// error from the dispatch table.
func (c *CPU) Step() error {
	w, err := c.fetch()
	if err != nil {
		return err
	}
	op := opcode.Decode(w)
	n := op.Number()
	if n < 0 || n >= len(handlers) || handlers[n] == nil {
		return fmt.Errorf("%w: %d", ErrDecode, n)
	}
	retargeted, err := handlers[n](c, op)
	if err != nil {
		return err
	}
	if !retargeted {
		c.PC++
	}
	if c.Halted {
		return ErrHalted
	}
	return nil
}

// Run executes spin cycles until the machine halts or a fatal error
// occurs. A clean halt is reported as ErrHalted; callers should treat
// errors.Is(err, ErrHalted) as success and anything else as a fatal
// interpreter error to report and exit non-zero on.
func (c *CPU) Run() error {
	for {
		if err := c.Step(); err != nil {
			return err
		}
	}
}

// refreshZero re-reads array 0's backing slice from the arena. Load
// Program is the only operator that can replace array 0's storage;
// every other operator leaves c.zero valid across cycles.
func (c *CPU) refreshZero() {
	c.zero = c.Arena.Zero()
}
