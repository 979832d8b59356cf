// Package asm is a minimal line-oriented assembler for the Universal
// Machine's fourteen operators, used by the umasm command. Each source line assembles independently into
// one instruction word; the uniform three-register plus one-immediate
// instruction set needs no label table or multi-pass resolution the
// way a branching ISA does.
package asm

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/bassosimone/um32/pkg/opcode"
)

// ErrSyntax indicates a source line that does not parse as a known
// mnemonic with the right operand count.
var ErrSyntax = errors.New("asm: syntax error")

// InstructionOrError carries either an assembled instruction word or
// the error encountered assembling its source line.
type InstructionOrError struct {
	Instruction opcode.Word
	Error       error
	Lineno      int
}

var mnemonics = map[string]int{
	"cmov":   opcode.ConditionalMove,
	"index":  opcode.ArrayIndex,
	"amend":  opcode.ArrayAmendment,
	"add":    opcode.Addition,
	"mul":    opcode.Multiplication,
	"div":    opcode.Division,
	"nand":   opcode.NotAnd,
	"halt":   opcode.Halt,
	"alloc":  opcode.Allocation,
	"free":   opcode.Abandonment,
	"output": opcode.Output,
	"input":  opcode.Input,
	"load":   opcode.LoadProgram,
	"orth":   opcode.Orthography,
}

// StartAssembler starts the assembler in a background goroutine and
// returns a channel of InstructionOrError, one per non-blank,
// non-comment input line, in source order.
func StartAssembler(r io.Reader) <-chan InstructionOrError {
	out := make(chan InstructionOrError)
	go AssemblerAsync(r, out)
	return out
}

// AssemblerAsync runs the assembler, reading lines from r and writing
// one InstructionOrError per non-blank, non-comment line to out.
func AssemblerAsync(r io.Reader, out chan<- InstructionOrError) {
	defer close(out)
	scanner := bufio.NewScanner(r)
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		word, err := assembleLine(line)
		out <- InstructionOrError{Instruction: word, Error: err, Lineno: lineno}
	}
}

// assembleLine assembles a single non-blank source line into one
// instruction word. Three-register forms use "mnemonic a b c"; the
// Orthography form uses "orth a value".
func assembleLine(line string) (opcode.Word, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return 0, fmt.Errorf("%w: empty line", ErrSyntax)
	}
	n, ok := mnemonics[fields[0]]
	if !ok {
		return 0, fmt.Errorf("%w: unknown mnemonic %q", ErrSyntax, fields[0])
	}
	if n == opcode.Orthography {
		return assembleOrthography(fields)
	}
	return assembleStandard(n, fields)
}

func assembleStandard(n int, fields []string) (opcode.Word, error) {
	want := 4 // mnemonic + 3 registers
	if n == opcode.Halt {
		want = 1
	}
	if len(fields) != want {
		return 0, fmt.Errorf("%w: %q wants %d operand(s), got %d", ErrSyntax, fields[0], want-1, len(fields)-1)
	}
	var a, b, c uint32
	var err error
	if want == 4 {
		if a, err = register(fields[1]); err != nil {
			return 0, err
		}
		if b, err = register(fields[2]); err != nil {
			return 0, err
		}
		if c, err = register(fields[3]); err != nil {
			return 0, err
		}
	}
	return uint32(n)<<28 | a<<6 | b<<3 | c, nil
}

func assembleOrthography(fields []string) (opcode.Word, error) {
	if len(fields) != 3 {
		return 0, fmt.Errorf("%w: %q wants 2 operand(s), got %d", ErrSyntax, fields[0], len(fields)-1)
	}
	a, err := register(fields[1])
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseUint(fields[2], 0, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: bad immediate %q: %v", ErrSyntax, fields[2], err)
	}
	return uint32(opcode.Orthography)<<28 | a<<25 | (uint32(value) & 0x01ffffff), nil
}

func register(s string) (uint32, error) {
	s = strings.TrimPrefix(s, "r")
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil || v > 7 {
		return 0, fmt.Errorf("%w: bad register %q", ErrSyntax, s)
	}
	return uint32(v), nil
}

// Assemble reads r to completion and returns the assembled words, or
// the first error encountered (with its source line number).
func Assemble(r io.Reader) ([]opcode.Word, error) {
	var words []opcode.Word
	for ioe := range StartAssembler(r) {
		if ioe.Error != nil {
			return nil, fmt.Errorf("line %d: %w", ioe.Lineno, ioe.Error)
		}
		words = append(words, ioe.Instruction)
	}
	return words, nil
}
