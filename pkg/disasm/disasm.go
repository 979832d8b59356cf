// Package disasm renders Universal Machine instruction words as a
// textual listing, one line per word, in the
// `[i]: <name> (<op>) | A: ... | B: ... | C: ...` format.
package disasm

import (
	"fmt"
	"io"

	"github.com/bassosimone/um32/pkg/opcode"
)

// Line renders a single instruction word at index i.
//
// For opcode 13 (Orthography): "[i]: Orthography (13) | A: <A> | value: <value>"
// For all others:               "[i]: <name> (<op>) | A: <A> | B: <B> | C: <C>"
//
// An undefined opcode number (14 or 15) is rendered with its raw
// fields rather than failing, so a listing always covers every word
// in the image even when it includes data the program counter never
// reaches as code.
func Line(i int, w opcode.Word) string {
	op := opcode.Decode(w)
	n := op.Number()
	if n == opcode.Orthography {
		return fmt.Sprintf("[%d]: %s (%d) | A: %d | value: %d", i, op.Name(), n, op.ASpecial(), op.Value())
	}
	return fmt.Sprintf("[%d]: %s (%d) | A: %d | B: %d | C: %d", i, op.Name(), n, op.A(), op.B(), op.C())
}

// Disassemble writes one Line per word in words to w, each followed by
// a newline.
func Disassemble(w io.Writer, words []opcode.Word) error {
	for i, word := range words {
		if _, err := fmt.Fprintln(w, Line(i, word)); err != nil {
			return fmt.Errorf("disasm: writing line %d: %w", i, err)
		}
	}
	return nil
}
