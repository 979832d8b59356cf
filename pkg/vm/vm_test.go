package vm_test

import (
	"errors"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/bassosimone/um32/pkg/arena"
	"github.com/bassosimone/um32/pkg/opcode"
	"github.com/bassosimone/um32/pkg/vm"
)

// instr assembles a standard-format instruction word for tests,
// mirroring the bit layout documented in pkg/opcode.
func instr(op, a, b, c uint32) uint32 {
	return (op << 28) | (a << 6) | (b << 3) | c
}

// orth assembles a special-format (Orthography) instruction word.
func orth(a, value uint32) uint32 {
	return (uint32(opcode.Orthography) << 28) | (a << 25) | (value & 0x01ffffff)
}

// bufferInput is a fixed byte sequence InputPort; it reports eof once
// exhausted, with no further lookahead.
type bufferInput struct {
	data []byte
	pos  int
}

func (b *bufferInput) ReadByte() (byte, bool, error) {
	if b.pos >= len(b.data) {
		return 0, true, nil
	}
	v := b.data[b.pos]
	b.pos++
	return v, false, nil
}

// recordingOutput is an OutputPort that records every byte written.
type recordingOutput struct {
	bytes []byte
}

func (r *recordingOutput) WriteByte(b byte) error {
	r.bytes = append(r.bytes, b)
	return nil
}

var _ = Describe("CPU", func() {
	var out *recordingOutput
	var in *bufferInput

	BeforeEach(func() {
		out = &recordingOutput{}
		in = &bufferInput{}
	})

	Describe("Halt-only image", func() {
		It("exits cleanly with no output", func() {
			c := vm.New([]uint32{0x70000000}, in, out)
			err := c.Run()
			Expect(errors.Is(err, vm.ErrHalted)).To(BeTrue())
			Expect(out.bytes).To(BeEmpty())
		})
	})

	Describe("Output 'A' then halt", func() {
		It("writes exactly one byte and halts", func() {
			program := []uint32{
				orth(0, 65),      // R0 <- 65 ('A')
				instr(10, 0, 0, 0), // Output R0
				0x70000000,       // Halt
			}
			c := vm.New(program, in, out)
			err := c.Run()
			Expect(errors.Is(err, vm.ErrHalted)).To(BeTrue())
			Expect(out.bytes).To(Equal([]byte("A")))
		})
	})

	Describe("Addition", func() {
		It("wraps modulo 2^32 (0xFFFFFFFF + 2 == 1)", func() {
			program := []uint32{
				instr(opcode.Addition, 0, 1, 2),
				0x70000000,
			}
			c := vm.New(program, in, out)
			c.Regs[1] = 0xFFFFFFFF
			c.Regs[2] = 2
			Expect(c.Run()).To(MatchError(vm.ErrHalted))
			Expect(c.Regs[0]).To(Equal(uint32(1)))
		})

		It("computes R[A] = R[B] + R[C] mod 2^32 through Step", func() {
			program := []uint32{
				orth(1, 10),
				orth(2, 20),
				instr(opcode.Addition, 0, 1, 2),
				0x70000000,
			}
			c := vm.New(program, in, out)
			Expect(c.Run()).To(MatchError(vm.ErrHalted))
			Expect(c.Regs[0]).To(Equal(uint32(30)))
		})
	})

	Describe("Multiplication", func() {
		It("wraps modulo 2^32", func() {
			program := []uint32{
				orth(1, 0x10000),
				orth(2, 0x10001),
				instr(opcode.Multiplication, 0, 1, 2),
				0x70000000,
			}
			c := vm.New(program, in, out)
			Expect(c.Run()).To(MatchError(vm.ErrHalted))
			// 0x10000 * 0x10001 == 0x1_0001_0000, which wraps to 0x10000.
			Expect(c.Regs[0]).To(Equal(uint32(0x10000)))
		})
	})

	Describe("Division", func() {
		It("performs unsigned floor division", func() {
			program := []uint32{
				orth(1, 7),
				orth(2, 2),
				instr(opcode.Division, 0, 1, 2),
				0x70000000,
			}
			c := vm.New(program, in, out)
			Expect(c.Run()).To(MatchError(vm.ErrHalted))
			Expect(c.Regs[0]).To(Equal(uint32(3)))
		})

		It("fails fatally on division by zero", func() {
			program := []uint32{
				orth(1, 7),
				orth(2, 0),
				instr(opcode.Division, 0, 1, 2),
			}
			c := vm.New(program, in, out)
			err := c.Run()
			Expect(err).To(MatchError(vm.ErrArithmetic))
		})
	})

	Describe("Not-And", func() {
		It("computes bitwise NOT(B AND C)", func() {
			program := []uint32{
				orth(1, 0b1100),
				orth(2, 0b1010),
				instr(opcode.NotAnd, 0, 1, 2),
				0x70000000,
			}
			c := vm.New(program, in, out)
			Expect(c.Run()).To(MatchError(vm.ErrHalted))
			Expect(c.Regs[0]).To(Equal(^uint32(0b1000)))
		})
	})

	Describe("Conditional Move", func() {
		It("moves when R[C] != 0", func() {
			program := []uint32{
				orth(1, 99),
				orth(2, 1),
				instr(opcode.ConditionalMove, 0, 1, 2),
				0x70000000,
			}
			c := vm.New(program, in, out)
			Expect(c.Run()).To(MatchError(vm.ErrHalted))
			Expect(c.Regs[0]).To(Equal(uint32(99)))
		})

		It("is a no-op when R[C] == 0", func() {
			program := []uint32{
				orth(1, 99),
				instr(opcode.ConditionalMove, 0, 1, 2), // R2 is 0
				0x70000000,
			}
			c := vm.New(program, in, out)
			Expect(c.Run()).To(MatchError(vm.ErrHalted))
			Expect(c.Regs[0]).To(Equal(uint32(0)))
		})
	})

	Describe("Array Index and Array Amendment", func() {
		It("writes through amendment and reads it back through index", func() {
			program := []uint32{
				orth(1, 3),    // R1 <- capacity 3
				instr(opcode.Allocation, 0, 0, 1), // R0 <- Allocate(R1)
				orth(2, 77),   // R2 <- 77
				orth(3, 1),    // R3 <- offset 1
				instr(opcode.ArrayAmendment, 0, 3, 2), // arr[R0][R3] = R2
				instr(opcode.ArrayIndex, 4, 0, 3),     // R4 <- arr[R0][R3]
				0x70000000,
			}
			c := vm.New(program, in, out)
			Expect(c.Run()).To(MatchError(vm.ErrHalted))
			Expect(c.Regs[4]).To(Equal(uint32(77)))
		})
	})

	Describe("Allocation and Abandonment", func() {
		It("reuses an abandoned identifier on the next allocation", func() {
			program := []uint32{
				orth(1, 4),
				instr(opcode.Allocation, 0, 2, 1), // R2 <- Allocate(R1=4)
				instr(opcode.Abandonment, 0, 0, 2), // Abandon(R2)
				instr(opcode.Allocation, 0, 3, 1),  // R3 <- Allocate(R1=4)
				0x70000000,
			}
			c := vm.New(program, in, out)
			Expect(c.Run()).To(MatchError(vm.ErrHalted))
			Expect(c.Regs[2]).NotTo(BeZero())
			Expect(c.Regs[3]).To(Equal(c.Regs[2]))
		})

		It("fails fatally when abandoning array 0", func() {
			program := []uint32{
				instr(opcode.Abandonment, 0, 0, 0), // Abandon(R0=0)
			}
			c := vm.New(program, in, out)
			err := c.Run()
			Expect(err).To(MatchError(arena.ErrAbandonZero))
		})
	})

	Describe("Output", func() {
		It("fails fatally for a value greater than 255", func() {
			program := []uint32{
				orth(0, 256),
				instr(opcode.Output, 0, 0, 0),
			}
			c := vm.New(program, in, out)
			err := c.Run()
			Expect(err).To(MatchError(vm.ErrRange))
		})
	})

	Describe("Input", func() {
		It("loads 0xFFFFFFFF at end of stream", func() {
			program := []uint32{
				instr(opcode.Input, 0, 0, 0),
				0x70000000,
			}
			c := vm.New(program, in, out) // in has no buffered bytes: immediate EOF
			Expect(c.Run()).To(MatchError(vm.ErrHalted))
			Expect(c.Regs[0]).To(Equal(uint32(0xFFFFFFFF)))
		})

		It("a register loaded from EOF input drives a subsequent conditional move", func() {
			program := []uint32{
				instr(opcode.Input, 0, 0, 2), // R2 <- input (EOF -> 0xFFFFFFFF)
				orth(1, 123),
				instr(opcode.ConditionalMove, 0, 1, 2),
				0x70000000,
			}
			c := vm.New(program, in, out)
			Expect(c.Run()).To(MatchError(vm.ErrHalted))
			Expect(c.Regs[0]).To(Equal(uint32(123)))
		})

		It("delivers bytes in stream order", func() {
			in.data = []byte{10, 20}
			program := []uint32{
				instr(opcode.Input, 0, 0, 1),
				instr(opcode.Input, 0, 0, 2),
				0x70000000,
			}
			c := vm.New(program, in, out)
			Expect(c.Run()).To(MatchError(vm.ErrHalted))
			Expect(c.Regs[1]).To(Equal(uint32(10)))
			Expect(c.Regs[2]).To(Equal(uint32(20)))
		})
	})

	Describe("Load Program (self-modifying code)", func() {
		It("jumps without copying when R[B] == 0", func() {
			program := []uint32{
				orth(2, 3), // R2 <- target offset 3 (the halt below)
				instr(opcode.LoadProgram, 0, 0, 2), // R0 (B)=0: jump only
				orth(0, 0xFF),                      // skipped
				0x70000000,                         // landing pad
			}
			c := vm.New(program, in, out)
			Expect(c.Run()).To(MatchError(vm.ErrHalted))
			Expect(c.Regs[0]).To(BeZero(), "the skipped Orthography must never execute")
		})

		It("leaves the source array live and unchanged after duplicating it into array 0", func() {
			// The executing image is a single Load Program instruction
			// naming a previously-allocated array (via registers 5/6) that
			// holds [Halt]. After execution, the source array must remain
			// live with its original contents untouched.
			program := []uint32{
				instr(opcode.LoadProgram, 0, 5, 6),
			}
			c := vm.New(program, in, out)

			id := c.Arena.Allocate(1)
			Expect(c.Arena.Write(id, 0, 0x70000000)).To(Succeed()) // source array holds [Halt]
			c.Regs[5] = id
			c.Regs[6] = 0

			err := c.Run()
			Expect(errors.Is(err, vm.ErrHalted)).To(BeTrue())

			v, rerr := c.Arena.Read(id, 0)
			Expect(rerr).NotTo(HaveOccurred())
			Expect(v).To(Equal(uint32(0x70000000)), "source array must remain live and unmodified")
		})
	})

	Describe("Orthography", func() {
		It("masks the immediate to 25 bits", func() {
			program := []uint32{
				orth(0, 0xFFFFFFFF),
				0x70000000,
			}
			c := vm.New(program, in, out)
			Expect(c.Run()).To(MatchError(vm.ErrHalted))
			Expect(c.Regs[0]).To(Equal(uint32(0x01ffffff)))
		})
	})

	Describe("Decode error", func() {
		It("fails fatally on an opcode number outside 0..13", func() {
			program := []uint32{0xF0000000} // opcode 15
			c := vm.New(program, in, out)
			err := c.Run()
			Expect(err).To(MatchError(vm.ErrDecode))
		})
	})

	Describe("fetch bounds", func() {
		It("fails fatally when the program counter runs past array 0's length", func() {
			program := []uint32{orth(0, 1)} // no halt; falls off the end
			c := vm.New(program, in, out)
			err := c.Run()
			Expect(err).To(MatchError(arena.ErrOutOfRange))
		})
	})

	Describe("Backup and resume", func() {
		It("writes a checkpoint on the first Input and resumes from it", func() {
			dir := GinkgoT().TempDir()

			program := []uint32{
				instr(opcode.Input, 0, 0, 1), // R1 <- input
				0x70000000,
			}
			in.data = []byte{42}
			c := vm.New(program, in, out)
			c.EnableBackup(dir)

			// recordBackupPoint's one-per-minute throttle compares against
			// the zero Time, so the very first Input call always writes a
			// checkpoint: it captures state as of just before that Input
			// runs (the program counter still at the Input instruction).
			Expect(c.Run()).To(MatchError(vm.ErrHalted))
			Expect(c.Regs[1]).To(Equal(uint32(42)))

			backupFile, err := os.Open(filepath.Join(dir, "backup.dat"))
			Expect(err).NotTo(HaveOccurred())
			defer backupFile.Close()

			resumeIn := &bufferInput{data: []byte{99}}
			resumeOut := &recordingOutput{}
			resumed, err := vm.LoadFromBackup(backupFile, resumeIn, resumeOut)
			Expect(err).NotTo(HaveOccurred())
			Expect(resumed.Halted).To(BeFalse())

			// The checkpoint predates the Input's own effect, so resuming
			// re-executes that same Input instruction against the fresh
			// input stream bound at resume time.
			Expect(resumed.Run()).To(MatchError(vm.ErrHalted))
			Expect(resumed.Regs[1]).To(Equal(uint32(99)))
		})
	})
})
