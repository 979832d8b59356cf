// Command um is the Universal Machine interpreter: it loads a program
// image and either executes it to completion, streaming byte I/O
// through standard input and output, or renders it as a disassembly
// listing.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"

	"github.com/bassosimone/um32/pkg/disasm"
	"github.com/bassosimone/um32/pkg/image"
	"github.com/bassosimone/um32/pkg/vm"
)

func main() {
	log.SetFlags(0)
	log.SetPrefix("um: ")

	execPath := flag.String("e", "", "execute the program image at path")
	disasmPath := flag.String("d", "", "disassemble the program image at path")
	resumePath := flag.String("resume", "", "resume execution from the backup file at path")
	backupDir := flag.String("backup", "", "enable periodic host-level checkpointing to dir")
	flag.Parse()

	set := 0
	for _, s := range []string{*execPath, *disasmPath, *resumePath} {
		if s != "" {
			set++
		}
	}
	switch {
	case set != 1:
		log.Fatal("usage: um -e <path> [-backup <dir>] | -d <path> | -resume <backup-file> [-backup <dir>]")
	case *execPath != "":
		execute(*execPath, *backupDir)
	case *disasmPath != "":
		disassemble(*disasmPath)
	case *resumePath != "":
		resume(*resumePath, *backupDir)
	}
}

func disassemble(path string) {
	fp, err := os.Open(path)
	if err != nil {
		log.Fatal(err)
	}
	defer fp.Close()

	words, err := image.Load(fp)
	if err != nil {
		log.Fatal(err)
	}
	if err := disasm.Disassemble(os.Stdout, words); err != nil {
		log.Fatal(err)
	}
}

func execute(path, backupDir string) {
	fp, err := os.Open(path)
	if err != nil {
		log.Fatal(err)
	}
	defer fp.Close()

	words, err := image.Load(fp)
	if err != nil {
		log.Fatal(err)
	}

	in, out, restore := vm.StdioPorts()
	defer restore()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	go func() {
		<-ctx.Done()
		restore()
	}()

	cpu := vm.New(words, in, out)
	if backupDir != "" {
		cpu.EnableBackup(backupDir)
	}

	if err := cpu.Run(); err != nil && !errors.Is(err, vm.ErrHalted) {
		log.Fatal(err)
	}
}

// resume reconstructs a CPU from a previously written backup file and
// continues executing it from exactly the point the snapshot captured.
func resume(backupPath, backupDir string) {
	fp, err := os.Open(backupPath)
	if err != nil {
		log.Fatal(err)
	}
	defer fp.Close()

	in, out, restore := vm.StdioPorts()
	defer restore()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	go func() {
		<-ctx.Done()
		restore()
	}()

	cpu, err := vm.LoadFromBackup(fp, in, out)
	if err != nil {
		log.Fatal(err)
	}
	if backupDir != "" {
		cpu.EnableBackup(backupDir)
	}

	if err := cpu.Run(); err != nil && !errors.Is(err, vm.ErrHalted) {
		log.Fatal(err)
	}
}
