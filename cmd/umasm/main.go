// Command umasm assembles a line-oriented Universal Machine source
// file into a big-endian binary image, or, given -d, disassembles a
// binary image back to a textual listing.
package main

import (
	"encoding/binary"
	"flag"
	"log"
	"os"

	"github.com/bassosimone/um32/pkg/asm"
	"github.com/bassosimone/um32/pkg/disasm"
	"github.com/bassosimone/um32/pkg/image"
)

func main() {
	log.SetFlags(0)
	log.SetPrefix("umasm: ")

	disassemble := flag.Bool("d", false, "disassemble a binary image instead of assembling")
	flag.Parse()

	if *disassemble {
		if flag.NArg() != 1 {
			log.Fatal("usage: umasm -d <image-file>")
		}
		runDisassemble(flag.Arg(0))
		return
	}

	if flag.NArg() != 2 {
		log.Fatal("usage: umasm <source-file> <out-image-file>")
	}
	runAssemble(flag.Arg(0), flag.Arg(1))
}

func runAssemble(srcPath, outPath string) {
	src, err := os.Open(srcPath)
	if err != nil {
		log.Fatal(err)
	}
	defer src.Close()

	words, err := asm.Assemble(src)
	if err != nil {
		log.Fatal(err)
	}

	out, err := os.Create(outPath)
	if err != nil {
		log.Fatal(err)
	}
	defer out.Close()

	for _, w := range words {
		if err := binary.Write(out, binary.BigEndian, w); err != nil {
			log.Fatal(err)
		}
	}
}

func runDisassemble(path string) {
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
