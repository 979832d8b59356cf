// Package image loads a Universal Machine program image: a sequence
// of 32-bit words stored contiguously in a file, used as the initial
// content of array 0.
//
// Byte order is big-endian, matching the network byte order most
// scroll-format images are distributed in; readers that default to
// little-endian word decoding will silently produce garbage on these
// files, so this is worth getting right at the boundary rather than
// leaving it to each caller.
package image

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrTruncated indicates the input's length is not a multiple of 4: a
// trailing partial word that is far more likely to signal a corrupt
// or truncated image than intentional padding, so it is rejected
// rather than silently zero-padded.
var ErrTruncated = errors.New("image: truncated file (length not a multiple of 4)")

// Load reads all of r and decodes it as a sequence of big-endian
// 32-bit words.
func Load(r io.Reader) ([]uint32, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("image: reading: %w", err)
	}
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("%w: %d stray byte(s)", ErrTruncated, len(raw)%4)
	}
	words := make([]uint32, len(raw)/4)
	for i := range words {
		words[i] = binary.BigEndian.Uint32(raw[i*4 : i*4+4])
	}
	return words, nil
}
