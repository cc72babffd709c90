// Package tinycompress writes zlib streams made of stored deflate blocks.
// Nothing is actually compressed; the point is a zlib container any host
// side reader accepts, produced without a deflate engine on the MCU.
package tinycompress

import (
	"errors"
	"hash"
	"hash/adler32"
	"io"
)

const (
	// BlockSize is the stored block payload the writer buffers before
	// emitting a block. Each block costs 5 bytes of framing.
	BlockSize = 128

	zlibCMF = 0x78 // deflate, 32K window
	zlibFLG = 0x01 // fastest level, (CMF<<8|FLG) % 31 == 0
)

var ErrClosed = errors.New("tinycompress: write to closed writer")

// Writer streams input out as stored blocks. Memory use is one block,
// however much is written.
type Writer struct {
	output     io.Writer
	block      [BlockSize]byte
	n          int
	adler      hash.Hash32
	headerDone bool
	closed     bool
}

// NewWriter returns a writer producing a zlib stream on w
func NewWriter(w io.Writer) *Writer {
	return &Writer{
		output: w,
		adler:  adler32.New(),
	}
}

// Write implements io.Writer
func (w *Writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, ErrClosed
	}
	written := 0
	for len(p) > 0 {
		if w.n == BlockSize {
			if err := w.flushBlock(false); err != nil {
				return written, err
			}
		}
		c := copy(w.block[w.n:], p)
		w.adler.Write(p[:c])
		w.n += c
		written += c
		p = p[c:]
	}
	return written, nil
}

// Close writes the final block and the checksum
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.flushBlock(true); err != nil {
		return err
	}
	sum := w.adler.Sum32()
	_, err := w.output.Write([]byte{byte(sum >> 24), byte(sum >> 16), byte(sum >> 8), byte(sum)})
	return err
}

// flushBlock emits the buffered bytes as one stored block:
// BFINAL/BTYPE, LEN, NLEN, data
func (w *Writer) flushBlock(final bool) error {
	if !w.headerDone {
		if _, err := w.output.Write([]byte{zlibCMF, zlibFLG}); err != nil {
			return err
		}
		w.headerDone = true
	}

	var bfinal byte
	if final {
		bfinal = 1
	}
	length := uint16(w.n)
	nlength := ^length
	header := []byte{bfinal, byte(length), byte(length >> 8), byte(nlength), byte(nlength >> 8)}
	if _, err := w.output.Write(header); err != nil {
		return err
	}
	if _, err := w.output.Write(w.block[:w.n]); err != nil {
		return err
	}
	w.n = 0
	return nil
}

// StreamSize returns the zlib stream length for n input bytes
func StreamSize(n int) int {
	blocks := (n + BlockSize - 1) / BlockSize
	if blocks == 0 {
		blocks = 1
	}
	return 2 + n + 5*blocks + 4
}

// Compress returns data wrapped as a zlib stream
func Compress(data []byte) []byte {
	out := sliceWriter(make([]byte, 0, StreamSize(len(data))))
	w := NewWriter(&out)
	w.Write(data)
	w.Close()
	return out
}

type sliceWriter []byte

func (s *sliceWriter) Write(p []byte) (int, error) {
	*s = append(*s, p...)
	return len(p), nil
}
