package protocol

import (
	"bytes"
	"testing"
)

func TestSliceInputBuffer(t *testing.T) {
	buf := NewSliceInputBuffer([]byte{1, 2, 3, 4, 5})

	if buf.Available() != 5 {
		t.Errorf("Expected 5 bytes available, got %d", buf.Available())
	}

	buf.Pop(2)
	if buf.Available() != 3 || buf.Data()[0] != 3 {
		t.Errorf("After popping 2, expected [3 4 5], got %v", buf.Data())
	}

	buf.Pop(10)
	if buf.Available() != 0 {
		t.Errorf("Pop past the end should empty the buffer, %d left", buf.Available())
	}
}

func TestScratchOutput(t *testing.T) {
	scratch := NewScratchOutput()

	scratch.Output([]byte{1, 2, 3})
	scratch.Output([]byte{4, 5})

	if scratch.CurPosition() != 5 {
		t.Errorf("Expected position 5, got %d", scratch.CurPosition())
	}
	if !bytes.Equal(scratch.DataSince(2), []byte{3, 4, 5}) {
		t.Errorf("DataSince(2) failed: expected [3 4 5], got %v", scratch.DataSince(2))
	}
	if scratch.DataSince(9) != nil {
		t.Error("DataSince past the write position should be nil")
	}

	scratch.Reset()
	if scratch.CurPosition() != 0 {
		t.Errorf("After reset, expected position 0, got %d", scratch.CurPosition())
	}
}

func TestScratchOutputOverflow(t *testing.T) {
	scratch := NewScratchOutput()
	scratch.Output(make([]byte, MessageMax+10))
	if scratch.CurPosition() != MessageMax {
		t.Errorf("Expected output clipped to %d, got %d", MessageMax, scratch.CurPosition())
	}
}

func TestFifoBuffer(t *testing.T) {
	fifo := NewFifoBuffer(10)

	if !fifo.IsEmpty() {
		t.Error("New FIFO should be empty")
	}

	if written := fifo.Write([]byte{1, 2, 3, 4, 5}); written != 5 {
		t.Errorf("Expected to write 5 bytes, wrote %d", written)
	}
	if fifo.Free() != 4 {
		t.Errorf("Expected 4 bytes free, got %d", fifo.Free())
	}

	fifo.Pop(3)
	if !bytes.Equal(fifo.Data(), []byte{4, 5}) {
		t.Errorf("After popping 3, expected [4 5], got %v", fifo.Data())
	}

	fifo.Reset()
	if written := fifo.Write(make([]byte, 12)); written != 9 {
		// One slot is reserved
		t.Errorf("Expected to write 9 bytes to size-10 FIFO, wrote %d", written)
	}
}

func TestFifoBufferWrapAround(t *testing.T) {
	fifo := NewFifoBuffer(5)

	fifo.Write([]byte{1, 2, 3, 4})
	fifo.Pop(2)

	if written := fifo.Write([]byte{5, 6}); written != 2 {
		t.Errorf("Expected to write 2 bytes, wrote %d", written)
	}

	if got := fifo.Data(); !bytes.Equal(got, []byte{3, 4, 5, 6}) {
		t.Errorf("Wrap-around data mismatch: got %v", got)
	}
}
