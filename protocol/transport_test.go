package protocol

import (
	"bytes"
	"errors"
	"net"
	"testing"
	"time"
)

// buildBlock frames a command the way a host would
func buildBlock(t *testing.T, seq uint8, cmdID uint32, args ...uint32) []byte {
	t.Helper()
	payload := NewScratchOutput()
	EncodeVLQUint(payload, cmdID)
	for _, a := range args {
		EncodeVLQUint(payload, a)
	}
	out := NewScratchOutput()
	if err := EncodeBlock(out, seq, payload.Result()); err != nil {
		t.Fatalf("EncodeBlock failed: %v", err)
	}
	return append([]byte(nil), out.Result()...)
}

func TestEncodeBlockTooLong(t *testing.T) {
	out := NewScratchOutput()
	err := EncodeBlock(out, MessageDest, make([]byte, MessageLengthMax))
	if err != ErrMessageTooLong {
		t.Errorf("Expected ErrMessageTooLong, got %v", err)
	}
}

func TestTransportDispatchAndAck(t *testing.T) {
	output := NewScratchOutput()
	var gotID uint16
	var gotArg uint32
	transport := NewTransport(output, func(cmdID uint16, data *[]byte) error {
		gotID = cmdID
		v, err := DecodeVLQUint(data)
		gotArg = v
		return err
	})

	input := NewSliceInputBuffer(buildBlock(t, MessageDest, 7, 1600))
	transport.Receive(input)

	if gotID != 7 || gotArg != 1600 {
		t.Errorf("Expected command 7 with arg 1600, got %d with %d", gotID, gotArg)
	}
	if input.Available() != 0 {
		t.Errorf("Expected input consumed, %d bytes left", input.Available())
	}

	ack := output.Result()
	expected := []byte{5, MessageDest | 1, 0x8F, 0x08, MessageValueSync}
	if string(ack) != string(expected) {
		t.Errorf("ACK mismatch: expected %v, got %v", expected, ack)
	}
}

func TestTransportPartialBlock(t *testing.T) {
	output := NewScratchOutput()
	calls := 0
	transport := NewTransport(output, func(cmdID uint16, data *[]byte) error {
		calls++
		return nil
	})

	block := buildBlock(t, MessageDest, 3)
	fifo := NewFifoBuffer(64)
	fifo.Write(block[:4])
	transport.Receive(fifo)
	if calls != 0 || fifo.Available() != 4 {
		t.Fatalf("Partial block should wait: calls=%d available=%d", calls, fifo.Available())
	}

	fifo.Write(block[4:])
	transport.Receive(fifo)
	if calls != 1 {
		t.Errorf("Expected 1 dispatch after completing block, got %d", calls)
	}
}

func TestTransportResyncAfterCorruption(t *testing.T) {
	output := NewScratchOutput()
	calls := 0
	transport := NewTransport(output, func(cmdID uint16, data *[]byte) error {
		calls++
		return nil
	})

	bad := buildBlock(t, MessageDest, 3)
	bad[2] ^= 0xFF // break the CRC
	good := buildBlock(t, MessageDest, 4)

	transport.Receive(NewSliceInputBuffer(append(bad, good...)))

	if calls != 1 {
		t.Errorf("Expected the good block to be dispatched once, got %d", calls)
	}
	if !transport.Synchronized() {
		t.Error("Transport should be synchronized again")
	}
}

func TestTransportHandlerError(t *testing.T) {
	output := NewScratchOutput()
	var failed uint16
	transport := NewTransport(output, func(cmdID uint16, data *[]byte) error {
		return errors.New("boom")
	})
	transport.SetErrorCallback(func(cmdID uint16, err error) { failed = cmdID })

	transport.Receive(NewSliceInputBuffer(buildBlock(t, MessageDest, 9)))

	if failed != 9 {
		t.Errorf("Expected error callback for command 9, got %d", failed)
	}
	if transport.NextSequence() != MessageDest|1 {
		t.Errorf("Sequence should still advance, got 0x%02x", transport.NextSequence())
	}
}

// runMCU serves a Transport on conn until it is closed
func runMCU(conn net.Conn, handler func(mcu *Transport, cmdID uint16, data *[]byte) error) {
	output := NewScratchOutput()
	var mcu *Transport
	mcu = NewTransport(output, func(cmdID uint16, data *[]byte) error {
		return handler(mcu, cmdID, data)
	})
	input := NewFifoBuffer(256)
	buf := make([]byte, 64)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		input.Write(buf[:n])
		mcu.Receive(input)
		if output.CurPosition() > 0 {
			if _, err := conn.Write(output.Result()); err != nil {
				return
			}
			output.Reset()
		}
	}
}

func TestHostTransportRoundTrip(t *testing.T) {
	hostEnd, mcuEnd := net.Pipe()
	go runMCU(mcuEnd, func(mcu *Transport, cmdID uint16, data *[]byte) error {
		v, err := DecodeVLQUint(data)
		if err != nil {
			return err
		}
		mcu.SendCommand(cmdID+1, func(output OutputBuffer) {
			EncodeVLQUint(output, v*2)
		})
		return nil
	})

	host := NewHostTransport(hostEnd)
	defer host.Close()

	for i := uint32(0); i < 20; i++ {
		err := host.SendCommand(5, func(output OutputBuffer) {
			EncodeVLQUint(output, i)
		})
		if err != nil {
			t.Fatalf("SendCommand %d failed: %v", i, err)
		}

		resp, err := host.ReceiveResponse(time.Second)
		if err != nil {
			t.Fatalf("ReceiveResponse %d failed: %v", i, err)
		}
		payload := resp.Payload
		id, _ := DecodeVLQUint(&payload)
		v, _ := DecodeVLQUint(&payload)
		if id != 6 || v != i*2 {
			t.Errorf("Round %d: expected response 6 with %d, got %d with %d", i, i*2, id, v)
		}
	}
}

func TestHostTransportAckTimeout(t *testing.T) {
	hostEnd, mcuEnd := net.Pipe()
	go func() {
		// Swallow everything, never answer
		buf := make([]byte, 64)
		for {
			if _, err := mcuEnd.Read(buf); err != nil {
				return
			}
		}
	}()

	host := NewHostTransport(hostEnd)
	defer host.Close()

	err := host.SendCommandWithTimeout(1, nil, 50*time.Millisecond)
	if err == nil {
		t.Error("Expected ACK timeout")
	}
}

func TestTransportSendCommandReusesPayload(t *testing.T) {
	output := NewScratchOutput()
	transport := NewTransport(output, nil)

	transport.SendCommand(4, func(output OutputBuffer) {
		EncodeVLQUint(output, 1600)
		EncodeVLQUint(output, 1)
	})
	first := len(output.Result())
	transport.SendCommand(6, nil)

	input := NewSliceInputBuffer(append([]byte(nil), output.Result()...))
	var payloads [][]byte
	for input.Available() > 0 {
		msg, n, result := scanBlock(input.Data())
		if result != scanFound {
			t.Fatalf("Expected a valid block, got result %d", result)
		}
		payloads = append(payloads, append([]byte(nil), msg.Payload...))
		input.Pop(n)
	}

	if len(payloads) != 2 {
		t.Fatalf("Expected 2 blocks, got %d", len(payloads))
	}
	if first != MessageLengthMin+4 {
		t.Errorf("Expected first block of %d bytes, got %d", MessageLengthMin+4, first)
	}
	// The second message must not carry the first one's arguments
	if !bytes.Equal(payloads[1], []byte{6}) {
		t.Errorf("Expected second payload [6], got %v", payloads[1])
	}
	data := payloads[0]
	id, _ := DecodeVLQUint(&data)
	pulse, _ := DecodeVLQUint(&data)
	if id != 4 || pulse != 1600 {
		t.Errorf("Expected command 4 with 1600, got %d with %d", id, pulse)
	}
}
