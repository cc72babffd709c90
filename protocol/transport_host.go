package protocol

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

// ResponseHandler is a function type for handling received responses from MCU
type ResponseHandler func(cmdID uint16, data *[]byte) error

var ErrTransportClosed = errors.New("transport closed")

// HostTransport is the host side of the protocol: it frames commands,
// waits for the MCU's ACK and queues response blocks for the caller.
// A background goroutine owns the read side of the port.
type HostTransport struct {
	port io.ReadWriteCloser

	writeMu sync.Mutex // Serialises SendCommand callers
	seq     uint8      // Sequence of the next block we send

	input        *FifoBuffer
	synchronized bool

	ackChan      chan Message
	responseChan chan Message

	handlerMu       sync.Mutex
	responseHandler ResponseHandler

	closeOnce sync.Once
	stopChan  chan struct{}
	doneChan  chan struct{}
}

// NewHostTransport creates a host transport and starts its reader
func NewHostTransport(port io.ReadWriteCloser) *HostTransport {
	t := &HostTransport{
		port:         port,
		seq:          MessageDest,
		input:        NewFifoBuffer(512),
		synchronized: true,
		ackChan:      make(chan Message, 1),
		responseChan: make(chan Message, 16),
		stopChan:     make(chan struct{}),
		doneChan:     make(chan struct{}),
	}
	go t.readLoop()
	return t
}

// SendCommand sends a command to the MCU and waits for ACK
func (t *HostTransport) SendCommand(cmdID uint16, args func(output OutputBuffer)) error {
	return t.SendCommandWithTimeout(cmdID, args, 2*time.Second)
}

// SendCommandWithTimeout sends a command with a custom ACK timeout
func (t *HostTransport) SendCommandWithTimeout(cmdID uint16, args func(output OutputBuffer), timeout time.Duration) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	payload := NewScratchOutput()
	EncodeVLQUint(payload, uint32(cmdID))
	if args != nil {
		args(payload)
	}

	block := NewScratchOutput()
	if err := EncodeBlock(block, t.seq, payload.Result()); err != nil {
		return fmt.Errorf("failed to build command %d: %w", cmdID, err)
	}

	// Drop ACKs left over from a resync so we wait for ours
	select {
	case <-t.ackChan:
	default:
	}

	if _, err := t.port.Write(block.Result()); err != nil {
		return fmt.Errorf("failed to write command %d: %w", cmdID, err)
	}

	return t.waitForAck(timeout)
}

// waitForAck waits for the ACK of the block carrying t.seq
func (t *HostTransport) waitForAck(timeout time.Duration) error {
	expected := NextSequence(t.seq)
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ack := <-t.ackChan:
		if ack.Sequence != expected {
			// NAK: the MCU expects a different sequence; adopt it
			t.seq = ack.Sequence
			return fmt.Errorf("sequence mismatch: expected 0x%02x, got 0x%02x", expected, ack.Sequence)
		}
		t.seq = expected
		return nil

	case <-timer.C:
		return fmt.Errorf("ACK timeout after %v", timeout)

	case <-t.stopChan:
		return ErrTransportClosed
	}
}

// ReceiveResponse returns the next response block, waiting up to timeout
func (t *HostTransport) ReceiveResponse(timeout time.Duration) (*Message, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-t.responseChan:
		return &resp, nil
	case <-timer.C:
		return nil, fmt.Errorf("response timeout after %v", timeout)
	case <-t.stopChan:
		return nil, ErrTransportClosed
	}
}

// TryResponse returns a queued response without waiting.
// The MCU sends a command's responses ahead of its ACK, so once
// SendCommand returns they are already queued.
func (t *HostTransport) TryResponse() (*Message, bool) {
	select {
	case resp := <-t.responseChan:
		return &resp, true
	default:
		return nil, false
	}
}

// DrainResponses discards all queued responses
func (t *HostTransport) DrainResponses() {
	for {
		if _, ok := t.TryResponse(); !ok {
			return
		}
	}
}

// SetResponseHandler sets a callback run for every response block,
// in addition to queueing it for ReceiveResponse
func (t *HostTransport) SetResponseHandler(handler ResponseHandler) {
	t.handlerMu.Lock()
	defer t.handlerMu.Unlock()
	t.responseHandler = handler
}

// readLoop moves bytes from the port into the parser until closed
func (t *HostTransport) readLoop() {
	defer close(t.doneChan)

	buf := make([]byte, 256)
	for {
		n, err := t.port.Read(buf)
		if n > 0 {
			t.input.Write(buf[:n])
			t.processInput()
		}
		if err != nil {
			select {
			case <-t.stopChan:
				return
			default:
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
	}
}

// processInput parses every complete block in the input buffer
func (t *HostTransport) processInput() {
	data := t.input.Data()

	for len(data) > 0 {
		if !t.synchronized {
			var found bool
			data, found = skipToSync(data)
			t.synchronized = found
			continue
		}

		if data[0] == MessageValueSync {
			data = data[1:]
			continue
		}

		msg, n, result := scanBlock(data)
		if result == scanNeedMore {
			break
		}
		if result == scanCorrupt {
			t.synchronized = false
			continue
		}
		data = data[n:]

		payload := make([]byte, len(msg.Payload))
		copy(payload, msg.Payload)
		t.dispatch(Message{Sequence: msg.Sequence, Payload: payload})
	}

	t.input.Pop(t.input.Available() - len(data))
}

// dispatch routes an ACK or a response
func (t *HostTransport) dispatch(msg Message) {
	if len(msg.Payload) == 0 {
		select {
		case t.ackChan <- msg:
		default:
		}
		return
	}

	t.handlerMu.Lock()
	handler := t.responseHandler
	t.handlerMu.Unlock()
	if handler != nil {
		payload := msg.Payload
		if cmdID, err := DecodeVLQUint(&payload); err == nil {
			_ = handler(uint16(cmdID), &payload)
		}
	}

	select {
	case t.responseChan <- msg:
	default:
		// Full: drop the oldest so the newest state wins
		select {
		case <-t.responseChan:
		default:
		}
		t.responseChan <- msg
	}
}

// Close stops the reader and closes the port
func (t *HostTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.stopChan)
		err = t.port.Close()
		<-t.doneChan
	})
	return err
}
