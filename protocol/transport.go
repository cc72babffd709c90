package protocol

// CommandHandler is a function type for handling decoded commands
type CommandHandler func(cmdID uint16, data *[]byte) error

// Transport is the MCU side of the protocol: it parses host blocks,
// dispatches the commands inside them, acknowledges every block and
// frames responses. It runs in the firmware main loop and is not safe for
// concurrent use.
type Transport struct {
	synchronized bool
	nextSequence uint8 // Expected from host, also stamped on ACKs and responses

	output        OutputBuffer
	payload       payloadScratch // Reused by SendCommand
	handler       CommandHandler
	resetCallback func() // Called when host reset is detected
	flushCallback func() // Called after each ACK
	errorCallback func(cmdID uint16, err error)
}

// NewTransport creates a new Transport instance
func NewTransport(output OutputBuffer, handler CommandHandler) *Transport {
	return &Transport{
		synchronized: true,
		nextSequence: MessageDest,
		output:       output,
		handler:      handler,
	}
}

// Receive consumes as many complete blocks from input as possible
func (t *Transport) Receive(input InputBuffer) {
	data := input.Data()

	for len(data) > 0 {
		if !t.synchronized {
			var found bool
			data, found = skipToSync(data)
			if found {
				t.synchronized = true
				t.sendAck()
			}
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
		if result == scanCorrupt || msg.Sequence&^MessageSeqMask != MessageDest {
			t.synchronized = false
			continue
		}
		data = data[n:]

		// Sequence back at 0x10 mid-session means the host restarted
		if msg.Sequence == MessageDest && t.nextSequence != MessageDest {
			t.nextSequence = MessageDest
			if t.resetCallback != nil {
				t.resetCallback()
			}
		}

		if msg.Sequence == t.nextSequence {
			t.nextSequence = NextSequence(msg.Sequence)
			t.dispatch(msg.Payload)
		}
		// An ACK carrying the expected sequence doubles as a NAK
		t.sendAck()
	}

	consumed := input.Available() - len(data)
	if consumed > 0 {
		input.Pop(consumed)
	}
}

// dispatch runs every command in a block payload
func (t *Transport) dispatch(payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			// A panicking handler must not take the firmware down
			t.synchronized = false
		}
	}()

	for len(payload) > 0 {
		cmdID, err := DecodeVLQUint(&payload)
		if err != nil {
			t.synchronized = false
			return
		}
		if t.handler == nil {
			continue
		}
		if err := t.handler(uint16(cmdID), &payload); err != nil {
			// Arguments of the failed command are unparsed; drop the rest
			if t.errorCallback != nil {
				t.errorCallback(uint16(cmdID), err)
			}
			return
		}
	}
}

// sendAck emits an empty block carrying the next expected sequence
func (t *Transport) sendAck() {
	_ = EncodeBlock(t.output, t.nextSequence, nil)
	if t.flushCallback != nil {
		t.flushCallback()
	}
}

// SendCommand frames a message with the given ID and arguments.
// The payload is built in a buffer owned by the transport, so sending
// does not allocate.
func (t *Transport) SendCommand(cmdID uint16, args func(output OutputBuffer)) {
	t.payload.pos = 0
	EncodeVLQUint(&t.payload, uint32(cmdID))
	if args != nil {
		args(&t.payload)
	}
	_ = EncodeBlock(t.output, t.nextSequence, t.payload.buf[:t.payload.pos])
}

// Reset returns the transport to its power-on state
func (t *Transport) Reset() {
	t.synchronized = true
	t.nextSequence = MessageDest
	if t.resetCallback != nil {
		t.resetCallback()
	}
}

// SetResetCallback sets a callback to be called when host reset is detected
func (t *Transport) SetResetCallback(callback func()) {
	t.resetCallback = callback
}

// SetFlushCallback sets a callback run after each ACK is queued
func (t *Transport) SetFlushCallback(callback func()) {
	t.flushCallback = callback
}

// SetErrorCallback sets a callback for command handler errors
func (t *Transport) SetErrorCallback(callback func(cmdID uint16, err error)) {
	t.errorCallback = callback
}

// Synchronized reports whether the transport is in block sync
func (t *Transport) Synchronized() bool {
	return t.synchronized
}

// NextSequence returns the sequence expected from the host
func (t *Transport) NextSequence() uint8 {
	return t.nextSequence
}
