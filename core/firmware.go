package core

import (
	"io"

	"xlr8rc/protocol"
)

// Firmware ties a byte stream to the command registry: bytes fed in are
// parsed into blocks, dispatched, and the replies written to out.
// Targets call Feed from their main loop with whatever the UART has buffered.
type Firmware struct {
	input     *protocol.FifoBuffer
	output    *protocol.ScratchOutput
	transport *protocol.Transport
	out       io.Writer

	// Counters for debug output
	BlocksFlushed uint32
	Errors        uint32
}

// NewFirmware creates the firmware loop state and installs its transport
// as the global response sender
func NewFirmware(out io.Writer) *Firmware {
	f := &Firmware{
		input:  protocol.NewFifoBuffer(128),
		output: protocol.NewScratchOutput(),
		out:    out,
	}
	f.transport = protocol.NewTransport(f.output, DispatchCommand)
	f.transport.SetFlushCallback(f.Flush)
	f.transport.SetErrorCallback(func(cmdID uint16, err error) {
		f.Errors++
		DebugPrintln("[FW] cmd " + itoa(int(cmdID)) + ": " + err.Error())
	})
	f.transport.SetResetCallback(func() {
		DebugPrintln("[FW] host reset")
	})
	SetGlobalTransport(f.transport)
	return f
}

// Transport returns the MCU side transport
func (f *Firmware) Transport() *protocol.Transport {
	return f.transport
}

// Feed processes received bytes
func (f *Firmware) Feed(data []byte) {
	for len(data) > 0 {
		n := f.input.Write(data)
		data = data[n:]
		f.transport.Receive(f.input)
		if f.input.Free() == 0 {
			// Nothing parseable fills the buffer; drop it and resync
			f.input.Reset()
		}
	}
	f.Flush()
}

// Flush writes pending output
func (f *Firmware) Flush() {
	if f.output.CurPosition() == 0 {
		return
	}
	if _, err := f.out.Write(f.output.Result()); err != nil {
		f.Errors++
	}
	f.BlocksFlushed++
	f.output.Reset()
}
