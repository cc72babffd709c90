package core

import (
	"bytes"
	"testing"

	"xlr8rc/protocol"
)

func TestFirmwareFeed(t *testing.T) {
	ResetCommands()
	InitCoreCommands()
	regs := NewSimRCRegisters()
	InitRCCommands(NewRCRegistry(regs, &MockGPIODriver{}, RCPin))

	var out bytes.Buffer
	fw := NewFirmware(&out)
	defer SetGlobalTransport(nil)

	cmd, _ := GetGlobalRegistry().GetCommandByName("config_rc_in")
	payload := protocol.NewScratchOutput()
	protocol.EncodeVLQUint(payload, uint32(cmd.ID))
	protocol.EncodeVLQUint(payload, 3) // oid
	block := protocol.NewScratchOutput()
	protocol.EncodeBlock(block, protocol.MessageDest, payload.Result())

	// Byte at a time, as a slow UART would deliver it
	for _, b := range block.Result() {
		fw.Feed([]byte{b})
	}

	ack := []byte{5, protocol.MessageDest | 1, 0x8F, 0x08, protocol.MessageValueSync}
	if !bytes.Equal(out.Bytes(), ack) {
		t.Errorf("Expected a single ACK %v, got %v", ack, out.Bytes())
	}
	if fw.Transport().NextSequence() != protocol.MessageDest|1 {
		t.Errorf("Expected next sequence 0x11, got 0x%02x", fw.Transport().NextSequence())
	}
}

func TestFirmwareDropsGarbage(t *testing.T) {
	ResetCommands()
	InitCoreCommands()

	var out bytes.Buffer
	fw := NewFirmware(&out)
	defer SetGlobalTransport(nil)

	garbage := bytes.Repeat([]byte{0x01}, 300)
	fw.Feed(garbage)

	if fw.input.Available() >= 128 {
		t.Errorf("Garbage should not wedge the input buffer, %d bytes held", fw.input.Available())
	}
}
