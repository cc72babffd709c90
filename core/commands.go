package core

import (
	"xlr8rc/protocol"
)

// ResponseSender frames and sends a message to the host.
// *protocol.Transport satisfies it.
type ResponseSender interface {
	SendCommand(cmdID uint16, args func(output protocol.OutputBuffer))
}

// Global transport for sending responses (set by main)
var globalTransport ResponseSender

// SetGlobalTransport sets the global transport for sending responses
func SetGlobalTransport(transport ResponseSender) {
	globalTransport = transport
}

// InitCoreCommands registers the bootstrap commands.
// IMPORTANT: must run before any other registration so that
//
//	identify_response = ID 0
//	identify = ID 1
//
// which is what a host assumes before it has the dictionary.
func InitCoreCommands() {
	RegisterResponse("identify_response", "offset=%u data=%*s")       // ID 0
	RegisterCommand("identify", "offset=%u count=%c", handleIdentify) // ID 1

	RegisterConstant("MCU", "xlr8")
}

// handleIdentify returns chunks of the data dictionary
func handleIdentify(data *[]byte) error {
	offset, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	count, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	chunk := GetGlobalDictionary().GetChunk(offset, uint8(count))

	SendResponse("identify_response", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, offset)
		protocol.EncodeVLQBytes(output, chunk)
	})

	return nil
}

// SendResponse sends a response message using the global transport
func SendResponse(responseName string, args func(output protocol.OutputBuffer)) {
	if globalTransport == nil {
		return
	}

	cmd, ok := globalRegistry.GetCommandByName(responseName)
	if !ok {
		// All responses are registered at init; a miss is a firmware bug
		panic("Response not registered: " + responseName)
	}

	globalTransport.SendCommand(cmd.ID, args)
}
