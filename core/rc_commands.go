// RC receiver commands
// Binds receiver channels to host object IDs, the same way digital outputs
// and PWM pins are addressed by OID.
package core

import (
	"errors"

	"xlr8rc/protocol"
)

// rc_in_error codes
const (
	RCErrExhausted = 1 // No free slot for config_rc_in
	RCErrUnknown   = 2 // OID was never configured
	RCErrDuplicate = 3 // OID already configured
	RCErrPin       = 4 // Pin configuration failed
)

var (
	ErrUnknownRCOid   = errors.New("rc: oid not configured")
	ErrDuplicateRCOid = errors.New("rc: oid already configured")
	ErrRCOidRange     = errors.New("rc: oid out of range")
)

// rcCommands holds the OID to channel bindings for one registry
type rcCommands struct {
	registry *RCRegistry
	channels map[uint8]*RCChannel
}

// InitRCCommands registers the receiver commands against registry
func InitRCCommands(registry *RCRegistry) {
	rc := &rcCommands{
		registry: registry,
		channels: make(map[uint8]*RCChannel),
	}

	RegisterCommand("config_rc_in", "oid=%c", rc.handleConfig)
	RegisterCommand("rc_in_enable", "oid=%c", rc.handleEnable)
	RegisterCommand("rc_in_disable", "oid=%c", rc.handleDisable)
	RegisterCommand("query_rc_in", "oid=%c", rc.handleQuery)
	RegisterCommand("get_rc_status", "", rc.handleStatus)

	RegisterResponse("rc_in_state", "oid=%c pulse=%hu enabled=%c")
	RegisterResponse("rc_in_error", "oid=%c code=%c")
	RegisterResponse("rc_status", "allocated=%c capacity=%c")

	RegisterConstant("RC_MAX_CHANNELS", MaxRCChannels)
	RegisterConstant("RC_PIN", RCPin)
}

// handleConfig allocates a slot for an OID
// Format: config_rc_in oid=%c
func (rc *rcCommands) handleConfig(data *[]byte) error {
	oid, err := decodeOID(data)
	if err != nil {
		return err
	}

	if _, exists := rc.channels[oid]; exists {
		sendRCError(oid, RCErrDuplicate)
		return ErrDuplicateRCOid
	}

	ch, err := rc.registry.Allocate()
	if err != nil {
		if err == ErrSlotsExhausted {
			sendRCError(oid, RCErrExhausted)
		} else {
			sendRCError(oid, RCErrPin)
		}
		return err
	}

	rc.channels[oid] = ch
	DebugPrintln("[RC] oid " + itoa(int(oid)) + " -> slot " + itoa(int(ch.Index())))
	return nil
}

// handleEnable arms the channel bound to an OID
// Format: rc_in_enable oid=%c
func (rc *rcCommands) handleEnable(data *[]byte) error {
	ch, err := rc.lookup(data)
	if err != nil {
		return err
	}
	return ch.Enable()
}

// handleDisable disarms the channel bound to an OID
// Format: rc_in_disable oid=%c
func (rc *rcCommands) handleDisable(data *[]byte) error {
	ch, err := rc.lookup(data)
	if err != nil {
		return err
	}
	return ch.Disable()
}

// handleQuery reads a fresh pulse width and reports it
// Format: query_rc_in oid=%c
func (rc *rcCommands) handleQuery(data *[]byte) error {
	oid, err := decodeOID(data)
	if err != nil {
		return err
	}
	ch, ok := rc.channels[oid]
	if !ok {
		sendRCError(oid, RCErrUnknown)
		return ErrUnknownRCOid
	}

	pulse, err := ch.Pulse()
	if err != nil {
		return err
	}

	SendResponse("rc_in_state", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(oid))
		protocol.EncodeVLQUint(output, uint32(pulse))
		protocol.EncodeVLQUint(output, boolToUint(ch.IsEnabled()))
	})
	return nil
}

// handleStatus reports slot usage
// Format: get_rc_status
func (rc *rcCommands) handleStatus(data *[]byte) error {
	SendResponse("rc_status", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(rc.registry.Allocated()))
		protocol.EncodeVLQUint(output, uint32(rc.registry.Capacity()))
	})
	return nil
}

func (rc *rcCommands) lookup(data *[]byte) (*RCChannel, error) {
	oid, err := decodeOID(data)
	if err != nil {
		return nil, err
	}
	ch, ok := rc.channels[oid]
	if !ok {
		sendRCError(oid, RCErrUnknown)
		return nil, ErrUnknownRCOid
	}
	return ch, nil
}

func decodeOID(data *[]byte) (uint8, error) {
	oid, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return 0, err
	}
	if oid > 0xFF {
		return 0, ErrRCOidRange
	}
	return uint8(oid), nil
}

func sendRCError(oid uint8, code uint8) {
	SendResponse("rc_in_error", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(oid))
		protocol.EncodeVLQUint(output, uint32(code))
	})
}

func boolToUint(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
