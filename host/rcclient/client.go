// Package rcclient talks to the RC receiver firmware over the command protocol.
package rcclient

import (
	"bytes"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"xlr8rc/core"
	"xlr8rc/host/serial"
	"xlr8rc/protocol"
)

// Bootstrap IDs, fixed before the dictionary is known
const (
	identifyResponseID = 0
	identifyID         = 1
	identifyChunkSize  = 40
)

// Dictionary is the parsed firmware dictionary
type Dictionary struct {
	Version   string
	Constants map[string]string
	Commands  map[string]uint16
	Responses map[string]uint16
	Formats   map[string]string
}

// ParseDictionary parses the line oriented dictionary text
func ParseDictionary(data []byte) (*Dictionary, error) {
	dict := &Dictionary{
		Constants: make(map[string]string),
		Commands:  make(map[string]uint16),
		Responses: make(map[string]uint16),
		Formats:   make(map[string]string),
	}

	for n, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "version":
			if len(fields) != 2 {
				return nil, fmt.Errorf("line %d: malformed version", n+1)
			}
			dict.Version = fields[1]
		case "constant":
			if len(fields) != 3 {
				return nil, fmt.Errorf("line %d: malformed constant", n+1)
			}
			dict.Constants[fields[1]] = fields[2]
		case "command", "response":
			if len(fields) < 3 {
				return nil, fmt.Errorf("line %d: malformed %s", n+1, fields[0])
			}
			id, err := strconv.ParseUint(fields[1], 10, 16)
			if err != nil {
				return nil, fmt.Errorf("line %d: bad id: %w", n+1, err)
			}
			name := fields[2]
			if fields[0] == "command" {
				dict.Commands[name] = uint16(id)
			} else {
				dict.Responses[name] = uint16(id)
			}
			dict.Formats[name] = strings.Join(fields[3:], " ")
		default:
			return nil, fmt.Errorf("line %d: unknown record %q", n+1, fields[0])
		}
	}

	if dict.Version == "" {
		return nil, errors.New("dictionary has no version")
	}
	return dict, nil
}

// responseName maps a response ID back to its name
func (d *Dictionary) responseName(id uint16) string {
	for name, rid := range d.Responses {
		if rid == id {
			return name
		}
	}
	return ""
}

// ChannelState is a decoded rc_in_state response
type ChannelState struct {
	OID     uint8
	Pulse   uint16
	Enabled bool
}

// Status is a decoded rc_status response
type Status struct {
	Allocated int
	Capacity  int
}

// RemoteError is an rc_in_error reported by the firmware
type RemoteError struct {
	OID  uint8
	Code uint8
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("rc oid %d: %v", e.OID, e.Unwrap())
}

// Unwrap maps the error code to the matching core error
func (e *RemoteError) Unwrap() error {
	switch e.Code {
	case core.RCErrExhausted:
		return core.ErrSlotsExhausted
	case core.RCErrUnknown:
		return core.ErrUnknownRCOid
	case core.RCErrDuplicate:
		return core.ErrDuplicateRCOid
	default:
		return fmt.Errorf("error code %d", e.Code)
	}
}

// Client is a connection to the RC firmware
type Client struct {
	transport *protocol.HostTransport
	dict      *Dictionary
	timeout   time.Duration
}

// NewClient wraps an open port. Call Identify before anything else.
func NewClient(port io.ReadWriteCloser) *Client {
	return &Client{
		transport: protocol.NewHostTransport(port),
		timeout:   time.Second,
	}
}

// Dial opens a serial port and identifies the firmware
func Dial(cfg *serial.Config) (*Client, error) {
	port, err := serial.Open(cfg)
	if err != nil {
		return nil, err
	}
	if err := port.Flush(); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to flush %s: %w", cfg.Device, err)
	}

	client := NewClient(port)
	if err := client.Identify(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

// SetTimeout sets how long to wait for ACKs and responses
func (c *Client) SetTimeout(timeout time.Duration) {
	c.timeout = timeout
}

// Close closes the connection
func (c *Client) Close() error {
	return c.transport.Close()
}

// Dictionary returns the parsed dictionary, nil before Identify
func (c *Client) Dictionary() *Dictionary {
	return c.dict
}

// Identify retrieves, inflates and parses the firmware dictionary
func (c *Client) Identify() error {
	var raw bytes.Buffer
	offset := uint32(0)

	for i := 0; i < 1000; i++ {
		chunk, err := c.identifyChunk(offset)
		if err != nil {
			return fmt.Errorf("failed to retrieve dictionary chunk at offset %d: %w", offset, err)
		}
		raw.Write(chunk)
		offset += uint32(len(chunk))
		if len(chunk) < identifyChunkSize {
			break
		}
	}

	zr, err := zlib.NewReader(&raw)
	if err != nil {
		return fmt.Errorf("failed to decompress dictionary: %w", err)
	}
	text, err := io.ReadAll(zr)
	zr.Close()
	if err != nil {
		return fmt.Errorf("failed to decompress dictionary: %w", err)
	}

	dict, err := ParseDictionary(text)
	if err != nil {
		return fmt.Errorf("failed to parse dictionary: %w", err)
	}
	c.dict = dict
	return nil
}

func (c *Client) identifyChunk(offset uint32) ([]byte, error) {
	c.transport.DrainResponses()
	err := c.transport.SendCommandWithTimeout(identifyID, func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, offset)
		protocol.EncodeVLQUint(output, identifyChunkSize)
	}, c.timeout)
	if err != nil {
		return nil, err
	}

	resp, err := c.transport.ReceiveResponse(c.timeout)
	if err != nil {
		return nil, err
	}

	payload := resp.Payload
	cmdID, err := protocol.DecodeVLQUint(&payload)
	if err != nil {
		return nil, err
	}
	if cmdID != identifyResponseID {
		return nil, fmt.Errorf("unexpected response %d to identify", cmdID)
	}
	respOffset, err := protocol.DecodeVLQUint(&payload)
	if err != nil {
		return nil, err
	}
	if respOffset != offset {
		return nil, fmt.Errorf("offset mismatch: expected %d, got %d", offset, respOffset)
	}
	return protocol.DecodeVLQBytes(&payload)
}

// call sends a named command with integer arguments and returns the
// responses it produced, by name
func (c *Client) call(name string, args ...uint32) (map[string][]uint32, error) {
	if c.dict == nil {
		return nil, errors.New("dictionary not loaded")
	}
	id, ok := c.dict.Commands[name]
	if !ok {
		return nil, fmt.Errorf("firmware has no command %s", name)
	}

	c.transport.DrainResponses()
	err := c.transport.SendCommandWithTimeout(id, func(output protocol.OutputBuffer) {
		for _, a := range args {
			protocol.EncodeVLQUint(output, a)
		}
	}, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	responses := make(map[string][]uint32)
	for {
		resp, ok := c.transport.TryResponse()
		if !ok {
			break
		}
		payload := resp.Payload
		respID, err := protocol.DecodeVLQUint(&payload)
		if err != nil {
			return nil, fmt.Errorf("%s: bad response: %w", name, err)
		}
		var values []uint32
		for len(payload) > 0 {
			v, err := protocol.DecodeVLQUint(&payload)
			if err != nil {
				return nil, fmt.Errorf("%s: bad response: %w", name, err)
			}
			values = append(values, v)
		}
		responses[c.dict.responseName(uint16(respID))] = values
	}

	if values, ok := responses["rc_in_error"]; ok && len(values) == 2 {
		return nil, &RemoteError{OID: uint8(values[0]), Code: uint8(values[1])}
	}
	return responses, nil
}

// ConfigChannel allocates a receiver slot for oid
func (c *Client) ConfigChannel(oid uint8) error {
	_, err := c.call("config_rc_in", uint32(oid))
	return err
}

// Enable arms the channel bound to oid
func (c *Client) Enable(oid uint8) error {
	_, err := c.call("rc_in_enable", uint32(oid))
	return err
}

// Disable disarms the channel bound to oid
func (c *Client) Disable(oid uint8) error {
	_, err := c.call("rc_in_disable", uint32(oid))
	return err
}

// Query reads a fresh pulse width from the channel bound to oid
func (c *Client) Query(oid uint8) (ChannelState, error) {
	responses, err := c.call("query_rc_in", uint32(oid))
	if err != nil {
		return ChannelState{}, err
	}
	values, ok := responses["rc_in_state"]
	if !ok || len(values) != 3 {
		return ChannelState{}, fmt.Errorf("query_rc_in: no rc_in_state for oid %d", oid)
	}
	return ChannelState{
		OID:     uint8(values[0]),
		Pulse:   uint16(values[1]),
		Enabled: values[2] != 0,
	}, nil
}

// Status reports slot usage
func (c *Client) Status() (Status, error) {
	responses, err := c.call("get_rc_status")
	if err != nil {
		return Status{}, err
	}
	values, ok := responses["rc_status"]
	if !ok || len(values) != 2 {
		return Status{}, errors.New("get_rc_status: no rc_status")
	}
	return Status{Allocated: int(values[0]), Capacity: int(values[1])}, nil
}
