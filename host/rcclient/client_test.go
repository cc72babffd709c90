package rcclient

import (
	"errors"
	"net"
	"testing"
	"time"

	"xlr8rc/core"
)

// startFirmware runs the RC firmware command layer on one end of a pipe
func startFirmware(t *testing.T) (*Client, *core.SimRCRegisters) {
	t.Helper()

	core.ResetCommands()
	core.InitCoreCommands()
	regs := core.NewSimRCRegisters()
	core.InitRCCommands(core.NewRCRegistry(regs, nil, core.RCPin))

	hostEnd, mcuEnd := net.Pipe()
	fw := core.NewFirmware(mcuEnd)
	go func() {
		buf := make([]byte, 64)
		for {
			n, err := mcuEnd.Read(buf)
			if err != nil {
				return
			}
			fw.Feed(buf[:n])
		}
	}()

	client := NewClient(hostEnd)
	client.SetTimeout(time.Second)
	t.Cleanup(func() {
		client.Close()
		mcuEnd.Close()
		core.SetGlobalTransport(nil)
	})

	if err := client.Identify(); err != nil {
		t.Fatalf("Identify failed: %v", err)
	}
	return client, regs
}

func TestClientIdentify(t *testing.T) {
	client, _ := startFirmware(t)
	dict := client.Dictionary()

	if dict.Version != core.Version {
		t.Errorf("Expected version %s, got %s", core.Version, dict.Version)
	}
	if dict.Constants["RC_MAX_CHANNELS"] != "32" {
		t.Errorf("Expected RC_MAX_CHANNELS=32, got %q", dict.Constants["RC_MAX_CHANNELS"])
	}
	if dict.Commands["identify"] != 1 || dict.Responses["identify_response"] != 0 {
		t.Errorf("Bootstrap IDs wrong: %v %v", dict.Commands, dict.Responses)
	}
	if dict.Formats["rc_in_state"] != "oid=%c pulse=%hu enabled=%c" {
		t.Errorf("Unexpected rc_in_state format %q", dict.Formats["rc_in_state"])
	}
}

func TestClientQuery(t *testing.T) {
	client, regs := startFirmware(t)
	regs.SetWidth(0, 1600)

	if err := client.ConfigChannel(7); err != nil {
		t.Fatalf("ConfigChannel failed: %v", err)
	}
	if err := client.Disable(7); err != nil {
		t.Fatalf("Disable failed: %v", err)
	}

	state, err := client.Query(7)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if state.OID != 7 || state.Pulse != 1600 || !state.Enabled {
		t.Errorf("Expected {7 1600 true}, got %+v", state)
	}

	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.Allocated != 1 || status.Capacity != core.MaxRCChannels {
		t.Errorf("Expected 1/%d, got %+v", core.MaxRCChannels, status)
	}
}

func TestClientRemoteErrors(t *testing.T) {
	client, _ := startFirmware(t)

	err := client.Enable(42)
	var remote *RemoteError
	if !errors.As(err, &remote) || remote.OID != 42 {
		t.Fatalf("Expected RemoteError for oid 42, got %v", err)
	}
	if !errors.Is(err, core.ErrUnknownRCOid) {
		t.Errorf("Expected ErrUnknownRCOid, got %v", err)
	}

	for oid := uint8(0); oid < core.MaxRCChannels; oid++ {
		if err := client.ConfigChannel(oid); err != nil {
			t.Fatalf("ConfigChannel %d failed: %v", oid, err)
		}
	}
	if err := client.ConfigChannel(100); !errors.Is(err, core.ErrSlotsExhausted) {
		t.Errorf("Expected ErrSlotsExhausted, got %v", err)
	}
	if err := client.ConfigChannel(3); !errors.Is(err, core.ErrDuplicateRCOid) {
		t.Errorf("Expected ErrDuplicateRCOid, got %v", err)
	}
}

func TestParseDictionaryErrors(t *testing.T) {
	testCases := []string{
		"",
		"version\n",
		"version v1\nconstant A\n",
		"version v1\ncommand x foo\n",
		"version v1\nbogus 1 2\n",
	}
	for _, tc := range testCases {
		if _, err := ParseDictionary([]byte(tc)); err == nil {
			t.Errorf("Expected error for %q", tc)
		}
	}
}
