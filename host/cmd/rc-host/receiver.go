package main

import (
	"fmt"

	"xlr8rc/core"
	"xlr8rc/host/config"
	"xlr8rc/host/rcclient"
	"xlr8rc/host/softrc"
)

// receiver is what the command loop drives, either firmware over serial
// or a registry running in this process
type receiver interface {
	Alloc() (uint8, error)
	Enable(n uint8) error
	Disable(n uint8) error
	Read(n uint8) (rcclient.ChannelState, error)
	Status() (rcclient.Status, error)
	Close() error
}

// openReceiver connects the backend selected in cfg
func openReceiver(cfg *config.HostConfig) (receiver, error) {
	switch cfg.Backend {
	case config.BackendSerial:
		client, err := rcclient.Dial(cfg.SerialConfig())
		if err != nil {
			return nil, err
		}
		return &remoteReceiver{client: client}, nil

	case config.BackendSoft:
		periph, err := softrc.New(cfg.Chip, cfg.Lines)
		if err != nil {
			return nil, err
		}
		local := newLocalReceiver(periph, periph)
		local.closer = periph.Close
		local.latched = periph.Err
		return local, nil
	}
	return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}

// remoteReceiver drives the firmware. Channel numbers are the OIDs
// handed to config_rc_in, assigned in order.
type remoteReceiver struct {
	client  *rcclient.Client
	nextOID uint8
}

func (r *remoteReceiver) Alloc() (uint8, error) {
	oid := r.nextOID
	if err := r.client.ConfigChannel(oid); err != nil {
		return 0, err
	}
	r.nextOID++
	return oid, nil
}

func (r *remoteReceiver) Enable(n uint8) error { return r.client.Enable(n) }
func (r *remoteReceiver) Disable(n uint8) error { return r.client.Disable(n) }

func (r *remoteReceiver) Read(n uint8) (rcclient.ChannelState, error) {
	return r.client.Query(n)
}

func (r *remoteReceiver) Status() (rcclient.Status, error) {
	return r.client.Status()
}

func (r *remoteReceiver) Close() error {
	return r.client.Close()
}

// localReceiver drives a registry directly. Channel numbers are slot indexes.
type localReceiver struct {
	registry *core.RCRegistry
	closer   func() error
	latched  func() error
}

func newLocalReceiver(regs core.RCRegisterFile, gpio core.GPIODriver) *localReceiver {
	return &localReceiver{registry: core.NewRCRegistry(regs, gpio, core.RCPin)}
}

func (l *localReceiver) Alloc() (uint8, error) {
	ch, err := l.registry.Allocate()
	if err != nil {
		return 0, err
	}
	return ch.Index(), l.check()
}

func (l *localReceiver) channel(n uint8) (*core.RCChannel, error) {
	ch, ok := l.registry.Channel(n)
	if !ok {
		return nil, fmt.Errorf("channel %d: %w", n, core.ErrInvalidChannel)
	}
	return ch, nil
}

func (l *localReceiver) Enable(n uint8) error {
	ch, err := l.channel(n)
	if err != nil {
		return err
	}
	if err := ch.Enable(); err != nil {
		return err
	}
	return l.check()
}

func (l *localReceiver) Disable(n uint8) error {
	ch, err := l.channel(n)
	if err != nil {
		return err
	}
	if err := ch.Disable(); err != nil {
		return err
	}
	return l.check()
}

func (l *localReceiver) Read(n uint8) (rcclient.ChannelState, error) {
	ch, err := l.channel(n)
	if err != nil {
		return rcclient.ChannelState{}, err
	}
	pulse, err := ch.Pulse()
	if err != nil {
		return rcclient.ChannelState{}, err
	}
	if err := l.check(); err != nil {
		return rcclient.ChannelState{}, err
	}
	return rcclient.ChannelState{OID: n, Pulse: pulse, Enabled: ch.IsEnabled()}, nil
}

func (l *localReceiver) Status() (rcclient.Status, error) {
	return rcclient.Status{
		Allocated: l.registry.Allocated(),
		Capacity:  l.registry.Capacity(),
	}, nil
}

func (l *localReceiver) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer()
}

// check surfaces errors the register file latched
func (l *localReceiver) check() error {
	if l.latched == nil {
		return nil
	}
	return l.latched()
}
