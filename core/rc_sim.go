package core

// SimRCRegisters is an in-memory RC peripheral for host builds and tests.
// Like the hardware it keeps a single "selected channel" latch: an enable
// command routes that channel's width to RCPWH/RCPWL, a disable command
// leaves the latch alone.
type SimRCRegisters struct {
	widths   [MaxRCChannels]uint16 // Width each channel would report
	armed    [MaxRCChannels]bool
	selected uint8
	control  uint8

	// Writes is every value written to RCCR, oldest first
	Writes []uint8
	// Reads counts reads of RCPWH and RCPWL
	Reads int

	// OnControlWrite, when set, runs after each RCCR write has taken
	// effect. Tests use it to inject another execution path's accesses.
	OnControlWrite func(value uint8)
}

// NewSimRCRegisters creates a simulated peripheral with all widths zero
func NewSimRCRegisters() *SimRCRegisters {
	return &SimRCRegisters{}
}

// SetWidth sets the width the given hardware channel reports
func (s *SimRCRegisters) SetWidth(index uint8, width uint16) {
	s.widths[index&RCMask] = width
}

// Armed reports whether the hardware channel is currently enabled
func (s *SimRCRegisters) Armed(index uint8) bool {
	return s.armed[index&RCMask]
}

// Selected returns the channel routed to the pulse-width registers
func (s *SimRCRegisters) Selected() uint8 {
	return s.selected
}

// Control returns the last value written to RCCR
func (s *SimRCRegisters) Control() uint8 {
	return s.control
}

func (s *SimRCRegisters) ReadRegister(reg RCRegister) uint8 {
	switch reg {
	case RCPWH:
		s.Reads++
		return uint8(s.widths[s.selected] >> 8)
	case RCPWL:
		s.Reads++
		return uint8(s.widths[s.selected])
	default:
		// RCCR is write only
		return 0
	}
}

func (s *SimRCRegisters) WriteRegister(reg RCRegister, value uint8) {
	if reg != RCCR {
		return
	}
	s.control = value
	s.Writes = append(s.Writes, value)

	index := value & RCMask
	switch {
	case value&(1<<RCEN) != 0:
		s.armed[index] = true
		s.selected = index
	case value&(1<<RCDIS) != 0:
		s.armed[index] = false
	}

	if s.OnControlWrite != nil {
		s.OnControlWrite(value)
	}
}
