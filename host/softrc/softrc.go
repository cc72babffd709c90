// Package softrc emulates the XLR8 RC peripheral on a Linux GPIO chip.
//
// Each receiver slot is mapped to its own GPIO line. Arming a slot requests
// the line with edge detection and measures high time between a rising and
// the following falling edge. The register file behaves like the hardware:
// RCCR selects the slot whose width RCPWH/RCPWL read back.
package softrc

import (
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/warthog618/go-gpiocdev"

	"xlr8rc/core"
)

// maxWidth is the largest width the 16-bit read-back can hold
const maxWidth = 0xFFFF

// lineRequester requests an edge-detecting line and delivers its events
// to handler until the returned closer is closed
type lineRequester func(offset int, handler func(gpiocdev.LineEvent)) (io.Closer, error)

// pulseTracker turns edge events into high-time widths in microseconds
type pulseTracker struct {
	rise  time.Duration
	high  bool
	width uint16
}

// handle folds one edge event into the tracker
func (p *pulseTracker) handle(evt gpiocdev.LineEvent) {
	switch evt.Type {
	case gpiocdev.LineEventRisingEdge:
		p.rise = evt.Timestamp
		p.high = true
	case gpiocdev.LineEventFallingEdge:
		if !p.high {
			// Armed mid-pulse, the rising edge was missed
			return
		}
		p.high = false
		us := (evt.Timestamp - p.rise).Microseconds()
		switch {
		case us < 0:
			p.width = 0
		case us > maxWidth:
			p.width = maxWidth
		default:
			p.width = uint16(us)
		}
	}
}

// Peripheral implements core.RCRegisterFile and core.GPIODriver
type Peripheral struct {
	mu       sync.Mutex
	chip     string
	lines    []int
	request  lineRequester
	trackers [core.MaxRCChannels]pulseTracker
	handles  [core.MaxRCChannels]io.Closer
	selected uint8
	control  uint8
	err      error
}

// New creates a peripheral on chip, slot i mapped to lines[i]
func New(chip string, lines []int) (*Peripheral, error) {
	if len(lines) > core.MaxRCChannels {
		return nil, fmt.Errorf("softrc: %d lines exceed %d slots", len(lines), core.MaxRCChannels)
	}
	p := &Peripheral{
		chip:  chip,
		lines: append([]int(nil), lines...),
	}
	p.request = p.requestLine
	return p, nil
}

func (p *Peripheral) requestLine(offset int, handler func(gpiocdev.LineEvent)) (io.Closer, error) {
	return gpiocdev.RequestLine(p.chip, offset,
		gpiocdev.WithBothEdges,
		gpiocdev.WithEventHandler(handler))
}

// ConfigureInput checks that the chip exposes every mapped line.
// The soft peripheral has no shared receive pin, so pin is only logged.
func (p *Peripheral) ConfigureInput(pin core.GPIOPin) error {
	chip, err := gpiocdev.NewChip(p.chip)
	if err != nil {
		return fmt.Errorf("softrc: open %s: %w", p.chip, err)
	}
	defer chip.Close()

	for _, offset := range p.lines {
		if offset >= chip.Lines() {
			return fmt.Errorf("softrc: %s has no line %d", p.chip, offset)
		}
		info, err := chip.LineInfo(offset)
		if err != nil {
			return fmt.Errorf("softrc: line %d: %w", offset, err)
		}
		if info.Used && info.Consumer != "" {
			log.Printf("softrc: line %d (pin %d) held by %s", offset, pin, info.Consumer)
		}
	}
	return nil
}

// ReadRegister implements core.RCRegisterFile
func (p *Peripheral) ReadRegister(reg core.RCRegister) uint8 {
	p.mu.Lock()
	defer p.mu.Unlock()

	width := p.trackers[p.selected].width
	switch reg {
	case core.RCCR:
		return p.control
	case core.RCPWH:
		return uint8(width >> 8)
	case core.RCPWL:
		return uint8(width)
	}
	return 0
}

// WriteRegister implements core.RCRegisterFile. Only RCCR is writable.
func (p *Peripheral) WriteRegister(reg core.RCRegister, value uint8) {
	if reg != core.RCCR {
		return
	}

	p.mu.Lock()
	p.control = value
	slot := value & core.RCMask
	var release io.Closer
	switch {
	case value&(1<<core.RCEN) != 0:
		p.selected = slot
		p.arm(slot)
	case value&(1<<core.RCDIS) != 0:
		release = p.handles[slot]
		p.handles[slot] = nil
		p.trackers[slot].high = false
	}
	p.mu.Unlock()

	// Closing waits for the event goroutine, which may be waiting on mu
	if release != nil {
		if err := release.Close(); err != nil {
			p.mu.Lock()
			p.err = err
			p.mu.Unlock()
		}
	}
}

// arm requests the slot's line if it is not held yet. Called with mu held.
func (p *Peripheral) arm(slot uint8) {
	if p.handles[slot] != nil {
		return
	}
	if int(slot) >= len(p.lines) {
		p.err = fmt.Errorf("softrc: slot %d has no line", slot)
		return
	}

	tracker := &p.trackers[slot]
	handle, err := p.request(p.lines[slot], func(evt gpiocdev.LineEvent) {
		p.mu.Lock()
		tracker.handle(evt)
		p.mu.Unlock()
	})
	if err != nil {
		p.err = fmt.Errorf("softrc: request line %d: %w", p.lines[slot], err)
		return
	}
	p.handles[slot] = handle
}

// Err returns and clears the last line request error. Register writes
// cannot fail on real hardware, so errors are latched here instead.
func (p *Peripheral) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	err := p.err
	p.err = nil
	return err
}

// Close releases every requested line
func (p *Peripheral) Close() error {
	p.mu.Lock()
	var held []io.Closer
	for slot := range p.handles {
		if p.handles[slot] != nil {
			held = append(held, p.handles[slot])
			p.handles[slot] = nil
		}
	}
	p.mu.Unlock()

	var first error
	for _, h := range held {
		if err := h.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

var (
	_ core.RCRegisterFile = (*Peripheral)(nil)
	_ core.GPIODriver     = (*Peripheral)(nil)
)
