package core

// DebugWriter is a function type for writing debug messages
type DebugWriter func(string)

// RCEvent captures one receiver operation for post-mortem analysis
type RCEvent struct {
	EventType uint8  // Event type code
	Slot      uint8  // Slot index (InvalidRC for inert channels)
	Value     uint16 // Context-dependent value
	Seq       uint32 // Running event number
}

// Event type codes
const (
	EvtRCAlloc     = 1 // Slot allocated
	EvtRCExhausted = 2 // Allocation refused, Value = slots in use
	EvtRCEnable    = 3 // Enable command written
	EvtRCDisable   = 4 // Disable command written
	EvtRCRead      = 5 // Pulse read, Value = width
	EvtRCInvalid   = 6 // Operation on an inert channel
)

const (
	EventRingSize = 32 // Keep last 32 events
)

var (
	// debugPrintln is the global debug print function (can be set by platform code)
	debugPrintln DebugWriter = func(s string) {} // No-op by default

	// debugEnabled controls whether debug output is active
	debugEnabled bool = false

	eventRing     [EventRingSize]RCEvent
	eventRingHead uint8
	eventSeq      uint32
)

// SetDebugWriter sets the platform-specific debug output function
// This allows platforms to redirect debug output to UART, USB, etc.
func SetDebugWriter(writer DebugWriter) {
	debugPrintln = writer
}

// SetDebugEnabled enables or disables debug output
func SetDebugEnabled(enabled bool) {
	debugEnabled = enabled
}

// IsDebugEnabled returns whether debug output is enabled
func IsDebugEnabled() bool {
	return debugEnabled
}

// DebugPrintln writes a debug message using the platform-specific writer
func DebugPrintln(msg string) {
	if debugEnabled && debugPrintln != nil {
		debugPrintln(msg)
	}
}

// RecordEvent stores an event in the ring buffer. Never blocks.
func RecordEvent(eventType, slot uint8, value uint16) {
	eventSeq++
	idx := eventRingHead
	eventRing[idx] = RCEvent{
		EventType: eventType,
		Slot:      slot,
		Value:     value,
		Seq:       eventSeq,
	}
	eventRingHead = (idx + 1) % EventRingSize
}

// Events returns the recorded events, oldest first
func Events() []RCEvent {
	events := make([]RCEvent, 0, EventRingSize)
	start := eventRingHead
	for i := uint8(0); i < EventRingSize; i++ {
		evt := eventRing[(start+i)%EventRingSize]
		if evt.EventType == 0 {
			continue
		}
		events = append(events, evt)
	}
	return events
}

func eventName(eventType uint8) string {
	switch eventType {
	case EvtRCAlloc:
		return "ALLOC"
	case EvtRCExhausted:
		return "EXHAUSTED!"
	case EvtRCEnable:
		return "ENABLE"
	case EvtRCDisable:
		return "DISABLE"
	case EvtRCRead:
		return "READ"
	case EvtRCInvalid:
		return "INVALID!"
	default:
		return "UNKNOWN"
	}
}

// DumpEventRing writes the event ring through the debug writer,
// regardless of the debug enable flag
func DumpEventRing() {
	if debugPrintln == nil {
		return
	}

	debugPrintln("[RC] === Event Ring Dump ===")
	for _, evt := range Events() {
		debugPrintln("[RC] #" + utoa(evt.Seq) + " " + eventName(evt.EventType) +
			" slot=" + itoa(int(evt.Slot)) +
			" value=" + itoa(int(evt.Value)))
	}
	debugPrintln("[RC] === End Dump ===")
}

// ClearEventRing clears the event buffer
func ClearEventRing() {
	for i := range eventRing {
		eventRing[i] = RCEvent{}
	}
	eventRingHead = 0
	eventSeq = 0
}
