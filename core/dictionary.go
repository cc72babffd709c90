package core

import (
	"bytes"
	"io"
	"sort"
	"sync"

	"xlr8rc/tinycompress"
)

// Version is the firmware version reported in the dictionary
const Version = "xlr8rc-0.1.0"

// Constant represents a firmware constant exposed to the host
type Constant struct {
	Name  string
	Value interface{} // string or integer
}

// Dictionary is the data dictionary the host fetches with identify.
// identify serves it zlib wrapped; the text inside is one record per line:
//
//	version xlr8rc-0.1.0
//	constant RC_MAX_CHANNELS 32
//	command 1 identify offset=%u count=%c
//	response 0 identify_response offset=%u data=%*s
type Dictionary struct {
	mu         sync.RWMutex
	constants  map[string]*Constant
	commandReg *CommandRegistry
	version    string
	cached     []byte // zlib stream of the records
}

var globalDictionary = NewDictionary(globalRegistry)

// NewDictionary creates a new dictionary
func NewDictionary(cmdReg *CommandRegistry) *Dictionary {
	return &Dictionary{
		constants:  make(map[string]*Constant),
		commandReg: cmdReg,
		version:    Version,
	}
}

// GetGlobalDictionary returns the global dictionary
func GetGlobalDictionary() *Dictionary {
	return globalDictionary
}

// RegisterConstant registers a constant in the dictionary
func RegisterConstant(name string, value interface{}) {
	globalDictionary.AddConstant(name, value)
}

// AddConstant adds a constant to the dictionary
func (d *Dictionary) AddConstant(name string, value interface{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.constants[name] = &Constant{Name: name, Value: value}
	d.cached = nil
}

// BuildDictionary renders and caches the dictionary.
// Call after all commands are registered. Records stream straight into
// the zlib writer so only the wrapped copy is ever held.
func (d *Dictionary) BuildDictionary() {
	// Fetch commands before taking our own lock
	commands := d.commandReg.Commands()

	d.mu.Lock()
	defer d.mu.Unlock()

	// Size the stream first so the buffer is allocated once
	var count countWriter
	d.writeRecords(&count, commands)

	var buf bytes.Buffer
	buf.Grow(tinycompress.StreamSize(count.n))
	w := tinycompress.NewWriter(&buf)
	if err := d.writeRecords(w, commands); err != nil {
		DebugPrintln("[Dict] render failed: " + err.Error())
		return
	}
	if err := w.Close(); err != nil {
		DebugPrintln("[Dict] compress failed: " + err.Error())
		return
	}

	d.cached = buf.Bytes()
	DebugPrintln("[Dict] built " + itoa(len(d.cached)) + " bytes")
}

// writeRecords writes the dictionary text to w, one record per line.
// Called with mu held.
func (d *Dictionary) writeRecords(w io.Writer, commands []*Command) error {
	rw := recordWriter{w: w}

	rw.line("version", d.version)

	names := make([]string, 0, len(d.constants))
	for name := range d.constants {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		rw.line("constant", name, valueToString(d.constants[name].Value))
	}

	for _, cmd := range commands {
		kind := "command"
		if cmd.IsResponse() {
			kind = "response"
		}
		if cmd.Format == "" {
			rw.line(kind, utoa(uint32(cmd.ID)), cmd.Name)
		} else {
			rw.line(kind, utoa(uint32(cmd.ID)), cmd.Name, cmd.Format)
		}
	}
	return rw.err
}

// recordWriter writes space separated fields, keeping the first error
type recordWriter struct {
	w   io.Writer
	err error
}

func (rw *recordWriter) line(fields ...string) {
	for i, f := range fields {
		if i > 0 {
			rw.write(" ")
		}
		rw.write(f)
	}
	rw.write("\n")
}

func (rw *recordWriter) write(s string) {
	if rw.err != nil {
		return
	}
	_, rw.err = io.WriteString(rw.w, s)
}

// countWriter counts bytes and discards them
type countWriter struct {
	n int
}

func (c *countWriter) Write(p []byte) (int, error) {
	c.n += len(p)
	return len(p), nil
}

// Bytes returns the zlib wrapped dictionary served by identify,
// building it if needed
func (d *Dictionary) Bytes() []byte {
	d.mu.RLock()
	built := d.cached != nil
	d.mu.RUnlock()
	if !built {
		d.BuildDictionary()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cached
}

// Text renders the plain dictionary records. Nothing is cached; the
// firmware only ever serves Bytes.
func (d *Dictionary) Text() []byte {
	commands := d.commandReg.Commands()

	d.mu.RLock()
	defer d.mu.RUnlock()

	var buf bytes.Buffer
	if err := d.writeRecords(&buf, commands); err != nil {
		return nil
	}
	return buf.Bytes()
}

// GetChunk returns up to count bytes of the dictionary starting at offset.
// An empty chunk marks the end.
func (d *Dictionary) GetChunk(offset uint32, count uint8) []byte {
	data := d.Bytes()
	if offset >= uint32(len(data)) {
		return nil
	}
	end := offset + uint32(count)
	if end > uint32(len(data)) {
		end = uint32(len(data))
	}
	return data[offset:end]
}
