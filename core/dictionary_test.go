package core

import (
	"bytes"
	"compress/zlib"
	"io"
	"strings"
	"testing"

	"xlr8rc/tinycompress"
)

func TestDictionaryChunks(t *testing.T) {
	registry := NewCommandRegistry()
	registry.Register("identify_response", "offset=%u data=%*s", nil)
	registry.Register("identify", "offset=%u count=%c", func(data *[]byte) error { return nil })

	dict := NewDictionary(registry)
	dict.AddConstant("B_CONST", 2)
	dict.AddConstant("A_CONST", "x")

	full := dict.Text()
	lines := strings.Split(strings.TrimSpace(string(full)), "\n")
	expected := []string{
		"version " + Version,
		"constant A_CONST x",
		"constant B_CONST 2",
		"response 0 identify_response offset=%u data=%*s",
		"command 1 identify offset=%u count=%c",
	}
	if len(lines) != len(expected) {
		t.Fatalf("Expected %d lines, got %d:\n%s", len(expected), len(lines), full)
	}
	for i := range expected {
		if lines[i] != expected[i] {
			t.Errorf("Line %d: expected %q, got %q", i, expected[i], lines[i])
		}
	}

	// Reassemble from small chunks
	var rebuilt bytes.Buffer
	offset := uint32(0)
	for {
		chunk := dict.GetChunk(offset, 7)
		if len(chunk) == 0 {
			break
		}
		rebuilt.Write(chunk)
		offset += uint32(len(chunk))
	}
	if !bytes.Equal(rebuilt.Bytes(), dict.Bytes()) {
		t.Errorf("Chunked dictionary differs from full dictionary")
	}

	r, err := zlib.NewReader(&rebuilt)
	if err != nil {
		t.Fatalf("Served dictionary is not zlib: %v", err)
	}
	inflated, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("Inflate failed: %v", err)
	}
	if !bytes.Equal(inflated, full) {
		t.Errorf("Inflated dictionary differs from text:\n%s", inflated)
	}
}

func TestDictionaryRebuildsOnConstant(t *testing.T) {
	dict := NewDictionary(NewCommandRegistry())
	before := len(dict.Bytes())
	dict.AddConstant("LATE", 1)
	after := len(dict.Bytes())

	if after != before+len("constant LATE 1\n") {
		t.Errorf("Served dictionary not rebuilt after AddConstant: %d -> %d bytes", before, after)
	}
	if !strings.Contains(string(dict.Text()), "constant LATE 1") {
		t.Errorf("Text missing late constant:\n%s", dict.Text())
	}
}

// firmwareDictionaryBudget bounds the dictionary the AVR target keeps in
// SRAM for identify
const firmwareDictionaryBudget = 640

func TestDictionaryFirmwareSize(t *testing.T) {
	ResetCommands()
	InitCoreCommands()
	InitRCCommands(NewRCRegistry(NewSimRCRegisters(), nil, RCPin))
	RegisterConstant("SERIAL_BAUD", uint32(115200))
	defer ResetCommands()

	dict := GetGlobalDictionary()
	dict.BuildDictionary()
	served := dict.Bytes()
	text := dict.Text()

	if len(served) != tinycompress.StreamSize(len(text)) {
		t.Errorf("Expected %d byte stream for %d bytes of text, got %d",
			tinycompress.StreamSize(len(text)), len(text), len(served))
	}
	if len(served) > firmwareDictionaryBudget {
		t.Errorf("Dictionary is %d bytes, budget %d", len(served), firmwareDictionaryBudget)
	}
	t.Logf("dictionary: %d bytes text, %d bytes served", len(text), len(served))
}
