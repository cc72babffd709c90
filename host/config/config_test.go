package config

import (
	"testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig([]byte(`{}`))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Backend != BackendSerial {
		t.Errorf("Expected backend %q, got %q", BackendSerial, cfg.Backend)
	}
	if cfg.Baud != 115200 {
		t.Errorf("Expected baud 115200, got %d", cfg.Baud)
	}
	if cfg.PollInterval != 50 {
		t.Errorf("Expected poll interval 50, got %d", cfg.PollInterval)
	}
	if cfg.Chip != "gpiochip0" {
		t.Errorf("Expected chip gpiochip0, got %q", cfg.Chip)
	}

	sc := cfg.SerialConfig()
	if sc.Device != cfg.Device || sc.Baud != cfg.Baud || sc.ReadTimeout != 100 {
		t.Errorf("SerialConfig mismatch: %+v", sc)
	}
}

func TestLoadConfigSoft(t *testing.T) {
	cfg, err := LoadConfig([]byte(`{"backend":"soft","chip":"gpiochip4","lines":[17,27]}`))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Chip != "gpiochip4" || len(cfg.Lines) != 2 || cfg.Lines[1] != 27 {
		t.Errorf("Unexpected soft config: %+v", cfg)
	}
}

func TestLoadConfigReadTimeout(t *testing.T) {
	testCases := []struct {
		json     string
		expected int
	}{
		{`{}`, 100},
		{`{"read_timeout_ms":0}`, 100},
		{`{"read_timeout_ms":250}`, 250},
		{`{"read_timeout_ms":-1}`, 0}, // blocking
	}

	for _, tc := range testCases {
		cfg, err := LoadConfig([]byte(tc.json))
		if err != nil {
			t.Fatalf("LoadConfig(%s) failed: %v", tc.json, err)
		}
		if got := cfg.SerialConfig().ReadTimeout; got != tc.expected {
			t.Errorf("%s: expected serial read timeout %d, got %d", tc.json, tc.expected, got)
		}
	}
}

func TestLoadConfigInvalid(t *testing.T) {
	testCases := []struct {
		name string
		json string
	}{
		{"bad json", `{`},
		{"unknown backend", `{"backend":"spi"}`},
		{"soft without lines", `{"backend":"soft"}`},
		{"duplicate line", `{"backend":"soft","lines":[4,4]}`},
		{"negative line", `{"backend":"soft","lines":[-1]}`},
		{"negative read timeout", `{"read_timeout_ms":-5}`},
		{"too many lines", `{"lines":[0,1,2,3,4,5,6,7,8,9,10,11,12,13,14,15,16,17,18,19,20,21,22,23,24,25,26,27,28,29,30,31,32]}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := LoadConfig([]byte(tc.json)); err == nil {
				t.Errorf("Expected error for %s", tc.json)
			}
		})
	}
}
