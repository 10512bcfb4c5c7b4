package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"Unknown level", Config{Level: "verbose"}},
		{"Unknown format", Config{Format: "xml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg); err == nil {
				t.Errorf("Expected error for %+v", tt.cfg)
			}
		})
	}
}

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "skytrail.log")
	log, err := New(Config{Level: "info", Format: "console", File: path, MaxSizeMB: 1})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	log.Named("roster").Info("Roster refreshed", Int("aircraft_count", 3), String("status", "success"))
	log.Debug("Below level")
	log.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("Expected 1 line, got %d: %s", len(lines), data)
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("File output is not JSON: %v", err)
	}
	if entry["logger"] != "roster" || entry["msg"] != "Roster refreshed" || entry["aircraft_count"] != 3.0 || entry["level"] != "INFO" {
		t.Errorf("Unexpected entry: %v", entry)
	}
}
