package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSetGlobalAndGlobal(t *testing.T) {
	prev := Global()
	defer SetGlobal(prev)

	l := Discard()
	SetGlobal(l)
	if Global() != l {
		t.Error("Global() should return the logger set by SetGlobal")
	}
}

func TestConfigure(t *testing.T) {
	prev := Global()
	defer SetGlobal(prev)

	l := Configure("debug", "text")
	if l.GetLevel() != LevelDebug {
		t.Errorf("level = %v, want debug", l.GetLevel())
	}
	if Global() != l {
		t.Error("Configure should set global logger")
	}
}

func TestSetupWritesToFile(t *testing.T) {
	prev := Global()
	defer SetGlobal(prev)

	path := filepath.Join(t.TempDir(), "logs", "condensed.log")
	l, closer, err := Setup("info", "json", path)
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}

	l.Infof("started", Fields{"index": "logs-fim"})
	if err := closer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), `"message":"started"`) {
		t.Errorf("log file missing entry: %q", data)
	}
}

func TestSetupWithoutFile(t *testing.T) {
	prev := Global()
	defer SetGlobal(prev)

	l, closer, err := Setup("warn", "json", "")
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if l.GetLevel() != LevelWarn {
		t.Errorf("level = %v, want warn", l.GetLevel())
	}
	if err := closer.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
