package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
	}{
		{"debug", LevelDebug},
		{"DEBUG", LevelDebug},
		{"info", LevelInfo},
		{"warn", LevelWarn},
		{"warning", LevelWarn},
		{" error ", LevelError},
		{"invalid", LevelInfo},
		{"", LevelInfo},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			if got := ParseLevel(tc.input); got != tc.expected {
				t.Errorf("ParseLevel(%q) = %v, want %v", tc.input, got, tc.expected)
			}
		})
	}
}

func TestLevelString(t *testing.T) {
	tests := []struct {
		level    Level
		expected string
	}{
		{LevelDebug, "debug"},
		{LevelInfo, "info"},
		{LevelWarn, "warn"},
		{LevelError, "error"},
		{Level(99), "unknown"},
	}

	for _, tc := range tests {
		t.Run(tc.expected, func(t *testing.T) {
			if got := tc.level.String(); got != tc.expected {
				t.Errorf("Level.String() = %v, want %v", got, tc.expected)
			}
		})
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input    string
		expected Format
	}{
		{"json", FormatJSON},
		{"text", FormatText},
		{"TEXT", FormatText},
		{"bogus", FormatJSON},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			if got := ParseFormat(tc.input); got != tc.expected {
				t.Errorf("ParseFormat(%q) = %v, want %v", tc.input, got, tc.expected)
			}
		})
	}
}

func TestJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelInfo, Format: FormatJSON, Output: &buf})

	l.Named("batcher").Infof("flushed", Fields{"files": 3, "err": errors.New("boom")})

	var entry Entry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON: %v", err)
	}
	if entry.Level != "info" {
		t.Errorf("level = %q, want info", entry.Level)
	}
	if entry.Component != "batcher" {
		t.Errorf("component = %q, want batcher", entry.Component)
	}
	if entry.Message != "flushed" {
		t.Errorf("message = %q, want flushed", entry.Message)
	}
	if entry.Fields["files"] != float64(3) {
		t.Errorf("files = %v, want 3", entry.Fields["files"])
	}
	if entry.Fields["err"] != "boom" {
		t.Errorf("err = %v, want boom", entry.Fields["err"])
	}
}

func TestTextOutputSortsFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelDebug, Format: FormatText, Output: &buf})

	l.Warnf("slow", Fields{"zeta": "z", "alpha": 1})

	line := buf.String()
	if !strings.Contains(line, "[warn] slow") {
		t.Errorf("line %q missing level/message", line)
	}
	a := strings.Index(line, "alpha=1")
	z := strings.Index(line, "zeta=z")
	if a < 0 || z < 0 || a > z {
		t.Errorf("fields not sorted in %q", line)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelWarn, Format: FormatJSON, Output: &buf})

	l.Debug("d")
	l.Info("i")
	if buf.Len() != 0 {
		t.Fatalf("expected no output below warn, got %q", buf.String())
	}

	l.Error("e")
	if buf.Len() == 0 {
		t.Fatal("expected error output")
	}
}

func TestSetLevelAffectsChildren(t *testing.T) {
	var buf bytes.Buffer
	parent := New(Config{Level: LevelError, Output: &buf})
	child := parent.With(Fields{"index": "logs"})

	child.Info("hidden")
	if buf.Len() != 0 {
		t.Fatal("child logged below parent level")
	}

	parent.SetLevel(LevelDebug)
	child.Info("shown")
	if buf.Len() == 0 {
		t.Fatal("child did not pick up parent level change")
	}
}

func TestWithDoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	parent := New(Config{Level: LevelInfo, Output: &buf}).With(Fields{"a": 1})
	_ = parent.With(Fields{"b": 2})

	parent.Info("x")

	var entry Entry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON: %v", err)
	}
	if _, ok := entry.Fields["b"]; ok {
		t.Error("child fields leaked into parent")
	}
	if entry.Fields["a"] != float64(1) {
		t.Errorf("a = %v, want 1", entry.Fields["a"])
	}
}

func TestAddCaller(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelInfo, Output: &buf, AddCaller: true})

	l.Info("here")

	var entry Entry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON: %v", err)
	}
	if !strings.HasSuffix(entry.File, "logger_test.go") {
		t.Errorf("file = %q, want logger_test.go", entry.File)
	}
	if entry.Line == 0 {
		t.Error("line not set")
	}
}

func TestConcurrentWritesProduceWholeLines(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelInfo, Output: &buf})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			l.Named("worker").Infof("tick", Fields{"i": i})
		}(i)
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 20 {
		t.Fatalf("got %d lines, want 20", len(lines))
	}
	for _, line := range lines {
		var entry Entry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("interleaved line %q: %v", line, err)
		}
	}
}

func TestDiscard(t *testing.T) {
	l := Discard()
	l.Error("nothing")
	if l.Enabled(LevelError) {
		t.Error("discard logger should not enable error")
	}
}
