package logger

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"tarpit/pkg/models"
)

func readLines(t *testing.T, path string) []map[string]any {
	t.Helper()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Failed to open log file: %v", err)
	}
	defer f.Close()

	var lines []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			t.Fatalf("Log line is not JSON: %q", scanner.Text())
		}
		lines = append(lines, entry)
	}
	return lines
}

func TestLogger_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "tarpit.log")

	l, err := NewLogger(&models.LogConfig{
		ToFile:   true,
		FilePath: path,
		Prefix:   "[Test]",
	})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	l.Info("hello")
	l.Warn("careful")
	l.Error("broken")
	l.Debug("hidden")
	l.Printf("error when serving connection %q: %v", "1.2.3.4", "broken pipe")
	if err := l.Close(); err != nil {
		t.Fatalf("Failed to close logger: %v", err)
	}

	lines := readLines(t, path)
	if len(lines) != 4 {
		t.Fatalf("Expected 4 lines (debug disabled), got %d", len(lines))
	}

	expected := []struct{ level, msg string }{
		{"info", "hello"},
		{"warn", "careful"},
		{"error", "broken"},
		{"warn", `error when serving connection "1.2.3.4": broken pipe`},
	}
	for i, e := range expected {
		if lines[i]["level"] != e.level || lines[i]["message"] != e.msg {
			t.Errorf("Line %d: expected %s/%q, got %v/%v", i, e.level, e.msg, lines[i]["level"], lines[i]["message"])
		}
		if lines[i]["service"] != "[Test]" {
			t.Errorf("Line %d: expected service field, got %v", i, lines[i]["service"])
		}
	}
	if lines[3]["source"] != "fasthttp" {
		t.Errorf("Expected source=fasthttp on Printf lines, got %v", lines[3]["source"])
	}
}

func TestLogger_DebugEnabled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tarpit.log")

	l, err := NewLogger(&models.LogConfig{ToFile: true, FilePath: path, DebugEnabled: true})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	l.Debug("visible")
	l.Close()

	lines := readLines(t, path)
	if len(lines) != 1 || lines[0]["level"] != "debug" {
		t.Errorf("Expected one debug line, got %v", lines)
	}
	if _, ok := lines[0]["service"]; ok {
		t.Error("Expected no service field without a prefix")
	}
}

func TestLogger_NoSinks(t *testing.T) {
	l, err := NewLogger(&models.LogConfig{})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	l.Info("dropped")
	if err := l.Close(); err != nil {
		t.Errorf("Close without file should not fail: %v", err)
	}
}
