package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewLevel(t *testing.T) {
	if got := New(Options{Level: "debug"}).GetLevel(); got != logrus.DebugLevel {
		t.Errorf("Expected debug level, got %s", got)
	}
	if got := New(Options{Level: "bogus"}).GetLevel(); got != logrus.InfoLevel {
		t.Errorf("Expected info fallback, got %s", got)
	}
}

func TestNewWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trashtasker.log")
	logger := New(Options{File: path, MaxSizeMB: 1, JSON: true})
	logger.WithField("task_id", "t1").Info("pushed")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("could not read log file: %v", err)
	}
	line := string(data)
	if !strings.Contains(line, `"message":"pushed"`) || !strings.Contains(line, `"task_id":"t1"`) {
		t.Errorf("Expected JSON log line with message and task_id, got %s", line)
	}
}
