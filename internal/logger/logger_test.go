package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestSubsystemLevels(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(false, &buf)
	det := l.Subsystem(SubsystemDetector)
	det.Debugf("hidden %d", 1)
	det.Infof("shown %d", 2)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug line written without debug flag: %q", out)
	}
	if !strings.Contains(out, "shown 2") || !strings.Contains(out, SubsystemDetector) {
		t.Errorf("missing info line: %q", out)
	}
	if l.Subsystem(SubsystemDetector) != det {
		t.Errorf("subsystem logger not cached")
	}
}

func TestDebugLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(true, &buf)
	l.Subsystem(SubsystemStore).Debugf("visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Errorf("debug line missing: %q", buf.String())
	}
}
