package logger

import (
	"io"
	"os"
	"path/filepath"

	"github.com/decred/slog"
	"github.com/jrick/logrotate/rotator"
)

// Subsystem tags, one logger per package.
const (
	SubsystemMain      = "MONR"
	SubsystemDetector  = "DETC"
	SubsystemStore     = "STOR"
	SubsystemChain     = "CHAN"
	SubsystemCollector = "COLL"
	SubsystemSink      = "SINK"
	SubsystemAPI       = "API "
)

// Logger wraps a slog backend with a debug flag and per-subsystem loggers.
// The embedded logger is the main subsystem.
type Logger struct {
	debug   bool
	backend *slog.Backend
	rotator *rotator.Rotator
	subs    map[string]slog.Logger
	slog.Logger
}

// New creates a new logger that writes to stderr when debug is enabled and
// discards everything otherwise.
func New(debug bool) *Logger {
	var writer io.Writer = io.Discard
	if debug {
		writer = os.Stderr
	}
	return NewWithWriter(debug, writer)
}

// NewWithWriter creates a logger writing to w.
func NewWithWriter(debug bool, w io.Writer) *Logger {
	l := &Logger{
		debug:   debug,
		backend: slog.NewBackend(w),
		subs:    make(map[string]slog.Logger),
	}
	l.Logger = l.Subsystem(SubsystemMain)
	return l
}

// NewWithRotator creates a logger writing to a rotated log file, and also to
// stderr when echo is set. The TUI owns the terminal otherwise.
func NewWithRotator(debug bool, logFile string, echo bool) (*Logger, error) {
	if dir := filepath.Dir(logFile); dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, err
		}
	}
	r, err := rotator.New(logFile, 10*1024, false, 3)
	if err != nil {
		return nil, err
	}
	var w io.Writer = r
	if echo {
		w = io.MultiWriter(os.Stderr, r)
	}
	l := NewWithWriter(debug, w)
	l.rotator = r
	return l, nil
}

// Subsystem returns the logger for tag, creating it on first use.
func (l *Logger) Subsystem(tag string) slog.Logger {
	if s, ok := l.subs[tag]; ok {
		return s
	}
	s := l.backend.Logger(tag)
	if l.debug {
		s.SetLevel(slog.LevelDebug)
	} else {
		s.SetLevel(slog.LevelInfo)
	}
	l.subs[tag] = s
	return s
}

// Printf logs at info level.
func (l *Logger) Printf(format string, v ...interface{}) {
	l.Logger.Infof(format, v...)
}

// Println logs at info level.
func (l *Logger) Println(v ...interface{}) {
	l.Logger.Info(v...)
}

// Fatalf always logs (fatal errors) and exits.
func (l *Logger) Fatalf(format string, v ...interface{}) {
	l.Logger.Criticalf(format, v...)
	_ = l.Close()
	os.Exit(1)
}

// Close flushes and closes the log file, if any.
func (l *Logger) Close() error {
	if l.rotator != nil {
		return l.rotator.Close()
	}
	return nil
}
