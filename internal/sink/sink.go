// Package sink delivers detector findings: to the log, to the database, to
// a Kafka topic and to an in-memory ring of recent findings.
package sink

import (
	"context"

	"influence-monitoring/internal/detector"

	"github.com/decred/slog"
	"golang.org/x/sync/errgroup"
)

// Sink accepts the findings of one transaction.
type Sink interface {
	Emit(ctx context.Context, fs []detector.Finding) error
	Close() error
}

// Multi fans findings out to every sink concurrently.
type Multi []Sink

// Emit returns the first error. A failing sink does not stop the others.
func (m Multi) Emit(ctx context.Context, fs []detector.Finding) error {
	if len(fs) == 0 {
		return nil
	}
	var g errgroup.Group
	for _, s := range m {
		s := s
		g.Go(func() error {
			return s.Emit(ctx, fs)
		})
	}
	return g.Wait()
}

// Close closes every sink and returns the first error.
func (m Multi) Close() error {
	var first error
	for _, s := range m {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// LogSink writes findings to a subsystem logger.
type LogSink struct {
	log slog.Logger
}

// NewLogSink returns a sink logging to l.
func NewLogSink(l slog.Logger) *LogSink {
	return &LogSink{log: l}
}

func (s *LogSink) Emit(ctx context.Context, fs []detector.Finding) error {
	for _, f := range fs {
		switch f.Severity {
		case detector.SeverityHigh, detector.SeverityCritical:
			s.log.Warnf("[%v] %v %v: %v (delta %v, tx %v)",
				f.AlertID, f.Severity, f.Name, f.Description, f.Delta, f.TxHash)
		default:
			s.log.Infof("[%v] %v %v: %v", f.AlertID, f.Severity, f.Name, f.Description)
		}
	}
	return nil
}

func (s *LogSink) Close() error { return nil }
