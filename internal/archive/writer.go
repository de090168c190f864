// Package archive records pushed vitals readings to files, terminals and
// GreptimeDB.
package archive

import (
	"log/slog"

	"vitalsops/internal/feed"
	"vitalsops/internal/metrics"
	"vitalsops/internal/telemetry"
)

// Writer persists readings.
type Writer interface {
	Write(r telemetry.SoldierReading) error
}

type batchWriter interface {
	WriteBatch(rows []telemetry.SoldierReading) error
}

// MultiWriter fans readings out to several writers. A failing writer does
// not stop the others; the first error is returned.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a MultiWriter.
func NewMultiWriter(ws ...Writer) *MultiWriter {
	return &MultiWriter{writers: ws}
}

// Write sends r to every writer.
func (mw *MultiWriter) Write(r telemetry.SoldierReading) error {
	var first error
	for _, w := range mw.writers {
		if err := w.Write(r); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// WriteBatch sends rows to every writer, using batch writes if supported.
func (mw *MultiWriter) WriteBatch(rows []telemetry.SoldierReading) error {
	var first error
	for _, w := range mw.writers {
		if bw, ok := w.(batchWriter); ok {
			if err := bw.WriteBatch(rows); err != nil && first == nil {
				first = err
			}
			continue
		}
		for _, r := range rows {
			if err := w.Write(r); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}

// Record subscribes w to every reading pushed by f. Close the returned
// subscription to stop recording.
func Record(f *feed.Feed, w Writer, sink string, log *slog.Logger) *feed.Subscription {
	if log == nil {
		log = slog.Default()
	}
	return f.Subscribe(func(ev feed.Event) {
		if ev.Kind != feed.EventReading {
			return
		}
		err := w.Write(ev.Reading)
		metrics.ObserveArchive(sink, err)
		if err != nil {
			log.Warn("[Archive] write failed", "sink", sink, "soldier", ev.Reading.SoldierID, "error", err)
		}
	})
}
