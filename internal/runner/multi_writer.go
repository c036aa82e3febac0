package runner

import "scriptquest/internal/state"

// MultiWriter fan-outs snapshot rows and script logs to multiple writers.
type MultiWriter struct {
	writers []SnapshotWriter
}

// NewMultiWriter creates a new MultiWriter.
func NewMultiWriter(writers ...SnapshotWriter) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// WriteSnapshot sends a snapshot row to all writers.
func (mw *MultiWriter) WriteSnapshot(row state.Row) error {
	for _, w := range mw.writers {
		if err := w.WriteSnapshot(row); err != nil {
			return err
		}
	}
	return nil
}

// WriteSnapshots sends multiple snapshot rows to all writers, using batch
// mode where supported.
func (mw *MultiWriter) WriteSnapshots(rows []state.Row) error {
	for _, w := range mw.writers {
		if bw, ok := w.(batchSnapshotWriter); ok {
			if err := bw.WriteSnapshots(rows); err != nil {
				return err
			}
			continue
		}
		for _, r := range rows {
			if err := w.WriteSnapshot(r); err != nil {
				return err
			}
		}
	}
	return nil
}

// WriteLog forwards a script console line to every writer that wants logs.
func (mw *MultiWriter) WriteLog(line LogLine) error {
	for _, w := range mw.writers {
		if ls, ok := w.(LogSink); ok {
			if err := ls.WriteLog(line); err != nil {
				return err
			}
		}
	}
	return nil
}
