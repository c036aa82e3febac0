package runner

import "scriptquest/internal/state"

// SnapshotWriter is an interface to support different output sinks for
// per-tick snapshot rows.
type SnapshotWriter interface {
	WriteSnapshot(state.Row) error
}

// Optional: writers may support batch mode for snapshot rows.
type batchSnapshotWriter interface {
	WriteSnapshots([]state.Row) error
}

// LogSink is implemented by writers that also want the script's captured
// console output.
type LogSink interface {
	WriteLog(LogLine) error
}
