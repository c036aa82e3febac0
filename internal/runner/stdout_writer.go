// Writer implementation printing snapshot rows to STDOUT
package runner

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"scriptquest/internal/state"
)

// StdoutWriter prints snapshot rows as JSON lines.
type StdoutWriter struct {
	out io.Writer
}

// NewStdoutWriter returns a writer printing to STDOUT.
func NewStdoutWriter() *StdoutWriter {
	return &StdoutWriter{out: os.Stdout}
}

// WriteSnapshot outputs a single snapshot row.
func (w *StdoutWriter) WriteSnapshot(row state.Row) error {
	data, _ := json.Marshal(row)
	fmt.Fprintln(w.out, string(data))
	return nil
}

// WriteSnapshots outputs multiple snapshot rows.
func (w *StdoutWriter) WriteSnapshots(rows []state.Row) error {
	for _, r := range rows {
		_ = w.WriteSnapshot(r)
	}
	return nil
}

// WriteLog prints a captured script console line.
func (w *StdoutWriter) WriteLog(line LogLine) error {
	fmt.Fprintf(w.out, "[script %s] frame=%d %s\n", line.Level, line.Frame, line.Message)
	return nil
}
