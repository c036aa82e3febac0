package runner

import (
	"encoding/json"
	"os"

	"scriptquest/internal/state"
)

// FileWriter writes snapshot rows and script logs to JSONL files.
type FileWriter struct {
	snapFile *os.File
	logFile  *os.File
	snapEnc  *json.Encoder
	logEnc   *json.Encoder
}

// NewFileWriter creates a FileWriter. logPath may be empty to skip the
// script log file.
func NewFileWriter(snapshotPath, logPath string) (*FileWriter, error) {
	sf, err := os.Create(snapshotPath)
	if err != nil {
		return nil, err
	}
	fw := &FileWriter{snapFile: sf, snapEnc: json.NewEncoder(sf)}
	if logPath != "" {
		lf, err := os.Create(logPath)
		if err != nil {
			sf.Close()
			return nil, err
		}
		fw.logFile = lf
		fw.logEnc = json.NewEncoder(lf)
	}
	return fw, nil
}

// WriteSnapshot logs a single snapshot row.
func (f *FileWriter) WriteSnapshot(row state.Row) error {
	return f.snapEnc.Encode(row)
}

// WriteSnapshots logs multiple snapshot rows.
func (f *FileWriter) WriteSnapshots(rows []state.Row) error {
	for _, r := range rows {
		if err := f.WriteSnapshot(r); err != nil {
			return err
		}
	}
	return nil
}

// WriteLog logs a captured script console line, if enabled.
func (f *FileWriter) WriteLog(line LogLine) error {
	if f.logEnc == nil {
		return nil
	}
	return f.logEnc.Encode(line)
}

// Close closes the underlying files.
func (f *FileWriter) Close() error {
	var first error
	if err := f.snapFile.Close(); err != nil {
		first = err
	}
	if f.logFile != nil {
		if err := f.logFile.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
