package main

import (
	"os"

	"scriptquest/internal/runner"
)

// newWriters picks the snapshot sink from flags and env vars. It returns
// the writer and a cleanup function to close any resources. When a TUI
// writer is supplied it replaces STDOUT output so the two do not fight
// over the terminal.
func newWriters(printOnly bool, logFile string, tui *runner.TUIWriter) (runner.SnapshotWriter, func(), error) {
	cleanup := func() {}

	var writers []runner.SnapshotWriter
	if tui != nil {
		writers = append(writers, tui)
	}
	if !printOnly && os.Getenv("GREPTIMEDB_ENDPOINT") != "" {
		gw, err := runner.NewGreptimeDBWriter(os.Getenv("GREPTIMEDB_ENDPOINT"), "public", os.Getenv("GREPTIMEDB_TABLE"))
		if err != nil {
			return nil, nil, err
		}
		writers = append(writers, gw)
	}
	if len(writers) == 0 {
		writers = append(writers, runner.NewStdoutWriter())
	}

	if logFile != "" {
		fw, err := runner.NewFileWriter(logFile, logFile+".script")
		if err != nil {
			return nil, nil, err
		}
		writers = append(writers, fw)
		cleanup = func() { fw.Close() }
	}

	if len(writers) == 1 {
		return writers[0], cleanup, nil
	}
	return runner.NewMultiWriter(writers...), cleanup, nil
}
