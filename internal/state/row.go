package state

import "time"

// Row is the per-tick record emitted while a run is in flight. Rows are
// transient run output, not persisted engine state; writers decide whether
// they end up on a terminal, in a JSONL log, or in a time-series store.
type Row struct {
	SessionID string    `json:"session_id"`
	Challenge string    `json:"challenge"`
	Tick      uint64    `json:"tick"`
	Frame     int       `json:"frame"`
	Values    Snapshot  `json:"values"`
	Timestamp time.Time `json:"timestamp"`
}
