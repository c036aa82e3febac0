package runner

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"scriptquest/internal/state"
)

func TestReplayLog(t *testing.T) {
	rows := []state.Row{
		{SessionID: "s1", Tick: 1, Frame: 0, Timestamp: time.Unix(0, 0)},
		{SessionID: "s1", Tick: 2, Frame: 1, Timestamp: time.Unix(1, 0)},
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range rows {
		if err := enc.Encode(r); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	cw := &singleWriter{}
	if err := ReplayLog(&buf, cw, 0); err != nil {
		t.Fatalf("ReplayLog: %v", err)
	}
	if len(cw.rows) != len(rows) {
		t.Fatalf("expected %d rows, got %d", len(rows), len(cw.rows))
	}
	for i, r := range rows {
		if cw.rows[i].Frame != r.Frame {
			t.Fatalf("row %d mismatch: %+v vs %+v", i, cw.rows[i], r)
		}
	}
}

func TestReplayLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshots.json")
	row := state.Row{SessionID: "s1", Tick: 9, Frame: 8, Timestamp: time.Unix(0, 0)}
	data, err := json.Marshal(row)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	cw := &singleWriter{}
	if err := ReplayLogFile(path, cw, 0); err != nil {
		t.Fatalf("ReplayLogFile: %v", err)
	}
	if len(cw.rows) != 1 || cw.rows[0].Tick != 9 {
		t.Fatalf("unexpected replayed rows: %+v", cw.rows)
	}
}

func TestReplayLogBadInput(t *testing.T) {
	if err := ReplayLog(bytes.NewBufferString("not json"), &singleWriter{}, 0); err == nil {
		t.Fatal("expected decode error")
	}
}
