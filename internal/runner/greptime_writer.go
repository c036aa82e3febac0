package runner

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"strconv"

	greptime "github.com/GreptimeTeam/greptimedb-ingester-go"
	ingesterContext "github.com/GreptimeTeam/greptimedb-ingester-go/context"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table/types"

	"scriptquest/internal/state"
)

// GreptimeDBWriter persists per-tick run rows to GreptimeDB via the ingester
// client, for offline analysis of student runs.
type GreptimeDBWriter struct {
	client *greptime.Client
	db     string
	table  string
}

// NewGreptimeDBWriter creates a new GreptimeDB writer. The table is
// auto-created on first write (with ttl=30d, passed as an ingest hint).
func NewGreptimeDBWriter(endpoint, database, tableName string) (*GreptimeDBWriter, error) {
	cfg := greptime.NewConfig(endpoint).WithDatabase(database)
	if host, portStr, err := net.SplitHostPort(endpoint); err == nil {
		if port, err := strconv.Atoi(portStr); err == nil {
			cfg = greptime.NewConfig(host).WithPort(port).WithDatabase(database)
		}
	}
	client, err := greptime.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	if tableName == "" {
		tableName = "script_run_snapshots"
	}

	return &GreptimeDBWriter{
		client: client,
		db:     database,
		table:  tableName,
	}, nil
}

// WriteSnapshot inserts a single snapshot row.
func (w *GreptimeDBWriter) WriteSnapshot(row state.Row) error {
	return w.WriteSnapshots([]state.Row{row})
}

// WriteSnapshots inserts multiple snapshot rows.
func (w *GreptimeDBWriter) WriteSnapshots(rows []state.Row) error {
	if len(rows) == 0 {
		return nil
	}

	// Variable sets differ per title, so the snapshot itself is stored as a
	// JSON string field. The ttl hint applies when the table is auto-created.
	ctx := ingesterContext.New(context.Background(),
		ingesterContext.WithHints("ttl=30d"))

	tbl, err := table.New(w.table)
	if err != nil {
		return err
	}
	if err := tbl.AddTagColumn("session_id", types.STRING); err != nil {
		return err
	}
	if err := tbl.AddTagColumn("challenge", types.STRING); err != nil {
		return err
	}
	if err := tbl.AddFieldColumn("tick", types.FLOAT64); err != nil {
		return err
	}
	if err := tbl.AddFieldColumn("frame", types.FLOAT64); err != nil {
		return err
	}
	if err := tbl.AddFieldColumn("vars", types.STRING); err != nil {
		return err
	}
	if err := tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND); err != nil {
		return err
	}

	for _, r := range rows {
		vars, err := json.Marshal(r.Values)
		if err != nil {
			return err
		}
		if err := tbl.AddRow(r.SessionID, r.Challenge,
			float64(r.Tick), float64(r.Frame), string(vars), r.Timestamp); err != nil {
			return err
		}
	}

	if _, err := w.client.Write(ctx, tbl); err != nil {
		log.Printf("[GreptimeDBWriter] Write failed: %v", err)
		return err
	}
	return nil
}
