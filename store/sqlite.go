package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-shipment"
	_ "modernc.org/sqlite"
)

// DriverName is the database/sql driver registered by modernc.org/sqlite.
const DriverName = "sqlite"

// SQLite stores records and the journal in two tables.
type SQLite struct {
	db          *sql.DB
	recordTable string
	eventTable  string

	schemaOnce sync.Once
	schemaErr  error
}

// OpenSQLite opens dsn with the pure Go driver.
func OpenSQLite(dsn string) (*SQLite, *sql.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "file:shipments.db?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open(DriverName, dsn)
	if err != nil {
		return nil, nil, err
	}
	db.SetMaxOpenConns(1)
	return NewSQLite(db, ""), db, nil
}

// NewSQLite builds a store over db. table defaults to "shipments".
func NewSQLite(db *sql.DB, table string) *SQLite {
	if table == "" {
		table = "shipments"
	}
	return &SQLite{
		db:          db,
		recordTable: table,
		eventTable:  table + "_events",
	}
}

func (s *SQLite) ensureSchema(ctx context.Context) error {
	s.schemaOnce.Do(func() {
		ddl := []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				shipment_id TEXT PRIMARY KEY,
				state TEXT NOT NULL,
				terminal INTEGER NOT NULL DEFAULT 0,
				version INTEGER NOT NULL,
				data TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`, s.recordTable),
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				id TEXT PRIMARY KEY,
				shipment_id TEXT NOT NULL,
				version INTEGER NOT NULL,
				kind TEXT NOT NULL,
				name TEXT NOT NULL,
				payload TEXT,
				at TEXT NOT NULL
			)`, s.eventTable),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_shipment_idx ON %s (shipment_id, version)`, s.eventTable, s.eventTable),
		}
		for _, stmt := range ddl {
			if _, err := s.db.ExecContext(ctx, stmt); err != nil {
				s.schemaErr = err
				return
			}
		}
	})
	return s.schemaErr
}

func (s *SQLite) Load(ctx context.Context, id string) (*shipment.Record, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("sqlite store not configured")
	}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, nil
	}

	q := fmt.Sprintf(`SELECT version, data FROM %s WHERE shipment_id = ?`, s.recordTable)
	var version int
	var data string
	err := s.db.QueryRowContext(ctx, q, id).Scan(&version, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var rec shipment.Record
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("sqlite store: decode %s: %w", id, err)
	}
	rec.Version = version
	return &rec, nil
}

func (s *SQLite) Commit(ctx context.Context, rec shipment.Record, expected int, events ...Event) (int, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("sqlite store not configured")
	}
	if err := s.ensureSchema(ctx); err != nil {
		return 0, err
	}
	rec.ShipmentID = strings.TrimSpace(rec.ShipmentID)
	if rec.ShipmentID == "" {
		return 0, errRecordID
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}
	next := expected + 1
	rec.Version = next
	data, err := json.Marshal(rec)
	if err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	var result sql.Result
	if expected == 0 {
		q := fmt.Sprintf(`INSERT OR IGNORE INTO %s (shipment_id, state, terminal, version, data, updated_at) VALUES (?, ?, ?, 1, ?, ?)`, s.recordTable)
		result, err = tx.ExecContext(ctx, q,
			rec.ShipmentID, string(rec.State), boolInt(rec.State.Terminal()), string(data), formatTimestamp(rec.UpdatedAt))
	} else {
		q := fmt.Sprintf(`UPDATE %s SET state=?, terminal=?, version=?, data=?, updated_at=? WHERE shipment_id=? AND version=?`, s.recordTable)
		result, err = tx.ExecContext(ctx, q,
			string(rec.State), boolInt(rec.State.Terminal()), next, string(data), formatTimestamp(rec.UpdatedAt), rec.ShipmentID, expected)
	}
	if err != nil {
		return 0, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return 0, shipment.VersionConflict(rec.ShipmentID, expected, s.currentVersion(ctx, tx, rec.ShipmentID))
	}

	insert := fmt.Sprintf(`INSERT INTO %s (id, shipment_id, version, kind, name, payload, at) VALUES (?, ?, ?, ?, ?, ?, ?)`, s.eventTable)
	for _, evt := range events {
		if _, err := tx.ExecContext(ctx, insert,
			evt.ID, rec.ShipmentID, next, evt.Kind, evt.Name, string(evt.Payload), formatTimestamp(evt.At)); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return next, nil
}

func (s *SQLite) currentVersion(ctx context.Context, tx *sql.Tx, id string) int {
	var v int
	q := fmt.Sprintf(`SELECT version FROM %s WHERE shipment_id = ?`, s.recordTable)
	if err := tx.QueryRowContext(ctx, q, id).Scan(&v); err != nil {
		return 0
	}
	return v
}

func (s *SQLite) Events(ctx context.Context, id string) ([]Event, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	q := fmt.Sprintf(`SELECT id, shipment_id, version, kind, name, payload, at FROM %s WHERE shipment_id = ? ORDER BY version, rowid`, s.eventTable)
	rows, err := s.db.QueryContext(ctx, q, strings.TrimSpace(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var evt Event
		var payload sql.NullString
		var at string
		if err := rows.Scan(&evt.ID, &evt.ShipmentID, &evt.Version, &evt.Kind, &evt.Name, &payload, &at); err != nil {
			return nil, err
		}
		if payload.Valid && payload.String != "" {
			evt.Payload = json.RawMessage(payload.String)
		}
		evt.At, _ = time.Parse(time.RFC3339Nano, at)
		out = append(out, evt)
	}
	return out, rows.Err()
}

func (s *SQLite) List(ctx context.Context, filter Filter) ([]string, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	q := fmt.Sprintf(`SELECT shipment_id FROM %s`, s.recordTable)
	if filter.ActiveOnly {
		q += ` WHERE terminal = 0`
	}
	q += ` ORDER BY shipment_id`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
