package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3" // registers the sqlite3 driver

	bridgeerrors "heating-mqtt-bridge/internal/errors"
	"heating-mqtt-bridge/internal/logger"
)

// SQLiteSink appends records to an embedded SQLite file.
// Each collection is a table with the same columns as the Mongo documents.
type SQLiteSink struct {
	db      *sql.DB
	inserts map[string]*sql.Stmt
}

// NewSQLiteSink opens (or creates) the database at path and prepares the schema
func NewSQLiteSink(ctx context.Context, path string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	// One writer; also keeps a ":memory:" database alive across calls
	db.SetMaxOpenConns(1)

	s := &SQLiteSink{db: db, inserts: make(map[string]*sql.Stmt)}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}

	logger.LogInfo("Opened SQLite store %s", path)
	return s, nil
}

func (s *SQLiteSink) initSchema(ctx context.Context) error {
	for collection, schema := range allowed {
		// Table and column names come from the fixed schema map, never from input
		ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			type TEXT NOT NULL,
			%s REAL NOT NULL,
			timestamp DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_%s_timestamp ON %s (timestamp);
		`, collection, schema.field, collection, collection)
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return err
		}

		stmt, err := s.db.PrepareContext(ctx,
			fmt.Sprintf("INSERT INTO %s (type, %s, timestamp) VALUES (?, ?, ?)", collection, schema.field))
		if err != nil {
			return err
		}
		s.inserts[collection] = stmt
	}
	return nil
}

// Append inserts one row into the record's table
func (s *SQLiteSink) Append(ctx context.Context, r Record) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if _, err := s.inserts[r.Collection].ExecContext(ctx, r.Type, r.Value, r.Timestamp); err != nil {
		return bridgeerrors.NewPersistenceError("insert", err, r.Collection, r.Type)
	}
	return nil
}

// Close releases the prepared statements and the database
func (s *SQLiteSink) Close(context.Context) error {
	for _, stmt := range s.inserts {
		stmt.Close()
	}
	return s.db.Close()
}
