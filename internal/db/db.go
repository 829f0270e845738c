package db

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DBPair holds a single-connection writer and a small read-only pool. In WAL
// mode history queries never wait on the exchange recorder.
type DBPair struct {
	reader *sql.DB
	writer *sql.DB
}

// Reader returns the read-only pool.
func (p *DBPair) Reader() *sql.DB { return p.reader }

// Writer returns the write connection.
func (p *DBPair) Writer() *sql.DB { return p.writer }

// Close closes both pools.
func (p *DBPair) Close() error {
	return errors.Join(
		wrapClose("reader", p.reader.Close()),
		wrapClose("writer", p.writer.Close()),
	)
}

func wrapClose(name string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("close %s: %w", name, err)
}

// Init opens (creating if needed) the SQLite database at dbPath and applies
// the schema.
func Init(dbPath string) (*DBPair, error) {
	if dbPath == "" {
		return nil, errors.New("db path is required")
	}
	if err := ensureDir(dbPath); err != nil {
		return nil, err
	}

	writer, err := open(dbPath, "rwc", 1, 1)
	if err != nil {
		return nil, fmt.Errorf("open writer: %w", err)
	}
	for _, pragma := range []string{"PRAGMA journal_mode = WAL;", "PRAGMA foreign_keys = ON;"} {
		if _, err := writer.Exec(pragma); err != nil {
			writer.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	if _, err := writer.Exec(schemaSQL); err != nil {
		writer.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	if err := runMigrations(writer); err != nil {
		writer.Close()
		return nil, err
	}

	// The reader only ever sees a fully migrated schema.
	reader, err := open(dbPath, "ro", 4, 2)
	if err != nil {
		writer.Close()
		return nil, fmt.Errorf("open reader: %w", err)
	}

	return &DBPair{reader: reader, writer: writer}, nil
}

func open(dbPath, mode string, maxOpen, maxIdle int) (*sql.DB, error) {
	dsn := fmt.Sprintf("%s?_journal=WAL&_busy_timeout=5000&cache=shared&mode=%s", dbPath, mode)
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(maxOpen)
	conn.SetMaxIdleConns(maxIdle)
	conn.SetConnMaxLifetime(time.Hour)
	return conn, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if _, err := os.Stat(dir); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}

func runMigrations(db *sql.DB) error {
	columns, err := tableColumns(db, "exchanges")
	if err != nil {
		return err
	}

	if !columns["request_id"] {
		if _, err := db.Exec("ALTER TABLE exchanges ADD COLUMN request_id TEXT"); err != nil {
			return fmt.Errorf("add exchanges.request_id: %w", err)
		}
	}
	if _, err := db.Exec(requestIDIndexSQL); err != nil {
		return fmt.Errorf("index exchanges.request_id: %w", err)
	}
	return nil
}

func tableColumns(db *sql.DB, table string) (map[string]bool, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns := make(map[string]bool)
	for rows.Next() {
		var cid, notNull, pk int
		var name, colType string
		var defaultVal sql.NullString
		if err := rows.Scan(&cid, &name, &colType, &notNull, &defaultVal, &pk); err != nil {
			return nil, err
		}
		columns[name] = true
	}
	return columns, rows.Err()
}
