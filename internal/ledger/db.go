// Package ledger persists a history of tool invocations per run in SQLite.
package ledger

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/ncruces/go-sqlite3/driver" // registers the "sqlite3" driver
	_ "github.com/ncruces/go-sqlite3/embed"  // embeds the SQLite build

	"github.com/zjrosen/ttr/internal/log"
)

// schema is applied on every open; statements are idempotent.
const schema = `
CREATE TABLE IF NOT EXISTS entries (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      TEXT NOT NULL,
	tag         TEXT NOT NULL DEFAULT '',
	case_name   TEXT NOT NULL DEFAULT '',
	phase       TEXT NOT NULL,
	argv        TEXT NOT NULL DEFAULT '[]',
	config_name TEXT NOT NULL DEFAULT '',
	domain_name TEXT NOT NULL DEFAULT '',
	outcome     TEXT NOT NULL,
	exit_code   INTEGER NOT NULL DEFAULT 0,
	message     TEXT NOT NULL DEFAULT '',
	duration_ms INTEGER NOT NULL DEFAULT 0,
	created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_entries_run ON entries(run_id);
CREATE INDEX IF NOT EXISTS idx_entries_created ON entries(created_at);
`

// NewDB opens (creating if needed) the ledger database at path and applies
// the schema. ":memory:" opens a private in-memory database.
func NewDB(path string) (*sql.DB, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("creating ledger directory: %w", err)
		}
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}
	// One connection keeps :memory: databases shared across calls.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("applying ledger schema: %w", err)
	}
	log.Debug(log.CatLedger, "ledger opened", "path", path)
	return db, nil
}
