package ledger

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Phases recorded in the ledger.
const (
	PhaseConfigure = "configure"
	PhaseRun       = "run"
	PhaseBinaries  = "binaries"
)

// Outcomes recorded in the ledger.
const (
	OutcomeOK     = "ok"
	OutcomeFailed = "failed"
	OutcomeDry    = "dry"
)

// Entry is one recorded invocation.
type Entry struct {
	ID         int64
	RunID      string
	Tag        string
	Case       string
	Phase      string
	Argv       []string
	ConfigName string
	DomainName string
	Outcome    string
	ExitCode   int
	Message    string
	Duration   time.Duration
	CreatedAt  time.Time
}

// entryModel maps Entry onto the entries table.
type entryModel struct {
	ID         int64
	RunID      string
	Tag        string
	CaseName   string
	Phase      string
	Argv       string // JSON encoded
	ConfigName string
	DomainName string
	Outcome    string
	ExitCode   int
	Message    string
	DurationMs int64
	CreatedAt  int64 // Unix milliseconds
}

func toModel(e Entry) (entryModel, error) {
	argv, err := json.Marshal(e.Argv)
	if err != nil {
		return entryModel{}, fmt.Errorf("encoding argv: %w", err)
	}
	if e.Argv == nil {
		argv = []byte("[]")
	}
	created := e.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	return entryModel{
		RunID:      e.RunID,
		Tag:        e.Tag,
		CaseName:   e.Case,
		Phase:      e.Phase,
		Argv:       string(argv),
		ConfigName: e.ConfigName,
		DomainName: e.DomainName,
		Outcome:    e.Outcome,
		ExitCode:   e.ExitCode,
		Message:    e.Message,
		DurationMs: e.Duration.Milliseconds(),
		CreatedAt:  created.UnixMilli(),
	}, nil
}

func (m entryModel) toEntry() (Entry, error) {
	var argv []string
	if err := json.Unmarshal([]byte(m.Argv), &argv); err != nil {
		return Entry{}, fmt.Errorf("decoding argv of entry %d: %w", m.ID, err)
	}
	return Entry{
		ID:         m.ID,
		RunID:      m.RunID,
		Tag:        m.Tag,
		Case:       m.CaseName,
		Phase:      m.Phase,
		Argv:       argv,
		ConfigName: m.ConfigName,
		DomainName: m.DomainName,
		Outcome:    m.Outcome,
		ExitCode:   m.ExitCode,
		Message:    m.Message,
		Duration:   time.Duration(m.DurationMs) * time.Millisecond,
		CreatedAt:  time.UnixMilli(m.CreatedAt),
	}, nil
}

const entryColumns = `id, run_id, tag, case_name, phase, argv, config_name, domain_name,
	outcome, exit_code, message, duration_ms, created_at`

// Store reads and writes ledger entries.
type Store struct {
	db *sql.DB
}

// Open opens the ledger at path.
func Open(path string) (*Store, error) {
	db, err := NewDB(path)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// NewStore wraps an already initialized database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Record inserts e and returns its ID.
func (s *Store) Record(e Entry) (int64, error) {
	m, err := toModel(e)
	if err != nil {
		return 0, err
	}
	result, err := s.db.Exec(
		`INSERT INTO entries (
			run_id, tag, case_name, phase, argv, config_name, domain_name,
			outcome, exit_code, message, duration_ms, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.RunID, m.Tag, m.CaseName, m.Phase, m.Argv, m.ConfigName, m.DomainName,
		m.Outcome, m.ExitCode, m.Message, m.DurationMs, m.CreatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert ledger entry: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert id: %w", err)
	}
	return id, nil
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	RunID string
	Case  string
	// Limit caps the number of entries; 0 means no cap.
	Limit int
}

// List returns entries newest first.
func (s *Store) List(f Filter) ([]Entry, error) {
	var (
		where []string
		args  []any
	)
	if f.RunID != "" {
		where = append(where, "run_id = ?")
		args = append(args, f.RunID)
	}
	if f.Case != "" {
		where = append(where, "case_name = ?")
		args = append(args, f.Case)
	}
	query := `SELECT ` + entryColumns + ` FROM entries`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		var m entryModel
		if err := rows.Scan(
			&m.ID, &m.RunID, &m.Tag, &m.CaseName, &m.Phase, &m.Argv, &m.ConfigName, &m.DomainName,
			&m.Outcome, &m.ExitCode, &m.Message, &m.DurationMs, &m.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		e, err := m.toEntry()
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ledger entries: %w", err)
	}
	return entries, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
