package sandbox

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteViolationStore persists violations to a SQLite database so the audit
// trail survives host restarts.
type SQLiteViolationStore struct {
	db *sql.DB
}

// NewSQLiteViolationStore opens (creating if needed) the audit database at
// path. Use ":memory:" for an ephemeral store.
func NewSQLiteViolationStore(path string) (*SQLiteViolationStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}

	const schema = `
		CREATE TABLE IF NOT EXISTS sandbox_violations (
			id          TEXT PRIMARY KEY,
			instance_id TEXT NOT NULL,
			type        TEXT NOT NULL,
			description TEXT NOT NULL,
			severity    TEXT NOT NULL,
			timestamp   TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_violations_instance
			ON sandbox_violations (instance_id);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize audit schema: %w", err)
	}

	return &SQLiteViolationStore{db: db}, nil
}

func (s *SQLiteViolationStore) Record(v Violation) error {
	_, err := s.db.Exec(
		`INSERT INTO sandbox_violations (id, instance_id, type, description, severity, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		v.ID, v.InstanceID, string(v.Type), v.Description, v.Severity, v.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to record violation: %w", err)
	}
	return nil
}

func (s *SQLiteViolationStore) ForInstance(instanceID string) ([]Violation, error) {
	rows, err := s.db.Query(
		`SELECT id, instance_id, type, description, severity, timestamp
		 FROM sandbox_violations WHERE instance_id = ? ORDER BY timestamp`,
		instanceID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query violations: %w", err)
	}
	defer rows.Close()
	return scanViolations(rows)
}

func (s *SQLiteViolationStore) All() ([]Violation, error) {
	rows, err := s.db.Query(
		`SELECT id, instance_id, type, description, severity, timestamp
		 FROM sandbox_violations ORDER BY timestamp`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query violations: %w", err)
	}
	defer rows.Close()
	return scanViolations(rows)
}

// Close releases the underlying database handle.
func (s *SQLiteViolationStore) Close() error {
	return s.db.Close()
}

func scanViolations(rows *sql.Rows) ([]Violation, error) {
	var out []Violation
	for rows.Next() {
		var v Violation
		var vtype string
		if err := rows.Scan(&v.ID, &v.InstanceID, &vtype, &v.Description, &v.Severity, &v.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan violation: %w", err)
		}
		v.Type = ViolationType(vtype)
		out = append(out, v)
	}
	return out, rows.Err()
}
