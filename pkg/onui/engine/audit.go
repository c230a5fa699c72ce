// audit.go persists a record of every tool-call decision. This is a
// security audit trail, not a conversation-history resumability feature:
// it records what ran and what the operator decided, nothing more.
package engine

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// AuditLog records decided PendingTool entries to a local SQLite database.
type AuditLog struct {
	db *sql.DB
}

// OpenAuditLog opens (creating if absent) the audit database at path.
func OpenAuditLog(path string) (*AuditLog, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening audit log: %w", err)
	}

	const schema = `
CREATE TABLE IF NOT EXISTS tool_decisions (
	id TEXT NOT NULL,
	code TEXT NOT NULL,
	decision TEXT NOT NULL,
	output TEXT NOT NULL,
	decided_at TIMESTAMP NOT NULL
);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing audit log schema: %w", err)
	}

	return &AuditLog{db: db}, nil
}

// Record appends one decided tool call to the audit trail.
func (a *AuditLog) Record(tool PendingTool) error {
	decision := "rejected"
	if tool.Decision == Approved {
		decision = "approved"
	}
	_, err := a.db.Exec(
		`INSERT INTO tool_decisions (id, code, decision, output, decided_at) VALUES (?, ?, ?, ?, ?)`,
		tool.ID, tool.Code, decision, tool.Output, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("recording audit entry: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (a *AuditLog) Close() error {
	return a.db.Close()
}
