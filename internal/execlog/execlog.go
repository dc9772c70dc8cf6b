package execlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Log is a best-effort SQLite audit trail of tool invocations. A nil
// *Log is a valid no-op, and write failures never affect request
// outcomes.
type Log struct {
	db     *sql.DB
	logger *zap.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS executions (
	id TEXT PRIMARY KEY,
	tool TEXT NOT NULL,
	status TEXT NOT NULL,
	input TEXT,
	error_message TEXT,
	duration_ms INTEGER,
	executed_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);`

// Open creates (or opens) the execution log at the given path.
func Open(path string, logger *zap.Logger) (*Log, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return &Log{db: db, logger: logger}, nil
}

// Record writes one invocation row. Failures are logged and swallowed.
func (l *Log) Record(ctx context.Context, toolName, status string, input map[string]any, errMsg string, duration time.Duration) {
	if l == nil {
		return
	}
	inputJSON, _ := json.Marshal(input)
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO executions (id, tool, status, input, error_message, duration_ms, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, uuid.New().String(), toolName, status, string(inputJSON), errMsg, duration.Milliseconds(), time.Now())
	if err != nil {
		l.logger.Warn("execution log write failed", zap.String("tool", toolName), zap.Error(err))
	}
}

// Close releases the database handle.
func (l *Log) Close() error {
	if l == nil {
		return nil
	}
	return l.db.Close()
}
