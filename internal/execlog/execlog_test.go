package execlog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAndClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "executions.db")
	l, err := Open(path, nil)
	require.NoError(t, err)
	defer l.Close()

	l.Record(context.Background(), "add_numbers", "success", map[string]any{"a": 1}, "", 12*time.Millisecond)
	l.Record(context.Background(), "add_numbers", "error", nil, "boom", 5*time.Millisecond)

	var count int
	row := l.db.QueryRow(`SELECT COUNT(*) FROM executions WHERE tool = ?`, "add_numbers")
	require.NoError(t, row.Scan(&count))
	assert.Equal(t, 2, count)

	var status, errMsg string
	row = l.db.QueryRow(`SELECT status, error_message FROM executions WHERE error_message != '' LIMIT 1`)
	require.NoError(t, row.Scan(&status, &errMsg))
	assert.Equal(t, "error", status)
	assert.Equal(t, "boom", errMsg)
}

func TestNilLogIsNoop(t *testing.T) {
	var l *Log
	l.Record(context.Background(), "x", "success", nil, "", 0)
	assert.NoError(t, l.Close())
}
