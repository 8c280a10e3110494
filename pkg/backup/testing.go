package backup

import (
	"database/sql"
	"fmt"
	"path"
	"testing"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/stretchr/testify/require"
)

// CreateControlDatabase creates a SQLite database file with rows staged votes and returns its path.
func CreateControlDatabase(t *testing.T, rows int) string {
	t.Helper()

	dbPath := path.Join(t.TempDir(), "control.db")
	db, err := sql.Open("sqlite3", dbPath)
	require.NoError(t, err)
	defer func() { require.NoError(t, db.Close()) }()

	_, err = db.Exec(`CREATE TABLE durable_transactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		transaction_b58 TEXT NOT NULL,
		public_key TEXT NOT NULL,
		poll_id TEXT NOT NULL
	)`)
	require.NoError(t, err)

	for i := 0; i < rows; i++ {
		_, err := db.Exec(
			"INSERT INTO durable_transactions (transaction_b58, public_key, poll_id) VALUES (?1, ?2, ?3)",
			fmt.Sprintf("tx-%d", i), fmt.Sprintf("voter-%d", i), "poll",
		)
		require.NoError(t, err)
	}
	return dbPath
}

// CountRows returns the number of staged votes in the SQLite database at dbPath.
func CountRows(t *testing.T, dbPath string) int {
	t.Helper()

	db, err := sql.Open("sqlite3", dbPath)
	require.NoError(t, err)
	defer func() { require.NoError(t, db.Close()) }()

	var n int
	require.NoError(t, db.QueryRow("SELECT count(*) FROM durable_transactions").Scan(&n))
	return n
}
