// Package testutil provides builders for definition files and run ledgers
// used across package tests.
package testutil

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/ttr/internal/ledger"
)

// NewTestDB creates an in-memory SQLite database with the ledger schema.
// The database is closed when the test ends.
func NewTestDB(t testing.TB) *sql.DB {
	t.Helper()
	db, err := ledger.NewDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// NewTestLedger creates an in-memory ledger store seeded with entries.
func NewTestLedger(t testing.TB, entries ...ledger.Entry) *ledger.Store {
	t.Helper()
	store := ledger.NewStore(NewTestDB(t))
	for _, e := range entries {
		_, err := store.Record(e)
		require.NoError(t, err)
	}
	return store
}
