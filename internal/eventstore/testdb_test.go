package eventstore_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/textileio/starknet-indexer/internal/eventstore"
)

// newTestStore opens a uniquely-named in-memory SQLite database, pinned to
// one connection so the migration and test both see the same database.
func newTestStore(t *testing.T) *eventstore.Store {
	t.Helper()

	dbURI := "file::" + uuid.NewString() + ":?mode=memory&cache=shared&_foreign_keys=on&_busy_timeout=5000"

	pin, err := sql.Open("sqlite3", dbURI)
	require.NoError(t, err)
	pin.SetMaxOpenConns(1)
	conn, err := pin.Conn(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = conn.Close()
		_ = pin.Close()
	})

	store, err := eventstore.New(dbURI, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return store
}
