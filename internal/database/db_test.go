package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMigrateSQLiteIsIdempotent(t *testing.T) {
	req := require.New(t)
	db, err := Open("sqlite3", "file::memory:?_foreign_keys=on")
	req.NoError(err)
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	req.NoError(Migrate(ctx, db, "sqlite3"))
	req.NoError(Migrate(ctx, db, "sqlite3"))

	for _, table := range []string{"users", "refresh_tokens", "chat_groups", "group_members", "messages"} {
		var name string
		err := db.QueryRowContext(ctx,
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		req.NoError(err, table)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open("nope", "x")
	require.Error(t, err)
}
