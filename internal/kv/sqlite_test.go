package kv

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"

	"github.com/aegisdns/syncd/internal/common"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", "file:kvtest?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, EnsureSchema(context.Background(), db))
	return db
}

func TestSQLiteStore_GetMiss(t *testing.T) {
	s := NewSQLiteStore(setupDB(t), "local")

	_, err := s.Get(context.Background(), "account")
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestSQLiteStore_SetGet(t *testing.T) {
	ctx := context.Background()
	s := NewSQLiteStore(setupDB(t), "local")

	require.NoError(t, s.Set(ctx, "account", `{"id":"abc"}`))

	v, err := s.Get(ctx, "account")
	require.NoError(t, err)
	require.Equal(t, `{"id":"abc"}`, v)
}

func TestSQLiteStore_SetOverwrites(t *testing.T) {
	ctx := context.Background()
	s := NewSQLiteStore(setupDB(t), "local")

	require.NoError(t, s.Set(ctx, "k", "one"))
	require.NoError(t, s.Set(ctx, "k", "two"))

	v, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "two", v)
}

func TestSQLiteStore_NamespacesAreIsolated(t *testing.T) {
	ctx := context.Background()
	db := setupDB(t)
	local := NewSQLiteStore(db, "local")
	remote := NewSQLiteStore(db, "remote")

	require.NoError(t, local.Set(ctx, "keypair", "local-value"))

	_, err := remote.Get(ctx, "keypair")
	require.ErrorIs(t, err, common.ErrNotFound)

	v, err := local.Get(ctx, "keypair")
	require.NoError(t, err)
	require.Equal(t, "local-value", v)
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.Get(ctx, "missing")
	require.ErrorIs(t, err, common.ErrNotFound)

	require.NoError(t, s.Set(ctx, "k", "v"))
	v, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "v", v)
}
