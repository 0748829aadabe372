package kv

import (
	"testing"

	"github.com/dchisholm125/kestrel-hq-sub001/testing/require"
)

func setupDB(t testing.TB) *Store {
	db, err := NewKVStore(t.TempDir(), &Config{})
	require.NoError(t, err, "Failed to instantiate DB")
	t.Cleanup(func() {
		require.NoError(t, db.Close(), "Failed to close database")
	})
	return db
}
